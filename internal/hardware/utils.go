package hardware

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ReadAdcValue reads a raw IIO ADC sample below root (normally IioDevicesDir).
func ReadAdcValue(root, device string, channel int) (int, error) {
	path := filepath.Join(root, device, fmt.Sprintf("in_voltage%d_raw", channel))
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return -1, fmt.Errorf("ADC sysfs not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return -1, fmt.Errorf("failed reading %s: %w", path, err)
	}

	var value int
	_, err = fmt.Sscanf(strings.TrimSpace(string(data)), "%d", &value)
	if err != nil {
		return -1, fmt.Errorf("failed parsing ADC value: %w", err)
	}

	return value, nil
}

func InRange(v, min, max int) bool {
	return v >= min && v <= max
}
