package hardware

import "time"

const (
	// Consumer labels the lines this service holds in gpioinfo.
	Consumer = "vehicle-control"

	IioDevicesDir = "/sys/bus/iio/devices"

	DefaultSafetyDebounce  = 10 * time.Millisecond
	DefaultBatteryInterval = time.Second
)
