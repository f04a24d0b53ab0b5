package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"vehicle-control/internal/config"
	"vehicle-control/internal/core"
	"vehicle-control/internal/logger"
)

func main() {
	var (
		configPath string
		logLevel   string
		sim        bool
		redisHost  string
		redisPort  int
	)

	flags := pflag.NewFlagSet("vehicle-control", pflag.ExitOnError)
	flags.StringVar(&configPath, "config", "", "path to YAML config file (defaults apply when empty)")
	flags.StringVar(&logLevel, "log", "", "log level: none, error, warn, info, debug (or 0-4)")
	flags.BoolVar(&sim, "sim", false, "run against the simulator clock")
	flags.StringVar(&redisHost, "redis-host", "", "Redis host (overrides config)")
	flags.IntVar(&redisPort, "redis-port", 0, "Redis port (overrides config)")
	flags.Parse(os.Args[1:])

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if flags.Changed("log") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("sim") {
		cfg.Sim.Enabled = sim
	}
	if flags.Changed("redis-host") {
		cfg.Redis.Host = redisHost
	}
	if flags.Changed("redis-port") {
		cfg.Redis.Port = redisPort
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	level, err := logger.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Create standard logger with appropriate format
	var stdLogger *log.Logger
	if os.Getenv("INVOCATION_ID") != "" {
		// Running under systemd, use minimal format
		stdLogger = log.New(os.Stdout, "", 0)
	} else {
		stdLogger = log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds|log.Lmsgprefix)
	}

	l := logger.NewLogger(stdLogger, level)
	l.Infof("Starting vehicle control...")

	system := core.NewVehicleSystem(cfg, l)
	if err := system.Start(); err != nil {
		l.Fatalf("Failed to start system: %v", err)
	}

	l.Infof("System started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	l.Infof("Received signal %v, shutting down...", sig)
	system.Shutdown()
	l.Infof("Shutdown complete")
}
