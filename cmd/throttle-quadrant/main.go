package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"throttle-quadrant/internal/config"
	"throttle-quadrant/internal/core"
	"throttle-quadrant/internal/hardware"
	"throttle-quadrant/internal/hid"
	"throttle-quadrant/internal/logger"
	"throttle-quadrant/internal/messaging"
	"throttle-quadrant/internal/monitor"
	"throttle-quadrant/internal/storage"
)

const telemetryQueueSize = 64

func main() {
	// Service log level, -1 defers to the config file
	var serviceLogLevel int
	flag.IntVar(&serviceLogLevel, "log", -1, "Service log level (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG, -1=config)")
	configPath := flag.String("config", config.DefaultPath, "Path to the YAML config file")
	printDescriptor := flag.Bool("print-descriptor", false, "Print the HID report descriptor as hex and exit")

	flag.Parse()

	if *printDescriptor {
		fmt.Println(hex.EncodeToString(hid.JoystickDescriptor))
		return
	}

	// Create standard logger with appropriate format
	var stdLogger *log.Logger
	if os.Getenv("INVOCATION_ID") != "" {
		// Running under systemd, use minimal format
		stdLogger = log.New(os.Stdout, "", 0)
	} else {
		// Running interactively, use timestamps
		stdLogger = log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds|log.Lmsgprefix)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		stdLogger.Fatalf("Failed to load config: %v", err)
	}

	level := logger.LogLevel(serviceLogLevel)
	if serviceLogLevel < 0 {
		level, err = logger.ParseLevel(cfg.LogLevel)
		if err != nil {
			stdLogger.Printf("%v, using info", err)
		}
	}
	l := logger.NewLogger(stdLogger, level)

	l.Infof("Starting throttle quadrant...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, l); err != nil {
		l.Fatalf("%v", err)
	}
	l.Infof("Shutdown complete")
}

func run(ctx context.Context, cfg config.Config, l *logger.Logger) error {
	var hw core.Hardware

	sampler, closeSampler, err := openSampler(cfg, l)
	if err != nil {
		return err
	}
	defer closeSampler()
	hw.Sampler = sampler

	buttons, err := hardware.OpenGpioButtons(cfg.Buttons.Chip, map[string]int{
		"calibrate": cfg.Buttons.CalibrateLine,
		"reverse":   cfg.Buttons.ReverseLine,
	}, cfg.Buttons.ActiveLow, l.WithTag("gpio"))
	if err != nil {
		return err
	}
	defer buttons.Close()
	if hw.Calibrate, err = buttons.Input("calibrate"); err != nil {
		return err
	}
	if hw.Reverse, err = buttons.Input("reverse"); err != nil {
		return err
	}

	if cfg.Indicator.Enabled {
		indicator, err := hardware.OpenPwmIndicator("", cfg.Indicator.PWMChip, cfg.Indicator.Channel, cfg.Indicator.Period)
		if err != nil {
			l.Warnf("Indicator unavailable, continuing without: %v", err)
		} else {
			defer indicator.Close()
			hw.Indicator = indicator
		}
	}

	flash, err := storage.OpenFile(cfg.Storage.Path, cfg.Storage.Size, cfg.Storage.PageSize)
	if err != nil {
		return err
	}
	defer flash.Close()
	hw.Storage = flash

	gadget, err := hid.OpenGadget(cfg.HID.Device)
	if err != nil {
		return err
	}
	defer gadget.Close()
	hw.Writer = gadget

	var ctrl *core.Controller
	handleCommand := func(cmd string) error {
		return ctrl.HandleCommand(cmd)
	}

	var (
		sinks []messaging.Sink
		redis *messaging.RedisClient
		mon   *monitor.Server
	)
	if cfg.Redis.Enabled {
		redis = messaging.NewRedisClient(cfg.Redis.Host, cfg.Redis.Port, l.WithTag("redis"), messaging.Callbacks{
			CommandCallback: handleCommand,
		})
		if err := redis.Connect(); err != nil {
			l.Warnf("Redis disabled: %v", err)
			redis = nil
		} else {
			defer redis.Close()
			sinks = append(sinks, redis)
		}
	}
	if cfg.MQTT.Enabled {
		pub, err := messaging.ConnectMQTT(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.TopicPrefix, l.WithTag("mqtt"))
		if err != nil {
			l.Warnf("MQTT disabled: %v", err)
		} else {
			defer pub.Close()
			sinks = append(sinks, pub)
		}
	}
	if cfg.Monitor.Enabled {
		mon = monitor.NewServer(cfg.Monitor.Addr, l.WithTag("monitor"), handleCommand)
		sinks = append(sinks, mon)
	}

	var fanout *messaging.Fanout
	if len(sinks) > 0 {
		fanout = messaging.NewFanout(telemetryQueueSize, l.WithTag("telemetry"), sinks...)
		fanout.Start(ctx)
		hw.Telemetry = fanout
	}

	ctrl, err = core.NewController(hw, cfg, l.WithTag("core"))
	if err != nil {
		return err
	}
	if err := ctrl.Start(ctx); err != nil {
		if fanout != nil {
			fanout.Stop()
		}
		return fmt.Errorf("failed to start controller: %w", err)
	}

	// Command sources start once the controller is running
	if redis != nil {
		if err := redis.StartListening(); err != nil {
			l.Warnf("Redis command listener failed: %v", err)
		}
	}
	if mon != nil {
		if err := mon.Start(ctx); err != nil {
			l.Warnf("Monitor unavailable: %v", err)
		}
	}

	l.Infof("Controller started in %s", ctrl.Stage())

	err = ctrl.Run(ctx)
	if fanout != nil {
		fanout.Stop()
	}
	return err
}

func openSampler(cfg config.Config, l *logger.Logger) (core.AnalogSampler, func(), error) {
	switch cfg.ADC.Driver {
	case config.DriverADS1115:
		channels := []int{cfg.ADC.TunerChannel}
		for _, a := range cfg.Axes {
			channels = append(channels, a.ADCChannel)
		}
		s, err := hardware.OpenADS1115(cfg.ADC.I2CBus, cfg.ADC.I2CAddr, channels)
		if err != nil {
			return nil, nil, err
		}
		l.Infof("Sampling from ADS1115 at 0x%02X", cfg.ADC.I2CAddr)
		return s, func() { s.Close() }, nil
	default:
		s, err := hardware.NewIIOSampler(cfg.ADC.IIODevice)
		if err != nil {
			return nil, nil, err
		}
		l.Infof("Sampling from IIO device %s", cfg.ADC.IIODevice)
		return s, func() {}, nil
	}
}
