package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"xbeelink/internal/monitor"
	"xbeelink/internal/mqttbridge"
	"xbeelink/internal/xbee"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := "config.yaml"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cfgPath = args[0]
		args = args[1:]
	}

	cfg, err := xbee.LoadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)
	logger.Info("xbeectl starting", "version", version)

	transport := xbee.NewSerialTransport(cfg.Device)
	device := xbee.NewLocalDevice(transport, cfg.Device, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := device.Open(ctx); err != nil {
		cancel()
		logger.Error("open device", "err", err)
		os.Exit(1)
	}
	if err := device.Initialize(ctx); err != nil {
		cancel()
		logger.Error("initialize device", "err", err)
		os.Exit(1)
	}
	cancel()
	logger.Info("device ready", "addr64", device.Identity().Addr64.String(), "node_id", device.Identity().NodeID)

	var monitorServer *monitor.Server
	if cfg.Monitor.Enabled {
		monitorServer = monitor.NewServer(device.ListenerRegistry(), cfg.Monitor.Listen, logger)
		go func() {
			if err := monitorServer.Start(); err != nil {
				logger.Error("frame monitor", "err", err)
			}
		}()
	}

	var bridge *mqttbridge.Bridge
	if cfg.MQTT.Enabled {
		bridge, err = mqttbridge.NewBridge(mqttbridge.Config{
			Broker:      cfg.MQTT.Broker,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		}, logger)
		if err != nil {
			logger.Error("mqtt bridge", "err", err)
		} else {
			bridge.Start(device.Events())
		}
	}

	shutdown := func() {
		if bridge != nil {
			bridge.Stop()
		}
		if monitorServer != nil {
			monitorServer.Stop()
		}
		device.Close()
	}

	if len(args) > 0 {
		runOneShot(device, args)
		shutdown()
		return
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", "signal", sig)
		shutdown()
		os.Exit(0)
	}()

	runShell(device, logger)
	shutdown()
}

func runOneShot(device *xbee.LocalDevice, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch args[0] {
	case "get":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: xbeectl get MNEMONIC")
			os.Exit(1)
		}
		val, err := device.GetParameter(ctx, args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("%s = % X\n", args[1], val)
	case "set":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: xbeectl set MNEMONIC HEXVALUE")
			os.Exit(1)
		}
		val, err := parseHex(args[2])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if err := device.SetParameter(ctx, args[1], val); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println("OK")
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		os.Exit(1)
	}
}

func parseHex(s string) ([]byte, error) {
	s = strings.ReplaceAll(s, " ", "")
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex string %q", s)
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		var b byte
		if _, err := fmt.Sscanf(s[i*2:i*2+2], "%02X", &b); err != nil {
			return nil, fmt.Errorf("invalid hex byte %q: %w", s[i*2:i*2+2], err)
		}
		out[i] = b
	}
	return out, nil
}

func newLogger(cfg xbee.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
