// Gpiobridge exposes a host's GPIO and sensors as an MQTT device.
//
// It publishes retained status topics for an analog input, an LED
// output, and the CPU temperature, reacts to command topics to read or
// drive them, and announces itself to Home Assistant via MQTT
// discovery. Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	gpiobridge serve         Connect to the broker and run the bridge
//	gpiobridge init [dir]    Initialize a working directory with defaults
//	gpiobridge version       Print version and build information
//	gpiobridge -o json version   Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/quillon/gpiobridge/internal/buildinfo"
	"github.com/quillon/gpiobridge/internal/config"
	"github.com/quillon/gpiobridge/internal/device"
	"github.com/quillon/gpiobridge/internal/hw"
	"github.com/quillon/gpiobridge/internal/mqtt"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the gpiobridge command. All OS-level
// dependencies are injected as parameters. We parse arguments by hand
// rather than using the flag package to avoid global state that
// interferes with parallel tests; the argument surface is small enough
// that manual parsing is clearer than bringing in a CLI framework.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runServe is the primary operating mode: loads config, opens the GPIO
// board, connects to the broker, and blocks until a shutdown signal
// arrives.
//
// The shutdown sequence is:
//  1. SIGINT or SIGTERM cancels the context and stops the poll loop
//  2. The command subscription is dropped so no late command races the
//     parked state
//  3. The LED is driven low and final retained statuses are published
//  4. Availability goes "offline" and the connection closes
//  5. The GPIO chip handle is released via defer
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting gpiobridge",
		"version", buildinfo.Version, "commit", buildinfo.GitCommit,
		"branch", buildinfo.GitBranch, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that we know the desired level and
	// format. The initial Info-level text logger covers only the
	// startup banner and config load.
	{
		level := slog.LevelInfo
		if cfg.LogLevel != "" {
			// Already validated by config.Validate, so the error path
			// is unreachable in practice.
			level, _ = config.ParseLogLevel(cfg.LogLevel)
		}
		logger = newLogger(stdout, level, cfg.LogFormat)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"broker", cfg.MQTT.Broker,
		"client_id", cfg.MQTT.ClientID,
		"simulated", cfg.Hardware.Simulated,
	)

	// The data directory holds only the persistent instance ID.
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}
	instanceID, err := mqtt.LoadOrCreateInstanceID(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("load instance ID: %w", err)
	}

	// Absent hardware is fatal: the bridge has no useful behavior
	// without its board, so there is nothing to retry.
	board, err := hw.OpenBoard(cfg.Hardware)
	if err != nil {
		return err
	}
	defer board.Close()
	logger.Info("hardware opened",
		"chip", cfg.Hardware.GPIOChip,
		"led_line", cfg.Hardware.LEDLine,
		"simulated", cfg.Hardware.Simulated,
	)

	client := mqtt.New(cfg.MQTT, instanceID, logger)
	dev := device.New(board, client,
		device.Topics{ClientID: cfg.MQTT.ClientID},
		cfg.Reporting, cfg.MQTT.PeerDevice, logger)

	// Inbound commands go straight to the dispatcher; on every
	// (re-)connect the client re-subscribes first and then asks the
	// device to refresh all retained statuses.
	client.SetMessageHandler(dev.HandleCommand)
	client.SetOnConnect(dev.PublishAll)

	// NotifyContext wraps the parent context so SIGINT/SIGTERM
	// cancellation flows through the same ctx used by all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := client.Start(ctx); err != nil {
		return err
	}

	// Wait briefly for the first connection; a broker outage is not
	// fatal, autopaho keeps retrying in the background.
	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := client.AwaitConnection(connCtx); err != nil && ctx.Err() == nil {
		logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}
	connCancel()

	// The poll loop blocks until the context is cancelled.
	dev.Run(ctx, time.Duration(cfg.Reporting.PollIntervalSec)*time.Second)

	logger.Info("shutdown signal received")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := client.Unsubscribe(shutdownCtx); err != nil {
		logger.Warn("mqtt unsubscribe failed", "error", err)
	}
	dev.Shutdown(shutdownCtx)
	if err := client.Stop(shutdownCtx); err != nil {
		logger.Error("mqtt shutdown failed", "error", err)
	}

	logger.Info("gpiobridge stopped")
	return nil
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	// Print fields in a stable order for human readability.
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w. It is called when
// gpiobridge is invoked with no arguments, or with -h / --help.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "gpiobridge - GPIO and sensor bridge for MQTT")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: gpiobridge [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Connect to the broker and run the bridge")
	fmt.Fprintln(w, "  init [dir]   Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/gpiobridge/config.yaml, /etc/gpiobridge/config.yaml")
	return nil
}

// newLogger creates a structured logger that writes to w at the given
// level and format. Format must be "text" or "json"; any other value
// defaults to text. All log output goes through slog; this helper
// standardizes the handler configuration across subcommands.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig locates and parses the YAML configuration file. If
// explicit is non-empty, that exact path is used (and must exist).
// Otherwise, [config.FindConfig] searches the default locations.
// Returns the parsed config, the path that was loaded, and any error.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, "", fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}
