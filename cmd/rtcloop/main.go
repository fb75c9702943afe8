// Package main runs two WebRTC peers in one process, connects them over
// the loopback interface and echoes messages across a data channel,
// optionally secured with a Noise handshake.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/pflag"

	"github.com/opd-ai/rtcsync"
)

// CLIConfig holds the command-line settings.
type CLIConfig struct {
	configPath string
	logLevel   string
	label      string
	pattern    string
	messages   []string
	secure     bool
	loopback   bool
	timeout    time.Duration
	help       bool

	flags *pflag.FlagSet
}

// parseCLIFlags parses args (without the program name).
func parseCLIFlags(args []string) (*CLIConfig, error) {
	config := &CLIConfig{}
	flags := pflag.NewFlagSet("rtcloop", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)

	flags.StringVarP(&config.configPath, "config", "c", "", "YAML options file")
	flags.StringVar(&config.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&config.label, "label", "rtcloop", "Data channel label")
	flags.StringVar(&config.pattern, "pattern", "XX", "Noise handshake pattern (XX or IK)")
	flags.StringSliceVarP(&config.messages, "message", "m", []string{"hello", "world"}, "Messages to echo")
	flags.BoolVarP(&config.secure, "secure", "s", false, "Secure the channel with a Noise handshake")
	flags.BoolVar(&config.loopback, "loopback", true, "Gather loopback candidates")
	flags.DurationVar(&config.timeout, "timeout", 30*time.Second, "Overall timeout")
	flags.BoolVarP(&config.help, "help", "h", false, "Show help message")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	config.flags = flags
	return config, nil
}

// printUsage prints the usage information.
func printUsage(w io.Writer, config *CLIConfig) {
	fmt.Fprintln(w, "rtcloop: echo messages between two in-process WebRTC peers")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintf(w, "  %s [options]\n", os.Args[0])
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fmt.Fprint(w, config.flags.FlagUsages())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintf(w, "  %s -m ping -m pong --secure\n", os.Args[0])
	fmt.Fprintf(w, "  %s -c rtcloop.yaml --log-level debug\n", os.Args[0])
}

// validateCLIConfig validates the CLI configuration.
func validateCLIConfig(config *CLIConfig) error {
	if len(config.messages) == 0 {
		return fmt.Errorf("at least one message is required")
	}
	for _, msg := range config.messages {
		if msg == "" {
			return fmt.Errorf("messages cannot be empty")
		}
	}
	if config.timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

// buildOptions loads the options file, if any, and applies the flags set
// on the command line over it.
func buildOptions(config *CLIConfig) (*rtcsync.Options, error) {
	options := rtcsync.NewOptions()
	if config.configPath != "" {
		loaded, err := rtcsync.LoadOptions(config.configPath)
		if err != nil {
			return nil, err
		}
		options = loaded
	}

	changed := func(name string) bool {
		return config.configPath == "" || config.flags.Changed(name)
	}
	if changed("log-level") {
		options.LogLevel = config.logLevel
	}
	if changed("label") {
		options.ChannelLabel = config.label
	}
	if changed("pattern") {
		options.NoisePattern = config.pattern
	}
	if changed("secure") {
		options.Secure = config.secure
	}
	if changed("loopback") {
		options.IncludeLoopback = config.loopback
	}
	if options.IncludeLoopback && config.configPath == "" {
		// Loopback peers need no STUN round trip.
		options.ICEServers = nil
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}
	return options, nil
}

// setupSignalHandling cancels ctx on interrupt.
func setupSignalHandling(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	go func() {
		sig := <-sigChan
		fmt.Fprintf(os.Stderr, "\nReceived signal %v, shutting down\n", sig)
		cancel()
	}()
}

func main() {
	config, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "Use --help for usage information.")
		os.Exit(2)
	}
	if config.help {
		printUsage(os.Stdout, config)
		os.Exit(0)
	}
	if err := validateCLIConfig(config); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	options, err := buildOptions(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	if err := rtcsync.ConfigureLogging(options.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.timeout)
	defer cancel()
	setupSignalHandling(cancel)

	if err := runLoop(ctx, options, config.messages, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Loop failed: %v\n", err)
		os.Exit(1)
	}
}
