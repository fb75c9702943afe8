package rtcsync

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/opd-ai/rtcsync/noise"
	"github.com/opd-ai/rtcsync/peer"
)

// Options configures peers and the optional Noise layer.
type Options struct {
	LogLevel string `yaml:"log_level"`

	ICEServers     []string `yaml:"ice_servers,omitempty"`
	TURNUsername   string   `yaml:"turn_username,omitempty"`
	TURNCredential string   `yaml:"turn_credential,omitempty"`

	// IncludeLoopback allows peers on the same host to connect without
	// another usable interface.
	IncludeLoopback bool          `yaml:"include_loopback"`
	GatherTimeout   time.Duration `yaml:"gather_timeout"`

	ChannelLabel string `yaml:"channel_label"`
	Unordered    bool   `yaml:"unordered"`

	// Secure runs a Noise handshake over the data channel before any
	// application message.
	Secure       bool   `yaml:"secure"`
	NoisePattern string `yaml:"noise_pattern"`
}

// NewOptions returns the defaults.
func NewOptions() *Options {
	options := &Options{
		LogLevel:        "info",
		ICEServers:      []string{"stun:stun.l.google.com:19302"},
		IncludeLoopback: false,
		GatherTimeout:   peer.DefaultGatherTimeout,
		ChannelLabel:    "rtcsync",
		NoisePattern:    "XX",
	}

	logrus.WithFields(logrus.Fields{
		"function":       "NewOptions",
		"ice_servers":    len(options.ICEServers),
		"gather_timeout": options.GatherTimeout,
	}).Debug("Created default options")
	return options
}

// NewOptionsForTesting returns options for peers on one host: no STUN,
// loopback candidates and a short gathering timeout.
func NewOptionsForTesting() *Options {
	options := NewOptions()
	options.LogLevel = "debug"
	options.ICEServers = nil
	options.IncludeLoopback = true
	options.GatherTimeout = 5 * time.Second
	return options
}

// LoadOptions reads YAML options from path over the defaults. Unknown keys
// are rejected.
func LoadOptions(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading options: %w", err)
	}
	options, err := ParseOptions(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "LoadOptions",
		"path":     path,
	}).Info("Loaded options")
	return options, nil
}

// ParseOptions decodes YAML options over the defaults.
func ParseOptions(data []byte) (*Options, error) {
	options := NewOptions()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(options); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing options: %w", err)
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}
	return options, nil
}

// Validate checks option values that would otherwise fail later.
func (o *Options) Validate() error {
	if _, err := logrus.ParseLevel(o.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	if o.GatherTimeout < 0 {
		return fmt.Errorf("invalid gather_timeout %s", o.GatherTimeout)
	}
	if _, err := noise.ParsePattern(o.NoisePattern); err != nil {
		return fmt.Errorf("invalid noise_pattern: %w", err)
	}
	if o.Secure && o.Unordered {
		// Noise transport messages carry implicit nonces.
		return errors.New("secure requires an ordered channel")
	}
	return nil
}

// PeerConfig returns the connection settings.
func (o *Options) PeerConfig() peer.Config {
	return peer.Config{
		ICEServers:      append([]string(nil), o.ICEServers...),
		Username:        o.TURNUsername,
		Credential:      o.TURNCredential,
		IncludeLoopback: o.IncludeLoopback,
		GatherTimeout:   o.GatherTimeout,
	}
}

// ChannelOptions returns the data channel settings.
func (o *Options) ChannelOptions() *peer.ChannelOptions {
	return &peer.ChannelOptions{Unordered: o.Unordered}
}

// Pattern returns the Noise handshake pattern. Validate reports an
// unknown pattern; Pattern falls back to XX.
func (o *Options) Pattern() noise.Pattern {
	p, err := noise.ParsePattern(o.NoisePattern)
	if err != nil {
		return noise.PatternXX
	}
	return p
}

// ConfigureLogging sets the global logrus level and formatter.
func ConfigureLogging(level string) error {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("configuring logging: %w", err)
	}
	logrus.SetLevel(parsed)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return nil
}
