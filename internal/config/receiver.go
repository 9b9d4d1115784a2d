// Package config loads the receiver configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/jsonc"
)

// DefaultConfigPath is the checked-in defaults file.
const DefaultConfigPath = "config/facecap.defaults.jsonc"

// Defaults applied by the Get* accessors.
const (
	DefaultListenPort     = 49983
	DefaultRcvBuf         = 1 << 20
	DefaultLogInterval    = 30 * time.Second
	DefaultHTTPListen     = ":8083"
	DefaultStreamInterval = 33 * time.Millisecond
)

const maxFileSize = 1 << 20

// ReceiverConfig is the on-disk receiver configuration. Every field is
// optional; unset fields take the default from the matching Get* method.
type ReceiverConfig struct {
	ListenPort     *int    `json:"listen_port,omitempty"`
	BindAddress    *string `json:"bind_address,omitempty"`
	DebugLog       *bool   `json:"debug_log,omitempty"`
	RcvBuf         *int    `json:"rcv_buf,omitempty"`
	LogInterval    *string `json:"log_interval,omitempty"`    // duration string like "30s"
	HTTPListen     *string `json:"http_listen,omitempty"`     // empty disables the monitor
	StreamInterval *string `json:"stream_interval,omitempty"` // duration string like "33ms"
	ForwardAddr    *string `json:"forward_addr,omitempty"`
	ForwardPort    *int    `json:"forward_port,omitempty"`
}

func ptrInt(v int) *int          { return &v }
func ptrBool(v bool) *bool       { return &v }
func ptrString(v string) *string { return &v }

// EmptyReceiverConfig returns a config with every field unset.
func EmptyReceiverConfig() *ReceiverConfig {
	return &ReceiverConfig{}
}

// DefaultReceiverConfig returns a config with every field set to its
// default.
func DefaultReceiverConfig() *ReceiverConfig {
	return &ReceiverConfig{
		ListenPort:     ptrInt(DefaultListenPort),
		BindAddress:    ptrString(""),
		DebugLog:       ptrBool(false),
		RcvBuf:         ptrInt(DefaultRcvBuf),
		LogInterval:    ptrString(DefaultLogInterval.String()),
		HTTPListen:     ptrString(DefaultHTTPListen),
		StreamInterval: ptrString(DefaultStreamInterval.String()),
	}
}

// LoadReceiverConfig reads a .json or .jsonc file. Comments and trailing
// commas are allowed. Fields omitted from the file keep their defaults.
func LoadReceiverConfig(path string) (*ReceiverConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" && ext != ".jsonc" {
		return nil, fmt.Errorf("config file must have .json or .jsonc extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseReceiverConfig(data)
}

// ParseReceiverConfig decodes and validates JSON-with-comments data.
func ParseReceiverConfig(data []byte) (*ReceiverConfig, error) {
	cfg := EmptyReceiverConfig()
	if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that are set.
func (c *ReceiverConfig) Validate() error {
	if c.ListenPort != nil && (*c.ListenPort < 1 || *c.ListenPort > 65535) {
		return fmt.Errorf("listen_port must be between 1 and 65535, got %d", *c.ListenPort)
	}
	if c.RcvBuf != nil && *c.RcvBuf < 0 {
		return fmt.Errorf("rcv_buf must be non-negative, got %d", *c.RcvBuf)
	}
	if err := validateDuration("log_interval", c.LogInterval); err != nil {
		return err
	}
	if err := validateDuration("stream_interval", c.StreamInterval); err != nil {
		return err
	}

	hasAddr := c.ForwardAddr != nil && *c.ForwardAddr != ""
	hasPort := c.ForwardPort != nil && *c.ForwardPort != 0
	if hasAddr != hasPort {
		return fmt.Errorf("forward_addr and forward_port must be set together")
	}
	if hasPort && (*c.ForwardPort < 1 || *c.ForwardPort > 65535) {
		return fmt.Errorf("forward_port must be between 1 and 65535, got %d", *c.ForwardPort)
	}
	return nil
}

func validateDuration(name string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", name, *v)
	}
	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func (c *ReceiverConfig) GetListenPort() int {
	if c.ListenPort == nil {
		return DefaultListenPort
	}
	return *c.ListenPort
}

// GetBindAddress returns the host to bind; empty means all interfaces.
func (c *ReceiverConfig) GetBindAddress() string {
	if c.BindAddress == nil {
		return ""
	}
	return *c.BindAddress
}

func (c *ReceiverConfig) GetDebugLog() bool {
	if c.DebugLog == nil {
		return false
	}
	return *c.DebugLog
}

func (c *ReceiverConfig) GetRcvBuf() int {
	if c.RcvBuf == nil {
		return DefaultRcvBuf
	}
	return *c.RcvBuf
}

func (c *ReceiverConfig) GetLogInterval() time.Duration {
	return durationOr(c.LogInterval, DefaultLogInterval)
}

// GetHTTPListen returns the monitor address. An explicit empty string
// disables the monitor.
func (c *ReceiverConfig) GetHTTPListen() string {
	if c.HTTPListen == nil {
		return DefaultHTTPListen
	}
	return *c.HTTPListen
}

func (c *ReceiverConfig) GetStreamInterval() time.Duration {
	return durationOr(c.StreamInterval, DefaultStreamInterval)
}

// GetForward returns the relay destination, if configured.
func (c *ReceiverConfig) GetForward() (addr string, port int, ok bool) {
	if c.ForwardAddr == nil || *c.ForwardAddr == "" || c.ForwardPort == nil || *c.ForwardPort == 0 {
		return "", 0, false
	}
	return *c.ForwardAddr, *c.ForwardPort, true
}

// RestartRequired reports whether moving from c to next changes anything
// other than the debug toggle.
func (c *ReceiverConfig) RestartRequired(next *ReceiverConfig) bool {
	a, b := *c, *next
	a.DebugLog, b.DebugLog = nil, nil
	aj, _ := json.Marshal(a.normalized())
	bj, _ := json.Marshal(b.normalized())
	return string(aj) != string(bj)
}

// normalized fills every field except DebugLog with its effective value.
func (c *ReceiverConfig) normalized() ReceiverConfig {
	addr, port, _ := c.GetForward()
	return ReceiverConfig{
		ListenPort:     ptrInt(c.GetListenPort()),
		BindAddress:    ptrString(c.GetBindAddress()),
		RcvBuf:         ptrInt(c.GetRcvBuf()),
		LogInterval:    ptrString(c.GetLogInterval().String()),
		HTTPListen:     ptrString(c.GetHTTPListen()),
		StreamInterval: ptrString(c.GetStreamInterval().String()),
		ForwardAddr:    ptrString(addr),
		ForwardPort:    ptrInt(port),
	}
}
