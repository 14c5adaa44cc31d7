// Package config resolves daemon configuration from defaults, an
// optional env file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalid marks a configuration problem the daemon cannot start
// with. It is fatal at startup and never retried.
var ErrInvalid = errors.New("invalid configuration")

// Environment variable names
const (
	EnvMode             = "THERMOD_MODE"
	EnvDevices          = "THERMOD_DEVICES"
	EnvInterval         = "THERMOD_INTERVAL"
	EnvFailureThreshold = "THERMOD_FAILURE_THRESHOLD"
	EnvProbeInterval    = "THERMOD_PROBE_INTERVAL"
	EnvHubAddr          = "THERMOD_HUB_ADDR"
	EnvRetryBase        = "THERMOD_RETRY_BASE"
	EnvRetryMax         = "THERMOD_RETRY_MAX"
	EnvStatusFile       = "THERMOD_STATUS_FILE"
	EnvToken            = "SWITCHBOT_TOKEN"
	EnvSecret           = "SWITCHBOT_SECRET"
	EnvAPIURL           = "THERMOD_API_URL"
	// Storage settings
	EnvSink         = "THERMOD_SINK"
	EnvDBPath       = "THERMOD_DB_PATH"
	EnvInfluxURL    = "THERMOD_INFLUX_URL"
	EnvInfluxToken  = "THERMOD_INFLUX_TOKEN"
	EnvInfluxOrg    = "THERMOD_INFLUX_ORG"
	EnvInfluxBucket = "THERMOD_INFLUX_BUCKET"
	// MQTT settings
	EnvMQTTBroker   = "THERMOD_MQTT_BROKER"
	EnvMQTTClientID = "THERMOD_MQTT_CLIENT_ID"
	EnvMQTTUsername = "THERMOD_MQTT_USERNAME"
	EnvMQTTPassword = "THERMOD_MQTT_PASSWORD"
	EnvMQTTPrefix   = "THERMOD_MQTT_PREFIX"
	EnvMQTTUseTLS   = "THERMOD_MQTT_USE_TLS"
)

// Modes select the device service variant.
const (
	ModeLive = "live"
	ModeMock = "mock"
)

// Sink names select the readings store.
const (
	SinkBolt   = "bolt"
	SinkInflux = "influx"
)

// Default values
const (
	DefaultMode             = ModeLive
	DefaultInterval         = 600 * time.Second
	DefaultFailureThreshold = 5
	DefaultProbeInterval    = 5
	DefaultRetryBase        = 60 * time.Second
	DefaultRetryMax         = 24 * time.Hour
	DefaultStatusFile       = "daemon_status.json"
	DefaultSink             = SinkBolt
	DefaultDBPath           = "thermod.db"
	// MQTT defaults
	DefaultMQTTPrefix = "thermod"
)

// defaultDevices is the device set used when THERMOD_DEVICES is unset.
var defaultDevices = []DeviceConfig{
	{Name: "living_room_thermometer", Address: "D40E84863006"},
	{Name: "bedroom_thermometer", Address: "D40E84861814"},
	{Name: "office_thermometer", Address: "D628EA1C498F"},
	{Name: "outdoor_thermometer", Address: "D40E84064570"},
}

// DeviceConfig names one sensor and its vendor address.
type DeviceConfig struct {
	Name    string
	Address string
}

// Config holds all daemon configuration.
// All access should be through getter methods for thread safety.
type Config struct {
	mu sync.RWMutex

	mode             string
	devices          []DeviceConfig
	interval         time.Duration
	failureThreshold int
	probeInterval    int
	hubAddr          string
	retryBase        time.Duration
	retryMax         time.Duration
	statusFile       string

	// Vendor API settings
	token  string
	secret string
	apiURL string

	// Storage settings
	sink         string
	dbPath       string
	influxURL    string
	influxToken  string
	influxOrg    string
	influxBucket string

	// MQTT settings
	mqttBroker   string
	mqttClientID string
	mqttUsername string
	mqttPassword string
	mqttPrefix   string
	mqttUseTLS   bool
}

// Load resolves configuration. An env file at filePath is loaded into
// the process environment first (missing file is fine); values already
// set in the environment win.
func Load(filePath string) (*Config, error) {
	if filePath != "" {
		if err := godotenv.Load(filePath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load env file %s: %w", filePath, err)
		}
	}

	cfg := &Config{}
	cfg.setDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults initializes all fields with default values.
func (c *Config) setDefaults() {
	c.mode = DefaultMode
	c.devices = append([]DeviceConfig(nil), defaultDevices...)
	c.interval = DefaultInterval
	c.failureThreshold = DefaultFailureThreshold
	c.probeInterval = DefaultProbeInterval
	c.retryBase = DefaultRetryBase
	c.retryMax = DefaultRetryMax
	c.statusFile = DefaultStatusFile
	c.sink = DefaultSink
	c.dbPath = DefaultDBPath
	c.mqttPrefix = DefaultMQTTPrefix
}

// applyEnv overlays environment values onto the current config.
func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvMode); v != "" {
		c.mode = strings.ToLower(v)
	}

	if v := os.Getenv(EnvDevices); v != "" {
		devices, err := ParseDevices(v)
		if err != nil {
			return err
		}
		c.devices = devices
	}

	var err error
	if c.interval, err = envSeconds(EnvInterval, c.interval); err != nil {
		return err
	}
	if c.retryBase, err = envSeconds(EnvRetryBase, c.retryBase); err != nil {
		return err
	}
	if c.retryMax, err = envSeconds(EnvRetryMax, c.retryMax); err != nil {
		return err
	}
	if c.failureThreshold, err = envInt(EnvFailureThreshold, c.failureThreshold); err != nil {
		return err
	}
	if c.probeInterval, err = envInt(EnvProbeInterval, c.probeInterval); err != nil {
		return err
	}

	if v := os.Getenv(EnvHubAddr); v != "" {
		c.hubAddr = v
	}
	if v := os.Getenv(EnvStatusFile); v != "" {
		c.statusFile = v
	}
	if v := os.Getenv(EnvToken); v != "" {
		c.token = v
	}
	if v := os.Getenv(EnvSecret); v != "" {
		c.secret = v
	}
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.apiURL = v
	}

	// Storage settings
	if v := os.Getenv(EnvSink); v != "" {
		c.sink = strings.ToLower(v)
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		c.dbPath = v
	}
	if v := os.Getenv(EnvInfluxURL); v != "" {
		c.influxURL = v
	}
	if v := os.Getenv(EnvInfluxToken); v != "" {
		c.influxToken = v
	}
	if v := os.Getenv(EnvInfluxOrg); v != "" {
		c.influxOrg = v
	}
	if v := os.Getenv(EnvInfluxBucket); v != "" {
		c.influxBucket = v
	}

	// MQTT settings
	if v := os.Getenv(EnvMQTTBroker); v != "" {
		c.mqttBroker = v
	}
	if v := os.Getenv(EnvMQTTClientID); v != "" {
		c.mqttClientID = v
	}
	if v := os.Getenv(EnvMQTTUsername); v != "" {
		c.mqttUsername = v
	}
	if v := os.Getenv(EnvMQTTPassword); v != "" {
		c.mqttPassword = v
	}
	if v := os.Getenv(EnvMQTTPrefix); v != "" {
		c.mqttPrefix = v
	}
	if v := os.Getenv(EnvMQTTUseTLS); v != "" {
		c.mqttUseTLS = parseBool(v)
	}

	return nil
}

// ParseDevices parses a "name=ADDRESS,name=ADDRESS" device list.
func ParseDevices(s string) ([]DeviceConfig, error) {
	var devices []DeviceConfig
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, addr, ok := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		addr = strings.TrimSpace(addr)
		if !ok || name == "" || addr == "" {
			return nil, fmt.Errorf("%w: malformed device entry %q (want name=ADDRESS)", ErrInvalid, entry)
		}
		devices = append(devices, DeviceConfig{Name: name, Address: addr})
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: device list %q names no devices", ErrInvalid, s)
	}
	return devices, nil
}

// validate checks if configuration is valid.
func (c *Config) validate() error {
	if c.mode != ModeLive && c.mode != ModeMock {
		return fmt.Errorf("%w: unknown mode %q (want %s or %s)", ErrInvalid, c.mode, ModeLive, ModeMock)
	}

	if c.mode == ModeLive && (c.token == "" || c.secret == "") {
		return fmt.Errorf("%w: live mode requires %s and %s", ErrInvalid, EnvToken, EnvSecret)
	}

	if c.interval <= 0 {
		return fmt.Errorf("%w: collection interval must be positive", ErrInvalid)
	}
	if c.failureThreshold <= 0 {
		return fmt.Errorf("%w: failure threshold must be positive", ErrInvalid)
	}
	if c.probeInterval <= 0 {
		return fmt.Errorf("%w: probe interval must be positive", ErrInvalid)
	}
	if c.retryBase <= 0 || c.retryMax < c.retryBase {
		return fmt.Errorf("%w: retry delays must satisfy 0 < base <= max", ErrInvalid)
	}

	seen := make(map[string]bool, len(c.devices))
	for _, d := range c.devices {
		if seen[d.Name] {
			return fmt.Errorf("%w: duplicate device name %q", ErrInvalid, d.Name)
		}
		seen[d.Name] = true
	}

	switch c.sink {
	case SinkBolt:
		if c.dbPath == "" {
			return fmt.Errorf("%w: bolt sink requires %s", ErrInvalid, EnvDBPath)
		}
	case SinkInflux:
		if c.influxURL == "" || c.influxToken == "" || c.influxOrg == "" || c.influxBucket == "" {
			return fmt.Errorf("%w: influx sink requires %s, %s, %s and %s",
				ErrInvalid, EnvInfluxURL, EnvInfluxToken, EnvInfluxOrg, EnvInfluxBucket)
		}
	default:
		return fmt.Errorf("%w: unknown sink %q (want %s or %s)", ErrInvalid, c.sink, SinkBolt, SinkInflux)
	}

	return nil
}

func envSeconds(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	seconds, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not a number of seconds", ErrInvalid, key, v)
	}
	return time.Duration(seconds) * time.Second, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, key, v)
	}
	return n, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

// Getters (thread-safe)

// Mode returns the device service mode ("live" or "mock").
func (c *Config) Mode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// Mock reports whether the daemon runs against the synthetic service.
func (c *Config) Mock() bool {
	return c.Mode() == ModeMock
}

// Devices returns the configured devices in declaration order.
func (c *Config) Devices() []DeviceConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]DeviceConfig(nil), c.devices...)
}

// DeviceNames returns the configured device names, sorted.
func (c *Config) DeviceNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.devices))
	for i, d := range c.devices {
		names[i] = d.Name
	}
	sort.Strings(names)
	return names
}

// Interval returns the collection interval.
func (c *Config) Interval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.interval
}

// FailureThreshold returns the consecutive-failure count that degrades
// the daemon.
func (c *Config) FailureThreshold() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.failureThreshold
}

// ProbeInterval returns how many iterations pass between connectivity
// probes.
func (c *Config) ProbeInterval() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.probeInterval
}

// HubAddr returns the local hub address, empty when unconfigured.
func (c *Config) HubAddr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hubAddr
}

// RetryBase returns the initial backoff delay.
func (c *Config) RetryBase() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.retryBase
}

// RetryMax returns the backoff delay ceiling.
func (c *Config) RetryMax() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.retryMax
}

// StatusFile returns the daemon status record path.
func (c *Config) StatusFile() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statusFile
}

// Token returns the vendor API token.
func (c *Config) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Secret returns the vendor API signing secret.
func (c *Config) Secret() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.secret
}

// APIURL returns the vendor API base URL override, empty for the
// vendor default.
func (c *Config) APIURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiURL
}

// Storage getters

// Sink returns the selected readings store ("bolt" or "influx").
func (c *Config) Sink() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sink
}

// DBPath returns the bolt database path.
func (c *Config) DBPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dbPath
}

// InfluxURL returns the InfluxDB server URL.
func (c *Config) InfluxURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.influxURL
}

// InfluxToken returns the InfluxDB API token.
func (c *Config) InfluxToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.influxToken
}

// InfluxOrg returns the InfluxDB organization.
func (c *Config) InfluxOrg() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.influxOrg
}

// InfluxBucket returns the InfluxDB bucket.
func (c *Config) InfluxBucket() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.influxBucket
}

// MQTT Getters

// MQTTBroker returns the MQTT broker address, empty when publishing is
// disabled.
func (c *Config) MQTTBroker() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mqttBroker
}

// MQTTClientID returns the MQTT client ID.
func (c *Config) MQTTClientID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mqttClientID
}

// MQTTUsername returns the MQTT username.
func (c *Config) MQTTUsername() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mqttUsername
}

// MQTTPassword returns the MQTT password.
func (c *Config) MQTTPassword() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mqttPassword
}

// MQTTPrefix returns the MQTT topic prefix.
func (c *Config) MQTTPrefix() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mqttPrefix
}

// MQTTUseTLS returns whether TLS is enabled for MQTT.
func (c *Config) MQTTUseTLS() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mqttUseTLS
}
