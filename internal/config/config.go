// Package config loads the gaswatch daemon configuration.
//
// Values start at Default, are overlaid by an optional YAML file and then by
// GASWATCH_* environment variables. Command-line flags are applied last by
// the entry point.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gaswatch/gaswatch-go/pkg/actuator"
	"github.com/gaswatch/gaswatch-go/pkg/api"
	"github.com/gaswatch/gaswatch-go/pkg/connection"
	"github.com/gaswatch/gaswatch-go/pkg/discovery"
	"github.com/gaswatch/gaswatch-go/pkg/gas"
	"github.com/gaswatch/gaswatch-go/pkg/preferences"
	"github.com/gaswatch/gaswatch-go/pkg/service"
	"github.com/gaswatch/gaswatch-go/pkg/stomp"
	"github.com/gaswatch/gaswatch-go/pkg/transport"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "GASWATCH_"

// Actuator kinds.
const (
	ActuatorHTTP = "http"
	ActuatorMQTT = "mqtt"
	ActuatorNone = "none"
)

// Preference backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete daemon configuration.
type Config struct {
	Server      ServerConfig             `yaml:"server"`
	API         APIConfig                `yaml:"api"`
	Monitor     MonitorConfig            `yaml:"monitor"`
	Transport   TransportConfig          `yaml:"transport"`
	Actuator    ActuatorConfig           `yaml:"actuator"`
	Preferences PreferencesConfig        `yaml:"preferences"`
	Thresholds  map[string]gas.Threshold `yaml:"thresholds"`
	Log         LogConfig                `yaml:"log"`
	Metrics     MetricsConfig            `yaml:"metrics"`
}

// ServerConfig locates the telemetry server.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Discover looks the server up over mDNS before connecting.
	Discover        bool          `yaml:"discover"`
	DiscoverTimeout time.Duration `yaml:"discover_timeout"`
	Interface       string        `yaml:"interface"`
}

// APIConfig locates the HTTP collaborator. An empty host or zero port
// falls back to the server's.
type APIConfig struct {
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	Timeout    time.Duration `yaml:"timeout"`
	RetryCount int           `yaml:"retry_count"`
	RetryWait  time.Duration `yaml:"retry_wait"`
}

// MonitorConfig tunes the health supervisor, roster refresh and reconnect.
type MonitorConfig struct {
	SensorHealthInterval time.Duration `yaml:"sensor_health_interval"`
	SensorSilence        time.Duration `yaml:"sensor_silence"`
	ResyncRatio          float64       `yaml:"resync_ratio"`
	DropRatio            float64       `yaml:"drop_ratio"`
	ResyncDelay          time.Duration `yaml:"resync_delay"`
	RosterInterval       time.Duration `yaml:"roster_interval"`
	FanInterval          time.Duration `yaml:"fan_interval"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	FetchTimeout         time.Duration `yaml:"fetch_timeout"`
	PersistTimeout       time.Duration `yaml:"persist_timeout"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	ReconnectAttempts    int           `yaml:"reconnect_attempts"`
}

// TransportConfig tunes the STOMP session.
type TransportConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	HealthInterval    time.Duration `yaml:"health_interval"`
	StaleAfter        time.Duration `yaml:"stale_after"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
}

// ActuatorConfig selects and tunes the lamp actuator.
type ActuatorConfig struct {
	Kind        string        `yaml:"kind"`
	Repeat      int           `yaml:"repeat"`
	RepeatGap   time.Duration `yaml:"repeat_gap"`
	CallTimeout time.Duration `yaml:"call_timeout"`
	MQTT        MQTTConfig    `yaml:"mqtt"`
}

// MQTTConfig configures the MQTT actuator.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
	QoS      int    `yaml:"qos"`
	Retained bool   `yaml:"retained"`
}

// PreferencesConfig selects the preference store.
type PreferencesConfig struct {
	Backend string      `yaml:"backend"`
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig configures the Redis preference store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// LogConfig configures operational and protocol logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`

	// ProtocolLog is the path of the CBOR protocol capture (empty disables).
	ProtocolLog string `yaml:"protocol_log"`

	// ProtocolDebug mirrors protocol events onto the operational logger.
	ProtocolDebug bool `yaml:"protocol_debug"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the address of the /metrics endpoint (empty disables).
	Listen string `yaml:"listen"`
}

// Default returns the configuration with every tunable at its default.
func Default() Config {
	svc := service.DefaultConfig()
	tr := transport.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8081,
			DiscoverTimeout: discovery.DefaultTimeout,
		},
		API: APIConfig{
			Timeout:    api.DefaultTimeout,
			RetryCount: api.DefaultRetryCount,
			RetryWait:  api.DefaultRetryWait,
		},
		Monitor: MonitorConfig{
			SensorHealthInterval: svc.SensorHealthInterval,
			SensorSilence:        svc.SensorSilence,
			ResyncRatio:          svc.ResyncRatio,
			DropRatio:            svc.DropRatio,
			ResyncDelay:          svc.ResyncDelay,
			RosterInterval:       svc.RosterInterval,
			FanInterval:          svc.FanInterval,
			ConnectTimeout:       svc.ConnectTimeout,
			FetchTimeout:         svc.FetchTimeout,
			PersistTimeout:       svc.PersistTimeout,
			ReconnectInterval:    connection.DefaultBaseInterval,
			ReconnectAttempts:    connection.DefaultMaxAttempts,
		},
		Transport: TransportConfig{
			HeartbeatInterval: tr.HeartbeatInterval,
			HealthInterval:    tr.HealthInterval,
			StaleAfter:        tr.StaleAfter,
			WriteTimeout:      tr.WriteTimeout,
		},
		Actuator: ActuatorConfig{
			Kind:        ActuatorHTTP,
			Repeat:      actuator.DefaultRepeat,
			RepeatGap:   actuator.DefaultRepeatGap,
			CallTimeout: actuator.DefaultCallTimeout,
			MQTT: MQTTConfig{
				ClientID: "gaswatch",
				Topic:    "gaswatch/lamp/set",
				QoS:      1,
			},
		},
		Preferences: PreferencesConfig{
			Backend: BackendFile,
			Path:    "gaswatch-preferences.json",
			Redis: RedisConfig{
				Addr: "localhost:6379",
				Key:  preferences.DefaultRedisKey,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load returns Default overlaid by the YAML file at path. An empty path
// skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides values from GASWATCH_* variables. A nil lookup reads
// the process environment. Empty values are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(EnvPrefix + key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"SERVER_HOST", &c.Server.Host},
		{"SERVER_INTERFACE", &c.Server.Interface},
		{"API_HOST", &c.API.Host},
		{"ACTUATOR_KIND", &c.Actuator.Kind},
		{"MQTT_BROKER", &c.Actuator.MQTT.Broker},
		{"MQTT_CLIENT_ID", &c.Actuator.MQTT.ClientID},
		{"MQTT_USERNAME", &c.Actuator.MQTT.Username},
		{"MQTT_PASSWORD", &c.Actuator.MQTT.Password},
		{"MQTT_TOPIC", &c.Actuator.MQTT.Topic},
		{"PREFERENCES_BACKEND", &c.Preferences.Backend},
		{"PREFERENCES_PATH", &c.Preferences.Path},
		{"REDIS_ADDR", &c.Preferences.Redis.Addr},
		{"REDIS_PASSWORD", &c.Preferences.Redis.Password},
		{"REDIS_KEY", &c.Preferences.Redis.Key},
		{"LOG_LEVEL", &c.Log.Level},
		{"LOG_FORMAT", &c.Log.Format},
		{"PROTOCOL_LOG", &c.Log.ProtocolLog},
		{"METRICS_LISTEN", &c.Metrics.Listen},
	}
	for _, s := range strs {
		if v, ok := get(s.key); ok {
			*s.dst = v
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"SERVER_PORT", &c.Server.Port},
		{"API_PORT", &c.API.Port},
		{"REDIS_DB", &c.Preferences.Redis.DB},
	}
	for _, i := range ints {
		v, ok := get(i.key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, i.key, err)
		}
		*i.dst = n
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"SERVER_DISCOVER", &c.Server.Discover},
		{"PROTOCOL_DEBUG", &c.Log.ProtocolDebug},
	}
	for _, b := range bools {
		v, ok := get(b.key)
		if !ok {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, b.key, err)
		}
		*b.dst = parsed
	}

	return nil
}

// Validate checks the configuration as a whole.
func (c Config) Validate() error {
	if !c.Server.Discover && c.Server.Host == "" {
		return fmt.Errorf("%w: server host is required without discovery", ErrInvalid)
	}
	if err := validPort("server", c.Server.Port); err != nil {
		return err
	}
	if c.API.Port != 0 {
		if err := validPort("api", c.API.Port); err != nil {
			return err
		}
	}

	if err := c.ServiceConfig().Validate(); err != nil {
		return fmt.Errorf("%w: monitor: %w", ErrInvalid, err)
	}
	if c.Transport.HeartbeatInterval <= 0 || c.Transport.HealthInterval <= 0 || c.Transport.StaleAfter <= 0 {
		return fmt.Errorf("%w: transport intervals must be positive", ErrInvalid)
	}

	switch c.Actuator.Kind {
	case ActuatorHTTP, ActuatorNone:
	case ActuatorMQTT:
		if c.Actuator.MQTT.Broker == "" || c.Actuator.MQTT.Topic == "" {
			return fmt.Errorf("%w: mqtt actuator needs broker and topic", ErrInvalid)
		}
		if c.Actuator.MQTT.QoS < 0 || c.Actuator.MQTT.QoS > 2 {
			return fmt.Errorf("%w: mqtt qos must be 0, 1 or 2", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown actuator kind %q", ErrInvalid, c.Actuator.Kind)
	}

	switch c.Preferences.Backend {
	case BackendFile:
		if c.Preferences.Path == "" {
			return fmt.Errorf("%w: preferences path is required", ErrInvalid)
		}
	case BackendRedis:
		if c.Preferences.Redis.Addr == "" {
			return fmt.Errorf("%w: redis address is required", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown preferences backend %q", ErrInvalid, c.Preferences.Backend)
	}

	if _, err := c.ThresholdDefaults(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func validPort(what string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%w: %s port %d out of range", ErrInvalid, what, port)
	}
	return nil
}

// ServerAddress returns the WebSocket URL of the telemetry server.
func (c Config) ServerAddress() string {
	return transport.SensorURL(c.Server.Host, c.Server.Port)
}

// APIBaseURL returns the base URL of the HTTP collaborator.
func (c Config) APIBaseURL() string {
	host, port := c.API.Host, c.API.Port
	if host == "" {
		host = c.Server.Host
	}
	if port == 0 {
		port = c.Server.Port
	}
	return api.BaseURL(host, port)
}

// ApplyDiscovered points the server, and the API when it has no explicit
// host, at a discovered server.
func (c *Config) ApplyDiscovered(s discovery.Server) {
	c.Server.Host = s.Address()
	c.Server.Port = s.Port
	if s.APIPort > 0 && c.API.Port == 0 {
		c.API.Port = s.APIPort
	}
}

// ServiceConfig maps the monitor section onto service.Config.
func (c Config) ServiceConfig() service.Config {
	m := c.Monitor
	return service.Config{
		Address:              c.ServerAddress(),
		SensorHealthInterval: m.SensorHealthInterval,
		SensorSilence:        m.SensorSilence,
		ResyncRatio:          m.ResyncRatio,
		DropRatio:            m.DropRatio,
		ResyncDelay:          m.ResyncDelay,
		RosterInterval:       m.RosterInterval,
		FanInterval:          m.FanInterval,
		ConnectTimeout:       m.ConnectTimeout,
		FetchTimeout:         m.FetchTimeout,
		PersistTimeout:       m.PersistTimeout,
		Backoff: connection.BackoffConfig{
			BaseInterval: m.ReconnectInterval,
			MaxAttempts:  m.ReconnectAttempts,
		},
	}
}

// ClientConfig maps the transport section onto transport.Config.
func (c Config) ClientConfig() transport.Config {
	return transport.Config{
		Host:              stomp.DefaultHost,
		HeartBeat:         stomp.DefaultHeartBeat,
		HeartbeatInterval: c.Transport.HeartbeatInterval,
		HealthInterval:    c.Transport.HealthInterval,
		StaleAfter:        c.Transport.StaleAfter,
		WriteTimeout:      c.Transport.WriteTimeout,
	}
}

// APIClientConfig maps the api section onto api.Config.
func (c Config) APIClientConfig() api.Config {
	return api.Config{
		BaseURL:    c.APIBaseURL(),
		Timeout:    c.API.Timeout,
		RetryCount: c.API.RetryCount,
		RetryWait:  c.API.RetryWait,
	}
}

// DiscoveryConfig maps the server section onto discovery.Config.
func (c Config) DiscoveryConfig() discovery.Config {
	return discovery.Config{
		Timeout:   c.Server.DiscoverTimeout,
		Interface: c.Server.Interface,
	}
}

// MQTTActuatorConfig maps the mqtt section onto actuator.MQTTConfig.
func (c Config) MQTTActuatorConfig() actuator.MQTTConfig {
	m := c.Actuator.MQTT
	return actuator.MQTTConfig{
		Broker:   m.Broker,
		ClientID: m.ClientID,
		Username: m.Username,
		Password: m.Password,
		Topic:    m.Topic,
		QoS:      byte(m.QoS),
		Retained: m.Retained,
	}
}

// ThresholdDefaults returns the factory table with the configured entries
// replacing whole rows. Keys are gas tags, case-insensitive.
func (c Config) ThresholdDefaults() (map[gas.Type]gas.Threshold, error) {
	out := gas.DefaultThresholds()
	for tag, th := range c.Thresholds {
		g, ok := gas.ParseType(tag)
		if !ok {
			return nil, fmt.Errorf("thresholds: unknown gas %q", tag)
		}
		if problems := gas.Validate(g, th); len(problems) > 0 {
			return nil, fmt.Errorf("thresholds %s: %s", g, strings.Join(problems, "; "))
		}
		if th.Unit == "" {
			th.Unit = out[g].Unit
		}
		out[g] = th
	}
	return out, nil
}
