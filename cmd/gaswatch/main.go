// Command gaswatch is the headless gas-sensor telemetry client.
//
// It loads the sensor roster from the HTTP collaborator, holds one STOMP
// session over WebSocket with the telemetry server, classifies every
// reading and drives the site warning lamp.
//
// Usage:
//
//	gaswatch [flags]
//
// Flags:
//
//	-config string        Configuration file path (YAML)
//	-host string          Telemetry server host (default "localhost")
//	-port int             Telemetry server port (default 8081)
//	-api-port int         HTTP collaborator port (default: server port)
//	-discover             Find the server over mDNS
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-log-format string    Log format: json, console (default "json")
//	-protocol-log string  Capture STOMP traffic to this file
//	-metrics string       Serve Prometheus metrics on this address
//	-interactive          Enable the operator console
//	-reset                Clear stored preferences before starting
//
// Every value can also be set in the configuration file or through a
// GASWATCH_* environment variable. Flags win over both.
//
// Examples:
//
//	# Connect to a server on the LAN with the operator console
//	gaswatch -host 192.168.1.20 -interactive -log-format console
//
//	# Run as a service with metrics and a protocol capture
//	gaswatch -config /etc/gaswatch.yaml -metrics :9102 -protocol-log /var/log/gaswatch.cbor
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gaswatch/gaswatch-go/cmd/gaswatch/interactive"
	"github.com/gaswatch/gaswatch-go/internal/config"
	"github.com/gaswatch/gaswatch-go/internal/logging"
	"github.com/gaswatch/gaswatch-go/pkg/actuator"
	"github.com/gaswatch/gaswatch-go/pkg/api"
	"github.com/gaswatch/gaswatch-go/pkg/discovery"
	"github.com/gaswatch/gaswatch-go/pkg/gas"
	plog "github.com/gaswatch/gaswatch-go/pkg/log"
	"github.com/gaswatch/gaswatch-go/pkg/metrics"
	"github.com/gaswatch/gaswatch-go/pkg/preferences"
	"github.com/gaswatch/gaswatch-go/pkg/service"
	"github.com/gaswatch/gaswatch-go/pkg/transport"
)

const serviceName = "gaswatch"

// Flags holds the command-line flags.
type Flags struct {
	ConfigFile  string
	Host        string
	Port        int
	APIPort     int
	Discover    bool
	LogLevel    string
	LogFormat   string
	ProtocolLog string
	Metrics     string
	Interactive bool
	Reset       bool
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&flags.Host, "host", "localhost", "Telemetry server host")
	flag.IntVar(&flags.Port, "port", 8081, "Telemetry server port")
	flag.IntVar(&flags.APIPort, "api-port", 0, "HTTP collaborator port (default: server port)")
	flag.BoolVar(&flags.Discover, "discover", false, "Find the server over mDNS")
	flag.StringVar(&flags.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&flags.LogFormat, "log-format", "json", "Log format: json, console")
	flag.StringVar(&flags.ProtocolLog, "protocol-log", "", "Capture STOMP traffic to this file")
	flag.StringVar(&flags.Metrics, "metrics", "", "Serve Prometheus metrics on this address")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Enable the operator console")
	flag.BoolVar(&flags.Reset, "reset", false, "Clear stored preferences before starting")
}

func main() {
	flag.Parse()

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg, err := loadConfig(flags, set, os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gaswatch: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gaswatch: logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("gaswatch failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

// loadConfig layers defaults, the config file, the environment and the
// flags the operator set explicitly.
func loadConfig(f Flags, set map[string]bool, lookup func(string) (string, bool)) (config.Config, error) {
	cfg, err := config.Load(f.ConfigFile)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return cfg, err
	}
	applyFlags(&cfg, f, set)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyFlags(cfg *config.Config, f Flags, set map[string]bool) {
	if set["host"] {
		cfg.Server.Host = f.Host
	}
	if set["port"] {
		cfg.Server.Port = f.Port
	}
	if set["api-port"] {
		cfg.API.Port = f.APIPort
	}
	if set["discover"] {
		cfg.Server.Discover = f.Discover
	}
	if set["log-level"] {
		cfg.Log.Level = f.LogLevel
	}
	if set["log-format"] {
		cfg.Log.Format = f.LogFormat
	}
	if set["protocol-log"] {
		cfg.Log.ProtocolLog = f.ProtocolLog
	}
	if set["metrics"] {
		cfg.Metrics.Listen = f.Metrics
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Server.Discover {
		logger.Info("discovering telemetry server", zap.Duration("timeout", cfg.Server.DiscoverTimeout))
		server, err := discovery.NewBrowser(cfg.DiscoveryConfig(), logger.Named("discovery")).Find(ctx)
		if err != nil {
			return fmt.Errorf("discovery: %w", err)
		}
		cfg.ApplyDiscovered(server)
		logger.Info("telemetry server discovered",
			zap.String("instance", server.Instance),
			zap.String("site", server.Site),
			zap.String("address", cfg.ServerAddress()))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	met := metrics.New(reg)

	var metricsServer *http.Server
	if cfg.Metrics.Listen != "" {
		metricsServer = serveMetrics(cfg.Metrics.Listen, reg, logger)
	}

	protocolLog, closeProtocolLog, err := openProtocolLog(cfg, logger)
	if err != nil {
		return err
	}
	defer closeProtocolLog()

	apiClient := api.NewClient(cfg.APIClientConfig(), logger.Named("api"))

	act, closeActuator, err := newActuator(cfg, apiClient, logger)
	if err != nil {
		return err
	}
	defer closeActuator()

	prefs, closePrefs := newPreferenceStore(cfg)
	defer closePrefs()
	if flags.Reset {
		logger.Info("clearing stored preferences")
		if err := prefs.Clear(ctx); err != nil {
			logger.Warn("failed to clear preferences", zap.Error(err))
		}
	}

	thresholds := gas.NewStore()
	defaults, err := cfg.ThresholdDefaults()
	if err != nil {
		return err
	}
	if err := thresholds.SetDefaults(defaults); err != nil {
		return err
	}

	deps := service.Deps{
		Roster:           apiClient,
		Actuator:         act,
		ActuatorOptions:  []actuator.Option{actuator.WithCallTimeout(cfg.Actuator.CallTimeout)},
		Preferences:      prefs,
		Dialer:           transport.NewWebSocketDialer(),
		TransportConfig:  cfg.ClientConfig(),
		TransportOptions: []transport.Option{transport.WithProtocolLogger(protocolLog)},
		Thresholds:       thresholds,
		Metrics:          met,
		Logger:           logger,
	}
	if cfg.Monitor.FanInterval > 0 {
		deps.Fans = apiClient
	}

	mon, err := service.New(cfg.ServiceConfig(), deps)
	if err != nil {
		return err
	}
	mon.OnEvent(eventLogger(logger))

	if err := mon.Start(ctx); err != nil {
		return err
	}
	logger.Info("gaswatch started",
		zap.String("server", cfg.ServerAddress()),
		zap.String("api", cfg.APIBaseURL()),
		zap.String("actuator", cfg.Actuator.Kind),
		zap.String("preferences", cfg.Preferences.Backend))

	if flags.Interactive {
		console, err := interactive.New(mon)
		if err != nil {
			return err
		}
		go console.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	cancel()

	if err := mon.Stop(); err != nil {
		logger.Warn("error stopping monitor", zap.Error(err))
	}
	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsServer.Shutdown(shutdownCtx)
		shutdownCancel()
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}

// openProtocolLog builds the protocol capture: a CBOR file, the debug
// logger, both or neither.
func openProtocolLog(cfg config.Config, logger *zap.Logger) (plog.Logger, func(), error) {
	var sinks []plog.Logger
	closeFn := func() {}

	if cfg.Log.ProtocolLog != "" {
		file, err := plog.NewFileLogger(cfg.Log.ProtocolLog)
		if err != nil {
			return nil, nil, fmt.Errorf("protocol log: %w", err)
		}
		sinks = append(sinks, file)
		closeFn = func() {
			if n := file.Dropped(); n > 0 {
				logger.Warn("protocol events dropped", zap.Int("count", n))
			}
			_ = file.Close()
		}
		logger.Info("capturing protocol traffic", zap.String("path", cfg.Log.ProtocolLog))
	}
	if cfg.Log.ProtocolDebug {
		sinks = append(sinks, plog.NewZapLogger(logger.Named("stomp")))
	}

	switch len(sinks) {
	case 0:
		return plog.NoopLogger{}, closeFn, nil
	case 1:
		return sinks[0], closeFn, nil
	default:
		return plog.NewMultiLogger(sinks...), closeFn, nil
	}
}

func newActuator(cfg config.Config, apiClient *api.Client, logger *zap.Logger) (actuator.Actuator, func(), error) {
	switch cfg.Actuator.Kind {
	case config.ActuatorMQTT:
		act, err := actuator.NewMQTTActuator(cfg.MQTTActuatorConfig())
		if err != nil {
			return nil, nil, err
		}
		return act, act.Close, nil
	case config.ActuatorNone:
		return noLamp{logger: logger.Named("actuator")}, func() {}, nil
	default:
		act := actuator.NewHTTPActuator(apiClient, actuator.HTTPConfig{
			Repeat:    cfg.Actuator.Repeat,
			RepeatGap: cfg.Actuator.RepeatGap,
		}, logger.Named("actuator"))
		return act, func() {}, nil
	}
}

// noLamp logs lamp switches for sites without a lamp.
type noLamp struct {
	logger *zap.Logger
}

func (n noLamp) Switch(_ context.Context, on bool) error {
	n.logger.Info("lamp switch (no actuator)", zap.Bool("on", on))
	return nil
}

func newPreferenceStore(cfg config.Config) (preferences.Store, func()) {
	if cfg.Preferences.Backend == config.BackendRedis {
		r := cfg.Preferences.Redis
		client := redis.NewClient(&redis.Options{
			Addr:     r.Addr,
			Password: r.Password,
			DB:       r.DB,
		})
		return preferences.NewRedisStore(client, r.Key), func() { _ = client.Close() }
	}
	return preferences.NewFileStore(cfg.Preferences.Path), func() {}
}

func eventLogger(logger *zap.Logger) service.EventHandler {
	logger = logger.Named("event")
	return func(e service.Event) {
		switch e.Type {
		case service.EventConnected:
			logger.Info("session established", zap.Int("sensors", e.Sensors))
		case service.EventDisconnected:
			logger.Warn("session lost", zap.String("reason", e.Message))
		case service.EventReconnecting:
			logger.Info("reconnect scheduled", zap.Int("attempt", e.Attempt), zap.Duration("delay", e.Delay))
		case service.EventFailed:
			logger.Error("reconnect attempts exhausted; use 'reconnect' to retry")
		case service.EventRosterChanged:
			logger.Info("roster changed", zap.Int("sensors", e.Sensors))
		case service.EventVerdictChanged:
			logger.Info("site verdict changed",
				zap.Bool("dangerous", e.Verdict.Dangerous),
				zap.Bool("warning", e.Verdict.HasWarning),
				zap.Strings("problems", e.Verdict.Problems))
		case service.EventLampChanged:
			logger.Info("lamp changed", zap.Bool("on", e.Lamp.LampOn), zap.Bool("master", e.Lamp.MasterEnabled))
		case service.EventServerAlarm:
			logger.Info("server alarm", zap.String("sensor", e.SensorID), zap.String("message", e.Message), zap.Stringer("level", e.Level))
		case service.EventFanChanged:
			logger.Info("fan changed", zap.String("port", e.Port), zap.Bool("on", e.On))
		}
	}
}
