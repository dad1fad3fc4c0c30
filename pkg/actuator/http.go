package actuator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Defaults for HTTPActuator.
const (
	DefaultRepeat    = 3
	DefaultRepeatGap = 50 * time.Millisecond
)

// ErrNoAlertPorts is returned when the server lists no lamp ports.
var ErrNoAlertPorts = errors.New("no alert ports available")

// AlertAPI is the slice of the HTTP collaborator the lamp needs.
type AlertAPI interface {
	FetchAlertPorts(ctx context.Context) ([]string, error)
	SwitchAlert(ctx context.Context, on bool, ports []string) error
}

// HTTPConfig tunes an HTTPActuator.
type HTTPConfig struct {
	// Repeat is how many times each switch request is sent.
	Repeat int

	// RepeatGap is the pause between repeats.
	RepeatGap time.Duration
}

// HTTPActuator switches the lamp through the alert endpoints of the HTTP
// collaborator. The lamp port list is cached and refetched while empty.
type HTTPActuator struct {
	api    AlertAPI
	cfg    HTTPConfig
	logger *zap.Logger

	mu    sync.Mutex
	ports []string
}

// NewHTTPActuator creates an HTTP actuator.
func NewHTTPActuator(api AlertAPI, cfg HTTPConfig, logger *zap.Logger) *HTTPActuator {
	if cfg.Repeat <= 0 {
		cfg.Repeat = DefaultRepeat
	}
	if cfg.RepeatGap < 0 {
		cfg.RepeatGap = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPActuator{api: api, cfg: cfg, logger: logger}
}

// Ports returns the cached lamp ports.
func (a *HTTPActuator) Ports() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.ports...)
}

func (a *HTTPActuator) resolvePorts(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	cached := a.ports
	a.mu.Unlock()
	if len(cached) > 0 {
		return cached, nil
	}

	ports, err := a.api.FetchAlertPorts(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch alert ports: %w", err)
	}
	if len(ports) == 0 {
		return nil, ErrNoAlertPorts
	}

	a.mu.Lock()
	a.ports = ports
	a.mu.Unlock()
	a.logger.Info("alert ports loaded", zap.Strings("ports", ports))
	return ports, nil
}

// Switch sends the switch request Repeat times. It fails only when every
// attempt failed.
func (a *HTTPActuator) Switch(ctx context.Context, on bool) error {
	ports, err := a.resolvePorts(ctx)
	if err != nil {
		return err
	}

	var errs []error
	succeeded := 0
	for i := 1; i <= a.cfg.Repeat; i++ {
		if err := a.api.SwitchAlert(ctx, on, ports); err != nil {
			a.logger.Warn("alert switch attempt failed",
				zap.String("action", action(on)),
				zap.Int("attempt", i),
				zap.Error(err))
			errs = append(errs, err)
		} else {
			succeeded++
		}

		if i < a.cfg.Repeat && a.cfg.RepeatGap > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(a.cfg.RepeatGap):
			}
		}
	}

	a.logger.Info("alert switch sent",
		zap.String("action", action(on)),
		zap.Int("succeeded", succeeded),
		zap.Int("attempts", a.cfg.Repeat))

	if succeeded == 0 {
		return fmt.Errorf("alert %s failed: %w", action(on), errors.Join(errs...))
	}
	return nil
}
