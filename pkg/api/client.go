// Package api is the client for the site server's HTTP collaborator: the
// sensor roster, the warning lamp endpoints and fan status.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/gaswatch/gaswatch-go/pkg/sensor"
)

// Endpoint paths.
const (
	PathRoster    = "/api/sensor/mappings"
	PathAlertList = "/api/alert"
	PathAlertOn   = "/api/alert/on"
	PathAlertOff  = "/api/alert/off"
	PathFanHealth = "/api/fan/health"
	PathFanStatus = "/api/fan/status"
)

const (
	codeOK         = 200
	portSeparator  = ","
	fanStatusOnTag = "ON"
)

// Defaults for Config.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultRetryCount = 2
	DefaultRetryWait  = 500 * time.Millisecond
)

// ErrUnexpectedStatus is returned for a non-2xx response or an envelope
// whose code is not 200.
var ErrUnexpectedStatus = errors.New("unexpected response status")

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
}

// BaseURL builds the collaborator URL for a host and port.
func BaseURL(host string, port int) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// Client talks to the HTTP collaborator.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewClient creates a client. Only GET requests are retried; lamp switches
// have their own repeat policy.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = DefaultRetryWait
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(4 * cfg.RetryWait).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	return &Client{http: client, logger: logger}
}

// envelope is the server's standard response wrapper.
type envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func checkResponse(resp *resty.Response, err error, what string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%s: %w: %s", what, ErrUnexpectedStatus, resp.Status())
	}
	return nil
}

// FetchRoster returns the sensor roster.
func (c *Client) FetchRoster(ctx context.Context) ([]sensor.Descriptor, error) {
	resp, err := c.http.R().SetContext(ctx).Get(PathRoster)
	if err := checkResponse(resp, err, "fetch roster"); err != nil {
		return nil, err
	}

	roster, err := sensor.DecodeRoster(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("fetch roster: %w", err)
	}
	c.logger.Debug("roster fetched", zap.Int("sensors", len(roster)))
	return roster, nil
}

type alertList struct {
	Alerts []struct {
		PortName string `json:"portName"`
	} `json:"alerts"`
}

// FetchAlertPorts returns the ports of the warning lamps.
func (c *Client) FetchAlertPorts(ctx context.Context) ([]string, error) {
	var result envelope[alertList]
	resp, err := c.http.R().SetContext(ctx).SetResult(&result).Get(PathAlertList)
	if err := checkResponse(resp, err, "fetch alert ports"); err != nil {
		return nil, err
	}
	if result.Code != codeOK {
		return nil, fmt.Errorf("fetch alert ports: %w: code %d", ErrUnexpectedStatus, result.Code)
	}

	ports := make([]string, 0, len(result.Data.Alerts))
	for _, a := range result.Data.Alerts {
		if a.PortName != "" {
			ports = append(ports, a.PortName)
		}
	}
	return ports, nil
}

// SwitchAlert turns the lamps on the given ports on or off.
func (c *Client) SwitchAlert(ctx context.Context, on bool, ports []string) error {
	path := PathAlertOff
	if on {
		path = PathAlertOn
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetQueryParam("portNames", strings.Join(ports, portSeparator)).
		Post(path)
	return checkResponse(resp, err, "switch alert")
}

type fanHealth struct {
	BassoDevices []struct {
		PortName string `json:"portName"`
	} `json:"bassoDevices"`
}

// FetchFanPorts returns the ports of the connected fans.
func (c *Client) FetchFanPorts(ctx context.Context) ([]string, error) {
	var result envelope[fanHealth]
	resp, err := c.http.R().SetContext(ctx).SetResult(&result).Get(PathFanHealth)
	if err := checkResponse(resp, err, "fetch fan health"); err != nil {
		return nil, err
	}
	if result.Code != codeOK {
		return nil, fmt.Errorf("fetch fan health: %w: code %d", ErrUnexpectedStatus, result.Code)
	}

	ports := make([]string, 0, len(result.Data.BassoDevices))
	for _, d := range result.Data.BassoDevices {
		if d.PortName != "" {
			ports = append(ports, d.PortName)
		}
	}
	return ports, nil
}

// FanStatus is the state of one fan.
type FanStatus struct {
	Port   string
	Status string
}

// On reports whether the fan runs. Anything but "ON" counts as off.
func (f FanStatus) On() bool {
	return strings.EqualFold(f.Status, fanStatusOnTag)
}

type fanStatusList struct {
	Ports []struct {
		PortName  string `json:"portName"`
		FanStatus string `json:"fanStatus"`
	} `json:"ports"`
}

// FetchFanStatus returns the state of the fans on the given ports. With no
// ports it returns nil without a request.
func (c *Client) FetchFanStatus(ctx context.Context, ports []string) ([]FanStatus, error) {
	if len(ports) == 0 {
		return nil, nil
	}

	var result envelope[fanStatusList]
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("portNames", strings.Join(ports, portSeparator)).
		SetResult(&result).
		Get(PathFanStatus)
	if err := checkResponse(resp, err, "fetch fan status"); err != nil {
		return nil, err
	}
	if result.Code != codeOK {
		return nil, fmt.Errorf("fetch fan status: %w: code %d", ErrUnexpectedStatus, result.Code)
	}

	out := make([]FanStatus, 0, len(result.Data.Ports))
	for _, p := range result.Data.Ports {
		out = append(out, FanStatus{Port: p.PortName, Status: p.FanStatus})
	}
	return out, nil
}
