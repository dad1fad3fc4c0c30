package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaswatch/gaswatch-go/pkg/sensor"
)

func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, Timeout: 2 * time.Second, RetryWait: time.Millisecond}, nil)
}

func TestFetchRoster(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(PathRoster, jsonHandler(http.StatusOK,
		`{"code":200,"data":{"sensors":[{"portName":"COM3","modelName":"ASG-CO","serialNumber":"1"},{"portName":"COM4","modelName":"error","serialNumber":"2"}]}}`))

	c := newTestClient(t, mux)
	roster, err := c.FetchRoster(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []sensor.Descriptor{{Port: "COM3", Model: "ASG-CO", Serial: "1"}}, roster)
}

func TestFetchRosterUnrecognized(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(PathRoster, jsonHandler(http.StatusOK, `{"code":200}`))

	_, err := newTestClient(t, mux).FetchRoster(context.Background())
	assert.ErrorIs(t, err, sensor.ErrUnrecognizedRoster)
}

func TestFetchRosterRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc(PathRoster, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		jsonHandler(http.StatusOK, `[]`)(w, r)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := NewClient(Config{BaseURL: srv.URL, RetryCount: 2, RetryWait: time.Millisecond}, nil)

	roster, err := c.FetchRoster(context.Background())
	require.NoError(t, err)
	assert.Empty(t, roster)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchRosterHTTPError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(PathRoster, jsonHandler(http.StatusNotFound, `{}`))

	_, err := newTestClient(t, mux).FetchRoster(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestFetchAlertPorts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(PathAlertList, jsonHandler(http.StatusOK,
		`{"code":200,"data":{"alerts":[{"portName":"COM7"},{"portName":""},{"portName":"COM8"}]}}`))

	ports, err := newTestClient(t, mux).FetchAlertPorts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"COM7", "COM8"}, ports)
}

func TestFetchAlertPortsBadCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(PathAlertList, jsonHandler(http.StatusOK, `{"code":500,"message":"busy"}`))

	_, err := newTestClient(t, mux).FetchAlertPorts(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestSwitchAlert(t *testing.T) {
	var gotPath, gotPorts, gotMethod string
	mux := http.NewServeMux()
	handler := func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotPorts = r.URL.Query().Get("portNames")
		w.WriteHeader(http.StatusOK)
	}
	mux.HandleFunc(PathAlertOn, handler)
	mux.HandleFunc(PathAlertOff, handler)

	c := newTestClient(t, mux)

	require.NoError(t, c.SwitchAlert(context.Background(), true, []string{"COM7", "COM8"}))
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, PathAlertOn, gotPath)
	assert.Equal(t, "COM7,COM8", gotPorts)

	require.NoError(t, c.SwitchAlert(context.Background(), false, []string{"COM7"}))
	assert.Equal(t, PathAlertOff, gotPath)
}

func TestSwitchAlertIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc(PathAlertOn, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := NewClient(Config{BaseURL: srv.URL, RetryCount: 3, RetryWait: time.Millisecond}, nil)

	err := c.SwitchAlert(context.Background(), true, []string{"COM7"})
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFanEndpoints(t *testing.T) {
	var gotPorts string
	mux := http.NewServeMux()
	mux.HandleFunc(PathFanHealth, jsonHandler(http.StatusOK,
		`{"code":200,"data":{"bassoDevices":[{"portName":"COM10"},{"portName":"COM11"}]}}`))
	mux.HandleFunc(PathFanStatus, func(w http.ResponseWriter, r *http.Request) {
		gotPorts = r.URL.Query().Get("portNames")
		jsonHandler(http.StatusOK,
			`{"code":200,"data":{"ports":[{"portName":"COM10","fanStatus":"ON"},{"portName":"COM11","fanStatus":"UNKNOWN"}]}}`)(w, r)
	})

	c := newTestClient(t, mux)
	ports, err := c.FetchFanPorts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"COM10", "COM11"}, ports)

	status, err := c.FetchFanStatus(context.Background(), ports)
	require.NoError(t, err)
	assert.Equal(t, "COM10,COM11", gotPorts)
	require.Len(t, status, 2)
	assert.True(t, status[0].On())
	assert.False(t, status[1].On())
}

func TestFetchFanStatusWithoutPorts(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1"}, nil)
	status, err := c.FetchFanStatus(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, status)
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, "http://10.0.0.5:8080", BaseURL("10.0.0.5", 8080))
	assert.Equal(t, "http://[fe80::1]:8080", BaseURL("fe80::1", 8080))
}
