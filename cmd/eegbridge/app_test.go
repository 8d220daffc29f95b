package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Siddamnn/SpeakMind/component"
	"github.com/Siddamnn/SpeakMind/input/serial"
	"github.com/Siddamnn/SpeakMind/metric"
	"github.com/Siddamnn/SpeakMind/output/recorder"
	"github.com/Siddamnn/SpeakMind/output/websocket"
	"github.com/Siddamnn/SpeakMind/telemetry"
)

func testConfig() *Config {
	return &Config{
		SerialPort:      "COM7",
		LogLevel:        "info",
		LogFormat:       "text",
		NATSSubject:     "eeg.telemetry",
		ShutdownTimeout: 2 * time.Second,
	}
}

func testDeps() *component.Dependencies {
	return &component.Dependencies{
		MetricsRegistry: metric.NewMetricsRegistry(),
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestApp_SerialToWebSocketAndRecorder(t *testing.T) {
	pr, pw := io.Pipe()
	opener := func(string, int) (serial.LineSource, error) {
		return serial.NewLineReader(pr), nil
	}

	cfg := testConfig()
	cfg.RecordDB = filepath.Join(t.TempDir(), "session.db")

	a, err := newApp(cfg, testDeps(), opener)
	require.NoError(t, err)
	require.NoError(t, a.start(context.Background()))

	conn, _, err := gws.DefaultDialer.Dial("ws://"+a.hub.Addr()+websocket.Path, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return a.hub.SubscriberCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	go func() {
		_, _ = io.WriteString(pw, "S,1000,612\r\nnot a sample\n700\n")
	}()

	var events []telemetry.Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for len(events) < 2 {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var ev telemetry.Event
		require.NoError(t, json.Unmarshal(data, &ev))
		events = append(events, ev)
	}

	// |612-512| * 0.1 = 10, first step from zero moves 10% of the way
	assert.InDelta(t, 1.0, events[0].Alpha, 1e-9)
	assert.Greater(t, events[1].Alpha, events[0].Alpha)
	assert.LessOrEqual(t, events[0].Timestamp, events[1].Timestamp)

	require.Eventually(t, func() bool {
		accepted, skipped := a.bridge.Counts()
		return accepted == 2 && skipped == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(2), a.tracker.Summary().Samples)

	require.NoError(t, a.stop())
	assert.Equal(t, serial.StateClosed, a.driver.State())

	recorded, err := recorder.Recent(context.Background(), cfg.RecordDB, 10)
	require.NoError(t, err)
	require.Len(t, recorded, 2)
	assert.Equal(t, events[0], recorded[0])
	assert.Equal(t, events[1], recorded[1])
}

func TestApp_OpenFailureKeepsServing(t *testing.T) {
	opener := func(string, int) (serial.LineSource, error) {
		return nil, io.ErrUnexpectedEOF
	}

	a, err := newApp(testConfig(), testDeps(), opener)
	require.NoError(t, err)
	require.NoError(t, a.start(context.Background()))

	conn, _, err := gws.DefaultDialer.Dial("ws://"+a.hub.Addr()+websocket.Path, nil)
	require.NoError(t, err, "hub keeps accepting subscribers without a device")
	_ = conn.Close()

	assert.Equal(t, serial.StateClosed, a.driver.State())
	assert.False(t, a.driver.Health().Healthy)

	require.NoError(t, a.stop())
}

func TestApp_StopOrder(t *testing.T) {
	cfg := testConfig()
	cfg.RecordDB = filepath.Join(t.TempDir(), "order.db")

	a, err := newApp(cfg, testDeps(), nil)
	require.NoError(t, err)

	var names []string
	for _, c := range a.group.Components() {
		names = append(names, c.Meta().Name)
	}
	// the group stops in reverse, so the serial driver goes first
	assert.Equal(t, []string{"recorder", "websocket-hub", "serial-input"}, names)
}

func TestApp_StatusRoutes(t *testing.T) {
	cfg := testConfig()
	cfg.StatusPort = 9090

	a, err := newApp(cfg, testDeps(), nil)
	require.NoError(t, err)
	require.NotNil(t, a.status)
	handler := a.status.Handler()

	tests := []struct {
		method string
		path   string
		code   int
		body   string
	}{
		// nothing is started, so the serial input is unhealthy
		{http.MethodGet, "/health", http.StatusServiceUnavailable, "serial-input"},
		{http.MethodGet, "/session", http.StatusOK, `"samples":0`},
		{http.MethodGet, "/session/reset", http.StatusMethodNotAllowed, ""},
		{http.MethodPost, "/session/reset", http.StatusOK, `"samples":0`},
		{http.MethodGet, "/metrics", http.StatusOK, "eegbridge_"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.code, rec.Code)
			assert.True(t, strings.Contains(rec.Body.String(), tt.body), rec.Body.String())
		})
	}
}

func TestApp_NoStatusServerWhenDisabled(t *testing.T) {
	a, err := newApp(testConfig(), testDeps(), nil)
	require.NoError(t, err)
	assert.Nil(t, a.status)
}
