package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Siddamnn/SpeakMind/component"
)

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string", "", ""},
		{"serial device path", "open /dev/ttyUSB0: no such file or directory", "open [PATH]: no such file or directory"},
		{"windows path", "cannot read C:\\Users\\eeg\\session.db", "cannot read [PATH]"},
		{"nats url", "cannot connect to nats://localhost:4222", "cannot connect to [URL]"},
		{"websocket url", "dial ws://10.0.0.5:8080/eeg failed", "dial [URL] failed"},
		{"ip address", "timeout connecting to 192.168.1.100", "timeout connecting to [IP]"},
		{"port", "failed to bind to :8080", "failed to bind to [PORT]"},
		{"credentials", "auth failed token=abc123", "auth failed [REDACTED]"},
		{"plain message", "Serial port not open", "Serial port not open"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeErrorMessage(tt.input))
		})
	}
}

func TestFromComponentHealth(t *testing.T) {
	now := time.Now()

	healthy := FromComponentHealth("hub", component.HealthStatus{Healthy: true, LastCheck: now, Uptime: time.Minute})
	assert.True(t, healthy.IsHealthy())
	assert.True(t, healthy.Healthy)
	assert.Equal(t, "hub", healthy.Component)
	assert.Equal(t, time.Minute, healthy.Metrics.Uptime)

	degraded := FromComponentHealth("nats-mirror", component.HealthStatus{Healthy: true, Degraded: true})
	assert.True(t, degraded.IsDegraded())
	assert.False(t, degraded.Healthy)

	unhealthy := FromComponentHealth("serial-input", component.HealthStatus{
		Healthy:    false,
		ErrorCount: 2,
		LastError:  "open /dev/ttyACM0: permission denied",
	})
	assert.True(t, unhealthy.IsUnhealthy())
	assert.Equal(t, "open [PATH]: permission denied", unhealthy.Message)
	assert.Equal(t, 2, unhealthy.Metrics.ErrorCount)
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		subs     []Status
		expected string
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, StatusHealthy},
		{"one degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, StatusDegraded},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", "")}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := Aggregate("eegbridge", tt.subs)
			assert.Equal(t, tt.expected, agg.Status)
			assert.Len(t, agg.SubStatuses, len(tt.subs))
		})
	}
}

func TestAggregate_CopiesSubStatuses(t *testing.T) {
	subs := []Status{NewHealthy("a", "ok")}
	agg := Aggregate("x", subs)
	subs[0].Message = "changed"
	assert.Equal(t, "ok", agg.SubStatuses[0].Message)
}
