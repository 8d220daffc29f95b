package session

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Siddamnn/SpeakMind/component"
	"github.com/Siddamnn/SpeakMind/telemetry"
)

func TestComputeIndices(t *testing.T) {
	tests := []struct {
		name string
		avg  Bands
		want Indices
	}{
		{
			name: "zero input",
			avg:  Bands{},
			want: Indices{},
		},
		{
			name: "typical",
			avg:  Bands{Alpha: 10, Beta: 12, Theta: 8},
			want: Indices{
				Focus:        12.0 / 19.0 * 50,
				Stress:       12.0 / 11.0 * 30,
				Relaxation:   10.0 / 13.0 * 40,
				SleepQuality: 8.0 / 13.0 * 60,
			},
		},
		{
			name: "clamped high",
			avg:  Bands{Beta: 100},
			want: Indices{Focus: 100, Stress: 100},
		},
		{
			name: "relaxed",
			avg:  Bands{Alpha: 20, Theta: 5},
			want: Indices{Relaxation: 100, SleepQuality: 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeIndices(tt.avg)
			assert.InDelta(t, tt.want.Focus, got.Focus, 1e-9)
			assert.InDelta(t, tt.want.Stress, got.Stress, 1e-9)
			assert.InDelta(t, tt.want.Relaxation, got.Relaxation, 1e-9)
			assert.InDelta(t, tt.want.SleepQuality, got.SleepQuality, 1e-9)
		})
	}
}

func TestLabel(t *testing.T) {
	tests := []struct {
		ix   Indices
		want Labels
	}{
		{Indices{Focus: 70, Stress: 30, Relaxation: 70, SleepQuality: 70},
			Labels{"excellent", "low", "deep", "healthy"}},
		{Indices{Focus: 50, Stress: 60, Relaxation: 69.9, SleepQuality: 10},
			Labels{"good", "moderate", "shallow", "needs attention"}},
		{Indices{Focus: 49.9, Stress: 60.1},
			Labels{"needs improvement", "high", "shallow", "needs attention"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Label(tt.ix))
	}
}

func TestRecommend(t *testing.T) {
	all := Recommend(Indices{Focus: 10, Stress: 90, Relaxation: 10})
	assert.Len(t, all, 4)

	none := Recommend(Indices{Focus: 80, Stress: 10, Relaxation: 80})
	assert.Equal(t, []string{"Continue regular practice to see long-term benefits"}, none)
}

func newTestTracker(clock *time.Time) *Tracker {
	tr := NewTracker(nil)
	tr.now = func() time.Time { return *clock }
	tr.started = *clock
	return tr
}

func TestTracker_RunningAverages(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	tr := newTestTracker(&clock)

	ctx := context.Background()
	tr.Broadcast(ctx, telemetry.Event{Alpha: 8, Beta: 10, Theta: 6, Delta: 2, Gamma: 1})
	tr.Broadcast(ctx, telemetry.Event{Alpha: 12, Beta: 14, Theta: 10, Delta: 4, Gamma: 3})
	clock = clock.Add(90 * time.Second)

	s := tr.Summary()
	assert.Equal(t, int64(2), s.Samples)
	assert.Equal(t, Bands{Alpha: 10, Beta: 12, Theta: 8, Delta: 3, Gamma: 2}, s.Averages)
	assert.InDelta(t, 90.0, s.DurationSeconds, 1e-9)
	assert.Equal(t, ComputeIndices(s.Averages), s.Indices)
	assert.Equal(t, "needs improvement", s.Labels.Focus)
	assert.Equal(t, "moderate", s.Labels.Stress)
}

func TestTracker_Reset(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	tr := newTestTracker(&clock)
	tr.Broadcast(context.Background(), telemetry.Event{Alpha: 5})

	clock = clock.Add(time.Minute)
	prev := tr.Reset()
	assert.Equal(t, int64(1), prev.Samples)
	assert.Equal(t, 5.0, prev.Averages.Alpha)

	cur := tr.Summary()
	assert.Equal(t, int64(0), cur.Samples)
	assert.Equal(t, Bands{}, cur.Averages)
	assert.Equal(t, clock, cur.StartedAt)
	assert.Zero(t, cur.DurationSeconds)
}

func TestTracker_ResetLosesNoEvents(t *testing.T) {
	tr := NewTracker(&component.Dependencies{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	const writers, perWriter = 4, 500
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				tr.Broadcast(context.Background(), telemetry.Event{Alpha: 1})
			}
		}()
	}

	done := make(chan struct{})
	var ended int64
	go func() {
		defer close(done)
		for k := 0; k < 200; k++ {
			ended += tr.Reset().Samples
		}
	}()

	wg.Wait()
	<-done
	assert.Equal(t, int64(writers*perWriter), ended+tr.Summary().Samples)
}

func TestTracker_Handlers(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	tr := newTestTracker(&clock)
	tr.Broadcast(context.Background(), telemetry.Event{Alpha: 10, Beta: 12, Theta: 8})

	rec := httptest.NewRecorder()
	tr.SummaryHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/session", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(1), got.Samples)
	assert.Equal(t, "shallow", got.Labels.Relaxation)

	rec = httptest.NewRecorder()
	tr.SummaryHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/session", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	tr.ResetHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/session/reset", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	tr.ResetHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/session/reset", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(1), got.Samples)
	assert.Equal(t, int64(0), tr.Summary().Samples)
}
