// Package session keeps running band averages for the current meditation
// session and derives the summary indices shown at the end of it.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/Siddamnn/SpeakMind/component"
	"github.com/Siddamnn/SpeakMind/telemetry"
)

// Bands holds one value per channel.
type Bands struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Theta float64 `json:"theta"`
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
}

// Indices are the derived session scores, each in [0, 100].
type Indices struct {
	Focus        float64 `json:"focus"`
	Stress       float64 `json:"stress"`
	Relaxation   float64 `json:"relaxation"`
	SleepQuality float64 `json:"sleep_quality"`
}

// Labels are the qualitative readings of Indices.
type Labels struct {
	Focus        string `json:"focus"`
	Stress       string `json:"stress"`
	Relaxation   string `json:"relaxation"`
	SleepQuality string `json:"sleep_quality"`
}

// Summary describes the session since the last reset.
type Summary struct {
	Samples         int64     `json:"samples"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	Averages        Bands     `json:"averages"`
	Indices         Indices   `json:"indices"`
	Labels          Labels    `json:"labels"`
	Recommendations []string  `json:"recommendations"`
}

// ComputeIndices derives the session scores from band averages.
func ComputeIndices(avg Bands) Indices {
	return Indices{
		Focus:        clamp(avg.Beta / (avg.Alpha + avg.Theta + 1) * 50),
		Stress:       clamp(avg.Beta / (avg.Alpha + 1) * 30),
		Relaxation:   clamp(avg.Alpha / (avg.Beta + 1) * 40),
		SleepQuality: clamp(avg.Theta / (avg.Beta + 1) * 60),
	}
}

// Label maps indices to their qualitative description.
func Label(ix Indices) Labels {
	var l Labels
	switch {
	case ix.Focus >= 70:
		l.Focus = "excellent"
	case ix.Focus >= 50:
		l.Focus = "good"
	default:
		l.Focus = "needs improvement"
	}
	switch {
	case ix.Stress <= 30:
		l.Stress = "low"
	case ix.Stress <= 60:
		l.Stress = "moderate"
	default:
		l.Stress = "high"
	}
	if ix.Relaxation >= 70 {
		l.Relaxation = "deep"
	} else {
		l.Relaxation = "shallow"
	}
	if ix.SleepQuality >= 70 {
		l.SleepQuality = "healthy"
	} else {
		l.SleepQuality = "needs attention"
	}
	return l
}

// Recommend returns practice suggestions for ix. The last entry is always
// the general one.
func Recommend(ix Indices) []string {
	var out []string
	if ix.Focus < 50 {
		out = append(out, "Try focus meditation exercises to improve concentration")
	}
	if ix.Stress > 60 {
		out = append(out, "Practice deep breathing to reduce stress")
	}
	if ix.Relaxation < 60 {
		out = append(out, "Extend meditation sessions for deeper relaxation")
	}
	return append(out, "Continue regular practice to see long-term benefits")
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(100, math.Max(0, v))
}

// Tracker accumulates every broadcast event into running averages.
type Tracker struct {
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	sums    Bands
	count   int64
	started time.Time
}

// NewTracker creates a Tracker whose session starts now.
func NewTracker(deps *component.Dependencies) *Tracker {
	t := &Tracker{
		logger: deps.GetLoggerWithComponent("session"),
		now:    time.Now,
	}
	t.started = t.now()
	return t
}

// Broadcast adds one event to the running sums.
func (t *Tracker) Broadcast(_ context.Context, ev telemetry.Event) {
	t.mu.Lock()
	t.sums.Alpha += ev.Alpha
	t.sums.Beta += ev.Beta
	t.sums.Theta += ev.Theta
	t.sums.Delta += ev.Delta
	t.sums.Gamma += ev.Gamma
	t.count++
	t.mu.Unlock()
}

// Summary returns the averages and indices since the last reset.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	sums, count, started := t.sums, t.count, t.started
	t.mu.Unlock()

	return summarize(sums, count, started, t.now())
}

// Reset starts a new session and returns the summary of the one it ended.
// Every event lands in exactly one of the two sessions.
func (t *Tracker) Reset() Summary {
	t.mu.Lock()
	sums, count, started := t.sums, t.count, t.started
	now := t.now()
	t.sums = Bands{}
	t.count = 0
	t.started = now
	t.mu.Unlock()

	prev := summarize(sums, count, started, now)
	t.logger.Info("Session reset", "samples", prev.Samples,
		"focus", prev.Indices.Focus, "stress", prev.Indices.Stress)
	return prev
}

func summarize(sums Bands, count int64, started, now time.Time) Summary {
	var avg Bands
	if count > 0 {
		n := float64(count)
		avg = Bands{
			Alpha: sums.Alpha / n,
			Beta:  sums.Beta / n,
			Theta: sums.Theta / n,
			Delta: sums.Delta / n,
			Gamma: sums.Gamma / n,
		}
	}
	ix := ComputeIndices(avg)

	return Summary{
		Samples:         count,
		StartedAt:       started,
		DurationSeconds: now.Sub(started).Seconds(),
		Averages:        avg,
		Indices:         ix,
		Labels:          Label(ix),
		Recommendations: Recommend(ix),
	}
}

// SummaryHandler serves GET requests with the current Summary as JSON.
func (t *Tracker) SummaryHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		t.writeJSON(w, t.Summary())
	})
}

// ResetHandler serves POST requests by resetting the session. The response
// is the summary of the session that was ended.
func (t *Tracker) ResetHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		t.writeJSON(w, t.Reset())
	})
}

func (t *Tracker) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.logger.Warn("Failed to write session response", "error", err)
	}
}
