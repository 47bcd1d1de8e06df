package calibration

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kothalabs/kotha/pkg/dsp"
	"github.com/kothalabs/kotha/pkg/profile"
)

// Manager owns calibration sessions. Sessions are keyed by id; writes to a
// given session are serialized by the manager's lock, satisfying the
// one-writer-per-session discipline. All methods are safe for concurrent
// use.
type Manager struct {
	mu        sync.Mutex
	cfg       Config
	store     profile.Store
	transform dsp.Transform
	sessions  map[string]*Session
}

// New creates a Manager persisting profiles through store and using
// transform for sample frequency analysis.
func New(cfg Config, store profile.Store, transform dsp.Transform) *Manager {
	return &Manager{
		cfg:       cfg.withDefaults(),
		store:     store,
		transform: transform,
		sessions:  make(map[string]*Session),
	}
}

// Config returns a snapshot of the current configuration.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// UpdateConfig replaces the configuration. Sessions already started keep
// their step count.
func (m *Manager) UpdateConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg.withDefaults()
}

// StartCalibration opens a new active session bound to an existing voice
// profile. Unknown profile ids surface the store's [profile.ErrNotFound].
func (m *Manager) StartCalibration(ctx context.Context, profileID string) (Session, error) {
	if _, err := m.store.GetVoice(ctx, profileID); err != nil {
		return Session{}, fmt.Errorf("calibration: start for profile %q: %w", profileID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Session{
		ID:         uuid.NewString(),
		ProfileID:  profileID,
		Status:     StatusActive,
		StartedAt:  time.Now(),
		TotalSteps: m.cfg.steps(),
	}
	m.sessions[s.ID] = s

	slog.Info("calibration: session started", "session", s.ID, "profile", profileID, "steps", s.TotalSteps)
	return snapshot(s), nil
}

// Session returns a copy of the identified session.
func (m *Manager) Session(id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("calibration: session %q: %w", id, ErrSessionNotFound)
	}
	return snapshot(s), nil
}

// AddSample appends one labelled sample to an active session and advances
// its progress. Volume, frequency, duration and timestamp are derived from
// the frame when unset. Returns [ErrSessionNotActive] for terminal
// sessions and [ErrSessionFull] when the step count is exhausted.
func (m *Manager) AddSample(id string, sample Sample) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("calibration: add sample to %q: %w", id, ErrSessionNotFound)
	}
	if s.Status != StatusActive {
		return Session{}, fmt.Errorf("calibration: add sample to %q (%s): %w", id, s.Status, ErrSessionNotActive)
	}
	if len(s.Samples) >= s.TotalSteps {
		return Session{}, fmt.Errorf("calibration: add sample to %q: %w", id, ErrSessionFull)
	}

	if len(sample.Frame.Samples) > 0 {
		if sample.Volume == 0 {
			sample.Volume = dsp.RMS(sample.Frame.Samples)
		}
		if sample.Frequency == 0 && sample.Frame.SampleRate > 0 {
			mags := m.transform.Spectrum(sample.Frame.Samples)
			sample.Frequency = dsp.DominantFrequency(mags, len(sample.Frame.Samples), sample.Frame.SampleRate)
		}
		if sample.Duration == 0 {
			sample.Duration = sample.Frame.Duration()
		}
		sample.Frame = sample.Frame.Clone()
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}

	s.Samples = append(s.Samples, sample)
	s.CurrentStep = len(s.Samples)
	s.Progress = float64(s.CurrentStep) / float64(s.TotalSteps) * 100

	return snapshot(s), nil
}

// CompleteCalibration analyzes the session's samples, stores the derived
// calibration data and recognition accuracy onto the bound profile, and
// marks the session completed. The transition is terminal. Returns the
// updated profile.
func (m *Manager) CompleteCalibration(ctx context.Context, id string) (profile.VoiceProfile, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return profile.VoiceProfile{}, fmt.Errorf("calibration: complete %q: %w", id, ErrSessionNotFound)
	}
	if s.Status != StatusActive {
		m.mu.Unlock()
		return profile.VoiceProfile{}, fmt.Errorf("calibration: complete %q (%s): %w", id, s.Status, ErrSessionNotActive)
	}

	data, accuracy := analyzeSamples(s.Samples, m.cfg.AccuracyThreshold)
	sampleCount := len(s.Samples)
	profileID := s.ProfileID

	s.Status = StatusCompleted
	s.EndedAt = time.Now()
	m.mu.Unlock()

	p, err := m.store.GetVoice(ctx, profileID)
	if err != nil {
		return profile.VoiceProfile{}, fmt.Errorf("calibration: complete %q: load profile: %w", id, err)
	}
	p.Calibration = data
	p.RecognitionAccuracy = accuracy
	p.SampleCount = sampleCount
	p.UpdatedAt = time.Now()
	if err := m.store.UpdateVoice(ctx, p); err != nil {
		return profile.VoiceProfile{}, fmt.Errorf("calibration: complete %q: store profile: %w", id, err)
	}

	slog.Info("calibration: session completed",
		"session", id,
		"profile", profileID,
		"samples", sampleCount,
		"accuracy", accuracy,
	)
	return p, nil
}

// CancelCalibration marks an active session cancelled without touching the
// bound profile. The transition is terminal.
func (m *Manager) CancelCalibration(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("calibration: cancel %q: %w", id, ErrSessionNotFound)
	}
	if s.Status != StatusActive {
		return fmt.Errorf("calibration: cancel %q (%s): %w", id, s.Status, ErrSessionNotActive)
	}
	s.Status = StatusCancelled
	s.EndedAt = time.Now()
	return nil
}

// snapshot copies a session so callers cannot mutate manager state.
// Callers hold m.mu.
func snapshot(s *Session) Session {
	out := *s
	out.Samples = make([]Sample, len(s.Samples))
	copy(out.Samples, s.Samples)
	return out
}
