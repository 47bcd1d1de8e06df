package profile

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
// It is the default backend for single-process use and testing.
type MemStore struct {
	mu    sync.RWMutex
	voice map[string]VoiceProfile
	noise map[string]NoiseProfile
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		voice: make(map[string]VoiceProfile),
		noise: make(map[string]NoiseProfile),
	}
}

// AddVoice implements [Store.AddVoice].
func (s *MemStore) AddVoice(ctx context.Context, p VoiceProfile) (VoiceProfile, error) {
	if p.ID == "" {
		id, err := generateID()
		if err != nil {
			return VoiceProfile{}, fmt.Errorf("profile: generate id: %w", err)
		}
		p.ID = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.voice[p.ID]; exists {
		return VoiceProfile{}, ErrDuplicateID
	}
	s.voice[p.ID] = p
	return p, nil
}

// GetVoice implements [Store.GetVoice].
func (s *MemStore) GetVoice(ctx context.Context, id string) (VoiceProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.voice[id]
	if !ok {
		return VoiceProfile{}, ErrNotFound
	}
	return p, nil
}

// ListVoice implements [Store.ListVoice].
func (s *MemStore) ListVoice(ctx context.Context) ([]VoiceProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]VoiceProfile, 0, len(s.voice))
	for _, p := range s.voice {
		result = append(result, p)
	}
	return result, nil
}

// UpdateVoice implements [Store.UpdateVoice].
func (s *MemStore) UpdateVoice(ctx context.Context, p VoiceProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.voice[p.ID]; !ok {
		return ErrNotFound
	}
	s.voice[p.ID] = p
	return nil
}

// RemoveVoice implements [Store.RemoveVoice].
func (s *MemStore) RemoveVoice(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.voice[id]; !ok {
		return ErrNotFound
	}
	delete(s.voice, id)
	return nil
}

// SaveNoise implements [Store.SaveNoise].
func (s *MemStore) SaveNoise(ctx context.Context, p NoiseProfile) error {
	if p.ID == "" {
		return fmt.Errorf("profile: noise profile ID must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.noise[p.ID] = p.Clone()
	return nil
}

// GetNoise implements [Store.GetNoise].
func (s *MemStore) GetNoise(ctx context.Context, id string) (NoiseProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.noise[id]
	if !ok {
		return NoiseProfile{}, ErrNotFound
	}
	return p.Clone(), nil
}

// ListNoise implements [Store.ListNoise].
func (s *MemStore) ListNoise(ctx context.Context) ([]NoiseProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]NoiseProfile, 0, len(s.noise))
	for _, p := range s.noise {
		result = append(result, p.Clone())
	}
	return result, nil
}

// RemoveNoise implements [Store.RemoveNoise].
func (s *MemStore) RemoveNoise(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.noise[id]; !ok {
		return ErrNotFound
	}
	delete(s.noise, id)
	return nil
}

// generateID produces a random 16-byte hex string using crypto/rand.
func generateID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
