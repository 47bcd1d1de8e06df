package app

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/kothalabs/kotha/internal/observe"
	"github.com/kothalabs/kotha/pkg/calibration"
	"github.com/kothalabs/kotha/pkg/language"
	"github.com/kothalabs/kotha/pkg/pipeline"
	"github.com/kothalabs/kotha/pkg/profile"
)

// api exposes the daemon's request/response surface: the text path of the
// pipeline (speech-to-text runs elsewhere; recognized text arrives here),
// voice profile management, and guided calibration sessions.
type api struct {
	pipe    *pipeline.Orchestrator
	store   profile.Store
	metrics *observe.Metrics
}

// register adds all /v1 routes to mux.
func (s *api) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/input", s.handleInput)
	mux.HandleFunc("GET /v1/history", s.handleHistory)

	mux.HandleFunc("GET /v1/profiles", s.handleListProfiles)
	mux.HandleFunc("POST /v1/profiles", s.handleCreateProfile)
	mux.HandleFunc("GET /v1/profiles/export", s.handleExportProfiles)
	mux.HandleFunc("GET /v1/profiles/{id}", s.handleGetProfile)
	mux.HandleFunc("DELETE /v1/profiles/{id}", s.handleRemoveProfile)
	mux.HandleFunc("GET /v1/profiles/{id}/settings", s.handleOptimalSettings)

	mux.HandleFunc("POST /v1/calibration", s.handleStartCalibration)
	mux.HandleFunc("GET /v1/calibration/{id}", s.handleGetSession)
	mux.HandleFunc("POST /v1/calibration/{id}/samples", s.handleAddSample)
	mux.HandleFunc("POST /v1/calibration/{id}/complete", s.handleCompleteSession)
	mux.HandleFunc("DELETE /v1/calibration/{id}", s.handleCancelSession)
}

// --- Text path ---

// inputRequest carries one recognized utterance into the pipeline.
type inputRequest struct {
	// Text is the transcribed utterance.
	Text string `json:"text"`

	// Language is the caller's current language ("bn" or "en").
	Language language.Tag `json:"language"`
}

// inputResponse is the flattened pipeline result for one utterance.
type inputResponse struct {
	Text               string       `json:"text"`
	ProcessedText      string       `json:"processed_text"`
	Language           language.Tag `json:"language,omitempty"`
	LanguageConfidence float64      `json:"language_confidence,omitempty"`

	Command *commandResponse `json:"command,omitempty"`

	VoiceActive     bool      `json:"voice_active"`
	Recommendations []string  `json:"recommendations,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// commandResponse describes a matched voice command.
type commandResponse struct {
	ID         string            `json:"id"`
	Action     string            `json:"action"`
	Confidence float64           `json:"confidence"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

func (s *api) handleInput(w http.ResponseWriter, r *http.Request) {
	var req inputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Language != "" && !req.Language.IsValid() {
		writeError(w, http.StatusBadRequest, "invalid language tag")
		return
	}

	res := s.pipe.ProcessVoiceInput(r.Context(), req.Text, nil, req.Language)

	resp := inputResponse{
		Text:            res.Text,
		ProcessedText:   res.ProcessedText,
		Recommendations: res.Recommendations,
		Timestamp:       res.Timestamp,
	}
	if res.Detection != nil {
		resp.Language = res.Language
		resp.LanguageConfidence = res.LanguageConfidence
	}
	if res.Command != nil {
		resp.Command = &commandResponse{
			ID:         res.Command.Command.ID,
			Action:     string(res.Command.Command.Action),
			Confidence: res.Command.Confidence,
			Parameters: res.Command.Parameters,
		}
	}
	if res.Voice != nil {
		resp.VoiceActive = res.Voice.VoiceActive
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *api) handleHistory(w http.ResponseWriter, _ *http.Request) {
	history := s.pipe.History()
	out := make([]inputResponse, 0, len(history))
	for _, res := range history {
		entry := inputResponse{
			Text:            res.Text,
			ProcessedText:   res.ProcessedText,
			Language:        res.Language,
			Recommendations: res.Recommendations,
			Timestamp:       res.Timestamp,
		}
		if res.Detection != nil {
			entry.LanguageConfidence = res.LanguageConfidence
		}
		if res.Command != nil {
			entry.Command = &commandResponse{
				ID:         res.Command.Command.ID,
				Action:     string(res.Command.Command.Action),
				Confidence: res.Command.Confidence,
				Parameters: res.Command.Parameters,
			}
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, out)
}

// --- Profiles ---

// createProfileRequest names a new voice profile.
type createProfileRequest struct {
	ID       string       `json:"id,omitempty"`
	Name     string       `json:"name"`
	Language language.Tag `json:"language,omitempty"`
}

func (s *api) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.store.ListVoice(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (s *api) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req createProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	lang := req.Language
	if lang == "" {
		lang = language.English
	}
	if !lang.IsValid() {
		writeError(w, http.StatusBadRequest, "invalid language tag")
		return
	}

	p, err := s.store.AddVoice(r.Context(), profile.VoiceProfile{
		ID:       req.ID,
		Name:     req.Name,
		Language: lang,
	})
	if err != nil {
		if errors.Is(err, profile.ErrDuplicateID) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *api) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetVoice(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *api) handleRemoveProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.store.RemoveVoice(r.Context(), r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *api) handleExportProfiles(w http.ResponseWriter, r *http.Request) {
	switch format := r.URL.Query().Get("format"); format {
	case "", "yaml":
		w.Header().Set("Content-Type", "application/yaml")
		if err := profile.ExportYAML(r.Context(), s.store, w); err != nil {
			slog.Warn("profile export failed", "format", "yaml", "err", err)
		}
	case "json":
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if err := profile.ExportJSON(r.Context(), s.store, w); err != nil {
			slog.Warn("profile export failed", "format", "json", "err", err)
		}
	default:
		writeError(w, http.StatusBadRequest, "unknown export format "+format)
	}
}

func (s *api) handleOptimalSettings(w http.ResponseWriter, r *http.Request) {
	if !s.calibrationAvailable() {
		writeError(w, http.StatusServiceUnavailable, "calibration is not available")
		return
	}

	settings, err := s.pipe.Calibration().OptimalSettings(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if settings == nil {
		writeError(w, http.StatusConflict, "profile has not been calibrated")
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{
		VADThreshold:        settings.VADThreshold,
		SynthesisRate:       settings.SynthesisRate,
		RecognitionLanguage: settings.RecognitionLanguage,
		NoiseAggressiveness: settings.NoiseAggressiveness,
	})
}

// settingsResponse is the JSON shape of derived optimal settings.
type settingsResponse struct {
	VADThreshold        float64      `json:"vad_threshold"`
	SynthesisRate       float64      `json:"synthesis_rate"`
	RecognitionLanguage language.Tag `json:"recognition_language"`
	NoiseAggressiveness float64      `json:"noise_aggressiveness"`
}

// --- Calibration sessions ---

// startCalibrationRequest binds a new session to a voice profile.
type startCalibrationRequest struct {
	ProfileID string `json:"profile_id"`
}

// sessionResponse is the JSON shape of a calibration session, including
// the prompts for the profile's language so clients can guide the speaker.
type sessionResponse struct {
	ID        string             `json:"id"`
	ProfileID string             `json:"profile_id"`
	Status    calibration.Status `json:"status"`

	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	Progress    float64 `json:"progress"`
	CurrentStep int     `json:"current_step"`
	TotalSteps  int     `json:"total_steps"`

	Prompts []string `json:"prompts,omitempty"`
}

func toSessionResponse(sess calibration.Session) sessionResponse {
	resp := sessionResponse{
		ID:          sess.ID,
		ProfileID:   sess.ProfileID,
		Status:      sess.Status,
		StartedAt:   sess.StartedAt,
		Progress:    sess.Progress,
		CurrentStep: sess.CurrentStep,
		TotalSteps:  sess.TotalSteps,
	}
	if !sess.EndedAt.IsZero() {
		resp.EndedAt = &sess.EndedAt
	}
	return resp
}

// sampleRequest is one labelled calibration recording. Audio is optional;
// volume and frequency can be supplied directly for pre-analyzed samples.
type sampleRequest struct {
	Prompt     string  `json:"prompt"`
	Expected   string  `json:"expected"`
	Recognized string  `json:"recognized"`
	Confidence float64 `json:"confidence"`
	DurationMs int     `json:"duration_ms"`
	Volume     float64 `json:"volume"`
	Frequency  float64 `json:"frequency"`
}

func (s *api) handleStartCalibration(w http.ResponseWriter, r *http.Request) {
	if !s.calibrationAvailable() {
		writeError(w, http.StatusServiceUnavailable, "calibration is not available")
		return
	}

	var req startCalibrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ProfileID == "" {
		writeError(w, http.StatusBadRequest, "profile_id is required")
		return
	}

	sess, err := s.pipe.Calibration().StartCalibration(r.Context(), req.ProfileID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.metrics.ActiveCalibrations.Add(r.Context(), 1)

	resp := toSessionResponse(sess)
	if p, err := s.store.GetVoice(r.Context(), req.ProfileID); err == nil {
		resp.Prompts = calibration.DefaultPrompts(p.Language)
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *api) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.pipe.Calibration().Session(r.PathValue("id"))
	if err != nil {
		writeCalibrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (s *api) handleAddSample(w http.ResponseWriter, r *http.Request) {
	var req sampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	sess, err := s.pipe.Calibration().AddSample(r.PathValue("id"), calibration.Sample{
		Prompt:     req.Prompt,
		Expected:   req.Expected,
		Recognized: req.Recognized,
		Confidence: req.Confidence,
		Duration:   time.Duration(req.DurationMs) * time.Millisecond,
		Volume:     req.Volume,
		Frequency:  req.Frequency,
	})
	if err != nil {
		writeCalibrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (s *api) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	p, err := s.pipe.Calibration().CompleteCalibration(r.Context(), r.PathValue("id"))
	if err != nil {
		writeCalibrationError(w, err)
		return
	}
	s.metrics.ActiveCalibrations.Add(r.Context(), -1)
	writeJSON(w, http.StatusOK, p)
}

func (s *api) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	if err := s.pipe.Calibration().CancelCalibration(r.PathValue("id")); err != nil {
		writeCalibrationError(w, err)
		return
	}
	s.metrics.ActiveCalibrations.Add(r.Context(), -1)
	w.WriteHeader(http.StatusNoContent)
}

// calibrationAvailable reports whether the calibration feature came up
// during pipeline initialization.
func (s *api) calibrationAvailable() bool {
	return s.pipe.FeatureStatus()[pipeline.FeatureCalibration].Available
}

// --- Response helpers ---

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeStoreError maps profile store errors onto HTTP status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, profile.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, profile.ErrDuplicateID):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeCalibrationError maps calibration manager errors onto HTTP status
// codes.
func writeCalibrationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, calibration.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, calibration.ErrSessionNotActive),
		errors.Is(err, calibration.ErrSessionFull):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, profile.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
