package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kothalabs/kotha/internal/app"
	"github.com/kothalabs/kotha/internal/observe"
	"github.com/kothalabs/kotha/pkg/profile"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// doJSON performs one request against the app's HTTP surface and decodes
// the JSON response body into out (when non-nil).
func doJSON(t *testing.T, a *app.App, method, path string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if out != nil && rec.Body.Len() > 0 {
		if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode response body %q: %v", rec.Body.String(), err)
		}
	}
	return rec
}

func TestAPI_ProfileLifecycle(t *testing.T) {
	a := newTestApp(t, testConfig())

	// Create.
	var created profile.VoiceProfile
	rec := doJSON(t, a, "POST", "/v1/profiles",
		map[string]any{"id": "alice", "name": "Alice", "language": "bn"}, &created)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body)
	}
	if created.ID != "alice" || created.Name != "Alice" {
		t.Errorf("created profile = %+v", created)
	}

	// Duplicate ID conflicts.
	rec = doJSON(t, a, "POST", "/v1/profiles",
		map[string]any{"id": "alice", "name": "Alice Again"}, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate: status = %d, want %d", rec.Code, http.StatusConflict)
	}

	// Get.
	var got profile.VoiceProfile
	rec = doJSON(t, a, "GET", "/v1/profiles/alice", nil, &got)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got.Language != "bn" {
		t.Errorf("language: got %q, want %q", got.Language, "bn")
	}

	// List.
	var list []profile.VoiceProfile
	rec = doJSON(t, a, "GET", "/v1/profiles", nil, &list)
	if rec.Code != http.StatusOK || len(list) != 1 {
		t.Errorf("list: status = %d, len = %d, want 200 and 1", rec.Code, len(list))
	}

	// Delete.
	rec = doJSON(t, a, "DELETE", "/v1/profiles/alice", nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete: status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	rec = doJSON(t, a, "GET", "/v1/profiles/alice", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestAPI_CreateProfileValidation(t *testing.T) {
	a := newTestApp(t, testConfig())

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing name", map[string]any{"id": "x"}},
		{"invalid language", map[string]any{"name": "X", "language": "fr"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, a, "POST", "/v1/profiles", tt.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestAPI_InputMatchesCommand(t *testing.T) {
	a := newTestApp(t, testConfig())

	var resp struct {
		ProcessedText string `json:"processed_text"`
		Command       *struct {
			Action     string            `json:"action"`
			Parameters map[string]string `json:"parameters"`
		} `json:"command"`
	}
	rec := doJSON(t, a, "POST", "/v1/input",
		map[string]any{"text": "please switch to bangla now", "language": "en"}, &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}

	if resp.ProcessedText != "please switch to bangla now" {
		t.Errorf("processed_text = %q", resp.ProcessedText)
	}
	if resp.Command == nil {
		t.Fatal("expected a matched command")
	}
	if resp.Command.Action != "switch_language" {
		t.Errorf("action = %q, want switch_language", resp.Command.Action)
	}
	if resp.Command.Parameters["param0"] != "bn" {
		t.Errorf("param0 = %q, want bn", resp.Command.Parameters["param0"])
	}

	// The utterance lands in history.
	var history []struct {
		Text string `json:"text"`
	}
	rec = doJSON(t, a, "GET", "/v1/history", nil, &history)
	if rec.Code != http.StatusOK || len(history) != 1 {
		t.Fatalf("history: status = %d, len = %d, want 200 and 1", rec.Code, len(history))
	}
}

func TestAPI_InputRejectsInvalidLanguage(t *testing.T) {
	a := newTestApp(t, testConfig())

	rec := doJSON(t, a, "POST", "/v1/input",
		map[string]any{"text": "hello", "language": "xx"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestAPI_CalibrationFlow(t *testing.T) {
	a := newTestApp(t, testConfig())

	rec := doJSON(t, a, "POST", "/v1/profiles",
		map[string]any{"id": "bob", "name": "Bob", "language": "en"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create profile: status = %d", rec.Code)
	}

	// Unknown profile → 404.
	rec = doJSON(t, a, "POST", "/v1/calibration",
		map[string]any{"profile_id": "ghost"}, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown profile: status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	// Start.
	var sess struct {
		ID         string   `json:"id"`
		Status     string   `json:"status"`
		TotalSteps int      `json:"total_steps"`
		Prompts    []string `json:"prompts"`
	}
	rec = doJSON(t, a, "POST", "/v1/calibration",
		map[string]any{"profile_id": "bob"}, &sess)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start: status = %d: %s", rec.Code, rec.Body)
	}
	if sess.Status != "active" || sess.ID == "" {
		t.Errorf("session = %+v", sess)
	}
	if len(sess.Prompts) == 0 {
		t.Error("expected calibration prompts for the profile language")
	}

	// Two samples: one recognized perfectly, one garbled.
	samples := []map[string]any{
		{
			"expected":    "hello world",
			"recognized":  "hello world",
			"duration_ms": 1000,
			"volume":      0.1,
		},
		{
			"expected":    "good morning",
			"recognized":  "mud borning",
			"duration_ms": 1000,
			"volume":      0.1,
		},
	}
	for i, s := range samples {
		var progress struct {
			CurrentStep int `json:"current_step"`
		}
		rec = doJSON(t, a, "POST", "/v1/calibration/"+sess.ID+"/samples", s, &progress)
		if rec.Code != http.StatusOK {
			t.Fatalf("sample %d: status = %d: %s", i, rec.Code, rec.Body)
		}
		if progress.CurrentStep != i+1 {
			t.Errorf("sample %d: current_step = %d, want %d", i, progress.CurrentStep, i+1)
		}
	}

	// Complete.
	var p profile.VoiceProfile
	rec = doJSON(t, a, "POST", "/v1/calibration/"+sess.ID+"/complete", nil, &p)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: status = %d: %s", rec.Code, rec.Body)
	}
	if p.SampleCount != 2 {
		t.Errorf("sample count = %d, want 2", p.SampleCount)
	}
	if p.RecognitionAccuracy != 0.5 {
		t.Errorf("accuracy = %v, want 0.5", p.RecognitionAccuracy)
	}

	// Completing again conflicts.
	rec = doJSON(t, a, "POST", "/v1/calibration/"+sess.ID+"/complete", nil, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("double complete: status = %d, want %d", rec.Code, http.StatusConflict)
	}

	// Optimal settings from the calibrated profile. Both samples carry two
	// words over one second: 120 words per minute → synthesis rate 0.8;
	// the noise floor of 0.1 doubles into the VAD threshold.
	var settings struct {
		VADThreshold  float64 `json:"vad_threshold"`
		SynthesisRate float64 `json:"synthesis_rate"`
	}
	rec = doJSON(t, a, "GET", "/v1/profiles/bob/settings", nil, &settings)
	if rec.Code != http.StatusOK {
		t.Fatalf("settings: status = %d: %s", rec.Code, rec.Body)
	}
	if settings.VADThreshold != 0.2 {
		t.Errorf("vad_threshold = %v, want 0.2", settings.VADThreshold)
	}
	if settings.SynthesisRate != 0.8 {
		t.Errorf("synthesis_rate = %v, want 0.8", settings.SynthesisRate)
	}
}

func TestAPI_SettingsForUncalibratedProfile(t *testing.T) {
	a := newTestApp(t, testConfig())

	rec := doJSON(t, a, "POST", "/v1/profiles",
		map[string]any{"id": "carol", "name": "Carol"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create profile: status = %d", rec.Code)
	}

	rec = doJSON(t, a, "GET", "/v1/profiles/carol/settings", nil, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestAPI_CancelSession(t *testing.T) {
	a := newTestApp(t, testConfig())

	doJSON(t, a, "POST", "/v1/profiles", map[string]any{"id": "dave", "name": "Dave"}, nil)

	var sess struct {
		ID string `json:"id"`
	}
	doJSON(t, a, "POST", "/v1/calibration", map[string]any{"profile_id": "dave"}, &sess)

	rec := doJSON(t, a, "DELETE", "/v1/calibration/"+sess.ID, nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("cancel: status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	// Terminal sessions reject samples.
	rec = doJSON(t, a, "POST", "/v1/calibration/"+sess.ID+"/samples",
		map[string]any{"expected": "x", "recognized": "x"}, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("sample after cancel: status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestAPI_ExportProfiles(t *testing.T) {
	a := newTestApp(t, testConfig())

	for i := 0; i < 2; i++ {
		rec := doJSON(t, a, "POST", "/v1/profiles",
			map[string]any{"id": fmt.Sprintf("u%d", i), "name": fmt.Sprintf("User %d", i)}, nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("create profile %d: status = %d", i, rec.Code)
		}
	}

	var export struct {
		VoiceProfiles []profile.VoiceProfile `json:"voiceProfiles"`
	}
	rec := doJSON(t, a, "GET", "/v1/profiles/export?format=json", nil, &export)
	if rec.Code != http.StatusOK {
		t.Fatalf("export: status = %d", rec.Code)
	}
	if len(export.VoiceProfiles) != 2 {
		t.Errorf("exported %d profiles, want 2", len(export.VoiceProfiles))
	}

	rec = doJSON(t, a, "GET", "/v1/profiles/export?format=msgpack", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown format: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestAPI_CalibrationGaugeTracksSessions(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	a, err := app.New(context.Background(), testConfig(), app.WithMetrics(m))
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	activeSessions := func() int64 {
		t.Helper()
		var rm metricdata.ResourceMetrics
		if err := reader.Collect(context.Background(), &rm); err != nil {
			t.Fatalf("Collect: %v", err)
		}
		for _, sm := range rm.ScopeMetrics {
			for _, met := range sm.Metrics {
				if met.Name != "kotha.active_calibrations" {
					continue
				}
				sum, ok := met.Data.(metricdata.Sum[int64])
				if !ok {
					t.Fatalf("metric data is %T, want Sum[int64]", met.Data)
				}
				var total int64
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
				return total
			}
		}
		return 0
	}

	rec := doJSON(t, a, "POST", "/v1/profiles",
		map[string]any{"id": "carol", "name": "Carol"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create profile: status = %d", rec.Code)
	}
	if got := activeSessions(); got != 0 {
		t.Fatalf("active sessions before start = %d, want 0", got)
	}

	// One session completed, one cancelled; the gauge follows both paths.
	var first struct {
		ID string `json:"id"`
	}
	rec = doJSON(t, a, "POST", "/v1/calibration",
		map[string]any{"profile_id": "carol"}, &first)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start: status = %d: %s", rec.Code, rec.Body)
	}
	if got := activeSessions(); got != 1 {
		t.Errorf("active sessions after start = %d, want 1", got)
	}

	rec = doJSON(t, a, "POST", "/v1/calibration/"+first.ID+"/samples",
		map[string]any{"expected": "hello", "recognized": "hello", "duration_ms": 1000, "volume": 0.1}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sample: status = %d: %s", rec.Code, rec.Body)
	}
	rec = doJSON(t, a, "POST", "/v1/calibration/"+first.ID+"/complete", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: status = %d: %s", rec.Code, rec.Body)
	}
	if got := activeSessions(); got != 0 {
		t.Errorf("active sessions after complete = %d, want 0", got)
	}

	var second struct {
		ID string `json:"id"`
	}
	rec = doJSON(t, a, "POST", "/v1/calibration",
		map[string]any{"profile_id": "carol"}, &second)
	if rec.Code != http.StatusCreated {
		t.Fatalf("restart: status = %d: %s", rec.Code, rec.Body)
	}
	if got := activeSessions(); got != 1 {
		t.Errorf("active sessions after restart = %d, want 1", got)
	}
	rec = doJSON(t, a, "DELETE", "/v1/calibration/"+second.ID, nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("cancel: status = %d: %s", rec.Code, rec.Body)
	}
	if got := activeSessions(); got != 0 {
		t.Errorf("active sessions after cancel = %d, want 0", got)
	}
}
