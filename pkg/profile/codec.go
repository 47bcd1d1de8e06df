package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// ExportFile is the top-level structure of a profile export document, in
// YAML or JSON.
//
// Example:
//
//	voiceProfiles:
//	  - id: "alice"
//	    name: "Alice"
//	    language: bn
//	noiseProfiles:
//	  - id: "office"
//	    name: "Office"
//	    noiseFloor: 0.004
type ExportFile struct {
	VoiceProfiles []VoiceProfile `yaml:"voiceProfiles" json:"voiceProfiles"`
	NoiseProfiles []NoiseProfile `yaml:"noiseProfiles" json:"noiseProfiles"`
}

// ExportYAML writes all profiles from store to w as a YAML document.
func ExportYAML(ctx context.Context, store Store, w io.Writer) error {
	ef, err := snapshot(ctx, store)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	if err := enc.Encode(ef); err != nil {
		return fmt.Errorf("profile: encode export yaml: %w", err)
	}
	return enc.Close()
}

// ExportJSON writes all profiles from store to w as indented JSON.
func ExportJSON(ctx context.Context, store Store, w io.Writer) error {
	ef, err := snapshot(ctx, store)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ef); err != nil {
		return fmt.Errorf("profile: encode export json: %w", err)
	}
	return nil
}

// ImportYAML parses a YAML export document and stores every profile it
// contains. Unknown fields and profiles failing validation are rejected
// with [ErrInvalidImportData]. Returns the number of profiles imported; a
// store error aborts the import and reports the count so far.
func ImportYAML(ctx context.Context, store Store, r io.Reader) (int, error) {
	var ef ExportFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject unknown keys to catch malformed payloads
	if err := dec.Decode(&ef); err != nil {
		return 0, fmt.Errorf("profile: decode import yaml: %w: %v", ErrInvalidImportData, err)
	}
	return importAll(ctx, store, ef)
}

// ImportJSON parses a JSON export document and stores every profile it
// contains, with the same validation rules as [ImportYAML].
func ImportJSON(ctx context.Context, store Store, r io.Reader) (int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("profile: read import json: %w", err)
	}
	var ef ExportFile
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ef); err != nil {
		return 0, fmt.Errorf("profile: decode import json: %w: %v", ErrInvalidImportData, err)
	}
	return importAll(ctx, store, ef)
}

func snapshot(ctx context.Context, store Store) (ExportFile, error) {
	voice, err := store.ListVoice(ctx)
	if err != nil {
		return ExportFile{}, fmt.Errorf("profile: list voice profiles: %w", err)
	}
	noise, err := store.ListNoise(ctx)
	if err != nil {
		return ExportFile{}, fmt.Errorf("profile: list noise profiles: %w", err)
	}
	return ExportFile{VoiceProfiles: voice, NoiseProfiles: noise}, nil
}

// importAll validates and stores every profile of the export document.
// Existing voice profiles with the same ID are replaced.
func importAll(ctx context.Context, store Store, ef ExportFile) (int, error) {
	count := 0
	for _, p := range ef.VoiceProfiles {
		if err := validateVoice(p); err != nil {
			return count, err
		}
		if err := store.UpdateVoice(ctx, p); err != nil {
			if _, aerr := store.AddVoice(ctx, p); aerr != nil {
				return count, fmt.Errorf("profile: import voice profile %q: %w", p.ID, aerr)
			}
		}
		count++
	}
	for _, p := range ef.NoiseProfiles {
		if err := validateNoise(p); err != nil {
			return count, err
		}
		if err := store.SaveNoise(ctx, p); err != nil {
			return count, fmt.Errorf("profile: import noise profile %q: %w", p.ID, err)
		}
		count++
	}
	return count, nil
}

func validateVoice(p VoiceProfile) error {
	switch {
	case p.ID == "":
		return fmt.Errorf("profile: voice profile without id: %w", ErrInvalidImportData)
	case p.Language != "" && !p.Language.IsValid():
		return fmt.Errorf("profile: voice profile %q has unsupported language %q: %w", p.ID, p.Language, ErrInvalidImportData)
	case p.RecognitionAccuracy < 0 || p.RecognitionAccuracy > 1:
		return fmt.Errorf("profile: voice profile %q has accuracy %v outside [0,1]: %w", p.ID, p.RecognitionAccuracy, ErrInvalidImportData)
	case p.SampleCount < 0:
		return fmt.Errorf("profile: voice profile %q has negative sample count: %w", p.ID, ErrInvalidImportData)
	}
	return nil
}

func validateNoise(p NoiseProfile) error {
	switch {
	case p.ID == "":
		return fmt.Errorf("profile: noise profile without id: %w", ErrInvalidImportData)
	case p.NoiseFloor < 0:
		return fmt.Errorf("profile: noise profile %q has negative noise floor: %w", p.ID, ErrInvalidImportData)
	}
	for _, m := range p.FrequencyProfile {
		if m < 0 {
			return fmt.Errorf("profile: noise profile %q has negative spectrum magnitude: %w", p.ID, ErrInvalidImportData)
		}
	}
	return nil
}
