package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":        {"whisper", "whisper-native", "openai"},
	"embeddings": {"http"},
	"vad":        {"energy"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Storage
	if cfg.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("storage.postgres_dsn is required"))
	}
	if cfg.Storage.AudioDir == "" {
		errs = append(errs, errors.New("storage.audio_dir is required"))
	}
	if cfg.Storage.EmbeddingDimensions <= 0 {
		errs = append(errs, fmt.Errorf("storage.embedding_dimensions %d must be positive", cfg.Storage.EmbeddingDimensions))
	}

	// Pipeline
	p := cfg.Pipeline
	if p.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("pipeline.sample_rate %d must not be negative", p.SampleRate))
	}
	if p.FrameDurationMs != 0 && p.FrameDurationMs != 10 && p.FrameDurationMs != 20 && p.FrameDurationMs != 30 {
		errs = append(errs, fmt.Errorf("pipeline.frame_duration_ms %d is invalid; valid values: 10, 20, 30", p.FrameDurationMs))
	}
	if p.PaddingFrames < 0 {
		errs = append(errs, fmt.Errorf("pipeline.padding_frames %d must not be negative", p.PaddingFrames))
	}
	if p.VADAggressiveness < 0 || p.VADAggressiveness > 3 {
		errs = append(errs, fmt.Errorf("pipeline.vad_aggressiveness %d is out of range [0, 3]", p.VADAggressiveness))
	}
	if p.MinClipSeconds < 0 {
		errs = append(errs, fmt.Errorf("pipeline.min_clip_seconds %.2f must not be negative", p.MinClipSeconds))
	}
	if p.MaxClipSeconds != 0 && p.MaxClipSeconds < p.MinClipSeconds {
		errs = append(errs, fmt.Errorf("pipeline.max_clip_seconds %.2f must not be below min_clip_seconds %.2f", p.MaxClipSeconds, p.MinClipSeconds))
	}
	if p.MergeGapSeconds < 0 {
		errs = append(errs, fmt.Errorf("pipeline.merge_gap_seconds %.2f must not be negative", p.MergeGapSeconds))
	}
	if p.SpeakerThreshold < 0 || p.SpeakerThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.speaker_threshold %.2f is out of range [0, 1]", p.SpeakerThreshold))
	}
	if p.Workers < 0 {
		errs = append(errs, fmt.Errorf("pipeline.workers %d must not be negative", p.Workers))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)

	// Provider availability warnings
	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt.name is empty; the whisper server provider will be used")
	}
	if cfg.Providers.Embeddings.BaseURL == "" {
		slog.Warn("providers.embeddings.base_url is empty; encoding will fail until a speaker-encoder endpoint is configured")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
