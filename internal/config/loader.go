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
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"deepgram", "whisper", "whisper-native"},
	"tts": {"elevenlabs", "coqui"},
	"vad": {"energy", "silero"},
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

	// LLM chain
	if len(cfg.Providers.LLM) == 0 {
		errs = append(errs, errors.New("providers.llm must list at least one provider"))
	}
	llmNamesSeen := make(map[string]int, len(cfg.Providers.LLM))
	for i, entry := range cfg.Providers.LLM {
		prefix := fmt.Sprintf("providers.llm[%d]", i)
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := llmNamesSeen[entry.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of providers.llm[%d]", prefix, entry.Name, prev))
		}
		llmNamesSeen[entry.Name] = i
		if entry.TimeoutMs < 0 {
			errs = append(errs, fmt.Errorf("%s.timeout_ms must not be negative", prefix))
		}
		validateProviderName("llm", entry.Name)
	}

	// Single-provider stages
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts.name is required"))
	}
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)

	// TTS voice allow-list
	tts := cfg.Providers.TTS
	if tts.Voice == "" && tts.Name != "" {
		errs = append(errs, errors.New("providers.tts.voice is required"))
	}
	if len(tts.AllowedVoices) > 0 {
		if tts.Voice != "" && !slices.Contains(tts.AllowedVoices, tts.Voice) {
			errs = append(errs, fmt.Errorf("providers.tts.voice %q is not in allowed_voices", tts.Voice))
		}
		for lang, voice := range tts.LanguageVoices {
			if !slices.Contains(tts.AllowedVoices, voice) {
				errs = append(errs, fmt.Errorf("providers.tts.language_voices[%s] %q is not in allowed_voices", lang, voice))
			}
		}
	}

	// Segmenter
	if cfg.Segmenter.MinSilenceMs < 0 {
		errs = append(errs, errors.New("segmenter.min_silence_ms must not be negative"))
	}
	if cfg.Segmenter.MinSpeechMs < 0 {
		errs = append(errs, errors.New("segmenter.min_speech_ms must not be negative"))
	}
	if cfg.Segmenter.EnergyThreshold < 0 {
		errs = append(errs, errors.New("segmenter.energy_threshold must not be negative"))
	}

	// Denoiser
	if cfg.Denoiser.TimeoutMs < 0 {
		errs = append(errs, errors.New("denoiser.timeout_ms must not be negative"))
	}
	if cfg.Denoiser.Command == "" && len(cfg.Denoiser.Args) > 0 {
		slog.Warn("denoiser.args is set but denoiser.command is empty; noise suppression is disabled")
	}

	// History
	if cfg.History.Backend != "" && !cfg.History.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("history.backend %q is invalid; valid values: memory, postgres", cfg.History.Backend))
	}
	if cfg.History.Backend == HistoryPostgres && cfg.History.PostgresDSN == "" {
		errs = append(errs, errors.New("history.postgres_dsn is required when history.backend is postgres"))
	}
	if cfg.History.Cap < 0 {
		errs = append(errs, errors.New("history.cap must not be negative"))
	}

	// No VAD means the segmenter falls back to the energy gate for every
	// frame. Valid, but worth a note.
	if cfg.Providers.VAD.Name == "" {
		slog.Warn("providers.vad is not configured; speech detection uses the energy gate only")
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
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
