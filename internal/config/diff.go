package config

import "maps"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SegmenterChanged is true when any utterance-boundary tuning changed.
	// New sessions pick up the new values; running sessions keep theirs.
	SegmenterChanged bool
	NewSegmenter     SegmenterConfig

	// VoicesChanged is true when the default voice or any per-language voice
	// mapping changed.
	VoicesChanged bool
	NewVoices     TTSConfig
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Segmenter != new.Segmenter {
		d.SegmenterChanged = true
		d.NewSegmenter = new.Segmenter
	}

	if voicesDiffer(old.Providers.TTS, new.Providers.TTS) {
		d.VoicesChanged = true
		d.NewVoices = new.Providers.TTS
	}

	return d
}

// voicesDiffer reports whether the voice selection differs between two TTS
// configs. Provider credentials and endpoints are not hot-reloadable and are
// ignored here.
func voicesDiffer(old, new TTSConfig) bool {
	if old.Voice != new.Voice {
		return true
	}
	return !maps.Equal(old.LanguageVoices, new.LanguageVoices)
}
