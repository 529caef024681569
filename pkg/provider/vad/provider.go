// Package vad defines the Classifier interface for voice activity detection
// backends.
//
// A VAD classifier wraps a frame-level speech detector (e.g., the built-in
// energy detector or an external Silero server) and scores individual PCM
// frames. Scoring is synchronous by design: Classify returns immediately,
// making it suitable for the low-latency segmentation loop that gates STT
// input.
//
// Implementations must be safe for concurrent use.
package vad

// Result is the speech score for a single audio frame.
type Result struct {
	// IsSpeech reports whether the frame is classified as speech.
	IsSpeech bool

	// Probability is the raw speech probability (0.0–1.0).
	Probability float64

	// Confidence reflects how far the probability sits from the decision
	// threshold (0.0–1.0). A score near 0 means the frame was borderline.
	Confidence float64
}

// Config holds the parameters for frame classification. All thresholds are
// expressed in the classifier's native scale; see each implementation for
// recommended starting values.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// PCM frames passed to Classify. Common values: 8000, 16000, 48000.
	SampleRate int

	// SpeechThreshold is the probability above which a frame is classified as
	// speech. Range: [0.0, 1.0]. Higher values reduce false positives at the
	// cost of increased speech start latency. Typical: 0.5.
	SpeechThreshold float64
}

// Classifier scores raw PCM frames for speech activity.
//
// Classify must not block; it is called once per frame from the segmentation
// loop. The frame must be 16-bit little-endian mono PCM at the configured
// sample rate.
type Classifier interface {
	Classify(frame []byte) (Result, error)
}
