// Package denoise runs captured speech segments through an external
// noise-suppression command before transcription.
//
// Suppression is strictly best-effort: any failure (process error, timeout,
// missing output, bad marker) logs a warning and hands the original audio
// through untouched. A broken denoiser degrades transcript quality, it never
// drops an utterance.
package denoise

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/samvaad-ai/samvaad/pkg/audio"
)

// DefaultTimeout bounds a single suppression run. The external process is
// killed when it expires.
const DefaultTimeout = 10 * time.Second

// successMarker must appear on the runner's stdout for the output file to be
// trusted.
const successMarker = "SUCCESS"

// Runner executes the external denoising command against a WAV input file
// and writes the cleaned WAV to the output path. It returns the process
// stdout.
type Runner interface {
	Run(ctx context.Context, inputPath, outputPath string) (stdout string, err error)
}

// CommandRunner invokes a denoising executable as a subprocess. The input
// and output paths are appended to Args.
type CommandRunner struct {
	// Command is the executable to run.
	Command string

	// Args are passed before the input and output paths.
	Args []string
}

// Run implements Runner.
func (r *CommandRunner) Run(ctx context.Context, inputPath, outputPath string) (string, error) {
	args := append(append([]string(nil), r.Args...), inputPath, outputPath)
	cmd := exec.CommandContext(ctx, r.Command, args...)
	out, err := cmd.Output()
	if err != nil {
		return string(out), fmt.Errorf("running %s: %w", r.Command, err)
	}
	return string(out), nil
}

// Suppressor cleans PCM segments via an external process.
type Suppressor struct {
	enabled    bool
	runner     Runner
	timeout    time.Duration
	sampleRate int
	channels   int
	tempDir    string
	logger     *slog.Logger
}

// Option configures a Suppressor.
type Option func(*Suppressor)

// WithRunner overrides the subprocess runner. Mainly for tests.
func WithRunner(r Runner) Option {
	return func(s *Suppressor) {
		if r != nil {
			s.runner = r
		}
	}
}

// WithTimeout overrides the per-invocation timeout. Non-positive values are
// ignored.
func WithTimeout(d time.Duration) Option {
	return func(s *Suppressor) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithSampleRate sets the sample rate written into the temporary WAV.
func WithSampleRate(rate int) Option {
	return func(s *Suppressor) {
		if rate > 0 {
			s.sampleRate = rate
		}
	}
}

// WithTempDir sets the directory for scratch files. Defaults to the system
// temp directory.
func WithTempDir(dir string) Option {
	return func(s *Suppressor) {
		if dir != "" {
			s.tempDir = dir
		}
	}
}

// WithLogger sets the logger for suppression warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Suppressor) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Suppressor running the given command. An empty command
// disables suppression entirely and Process becomes a passthrough.
func New(command string, args []string, opts ...Option) *Suppressor {
	s := &Suppressor{
		enabled:    command != "",
		timeout:    DefaultTimeout,
		sampleRate: 16000,
		channels:   1,
		logger:     slog.Default(),
	}
	if s.enabled {
		s.runner = &CommandRunner{Command: command, Args: args}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether suppression will actually run.
func (s *Suppressor) Enabled() bool {
	return s.enabled
}

// Process denoises a PCM segment. On any failure the original input is
// returned unchanged. Temporary files are removed on every path.
func (s *Suppressor) Process(ctx context.Context, pcm []byte) []byte {
	if !s.enabled || len(pcm) == 0 {
		return pcm
	}

	cleaned, err := s.run(ctx, pcm)
	if err != nil {
		s.logger.Warn("noise suppression failed, passing audio through", "error", err)
		return pcm
	}
	return cleaned
}

func (s *Suppressor) run(ctx context.Context, pcm []byte) ([]byte, error) {
	dir, err := os.MkdirTemp(s.tempDir, "denoise-*")
	if err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	inputPath := filepath.Join(dir, "input.wav")
	outputPath := filepath.Join(dir, "output.wav")
	if err := os.WriteFile(inputPath, audio.PCMToWAV(pcm, s.sampleRate, s.channels), 0o600); err != nil {
		return nil, fmt.Errorf("writing input: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stdout, err := s.runner.Run(ctx, inputPath, outputPath)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(stdout, successMarker) {
		return nil, fmt.Errorf("denoiser did not report success: %q", strings.TrimSpace(stdout))
	}

	out, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("reading output: %w", err)
	}
	cleaned := audio.StripWAVHeader(out)
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("denoiser produced empty output")
	}
	return cleaned, nil
}
