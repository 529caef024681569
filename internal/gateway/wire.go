package gateway

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/samvaad-ai/samvaad/internal/session"
	"github.com/samvaad-ai/samvaad/pkg/audio"
)

// Inbound event types.
const (
	msgAudioStart = "audio:start"
	msgAudioChunk = "audio:chunk"
	msgAudioEnd   = "audio:end"
)

// inboundMessage is one client-to-server WebSocket message.
type inboundMessage struct {
	Type  string        `json:"type"`
	Chunk *chunkPayload `json:"payload,omitempty"`
}

// chunkPayload carries one audio:chunk frame.
type chunkPayload struct {
	// Data is the base64-encoded audio payload.
	Data string `json:"data"`

	// Format is pcm16, wav, mp3 or opus.
	Format string `json:"format"`

	// SampleRate is the capture rate in Hz. Defaults to the pipeline rate.
	SampleRate int `json:"sampleRate"`

	// Channels is the channel count. Defaults to mono.
	Channels int `json:"channels"`

	// Timestamp is the client capture time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// outboundMessage is one server-to-client WebSocket message.
type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// audioWire is the JSON shape of a tts:audio payload. The raw bytes travel
// base64-encoded.
type audioWire struct {
	Audio       string  `json:"audio"`
	MIMEType    string  `json:"mimeType"`
	Format      string  `json:"format"`
	DurationSec float64 `json:"durationSec"`
	Voice       string  `json:"voice"`
}

// encodeEvent renders a session event as a wire message.
func encodeEvent(ev session.Event) ([]byte, error) {
	payload := ev.Payload
	if spoken, ok := ev.Payload.(session.AudioPayload); ok {
		payload = audioWire{
			Audio:       base64.StdEncoding.EncodeToString(spoken.Audio),
			MIMEType:    spoken.MIMEType,
			Format:      spoken.Format,
			DurationSec: spoken.DurationSec,
			Voice:       spoken.Voice,
		}
	}
	data, err := json.Marshal(outboundMessage{Type: ev.Type, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("gateway: encode %s event: %w", ev.Type, err)
	}
	return data, nil
}

// frameNormalizer converts inbound chunks of any supported format to 16-bit
// mono PCM at the pipeline sample rate. One per connection: the Opus decoder
// keeps stream state. Not safe for concurrent use.
type frameNormalizer struct {
	targetRate int
	opus       *audio.OpusDecoder
}

func newFrameNormalizer(targetRate int) *frameNormalizer {
	return &frameNormalizer{targetRate: targetRate}
}

// normalize decodes one chunk payload to pipeline PCM.
func (n *frameNormalizer) normalize(chunk *chunkPayload) ([]byte, error) {
	if chunk == nil {
		return nil, fmt.Errorf("gateway: audio:chunk without payload")
	}
	raw, err := base64.StdEncoding.DecodeString(chunk.Data)
	if err != nil {
		return nil, fmt.Errorf("gateway: decode chunk data: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	rate := chunk.SampleRate
	if rate <= 0 {
		rate = n.targetRate
	}
	channels := chunk.Channels
	if channels <= 0 {
		channels = 1
	}

	var pcm []byte
	switch chunk.Format {
	case "pcm16", "":
		pcm = raw
	case "wav":
		if kind, err := audio.SniffFormat(raw); err != nil || kind != audio.FormatWAV {
			return nil, fmt.Errorf("gateway: chunk declared wav but payload is not RIFF/WAVE")
		}
		pcm = audio.StripWAVHeader(raw)
	case "opus":
		if n.opus == nil {
			dec, err := audio.NewOpusDecoder()
			if err != nil {
				return nil, err
			}
			n.opus = dec
		}
		pcm, err = n.opus.Decode(raw)
		if err != nil {
			return nil, err
		}
		rate = n.opus.SampleRate()
		channels = 1
	case "mp3":
		// No MP3 decode path server-side; browsers capture pcm16 or opus.
		return nil, fmt.Errorf("gateway: mp3 input is not supported, send pcm16, wav or opus")
	default:
		return nil, fmt.Errorf("gateway: unknown chunk format %q", chunk.Format)
	}

	if channels == 2 {
		pcm = audio.StereoToMono(pcm)
	}
	if rate != n.targetRate {
		pcm = audio.ResampleMono16(pcm, rate, n.targetRate)
	}
	return pcm, nil
}

// statusResponse is the /api/status body.
type statusResponse struct {
	Status         string   `json:"status"`
	ActiveSessions int64    `json:"activeSessions"`
	Languages      []string `json:"languages"`
	UptimeSec      float64  `json:"uptimeSec"`
}

func uptimeSince(start time.Time) float64 {
	return time.Since(start).Seconds()
}
