package rtc

import (
	"context"
	"fmt"
	"time"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/rs/zerolog/log"

	// Driver registration. Removing these breaks device enumeration.
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"

	"github.com/arlevm/paircall/internal/core"
	"github.com/google/uuid"
)

var _ core.MediaDevices = (*Devices)(nil)

// Devices captures local camera and microphone media through
// pion/mediadevices.
type Devices struct {
	selector *mediadevices.CodecSelector
}

func NewDevices() (*Devices, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = 500_000
	vpxParams.KeyFrameInterval = 15

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}
	opusParams.BitRate = 32_000
	opusParams.Latency = opus.Latency20ms

	return &Devices{
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}, nil
}

// Selector exposes the codec selector so the connection builder can
// register the same codecs.
func (d *Devices) Selector() *mediadevices.CodecSelector { return d.selector }

func (d *Devices) GetUserMedia(ctx context.Context, audio, video bool) (core.Stream, error) {
	constraints := mediadevices.MediaStreamConstraints{Codec: d.selector}
	if video {
		constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
			c.Width = prop.Int(640)
			c.Height = prop.Int(480)
			c.FrameRate = prop.Float(30)
		}
	}
	if audio {
		constraints.Audio = func(c *mediadevices.MediaTrackConstraints) {
			c.SampleRate = prop.Int(48000)
			c.ChannelCount = prop.Int(1)
			c.Latency = prop.Duration(20 * time.Millisecond)
		}
	}

	ms, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, fmt.Errorf("get user media: %w", err)
	}

	s := &captureStream{id: uuid.NewString()}
	for _, raw := range ms.GetTracks() {
		s.tracks = append(s.tracks, newLocalTrack(raw))
	}
	log.Info().Str("module", "rtc").
		Bool("audio", audio).Bool("video", video).
		Int("tracks", len(s.tracks)).Msg("capture started")
	return s, nil
}

// captureStream groups captured tracks under one stream id.
type captureStream struct {
	id     string
	tracks []core.Track
}

func (s *captureStream) ID() string           { return s.id }
func (s *captureStream) Tracks() []core.Track { return append([]core.Track(nil), s.tracks...) }

func (s *captureStream) AudioTrack() core.Track { return s.trackOf(core.TrackKindAudio) }
func (s *captureStream) VideoTrack() core.Track { return s.trackOf(core.TrackKindVideo) }

func (s *captureStream) trackOf(kind core.TrackKind) core.Track {
	for _, t := range s.tracks {
		if t.Kind() == kind {
			return t
		}
	}
	return nil
}
