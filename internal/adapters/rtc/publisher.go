// Package rtc publishes host-injected custom media onto local WebRTC tracks.
package rtc

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/callplane/internal/core"
	"github.com/dkeye/callplane/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

const (
	MimeTypeL16      = "audio/L16"
	MimeTypeRawVideo = "video/raw"

	payloadL16 = 118
	payloadRaw = 119
)

var ErrClosed = errors.New("publisher closed")

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

func newAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: MimeTypeL16, ClockRate: 48000, Channels: 1},
		PayloadType:        payloadL16,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register l16: %w", err)
	}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: MimeTypeRawVideo, ClockRate: 90000},
		PayloadType:        payloadRaw,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("register raw video: %w", err)
	}
	return webrtc.NewAPI(webrtc.WithMediaEngine(m)), nil
}

// Publisher is a core.MediaSink that writes custom frames as samples onto an
// audio and a video track of one peer connection.
type Publisher struct {
	pc    *webrtc.PeerConnection
	audio *webrtc.TrackLocalStaticSample
	video *webrtc.TrackLocalStaticSample
	fps   int

	mu     sync.RWMutex
	closed bool
	frames uint64
	bytes  uint64
}

var _ core.MediaSink = (*Publisher)(nil)

func NewPublisher(cfg webrtc.Configuration, stream string, fps int) (*Publisher, error) {
	api, err := newAPI()
	if err != nil {
		return nil, err
	}
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	audio, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: MimeTypeL16, ClockRate: 48000, Channels: 1}, "custom-audio", stream)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	video, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: MimeTypeRawVideo, ClockRate: 90000}, "custom-video", stream)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	for _, t := range []*webrtc.TrackLocalStaticSample{audio, video} {
		if _, err := pc.AddTrack(t); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add %s track: %w", t.Kind(), err)
		}
	}
	if fps <= 0 {
		fps = 15
	}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("stream", stream).Str("peer_connection_state", s.String()).Msg("Peer state")
	})
	return &Publisher{pc: pc, audio: audio, video: video, fps: fps}, nil
}

func (p *Publisher) WriteAudio(f domain.AudioFrame) error {
	return p.write(p.audio, f.Data, time.Duration(f.Duration10ms())*10*time.Millisecond)
}

func (p *Publisher) WriteVideo(f domain.VideoFrame) error {
	return p.write(p.video, f.Data, time.Second/time.Duration(p.fps))
}

func (p *Publisher) write(t *webrtc.TrackLocalStaticSample, data []byte, d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if err := t.WriteSample(media.Sample{Data: data, Duration: d}); err != nil {
		return fmt.Errorf("write %s sample: %w", t.Kind(), err)
	}
	p.frames++
	p.bytes += uint64(len(data))
	return nil
}

// Stats returns the samples and bytes written so far.
func (p *Publisher) Stats() (samples, bytes uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.frames, p.bytes
}

func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	if err := p.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("close error")
		return
	}
	log.Info().Str("module", "rtc").Msg("closed")
}
