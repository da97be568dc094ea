package rtc

import (
	"testing"

	"github.com/dkeye/callplane/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherWritesSamples(t *testing.T) {
	p, err := NewPublisher(webrtc.Configuration{}, "test", 0)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.WriteAudio(domain.AudioFrame{Data: make([]byte, 320), SampleRate: 16000, Bits: 16, Channels: 1}))
	require.NoError(t, p.WriteVideo(domain.VideoFrame{Data: make([]byte, 6), Width: 2, Height: 2}))

	samples, bytes := p.Stats()
	assert.Equal(t, uint64(2), samples)
	assert.Equal(t, uint64(326), bytes)
}

func TestPublisherClosed(t *testing.T) {
	p, err := NewPublisher(webrtc.Configuration{}, "test", 25)
	require.NoError(t, err)
	p.Close()
	p.Close()

	err = p.WriteVideo(domain.VideoFrame{Data: make([]byte, 6), Width: 2, Height: 2})
	assert.ErrorIs(t, err, ErrClosed)
}
