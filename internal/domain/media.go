package domain

import "fmt"

const (
	MaxAudioChannels  = 8
	MaxSampleRate     = 192000
	MaxVideoDimension = 8192
)

// AudioFrame is raw PCM pushed in place of captured audio.
type AudioFrame struct {
	Data       []byte
	SampleRate int
	Bits       int
	Channels   int
}

// Validate checks the frame holds whole 10 ms blocks at 16 or 32 bit depth.
func (f AudioFrame) Validate() error {
	if f.Bits != 16 && f.Bits != 32 {
		return fmt.Errorf("%w: bit depth %d", ErrInvalidMedia, f.Bits)
	}
	ch := f.Channels
	if ch <= 0 {
		ch = 1
	}
	if ch > MaxAudioChannels {
		return fmt.Errorf("%w: %d channels", ErrInvalidMedia, f.Channels)
	}
	if f.SampleRate <= 0 || f.SampleRate > MaxSampleRate || f.SampleRate%100 != 0 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidMedia, f.SampleRate)
	}
	block := f.SampleRate / 100 * ch * f.Bits / 8
	if block <= 0 {
		return fmt.Errorf("%w: empty 10ms block", ErrInvalidMedia)
	}
	if len(f.Data) == 0 || len(f.Data)%block != 0 {
		return fmt.Errorf("%w: %d bytes is not a multiple of 10ms (%d bytes)", ErrInvalidMedia, len(f.Data), block)
	}
	return nil
}

// Duration10ms returns how many 10 ms blocks the frame carries.
func (f AudioFrame) Duration10ms() int {
	ch := f.Channels
	if ch <= 0 {
		ch = 1
	}
	if ch > MaxAudioChannels || f.SampleRate > MaxSampleRate {
		return 0
	}
	block := f.SampleRate / 100 * ch * f.Bits / 8
	if block <= 0 {
		return 0
	}
	return len(f.Data) / block
}

// VideoFrame is a raw planar I420 picture pushed in place of captured video.
type VideoFrame struct {
	Data   []byte
	Width  int
	Height int
}

func (f VideoFrame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 || f.Width > MaxVideoDimension || f.Height > MaxVideoDimension {
		return fmt.Errorf("%w: %dx%d out of range", ErrInvalidMedia, f.Width, f.Height)
	}
	if f.Width%2 != 0 || f.Height%2 != 0 {
		return fmt.Errorf("%w: %dx%d must be positive and even", ErrInvalidMedia, f.Width, f.Height)
	}
	if want := f.Width * f.Height * 3 / 2; len(f.Data) != want {
		return fmt.Errorf("%w: i420 %dx%d needs %d bytes, got %d", ErrInvalidMedia, f.Width, f.Height, want, len(f.Data))
	}
	return nil
}
