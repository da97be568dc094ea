package domain

import "strings"

// DeviceClass is one of the fixed exclusive device slots.
type DeviceClass int

const (
	DeviceAudioIn          DeviceClass = iota // microphone
	DeviceAudioOut                            // speaker playing local capture
	DeviceAudioOutChat                        // speaker playing call audio
	DeviceVideo                               // camera
	DeviceSoundcardCapture                    // soundcard loopback, mixed into the call
	DeviceAudioHook                           // third-party player hook, one per process
)

var deviceClassNames = [...]string{"audio_in", "audio_out", "audio_out_chat", "video", "soundcard_capture", "audio_hook"}

// DeviceClasses lists every fixed class in wire order.
var DeviceClasses = []DeviceClass{
	DeviceAudioIn, DeviceAudioOut, DeviceAudioOutChat, DeviceVideo, DeviceSoundcardCapture, DeviceAudioHook,
}

func (c DeviceClass) Valid() bool { return c >= DeviceAudioIn && c <= DeviceAudioHook }

func (c DeviceClass) String() string {
	if !c.Valid() {
		return "unknown"
	}
	return deviceClassNames[c]
}

// Watchable reports whether presence watching is supported for the class.
func (c DeviceClass) Watchable() bool {
	return c == DeviceAudioIn || c == DeviceVideo || c == DeviceAudioHook
}

// DeviceStatus is a set of independent status flags.
type DeviceStatus uint32

const (
	DeviceNoChange    DeviceStatus = 0x0
	DeviceChanged     DeviceStatus = 0x1
	DeviceWorkRemoved DeviceStatus = 0x2
	DeviceReset       DeviceStatus = 0x4
	DeviceStarted     DeviceStatus = 0x8
	DeviceStopped     DeviceStatus = 0x10
)

func (s DeviceStatus) Has(flag DeviceStatus) bool { return s&flag == flag && flag != 0 }

func (s DeviceStatus) String() string {
	if s == DeviceNoChange {
		return "none"
	}
	var parts []string
	for _, f := range []struct {
		flag DeviceStatus
		name string
	}{
		{DeviceChanged, "changed"},
		{DeviceWorkRemoved, "work_removed"},
		{DeviceReset, "reset"},
		{DeviceStarted, "started"},
		{DeviceStopped, "stopped"},
	} {
		if s.Has(f.flag) {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

type DeviceInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// DeviceRequest asks the engine to open a device. Width and Height are preferences
// for cameras only.
type DeviceRequest struct {
	Class     DeviceClass
	AuxID     string
	Path      string
	FrameRate int
	Width     int
	Height    int
}

// DeviceStart is the asynchronous outcome of a start request.
type DeviceStart struct {
	Class  DeviceClass `json:"type"`
	AuxID  string      `json:"id,omitempty"`
	Path   string      `json:"path"`
	Code   int         `json:"code"`
	Width  int         `json:"width,omitempty"`
	Height int         `json:"height,omitempty"`
}

func (r DeviceStart) OK() bool { return r.Code == CodeSuccess }

// DeviceEvent reports a status change of a watched or active device.
type DeviceEvent struct {
	Class  DeviceClass  `json:"type"`
	Status DeviceStatus `json:"status"`
	Path   string       `json:"path"`
}

// VideoMode is a capture resolution supported by a camera.
type VideoMode struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ClosestMode picks the supported mode nearest to the requested one by pixel distance.
// A zero request selects the first mode.
func ClosestMode(modes []VideoMode, width, height int) (VideoMode, bool) {
	if len(modes) == 0 {
		return VideoMode{}, false
	}
	if width <= 0 && height <= 0 {
		return modes[0], true
	}
	best, bestDist := modes[0], -1
	for _, m := range modes {
		dw, dh := m.Width-width, m.Height-height
		d := dw*dw + dh*dh
		if bestDist < 0 || d < bestDist {
			best, bestDist = m, d
		}
	}
	return best, true
}
