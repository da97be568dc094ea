package domain

import "time"

type RecordKind int

const (
	RecordVideo RecordKind = iota // MP4 of one member or of the local output
	RecordAudio                   // mixed audio of the whole session
)

func (k RecordKind) String() string {
	if k == RecordAudio {
		return "audio"
	}
	return "video"
}

// RecordCode is the reason carried by record start and close notifications.
type RecordCode int

const (
	RecordClosed          RecordCode = 0
	RecordVideoSizeChange RecordCode = 1
	RecordOutOfDisk       RecordCode = 2
	RecordThreadBusy      RecordCode = 3
	RecordCreated         RecordCode = 200
	RecordExists          RecordCode = 400
	RecordCreateError     RecordCode = 403
	RecordInvalidSession  RecordCode = 404
)

// RecordingTask is an active file-producing operation.
type RecordingTask struct {
	Kind      RecordKind `json:"kind"`
	Member    MemberID   `json:"id"`
	Path      string     `json:"file"`
	StartedAt time.Time  `json:"started_at"`
}

// Elapsed returns the recording duration in milliseconds at now.
func (t RecordingTask) Elapsed(now time.Time) int64 {
	if t.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(t.StartedAt).Milliseconds()
}
