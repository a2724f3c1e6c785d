// Package event defines progress events emitted during a copy.
package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	WalkStarted Type = iota + 1
	EntryCopied
	EntryFailed
	EntrySkipped
	DirCreated
	VerifyOK
	VerifyFailed
)

var typeNames = [...]string{
	WalkStarted:  "WalkStarted",
	EntryCopied:  "EntryCopied",
	EntryFailed:  "EntryFailed",
	EntrySkipped: "EntrySkipped",
	DirCreated:   "DirCreated",
	VerifyOK:     "VerifyOK",
	VerifyFailed: "VerifyFailed",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event is a single progress event from a copy or verify pass.
type Event struct {
	Type      Type
	Timestamp time.Time
	Path      string // relative to the copy root
	Size      int64
	Error     error
}

// Emit sends e to ch without blocking. A nil or full channel drops the
// event; progress reporting never stalls the copy.
func Emit(ch chan<- Event, e Event) {
	if ch == nil {
		return
	}
	e.Timestamp = time.Now()
	select {
	case ch <- e:
	default:
	}
}
