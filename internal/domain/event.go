package domain

import "time"

// EventKind identifies what an output line means.
type EventKind string

const (
	EventProgress     EventKind = "progress"
	EventWarning      EventKind = "warning"
	EventError        EventKind = "error"
	EventCompleted    EventKind = "completed"
	EventUnrecognized EventKind = "unrecognized"
)

// StreamName identifies which output stream a line came from.
type StreamName string

const (
	StreamStdout StreamName = "stdout"
	StreamStderr StreamName = "stderr"
)

// Progress carries a progress update reported by the external tool.
// Speed and Total are kept as the tool printed them.
type Progress struct {
	Percent float64
	Total   string
	Speed   string
	ETA     time.Duration
}

// OutputEvent is one classified line of external tool output.
type OutputEvent struct {
	Kind   EventKind
	Stream StreamName
	Line   string

	// Progress is set for EventProgress.
	Progress *Progress
	// Message is set for EventWarning and EventError.
	Message string
	// Path is set for EventCompleted.
	Path string
}

// EventSink receives events as they are parsed. Implementations must not block for long.
type EventSink func(OutputEvent)
