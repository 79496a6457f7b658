package flow

import "context"

// Reply is one outbound message.
type Reply struct {
	Text string
	HTML bool
	// Choices renders a one-time reply keyboard, one slice per row.
	Choices     [][]string
	Placeholder string
	// RemoveKeyboard hides a keyboard left over from an earlier step.
	RemoveKeyboard bool
	// Cancel attaches an inline cancel button.
	Cancel bool
	// Buttons attaches inline buttons; the bot maps each key to a callback.
	Buttons []Button
}

// Button is an inline button identified by a callback key.
type Button struct {
	Text string
	Key  string
}

// Document is a file sent to the chat.
type Document struct {
	Path     string
	FileName string
	Caption  string
}

// Channel is the conversation with one chat. The bot implements it on top of Telegram.
type Channel interface {
	Send(ctx context.Context, r Reply) error
	SendDocument(ctx context.Context, d Document) error
	// Edit replaces the message that triggered the current event, when there is one.
	Edit(ctx context.Context, r Reply) error
}

// Notifier broadcasts activity reports to the administrators.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// Gate tells whether activity reports are wanted.
type Gate interface {
	Enabled() bool
}

// Observer receives flow lifecycle events, for metrics.
type Observer interface {
	FlowEvent(flow, event string)
	SessionsSwept(n int)
}

// EventKind distinguishes inbound input.
type EventKind int

// Input kinds.
const (
	KindText EventKind = iota
	KindLocation
)

// Event is one input from an owner that may feed an active flow.
type Event struct {
	Owner  string
	Handle string
	Kind   EventKind
	Text   string
	Lat    float64
	Lon    float64
}
