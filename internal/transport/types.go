package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID       int
	ChatID   int64
	FromID   int64
	Text     string
	IsGroup  bool
	ThreadID int // telegram forum topic thread id (0 if none)
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

// ActionKind selects how a gateway renders an Action.
type ActionKind string

const (
	// ActionWebApp opens URL inside the messenger's web-app frame.
	ActionWebApp ActionKind = "webapp"
	// ActionCallback sends Data back to the bot when pressed.
	ActionCallback ActionKind = "callback"
	// ActionURL opens URL in a browser.
	ActionURL ActionKind = "url"
)

// Action is a transport-agnostic button attached to a message.
// Each action is rendered on its own row, in order.
type Action struct {
	Kind  ActionKind
	Label string
	URL   string
	Data  string
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	Actions        []Action
}

// Sender delivers a text message to a chat.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

type Adapter interface {
	Sender

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	AnswerCallback(ctx context.Context, callbackID string, text string) error
}
