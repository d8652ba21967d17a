package transport

import "context"

// Message is an inbound chat message normalized from the platform update.
type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

func (t ChatTarget) IsZero() bool { return t.ChatID == 0 }

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sender is the outbound half of an adapter. Log sinks and notifications
// only need this.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

type Adapter interface {
	Sender
	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error
}

// BotCommand is a single entry of the platform command menu.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters that can publish a command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
