package adapter

import "time"

type Config struct {
	Token       string
	PollTimeout time.Duration
	// SendPerSec caps outbound messages across all chats. Zero uses the
	// platform's documented bulk limit.
	SendPerSec int
	// Offline skips the getMe handshake (tests).
	Offline bool
}

const (
	defaultPollTimeout = 10 * time.Second
	defaultSendPerSec  = 25
)
