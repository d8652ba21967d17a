// Package router dispatches chat commands to registered handlers.
//
// Commands are addressed by space-separated routes ("wom list"). Multi-token
// routes also get an underscore shortcut ("/wom_list") that is published as
// the chat command menu.
package router

import (
	"context"
	"time"

	"nthweekday/internal/transport"
	"nthweekday/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Command struct {
	Route       string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration
	Handle      HandlerFunc
}

type Request struct {
	Message transport.Message
	Chat    transport.ChatTarget
	FromID  int64
	Path    []string // matched route tokens
	Command string
	Args    []string // positionals after the route
	Flags   map[string]string
	Bools   map[string]bool
	ReqID   string

	Sender transport.Sender
	Logger logx.Logger
}

// Reply sends text back to the chat (and thread) the request came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	if r.Sender == nil {
		return nil
	}
	_, err := r.Sender.SendText(ctx, r.Chat, text, &transport.SendOptions{DisablePreview: true})
	return err
}

// ReplyHTML is Reply with HTML parse mode.
func (r *Request) ReplyHTML(ctx context.Context, text string) error {
	if r.Sender == nil {
		return nil
	}
	_, err := r.Sender.SendText(ctx, r.Chat, text, &transport.SendOptions{DisablePreview: true, ParseMode: "HTML"})
	return err
}
