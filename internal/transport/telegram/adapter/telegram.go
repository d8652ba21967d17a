// Package adapter connects the chat transport to Telegram via telebot.
package adapter

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"nthweekday/internal/runtime/supervisor"
	"nthweekday/internal/transport"
	"nthweekday/pkg/logx"
)

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	limiter *rate.Limiter

	out     atomic.Pointer[chan<- transport.Message]
	dropped atomic.Uint64

	runMu sync.Mutex
	sup   *supervisor.Supervisor

	menuMu   sync.Mutex
	menuHash uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.SendPerSec <= 0 {
		cfg.SendPerSec = defaultSendPerSec
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Poller:  &tele.LongPoller{Timeout: cfg.PollTimeout},
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{
		cfg:     cfg,
		log:     log.With(logx.String("comp", "telegram")),
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(cfg.SendPerSec), cfg.SendPerSec),
	}
	b.Handle(tele.OnText, func(c tele.Context) error {
		if m := c.Message(); m != nil {
			a.forward(toMessage(m))
		}
		return nil
	})
	return a, nil
}

func toMessage(m *tele.Message) transport.Message {
	msg := transport.Message{ID: m.ID, ThreadID: m.ThreadID, Text: m.Text}
	if m.Chat != nil {
		msg.ChatID = m.Chat.ID
	}
	if m.Sender != nil {
		msg.FromID = m.Sender.ID
		msg.FromUsername = m.Sender.Username
	}
	return msg
}

// forward hands msg to the current consumer. A full queue drops the
// message; drops are reported periodically.
func (a *Adapter) forward(msg transport.Message) {
	p := a.out.Load()
	if p == nil {
		return
	}
	select {
	case *p <- msg:
	default:
		a.dropped.Add(1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Message) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.sup != nil {
		return nil
	}
	a.out.Store(&out)
	// adapter failures must not take the process down
	sup := supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(false))
	a.sup = sup

	sup.Go("drop_report", func(c context.Context) error {
		t := time.NewTicker(5 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				a.reportDropped(cap(out))
				return nil
			case <-t.C:
				a.reportDropped(cap(out))
			}
		}
	})
	sup.Go("stop_on_cancel", func(c context.Context) error {
		<-c.Done()
		a.bot.Stop()
		return nil
	})
	// telebot's Start returns only on Stop; an early return is restarted.
	sup.GoRestart("poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		if c.Err() != nil {
			return nil
		}
		return errors.New("poller exited")
	}, supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
	return nil
}

func (a *Adapter) reportDropped(capacity int) {
	if n := a.dropped.Swap(0); n > 0 {
		a.log.Warn("incoming messages dropped (queue full)", logx.Uint64("count", n), logx.Int("queue_cap", capacity))
	}
}

// Stop ends polling. Long-poll requests are abandoned after a short grace
// window so shutdown stays quick.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	a.out.Store(nil)
	a.runMu.Unlock()
	if sup == nil {
		return nil
	}

	sup.Cancel()
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		grace = min(grace, time.Until(dl))
	}
	wctx, cancel := context.WithTimeout(ctx, max(grace, 0))
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		a.log.Warn("telegram stop timed out", logx.Err(err))
	}
	return nil
}

// SendText sends text, split into several messages when it exceeds the
// platform limit. The returned ref points at the first message.
func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	chat := &tele.Chat{ID: to.ChatID}
	var first transport.MessageRef
	for i, chunk := range splitText(text, textLimit, opt.ParseMode) {
		if err := a.limiter.Wait(ctx); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(chat, chunk, &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		})
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func menuHash(cmds []transport.BotCommand) uint64 {
	h := fnv.New64a()
	for _, c := range cmds {
		h.Write([]byte(c.Command))
		h.Write([]byte{0})
		h.Write([]byte(c.Description))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// toCommands applies the platform limits: at most 100 commands with
// descriptions of 1..256 bytes.
func toCommands(cmds []transport.BotCommand) []tele.Command {
	out := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		if len(d) > 256 {
			d = d[:256]
		}
		out = append(out, tele.Command{Text: c.Command, Description: d})
		if len(out) == 100 {
			break
		}
	}
	return out
}

// UpdateMenuCommands publishes the command menu. It is a no-op when the
// list did not change since the last successful call.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []transport.BotCommand) error {
	a.menuMu.Lock()
	defer a.menuMu.Unlock()
	sum := menuHash(cmds)
	if sum == a.menuHash {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	list := toCommands(cmds)
	if err := a.bot.SetCommands(list); err != nil {
		return err
	}
	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(list)))
	return nil
}
