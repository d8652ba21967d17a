package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"nthweekday/internal/transport"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
	Chat    ChatConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// ChatConfig forwards log lines at or above MinLevel to a chat, at most
// RatePerSec lines per second.
type ChatConfig struct {
	Enabled    bool
	ThreadID   int
	MinLevel   string
	RatePerSec int
}

// Service owns the live root logger. Apply swaps outputs and levels at
// runtime; loggers derived from Service follow the swap.
type Service struct {
	mu  sync.Mutex
	cfg Config

	root atomic.Value // zerolog.Logger

	file *os.File

	sender    transport.Sender
	chatQueue chan chatItem
	chatOnce  sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// guarded by mu
	chatID   int64
	threadID int
	limiter  *rate.Limiter
	minLevel zerolog.Level
}

type chatItem struct {
	to  transport.ChatTarget
	msg string
}

// New creates the logging service, applies cfg and returns the root Logger.
// sender may be nil; the chat sink is then a no-op.
func New(cfg Config, sender transport.Sender) (*Service, Logger) {
	setGlobals()

	s := &Service{
		cfg:       cfg,
		sender:    sender,
		chatQueue: make(chan chatItem, 256),
		threadID:  cfg.Chat.ThreadID,
	}
	s.root.Store(zerolog.New(newConsoleWriter(os.Stdout)).Level(parseLevel(cfg.Level, zerolog.InfoLevel)).With().Timestamp().Logger())
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	zl, ok := s.root.Load().(zerolog.Logger)
	if !ok {
		return zerolog.Nop()
	}
	return zl
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// SetChatTarget sets where the chat sink delivers. chatID 0 disables it.
func (s *Service) SetChatTarget(chatID int64, threadID int) {
	s.mu.Lock()
	s.chatID = chatID
	if threadID != 0 {
		s.threadID = threadID
	}
	s.mu.Unlock()
}

func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
	if f != nil {
		return f.Close()
	}
	return nil
}

// Apply swaps logger outputs and levels. Safe for concurrent use.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	s.minLevel = parseLevel(cfg.Chat.MinLevel, zerolog.WarnLevel)
	rps := max(1, cfg.Chat.RatePerSec)
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	if cfg.Chat.ThreadID != 0 {
		s.threadID = cfg.Chat.ThreadID
	}

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	writers := make([]io.Writer, 0, 3)
	if cfg.Console {
		writers = append(writers, newConsoleWriter(os.Stdout))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = "./nthweekday.log"
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logx: failed opening log file %q: %v\n", path, err)
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	if cfg.Chat.Enabled && s.sender != nil {
		s.chatOnce.Do(func() {
			ctx, cancel := context.WithCancel(context.Background())
			s.cancel = cancel
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.chatWorker(ctx)
			}()
		})
		writers = append(writers, &chatWriter{svc: s})
		if s.chatID == 0 {
			fmt.Fprintln(os.Stderr, "logx: chat logging enabled but no target chat is set")
		}
	}
	if len(writers) == 0 {
		writers = append(writers, newConsoleWriter(os.Stdout))
	}

	lvl := parseLevel(cfg.Level, zerolog.InfoLevel)
	s.root.Store(zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(lvl).With().Timestamp().Logger())
}

func (s *Service) chatWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-s.chatQueue:
			_, _ = s.sender.SendText(ctx, it.to, it.msg, &transport.SendOptions{DisablePreview: true})
		}
	}
}

type chatWriter struct{ svc *Service }

func (w *chatWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *chatWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s := w.svc
	s.mu.Lock()
	chatID, threadID, lim, min := s.chatID, s.threadID, s.limiter, s.minLevel
	s.mu.Unlock()

	if chatID == 0 || lim == nil || level < min || !lim.Allow() {
		return len(p), nil
	}
	msg := formatChatLine(p)
	if msg == "" {
		return len(p), nil
	}
	// Never block logging on the network.
	select {
	case s.chatQueue <- chatItem{to: transport.ChatTarget{ChatID: chatID, ThreadID: threadID}, msg: msg}:
	default:
	}
	return len(p), nil
}

// formatChatLine renders a zerolog JSON line as "[LEVEL] message" followed by
// one "- key=value" line per field, sorted by key.
func formatChatLine(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return truncate(strings.TrimSpace(string(p)), 3500)
	}
	lvl, _ := m["level"].(string)
	msg, _ := m["message"].(string)

	var b strings.Builder
	if lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", "message":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("\n- " + k + "=")
		b.WriteString(truncate(fmt.Sprint(m[k]), 600))
	}
	return truncate(b.String(), 3500)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n < 10 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
