package router

import (
	"context"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"nthweekday/internal/runtime/supervisor"
	"nthweekday/internal/transport"
	"nthweekday/pkg/logx"
)

type Router struct {
	mu    sync.RWMutex
	root  *cmdNode
	alias map[string]*cmdNode

	owners []int64

	log    logx.Logger
	sender transport.Sender

	jobs chan func()
}

func New(log logx.Logger, sender transport.Sender, owners []int64) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		root:   newRoot(),
		alias:  map[string]*cmdNode{},
		owners: slices.Clone(owners),
		log:    log,
		sender: sender,
		jobs:   make(chan func(), 64),
	}
	r.SetCommands(nil)
	return r
}

func (r *Router) SetOwners(owners []int64) {
	cp := slices.Clone(owners)
	r.mu.Lock()
	r.owners = cp
	r.mu.Unlock()
}

func (r *Router) isOwner(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Contains(r.owners, id)
}

// SetCommands replaces the command registry. A help command is always
// added.
func (r *Router) SetCommands(cmds []Command) {
	cmds = append(slices.Clone(cmds), Command{
		Route:       "help",
		Aliases:     []string{"start"},
		Description: "show commands",
		Usage:       "/help [cmd] [sub...]",
		Handle: func(ctx context.Context, req *Request) error {
			return req.ReplyHTML(ctx, r.helpText(req.Args))
		},
	})

	root := newRoot()
	alias := map[string]*cmdNode{}
	for _, c := range cmds {
		route := splitRoute(c.Route)
		if len(route) == 0 || c.Handle == nil {
			continue
		}
		leaf := root.add(route, c)
		// "/wom_list" reaches "wom list"; a single-token route needs no alias
		if len(route) > 1 {
			if menu := sanitizeCommand(strings.Join(route, "_")); menu != "" {
				alias[menu] = leaf
			}
		}
		for _, a := range c.Aliases {
			if a = sanitizeCommand(a); a != "" {
				alias[a] = leaf
			}
		}
	}

	r.mu.Lock()
	r.root = root
	r.alias = alias
	r.mu.Unlock()
}

// MenuCommands returns the chat menu for the current registry.
func (r *Router) MenuCommands() []transport.BotCommand {
	r.mu.RLock()
	root := r.root
	r.mu.RUnlock()

	var out []transport.BotCommand
	var walk func(n *cmdNode, path []string)
	walk = func(n *cmdNode, path []string) {
		for _, name := range n.childNames() {
			ch, _ := n.child(name)
			p := append(slices.Clone(path), name)
			if ch.cmd != nil {
				desc := strings.TrimSpace(ch.cmd.Description)
				if desc == "" {
					desc = strings.Join(p, " ")
				}
				if ch.cmd.Access == AccessOwnerOnly {
					desc = "(owner) " + desc
				}
				if cmd := sanitizeCommand(strings.Join(p, "_")); cmd != "" {
					out = append(out, transport.BotCommand{Command: cmd, Description: truncate(desc, 256)})
				}
			}
			walk(ch, p)
		}
	}
	walk(root, nil)
	if len(out) > 100 {
		out = out[:100]
	}
	return out
}

// DispatchLoop routes messages until ctx is done or in is closed. Handlers
// run on a small worker pool.
func (r *Router) DispatchLoop(ctx context.Context, in <-chan transport.Message) error {
	workers := min(max(runtime.NumCPU(), 2), 4)
	sup := supervisor.New(ctx, supervisor.WithLogger(r.log))
	for i := 0; i < workers; i++ {
		sup.GoRestart("command.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-r.jobs:
					job()
				}
			}
		}, supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	r.log.Info("command dispatcher started", logx.Int("workers", workers))
	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Stop(wctx)
		cancel()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			if job := r.route(ctx, msg); job != nil {
				select {
				case r.jobs <- job:
				default:
					_, _ = r.send(ctx, msg, "busy, try again")
				}
			}
		}
	}
}

// Handle routes msg and runs the handler synchronously.
func (r *Router) Handle(ctx context.Context, msg transport.Message) {
	if job := r.route(ctx, msg); job != nil {
		job()
	}
}

func (r *Router) send(ctx context.Context, msg transport.Message, text string) (transport.MessageRef, error) {
	if r.sender == nil {
		return transport.MessageRef{}, nil
	}
	return r.sender.SendText(ctx, transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}, text, nil)
}

// route resolves msg to a ready-to-run job, or nil when nothing should run.
func (r *Router) route(ctx context.Context, msg transport.Message) func() {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return nil
	}
	parts := tokenizeCommandLine(text)
	if len(parts) == 0 {
		return nil
	}
	word := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	args := parts[1:]

	r.mu.RLock()
	root, alias := r.root, r.alias
	r.mu.RUnlock()

	var (
		node *cmdNode
		path []string
	)
	if leaf, ok := alias[word]; ok {
		node, path = leaf, splitRoute(leaf.cmd.Route)
	} else {
		cur, ok := root.child(word)
		if !ok {
			_, _ = r.send(ctx, msg, "unknown command, try /help")
			return nil
		}
		path = []string{word}
		for len(args) > 0 {
			next, ok := cur.child(args[0])
			if !ok {
				break
			}
			cur = next
			path = append(path, strings.ToLower(args[0]))
			args = args[1:]
		}
		node = cur
	}

	if node.cmd == nil {
		req := &Request{Chat: transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}, Sender: r.sender}
		help := r.helpText(path)
		return func() { _ = req.ReplyHTML(ctx, help) }
	}
	cmd := *node.cmd
	if cmd.Access == AccessOwnerOnly && !r.isOwner(msg.FromID) {
		_, _ = r.send(ctx, msg, "unauthorized")
		return nil
	}

	rid := uuid.NewString()[:8]
	pos, flags, bools := parseFlags(args)
	req := &Request{
		Message: msg,
		Chat:    transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:  msg.FromID,
		Path:    path,
		Command: cmd.Route,
		Args:    pos,
		Flags:   flags,
		Bools:   bools,
		ReqID:   rid,
		Sender:  r.sender,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
		),
	}
	final := Chain(cmd.Handle, MWPanicRecover(), MWRequestLog(), MWReplyError(), MWTimeout(cmd.Timeout))
	return func() { _ = final(ctx, req) }
}

// sanitizeCommand maps a route or alias to a chat-safe command name
// ([a-z0-9_]{1,32}).
func sanitizeCommand(s string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, ch := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9':
			b.WriteRune(ch)
			lastUnderscore = false
		case ch == '_' || ch == '-' || ch == ' ' || ch == '/':
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
