package router

import (
	"sort"
	"strings"
)

type cmdNode struct {
	name     string
	cmd      *Command
	children map[string]*cmdNode
}

func newRoot() *cmdNode {
	return &cmdNode{children: map[string]*cmdNode{}}
}

func splitRoute(route string) []string {
	return strings.Fields(strings.ToLower(route))
}

func (r *cmdNode) add(route []string, c Command) *cmdNode {
	cur := r
	for _, tok := range route {
		n, ok := cur.children[tok]
		if !ok {
			n = &cmdNode{name: tok, children: map[string]*cmdNode{}}
			cur.children[tok] = n
		}
		cur = n
	}
	cur.cmd = &c
	return cur
}

func (r *cmdNode) child(name string) (*cmdNode, bool) {
	n, ok := r.children[strings.ToLower(name)]
	return n, ok
}

func (r *cmdNode) childNames() []string {
	out := make([]string, 0, len(r.children))
	for k := range r.children {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ownerOnly reports whether every command at or below n is owner-only.
func (n *cmdNode) ownerOnly() bool {
	if n.cmd != nil {
		return n.cmd.Access == AccessOwnerOnly
	}
	for _, ch := range n.children {
		if !ch.ownerOnly() {
			return false
		}
	}
	return len(n.children) > 0
}

// tokenizeCommandLine splits text on whitespace, honoring quotes and
// backslash escapes:
//
//	/wom add "Bin day" sat -1
func tokenizeCommandLine(s string) []string {
	var (
		out   []string
		buf   strings.Builder
		quote byte
		esc   bool
		have  bool
	)
	flush := func() {
		if have {
			out = append(out, buf.String())
			buf.Reset()
			have = false
		}
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case esc:
			buf.WriteByte(ch)
			esc, have = false, true
		case ch == '\\':
			esc = true
		case quote != 0:
			if ch == quote {
				quote = 0
			} else {
				buf.WriteByte(ch)
			}
		case ch == '"' || ch == '\'':
			quote, have = ch, true
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			flush()
		default:
			buf.WriteByte(ch)
			have = true
		}
	}
	flush()
	return out
}

// parseFlags splits args into positionals and --key=value / --key value /
// --bool flags. Tokens that look like negative numbers stay positional.
func parseFlags(args []string) (pos []string, flags map[string]string, bools map[string]bool) {
	flags = map[string]string{}
	bools = map[string]bool{}
	for i := 0; i < len(args); i++ {
		a := args[i]
		if !strings.HasPrefix(a, "--") || len(a) == 2 {
			pos = append(pos, a)
			continue
		}
		key := a[2:]
		if k, v, ok := strings.Cut(key, "="); ok {
			flags[k] = v
			continue
		}
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
			flags[key] = args[i+1]
			i++
			continue
		}
		bools[key] = true
	}
	return pos, flags, bools
}
