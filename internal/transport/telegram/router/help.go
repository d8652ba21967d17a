package router

import (
	"html"
	"slices"
	"strings"
)

// helpText renders help for path in HTML parse mode.
func (r *Router) helpText(path []string) string {
	r.mu.RLock()
	root, alias := r.root, r.alias
	r.mu.RUnlock()

	if len(path) == 0 {
		return helpTop(root)
	}
	cur := root
	full := make([]string, 0, len(path))
	for _, p := range path {
		n, ok := cur.child(p)
		if !ok {
			if leaf, ok := alias[strings.ToLower(p)]; ok {
				return helpNode(leaf, splitRoute(leaf.cmd.Route))
			}
			return "<b>Unknown command</b>\nTry <code>/help</code>."
		}
		cur = n
		full = append(full, n.name)
	}
	return helpNode(cur, full)
}

func helpTop(root *cmdNode) string {
	lines := []string{"<b>Commands</b>", "Use <code>/help &lt;cmd&gt;</code> for details.", ""}
	for _, name := range root.childNames() {
		n, _ := root.child(name)
		line := "/" + html.EscapeString(name)
		if d := describe(n); d != "" {
			line += " - " + html.EscapeString(d)
		}
		if n.ownerOnly() {
			line += " (owner)"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func helpNode(cur *cmdNode, full []string) string {
	lines := []string{"<b>Help</b> <code>/" + html.EscapeString(strings.Join(full, " ")) + "</code>"}
	if c := cur.cmd; c != nil {
		if d := strings.TrimSpace(c.Description); d != "" {
			lines = append(lines, html.EscapeString(d))
		}
		if c.Access == AccessOwnerOnly {
			lines = append(lines, "<i>owner only</i>")
		}
		if u := strings.TrimSpace(c.Usage); u != "" {
			lines = append(lines, "", "<b>Usage</b>", "<code>"+html.EscapeString(u)+"</code>")
		}
	}
	if len(cur.children) > 0 {
		lines = append(lines, "", "<b>Subcommands</b>")
		for _, name := range cur.childNames() {
			n, _ := cur.child(name)
			line := "• <code>/" + html.EscapeString(strings.Join(append(slices.Clone(full), name), " ")) + "</code>"
			if d := describe(n); d != "" {
				line += " - " + html.EscapeString(d)
			}
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func describe(n *cmdNode) string {
	if n.cmd != nil && strings.TrimSpace(n.cmd.Description) != "" {
		return strings.TrimSpace(n.cmd.Description)
	}
	kids := n.childNames()
	if len(kids) == 0 {
		return ""
	}
	if len(kids) > 3 {
		return "subcommands: " + strings.Join(kids[:3], ", ") + ", ..."
	}
	return "subcommands: " + strings.Join(kids, ", ")
}
