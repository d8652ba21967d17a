package system

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"nthweekday/internal/task/scheduler"
	"nthweekday/internal/transport/telegram/router"
)

func (p *Plugin) cmdHealth(ctx context.Context, req *router.Request) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var b strings.Builder
	b.WriteString("🩺 health\n")
	fmt.Fprintf(&b, "- uptime: %s\n", durRel(time.Since(p.startedAt)))
	fmt.Fprintf(&b, "- go: %s, goroutines: %d\n", runtime.Version(), runtime.NumGoroutine())
	fmt.Fprintf(&b, "- mem: alloc=%s sys=%s\n", fmtBytes(m.Alloc), fmtBytes(m.Sys))

	b.WriteString("\n🧩 plugins\n")
	if p.Deps.Status == nil {
		b.WriteString("  (not available)\n")
	} else {
		for _, st := range p.Deps.Status() {
			line := fmt.Sprintf("  - %s en=%t run=%t", st.Name, st.Enabled, st.Running)
			if st.LastError != "" {
				line += " err=" + shorten(st.LastError, 96)
			}
			b.WriteString(line + "\n")
		}
	}

	b.WriteString("\n⏱ scheduler\n")
	s := p.Deps.Scheduler
	switch {
	case s == nil:
		b.WriteString("  (not available)\n")
	case !s.Enabled():
		b.WriteString("  disabled\n")
	default:
		fmt.Fprintf(&b, "  tz=%s schedules=%d\n", s.Location(), len(s.Schedules()))
	}
	return req.Reply(ctx, b.String())
}

func (p *Plugin) cmdSched(ctx context.Context, req *router.Request) error {
	s := p.Deps.Scheduler
	if s == nil || !s.Enabled() {
		return req.Reply(ctx, "scheduler is disabled")
	}
	items := s.Schedules()
	if len(items) == 0 {
		return req.Reply(ctx, "no scheduled tasks")
	}
	sortByNext(items)

	now := s.Now()
	lines := make([]string, 0, len(items)+1)
	lines = append(lines, "⏱ scheduled tasks ("+s.Location().String()+"):")
	for _, it := range items {
		next := "-"
		if !it.Next.IsZero() {
			next = it.Next.In(s.Location()).Format(time.DateTime)
			if it.Next.After(now) {
				next += " (in " + durRel(it.Next.Sub(now)) + ")"
			}
		}
		lines = append(lines, fmt.Sprintf("- %s: spec=%s, next=%s", it.Name, it.Spec, next))
	}
	return req.Reply(ctx, strings.Join(lines, "\n"))
}

// sortByNext orders by next run; schedules without one go last.
func sortByNext(items []scheduler.ScheduleInfo) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i].Next, items[j].Next
		switch {
		case a.IsZero() && b.IsZero(), a.Equal(b):
			return items[i].Name < items[j].Name
		case a.IsZero():
			return false
		case b.IsZero():
			return true
		}
		return a.Before(b)
	})
}

func shorten(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
