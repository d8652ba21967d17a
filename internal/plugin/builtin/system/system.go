// Package system exposes host status commands: liveness, uptime, runtime
// and scheduler state.
package system

import (
	"context"
	"fmt"
	"time"

	"nthweekday/internal/plugin"
	"nthweekday/internal/transport/telegram/router"
)

const Name = "system"

type Plugin struct {
	plugin.Base
	startedAt time.Time
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return Name }

func (p *Plugin) Init(ctx context.Context, deps plugin.Deps) error {
	p.InitBase(deps, p.Name())
	if p.startedAt.IsZero() {
		p.startedAt = time.Now()
	}
	return nil
}

func (p *Plugin) Start(ctx context.Context) error {
	p.StartBase(ctx)
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error { return p.StopBase(ctx) }

func (p *Plugin) Commands() []router.Command {
	return []router.Command{
		{
			Route:       "ping",
			Description: "check that the bot answers",
			Usage:       "/ping",
			Access:      router.AccessEveryone,
			Handle: func(ctx context.Context, req *router.Request) error {
				return req.Reply(ctx, "pong")
			},
		},
		{
			Route:       "uptime",
			Aliases:     []string{"up"},
			Description: "show how long the bot has been running",
			Usage:       "/uptime",
			Access:      router.AccessEveryone,
			Handle: func(ctx context.Context, req *router.Request) error {
				return req.Reply(ctx, "uptime: "+durRel(time.Since(p.startedAt)))
			},
		},
		{
			Route:       "health",
			Aliases:     []string{"status"},
			Description: "runtime, plugin and scheduler health",
			Usage:       "/health",
			Access:      router.AccessOwnerOnly,
			Timeout:     5 * time.Second,
			Handle:      p.cmdHealth,
		},
		{
			Route:       "sched",
			Aliases:     []string{"sched_list"},
			Description: "list scheduled refresh triggers",
			Usage:       "/sched",
			Access:      router.AccessOwnerOnly,
			Handle:      p.cmdSched,
		},
	}
}

func durRel(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 48*time.Hour {
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dd%dh", int(d.Hours())/24, int(d.Hours())%24)
}

func fmtBytes(n uint64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case n >= GB:
		return fmt.Sprintf("%.1fGB", float64(n)/GB)
	case n >= MB:
		return fmt.Sprintf("%.1fMB", float64(n)/MB)
	case n >= KB:
		return fmt.Sprintf("%.1fKB", float64(n)/KB)
	default:
		return fmt.Sprintf("%dB", n)
	}
}
