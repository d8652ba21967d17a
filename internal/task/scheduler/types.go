package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"nthweekday/pkg/logx"
)

type Config struct {
	Enabled  bool
	Timezone string // IANA TZ, e.g. "Europe/Berlin"; empty means Local
}

type Job func(ctx context.Context) error

type scheduleDef struct {
	name    string
	spec    string // cron spec or @every
	timeout time.Duration
	job     Job
	entryID cron.EntryID
	running *atomic.Bool
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	// base is canceled on Stop so in-flight jobs see shutdown.
	base       context.Context
	cancelBase context.CancelFunc
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}
