package health

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/Yahir019cx/pool-and-chill-app/internal/log"
	"github.com/Yahir019cx/pool-and-chill-app/internal/sdk"
)

// ProcessStats describes the daemon process. Fields gopsutil cannot read on
// this platform are left zero.
type ProcessStats struct {
	PID        int32   `json:"pid"`
	Goroutines int     `json:"goroutines"`
	Threads    int32   `json:"threads,omitempty"`
	RSSBytes   uint64  `json:"rssBytes,omitempty"`
	CPUPercent float64 `json:"cpuPercent,omitempty"`
}

// Report is the body of the health endpoint.
type Report struct {
	Status    Status             `json:"status"`
	Uptime    string             `json:"uptime"`
	SDKState  sdk.LifecycleState `json:"sdkState"`
	SDK       SDKHealth          `json:"sdk"`
	Process   ProcessStats       `json:"process"`
	Pending   bool               `json:"pending"`
	CheckedAt time.Time          `json:"checkedAt"`
}

// Checker assembles health reports.
type Checker struct {
	tracker *Tracker
	started time.Time
	proc    *process.Process
	logger  zerolog.Logger
	now     func() time.Time
}

func NewChecker(tracker *Tracker) *Checker {
	c := &Checker{
		tracker: tracker,
		started: time.Now(),
		logger:  log.WithComponent("health"),
		now:     time.Now,
	}
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		c.logger.Warn().Err(err).Str("event", "health.process_unavailable").Msg("process stats disabled")
	} else {
		c.proc = p
	}
	return c
}

// Report builds a health report. A failed SDK state or a failed tracker
// marks the whole report failed.
func (c *Checker) Report(ctx context.Context, state sdk.LifecycleState, pending bool) Report {
	r := Report{
		Uptime:    c.now().Sub(c.started).Round(time.Second).String(),
		SDKState:  state,
		SDK:       c.tracker.Snapshot(),
		Process:   c.processStats(ctx),
		Pending:   pending,
		CheckedAt: c.now(),
	}
	r.Status = r.SDK.Status
	if state.Kind == sdk.Error && r.Status == StatusHealthy {
		r.Status = StatusDegraded
	}
	return r
}

func (c *Checker) processStats(ctx context.Context) ProcessStats {
	ps := ProcessStats{
		PID:        int32(os.Getpid()),
		Goroutines: runtime.NumGoroutine(),
	}
	if c.proc == nil {
		return ps
	}
	if mem, err := c.proc.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		ps.RSSBytes = mem.RSS
	}
	if cpu, err := c.proc.CPUPercentWithContext(ctx); err == nil {
		ps.CPUPercent = cpu
	}
	if n, err := c.proc.NumThreadsWithContext(ctx); err == nil {
		ps.Threads = n
	}
	return ps
}
