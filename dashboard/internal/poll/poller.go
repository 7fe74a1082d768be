package poll

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"av-ops-console/shared/issues"
	"av-ops-console/shared/logx"
	"av-ops-console/shared/metricsx"
)

// Snapshot is one complete poll result. Every snapshot replaces the
// previous one wholesale; consumers must not merge snapshots.
type Snapshot struct {
	Seq       uint64
	Issues    []issues.Issue
	FetchedAt time.Time
}

type Fetcher interface {
	Issues(ctx context.Context) []issues.Issue
}

// Poller fetches the issue snapshot immediately on start and then on a
// fixed interval until stopped. Fetches run asynchronously and may
// complete in any order relative to later ticks, so each fetch carries
// a monotonic sequence number and a result older than the one already
// applied is discarded instead of clobbering fresher state.
type Poller struct {
	fetcher  Fetcher
	interval time.Duration
	log      logx.Logger
	onUpdate func(Snapshot)

	nextSeq atomic.Uint64

	mu      sync.Mutex
	current Snapshot
	started bool
	stopped bool
	cancel  context.CancelFunc
}

// New builds a poller. onUpdate may be nil; when set it is invoked
// once per applied snapshot, in applied order, and must not call
// back into the poller.
func New(fetcher Fetcher, interval time.Duration, log logx.Logger, onUpdate func(Snapshot)) *Poller {
	return &Poller{
		fetcher:  fetcher,
		interval: interval,
		log:      log,
		onUpdate: onUpdate,
	}
}

// Start begins polling. Calling Start more than once has no effect.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	go p.run(ctx)
}

func (p *Poller) run(ctx context.Context) {
	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	seq := p.nextSeq.Add(1)
	go func() {
		start := time.Now()
		snapshot := Snapshot{
			Seq:       seq,
			Issues:    p.fetcher.Issues(ctx),
			FetchedAt: time.Now(),
		}
		metricsx.ObservePollDuration(time.Since(start))
		p.apply(ctx, snapshot)
	}()
}

func (p *Poller) apply(ctx context.Context, snapshot Snapshot) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	if snapshot.Seq <= p.current.Seq {
		p.mu.Unlock()
		metricsx.IncStaleSnapshotDiscarded()
		p.log.Debug(ctx, "stale_snapshot_discarded", "poll result arrived out of order",
			slog.Uint64("seq", snapshot.Seq))
		return
	}
	p.current = snapshot
	// Delivered while still holding the lock so callbacks observe
	// snapshots in applied order. onUpdate must not call back into
	// the poller.
	if p.onUpdate != nil {
		p.onUpdate(snapshot)
	}
	p.mu.Unlock()
}

// Stop cancels the poll loop and blocks any in-flight result from
// being applied. Safe to call more than once.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	if p.cancel != nil {
		p.cancel()
	}
}

// Current returns the latest applied snapshot. Seq is zero until the
// first fetch lands.
func (p *Poller) Current() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}
