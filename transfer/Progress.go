/*
File Name:  Progress.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Per-peer progress accounting (spec §4.5). Updates are throttled to at
most once per 500 ms unless forced, which callers do at batch start,
file completion, and batch completion so the UI never shows a stale
total across those boundaries.
*/

package transfer

import (
	"sync"
	"time"
)

const progressThrottle = 500 * time.Millisecond

// ProgressSnapshot is the accounting state reported to the host application.
type ProgressSnapshot struct {
	TotalFiles int
	DoneFiles  int
	TotalBytes uint64
	DoneBytes  uint64
}

// progressTracker accumulates one peer's send or receive progress and
// throttles delivery to an external callback.
type progressTracker struct {
	mu       sync.Mutex
	snapshot ProgressSnapshot
	lastSent time.Time
	onUpdate func(ProgressSnapshot)
}

func newProgressTracker(onUpdate func(ProgressSnapshot)) *progressTracker {
	return &progressTracker{onUpdate: onUpdate}
}

func (p *progressTracker) addTotals(files int, bytes uint64) {
	p.mu.Lock()
	p.snapshot.TotalFiles += files
	p.snapshot.TotalBytes += bytes
	p.mu.Unlock()
}

func (p *progressTracker) addDoneBytes(n uint64) {
	p.mu.Lock()
	p.snapshot.DoneBytes += n
	p.mu.Unlock()
}

func (p *progressTracker) addDoneFile() {
	p.mu.Lock()
	p.snapshot.DoneFiles++
	p.mu.Unlock()
}

func (p *progressTracker) reset() {
	p.mu.Lock()
	p.snapshot = ProgressSnapshot{}
	p.mu.Unlock()
}

// maybeSend invokes onUpdate only if force is set or progressThrottle has
// elapsed since the previous delivery (spec §4.5 MaybeSendProgressUpdate).
func (p *progressTracker) maybeSend(force bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !force && time.Since(p.lastSent) < progressThrottle {
		return
	}
	p.lastSent = time.Now()
	if p.onUpdate != nil {
		p.onUpdate(p.snapshot)
	}
}
