package painclient

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onco/onco/internal/domain/pain"
	"github.com/onco/onco/internal/platform/debounce"
)

// Result is one delivered safety check.
type Result struct {
	Seq      uint64
	Response *pain.SafetyCheckResponse
	Err      error
}

// Watcher debounces regimen edits and delivers only the answer to the most
// recently issued request. Answers to older requests are counted and dropped.
type Watcher struct {
	checker  Checker
	deb      *debounce.Debouncer
	onResult func(Result)

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	issued atomic.Uint64
	stale  atomic.Uint64

	deliverMu sync.Mutex
	delivered uint64
}

// NewWatcher calls onResult serially, in issue order, for each fresh answer.
func NewWatcher(checker Checker, delay time.Duration, onResult func(Result)) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		checker:  checker,
		deb:      debounce.New(delay),
		onResult: onResult,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Submit schedules a check of body once edits pause.
func (w *Watcher) Submit(body pain.SafetyCheckBody) {
	w.deb.Debounce(func() { w.issue(body) })
}

func (w *Watcher) issue(body pain.SafetyCheckBody) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	seq := w.issued.Add(1)
	w.wg.Add(1)
	w.mu.Unlock()

	body.RequestSeq = &seq
	go func() {
		defer w.wg.Done()
		resp, err := w.checker.SafetyCheck(w.ctx, body)
		w.deliver(seq, resp, err)
	}()
}

func (w *Watcher) deliver(seq uint64, resp *pain.SafetyCheckResponse, err error) {
	w.deliverMu.Lock()
	defer w.deliverMu.Unlock()

	if resp != nil && resp.RequestSeq != nil && *resp.RequestSeq != seq {
		w.stale.Add(1)
		return
	}
	if seq != w.issued.Load() || seq <= w.delivered || w.ctx.Err() != nil {
		w.stale.Add(1)
		return
	}
	w.delivered = seq
	if w.onResult != nil {
		w.onResult(Result{Seq: seq, Response: resp, Err: err})
	}
}

// Issued is the sequence number of the newest request sent.
func (w *Watcher) Issued() uint64 { return w.issued.Load() }

// Stale counts answers dropped because a newer request had been issued.
func (w *Watcher) Stale() uint64 { return w.stale.Load() }

// Close drops any pending edit, cancels in-flight checks and waits for them.
func (w *Watcher) Close() {
	w.deb.Close()
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.cancel()
	w.wg.Wait()
}
