package playback

import (
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Admission bounds the number of concurrent video sessions process-wide.
// Holders refused a permit are queued, and free permits go to the earliest
// queued holders first so a region cannot be passed over indefinitely.
type Admission struct {
	sem      *semaphore.Weighted
	capacity int64
	held     atomic.Int64

	mu      sync.Mutex
	waiting []string
}

// NewAdmission returns an Admission with n permits (at least one).
func NewAdmission(n int) *Admission {
	if n < 1 {
		n = 1
	}
	return &Admission{sem: semaphore.NewWeighted(int64(n)), capacity: int64(n)}
}

// TryAcquire takes a permit without blocking for an anonymous holder. It
// never jumps ahead of queued holders.
func (a *Admission) TryAcquire() bool {
	return a.TryAcquireFor("")
}

// TryAcquireFor takes a permit without blocking on behalf of holder. A
// refused holder is queued until it acquires or calls Withdraw.
func (a *Admission) TryAcquireFor(holder string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	pos := -1
	if holder != "" {
		pos = slices.Index(a.waiting, holder)
	}
	ahead := pos
	if pos < 0 {
		ahead = len(a.waiting)
	}
	free := a.capacity - a.held.Load()
	if int64(ahead) < free && a.sem.TryAcquire(1) {
		a.held.Add(1)
		if pos >= 0 {
			a.waiting = slices.Delete(a.waiting, pos, pos+1)
		}
		return true
	}
	if pos < 0 && holder != "" {
		a.waiting = append(a.waiting, holder)
	}
	return false
}

// Withdraw removes holder from the queue.
func (a *Admission) Withdraw(holder string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if pos := slices.Index(a.waiting, holder); pos >= 0 {
		a.waiting = slices.Delete(a.waiting, pos, pos+1)
	}
}

// Contended reports whether any holder is queued for a permit.
func (a *Admission) Contended() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.waiting) > 0
}

// Release returns a permit taken by TryAcquire or TryAcquireFor.
func (a *Admission) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.held.Add(-1)
	a.sem.Release(1)
}

// InUse reports the number of permits currently held.
func (a *Admission) InUse() int {
	return int(a.held.Load())
}

// Capacity reports the number of permits.
func (a *Admission) Capacity() int {
	return int(a.capacity)
}
