package govern

import "sync/atomic"

// Accountant is the process-wide, thread-safe counter of bytes
// currently committed to query execution. One accountant is shared by
// every concurrent request and passed explicitly into each request's
// execution context; there is deliberately no package-level instance.
type Accountant struct {
	committed atomic.Int64

	// Gauge, when set, observes every change to the committed total.
	Gauge func(bytes int64)
}

// Reserve adds n bytes to the committed total and returns the new
// total. Callers compare their own cumulative reservation against their
// request's ceiling; the accountant itself enforces nothing.
func (a *Accountant) Reserve(n int64) int64 {
	total := a.committed.Add(n)
	if a.Gauge != nil {
		a.Gauge(total)
	}
	return total
}

// Release returns n previously reserved bytes.
func (a *Accountant) Release(n int64) {
	total := a.committed.Add(-n)
	if a.Gauge != nil {
		a.Gauge(total)
	}
}

// Committed reports the bytes currently committed across all requests.
func (a *Accountant) Committed() int64 {
	return a.committed.Load()
}
