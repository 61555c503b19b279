package resync

import "sync"

// Once behaves like sync.Once but can be reset, which is mostly useful
// to reinitialize lazy-loaded singletons between unit tests.
type Once struct {
	m    sync.Mutex
	done bool
}

func (o *Once) Do(f func()) {
	o.m.Lock()
	defer o.m.Unlock()
	if o.done {
		return
	}
	defer func() {
		o.done = true
	}()
	f()
}

// Reset allows the next call to Do to execute its function again.
func (o *Once) Reset() {
	o.m.Lock()
	defer o.m.Unlock()
	o.done = false
}
