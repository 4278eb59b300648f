package target

import (
	"runtime"
	"sync"
)

// ptraceThread funnels every ptrace request of one tracee through a single
// goroutine locked to its OS thread. Linux only accepts requests from the
// thread that became the tracer, and the Go scheduler would otherwise move
// the caller between threads.
//
// issue: https://github.com/golang/go/issues/7699
type ptraceThread struct {
	once     sync.Once
	stopOnce sync.Once

	reqCh  chan func()
	doneCh chan struct{}
	stopCh chan struct{}
}

func newPtraceThread() *ptraceThread {
	return &ptraceThread{
		reqCh:  make(chan func()),
		doneCh: make(chan struct{}),
		stopCh: make(chan struct{}),
	}
}

// exec runs fn on the tracer thread and waits for it to return.
// It must not be called after stop.
func (t *ptraceThread) exec(fn func()) {
	t.once.Do(func() {
		go t.loop()
	})
	t.reqCh <- fn
	<-t.doneCh
}

func (t *ptraceThread) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case fn := <-t.reqCh:
			fn()
			t.doneCh <- struct{}{}
		case <-t.stopCh:
			return
		}
	}
}

// stop releases the tracer thread, it is safe to call more than once.
func (t *ptraceThread) stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
	})
}
