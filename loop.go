package provision

import (
	"context"

	"go.uber.org/zap"
)

const loopQueueSize = 64

// Loop is a serialized executor. Everything that touches the exported GATT
// objects or the provisioning state runs on a single goroutine, so none of
// those components need their own locking. D-Bus method handlers, netlink
// events, and bluez registration continuations all arrive on other
// goroutines and are marshalled in through Invoke or Call.
type Loop struct {
	logger  *zap.SugaredLogger
	tasks   chan func()
	stopped chan struct{}
}

func NewLoop(logger *zap.SugaredLogger) *Loop {
	return &Loop{
		logger:  logger,
		tasks:   make(chan func(), loopQueueSize),
		stopped: make(chan struct{}),
	}
}

// Run drains the task queue until ctx is cancelled. Tasks execute strictly
// in arrival order.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Invoke queues fn for execution on the loop and returns without waiting.
func (l *Loop) Invoke(fn func()) {
	select {
	case l.tasks <- fn:
	case <-l.stopped:
		l.logger.Debug("loop stopped, dropping queued task")
	}
}

// Call queues fn and blocks until the loop has executed it. Used by D-Bus
// method handlers that must produce a reply. Must not be called from the
// loop goroutine itself.
func (l *Loop) Call(fn func()) {
	done := make(chan struct{})
	l.Invoke(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
	case <-l.stopped:
	}
}
