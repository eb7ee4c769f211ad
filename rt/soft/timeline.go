package soft

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/pathtrace/rt"
	"github.com/gogpu/wgpu/hal"
)

// command is one recorded operation. Commands run on the timeline goroutine
// in submission order.
type command func(d *Device) error

type batch struct {
	index  uint64
	label  string
	wait   *Semaphore
	cmds   []command
	signal *Semaphore
	fence  *Fence
	value  uint64
}

// timeline executes batches strictly in order on one goroutine. The first
// execution error is sticky: later batches are skipped and waits report the
// device as lost.
type timeline struct {
	dev *Device

	mu        sync.Mutex
	cond      *sync.Cond
	pending   []batch
	submitted uint64
	completed uint64
	err       error
	closed    bool
	done      chan struct{}
}

func newTimeline(dev *Device) *timeline {
	t := &timeline{dev: dev, done: make(chan struct{})}
	t.cond = sync.NewCond(&t.mu)
	go t.run()
	return t
}

func (t *timeline) enqueue(b batch) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, fmt.Errorf("%w: device destroyed", hal.ErrDeviceLost)
	}
	t.submitted++
	b.index = t.submitted
	t.pending = append(t.pending, b)
	t.cond.Broadcast()
	return b.index, nil
}

func (t *timeline) run() {
	defer close(t.done)
	for {
		t.mu.Lock()
		for len(t.pending) == 0 && !t.closed {
			t.cond.Wait()
		}
		if len(t.pending) == 0 {
			t.mu.Unlock()
			return
		}
		b := t.pending[0]
		t.pending = t.pending[1:]
		lost := t.err != nil
		t.mu.Unlock()

		var err error
		if !lost {
			err = t.execute(&b)
		}

		t.mu.Lock()
		if err != nil && t.err == nil {
			t.err = err
			slogger().Error("soft: batch failed", "index", b.index, "label", b.label, "err", err)
		}
		if t.err == nil {
			if b.signal != nil {
				if b.signal.signaled {
					t.err = fmt.Errorf("%w: semaphore signaled twice", rt.ErrSemaphoreState)
				}
				b.signal.signaled = true
			}
			if b.fence != nil && b.value > b.fence.value {
				b.fence.value = b.value
			}
		}
		t.completed = b.index
		t.cond.Broadcast()
		t.mu.Unlock()
	}
}

func (t *timeline) execute(b *batch) error {
	if b.wait != nil {
		t.mu.Lock()
		ok := b.wait.signaled
		b.wait.signaled = false
		t.mu.Unlock()
		if !ok {
			return ErrUnsignaledSemaphore
		}
	}
	for _, cmd := range b.cmds {
		if err := cmd(t.dev); err != nil {
			if b.label != "" {
				return fmt.Errorf("%s: %w", b.label, err)
			}
			return err
		}
	}
	return nil
}

func (t *timeline) lostError() error {
	return fmt.Errorf("%w: %w", hal.ErrDeviceLost, t.err)
}

// waitFor blocks until cond holds or the device is lost. A zero timeout
// polls once and a negative timeout waits forever. It must be called with
// t.mu held.
func (t *timeline) waitFor(cond func() bool, timeout time.Duration) (bool, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
		timer := time.AfterFunc(timeout, func() {
			t.mu.Lock()
			t.cond.Broadcast()
			t.mu.Unlock()
		})
		defer timer.Stop()
	}
	for !cond() {
		if t.err != nil {
			return false, t.lostError()
		}
		if timeout == 0 || (timeout > 0 && !time.Now().Before(deadline)) {
			return false, nil
		}
		t.cond.Wait()
	}
	return true, nil
}

// idle waits for every submitted batch to complete.
func (t *timeline) idle() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	target := t.submitted
	for t.completed < target {
		t.cond.Wait()
	}
	if t.err != nil {
		return t.lostError()
	}
	return nil
}

func (t *timeline) close() {
	t.mu.Lock()
	t.closed = true
	t.cond.Broadcast()
	t.mu.Unlock()
	<-t.done
}

func (t *timeline) lastCompleted() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}

// failure returns the error that lost the device, or nil.
func (t *timeline) failure() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil {
		return nil
	}
	return t.lostError()
}
