package background

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Task is a periodic job with a cancellation handle. The zero value is not usable;
// create tasks with [Every].
type Task struct {
	cron     *cron.Cron
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// delay fires every d without the whole-second rounding of [cron.Every].
type delay time.Duration

func (d delay) Next(t time.Time) time.Time { return t.Add(time.Duration(d)) }

func scheduleFor(interval time.Duration) cron.Schedule {
	if interval%time.Second == 0 {
		return cron.Every(interval)
	}
	return delay(interval)
}

// Every runs fn once per interval on its own cron scheduler until the returned Task is
// stopped. The context passed to fn is cancelled when Stop is called, so long-running
// ticks can bail out early. A tick that is still running when the next one is due
// causes that next tick to be skipped.
//
// A non-positive interval returns an already-stopped task.
func Every(interval time.Duration, fn func(ctx context.Context)) *Task {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if interval <= 0 || fn == nil {
		cancel()
		close(t.done)
		return t
	}

	t.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	t.cron.Schedule(scheduleFor(interval), cron.FuncJob(func() {
		if ctx.Err() == nil {
			fn(ctx)
		}
	}))
	t.cron.Start()
	return t
}

// Stop cancels the task and waits for an in-progress tick to return. Stop is idempotent
// and safe on a nil receiver.
func (t *Task) Stop() {
	if t == nil {
		return
	}
	t.stopOnce.Do(func() {
		t.cancel()
		if t.cron != nil {
			<-t.cron.Stop().Done()
			close(t.done)
		}
	})
}

// Done is closed once the scheduler has stopped and no tick is running.
func (t *Task) Done() <-chan struct{} {
	if t == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return t.done
}
