package bot

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// dispatcher runs each chat's updates one at a time in arrival order, and
// different chats in parallel. A chat's worker exits once its queue drains.
type dispatcher struct {
	handle func(context.Context, Update)
	log    zerolog.Logger

	mu     sync.Mutex
	queues map[int64][]Update
	wg     sync.WaitGroup
}

func newDispatcher(handle func(context.Context, Update), log zerolog.Logger) *dispatcher {
	return &dispatcher{handle: handle, log: log, queues: map[int64][]Update{}}
}

func (d *dispatcher) dispatch(ctx context.Context, u Update) {
	d.mu.Lock()
	q, running := d.queues[u.ChatID]
	d.queues[u.ChatID] = append(q, u)
	d.mu.Unlock()
	if running {
		return
	}
	d.wg.Add(1)
	go d.drain(ctx, u.ChatID)
}

func (d *dispatcher) drain(ctx context.Context, chatID int64) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		q := d.queues[chatID]
		if len(q) == 0 {
			delete(d.queues, chatID)
			d.mu.Unlock()
			return
		}
		u := q[0]
		d.queues[chatID] = q[1:]
		d.mu.Unlock()
		d.run(ctx, u)
	}
}

func (d *dispatcher) run(ctx context.Context, u Update) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Int64("chat", u.ChatID).Msg("update handler panicked")
		}
	}()
	d.handle(ctx, u)
}

// wait blocks until every queued update has been handled.
func (d *dispatcher) wait() { d.wg.Wait() }
