package journal

import (
	"context"
	"sync/atomic"
	"time"

	"execgw/internal/og"

	"github.com/yanun0323/logs"
)

const defaultWriteTimeout = 5 * time.Second

// Journal persists tracker events off the tracker goroutine. Events that do
// not fit in the queue are dropped and counted.
type Journal struct {
	store        Store
	queue        chan og.Event
	writeTimeout time.Duration
	dropped      atomic.Uint64
	written      atomic.Uint64
}

func New(store Store, queueSize int) *Journal {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Journal{
		store:        store,
		queue:        make(chan og.Event, queueSize),
		writeTimeout: defaultWriteTimeout,
	}
}

// Listener returns the tracker callback feeding the journal.
func (j *Journal) Listener() og.Listener {
	return func(e og.Event) {
		select {
		case j.queue <- e:
		default:
			if j.dropped.Add(1)&(1<<10-1) == 1 {
				logs.Warnf("journal queue full, dropped: %d", j.dropped.Load())
			}
		}
	}
}

func (j *Journal) Dropped() uint64 {
	return j.dropped.Load()
}

// Written returns the number of events persisted.
func (j *Journal) Written() uint64 {
	return j.written.Load()
}

// Run writes events until ctx is done, then flushes what is queued.
func (j *Journal) Run(ctx context.Context) error {
	for {
		select {
		case e := <-j.queue:
			j.write(context.Background(), e)
		case <-ctx.Done():
			for {
				select {
				case e := <-j.queue:
					j.write(context.Background(), e)
				default:
					return nil
				}
			}
		}
	}
}

func (j *Journal) write(parent context.Context, e og.Event) {
	ctx, cancel := context.WithTimeout(parent, j.writeTimeout)
	defer cancel()

	if e.Fill != nil {
		if err := j.store.SaveFill(ctx, fillRow(e.Order.ClientOrderID, *e.Fill)); err != nil {
			logs.Errorf("journal fill %s, err: %+v", e.Fill.ID, err)
		}
	}
	if err := j.store.SaveOrder(ctx, orderRow(e.Order)); err != nil {
		logs.Errorf("journal order %s, err: %+v", e.Order.ClientOrderID, err)
		return
	}
	j.written.Add(1)
}
