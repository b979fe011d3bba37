package websocket

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/yanun0323/errors"
)

var (
	// ErrNotConnected is returned when sending while the writer is disconnected.
	ErrNotConnected = errors.New("websocket: not connected")
	// ErrQueueFull is returned when the outbound queue cannot accept more frames.
	ErrQueueFull = errors.New("websocket: outbound queue full")
)

// OutboundFrame represents a queued write payload.
type OutboundFrame struct {
	// Kind tells the writer loop what the payload carries.
	Kind FrameKind
	// ID is the correlation id for FrameRequest, zero otherwise.
	ID uint64
	// MsgType is the WebSocket message type for the payload.
	MsgType MessageType
	// Buf is the payload buffer to send.
	Buf  []byte
	pool *OutboundPool
}

// Release returns the payload buffer and the frame to the pool.
func (f *OutboundFrame) Release() {
	if f == nil || f.pool == nil {
		return
	}
	if f.Buf != nil && f.pool.buffers != nil {
		f.pool.buffers.Put(f.Buf)
	}
	f.Kind = 0
	f.ID = 0
	f.MsgType = 0
	f.Buf = nil
	f.pool.pool.Put(f)
}

// OutboundPool recycles outbound frames and buffers.
type OutboundPool struct {
	buffers *BufferPool
	pool    sync.Pool
}

// NewOutboundPool creates an OutboundPool.
func NewOutboundPool(buffers *BufferPool) *OutboundPool {
	op := &OutboundPool{buffers: buffers}
	op.pool.New = func() any {
		return &OutboundFrame{}
	}
	return op
}

func (p *OutboundPool) get(kind FrameKind, id uint64, msgType MessageType, size int) *OutboundFrame {
	frame := p.pool.Get().(*OutboundFrame)
	frame.Kind = kind
	frame.ID = id
	frame.MsgType = msgType
	if p.buffers != nil {
		frame.Buf = p.buffers.Get(size)
	} else {
		frame.Buf = make([]byte, size)
	}
	frame.pool = p
	return frame
}

// Writer provides a bounded outbound queue with pooling support.
// Any number of goroutines may enqueue, a single loop drains it with Next,
// so frames leave in enqueue order.
//
// Enqueue holds gate shared and SetConnected holds it exclusively, so once
// SetConnected(false) returns no frame can enter the queue until the writer
// connects again.
type Writer struct {
	pool      *OutboundPool
	queue     chan *OutboundFrame
	policy    OverflowPolicy
	gate      sync.RWMutex
	connected bool
	dmu       sync.Mutex
	down      chan struct{}
	dropped   atomic.Uint64
	onDrop    func(*OutboundFrame)
}

// NewWriter creates a Writer with a bounded queue.
func NewWriter(pool *OutboundPool, capacity int, policy OverflowPolicy) *Writer {
	if capacity <= 0 {
		capacity = 1
	}
	if pool == nil {
		pool = NewOutboundPool(DefaultBufferPool())
	}
	down := make(chan struct{})
	close(down)
	return &Writer{
		pool:   pool,
		queue:  make(chan *OutboundFrame, capacity),
		policy: policy,
		down:   down,
	}
}

// OnDrop registers a hook for frames evicted by OverflowDropOldest or Drain.
// It must be set before the writer is shared.
func (w *Writer) OnDrop(fn func(*OutboundFrame)) {
	w.onDrop = fn
}

// SetConnected toggles the writer connection state. Disconnecting first
// wakes senders blocked under OverflowBlock, then waits for every Enqueue in
// flight to finish.
func (w *Writer) SetConnected(connected bool) {
	if !connected {
		w.closeDown()
	}
	w.gate.Lock()
	defer w.gate.Unlock()
	if connected && !w.connected {
		w.dmu.Lock()
		w.down = make(chan struct{})
		w.dmu.Unlock()
	}
	w.connected = connected
}

func (w *Writer) closeDown() {
	w.dmu.Lock()
	defer w.dmu.Unlock()
	select {
	case <-w.down:
	default:
		close(w.down)
	}
}

// Connected reports the writer connection state.
func (w *Writer) Connected() bool {
	w.gate.RLock()
	defer w.gate.RUnlock()
	return w.connected
}

// Dropped returns the number of frames evicted so far.
func (w *Writer) Dropped() uint64 {
	return w.dropped.Load()
}

// Len returns the number of frames waiting to be written.
func (w *Writer) Len() int {
	return len(w.queue)
}

// Enqueue queues a frame for writing according to the overflow policy.
// On error the caller still owns the frame.
func (w *Writer) Enqueue(frame *OutboundFrame) error {
	if frame == nil {
		return ErrQueueFull
	}
	w.gate.RLock()
	defer w.gate.RUnlock()
	if !w.connected {
		return ErrNotConnected
	}
	switch w.policy {
	case OverflowBlock:
		w.dmu.Lock()
		down := w.down
		w.dmu.Unlock()
		select {
		case w.queue <- frame:
			return nil
		case <-down:
			return ErrNotConnected
		}
	case OverflowDropOldest:
		for {
			select {
			case w.queue <- frame:
				return nil
			default:
				select {
				case old := <-w.queue:
					w.evict(old)
				default:
					return ErrQueueFull
				}
			}
		}
	default:
		select {
		case w.queue <- frame:
			return nil
		default:
			return ErrQueueFull
		}
	}
}

// Send copies payload into a pooled frame and enqueues it.
func (w *Writer) Send(kind FrameKind, id uint64, msgType MessageType, payload []byte) error {
	if !w.Connected() {
		return ErrNotConnected
	}
	frame := w.pool.get(kind, id, msgType, len(payload))
	copy(frame.Buf, payload)
	if err := w.Enqueue(frame); err != nil {
		frame.Release()
		return err
	}
	return nil
}

// Next waits for the next outbound frame or context cancellation.
func (w *Writer) Next(ctx context.Context) (*OutboundFrame, bool) {
	select {
	case <-ctx.Done():
		return nil, false
	case frame := <-w.queue:
		return frame, frame != nil
	}
}

// Drain clears the queue, reporting every frame to the drop hook.
func (w *Writer) Drain() {
	for {
		select {
		case frame := <-w.queue:
			w.evict(frame)
		default:
			return
		}
	}
}

func (w *Writer) evict(frame *OutboundFrame) {
	if frame == nil {
		return
	}
	w.dropped.Add(1)
	if w.onDrop != nil {
		w.onDrop(frame)
	}
	frame.Release()
}
