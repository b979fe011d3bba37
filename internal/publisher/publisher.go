package publisher

import (
	"context"
	"sync/atomic"
	"time"

	"execgw/internal/og"

	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	_headerEventType = "event-type"
	_maxBatch        = 100
	_writeTimeout    = 5 * time.Second
)

// Writer is the subset of *kafka.Writer the publisher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter returns a writer that keys messages by client order id so
// events of one order stay on one partition.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    _maxBatch,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
	}
}

type fillMessage struct {
	ID        string    `json:"id"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Fee       float64   `json:"fee"`
	FeeAsset  string    `json:"feeAsset,omitempty"`
	Maker     bool      `json:"maker"`
	Timestamp time.Time `json:"timestamp"`
}

type eventMessage struct {
	Event         string       `json:"event"`
	ClientOrderID string       `json:"clientOrderId"`
	VenueOrderID  string       `json:"venueOrderId,omitempty"`
	Symbol        string       `json:"symbol"`
	Side          string       `json:"side"`
	State         string       `json:"state"`
	Price         float64      `json:"price"`
	Quantity      float64      `json:"quantity"`
	FilledQty     float64      `json:"filledQty"`
	AvgPrice      float64      `json:"avgPrice"`
	Reason        string       `json:"reason,omitempty"`
	UpdatedAt     time.Time    `json:"updatedAt"`
	Seq           uint64       `json:"seq"`
	Fill          *fillMessage `json:"fill,omitempty"`
}

func encode(e og.Event) (kafka.Message, error) {
	o := e.Order
	m := eventMessage{
		Event:         e.Kind.String(),
		ClientOrderID: o.ClientOrderID,
		VenueOrderID:  o.VenueOrderID,
		Symbol:        o.Symbol,
		Side:          o.Side.String(),
		State:         o.State.String(),
		Price:         o.Price,
		Quantity:      o.Quantity,
		FilledQty:     o.FilledQty,
		AvgPrice:      o.AvgPrice,
		Reason:        o.Reason,
		UpdatedAt:     o.UpdatedAt,
		Seq:           o.Seq,
	}
	if f := e.Fill; f != nil {
		m.Fill = &fillMessage{
			ID:        f.ID,
			Price:     f.Price,
			Quantity:  f.Quantity,
			Fee:       f.Fee,
			FeeAsset:  f.FeeAsset,
			Maker:     f.Maker,
			Timestamp: f.Timestamp,
		}
	}
	value, err := sonic.ConfigFastest.Marshal(m)
	if err != nil {
		return kafka.Message{}, errors.Wrap(err, "marshal order event")
	}
	return kafka.Message{
		Key:   []byte(o.ClientOrderID),
		Value: value,
		Time:  o.UpdatedAt,
		Headers: []kafka.Header{
			{Key: _headerEventType, Value: []byte(m.Event)},
		},
	}, nil
}

// Publisher streams tracker events to Kafka from its own goroutine.
type Publisher struct {
	writer  Writer
	queue   chan og.Event
	dropped atomic.Uint64
	sent    atomic.Uint64
}

func New(writer Writer, queueSize int) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Publisher{
		writer: writer,
		queue:  make(chan og.Event, queueSize),
	}
}

// Listener returns the tracker callback feeding the publisher.
func (p *Publisher) Listener() og.Listener {
	return func(e og.Event) {
		select {
		case p.queue <- e:
		default:
			p.dropped.Add(1)
		}
	}
}

func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Sent returns the number of messages acknowledged by the writer.
func (p *Publisher) Sent() uint64 {
	return p.sent.Load()
}

// Run publishes queued events in batches until ctx is done, then flushes
// what is left and closes the writer.
func (p *Publisher) Run(ctx context.Context) error {
	defer func() {
		if err := p.writer.Close(); err != nil {
			logs.Warnf("close kafka writer, err: %+v", err)
		}
	}()

	batch := make([]kafka.Message, 0, _maxBatch)
	for {
		select {
		case e := <-p.queue:
			batch = p.collect(batch[:0], e)
			p.publish(batch)
		case <-ctx.Done():
			for {
				select {
				case e := <-p.queue:
					batch = p.collect(batch[:0], e)
					p.publish(batch)
				default:
					return nil
				}
			}
		}
	}
}

func (p *Publisher) collect(batch []kafka.Message, first og.Event) []kafka.Message {
	batch = p.append(batch, first)
	for len(batch) < _maxBatch {
		select {
		case e := <-p.queue:
			batch = p.append(batch, e)
		default:
			return batch
		}
	}
	return batch
}

func (p *Publisher) append(batch []kafka.Message, e og.Event) []kafka.Message {
	msg, err := encode(e)
	if err != nil {
		logs.Errorf("encode order event %s, err: %+v", e.Order.ClientOrderID, err)
		return batch
	}
	return append(batch, msg)
}

func (p *Publisher) publish(batch []kafka.Message) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), _writeTimeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, batch...); err != nil {
		logs.Errorf("publish %d order events, err: %+v", len(batch), err)
		return
	}
	p.sent.Add(uint64(len(batch)))
}
