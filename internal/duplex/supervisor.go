package duplex

import (
	"context"
	"time"

	"execgw/internal/obs"
	"execgw/pkg/websocket"

	"github.com/yanun0323/logs"
)

// SupervisorConfig configures reconnect behavior.
type SupervisorConfig struct {
	Backoff websocket.Backoff
	// StaleAfter forces a reconnect when no frame arrived for this long, zero disables it.
	StaleAfter    time.Duration
	CheckInterval time.Duration
	Metrics       *obs.Metrics
}

// Supervisor keeps a Client connected and replays the desired
// subscriptions after every reconnect.
type Supervisor struct {
	client *Client
	subs   *websocket.Subscriptions
	cfg    SupervisorConfig
}

// NewSupervisor wraps client. A zero Backoff uses websocket.DefaultBackoff.
func NewSupervisor(client *Client, cfg SupervisorConfig) *Supervisor {
	if cfg.Backoff.IsZero() {
		cfg.Backoff = websocket.DefaultBackoff()
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Second
	}
	return &Supervisor{
		client: client,
		subs:   websocket.NewSubscriptions(),
		cfg:    cfg,
	}
}

// Client returns the supervised client.
func (s *Supervisor) Client() *Client {
	return s.client
}

// Subscribe records topic as desired and sends it right away when connected.
func (s *Supervisor) Subscribe(topic string, fields map[string]string) error {
	sub := websocket.Subscription{Topic: topic, Fields: fields}
	if !s.subs.Add(sub) {
		return nil
	}
	if !s.client.Connected() {
		return nil
	}
	return s.client.Subscribe(topic, fields)
}

// Unsubscribe forgets topic for future reconnects.
func (s *Supervisor) Unsubscribe(topic string, fields map[string]string) {
	s.subs.Remove(websocket.Subscription{Topic: topic, Fields: fields})
}

// Run connects and reconnects until ctx is done.
func (s *Supervisor) Run(ctx context.Context) error {
	attempt := 0
	sessions := 0
	for {
		if ctx.Err() != nil {
			s.client.Disconnect()
			return nil
		}

		if err := s.client.Connect(ctx); err != nil {
			logs.Warnf("connect duplex, attempt: %d, err: %+v", attempt, err)
			if !s.cfg.Backoff.Wait(ctx, attempt) {
				return nil
			}
			attempt++
			continue
		}
		attempt = 0
		if sessions > 0 {
			s.cfg.Metrics.IncReconnect()
		}
		sessions++
		s.resubscribe()
		s.watch(ctx)
	}
}

func (s *Supervisor) resubscribe() {
	for _, sub := range s.subs.Desired(nil) {
		if err := s.client.Subscribe(sub.Topic, sub.Fields); err != nil {
			logs.Errorf("resubscribe %s, err: %+v", sub.Key(), err)
		}
	}
}

func (s *Supervisor) watch(ctx context.Context) {
	done := s.client.SessionDone()
	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.client.Disconnect()
			return
		case <-done:
			return
		case now := <-ticker.C:
			if s.client.Stale(now, s.cfg.StaleAfter) {
				logs.Warnf("duplex stale since %s, reconnecting", s.client.LastMessage().Format(time.RFC3339Nano))
				s.client.Disconnect()
				return
			}
		}
	}
}
