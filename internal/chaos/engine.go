package chaos

import (
	"math/rand"
	"time"

	"github.com/yanun0323/errors"
)

// Config controls chaos injection behavior.
type Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	Seed          int64         `mapstructure:"seed"`
	DropRate      float64       `mapstructure:"drop_rate"`
	DuplicateRate float64       `mapstructure:"duplicate_rate"`
	ReorderWindow int           `mapstructure:"reorder_window"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.DropRate < 0 || c.DropRate > 1 {
		return errors.New("chaos drop_rate must be between 0 and 1")
	}
	if c.DuplicateRate < 0 || c.DuplicateRate > 1 {
		return errors.New("chaos duplicate_rate must be between 0 and 1")
	}
	if c.ReorderWindow < 0 {
		return errors.New("chaos reorder_window must be >= 0")
	}
	if c.MaxDelay < 0 {
		return errors.New("chaos max_delay must be >= 0")
	}
	return nil
}

// Engine applies chaos rules to a stream of frames. It is not safe for
// concurrent use.
type Engine struct {
	cfg     Config
	rng     *rand.Rand
	pending []Frame
}

// NewEngine creates a chaos engine with validation. A zero seed is
// replaced by the current time.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ReorderWindow <= 0 {
		cfg.ReorderWindow = 1
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Process applies chaos to a single frame and returns the frames to deliver.
func (e *Engine) Process(f Frame) []Frame {
	if e == nil {
		return []Frame{f}
	}
	if e.shouldDrop() {
		return nil
	}
	f = e.applyDelay(f)
	if e.cfg.ReorderWindow <= 1 {
		return e.applyDuplicate(f)
	}
	e.pending = append(e.pending, f)
	if len(e.pending) < e.cfg.ReorderWindow {
		return nil
	}
	return e.applyDuplicate(e.take())
}

// Flush returns any frames held back for reordering.
func (e *Engine) Flush() []Frame {
	if e == nil || len(e.pending) == 0 {
		return nil
	}
	out := make([]Frame, 0, len(e.pending))
	for len(e.pending) > 0 {
		out = append(out, e.applyDuplicate(e.take())...)
	}
	return out
}

func (e *Engine) take() Frame {
	idx := e.rng.Intn(len(e.pending))
	f := e.pending[idx]
	e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
	return f
}

func (e *Engine) shouldDrop() bool {
	return e.cfg.DropRate > 0 && e.rng.Float64() < e.cfg.DropRate
}

func (e *Engine) applyDuplicate(f Frame) []Frame {
	out := []Frame{f}
	if e.cfg.DuplicateRate > 0 && e.rng.Float64() < e.cfg.DuplicateRate {
		out = append(out, f)
	}
	return out
}

func (e *Engine) applyDelay(f Frame) Frame {
	maxDelay := e.cfg.MaxDelay.Nanoseconds()
	if maxDelay <= 0 {
		return f
	}
	f.Delay = time.Duration(e.rng.Int63n(maxDelay + 1))
	return f
}
