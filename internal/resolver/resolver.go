package resolver

import (
	"context"
	"strings"
	"sync"
	"time"

	"execgw/internal/adapter"
	"execgw/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"golang.org/x/sync/singleflight"
)

const defaultTTL = 300 * time.Second

// Source loads the full venue asset list.
type Source interface {
	Fetch(ctx context.Context) ([]adapter.Asset, error)
}

// Resolver caches venue assets by pair name for a TTL. A miss forces one
// refresh before ErrAssetNotFound is returned, and concurrent refreshes
// share a single fetch.
type Resolver struct {
	source Source
	ttl    time.Duration
	now    func() time.Time
	group  singleflight.Group

	mu       sync.RWMutex
	assets   map[string]adapter.Asset
	loadedAt time.Time
}

func New(source Source, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Resolver{
		source: source,
		ttl:    ttl,
		now:    time.Now,
		assets: make(map[string]adapter.Asset),
	}
}

func key(pair string) string {
	return strings.ToUpper(strings.TrimSpace(pair))
}

func (r *Resolver) lookup(pair string) (adapter.Asset, bool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assets[key(pair)]
	fresh := !r.loadedAt.IsZero() && r.now().Sub(r.loadedAt) <= r.ttl
	return a, ok, fresh
}

// Resolve returns the venue asset for pair.
func (r *Resolver) Resolve(ctx context.Context, pair string) (adapter.Asset, error) {
	a, ok, fresh := r.lookup(pair)
	if ok && fresh {
		return a, nil
	}

	if err := r.Refresh(ctx); err != nil {
		if ok {
			logs.Warnf("asset refresh failed, serving stale %s, err: %+v", pair, err)
			return a, nil
		}
		return adapter.Asset{}, err
	}

	a, ok, _ = r.lookup(pair)
	if !ok {
		return adapter.Asset{}, exception.ErrAssetNotFound
	}
	return a, nil
}

// Refresh reloads the asset list.
func (r *Resolver) Refresh(ctx context.Context) error {
	_, err, _ := r.group.Do("refresh", func() (any, error) {
		assets, err := r.source.Fetch(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "fetch venue assets")
		}
		m := make(map[string]adapter.Asset, len(assets))
		for _, a := range assets {
			m[key(a.Name)] = a
		}
		r.mu.Lock()
		r.assets = m
		r.loadedAt = r.now()
		r.mu.Unlock()
		logs.Infof("asset cache refreshed, assets: %d", len(m))
		return nil, nil
	})
	return err
}

// Len returns the number of cached assets.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.assets)
}
