// Package pool provides the bounded admission gates that limit how many
// operations of each class may run at once. Each gate is independent;
// saturating one never delays another.
package pool

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Pool is a fixed-capacity admission gate. Callers queue FIFO once
// capacity is exhausted (semaphore.Weighted keeps waiters in order).
type Pool struct {
	name string
	sem  *semaphore.Weighted
	cap  int64
}

func New(name string, capacity int) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	return &Pool{
		name: name,
		sem:  semaphore.NewWeighted(int64(capacity)),
		cap:  int64(capacity),
	}
}

func (p *Pool) Name() string {
	return p.name
}

func (p *Pool) Capacity() int {
	return int(p.cap)
}

// Acquire blocks until a slot is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("failed to acquire %s pool slot: %w", p.name, err)
	}
	return nil
}

func (p *Pool) Release() {
	p.sem.Release(1)
}

// Do runs fn inside a pool slot, blocking for admission first.
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := p.Acquire(ctx); err != nil {
		return err
	}
	defer p.Release()
	return fn(ctx)
}

// Set carries the six pools through the dispatch pipeline. Constructed once
// in main and passed by reference; there is deliberately no package-level
// default instance.
type Set struct {
	Feed         *Pool
	Hook         *Pool
	Download     *Pool
	BitTorrent   *Pool
	AI           *Pool
	Notification *Pool
}

// NewSet builds the pool set from per-class capacities.
func NewSet(feed, hook, download, bitTorrent, ai, notification int) *Set {
	return &Set{
		Feed:         New("feed", feed),
		Hook:         New("hook", hook),
		Download:     New("download", download),
		BitTorrent:   New("bittorrent", bitTorrent),
		AI:           New("ai", ai),
		Notification: New("notification", notification),
	}
}
