package blobgc

import (
	"context"
	"time"

	"go.uber.org/zap"

	"medgas-backend/internal/blob"
)

// Deleter removes blob bytes by key.
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

var _ Deleter = (blob.Store)(nil)

// Pool deletes blob bytes in the background once their Media rows are gone.
type Pool struct {
	size    int
	jobs    chan string
	store   Deleter
	log     *zap.Logger
	timeout time.Duration
}

// NewPool creates a pool of size workers draining a buffered queue.
func NewPool(size int, store Deleter, log *zap.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		size:    size,
		jobs:    make(chan string, size*64),
		store:   store,
		log:     log,
		timeout: 30 * time.Second,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		go p.worker(ctx, i)
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	p.log.Debug("blob reaper worker started", zap.Int("worker", id))
	for {
		select {
		case key := <-p.jobs:
			p.reap(ctx, key)
		case <-ctx.Done():
			p.log.Debug("blob reaper worker shutting down", zap.Int("worker", id))
			return
		}
	}
}

// Dispatch queues key for deletion. A full queue drops the key with a warning;
// the object is then orphaned in the bucket, never referenced by a row.
func (p *Pool) Dispatch(key string) {
	select {
	case p.jobs <- key:
	default:
		p.log.Warn("blob reaper queue full, dropping key", zap.String("key", key))
	}
}

// Jobs returns the queue, for tests.
func (p *Pool) Jobs() chan string {
	return p.jobs
}

func (p *Pool) reap(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.store.Delete(ctx, key); err != nil {
		p.log.Warn("failed to delete blob", zap.String("key", key), zap.Error(err))
		return
	}
	p.log.Debug("blob deleted", zap.String("key", key))
}
