// Package spike provides a primitive to handle spike-like load on retrieving external resources
package spike

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	taskQueueLen           = 60
	currentlyExecutedSize  = 50
	defaultCleanupInterval = 5 * time.Millisecond
)

// Manager coalesces concurrent fetches of the same key into a single call to Handler.Fetch.
type Manager[K comparable, T any] struct {
	mu                sync.RWMutex
	handler           Handler[K, T]
	taskQueue         chan task[K, T]
	currentlyExecuted map[K][]chan<- result[T]
}

// NewCustomManager creates a new Manager with a custom cache implementation controlled by client code
// it should be used for non-trivial flows or non-default cache implementations
func NewCustomManager[K comparable, T any](h Handler[K, T]) *Manager[K, T] {
	cm := &Manager[K, T]{
		handler:           h,
		taskQueue:         make(chan task[K, T], taskQueueLen),
		currentlyExecuted: make(map[K][]chan<- result[T], currentlyExecutedSize),
	}
	go cm.start()
	return cm
}

// NewManager creates a new Manager with a default cache implementation
// it is preferred way of creating a new Manager
func NewManager[K comparable, T any](fetch func(ctx context.Context, k K) (T, error), cacheTime time.Duration) *Manager[K, T] {
	return NewCustomManager[K, T](GoCacheHandler(fetch, cacheTime, nil))
}

// GoCacheHandler builds a handler backed by go-cache. Keys are stored by their fmt.Sprint form.
// When keep is not nil, values it rejects are returned to waiters but not cached.
func GoCacheHandler[K comparable, T any](fetch func(ctx context.Context, k K) (T, error), cacheTime time.Duration, keep func(T) bool) Handler[K, T] {
	g := gocache.New(cacheTime, defaultCleanupInterval)
	return Handler[K, T]{
		Fetch: fetch,
		Set: func(k K, v T) {
			if keep != nil && !keep(v) {
				return
			}
			g.Set(fmt.Sprint(k), v, cacheTime)
		},
		Get: func(k K) (T, bool) {
			v, ok := g.Get(fmt.Sprint(k))
			if !ok {
				var rt T
				return rt, false
			}
			//nolint:forcetypeassert
			return v.(T), true
		},
	}
}

type Handler[K comparable, T any] struct {
	Fetch func(ctx context.Context, k K) (T, error)
	Set   func(k K, v T)
	Get   func(k K) (T, bool)
}

type task[K comparable, T any] struct {
	key K
	res chan<- result[T]
}

type result[T any] struct {
	v T
	e error
}

func (m *Manager[K, T]) start() {
	for t := range m.taskQueue {
		m.mu.Lock()
		v, ok := m.handler.Get(t.key)
		if ok {
			t.res <- result[T]{v: v}
			close(t.res)
			m.mu.Unlock()
			continue
		}

		chans, ok := m.currentlyExecuted[t.key]
		if ok {
			chans = append(chans, t.res)
			m.currentlyExecuted[t.key] = chans
			m.mu.Unlock()
			continue
		}
		m.mu.Unlock()

		go m.execute(t)
	}
}

func (m *Manager[K, T]) execute(currentTask task[K, T]) {
	m.mu.Lock()
	v, ok := m.handler.Get(currentTask.key)
	if ok {
		currentTask.res <- result[T]{v: v}
		close(currentTask.res)
		m.mu.Unlock()
		return
	}
	chans, ok := m.currentlyExecuted[currentTask.key]
	if ok {
		chans = append(chans, currentTask.res)
		m.currentlyExecuted[currentTask.key] = chans
		m.mu.Unlock()
		return
	}

	m.currentlyExecuted[currentTask.key] = []chan<- result[T]{currentTask.res}
	m.mu.Unlock()

	res, err := m.handler.Fetch(context.Background(), currentTask.key)
	if err == nil {
		m.handler.Set(currentTask.key, res)
	}

	m.mu.Lock()
	chans = m.currentlyExecuted[currentTask.key]
	for _, ch := range chans {
		ch <- result[T]{v: res, e: err}
		close(ch)
	}
	delete(m.currentlyExecuted, currentTask.key)
	m.mu.Unlock()
}

func (m *Manager[K, T]) GetResult(ctx context.Context, k K) (T, error) { //nolint:ireturn
	r, ok := m.handler.Get(k)
	if ok {
		return r, nil
	}

	resChan := make(chan result[T], 1)

	t := task[K, T]{
		key: k,
		res: resChan,
	}
	select {
	case m.taskQueue <- t:
	case <-ctx.Done():
		var tr T
		return tr, ctx.Err()
	}
	select {
	case <-ctx.Done():
		var tr T
		return tr, ctx.Err()
	case completed := <-resChan:
		return completed.v, completed.e
	}
}
