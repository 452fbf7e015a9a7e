package store

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process store shared by every connection dialed from it.
type Memory struct {
	mu       sync.RWMutex
	data     map[string]string
	watchers map[string]map[*memoryWatch]struct{}
	dialErr  error
}

// memoryWatch delivers puts to one callback in order on its own
// goroutine, so a put never waits for a slow watcher.
type memoryWatch struct {
	key string
	fn  WatchFunc

	mu    sync.Mutex
	queue []string

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newMemoryWatch(key string, fn WatchFunc) *memoryWatch {
	w := &memoryWatch{
		key:  key,
		fn:   fn,
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *memoryWatch) deliver(value string) {
	w.mu.Lock()
	w.queue = append(w.queue, value)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *memoryWatch) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case <-w.wake:
		}
		for {
			w.mu.Lock()
			if len(w.queue) == 0 {
				w.mu.Unlock()
				break
			}
			value := w.queue[0]
			w.queue = w.queue[1:]
			w.mu.Unlock()

			select {
			case <-w.stop:
				return
			default:
			}
			w.fn(w.key, value)
		}
	}
}

// cancel stops delivery and waits for a running callback to return.
// Queued values are dropped.
func (w *memoryWatch) cancel() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		data:     make(map[string]string),
		watchers: make(map[string]map[*memoryWatch]struct{}),
	}
}

// FailDial makes subsequent Dial calls fail with err; nil restores them.
func (m *Memory) FailDial(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dialErr = err
}

// Dial opens a new connection to the shared store.
func (m *Memory) Dial(ctx context.Context, name string) (Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	m.mu.RLock()
	dialErr := m.dialErr
	m.mu.RUnlock()
	if dialErr != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrUnavailable, name, dialErr)
	}
	return &memoryConn{mem: m, watches: make(map[WatchID]*memoryWatch)}, nil
}

// Value returns the current value of key without a connection.
func (m *Memory) Value(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *Memory) put(key, value string) {
	m.mu.Lock()
	m.data[key] = value
	watches := make([]*memoryWatch, 0, len(m.watchers[key]))
	for w := range m.watchers[key] {
		watches = append(watches, w)
	}
	m.mu.Unlock()

	for _, w := range watches {
		w.deliver(value)
	}
}

func (m *Memory) addWatch(w *memoryWatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.watchers[w.key]
	if !ok {
		set = make(map[*memoryWatch]struct{})
		m.watchers[w.key] = set
	}
	set[w] = struct{}{}
}

func (m *Memory) removeWatch(w *memoryWatch) {
	m.mu.Lock()
	delete(m.watchers[w.key], w)
	if len(m.watchers[w.key]) == 0 {
		delete(m.watchers, w.key)
	}
	m.mu.Unlock()

	w.cancel()
}

// memoryConn is one connection to a Memory store.
type memoryConn struct {
	mem *Memory

	mu      sync.Mutex
	watches map[WatchID]*memoryWatch
	next    WatchID
	closed  bool
}

func (c *memoryConn) Put(ctx context.Context, key, value string) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.mem.put(key, value)
	return nil
}

func (c *memoryConn) Get(ctx context.Context, key string) (string, bool, error) {
	if err := c.check(ctx); err != nil {
		return "", false, err
	}
	v, ok := c.mem.Value(key)
	return v, ok, nil
}

func (c *memoryConn) Watch(ctx context.Context, key string, fn WatchFunc) (WatchID, error) {
	if err := c.check(ctx); err != nil {
		return 0, err
	}

	w := newMemoryWatch(key, fn)
	c.mu.Lock()
	c.next++
	id := c.next
	c.watches[id] = w
	c.mu.Unlock()

	c.mem.addWatch(w)
	context.AfterFunc(ctx, func() { _ = c.CancelWatch(id) })
	return id, nil
}

func (c *memoryConn) CancelWatch(id WatchID) error {
	c.mu.Lock()
	w, ok := c.watches[id]
	delete(c.watches, id)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownWatch, id)
	}
	c.mem.removeWatch(w)
	return nil
}

func (c *memoryConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	watches := c.watches
	c.watches = make(map[WatchID]*memoryWatch)
	c.mu.Unlock()

	for _, w := range watches {
		c.mem.removeWatch(w)
	}
	return nil
}

func (c *memoryConn) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}
