package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Etcd is a store connection backed by an etcd v3 cluster.
type Etcd struct {
	client *clientv3.Client
	logger Logger

	mu      sync.Mutex
	watches map[WatchID]*etcdWatch
	next    WatchID
	closed  bool
}

type etcdWatch struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// DialEtcd connects to etcd and verifies the connection within dialTimeout,
// so an unreachable cluster fails fast instead of blocking the first put.
//
// Parameters:
//   - ctx: bounds the connection check
//   - endpoints: cluster endpoints, host:port
//   - dialTimeout: connect and check timeout
//   - logger: receives watch errors
//
// Returns:
//   - *Etcd: connected store
//   - error: wrapping ErrUnavailable if the cluster cannot be reached
func DialEtcd(ctx context.Context, endpoints []string, dialTimeout time.Duration, logger Logger) (*Etcd, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("%w: no etcd endpoints", ErrUnavailable)
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if _, err := client.Status(checkCtx, endpoints[0]); err != nil {
		client.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, endpoints[0], err)
	}

	return &Etcd{
		client:  client,
		logger:  logger,
		watches: make(map[WatchID]*etcdWatch),
	}, nil
}

// Put sets key to value.
func (e *Etcd) Put(ctx context.Context, key, value string) error {
	if e.isClosed() {
		return ErrClosed
	}
	if _, err := e.client.Put(ctx, key, value); err != nil {
		return fmt.Errorf("%w: put %s: %w", ErrUnavailable, key, err)
	}
	return nil
}

// Get returns the value of key.
func (e *Etcd) Get(ctx context.Context, key string) (string, bool, error) {
	if e.isClosed() {
		return "", false, ErrClosed
	}
	resp, err := e.client.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("%w: get %s: %w", ErrUnavailable, key, err)
	}
	if len(resp.Kvs) == 0 {
		return "", false, nil
	}
	return string(resp.Kvs[0].Value), true, nil
}

// Watch calls fn for every put to key. Deletes are ignored.
func (e *Etcd) Watch(ctx context.Context, key string, fn WatchFunc) (WatchID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, ErrClosed
	}

	watchCtx, cancel := context.WithCancel(ctx)
	ch := e.client.Watch(clientv3.WithRequireLeader(watchCtx), key)

	w := &etcdWatch{cancel: cancel, done: make(chan struct{})}
	e.next++
	id := e.next
	e.watches[id] = w

	go func() {
		defer close(w.done)
		for resp := range ch {
			if err := resp.Err(); err != nil {
				e.logger.Warn("etcd watch error", "key", key, "error", err)
				continue
			}
			for _, ev := range resp.Events {
				if ev.Type != clientv3.EventTypePut {
					continue
				}
				if watchCtx.Err() != nil {
					return
				}
				fn(string(ev.Kv.Key), string(ev.Kv.Value))
			}
		}
	}()
	return id, nil
}

// CancelWatch stops a watch and waits for its callback goroutine to exit.
func (e *Etcd) CancelWatch(id WatchID) error {
	e.mu.Lock()
	w, ok := e.watches[id]
	delete(e.watches, id)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownWatch, id)
	}
	w.cancel()
	<-w.done
	return nil
}

// Close cancels remaining watches and closes the client.
func (e *Etcd) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	watches := e.watches
	e.watches = nil
	e.mu.Unlock()

	for _, w := range watches {
		w.cancel()
		<-w.done
	}
	return e.client.Close()
}

func (e *Etcd) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
