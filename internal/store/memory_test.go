package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dsa110/dsa110-hwmc/internal/infrastructure/config"
)

func dial(t *testing.T, m *Memory) Store {
	t.Helper()
	s, err := m.Dial(context.Background(), "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMemory_PutGet(t *testing.T) {
	m := NewMemory()
	a, b := dial(t, m), dial(t, m)
	ctx := context.Background()

	_, found, err := a.Get(ctx, "/mon/ant/1")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, a.Put(ctx, "/mon/ant/1", `{"ant_num":1}`))
	v, found, err := b.Get(ctx, "/mon/ant/1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, `{"ant_num":1}`, v)
}

type recorder struct {
	mu     sync.Mutex
	values []string
}

func (r *recorder) fn(_, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, value)
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.values...)
}

func TestMemory_WatchSeesOnlyLaterPuts(t *testing.T) {
	m := NewMemory()
	s := dial(t, m)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "/cmd/ant/4", "before"))

	rec := &recorder{}
	id, err := s.Watch(ctx, "/cmd/ant/4", rec.fn)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "/cmd/ant/4", "one"))
	require.NoError(t, s.Put(ctx, "/cmd/ant/5", "other key"))
	require.NoError(t, s.Put(ctx, "/cmd/ant/4", "two"))
	require.Eventually(t, func() bool {
		return len(rec.got()) == 2
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"one", "two"}, rec.got())

	require.NoError(t, s.CancelWatch(id))
	require.NoError(t, s.Put(ctx, "/cmd/ant/4", "three"))
	require.Equal(t, []string{"one", "two"}, rec.got())

	require.ErrorIs(t, s.CancelWatch(id), ErrUnknownWatch)
}

func TestMemory_WatchEndsWithContext(t *testing.T) {
	m := NewMemory()
	s := dial(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	_, err := s.Watch(ctx, "/cal/ant/2", rec.fn)
	require.NoError(t, err)

	cancel()
	require.Eventually(t, func() bool {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return len(m.watchers["/cal/ant/2"]) == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Put(context.Background(), "/cal/ant/2", "x"))
	require.Empty(t, rec.got())
}

func TestMemory_CloseCancelsWatches(t *testing.T) {
	m := NewMemory()
	s, err := m.Dial(context.Background(), "closing")
	require.NoError(t, err)
	other := dial(t, m)

	rec := &recorder{}
	_, err = s.Watch(context.Background(), "/cmd/ant/0", rec.fn)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.NoError(t, other.Put(context.Background(), "/cmd/ant/0", "x"))
	require.Empty(t, rec.got())

	require.ErrorIs(t, s.Put(context.Background(), "/k", "v"), ErrClosed)
	_, _, err = s.Get(context.Background(), "/k")
	require.ErrorIs(t, err, ErrClosed)
	_, err = s.Watch(context.Background(), "/k", rec.fn)
	require.ErrorIs(t, err, ErrClosed)
}

func TestMemory_PutDoesNotWaitForWatchers(t *testing.T) {
	m := NewMemory()
	s := dial(t, m)
	ctx := context.Background()

	release := make(chan struct{})
	rec := &recorder{}
	id, err := s.Watch(ctx, "/cmd/ant/0", func(key, value string) {
		<-release
		rec.fn(key, value)
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, v := range []string{"a", "b", "c"} {
			_ = s.Put(ctx, "/cmd/ant/0", v)
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("put blocked on a stalled watcher")
	}

	close(release)
	require.Eventually(t, func() bool {
		return len(rec.got()) == 3
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"a", "b", "c"}, rec.got())
	require.NoError(t, s.CancelWatch(id))
}

func TestMemory_FailDial(t *testing.T) {
	m := NewMemory()
	m.FailDial(errors.New("no route"))
	_, err := m.Dial(context.Background(), "ant-1")
	require.ErrorIs(t, err, ErrUnavailable)

	m.FailDial(nil)
	_, err = m.Dial(context.Background(), "ant-1")
	require.NoError(t, err)
}

func TestNewDialer(t *testing.T) {
	cfg := config.Default()

	cfg.Store.Backend = config.StoreBackendMemory
	d, err := NewDialer(cfg, nil)
	require.NoError(t, err)
	require.IsType(t, &Memory{}, d)

	cfg.Store.Backend = config.StoreBackendEtcd
	d, err = NewDialer(cfg, nil)
	require.NoError(t, err)
	require.IsType(t, &etcdDialer{}, d)

	cfg.Store.Backend = config.StoreBackendMQTT
	d, err = NewDialer(cfg, nil)
	require.NoError(t, err)
	require.IsType(t, &mqttDialer{}, d)

	cfg.Store.Backend = "redis"
	_, err = NewDialer(cfg, nil)
	require.ErrorIs(t, err, ErrUnknownBackend)
}

func TestClientID(t *testing.T) {
	a := clientID("hwmc", "ant-3")
	b := clientID("hwmc", "ant-3")
	require.True(t, strings.HasPrefix(a, "hwmc-ant-3-"))
	require.NotEqual(t, a, b)
	require.True(t, strings.HasPrefix(clientID("", "api"), "hwmc-api-"))
}

func TestDialEtcd_NoEndpoints(t *testing.T) {
	_, err := DialEtcd(context.Background(), nil, time.Second, nil)
	require.ErrorIs(t, err, ErrUnavailable)
}
