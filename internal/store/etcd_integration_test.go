//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dsa110/dsa110-hwmc/internal/infrastructure/logging"
)

// Requires etcd at 127.0.0.1:2379.
//
//	go test -tags=integration ./internal/store/...
func TestIntegration_Etcd(t *testing.T) {
	ctx := context.Background()
	s, err := DialEtcd(ctx, []string{"127.0.0.1:2379"}, 2*time.Second, logging.Discard())
	require.NoError(t, err)
	defer s.Close()

	key := "/hwmc-test/cmd/ant/9"
	got := make(chan string, 1)
	id, err := s.Watch(ctx, key, func(_, v string) { got <- v })
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, key, `{"cmd":"halt"}`))
	select {
	case v := <-got:
		require.Equal(t, `{"cmd":"halt"}`, v)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not fire")
	}

	v, found, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, `{"cmd":"halt"}`, v)

	require.NoError(t, s.CancelWatch(id))
}

func TestIntegration_EtcdUnreachable(t *testing.T) {
	start := time.Now()
	_, err := DialEtcd(context.Background(), []string{"127.0.0.1:1"}, 500*time.Millisecond, logging.Discard())
	require.ErrorIs(t, err, ErrUnavailable)
	require.Less(t, time.Since(start), 3*time.Second)
}
