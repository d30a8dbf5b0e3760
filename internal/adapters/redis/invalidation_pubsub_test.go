package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traveldatawifi/zoho-token-service/internal/domain"
)

func TestInvalidationPublishReachesSubscriber(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	subscriber := NewInvalidationPubSubAdapter(client, nopLogger{})
	publisher := NewInvalidationPubSubAdapter(client, nopLogger{})

	var (
		mu       sync.Mutex
		received []domain.InvalidationMessage
	)
	handler := func(_ string, msg domain.InvalidationMessage) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, msg)
		return nil
	}

	ctx := context.Background()
	require.NoError(t, subscriber.SubscribeInvalidations(ctx, handler))
	t.Cleanup(func() { subscriber.Close() })

	msg := domain.InvalidationMessage{Service: "commerce", OriginPod: "pod-a"}
	require.NoError(t, publisher.PublishInvalidation(ctx, msg))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, msg, received[0])
}

func TestSubscribeTwiceFails(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	adapter := NewInvalidationPubSubAdapter(client, nopLogger{})
	ctx := context.Background()

	require.NoError(t, adapter.SubscribeInvalidations(ctx, func(string, domain.InvalidationMessage) error { return nil }))
	t.Cleanup(func() { adapter.Close() })

	assert.Error(t, adapter.SubscribeInvalidations(ctx, func(string, domain.InvalidationMessage) error { return nil }))
}

func TestCloseWithoutSubscriptionIsANoop(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	adapter := NewInvalidationPubSubAdapter(client, nopLogger{})
	assert.NoError(t, adapter.Close())
}
