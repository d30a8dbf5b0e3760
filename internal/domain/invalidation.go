package domain

import "context"

// InvalidationMessage is broadcast when an instance clears cached tokens so
// that other instances drop their local copies too. An empty Service means
// all services.
type InvalidationMessage struct {
	Service   string `json:"service"`
	OriginPod string `json:"origin_pod"`
}

// InvalidationHandler processes a received invalidation message.
type InvalidationHandler func(channel string, msg InvalidationMessage) error

// InvalidationPublisher broadcasts cache invalidations to peer instances.
type InvalidationPublisher interface {
	PublishInvalidation(ctx context.Context, msg InvalidationMessage) error
}

// InvalidationSubscriber listens for invalidations broadcast by peers.
// Subscribe is non-blocking: the message loop runs in its own goroutine until
// Close is called or the context ends.
type InvalidationSubscriber interface {
	SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error
	Close() error
}
