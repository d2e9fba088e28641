package repository

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-proctor/internal/config"
)

const feedBuffer = 64

// MonitorFeed carries serialized monitor events from the sessions to every
// attached examiner. Slow subscribers lose messages instead of blocking
// publishers.
type MonitorFeed interface {
	Publish(ctx context.Context, payload []byte) error
	// Subscribe returns a channel of payloads that is closed when ctx ends
	// or the returned cancel func is called.
	Subscribe(ctx context.Context) (<-chan []byte, func())
}

// MemoryMonitorFeed is an in-process feed for single-instance deployments.
type MemoryMonitorFeed struct {
	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

// NewMemoryMonitorFeed creates an empty feed.
func NewMemoryMonitorFeed() *MemoryMonitorFeed {
	return &MemoryMonitorFeed{subs: make(map[chan []byte]struct{})}
}

func (f *MemoryMonitorFeed) Publish(_ context.Context, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

func (f *MemoryMonitorFeed) Subscribe(ctx context.Context) (<-chan []byte, func()) {
	ch := make(chan []byte, feedBuffer)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	stop := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, ch)
			close(ch)
			f.mu.Unlock()
			close(stop)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-stop:
		}
	}()
	return ch, cancel
}

// RedisMonitorFeed shares the feed between instances over Redis PubSub.
type RedisMonitorFeed struct {
	rdb     *redis.Client
	channel string
}

// NewRedisMonitorFeed creates a feed on the monitor channel.
func NewRedisMonitorFeed(rdb *redis.Client) *RedisMonitorFeed {
	return &RedisMonitorFeed{rdb: rdb, channel: config.CacheKey.MonitorChannel()}
}

func (f *RedisMonitorFeed) Publish(ctx context.Context, payload []byte) error {
	return f.rdb.Publish(ctx, f.channel, payload).Err()
}

func (f *RedisMonitorFeed) Subscribe(ctx context.Context) (<-chan []byte, func()) {
	ctx, stop := context.WithCancel(ctx)
	pubsub := f.rdb.Subscribe(ctx, f.channel)
	out := make(chan []byte, feedBuffer)

	go func() {
		defer close(out)
		defer pubsub.Close()

		in := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
				}
			}
		}
	}()
	return out, stop
}
