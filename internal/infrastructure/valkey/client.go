package valkey

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/sourcegraph/conc/pool"
	"github.com/valkey-io/valkey-go"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/valkey-io/valkey-glide-php-sub000/internal/core/ids"
	"github.com/valkey-io/valkey-glide-php-sub000/internal/domain/request"
)

// Client is a valkey-go client bound to the connection request it was built from.
type Client struct {
	id    ids.ClientId
	req   *request.ConnectionRequest
	opt   valkey.ClientOption
	dial  dialFunc
	probe probeFunc
	lg    *zap.Logger
	sem   *semaphore.Weighted

	dials singleflight.Group
	// lifetime is canceled by Close and aborts an in-progress dial.
	lifetime context.Context //nolint:containedctx // client lifetime
	cancel   context.CancelFunc

	mu     sync.Mutex
	client valkey.Client
	closed bool
}

// MessageHandler receives pubsub messages together with the kind of
// subscription that delivered them.
type MessageHandler func(kind request.PubSubChannelType, msg valkey.PubSubMessage)

func (c *Client) ID() ids.ClientId {
	return c.id
}

// Request returns the connection request the client was created from.
func (c *Client) Request() *request.ConnectionRequest {
	return c.req
}

const dialKey = "dial"

// conn returns the underlying client, dialing it on first use. Concurrent
// callers share one dial, which runs outside mu so Close can abort it.
func (c *Client) conn(ctx context.Context) (valkey.Client, error) {
	if client, err := c.current(); client != nil || err != nil {
		return client, err
	}
	v, err, _ := c.dials.Do(dialKey, func() (any, error) {
		if client, err := c.current(); client != nil || err != nil {
			return client, err
		}
		dialCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(c.lifetime, cancel)
		defer stop()

		client, err := c.dialWithRetry(dialCtx)
		if err != nil {
			if c.lifetime.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrClientClosed, err)
			}
			return nil, err
		}
		return c.store(client)
	})
	if err != nil {
		return nil, err
	}
	return v.(valkey.Client), nil //nolint:forcetypeassert // only valkey.Client is stored
}

func (c *Client) current() (valkey.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}
	return c.client, nil
}

func (c *Client) store(client valkey.Client) (valkey.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		client.Close()
		return nil, ErrClientClosed
	}
	c.client = client
	return client, nil
}

// Do runs the command produced by build. The request timeout bounds the call
// and the inflight limit, when set, rejects calls above it.
func (c *Client) Do(
	ctx context.Context,
	build func(b valkey.Builder) valkey.Completed,
) (valkey.ValkeyMessage, error) {
	if c.sem != nil {
		if !c.sem.TryAcquire(1) {
			return valkey.ValkeyMessage{}, ErrInflightLimit
		}
		defer c.sem.Release(1)
	}

	client, err := c.conn(ctx)
	if err != nil {
		return valkey.ValkeyMessage{}, err
	}
	if timeout, ok := c.req.RequestTimeout(); ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return client.Do(ctx, build(client.B())).ToMessage()
}

func (c *Client) Ping(ctx context.Context) (string, error) {
	msg, err := c.Do(ctx, func(b valkey.Builder) valkey.Completed {
		return b.Ping().Build()
	})
	if err != nil {
		return "", err
	}
	return msg.ToString()
}

// Subscribe runs one receive loop per subscription kind of the request and
// blocks until ctx is done or a loop fails.
func (c *Client) Subscribe(ctx context.Context, handler MessageHandler) error {
	subs := c.req.PubSubSubscriptions()
	if len(subs) == 0 {
		return nil
	}
	client, err := c.conn(ctx)
	if err != nil {
		return err
	}

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for _, kind := range slices.Sorted(maps.Keys(subs)) {
		cmd := subscribeCommand(client.B(), kind, subs[kind])
		c.lg.Debug("subscribing", zap.Stringer("kind", kind), zap.Strings("channels", subs[kind]))
		p.Go(func(ctx context.Context) error {
			err := client.Receive(ctx, cmd, func(msg valkey.PubSubMessage) {
				handler(kind, msg)
			})
			if err != nil {
				return fmt.Errorf("%s receive: %w", kind, err)
			}
			return nil
		})
	}
	return p.Wait()
}

func subscribeCommand(b valkey.Builder, kind request.PubSubChannelType, channels []string) valkey.Completed {
	switch kind {
	case request.PubSubPattern:
		return b.Psubscribe().Pattern(channels...).Build()
	case request.PubSubSharded:
		return b.Ssubscribe().Channel(channels...).Build()
	default:
		return b.Subscribe().Channel(channels...).Build()
	}
}

// Close releases the connection and aborts a dial in progress. Further
// calls fail with ErrClientClosed.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
	c.lg.Debug("closed")
}
