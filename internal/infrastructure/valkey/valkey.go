package valkey

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/cenkalti/backoff/v4"
	"github.com/valkey-io/valkey-go"
	"github.com/valkey-io/valkey-go/valkeyotel"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/valkey-io/valkey-glide-php-sub000/internal/core/ids"
	"github.com/valkey-io/valkey-glide-php-sub000/internal/core/logger"
	"github.com/valkey-io/valkey-glide-php-sub000/internal/core/uow"
	"github.com/valkey-io/valkey-glide-php-sub000/internal/domain/request"
)

const LoggerName = "valkey"

const pongReply = "PONG"

var (
	ErrConnect        = errors.New("valkey connect failed")
	ErrClientClosed   = errors.New("valkey client closed")
	ErrInflightLimit  = errors.New("inflight requests limit reached")
	ErrNilConnRequest = errors.New("nil connection request")
	errProbeNotPong   = errors.New("unexpected PING reply")
)

type dialFunc func(valkey.ClientOption) (valkey.Client, error)

type probeFunc func(ctx context.Context, client valkey.Client) error

func dialerFor(cfg *Config) dialFunc {
	if cfg != nil && cfg.Tracing {
		return func(opt valkey.ClientOption) (valkey.Client, error) {
			return valkeyotel.NewClient(opt)
		}
	}
	return valkey.NewClient
}

func ping(ctx context.Context, client valkey.Client) error {
	reply, err := client.Do(ctx, client.B().Ping().Build()).ToString()
	if err != nil {
		return err
	}
	if reply != pongReply {
		return fmt.Errorf("%w: %q", errProbeNotPong, reply)
	}
	return nil
}

// Connect consumes req and returns a client for it. Unless req asks for a
// lazy connection, the node list is dialed and probed before returning,
// retrying on the schedule derived from the request's retry strategy.
// A nil lg falls back to the logger carried by ctx.
func Connect(
	ctx context.Context,
	req *request.ConnectionRequest,
	cfg *Config,
	lg *zap.Logger,
) (*Client, error) {
	return connect(ctx, req, cfg, lg, dialerFor(cfg), ping)
}

func connect(
	ctx context.Context,
	req *request.ConnectionRequest,
	cfg *Config,
	lg *zap.Logger,
	dial dialFunc,
	probe probeFunc,
) (*Client, error) {
	if req == nil {
		return nil, ErrNilConnRequest
	}
	opt, err := ClientOption(req, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	id := ids.NewClientId()
	fields := []zap.Field{
		zap.Stringer("client_id", id),
		zap.Stringer("mode", req.Mode()),
		zap.Strings("addresses", opt.InitAddress),
	}
	if lg == nil {
		lg = logger.NewFromCtx(ctx).With(fields...)
	} else {
		lg = lg.With(logger.WithCtxFields(ctx, fields...)...)
	}

	lifetime, cancel := context.WithCancel(context.Background())
	c := &Client{
		id:       id,
		req:      req,
		opt:      opt,
		dial:     dial,
		probe:    probe,
		lifetime: lifetime,
		cancel:   cancel,
		lg:       lg,
	}
	if limit, ok := req.InflightRequestsLimit(); ok {
		c.sem = semaphore.NewWeighted(int64(limit))
	}

	if req.LazyConnect() {
		c.lg.Debug("lazy connect, dial deferred to first command")
		return c, nil
	}
	if _, err := c.conn(ctx); err != nil {
		cancel()
		return nil, err
	}
	return c, nil
}

// dialWithRetry dials and probes until one attempt succeeds or the retry
// schedule is exhausted. Server error replies are not retried.
func (c *Client) dialWithRetry(ctx context.Context) (valkey.Client, error) {
	var (
		client  valkey.Client
		attempt int
	)
	err := backoff.Retry(func() error {
		attempt++
		cl, err := c.dialOnce(ctx)
		if err == nil {
			client = cl
			return nil
		}
		if _, ok := valkey.IsValkeyErr(err); ok {
			return backoff.Permanent(err)
		}
		c.lg.Warn("connect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		return err
	}, backoff.WithContext(retryPolicy(c.req), ctx))
	if err != nil {
		return nil, fmt.Errorf("%w after %d attempt(s): %w", ErrConnect, attempt, err)
	}
	c.lg.Info("connected", zap.Int("attempts", attempt))
	return client, nil
}

func (c *Client) dialOnce(ctx context.Context) (valkey.Client, error) {
	tx := uow.UnitOfWork()
	client, err := c.dial(c.opt)
	if err != nil {
		return nil, err
	}
	tx.Add("valkey client", func() error {
		client.Close()
		return nil
	})

	probeCtx := ctx
	if timeout, ok := c.req.ConnectionTimeout(); ok {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := c.probe(probeCtx, client); err != nil {
		return nil, tx.Rollback(err)
	}
	tx.Commit()
	return client, nil
}

// Nodes lists the addresses the client was configured with.
func (c *Client) Nodes() []string {
	return slices.Clone(c.opt.InitAddress)
}
