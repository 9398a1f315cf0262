package valkey

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"github.com/valkey-io/valkey-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/valkey-io/valkey-glide-php-sub000/internal/core/logger"
	"github.com/valkey-io/valkey-glide-php-sub000/internal/domain/request"
)

var errRefused = errors.New("connection refused")

type fakeClient struct {
	valkey.Client
	closed atomic.Int32
}

func (f *fakeClient) Close() {
	f.closed.Add(1)
}

type fakeDialer struct {
	failures int
	calls    int
	clients  []*fakeClient
}

func (d *fakeDialer) dial(valkey.ClientOption) (valkey.Client, error) {
	d.calls++
	if d.calls <= d.failures {
		return nil, errRefused
	}
	c := &fakeClient{}
	d.clients = append(d.clients, c)
	return c, nil
}

func okProbe(context.Context, valkey.Client) error { return nil }

func requestWithRetries(t *testing.T, retries int, opts request.Options) *request.ConnectionRequest {
	t.Helper()
	opts.ReconnectStrategy = &request.ReconnectStrategy{
		NumOfRetries: lo.ToPtr(retries), Factor: lo.ToPtr(1), ExponentBase: lo.ToPtr(2),
	}
	req, err := request.BuildStandaloneRequest([]request.NodeAddress{{Host: "localhost", Port: 6379}}, opts)
	require.NoError(t, err)
	return req
}

func TestConnectRetriesUntilSuccess(t *testing.T) {
	d := &fakeDialer{failures: 2}
	req := requestWithRetries(t, 3, request.Options{})

	c, err := connect(context.Background(), req, nil, zap.NewNop(), d.dial, okProbe)
	require.NoError(t, err)
	require.Equal(t, 3, d.calls)
	require.True(t, c.ID().Valid())
	require.Same(t, req, c.Request())
	require.Equal(t, []string{"localhost:6379"}, c.Nodes())

	c.Close()
	require.Equal(t, int32(1), d.clients[0].closed.Load())
}

func TestConnectRetriesExhausted(t *testing.T) {
	d := &fakeDialer{failures: 100}
	req := requestWithRetries(t, 1, request.Options{})

	_, err := connect(context.Background(), req, nil, zap.NewNop(), d.dial, okProbe)
	require.ErrorIs(t, err, ErrConnect)
	require.ErrorIs(t, err, errRefused)
	require.Equal(t, 2, d.calls)
}

func TestConnectWithoutRetryStrategyTriesOnce(t *testing.T) {
	d := &fakeDialer{failures: 1}
	req, err := request.BuildStandaloneRequest([]request.NodeAddress{{Host: "localhost", Port: 6379}}, request.Options{})
	require.NoError(t, err)

	_, err = connect(context.Background(), req, nil, zap.NewNop(), d.dial, okProbe)
	require.ErrorIs(t, err, ErrConnect)
	require.Equal(t, 1, d.calls)
}

func TestConnectProbeFailureClosesClient(t *testing.T) {
	d := &fakeDialer{}
	req := requestWithRetries(t, 1, request.Options{})
	probes := 0
	probe := func(context.Context, valkey.Client) error {
		probes++
		if probes == 1 {
			return errRefused
		}
		return nil
	}

	c, err := connect(context.Background(), req, nil, zap.NewNop(), d.dial, probe)
	require.NoError(t, err)
	require.Len(t, d.clients, 2)
	require.Equal(t, int32(1), d.clients[0].closed.Load())
	require.Zero(t, d.clients[1].closed.Load())
	c.Close()
}

func TestConnectCanceledContext(t *testing.T) {
	d := &fakeDialer{failures: 100}
	req := requestWithRetries(t, 10, request.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := connect(ctx, req, nil, zap.NewNop(), d.dial, okProbe)
	require.ErrorIs(t, err, ErrConnect)
	require.Equal(t, 1, d.calls)
}

func TestConnectLazy(t *testing.T) {
	d := &fakeDialer{}
	req := requestWithRetries(t, 0, request.Options{LazyConnect: lo.ToPtr(true)})

	c, err := connect(context.Background(), req, nil, zap.NewNop(), d.dial, okProbe)
	require.NoError(t, err)
	require.Zero(t, d.calls)

	first, err := c.conn(context.Background())
	require.NoError(t, err)
	second, err := c.conn(context.Background())
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, 1, d.calls)

	c.Close()
	c.Close()
	_, err = c.conn(context.Background())
	require.ErrorIs(t, err, ErrClientClosed)
	require.Equal(t, int32(1), d.clients[0].closed.Load())
}

func TestCloseAbortsLazyDial(t *testing.T) {
	req, err := request.BuildStandaloneRequest(
		[]request.NodeAddress{{Host: "localhost", Port: 6379}},
		request.Options{
			LazyConnect: lo.ToPtr(true),
			ReconnectStrategy: &request.ReconnectStrategy{
				NumOfRetries: lo.ToPtr(3), Factor: lo.ToPtr(1000), ExponentBase: lo.ToPtr(1),
			},
		},
	)
	require.NoError(t, err)

	dialing := make(chan struct{}, 1)
	dial := func(valkey.ClientOption) (valkey.Client, error) {
		select {
		case dialing <- struct{}{}:
		default:
		}
		return nil, errRefused
	}
	c, err := connect(context.Background(), req, nil, zap.NewNop(), dial, okProbe)
	require.NoError(t, err)

	pingErr := make(chan error, 1)
	go func() {
		_, err := c.Ping(context.Background())
		pingErr <- err
	}()
	<-dialing

	start := time.Now()
	c.Close()
	require.Less(t, time.Since(start), 500*time.Millisecond)

	select {
	case err := <-pingErr:
		require.ErrorIs(t, err, ErrClientClosed)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("dial kept running after Close")
	}
}

func TestConcurrentLazyDialShared(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	dial := func(valkey.ClientOption) (valkey.Client, error) {
		calls.Add(1)
		<-release
		return &fakeClient{}, nil
	}
	req := requestWithRetries(t, 0, request.Options{LazyConnect: lo.ToPtr(true)})
	c, err := connect(context.Background(), req, nil, zap.NewNop(), dial, okProbe)
	require.NoError(t, err)

	results := make(chan valkey.Client, 2)
	for range 2 {
		go func() {
			client, err := c.conn(context.Background())
			if err != nil {
				results <- nil
				return
			}
			results <- client
		}()
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(release)

	first, second := <-results, <-results
	require.NotNil(t, first)
	require.Same(t, first, second)
	require.Equal(t, int32(1), calls.Load())
	c.Close()
}

func TestDoInflightLimit(t *testing.T) {
	d := &fakeDialer{}
	req, err := request.BuildClusterRequest(
		[]request.NodeAddress{{Host: "node-1", Port: 7000}},
		request.Options{InflightRequestsLimit: lo.ToPtr(1), LazyConnect: lo.ToPtr(true)},
	)
	require.NoError(t, err)

	c, err := connect(context.Background(), req, nil, zap.NewNop(), d.dial, okProbe)
	require.NoError(t, err)
	require.True(t, c.sem.TryAcquire(1))

	_, err = c.Ping(context.Background())
	require.ErrorIs(t, err, ErrInflightLimit)
	require.Zero(t, d.calls)
}

func TestConnectNilRequest(t *testing.T) {
	_, err := Connect(context.Background(), nil, nil, zap.NewNop())
	require.ErrorIs(t, err, ErrNilConnRequest)
}

func TestSubscribeWithoutSubscriptions(t *testing.T) {
	d := &fakeDialer{}
	req := requestWithRetries(t, 0, request.Options{LazyConnect: lo.ToPtr(true)})

	c, err := connect(context.Background(), req, nil, zap.NewNop(), d.dial, okProbe)
	require.NoError(t, err)
	require.NoError(t, c.Subscribe(context.Background(), func(request.PubSubChannelType, valkey.PubSubMessage) {}))
	require.Zero(t, d.calls)
}

func TestConnectLogsThroughCtxLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := logger.CtxWithAttrs(context.Background(), zap.String("command", "ping"))
	ctx = logger.WrapInCtx(ctx, zap.New(core))
	req := requestWithRetries(t, 0, request.Options{LazyConnect: lo.ToPtr(true)})

	c, err := connect(ctx, req, nil, nil, (&fakeDialer{}).dial, okProbe)
	require.NoError(t, err)
	defer c.Close()

	entries := logs.FilterMessage("lazy connect, dial deferred to first command").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "ping", fields["command"])
	require.Equal(t, "standalone", fields["mode"])
	require.Equal(t, c.ID().String(), fields["client_id"])
}
