package solana

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/brojonat/ptoken/service/analysis"
	"github.com/brojonat/ptoken/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcResponse struct {
	result *rpc.GetTransactionResult
	err    error
}

// mockRPCClient replays a scripted sequence of responses. Once the script
// runs out the last response is repeated.
type mockRPCClient struct {
	mu        sync.Mutex
	responses []rpcResponse
	calls     []*rpc.GetTransactionOpts
}

func (m *mockRPCClient) GetTransaction(
	ctx context.Context,
	signature solana.Signature,
	opts *rpc.GetTransactionOpts,
) (*rpc.GetTransactionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, opts)
	i := len(m.calls) - 1
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	return m.responses[i].result, m.responses[i].err
}

func (m *mockRPCClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func newTestClient(network analysis.Network, mock *mockRPCClient) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewClient(network, []string{"https://rpc.test"}, 3, metrics.NewMetrics(prometheus.NewRegistry()), logger)
	c.dial = func(string) RPCClient { return mock }
	c.backoffUnit = time.Millisecond
	return c
}

func okResult() *rpc.GetTransactionResult {
	cu := uint64(4645)
	return &rpc.GetTransactionResult{
		Meta: &rpc.TransactionMeta{
			Fee:                  6000,
			ComputeUnitsConsumed: &cu,
		},
	}
}

func TestClientGetTransaction(t *testing.T) {
	ctx := context.Background()
	sig := solana.MustSignatureFromBase58(testSignature)

	t.Run("success on first attempt", func(t *testing.T) {
		mock := &mockRPCClient{responses: []rpcResponse{{result: okResult()}}}
		c := newTestClient(analysis.NetworkMainnet, mock)

		result, err := c.GetTransaction(ctx, sig)
		require.NoError(t, err)
		assert.Equal(t, uint64(6000), result.Meta.Fee)
		require.Equal(t, 1, mock.callCount())
		require.NotNil(t, mock.calls[0].MaxSupportedTransactionVersion)
		assert.Equal(t, uint64(0), *mock.calls[0].MaxSupportedTransactionVersion)
	})

	t.Run("retries after transient error", func(t *testing.T) {
		mock := &mockRPCClient{responses: []rpcResponse{
			{err: errors.New("connection reset by peer")},
			{result: okResult()},
		}}
		c := newTestClient(analysis.NetworkMainnet, mock)

		_, err := c.GetTransaction(ctx, sig)
		require.NoError(t, err)
		assert.Equal(t, 2, mock.callCount())
	})

	t.Run("retries after rate limit", func(t *testing.T) {
		mock := &mockRPCClient{responses: []rpcResponse{
			{err: errors.New("rpc call getTransaction() on https://rpc.test: HTTP 429 Too Many Requests")},
			{result: okResult()},
		}}
		c := newTestClient(analysis.NetworkDevnet, mock)

		_, err := c.GetTransaction(ctx, sig)
		require.NoError(t, err)
		assert.Equal(t, 2, mock.callCount())
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		mock := &mockRPCClient{responses: []rpcResponse{{err: errors.New("i/o timeout")}}}
		c := newTestClient(analysis.NetworkMainnet, mock)

		_, err := c.GetTransaction(ctx, sig)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "after 3 attempts")
		assert.Contains(t, err.Error(), "i/o timeout")
		assert.Equal(t, 3, mock.callCount())
	})

	t.Run("not found is not retried", func(t *testing.T) {
		mock := &mockRPCClient{responses: []rpcResponse{{err: rpc.ErrNotFound}}}
		c := newTestClient(analysis.NetworkMainnet, mock)

		_, err := c.GetTransaction(ctx, sig)
		assert.ErrorIs(t, err, analysis.ErrNotFound)
		assert.Equal(t, 1, mock.callCount())
	})

	t.Run("nil result is not found", func(t *testing.T) {
		mock := &mockRPCClient{responses: []rpcResponse{{}}}
		c := newTestClient(analysis.NetworkMainnet, mock)

		_, err := c.GetTransaction(ctx, sig)
		assert.ErrorIs(t, err, analysis.ErrNotFound)
	})

	t.Run("falls back to legacy request", func(t *testing.T) {
		mock := &mockRPCClient{responses: []rpcResponse{
			{err: errors.New(`decode: expects '"' or 'n', but found '{'`)},
			{result: okResult()},
		}}
		c := newTestClient(analysis.NetworkMainnet, mock)

		_, err := c.GetTransaction(ctx, sig)
		require.NoError(t, err)
		require.Equal(t, 2, mock.callCount())
		assert.Nil(t, mock.calls[1].MaxSupportedTransactionVersion)
	})

	t.Run("cancelled context stops retries", func(t *testing.T) {
		mock := &mockRPCClient{responses: []rpcResponse{{err: errors.New("boom")}}}
		c := newTestClient(analysis.NetworkMainnet, mock)
		c.backoffUnit = time.Hour

		cctx, cancel := context.WithCancel(ctx)
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		_, err := c.GetTransaction(cctx, sig)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, mock.callCount())
	})

	t.Run("no endpoints", func(t *testing.T) {
		c := NewClient(analysis.NetworkMainnet, nil, 3, nil, nil)
		_, err := c.GetTransaction(ctx, sig)
		assert.ErrorContains(t, err, "no RPC endpoints configured")
	})
}

func TestClientReusesRPCPerEndpoint(t *testing.T) {
	dials := 0
	mock := &mockRPCClient{responses: []rpcResponse{{result: okResult()}}}
	c := NewClient(analysis.NetworkMainnet, []string{"https://a.test", "https://b.test"}, 1, nil, nil)
	c.dial = func(string) RPCClient {
		dials++
		return mock
	}

	sig := solana.MustSignatureFromBase58(testSignature)
	for range 20 {
		_, err := c.GetTransaction(context.Background(), sig)
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, dials, 2)
}

func TestFetcher(t *testing.T) {
	ctx := context.Background()

	mainnet := newTestClient(analysis.NetworkMainnet, &mockRPCClient{responses: []rpcResponse{{result: okResult()}}})
	devnet := newTestClient(analysis.NetworkDevnet, &mockRPCClient{responses: []rpcResponse{{err: rpc.ErrNotFound}}})
	f := NewFetcher(mainnet, devnet)

	t.Run("routes by network", func(t *testing.T) {
		record, err := f.FetchTransaction(ctx, testSignature, analysis.NetworkMainnet)
		require.NoError(t, err)
		assert.Equal(t, testSignature, record.Signature)
		require.NotNil(t, record.Meta)
		assert.Equal(t, uint64(6000), record.Meta.Fee)

		_, err = f.FetchTransaction(ctx, testSignature, analysis.NetworkDevnet)
		assert.ErrorIs(t, err, analysis.ErrNotFound)
	})

	t.Run("malformed signature", func(t *testing.T) {
		_, err := f.FetchTransaction(ctx, "not-a-signature", analysis.NetworkMainnet)
		assert.ErrorIs(t, err, analysis.ErrInputInvalid)
	})

	t.Run("unconfigured network", func(t *testing.T) {
		_, err := NewFetcher(mainnet).FetchTransaction(ctx, testSignature, analysis.NetworkDevnet)
		assert.ErrorContains(t, err, "no RPC client configured")
	})
}
