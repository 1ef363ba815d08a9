package solana

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/brojonat/ptoken/service/analysis"
	"github.com/brojonat/ptoken/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// DefaultMaxAttempts is the number of GetTransaction attempts per fetch.
// Public RPC endpoints rate limit aggressively, so keep this small.
const DefaultMaxAttempts = 3

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetTransaction(
		ctx context.Context,
		signature solana.Signature,
		opts *rpc.GetTransactionOpts,
	) (*rpc.GetTransactionResult, error)
}

// Client fetches transactions from a pool of RPC endpoints serving one
// network. Each attempt picks an endpoint at random.
type Client struct {
	network     analysis.Network
	endpoints   []string
	dial        func(url string) RPCClient
	maxAttempts int
	backoffUnit time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger

	mu      sync.Mutex
	clients map[string]RPCClient
}

// NewClient creates a client for network backed by the given endpoint URLs.
// If metrics is nil, no metrics will be recorded.
func NewClient(network analysis.Network, endpoints []string, maxAttempts int, m *metrics.Metrics, logger *slog.Logger) *Client {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		network:     network,
		endpoints:   endpoints,
		dial:        NewRPCClient,
		maxAttempts: maxAttempts,
		backoffUnit: time.Second,
		metrics:     m,
		logger:      logger,
		clients:     make(map[string]RPCClient),
	}
}

// Network returns the network this client serves.
func (c *Client) Network() analysis.Network {
	return c.network
}

func (c *Client) rpcFor(endpoint string) RPCClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rc, ok := c.clients[endpoint]; ok {
		return rc
	}
	rc := c.dial(endpoint)
	c.clients[endpoint] = rc
	return rc
}

// GetTransaction fetches a confirmed transaction with up to maxAttempts
// attempts. Rate limited attempts back off longer than other failures.
// A transaction the node does not know about is reported as
// analysis.ErrNotFound without further retries.
func (c *Client) GetTransaction(ctx context.Context, signature solana.Signature) (*rpc.GetTransactionResult, error) {
	var result *rpc.GetTransactionResult
	var err error

	for attempt := range c.maxAttempts {
		endpoint, selErr := SelectRandomEndpoint(c.endpoints)
		if selErr != nil {
			return nil, selErr
		}
		rc := c.rpcFor(endpoint)

		result, err = c.call(ctx, rc, signature, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     rpc.CommitmentConfirmed,
			MaxSupportedTransactionVersion: &[]uint64{0}[0],
		})

		if err == nil {
			if result == nil {
				return nil, analysis.ErrNotFound
			}
			return result, nil
		}

		if errors.Is(err, rpc.ErrNotFound) {
			return nil, analysis.ErrNotFound
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// Handle rate limiting (429 Too Many Requests) with longer backoff
		if strings.Contains(err.Error(), "429") {
			backoff := time.Duration(2<<uint(attempt)) * c.backoffUnit
			c.logger.WarnContext(ctx, "rate limited, sleeping before retry",
				"signature", signature.String(),
				"network", c.network,
				"attempt", attempt+1,
				"backoff_seconds", backoff.Seconds(),
			)
			if c.metrics != nil {
				c.metrics.RecordRateLimitHit(string(c.network))
				c.metrics.RecordRPCRetry("GetTransaction", "rate_limit")
			}
			if err := sleep(ctx, backoff); err != nil {
				return nil, err
			}
			continue
		}

		// Some nodes cannot decode legacy transactions when a version is requested
		if strings.Contains(err.Error(), versionParseError) {
			c.logger.WarnContext(ctx, "could not parse as versioned tx, retrying as legacy",
				"signature", signature.String(),
			)
			if c.metrics != nil {
				c.metrics.RecordRPCRetry("GetTransaction", "parse_error")
			}
			result, err = c.call(ctx, rc, signature, &rpc.GetTransactionOpts{
				Encoding:   solana.EncodingBase64,
				Commitment: rpc.CommitmentConfirmed,
			})
			if err == nil {
				if result == nil {
					return nil, analysis.ErrNotFound
				}
				return result, nil
			}
			if errors.Is(err, rpc.ErrNotFound) {
				return nil, analysis.ErrNotFound
			}
		}

		if attempt == c.maxAttempts-1 {
			break
		}

		backoff := time.Duration(1<<uint(attempt)) * c.backoffUnit
		c.logger.WarnContext(ctx, "failed to get transaction on attempt",
			"signature", signature.String(),
			"network", c.network,
			"attempt", attempt+1,
			"error", err,
			"backoff_seconds", backoff.Seconds(),
		)
		if c.metrics != nil {
			c.metrics.RecordRPCRetry("GetTransaction", "timeout_or_error")
		}
		if err := sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("failed to get transaction after %d attempts: %w", c.maxAttempts, err)
}

func (c *Client) call(ctx context.Context, rc RPCClient, signature solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	start := time.Now()
	result, err := rc.GetTransaction(ctx, signature, opts)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordRPCCall("GetTransaction", status, string(c.network), duration)
	}
	return result, err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Fetcher routes transaction lookups to the client for the requested network.
// It implements analysis.Fetcher.
type Fetcher struct {
	clients map[analysis.Network]*Client
}

// NewFetcher creates a Fetcher over one client per network.
func NewFetcher(clients ...*Client) *Fetcher {
	f := &Fetcher{clients: make(map[analysis.Network]*Client, len(clients))}
	for _, c := range clients {
		f.clients[c.Network()] = c
	}
	return f
}

// FetchTransaction implements analysis.Fetcher.
func (f *Fetcher) FetchTransaction(ctx context.Context, signature string, network analysis.Network) (*analysis.TransactionRecord, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a valid base58 signature", analysis.ErrInputInvalid, signature)
	}

	c, ok := f.clients[network]
	if !ok {
		return nil, fmt.Errorf("no RPC client configured for network %q", network)
	}

	result, err := c.GetTransaction(ctx, sig)
	if err != nil {
		return nil, err
	}
	return recordFromResult(signature, result), nil
}
