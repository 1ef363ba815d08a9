package solana

import (
	"fmt"
	"log/slog"

	"github.com/brojonat/ptoken/service/analysis"
	"github.com/brojonat/ptoken/service/config"
	"github.com/brojonat/ptoken/service/costs"
	"github.com/brojonat/ptoken/service/metrics"
)

// NewAnalyzerFromConfig builds an Analyzer backed by one RPC client per
// network, using the cost table and fee model in cfg.
func NewAnalyzerFromConfig(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*analysis.Analyzer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	table, err := costs.LoadFile(cfg.CostTablePath)
	if err != nil {
		return nil, err
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cost table: %w", err)
	}

	fetcher := NewFetcher(
		NewClient(analysis.NetworkMainnet, cfg.SolanaMainnetRPCURLs, cfg.RPCMaxAttempts, m, logger),
		NewClient(analysis.NetworkDevnet, cfg.SolanaDevnetRPCURLs, cfg.RPCMaxAttempts, m, logger),
	)

	logger.Info("initialized solana RPC clients",
		"mainnet_endpoints", len(cfg.SolanaMainnetRPCURLs),
		"devnet_endpoints", len(cfg.SolanaDevnetRPCURLs),
		"cost_table_entries", len(table),
	)

	return analysis.NewAnalyzer(fetcher, table, cfg.FeeParams(), m, logger), nil
}
