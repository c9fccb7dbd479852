package erc20

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"blockscan/internal/model"
	"blockscan/internal/storage"
)

// Enricher backfills token metadata for addresses seen in transfers.
// Tokens that answer with a non-empty name and symbol are stored;
// silent ones land in the excluded table so they are not re-queried.
type Enricher struct {
	source   CallSource
	store    storage.TokenStore
	chain    string
	pageSize int
	logger   *zap.Logger
}

func NewEnricher(source CallSource, store storage.TokenStore, chain string, pageSize int, logger *zap.Logger) *Enricher {
	if pageSize <= 0 {
		pageSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		source:   source,
		store:    store,
		chain:    chain,
		pageSize: pageSize,
		logger:   logger,
	}
}

// Run pages through tokens missing metadata until none remain.
func (e *Enricher) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		addresses, err := e.store.TokensMissingMetadata(ctx, e.pageSize)
		if err != nil {
			return fmt.Errorf("fetch missing tokens: %w", err)
		}
		if len(addresses) == 0 {
			return nil
		}

		var tokens []model.Token
		var excluded []model.ExcludedToken
		for _, address := range addresses {
			if !common.IsHexAddress(address) {
				excluded = append(excluded, model.ExcludedToken{Address: address, Chain: e.chain})
				continue
			}

			meta, err := FetchTokenMeta(ctx, e.source, common.HexToAddress(address), e.logger)
			if err != nil || meta.Name == "" || meta.Symbol == "" {
				excluded = append(excluded, model.ExcludedToken{Address: address, Chain: e.chain})
				continue
			}
			// Keep the address exactly as stored so the join back to
			// transfers stays exact.
			meta.Address = address
			tokens = append(tokens, meta)
		}

		if err := e.store.StoreTokens(ctx, tokens); err != nil {
			return fmt.Errorf("store tokens: %w", err)
		}
		if err := e.store.StoreExcludedTokens(ctx, excluded); err != nil {
			return fmt.Errorf("store excluded tokens: %w", err)
		}

		e.logger.Info("token metadata page complete",
			zap.Int("fetched", len(addresses)),
			zap.Int("stored", len(tokens)),
			zap.Int("excluded", len(excluded)),
		)
	}
}
