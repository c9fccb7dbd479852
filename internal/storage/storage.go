package storage

import (
	"context"

	"blockscan/internal/model"
)

// BundleStore persists validated block bundles and the per-chain
// progress row. All writes are insert-or-ignore on primary key, so a
// store call is safely repeatable.
type BundleStore interface {
	StoreBundles(ctx context.Context, bundles []*model.BlockBundle) error
	UpdateChainState(ctx context.Context, chain string, indexedBlocks int64) error
	IndexedBlockNumbers(ctx context.Context) ([]int64, error)
}

// LogStore serves the transfer decoder: a bounded page of logs whose
// parse flag is unset or false, plus the write-back paths.
type LogStore interface {
	UnparsedLogs(ctx context.Context, limit int) ([]model.Log, error)
	StoreTransfers(ctx context.Context, transfers []model.Erc20Transfer) error
	MarkLogsParsed(ctx context.Context, logs []model.Log) error
}

// TokenStore serves the token metadata enrichment pass.
type TokenStore interface {
	TokensMissingMetadata(ctx context.Context, limit int) ([]string, error)
	StoreTokens(ctx context.Context, tokens []model.Token) error
	StoreExcludedTokens(ctx context.Context, excluded []model.ExcludedToken) error
}

// BlockSet is the fast-membership set of completely indexed block
// numbers for one chain. Add is commutative and idempotent, so
// concurrent writers need no coordination.
type BlockSet interface {
	Members(ctx context.Context) (map[int64]struct{}, error)
	Add(ctx context.Context, numbers ...int64) error
	Size(ctx context.Context) (int64, error)
	Clear(ctx context.Context) error
}
