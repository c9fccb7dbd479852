package indexer

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"blockscan/internal/model"
	"blockscan/internal/storage"
)

// HeadSource opens push subscriptions for new block headers.
type HeadSource interface {
	SubscribeNewHeads(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

// HeadSubscriber tails the chain through a header subscription on one
// designated provider. Every notification spawns an independent
// assemble-and-store task; tasks are not deduplicated against the
// backfill pipeline because store writes are idempotent. The outer
// loop reconnects forever with a fixed delay and only stops on
// context cancellation.
type HeadSubscriber struct {
	heads          HeadSource
	assembler      *Assembler
	store          storage.BundleStore
	set            storage.BlockSet
	chain          string
	reconnectDelay time.Duration
	logger         *zap.Logger
}

func NewHeadSubscriber(heads HeadSource, assembler *Assembler, store storage.BundleStore, set storage.BlockSet, chain string, reconnectDelay time.Duration, logger *zap.Logger) *HeadSubscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	return &HeadSubscriber{
		heads:          heads,
		assembler:      assembler,
		store:          store,
		set:            set,
		chain:          chain,
		reconnectDelay: reconnectDelay,
		logger:         logger,
	}
}

// Run supervises the subscription until the context is canceled.
func (h *HeadSubscriber) Run(ctx context.Context) error {
	for {
		err := h.stream(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		h.logger.Warn("head subscription ended, reconnecting",
			zap.Error(err),
			zap.Duration("delay", h.reconnectDelay),
		)

		timer := time.NewTimer(h.reconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (h *HeadSubscriber) stream(ctx context.Context) error {
	headers := make(chan *types.Header, 16)
	sub, err := h.heads.SubscribeNewHeads(ctx, headers)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	h.logger.Info("subscribed to new heads", zap.String("chain", h.chain))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case header := <-headers:
			if header == nil || header.Number == nil {
				continue
			}
			go h.process(ctx, header.Number.Int64())
		}
	}
}

func (h *HeadSubscriber) process(ctx context.Context, number int64) {
	bundle, err := h.assembler.Assemble(ctx, number)
	if err != nil {
		h.logger.Warn("live block rejected", zap.Int64("block", number), zap.Error(err))
		return
	}

	if err := h.store.StoreBundles(ctx, []*model.BlockBundle{bundle}); err != nil {
		h.logger.Warn("live block store failed", zap.Int64("block", number), zap.Error(err))
		return
	}

	if err := h.set.Add(ctx, number); err != nil {
		h.logger.Warn("indexed set update failed", zap.Int64("block", number), zap.Error(err))
		return
	}
	if size, err := h.set.Size(ctx); err == nil {
		if err := h.store.UpdateChainState(ctx, h.chain, size); err != nil {
			h.logger.Warn("chain state update failed", zap.Error(err))
		}
	}

	h.logger.Info("live block stored",
		zap.Int64("block", number),
		zap.Int("transactions", len(bundle.Transactions)),
	)
}
