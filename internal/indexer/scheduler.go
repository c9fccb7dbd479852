package indexer

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"blockscan/internal/model"
	"blockscan/internal/storage"
)

// SchedulerConfig holds runtime settings for the gap scheduler.
type SchedulerConfig struct {
	Chain        string
	StartBlock   int64
	BatchSize    int
	Workers      int
	BulkReceipts bool
}

// Scheduler computes the gap between the chain tip and the indexed
// set, partitions it across providers, and drives fetch + store in
// bounded super-chunks. One invocation makes a single pass; the outer
// driver re-runs it, so failed blocks are retried by re-scan rather
// than by an explicit retry mechanism.
type Scheduler struct {
	cfg     SchedulerConfig
	sources []BlockSource
	store   storage.BundleStore
	set     storage.BlockSet
	logger  *zap.Logger
}

func NewScheduler(cfg SchedulerConfig, sources []BlockSource, store storage.BundleStore, set storage.BlockSet, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:     cfg,
		sources: sources,
		store:   store,
		set:     set,
		logger:  logger,
	}
}

// Run executes one backfill pass. The missing set is recomputed from
// the persisted indexed set every time, so a crash loses at most the
// current super-chunk per provider and re-running is always safe.
func (s *Scheduler) Run(ctx context.Context) error {
	tip, err := s.sources[0].TipNumber(ctx)
	if err != nil {
		return err
	}

	indexed, err := s.set.Members(ctx)
	if err != nil {
		return err
	}

	missing := MissingBlocks(s.cfg.StartBlock, int64(tip), indexed)
	if len(missing) == 0 {
		s.logger.Debug("no gap to fill", zap.Uint64("tip", tip))
		return nil
	}

	s.logger.Info("backfill pass",
		zap.Int("missing", len(missing)),
		zap.Uint64("tip", tip),
		zap.Int("batch_size", s.cfg.BatchSize),
		zap.Int("workers", s.cfg.Workers),
		zap.Int("providers", len(s.sources)),
	)

	var group errgroup.Group
	for i, slice := range PartitionSlices(missing, len(s.sources)) {
		source := s.sources[i%len(s.sources)]
		numbers := slice
		group.Go(func() error {
			return s.runProvider(ctx, source, numbers)
		})
	}
	return group.Wait()
}

// runProvider walks one provider's slice in super-chunks of
// BatchSize*Workers blocks. All fetches inside a super-chunk run
// concurrently; the store + checkpoint step strictly follows their
// completion.
func (s *Scheduler) runProvider(ctx context.Context, source BlockSource, numbers []int64) error {
	assembler := NewAssembler(source, s.cfg.BulkReceipts, s.logger)

	for _, superChunk := range ChunkNumbers(numbers, s.cfg.BatchSize*s.cfg.Workers) {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.logger.Info("processing chunk",
			zap.Int64("from", superChunk[0]),
			zap.Int64("to", superChunk[len(superChunk)-1]),
			zap.String("chain", s.cfg.Chain),
		)

		results := make([]*model.BlockBundle, len(superChunk))
		var fetches errgroup.Group
		for i, number := range superChunk {
			idx, n := i, number
			fetches.Go(func() error {
				bundle, err := assembler.Assemble(ctx, n)
				if err != nil {
					// Leave the block in the gap; the next pass
					// re-includes it.
					s.logger.Warn("block rejected", zap.Int64("block", n), zap.Error(err))
					return nil
				}
				results[idx] = bundle
				return nil
			})
		}
		fetches.Wait()

		bundles := make([]*model.BlockBundle, 0, len(results))
		stored := make([]int64, 0, len(results))
		for _, bundle := range results {
			if bundle != nil {
				bundles = append(bundles, bundle)
				stored = append(stored, bundle.Block.Number)
			}
		}
		if len(bundles) < len(superChunk) {
			s.logger.Info("incomplete chunk, missing blocks retried next pass",
				zap.Int("requested", len(superChunk)),
				zap.Int("assembled", len(bundles)),
			)
		}
		if len(bundles) == 0 {
			continue
		}

		if err := s.store.StoreBundles(ctx, bundles); err != nil {
			// Skip the checkpoint: membership must imply a complete,
			// durable bundle. Re-scan will retry these numbers.
			s.logger.Error("store failed", zap.Error(err))
			continue
		}

		if err := s.checkpoint(ctx, stored); err != nil {
			s.logger.Error("checkpoint failed", zap.Error(err))
		}
	}
	return nil
}

func (s *Scheduler) checkpoint(ctx context.Context, stored []int64) error {
	if err := s.set.Add(ctx, stored...); err != nil {
		return err
	}
	size, err := s.set.Size(ctx)
	if err != nil {
		return err
	}
	return s.store.UpdateChainState(ctx, s.cfg.Chain, size)
}
