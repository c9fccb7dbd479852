package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"blockscan/internal/model"
)

// BlockSource is the per-provider RPC capability the pipeline consumes.
type BlockSource interface {
	ChainID() *big.Int
	TipNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	TransactionCount(ctx context.Context, blockHash common.Hash) (uint, error)
	BlockReceipts(ctx context.Context, number int64) ([]*types.Receipt, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Assembler turns one block number into a validated, complete record
// bundle. A block that fails either completeness check is rejected as
// a whole; the store never sees a partial bundle.
type Assembler struct {
	source       BlockSource
	bulkReceipts bool
	logger       *zap.Logger
}

// NewAssembler builds an Assembler for one provider. bulkReceipts
// selects the receipt-fetch strategy: one eth_getBlockReceipts call
// when the chain supports it, one receipt call per transaction when
// it does not.
func NewAssembler(source BlockSource, bulkReceipts bool, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		source:       source,
		bulkReceipts: bulkReceipts,
		logger:       logger,
	}
}

// Assemble fetches and validates one block. Rejections come back as
// ordinary errors; the caller logs them and leaves the block number in
// the gap for the next scheduler pass.
func (a *Assembler) Assemble(ctx context.Context, number int64) (*model.BlockBundle, error) {
	block, err := a.source.BlockByNumber(ctx, big.NewInt(number))
	if err != nil {
		return nil, fmt.Errorf("fetch block %d: %w", number, err)
	}

	txs := block.Transactions()
	declared, err := a.source.TransactionCount(ctx, block.Hash())
	if err != nil {
		return nil, fmt.Errorf("fetch tx count %d: %w", number, err)
	}
	if int(declared) != len(txs) {
		a.logger.Warn("block transaction count mismatch",
			zap.Int64("block", number),
			zap.Uint("declared", declared),
			zap.Int("got", len(txs)),
		)
		return nil, fmt.Errorf("block %d: declared %d transactions, got %d", number, declared, len(txs))
	}

	receipts, err := a.fetchReceipts(ctx, number, txs)
	if err != nil {
		return nil, err
	}
	if len(receipts) != len(txs) {
		a.logger.Warn("block receipt count mismatch",
			zap.Int64("block", number),
			zap.Int("transactions", len(txs)),
			zap.Int("receipts", len(receipts)),
		)
		return nil, fmt.Errorf("block %d: %d transactions but %d receipts", number, len(txs), len(receipts))
	}

	return a.buildBundle(block, txs, receipts), nil
}

func (a *Assembler) fetchReceipts(ctx context.Context, number int64, txs types.Transactions) ([]*types.Receipt, error) {
	if a.bulkReceipts {
		receipts, err := a.source.BlockReceipts(ctx, number)
		if err != nil {
			return nil, fmt.Errorf("fetch block receipts %d: %w", number, err)
		}
		return receipts, nil
	}

	receipts := make([]*types.Receipt, 0, len(txs))
	for _, tx := range txs {
		receipt, err := a.source.TransactionReceipt(ctx, tx.Hash())
		if err != nil {
			// A single missing receipt is skipped, not fatal; the
			// count check below rejects the block if any are absent.
			if !errors.Is(err, ethereum.NotFound) {
				a.logger.Warn("receipt fetch failed",
					zap.Int64("block", number),
					zap.String("tx", tx.Hash().Hex()),
					zap.Error(err),
				)
			}
			continue
		}
		if receipt != nil {
			receipts = append(receipts, receipt)
		}
	}
	return receipts, nil
}

func (a *Assembler) buildBundle(block *types.Block, txs types.Transactions, receipts []*types.Receipt) *model.BlockBundle {
	number := block.Number().Int64()
	signer := types.LatestSignerForChainID(a.source.ChainID())

	bundle := &model.BlockBundle{
		Block: model.Block{
			Number:    number,
			Hash:      block.Hash().Hex(),
			Timestamp: int64(block.Time()),
			TxCount:   len(txs),
		},
	}

	senders := make(map[common.Hash]string, len(txs))
	for i, tx := range txs {
		from := ""
		if sender, err := types.Sender(signer, tx); err == nil {
			from = sender.Hex()
		}
		senders[tx.Hash()] = from

		to := ""
		if tx.To() != nil {
			to = tx.To().Hex()
		}

		bundle.Transactions = append(bundle.Transactions, model.Transaction{
			Hash:        tx.Hash().Hex(),
			BlockNumber: number,
			From:        from,
			To:          to,
			Value:       tx.Value().String(),
			TxIndex:     int64(i),
		})
	}

	for _, receipt := range receipts {
		txHash := receipt.TxHash.Hex()
		bundle.Receipts = append(bundle.Receipts, model.Receipt{
			TxHash:  txHash,
			Status:  int64(receipt.Status),
			GasUsed: int64(receipt.GasUsed),
		})

		for _, l := range receipt.Logs {
			topics := make([]string, 0, len(l.Topics))
			for _, topic := range l.Topics {
				topics = append(topics, topic.Hex())
			}
			bundle.Logs = append(bundle.Logs, model.Log{
				TxHash:   l.TxHash.Hex(),
				LogIndex: int64(l.Index),
				Address:  l.Address.Hex(),
				Topics:   topics,
				Data:     hexutil.Encode(l.Data),
			})
		}

		if receipt.ContractAddress != (common.Address{}) {
			bundle.Contracts = append(bundle.Contracts, model.Contract{
				Address:     receipt.ContractAddress.Hex(),
				Deployer:    senders[receipt.TxHash],
				TxHash:      txHash,
				BlockNumber: number,
			})
		}
	}

	return bundle
}
