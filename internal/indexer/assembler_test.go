package indexer

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"blockscan/internal/model"
)

type fakeSource struct {
	chainID      *big.Int
	tip          uint64
	blocks       map[int64]*types.Block
	declared     map[common.Hash]uint
	bulkReceipts map[int64][]*types.Receipt
	receipts     map[common.Hash]*types.Receipt
}

func newFakeSource(tip uint64) *fakeSource {
	return &fakeSource{
		chainID:      big.NewInt(1337),
		tip:          tip,
		blocks:       make(map[int64]*types.Block),
		declared:     make(map[common.Hash]uint),
		bulkReceipts: make(map[int64][]*types.Receipt),
		receipts:     make(map[common.Hash]*types.Receipt),
	}
}

func (f *fakeSource) ChainID() *big.Int { return f.chainID }

func (f *fakeSource) TipNumber(context.Context) (uint64, error) { return f.tip, nil }

func (f *fakeSource) BlockByNumber(_ context.Context, number *big.Int) (*types.Block, error) {
	block, ok := f.blocks[number.Int64()]
	if !ok {
		return nil, fmt.Errorf("block %d not found", number.Int64())
	}
	return block, nil
}

func (f *fakeSource) TransactionCount(_ context.Context, blockHash common.Hash) (uint, error) {
	if declared, ok := f.declared[blockHash]; ok {
		return declared, nil
	}
	for _, block := range f.blocks {
		if block.Hash() == blockHash {
			return uint(block.Transactions().Len()), nil
		}
	}
	return 0, fmt.Errorf("block %s not found", blockHash.Hex())
}

func (f *fakeSource) BlockReceipts(_ context.Context, number int64) ([]*types.Receipt, error) {
	return f.bulkReceipts[number], nil
}

func (f *fakeSource) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	receipt, ok := f.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func newTestBlock(number int64, txs ...*types.Transaction) *types.Block {
	header := &types.Header{
		Number: big.NewInt(number),
		Time:   uint64(1700000000 + number),
	}
	return types.NewBlockWithHeader(header).WithBody(txs, nil)
}

type fakeStore struct {
	mu       sync.Mutex
	calls    [][]int64
	failLeft int
	state    map[string]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{state: make(map[string]int64)}
}

func (s *fakeStore) StoreBundles(_ context.Context, bundles []*model.BlockBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLeft > 0 {
		s.failLeft--
		return fmt.Errorf("store unavailable")
	}
	numbers := make([]int64, 0, len(bundles))
	for _, bundle := range bundles {
		numbers = append(numbers, bundle.Block.Number)
	}
	s.calls = append(s.calls, numbers)
	return nil
}

func (s *fakeStore) UpdateChainState(_ context.Context, chain string, indexedBlocks int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[chain] = indexedBlocks
	return nil
}

func (s *fakeStore) IndexedBlockNumbers(context.Context) ([]int64, error) { return nil, nil }

func (s *fakeStore) chainState(chain string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state[chain]
}

func (s *fakeStore) storedNumbers() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var numbers []int64
	for _, call := range s.calls {
		numbers = append(numbers, call...)
	}
	return numbers
}

type fakeSet struct {
	mu      sync.Mutex
	members map[int64]struct{}
}

func newFakeSet(numbers ...int64) *fakeSet {
	set := &fakeSet{members: make(map[int64]struct{})}
	for _, n := range numbers {
		set.members[n] = struct{}{}
	}
	return set
}

func (s *fakeSet) Members(context.Context) (map[int64]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := make(map[int64]struct{}, len(s.members))
	for n := range s.members {
		members[n] = struct{}{}
	}
	return members, nil
}

func (s *fakeSet) Add(_ context.Context, numbers ...int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range numbers {
		s.members[n] = struct{}{}
	}
	return nil
}

func (s *fakeSet) Size(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.members)), nil
}

func (s *fakeSet) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members = make(map[int64]struct{})
	return nil
}

func (s *fakeSet) has(number int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.members[number]
	return ok
}

func signedTransfer(t *testing.T, source *fakeSource, nonce uint64, to common.Address, value int64) (*types.Transaction, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer := types.LatestSignerForChainID(source.chainID)
	tx, err := types.SignNewTx(key, signer, &types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(value),
		Gas:      21000,
		GasPrice: big.NewInt(1),
	})
	if err != nil {
		t.Fatalf("sign tx: %v", err)
	}
	return tx, crypto.PubkeyToAddress(key.PublicKey)
}

func signedDeploy(t *testing.T, source *fakeSource) (*types.Transaction, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer := types.LatestSignerForChainID(source.chainID)
	tx, err := types.SignNewTx(key, signer, &types.LegacyTx{
		Nonce:    0,
		Value:    big.NewInt(0),
		Gas:      500000,
		GasPrice: big.NewInt(1),
		Data:     []byte{0x60, 0x80},
	})
	if err != nil {
		t.Fatalf("sign tx: %v", err)
	}
	return tx, crypto.PubkeyToAddress(key.PublicKey)
}

func TestAssembleBulkReceipts(t *testing.T) {
	source := newFakeSource(10)
	to := common.HexToAddress("0x0000000000000000000000000000000000000001")
	tx, sender := signedTransfer(t, source, 0, to, 42)
	deploy, deployer := signedDeploy(t, source)

	block := newTestBlock(7, tx, deploy)
	source.blocks[7] = block

	token := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	created := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	source.bulkReceipts[7] = []*types.Receipt{
		{
			TxHash:  tx.Hash(),
			Status:  types.ReceiptStatusSuccessful,
			GasUsed: 21000,
			Logs: []*types.Log{
				{
					Address: token,
					Topics:  []common.Hash{common.HexToHash("0x01"), common.HexToHash("0x02")},
					Data:    []byte{0x01},
					TxHash:  tx.Hash(),
					Index:   3,
				},
			},
		},
		{
			TxHash:          deploy.Hash(),
			Status:          types.ReceiptStatusSuccessful,
			GasUsed:         400000,
			ContractAddress: created,
		},
	}

	bundle, err := NewAssembler(source, true, nil).Assemble(context.Background(), 7)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	if bundle.Block.Number != 7 || bundle.Block.Hash != block.Hash().Hex() || bundle.Block.TxCount != 2 {
		t.Fatalf("unexpected block record: %+v", bundle.Block)
	}
	if len(bundle.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(bundle.Transactions))
	}
	first := bundle.Transactions[0]
	if first.From != sender.Hex() || first.To != to.Hex() || first.Value != "42" || first.TxIndex != 0 {
		t.Fatalf("unexpected transaction record: %+v", first)
	}
	if bundle.Transactions[1].To != "" {
		t.Fatalf("deploy transaction should have empty to, got %q", bundle.Transactions[1].To)
	}
	if len(bundle.Receipts) != 2 {
		t.Fatalf("expected 2 receipts, got %d", len(bundle.Receipts))
	}
	if len(bundle.Logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(bundle.Logs))
	}
	log := bundle.Logs[0]
	if log.TxHash != tx.Hash().Hex() || log.LogIndex != 3 || log.Address != token.Hex() || log.Data != "0x01" {
		t.Fatalf("unexpected log record: %+v", log)
	}
	if len(log.Topics) != 2 {
		t.Fatalf("expected 2 topics, got %d", len(log.Topics))
	}
	if len(bundle.Contracts) != 1 {
		t.Fatalf("expected 1 contract, got %d", len(bundle.Contracts))
	}
	contract := bundle.Contracts[0]
	if contract.Address != created.Hex() || contract.Deployer != deployer.Hex() || contract.TxHash != deploy.Hash().Hex() || contract.BlockNumber != 7 {
		t.Fatalf("unexpected contract record: %+v", contract)
	}
}

func TestAssembleDeclaredCountMismatch(t *testing.T) {
	source := newFakeSource(10)
	to := common.HexToAddress("0x0000000000000000000000000000000000000001")
	tx, _ := signedTransfer(t, source, 0, to, 1)

	block := newTestBlock(5, tx)
	source.blocks[5] = block
	source.declared[block.Hash()] = 3

	bundle, err := NewAssembler(source, true, nil).Assemble(context.Background(), 5)
	if err == nil {
		t.Fatal("expected rejection for declared count mismatch")
	}
	if bundle != nil {
		t.Fatalf("expected nil bundle, got %+v", bundle)
	}
}

func TestAssemblePerTxReceipts(t *testing.T) {
	source := newFakeSource(10)
	to := common.HexToAddress("0x0000000000000000000000000000000000000001")
	tx1, _ := signedTransfer(t, source, 0, to, 1)
	tx2, _ := signedTransfer(t, source, 1, to, 2)

	source.blocks[9] = newTestBlock(9, tx1, tx2)
	source.receipts[tx1.Hash()] = &types.Receipt{TxHash: tx1.Hash(), Status: 1, GasUsed: 21000}
	source.receipts[tx2.Hash()] = &types.Receipt{TxHash: tx2.Hash(), Status: 0, GasUsed: 30000}

	bundle, err := NewAssembler(source, false, nil).Assemble(context.Background(), 9)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(bundle.Receipts) != 2 {
		t.Fatalf("expected 2 receipts, got %d", len(bundle.Receipts))
	}
	if bundle.Receipts[1].Status != 0 || bundle.Receipts[1].GasUsed != 30000 {
		t.Fatalf("unexpected receipt record: %+v", bundle.Receipts[1])
	}
}

func TestAssemblePerTxReceiptDeficit(t *testing.T) {
	source := newFakeSource(10)
	to := common.HexToAddress("0x0000000000000000000000000000000000000001")
	tx1, _ := signedTransfer(t, source, 0, to, 1)
	tx2, _ := signedTransfer(t, source, 1, to, 2)

	source.blocks[9] = newTestBlock(9, tx1, tx2)
	source.receipts[tx1.Hash()] = &types.Receipt{TxHash: tx1.Hash(), Status: 1, GasUsed: 21000}

	if _, err := NewAssembler(source, false, nil).Assemble(context.Background(), 9); err == nil {
		t.Fatal("expected rejection for missing receipt")
	}
}

func TestAssembleBulkReceiptDeficit(t *testing.T) {
	source := newFakeSource(10)
	to := common.HexToAddress("0x0000000000000000000000000000000000000001")
	tx1, _ := signedTransfer(t, source, 0, to, 1)
	tx2, _ := signedTransfer(t, source, 1, to, 2)

	source.blocks[4] = newTestBlock(4, tx1, tx2)
	source.bulkReceipts[4] = []*types.Receipt{
		{TxHash: tx1.Hash(), Status: 1, GasUsed: 21000},
	}

	if _, err := NewAssembler(source, true, nil).Assemble(context.Background(), 4); err == nil {
		t.Fatal("expected rejection for receipt deficit")
	}
}
