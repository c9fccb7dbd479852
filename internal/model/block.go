package model

// Block is the normalized representation of a chain block for storage.
type Block struct {
	Number    int64  `json:"number"`
	Hash      string `json:"hash"`
	Timestamp int64  `json:"timestamp"`
	TxCount   int    `json:"tx_count"`
}

// Transaction is the normalized representation of a chain transaction.
type Transaction struct {
	Hash        string `json:"hash"`
	BlockNumber int64  `json:"block_number"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	TxIndex     int64  `json:"tx_index"`
}

// Receipt captures the execution outcome of one transaction.
type Receipt struct {
	TxHash  string `json:"tx_hash"`
	Status  int64  `json:"status"`
	GasUsed int64  `json:"gas_used"`
}

// Log is one emitted event log, keyed by (tx hash, log index).
// Topics holds up to four 32-byte hex values. Parsed is tri-state:
// nil and false both mean the transfer decoder has not seen it yet.
type Log struct {
	TxHash   string   `json:"tx_hash"`
	LogIndex int64    `json:"log_index"`
	Address  string   `json:"address"`
	Topics   []string `json:"topics"`
	Data     string   `json:"data"`
	Parsed   *bool    `json:"parsed"`
}

// Contract records a contract deployment, keyed by address.
type Contract struct {
	Address     string `json:"address"`
	Deployer    string `json:"deployer"`
	TxHash      string `json:"tx_hash"`
	BlockNumber int64  `json:"block_number"`
}

// BlockBundle is the complete record set for one block. The assembler
// produces all five collections together or none at all.
type BlockBundle struct {
	Block        Block
	Transactions []Transaction
	Receipts     []Receipt
	Logs         []Log
	Contracts    []Contract
}

// MergeBundles flattens validated bundles into per-table batches.
func MergeBundles(bundles []*BlockBundle) (blocks []Block, txs []Transaction, receipts []Receipt, logs []Log, contracts []Contract) {
	for _, b := range bundles {
		if b == nil {
			continue
		}
		blocks = append(blocks, b.Block)
		txs = append(txs, b.Transactions...)
		receipts = append(receipts, b.Receipts...)
		logs = append(logs, b.Logs...)
		contracts = append(contracts, b.Contracts...)
	}
	return blocks, txs, receipts, logs, contracts
}
