package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"blockscan/internal/model"
)

// Store provides Postgres persistence for indexed chain data. Every
// insert is conflict-safe (no-op on duplicate key); the only update
// paths are the log parse flag and the chain progress row.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// StoreBundles persists the merged record batches of validated block
// bundles. Child tables are written before blocks, so a blocks row is
// only ever present once the full bundle is durable. A failure in one
// table does not stop writes to the others; all failures are joined
// and returned.
func (s *Store) StoreBundles(ctx context.Context, bundles []*model.BlockBundle) error {
	blocks, txs, receipts, logs, contracts := model.MergeBundles(bundles)

	var errs []error
	if err := s.insertTransactions(ctx, txs); err != nil {
		errs = append(errs, fmt.Errorf("store transactions: %w", err))
	}
	if err := s.insertReceipts(ctx, receipts); err != nil {
		errs = append(errs, fmt.Errorf("store receipts: %w", err))
	}
	if err := s.insertLogs(ctx, logs); err != nil {
		errs = append(errs, fmt.Errorf("store logs: %w", err))
	}
	if err := s.insertContracts(ctx, contracts); err != nil {
		errs = append(errs, fmt.Errorf("store contracts: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if err := s.insertBlocks(ctx, blocks); err != nil {
		return fmt.Errorf("store blocks: %w", err)
	}
	return nil
}

func (s *Store) insertBlocks(ctx context.Context, blocks []model.Block) error {
	columns := []string{"number", "hash", "timestamp", "tx_count"}
	rows := make([][]interface{}, 0, len(blocks))
	for _, b := range blocks {
		rows = append(rows, []interface{}{b.Number, b.Hash, b.Timestamp, b.TxCount})
	}
	return s.insertIgnore(ctx, "blocks", columns, rows)
}

func (s *Store) insertTransactions(ctx context.Context, txs []model.Transaction) error {
	columns := []string{"hash", "block_number", "from_address", "to_address", "value", "tx_index"}
	rows := make([][]interface{}, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, []interface{}{tx.Hash, tx.BlockNumber, tx.From, tx.To, tx.Value, tx.TxIndex})
	}
	return s.insertIgnore(ctx, "transactions", columns, rows)
}

func (s *Store) insertReceipts(ctx context.Context, receipts []model.Receipt) error {
	columns := []string{"tx_hash", "status", "gas_used"}
	rows := make([][]interface{}, 0, len(receipts))
	for _, r := range receipts {
		rows = append(rows, []interface{}{r.TxHash, r.Status, r.GasUsed})
	}
	return s.insertIgnore(ctx, "receipts", columns, rows)
}

func (s *Store) insertLogs(ctx context.Context, logs []model.Log) error {
	rows := make([][]interface{}, 0, len(logs))
	for _, l := range logs {
		rows = append(rows, logRow(l))
	}
	return s.insertIgnore(ctx, "logs", logColumns, rows)
}

func (s *Store) insertContracts(ctx context.Context, contracts []model.Contract) error {
	columns := []string{"address", "deployer", "tx_hash", "block_number"}
	rows := make([][]interface{}, 0, len(contracts))
	for _, c := range contracts {
		rows = append(rows, []interface{}{c.Address, c.Deployer, c.TxHash, c.BlockNumber})
	}
	return s.insertIgnore(ctx, "contracts", columns, rows)
}

// IndexedBlockNumbers returns every durably stored block number. A
// blocks row is written last within a bundle, so its presence implies
// the complete bundle is stored.
func (s *Store) IndexedBlockNumbers(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT number FROM blocks ORDER BY number`)
	if err != nil {
		return nil, fmt.Errorf("query block numbers: %w", err)
	}
	defer rows.Close()

	var numbers []int64
	for rows.Next() {
		var n int64
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan block number: %w", err)
		}
		numbers = append(numbers, n)
	}
	return numbers, rows.Err()
}

// UpdateChainState upserts the per-chain indexed-block counter. This
// is a progress metric, not used for correctness.
func (s *Store) UpdateChainState(ctx context.Context, chain string, indexedBlocks int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chain_index_state (chain, indexed_blocks, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (chain) DO UPDATE
		SET indexed_blocks = EXCLUDED.indexed_blocks, updated_at = now()
	`, chain, indexedBlocks)
	return err
}

// UnparsedLogs returns a bounded page of logs whose parse flag is
// unset or false, for the transfer decoder.
func (s *Store) UnparsedLogs(ctx context.Context, limit int) ([]model.Log, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tx_hash, log_index, address, topic0, topic1, topic2, topic3, data, erc20_parsed
		FROM logs
		WHERE erc20_parsed IS NULL OR erc20_parsed = FALSE
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unparsed logs: %w", err)
	}
	defer rows.Close()

	var logs []model.Log
	for rows.Next() {
		var l model.Log
		var topics [4]*string
		if err := rows.Scan(&l.TxHash, &l.LogIndex, &l.Address, &topics[0], &topics[1], &topics[2], &topics[3], &l.Data, &l.Parsed); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		for _, topic := range topics {
			if topic == nil {
				break
			}
			l.Topics = append(l.Topics, *topic)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// StoreTransfers inserts decoded transfer records, ignoring duplicates.
func (s *Store) StoreTransfers(ctx context.Context, transfers []model.Erc20Transfer) error {
	columns := []string{"tx_hash", "log_index", "token", "from_address", "to_address", "value", "parsed"}
	rows := make([][]interface{}, 0, len(transfers))
	for _, t := range transfers {
		rows = append(rows, []interface{}{t.TxHash, t.LogIndex, t.Token, t.From, t.To, t.Value, t.Parsed})
	}
	return s.insertIgnore(ctx, "erc20_transfers", columns, rows)
}

// MarkLogsParsed flips the parse flag to true for the given logs. The
// flag only ever moves forward; the conflict path re-asserts true and
// never writes false back.
func (s *Store) MarkLogsParsed(ctx context.Context, logs []model.Log) error {
	rows := make([][]interface{}, 0, len(logs))
	for _, l := range logs {
		parsed := true
		l.Parsed = &parsed
		rows = append(rows, logRow(l))
	}
	conflict := `ON CONFLICT (tx_hash, log_index) DO UPDATE SET erc20_parsed = TRUE`
	return s.insert(ctx, "logs", logColumns, conflict, rows)
}

// TokensMissingMetadata returns token addresses seen in transfers but
// absent from both the tokens and excluded_tokens tables.
func (s *Store) TokensMissingMetadata(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT t.token
		FROM erc20_transfers t
		LEFT JOIN tokens tok ON tok.address = t.token
		LEFT JOIN excluded_tokens ex ON ex.address = t.token
		WHERE tok.address IS NULL AND ex.address IS NULL
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query missing tokens: %w", err)
	}
	defer rows.Close()

	var addresses []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan token address: %w", err)
		}
		addresses = append(addresses, addr)
	}
	return addresses, rows.Err()
}

// StoreTokens inserts token metadata rows, ignoring duplicates.
func (s *Store) StoreTokens(ctx context.Context, tokens []model.Token) error {
	columns := []string{"address", "name", "symbol", "decimals"}
	rows := make([][]interface{}, 0, len(tokens))
	for _, t := range tokens {
		rows = append(rows, []interface{}{t.Address, t.Name, t.Symbol, int16(t.Decimals)})
	}
	return s.insertIgnore(ctx, "tokens", columns, rows)
}

// StoreExcludedTokens records addresses that failed metadata calls.
func (s *Store) StoreExcludedTokens(ctx context.Context, excluded []model.ExcludedToken) error {
	columns := []string{"address", "chain"}
	rows := make([][]interface{}, 0, len(excluded))
	for _, e := range excluded {
		rows = append(rows, []interface{}{e.Address, e.Chain})
	}
	return s.insertIgnore(ctx, "excluded_tokens", columns, rows)
}

var logColumns = []string{"tx_hash", "log_index", "address", "topic0", "topic1", "topic2", "topic3", "data", "erc20_parsed"}

func logRow(l model.Log) []interface{} {
	var topics [4]interface{}
	for i := range topics {
		if i < len(l.Topics) {
			topics[i] = l.Topics[i]
		}
	}
	var parsed interface{}
	if l.Parsed != nil {
		parsed = *l.Parsed
	}
	return []interface{}{l.TxHash, l.LogIndex, l.Address, topics[0], topics[1], topics[2], topics[3], l.Data, parsed}
}

func (s *Store) insertIgnore(ctx context.Context, table string, columns []string, rows [][]interface{}) error {
	return s.insert(ctx, table, columns, "ON CONFLICT DO NOTHING", rows)
}

// insert issues multi-row INSERT statements, chunked so each statement
// stays under the bind-parameter ceiling.
func (s *Store) insert(ctx context.Context, table string, columns []string, conflict string, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}

	for _, bound := range chunkBounds(len(rows), len(columns)) {
		chunk := rows[bound[0]:bound[1]]

		var sb strings.Builder
		fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))

		args := make([]interface{}, 0, len(chunk)*len(columns))
		for i, row := range chunk {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteByte('(')
			for j := range row {
				if j > 0 {
					sb.WriteString(", ")
				}
				fmt.Fprintf(&sb, "$%d", len(args)+j+1)
			}
			sb.WriteByte(')')
			args = append(args, row...)
		}
		sb.WriteByte(' ')
		sb.WriteString(conflict)

		if _, err := s.pool.Exec(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("insert %s rows %d..%d: %w", table, bound[0], bound[1], err)
		}
	}
	return nil
}
