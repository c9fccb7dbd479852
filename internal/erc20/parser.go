package erc20

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"blockscan/internal/model"
	"blockscan/internal/storage"
)

// ErrNotTransfer marks a log that is not a Transfer event: wrong topic
// count or a different topic0 signature. Such logs produce no output
// record but are still marked parsed.
var ErrNotTransfer = errors.New("not an erc20 transfer log")

// DefaultPageSize bounds one decoder pass.
const DefaultPageSize = 50000

// Parser is the log decoder engine: it pages not-yet-parsed logs from
// the store, decodes Transfer events into semantic records, and writes
// the results plus updated parse flags back in one chunked pass.
type Parser struct {
	store    storage.LogStore
	pageSize int
	logger   *zap.Logger
}

func NewParser(store storage.LogStore, pageSize int, logger *zap.Logger) *Parser {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{
		store:    store,
		pageSize: pageSize,
		logger:   logger,
	}
}

// Run executes one decode pass and returns the number of logs it
// attempted. Every selected log is marked parsed whatever the decode
// outcome, so an attempted log is never revisited. Decode failures are
// counted, never surfaced as errors.
func (p *Parser) Run(ctx context.Context) (int, error) {
	logs, err := p.store.UnparsedLogs(ctx, p.pageSize)
	if err != nil {
		return 0, fmt.Errorf("fetch unparsed logs: %w", err)
	}
	if len(logs) == 0 {
		return 0, nil
	}

	var transfers []model.Erc20Transfer
	var skipped, failed int
	for _, l := range logs {
		transfer, err := DecodeTransfer(l)
		switch {
		case errors.Is(err, ErrNotTransfer):
			skipped++
		case err != nil:
			failed++
		default:
			transfers = append(transfers, *transfer)
		}
	}

	if err := p.store.StoreTransfers(ctx, transfers); err != nil {
		return 0, fmt.Errorf("store transfers: %w", err)
	}
	// Flag update comes after the transfers are durable, so a crash in
	// between re-attempts the page instead of losing records.
	if err := p.store.MarkLogsParsed(ctx, logs); err != nil {
		return 0, fmt.Errorf("mark logs parsed: %w", err)
	}

	p.logger.Info("parse pass complete",
		zap.Int("logs", len(logs)),
		zap.Int("transfers", len(transfers)),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)
	return len(logs), nil
}

// DecodeTransfer decodes one log into a transfer record. Eligibility
// requires exactly 3 topics with topic0 equal to the Transfer
// signature hash; topics 1 and 2 are ABI-decoded as addresses and the
// data payload as a single uint256, rendered as a base-10 string.
func DecodeTransfer(log model.Log) (*model.Erc20Transfer, error) {
	if len(log.Topics) != 3 {
		return nil, ErrNotTransfer
	}

	event, err := TransferEvent()
	if err != nil {
		return nil, err
	}

	topic0, err := parseTopicHash(log.Topics[0])
	if err != nil {
		return nil, fmt.Errorf("topic0: %w", err)
	}
	if topic0 != event.ID {
		return nil, ErrNotTransfer
	}

	fromTopic, err := parseTopicHash(log.Topics[1])
	if err != nil {
		return nil, fmt.Errorf("topic1: %w", err)
	}
	toTopic, err := parseTopicHash(log.Topics[2])
	if err != nil {
		return nil, fmt.Errorf("topic2: %w", err)
	}

	var indexed struct {
		From common.Address
		To   common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), []common.Hash{fromTopic, toTopic}); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}

	data, err := hexutil.Decode(log.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack value: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected transfer values: %d", len(values))
	}
	value, err := asBigInt(values[0])
	if err != nil {
		return nil, err
	}

	return &model.Erc20Transfer{
		TxHash:   log.TxHash,
		LogIndex: log.LogIndex,
		Token:    log.Address,
		From:     indexed.From.Hex(),
		To:       indexed.To.Hex(),
		Value:    value.String(),
		Parsed:   true,
	}, nil
}

func parseTopicHash(topic string) (common.Hash, error) {
	data, err := hexutil.Decode(topic)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid topic: %w", err)
	}
	if len(data) != 32 {
		return common.Hash{}, fmt.Errorf("topic length %d", len(data))
	}
	return common.BytesToHash(data), nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
