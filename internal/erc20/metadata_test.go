package erc20

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// fakeCaller answers eth_call by method selector. string and bytes32
// metadata variants share selectors, so a bytes32 token is modeled by
// returning bytes32-encoded payloads that the string ABI cannot unpack.
type fakeCaller struct {
	responses map[[4]byte][]byte
	reverting map[common.Address]bool
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if msg.To != nil && f.reverting[*msg.To] {
		return nil, fmt.Errorf("execution reverted")
	}
	var sel [4]byte
	copy(sel[:], msg.Data)
	if resp, ok := f.responses[sel]; ok {
		return resp, nil
	}
	return nil, fmt.Errorf("execution reverted")
}

func selector(t *testing.T, method string) [4]byte {
	t.Helper()
	parsed, err := erc20ABIStringInstance()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	var sel [4]byte
	copy(sel[:], parsed.Methods[method].ID)
	return sel
}

func packStringOutput(t *testing.T, method string, value interface{}) []byte {
	t.Helper()
	parsed, err := erc20ABIStringInstance()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	data, err := parsed.Methods[method].Outputs.Pack(value)
	if err != nil {
		t.Fatalf("pack %s output: %v", method, err)
	}
	return data
}

func packBytes32Output(t *testing.T, method, value string) []byte {
	t.Helper()
	parsed, err := erc20ABIBytes32Instance()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	var padded [32]byte
	copy(padded[:], value)
	data, err := parsed.Methods[method].Outputs.Pack(padded)
	if err != nil {
		t.Fatalf("pack %s output: %v", method, err)
	}
	return data
}

func TestFetchTokenMeta(t *testing.T) {
	caller := &fakeCaller{responses: map[[4]byte][]byte{
		selector(t, "decimals"): packStringOutput(t, "decimals", uint8(18)),
		selector(t, "symbol"):   packStringOutput(t, "symbol", "TKN"),
		selector(t, "name"):     packStringOutput(t, "name", "Test Token"),
	}}

	token := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	meta, err := FetchTokenMeta(context.Background(), caller, token, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if meta.Address != token.Hex() || meta.Decimals != 18 || meta.Symbol != "TKN" || meta.Name != "Test Token" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

func TestFetchTokenMetaBytes32Fallback(t *testing.T) {
	caller := &fakeCaller{responses: map[[4]byte][]byte{
		selector(t, "decimals"): packStringOutput(t, "decimals", uint8(8)),
		selector(t, "symbol"):   packBytes32Output(t, "symbol", "OLD"),
		selector(t, "name"):     packBytes32Output(t, "name", "Old Token"),
	}}

	token := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	meta, err := FetchTokenMeta(context.Background(), caller, token, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if meta.Decimals != 8 || meta.Symbol != "OLD" || meta.Name != "Old Token" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

func TestFetchTokenMetaDecimalsRequired(t *testing.T) {
	caller := &fakeCaller{responses: map[[4]byte][]byte{
		selector(t, "symbol"): packStringOutput(t, "symbol", "TKN"),
	}}

	token := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	if _, err := FetchTokenMeta(context.Background(), caller, token, nil); err == nil {
		t.Fatal("expected error when decimals call reverts")
	}
}

func TestFetchTokenMetaMissingSymbolTolerated(t *testing.T) {
	caller := &fakeCaller{responses: map[[4]byte][]byte{
		selector(t, "decimals"): packStringOutput(t, "decimals", uint8(6)),
	}}

	token := common.HexToAddress("0x00000000000000000000000000000000000000dd")
	meta, err := FetchTokenMeta(context.Background(), caller, token, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if meta.Decimals != 6 || meta.Symbol != "" || meta.Name != "" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}
