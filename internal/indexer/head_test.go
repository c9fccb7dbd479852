package indexer

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
)

type fakeSubscription struct {
	errCh chan error
}

func (s *fakeSubscription) Err() <-chan error { return s.errCh }
func (s *fakeSubscription) Unsubscribe()      {}

// fakeHeads delivers a scripted header batch on the first subscription,
// then fails it to force a reconnect. Later subscriptions stay open
// until the context ends.
type fakeHeads struct {
	mu      sync.Mutex
	subs    int
	headers []*types.Header
}

func (f *fakeHeads) SubscribeNewHeads(_ context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	f.mu.Lock()
	f.subs++
	first := f.subs == 1
	f.mu.Unlock()

	sub := &fakeSubscription{errCh: make(chan error, 1)}
	if first {
		go func() {
			for _, header := range f.headers {
				ch <- header
			}
			sub.errCh <- fmt.Errorf("stream closed")
		}()
	}
	return sub, nil
}

func (f *fakeHeads) subscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs
}

func TestHeadSubscriberProcessesAndReconnects(t *testing.T) {
	source := emptyBlocksSource(300, 200, 201)
	store := newFakeStore()
	set := newFakeSet()
	heads := &fakeHeads{headers: []*types.Header{
		{Number: big.NewInt(200)},
		nil,
		{Number: big.NewInt(201)},
	}}

	assembler := NewAssembler(source, true, nil)
	subscriber := NewHeadSubscriber(heads, assembler, store, set, "eth", 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- subscriber.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for !set.has(200) || !set.has(201) || heads.subscriptions() < 2 || store.chainState("eth") == 0 {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("timed out: set 200=%v 201=%v subs=%d state=%d",
				set.has(200), set.has(201), heads.subscriptions(), store.chainState("eth"))
		case <-time.After(5 * time.Millisecond):
		}
	}

	got := store.storedNumbers()
	if len(got) != 2 {
		t.Fatalf("expected 2 stored blocks, got %v", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop after cancel")
	}
}

func TestHeadSubscriberSkipsRejectedBlocks(t *testing.T) {
	// Block 501 is not served by the provider; only 500 may reach the
	// store and the indexed set.
	source := emptyBlocksSource(600, 500)
	store := newFakeStore()
	set := newFakeSet()
	heads := &fakeHeads{headers: []*types.Header{
		{Number: big.NewInt(500)},
		{Number: big.NewInt(501)},
	}}

	assembler := NewAssembler(source, true, nil)
	subscriber := NewHeadSubscriber(heads, assembler, store, set, "eth", 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- subscriber.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for !set.has(500) || heads.subscriptions() < 2 {
		select {
		case <-deadline:
			cancel()
			t.Fatal("timed out waiting for block 500")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if set.has(501) {
		t.Fatal("rejected block must not enter the indexed set")
	}
	got := store.storedNumbers()
	if len(got) != 1 || got[0] != 500 {
		t.Fatalf("stored numbers mismatch: %v", got)
	}

	cancel()
	<-done
}
