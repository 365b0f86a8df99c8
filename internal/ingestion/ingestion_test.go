package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/solana"
	"solana-cluster-sniper/internal/solana/stub"
)

const (
	wallet = "Wallet111111111111111111111111111111111111"
	mintA  = "MintA11111111111111111111111111111111111111"
)

func swapTx(sig string, slot int64, preLamports, postLamports, preTokens, postTokens uint64) *solana.Transaction {
	tx := &solana.Transaction{
		Signature: sig,
		Slot:      slot,
		BlockTime: 1_700_000_000 + slot,
		Meta: &solana.TransactionMeta{
			Fee:          5000,
			PreBalances:  []uint64{preLamports, 0},
			PostBalances: []uint64{postLamports, 0},
		},
		Message: &solana.TransactionMessage{AccountKeys: []string{wallet, "Pool"}},
	}
	if preTokens > 0 {
		tx.Meta.PreTokenBalances = []solana.TokenBalance{{AccountIndex: 1, Mint: mintA, Owner: wallet, Amount: preTokens}}
	}
	tx.Meta.PostTokenBalances = []solana.TokenBalance{
		{AccountIndex: 1, Mint: mintA, Owner: wallet, Amount: postTokens},
		{AccountIndex: 2, Mint: solana.WrappedSOLMint, Owner: wallet, Amount: 1},
	}
	return tx
}

func newTestDecoder(rpc solana.RPCClient, wallets ...string) *Decoder {
	d := NewDecoder(rpc, fixedPrice(decimal.NewFromInt(150)), wallets, zerolog.Nop())
	d.delay = time.Millisecond
	return d
}

func TestDecode_BuyExcludesFee(t *testing.T) {
	d := newTestDecoder(nil)
	tx := swapTx("buy1", 10, 10_000_000_000, 10_000_000_000-1_000_000_000-5000, 0, 500)

	events := d.Decode(context.Background(), tx)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, domain.DirectionBuy, ev.Direction)
	assert.Equal(t, wallet, ev.Wallet)
	assert.Equal(t, mintA, ev.Token)
	assert.Equal(t, uint64(500), ev.TokenAmount)
	assert.Equal(t, uint64(1_000_000_000), ev.QuoteLamports)
	assert.True(t, ev.QuoteUSD.Equal(decimal.NewFromInt(150)), ev.QuoteUSD.String())
	assert.Equal(t, int64(10), ev.Slot)
	assert.Equal(t, time.Unix(1_700_000_010, 0), ev.Timestamp)
}

func TestDecode_Sell(t *testing.T) {
	d := newTestDecoder(nil)
	tx := swapTx("sell1", 11, 1_000_000_000, 1_000_000_000+200_000_000-5000, 500, 200)

	events := d.Decode(context.Background(), tx)
	require.Len(t, events, 1)
	assert.Equal(t, domain.DirectionSell, events[0].Direction)
	assert.Equal(t, uint64(300), events[0].TokenAmount)
	assert.Equal(t, uint64(200_000_000), events[0].QuoteLamports)
	assert.True(t, events[0].QuoteUSD.Equal(decimal.NewFromInt(30)))
}

func TestDecode_PlainTransfer(t *testing.T) {
	d := newTestDecoder(nil)
	tx := swapTx("xfer", 12, 1_000_000_000, 1_000_000_000-5000, 0, 100)

	events := d.Decode(context.Background(), tx)
	require.Len(t, events, 1)
	assert.Equal(t, domain.DirectionTransfer, events[0].Direction)
	assert.Zero(t, events[0].QuoteLamports)
	assert.True(t, events[0].QuoteUSD.IsZero())
}

func TestDecode_Skips(t *testing.T) {
	d := newTestDecoder(nil)
	failed := swapTx("failed", 1, 1_000_000_000, 0, 0, 100)
	failed.Meta.Err = map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}
	assert.Empty(t, d.Decode(context.Background(), failed))
	assert.Empty(t, d.Decode(context.Background(), nil))

	unchanged := swapTx("same", 1, 1_000_000_000, 1_000_000_000-5000, 100, 100)
	assert.Empty(t, d.Decode(context.Background(), unchanged))

	filtered := newTestDecoder(nil, "SomeoneElse")
	assert.Empty(t, filtered.Decode(context.Background(), swapTx("x", 1, 2_000_000_000, 1_000_000_000, 0, 1)))
}

func TestDecode_TwoMintsSplitSOLLeg(t *testing.T) {
	d := newTestDecoder(nil)
	const mintB = "MintB11111111111111111111111111111111111111"
	tx := swapTx("multi", 13, 10_000_000_000, 10_000_000_000-1_000_000_001-5000, 0, 500)
	tx.Meta.PostTokenBalances = append(tx.Meta.PostTokenBalances,
		solana.TokenBalance{AccountIndex: 3, Mint: mintB, Owner: wallet, Amount: 80})

	events := d.Decode(context.Background(), tx)
	require.Len(t, events, 2)
	assert.Equal(t, mintA, events[0].Token)
	assert.Equal(t, mintB, events[1].Token)
	assert.NotEqual(t, events[0].Key(), events[1].Key())

	var total uint64
	for _, ev := range events {
		assert.Equal(t, domain.DirectionBuy, ev.Direction)
		total += ev.QuoteLamports
	}
	assert.Equal(t, uint64(500_000_001), events[0].QuoteLamports)
	assert.Equal(t, uint64(500_000_000), events[1].QuoteLamports)
	assert.Equal(t, uint64(1_000_000_001), total)
}

func TestDecode_SwapBetweenMintsHasNoSOLLeg(t *testing.T) {
	d := newTestDecoder(nil)
	const mintB = "MintB11111111111111111111111111111111111111"
	tx := swapTx("rotate", 14, 1_000_000_000, 1_000_000_000-5000, 300, 100)
	tx.Meta.PostTokenBalances = append(tx.Meta.PostTokenBalances,
		solana.TokenBalance{AccountIndex: 3, Mint: mintB, Owner: wallet, Amount: 80})

	events := d.Decode(context.Background(), tx)
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, domain.DirectionTransfer, ev.Direction, ev.Token)
		assert.Zero(t, ev.QuoteLamports)
	}
}

type failingPricer struct{}

func (failingPricer) SOLPriceUSD(context.Context) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("down")
}

func TestDecode_PricerFailureKeepsEvent(t *testing.T) {
	d := NewDecoder(nil, failingPricer{}, nil, zerolog.Nop())
	events := d.Decode(context.Background(), swapTx("b", 1, 2_000_000_000, 1_000_000_000-5000, 0, 7))
	require.Len(t, events, 1)
	assert.True(t, events[0].QuoteUSD.IsZero())
	assert.Equal(t, uint64(1_000_000_000), events[0].QuoteLamports)
}

func TestDecoder_FetchRetriesThenUnavailable(t *testing.T) {
	rpc := stub.NewRPCClient()
	d := newTestDecoder(rpc)

	_, err := d.Fetch(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDataUnavailable))

	rpc.AddTransaction(swapTx("present", 1, 2, 1, 0, 1))
	tx, err := d.Fetch(context.Background(), "present")
	require.NoError(t, err)
	assert.Equal(t, "present", tx.Signature)
}

func TestPollSource_CursorAndOrder(t *testing.T) {
	rpc := stub.NewRPCClient()
	d := newTestDecoder(rpc)
	src := NewPollSource(rpc, d, PollConfig{Addresses: []string{"Program"}}, zerolog.Nop())
	ctx := context.Background()

	rpc.AddSignatures("Program", []solana.SignatureInfo{{Signature: "old", Slot: 1}})
	events, err := src.Poll(ctx, "Program")
	require.NoError(t, err)
	assert.Empty(t, events, "first poll only records the cursor")

	rpc.AddTransaction(swapTx("s2", 2, 3_000_000_000, 2_000_000_000-5000, 0, 10))
	rpc.AddTransaction(swapTx("s3", 3, 2_000_000_000, 1_000_000_000-5000, 10, 30))
	rpc.AddSignatures("Program", []solana.SignatureInfo{
		{Signature: "s3", Slot: 3},
		{Signature: "bad", Slot: 3, Err: "failed"},
		{Signature: "s2", Slot: 2},
		{Signature: "old", Slot: 1},
	})
	events, err = src.Poll(ctx, "Program")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "s2", events[0].Signature)
	assert.Equal(t, "s3", events[1].Signature)
	assert.Equal(t, uint64(20), events[1].TokenAmount)
	require.NoError(t, ValidateOrdering(events))

	events, err = src.Poll(ctx, "Program")
	require.NoError(t, err)
	assert.Empty(t, events, "cursor advanced to s3")
}

func TestPollSource_Backfill(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddTransaction(swapTx("s1", 1, 3_000_000_000, 2_000_000_000-5000, 0, 10))
	rpc.AddSignatures("Program", []solana.SignatureInfo{{Signature: "s1", Slot: 1}})
	src := NewPollSource(rpc, newTestDecoder(rpc), PollConfig{Addresses: []string{"Program"}, Backfill: true}, zerolog.Nop())

	events, err := src.Poll(context.Background(), "Program")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "s1", events[0].Signature)
}

func TestSortEvents(t *testing.T) {
	base := time.Unix(1000, 0)
	events := []domain.TransferEvent{
		{Signature: "c", Slot: 20, Index: 0},
		{Signature: "a", Slot: 10, Index: 1},
		{Signature: "b", Slot: 10, Index: 0},
	}
	SortEvents(events)
	assert.Equal(t, []string{"b", "a", "c"}, []string{events[0].Signature, events[1].Signature, events[2].Signature})

	unknown := []domain.TransferEvent{
		{Signature: "y", Index: -1, Timestamp: base.Add(time.Second)},
		{Signature: "x", Index: -1, Timestamp: base.Add(time.Second)},
		{Signature: "z", Index: -1, Timestamp: base},
	}
	assert.ErrorIs(t, ValidateOrdering(unknown), ErrInvalidOrdering)
	SortEvents(unknown)
	assert.Equal(t, "z", unknown[0].Signature)
	assert.Equal(t, "x", unknown[1].Signature)
	assert.NoError(t, ValidateOrdering(unknown))
}

type sliceSource struct {
	name   string
	events []domain.TransferEvent
	err    error
}

func (s *sliceSource) Name() string { return s.name }

func (s *sliceSource) Stream(ctx context.Context) (<-chan domain.TransferEvent, <-chan error) {
	out := make(chan domain.TransferEvent)
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		defer close(out)
		if s.err != nil {
			errs <- s.err
		}
		for _, ev := range s.events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, errs
}

func TestMerge_DeduplicatesAcrossSources(t *testing.T) {
	a := domain.TransferEvent{Signature: "s1", Wallet: "w", Token: "t"}
	b := domain.TransferEvent{Signature: "s2", Wallet: "w", Token: "t"}
	other := domain.TransferEvent{Signature: "s1", Wallet: "w", Token: "u"}

	var mu sync.Mutex
	var reported []string
	onErr := func(source string, err error) {
		mu.Lock()
		reported = append(reported, source)
		mu.Unlock()
	}
	out := Merge(context.Background(), []Source{
		&sliceSource{name: "ws", events: []domain.TransferEvent{a, b}},
		&sliceSource{name: "poll", events: []domain.TransferEvent{b, a, other}, err: errors.New("rate limited")},
	}, 16, onErr, zerolog.Nop())

	got := map[string]int{}
	for ev := range out {
		got[ev.Key()]++
	}
	assert.Equal(t, map[string]int{"s1/w/t": 1, "s2/w/t": 1, "s1/w/u": 1}, got)
	mu.Lock()
	assert.Equal(t, []string{"poll"}, reported)
	mu.Unlock()
}

func TestSeenSet_Evicts(t *testing.T) {
	s := newSeenSet(2)
	assert.True(t, s.add("a"))
	assert.True(t, s.add("b"))
	assert.False(t, s.add("a"))
	assert.True(t, s.add("c"))
	assert.True(t, s.add("a"), "a evicted by c")
}

type fakeLogs struct {
	mu   sync.Mutex
	subs map[string]chan solana.LogNotification
}

func (f *fakeLogs) SubscribeLogs(_ context.Context, filter solana.LogsFilter) (<-chan solana.LogNotification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan solana.LogNotification, 4)
	f.subs[filter.Mentions[0]] = ch
	return ch, nil
}

func (f *fakeLogs) Close() error { return nil }

func TestWSSource_DecodesNotifications(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddTransaction(swapTx("live", 5, 3_000_000_000, 2_000_000_000-5000, 0, 10))
	logs := &fakeLogs{subs: map[string]chan solana.LogNotification{}}
	src := NewWSSource(logs, newTestDecoder(rpc), WSConfig{Mentions: []string{"ProgA", "ProgB"}}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out, errs := src.Stream(ctx)

	logs.subs["ProgA"] <- solana.LogNotification{Signature: "failed", Err: "boom"}
	logs.subs["ProgB"] <- solana.LogNotification{Signature: "live", Slot: 5}

	select {
	case ev := <-out:
		assert.Equal(t, "live", ev.Signature)
		assert.Equal(t, domain.DirectionBuy, ev.Direction)
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}

	close(logs.subs["ProgA"])
	close(logs.subs["ProgB"])
	var last error
	for err := range errs {
		last = err
	}
	assert.ErrorIs(t, last, ErrSourceClosed)
}
