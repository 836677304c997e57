package core

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"sync"
	"testing"

	"github.com/amalashkevich/vanitynamereg/core/events"
	"github.com/amalashkevich/vanitynamereg/core/genesis"
	"github.com/amalashkevich/vanitynamereg/core/types"
	"github.com/amalashkevich/vanitynamereg/crypto"
	"github.com/amalashkevich/vanitynamereg/native/names"
	"github.com/amalashkevich/vanitynamereg/storage"
)

type testClock struct{ now int64 }

func (c *testClock) Now() int64 { return c.now }

func testParams() names.Params {
	return names.Params{
		MinCommitmentAge:      10,
		MaxCommitmentAge:      100,
		MinDurationMultiplier: 1,
		FeePerSymbol:          big.NewInt(10),
		LockAmount:            big.NewInt(1000),
		DurationUnit:          1000,
	}
}

func testGenesis(t *testing.T, balances map[[20]byte]int64) *genesis.GenesisSpec {
	t.Helper()
	doc := "genesisTime: \"2024-01-01T00:00:00Z\"\nalloc:\n"
	for addr, amount := range balances {
		doc += fmt.Sprintf("  %s: \"%d\"\n", crypto.FormatAccount(addr), amount)
	}
	spec, err := genesis.ParseSpec([]byte(doc))
	if err != nil {
		t.Fatalf("parse genesis: %v", err)
	}
	return spec
}

func newTestNode(t *testing.T, db storage.Database, balances map[[20]byte]int64) (*Node, *testClock) {
	t.Helper()
	node, err := NewNode(db, testParams(), testGenesis(t, balances))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	clock := &testClock{now: 1_000}
	node.SetNowFunc(clock.Now)
	return node, clock
}

func balanceOf(t *testing.T, node *Node, addr [20]byte) int64 {
	t.Helper()
	acc, err := node.GetAccount(addr)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return acc.Balance.Int64()
}

func registerName(t *testing.T, node *Node, clock *testClock, caller [20]byte, name string, salt [32]byte, payment int64) *names.Registration {
	t.Helper()
	ctx := context.Background()
	fp := names.ComputeFingerprint(name, caller, salt)
	if err := node.NamesCommit(ctx, caller, fp); err != nil {
		t.Fatalf("commit: %v", err)
	}
	clock.now += 20
	reg, err := node.NamesRegister(ctx, caller, name, caller, salt, 1, big.NewInt(payment))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

func TestNodeRegisterLifecycle(t *testing.T) {
	alice := [20]byte{0xA1}
	node, clock := newTestNode(t, storage.NewMemDB(), map[[20]byte]int64{alice: 5_000})
	defer node.Close()

	if h := node.Height(); h != 0 {
		t.Fatalf("expected genesis height 0, got %d", h)
	}
	if got := balanceOf(t, node, alice); got != 5_000 {
		t.Fatalf("expected genesis balance 5000, got %d", got)
	}

	reg := registerName(t, node, clock, alice, "alice", [32]byte{0x01}, 1_050)
	if reg.ExpiresAt != clock.now+1_000 {
		t.Fatalf("unexpected expiry %d", reg.ExpiresAt)
	}
	if h := node.Height(); h != 2 {
		t.Fatalf("expected height 2, got %d", h)
	}
	if got := balanceOf(t, node, alice); got != 5_000-1_050 {
		t.Fatalf("unexpected caller balance %d", got)
	}
	if got := balanceOf(t, node, node.NamesVaultAddress()); got != 1_050 {
		t.Fatalf("unexpected vault balance %d", got)
	}
	available, err := node.NamesAvailable("alice")
	if err != nil || available {
		t.Fatalf("expected alice taken, available=%v err=%v", available, err)
	}
	totals, err := node.NamesTotals()
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.Locked.Int64() != 1_000 || totals.Fees.Int64() != 50 {
		t.Fatalf("unexpected totals locked=%s fees=%s", totals.Locked, totals.Fees)
	}

	clock.now = reg.ExpiresAt
	amount, err := node.NamesRefund(context.Background(), alice, "alice")
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if amount.Int64() != 1_000 {
		t.Fatalf("expected refund 1000, got %s", amount)
	}
	if got := balanceOf(t, node, alice); got != 5_000-50 {
		t.Fatalf("unexpected balance after refund %d", got)
	}
}

func TestNodeFailedOperationLeavesStateUntouched(t *testing.T) {
	alice := [20]byte{0xA1}
	node, clock := newTestNode(t, storage.NewMemDB(), map[[20]byte]int64{alice: 500})
	defer node.Close()

	events, cancel, _, err := node.SubscribeEvents(context.Background(), "")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	salt := [32]byte{0x09}
	if err := node.NamesCommit(context.Background(), alice, names.ComputeFingerprint("alice", alice, salt)); err != nil {
		t.Fatalf("commit: %v", err)
	}
	<-events
	clock.now += 20

	root := node.StateRoot()
	height := node.Height()
	// Payment covers the quote but the caller cannot fund it.
	_, err = node.NamesRegister(context.Background(), alice, "alice", alice, salt, 1, big.NewInt(1_050))
	if !errors.Is(err, names.ErrTransferRejected) {
		t.Fatalf("expected transfer rejected, got %v", err)
	}
	if node.StateRoot() != root || node.Height() != height {
		t.Fatalf("failed register mutated committed state")
	}
	if got := balanceOf(t, node, alice); got != 500 {
		t.Fatalf("balance changed to %d", got)
	}
	select {
	case evt := <-events:
		t.Fatalf("unexpected event %s after failure", evt.Event.Type)
	default:
	}
}

func TestNodePersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "db")
	alice := [20]byte{0xA1}

	db, err := storage.NewLevelDB(dbPath)
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	node, clock := newTestNode(t, db, map[[20]byte]int64{alice: 5_000})
	reg := registerName(t, node, clock, alice, "persisted", [32]byte{0x07}, 1_090)
	root := node.StateRoot()
	node.Close()
	db.Close()

	db, err = storage.NewLevelDB(dbPath)
	if err != nil {
		t.Fatalf("reopen leveldb: %v", err)
	}
	defer db.Close()
	// A different genesis must be ignored once a head exists.
	reopened, err := NewNode(db, testParams(), testGenesis(t, map[[20]byte]int64{alice: 1}))
	if err != nil {
		t.Fatalf("reopen node: %v", err)
	}
	defer reopened.Close()

	if reopened.StateRoot() != root {
		t.Fatalf("state root mismatch after reopen")
	}
	if reopened.Height() != 2 {
		t.Fatalf("expected height 2, got %d", reopened.Height())
	}
	if seq := reopened.LastEventSequence(); seq != 2 {
		t.Fatalf("expected event sequence 2 after reopen, got %d", seq)
	}
	got, ok, err := reopened.NamesRegistration("persisted")
	if err != nil || !ok {
		t.Fatalf("registration missing after reopen: ok=%v err=%v", ok, err)
	}
	if got.Owner != alice || got.ExpiresAt != reg.ExpiresAt {
		t.Fatalf("unexpected registration %+v", got)
	}
	if bal := balanceOf(t, reopened, alice); bal != 5_000-1_090 {
		t.Fatalf("unexpected balance %d", bal)
	}

	if err := reopened.NamesCommit(context.Background(), alice, [32]byte{0x44}); err != nil {
		t.Fatalf("commit after reopen: %v", err)
	}
	recent := reopened.RecentEvents("", 0)
	if len(recent) != 1 || recent[0].Sequence != 3 {
		t.Fatalf("expected sequence to continue at 3, got %+v", recent)
	}
}

func TestNodeEventStream(t *testing.T) {
	alice := [20]byte{0xA1}
	node, clock := newTestNode(t, storage.NewMemDB(), map[[20]byte]int64{alice: 5_000})
	defer node.Close()

	var hooked []string
	node.AddEventHook(func(evt NameEvent) { hooked = append(hooked, evt.Event.Type) })

	registerName(t, node, clock, alice, "stream", [32]byte{0x02}, 1_060)

	recent := node.RecentEvents("", 0)
	if len(recent) != 2 {
		t.Fatalf("expected 2 events, got %d", len(recent))
	}
	if recent[0].Event.Type != events.TypeNameCommitmentRecorded || recent[1].Event.Type != events.TypeNameRegistered {
		t.Fatalf("unexpected event order %s, %s", recent[0].Event.Type, recent[1].Event.Type)
	}
	if recent[0].Height != 1 || recent[1].Height != 2 {
		t.Fatalf("unexpected heights %d, %d", recent[0].Height, recent[1].Height)
	}
	if len(hooked) != 2 || hooked[1] != events.TypeNameRegistered {
		t.Fatalf("hooks saw %v", hooked)
	}

	_, cancel, backlog, err := node.SubscribeEvents(context.Background(), recent[0].Cursor)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	if len(backlog) != 1 || backlog[0].Sequence != recent[1].Sequence {
		t.Fatalf("unexpected backlog %+v", backlog)
	}

	node.SetEventHistoryLimit(1)
	if got := node.RecentEvents("", 0); len(got) != 1 || got[0].Event.Type != events.TypeNameRegistered {
		t.Fatalf("history not trimmed: %+v", got)
	}
}

func TestNodePublishRacesSubscriberCancel(t *testing.T) {
	node, _ := newTestNode(t, storage.NewMemDB(), nil)
	defer node.Close()

	var hookCalls int
	node.AddEventHook(func(NameEvent) { hookCalls++ })
	evt := NameEvent{Event: types.Event{Type: events.TypeNameRefunded}}

	const rounds = 2_000
	for i := 0; i < rounds; i++ {
		ctx, stop := context.WithCancel(context.Background())
		_, cancel, _, err := node.SubscribeEvents(ctx, "")
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			node.publish(evt)
		}()
		go func() {
			defer wg.Done()
			cancel()
			stop()
		}()
		wg.Wait()
	}
	if hookCalls != rounds {
		t.Fatalf("expected %d hook calls, got %d", rounds, hookCalls)
	}
	if got := node.LastEventSequence(); got != rounds {
		t.Fatalf("expected sequence %d, got %d", rounds, got)
	}
}

func TestNodeClosedRejectsOperations(t *testing.T) {
	node, _ := newTestNode(t, storage.NewMemDB(), nil)
	node.Close()
	if err := node.NamesCommit(context.Background(), [20]byte{1}, [32]byte{2}); !errors.Is(err, ErrNodeClosed) {
		t.Fatalf("expected ErrNodeClosed, got %v", err)
	}
	if _, err := node.NamesAvailable("x"); !errors.Is(err, ErrNodeClosed) {
		t.Fatalf("expected ErrNodeClosed for query, got %v", err)
	}
}
