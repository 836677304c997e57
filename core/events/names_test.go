package events

import (
	"math/big"
	"testing"

	"github.com/amalashkevich/vanitynamereg/crypto"
)

func TestNameRegisteredEvent(t *testing.T) {
	owner := [20]byte{0x01}
	evt := NameRegistered{
		Name:         "vanity",
		NameHash:     [32]byte{0xaa},
		Owner:        owner,
		Fee:          big.NewInt(600),
		LockedAmount: big.NewInt(1000),
		ExpiresAt:    42,
	}.Event()
	if evt.Type != TypeNameRegistered {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Attributes["owner"] != crypto.FormatAccount(owner) {
		t.Fatalf("unexpected owner attr: %s", evt.Attributes["owner"])
	}
	if evt.Attributes["fee"] != "600" || evt.Attributes["locked"] != "1000" {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
	if evt.Attributes["expiresAt"] != "42" || evt.Attributes["name"] != "vanity" {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
}

func TestNameRefundedEventNilAmount(t *testing.T) {
	evt := NameRefunded{Name: "x", Timestamp: 7}.Event()
	if evt.Attributes["amount"] != "0" {
		t.Fatalf("expected zero amount, got %s", evt.Attributes["amount"])
	}
	if evt.Attributes["timestamp"] != "7" {
		t.Fatalf("unexpected timestamp: %s", evt.Attributes["timestamp"])
	}
}

func TestBufferCollectsInOrder(t *testing.T) {
	var buf Buffer
	buf.Emit(CommitmentRecorded{Timestamp: 1})
	buf.Emit(nil)
	buf.Emit(NameRenewed{Name: "a"})
	got := buf.Events()
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].EventType() != TypeNameCommitmentRecorded || got[1].EventType() != TypeNameRenewed {
		t.Fatalf("unexpected order: %s, %s", got[0].EventType(), got[1].EventType())
	}
	buf.Reset()
	if len(buf.Events()) != 0 {
		t.Fatalf("expected empty buffer after reset")
	}
}
