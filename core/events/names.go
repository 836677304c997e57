package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"github.com/amalashkevich/vanitynamereg/core/types"
	"github.com/amalashkevich/vanitynamereg/crypto"
)

const (
	TypeNameCommitmentRecorded = "names.commitment.recorded"
	TypeNameRegistered         = "names.registered"
	TypeNameRenewed            = "names.renewed"
	TypeNameRefunded           = "names.refunded"
)

// CommitmentRecorded is emitted when a blinded registration intent is stored.
type CommitmentRecorded struct {
	Fingerprint [32]byte
	Caller      [20]byte
	Timestamp   int64
}

// EventType implements the Event interface.
func (CommitmentRecorded) EventType() string { return TypeNameCommitmentRecorded }

// Event converts the strongly typed event to the generic representation used by subscribers.
func (e CommitmentRecorded) Event() *types.Event {
	return &types.Event{
		Type: TypeNameCommitmentRecorded,
		Attributes: map[string]string{
			"fingerprint": hex.EncodeToString(e.Fingerprint[:]),
			"caller":      crypto.FormatAccount(e.Caller),
			"timestamp":   strconv.FormatInt(e.Timestamp, 10),
		},
	}
}

// NameRegistered is emitted when a name is registered together with its lock.
type NameRegistered struct {
	Name         string
	NameHash     [32]byte
	Owner        [20]byte
	Fee          *big.Int
	LockedAmount *big.Int
	ExpiresAt    int64
}

// EventType implements the Event interface.
func (NameRegistered) EventType() string { return TypeNameRegistered }

// Event converts the strongly typed event to the generic representation used by subscribers.
func (e NameRegistered) Event() *types.Event {
	return &types.Event{
		Type: TypeNameRegistered,
		Attributes: map[string]string{
			"name":      e.Name,
			"nameHash":  hex.EncodeToString(e.NameHash[:]),
			"owner":     crypto.FormatAccount(e.Owner),
			"fee":       amountString(e.Fee),
			"locked":    amountString(e.LockedAmount),
			"expiresAt": strconv.FormatInt(e.ExpiresAt, 10),
		},
	}
}

// NameRenewed is emitted when the owner extends an active registration.
type NameRenewed struct {
	Name         string
	NameHash     [32]byte
	Owner        [20]byte
	Fee          *big.Int
	LockedAmount *big.Int
	ExpiresAt    int64
}

// EventType implements the Event interface.
func (NameRenewed) EventType() string { return TypeNameRenewed }

// Event converts the strongly typed event to the generic representation used by subscribers.
func (e NameRenewed) Event() *types.Event {
	return &types.Event{
		Type: TypeNameRenewed,
		Attributes: map[string]string{
			"name":      e.Name,
			"nameHash":  hex.EncodeToString(e.NameHash[:]),
			"owner":     crypto.FormatAccount(e.Owner),
			"fee":       amountString(e.Fee),
			"locked":    amountString(e.LockedAmount),
			"expiresAt": strconv.FormatInt(e.ExpiresAt, 10),
		},
	}
}

// NameRefunded is emitted when an expired lock is released back to its owner.
type NameRefunded struct {
	Name      string
	NameHash  [32]byte
	Owner     [20]byte
	Amount    *big.Int
	Timestamp int64
}

// EventType implements the Event interface.
func (NameRefunded) EventType() string { return TypeNameRefunded }

// Event converts the strongly typed event to the generic representation used by subscribers.
func (e NameRefunded) Event() *types.Event {
	return &types.Event{
		Type: TypeNameRefunded,
		Attributes: map[string]string{
			"name":      e.Name,
			"nameHash":  hex.EncodeToString(e.NameHash[:]),
			"owner":     crypto.FormatAccount(e.Owner),
			"amount":    amountString(e.Amount),
			"timestamp": strconv.FormatInt(e.Timestamp, 10),
		},
	}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
