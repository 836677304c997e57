package state

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/amalashkevich/vanitynamereg/native/names"
)

var (
	namesCommitmentPrefix   = []byte("names/commitment/")
	namesRegistrationPrefix = []byte("names/registration/")
	namesLockPrefix         = []byte("names/lock/")
	namesLockedTotalKey     = []byte("names/locked-total")
	namesFeesCollectedKey   = []byte("names/fees-collected")
	namesVaultSeed          = []byte("names/vault")
)

type storedRegistration struct {
	Name      string
	Owner     [20]byte
	ExpiresAt uint64
}

type storedLock struct {
	Amount    *big.Int
	ExpiresAt uint64
}

func namesCommitmentKey(fingerprint [32]byte) []byte {
	return append(append([]byte(nil), namesCommitmentPrefix...), fingerprint[:]...)
}

func namesRegistrationKey(nameHash [32]byte) []byte {
	return append(append([]byte(nil), namesRegistrationPrefix...), nameHash[:]...)
}

func namesLockKey(nameHash [32]byte, owner [20]byte) []byte {
	buf := make([]byte, 0, len(namesLockPrefix)+len(nameHash)+len(owner))
	buf = append(buf, namesLockPrefix...)
	buf = append(buf, nameHash[:]...)
	return append(buf, owner[:]...)
}

// NamesVaultAddressFor returns the account that escrows registry funds: the
// last 20 bytes of keccak256("names/vault").
func NamesVaultAddressFor() [20]byte {
	var addr [20]byte
	digest := ethcrypto.Keccak256(namesVaultSeed)
	copy(addr[:], digest[len(digest)-20:])
	return addr
}

func toStoredTime(ts int64) (uint64, error) {
	if ts < 0 {
		return 0, fmt.Errorf("names: negative timestamp %d", ts)
	}
	return uint64(ts), nil
}

func fromStoredTime(ts uint64) (int64, error) {
	if ts > uint64(1<<63-1) {
		return 0, fmt.Errorf("names: stored timestamp %d overflows", ts)
	}
	return int64(ts), nil
}

// NamesCommitmentGet returns the time the fingerprint was recorded.
func (m *Manager) NamesCommitmentGet(fingerprint [32]byte) (int64, bool, error) {
	var stored uint64
	ok, err := m.KVGet(namesCommitmentKey(fingerprint), &stored)
	if err != nil || !ok {
		return 0, false, err
	}
	ts, err := fromStoredTime(stored)
	if err != nil {
		return 0, false, err
	}
	return ts, true, nil
}

// NamesCommitmentPut records fingerprint at recordedAt.
func (m *Manager) NamesCommitmentPut(fingerprint [32]byte, recordedAt int64) error {
	stored, err := toStoredTime(recordedAt)
	if err != nil {
		return err
	}
	return m.KVPut(namesCommitmentKey(fingerprint), stored)
}

// NamesCommitmentDelete consumes the commitment.
func (m *Manager) NamesCommitmentDelete(fingerprint [32]byte) error {
	return m.KVDelete(namesCommitmentKey(fingerprint))
}

// NamesRegistrationGet loads the registration keyed by the name hash.
func (m *Manager) NamesRegistrationGet(nameHash [32]byte) (*names.Registration, bool, error) {
	var stored storedRegistration
	ok, err := m.KVGet(namesRegistrationKey(nameHash), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	expiresAt, err := fromStoredTime(stored.ExpiresAt)
	if err != nil {
		return nil, false, err
	}
	return &names.Registration{
		NameHash:  nameHash,
		Name:      stored.Name,
		Owner:     stored.Owner,
		ExpiresAt: expiresAt,
	}, true, nil
}

// NamesRegistrationPut writes the registration.
func (m *Manager) NamesRegistrationPut(reg *names.Registration) error {
	if reg == nil {
		return fmt.Errorf("names: nil registration")
	}
	expiresAt, err := toStoredTime(reg.ExpiresAt)
	if err != nil {
		return err
	}
	return m.KVPut(namesRegistrationKey(reg.NameHash), storedRegistration{
		Name:      reg.Name,
		Owner:     reg.Owner,
		ExpiresAt: expiresAt,
	})
}

// NamesRegistrationDelete clears the registration.
func (m *Manager) NamesRegistrationDelete(nameHash [32]byte) error {
	return m.KVDelete(namesRegistrationKey(nameHash))
}

// NamesLockGet loads the collateral held for (nameHash, owner).
func (m *Manager) NamesLockGet(nameHash [32]byte, owner [20]byte) (*names.Lock, bool, error) {
	var stored storedLock
	ok, err := m.KVGet(namesLockKey(nameHash, owner), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	expiresAt, err := fromStoredTime(stored.ExpiresAt)
	if err != nil {
		return nil, false, err
	}
	amount := big.NewInt(0)
	if stored.Amount != nil {
		amount.Set(stored.Amount)
	}
	return &names.Lock{NameHash: nameHash, Owner: owner, Amount: amount, ExpiresAt: expiresAt}, true, nil
}

// NamesLockPut writes the lock.
func (m *Manager) NamesLockPut(lock *names.Lock) error {
	if lock == nil {
		return fmt.Errorf("names: nil lock")
	}
	expiresAt, err := toStoredTime(lock.ExpiresAt)
	if err != nil {
		return err
	}
	amount := big.NewInt(0)
	if lock.Amount != nil {
		if lock.Amount.Sign() < 0 {
			return fmt.Errorf("names: negative lock amount")
		}
		amount.Set(lock.Amount)
	}
	return m.KVPut(namesLockKey(lock.NameHash, lock.Owner), storedLock{Amount: amount, ExpiresAt: expiresAt})
}

// NamesLockDelete removes the lock.
func (m *Manager) NamesLockDelete(nameHash [32]byte, owner [20]byte) error {
	return m.KVDelete(namesLockKey(nameHash, owner))
}

// NamesTotalsGet returns the locked and fee totals.
func (m *Manager) NamesTotalsGet() (*names.Totals, error) {
	totals := &names.Totals{Locked: big.NewInt(0), Fees: big.NewInt(0)}
	if _, err := m.KVGet(namesLockedTotalKey, totals.Locked); err != nil {
		return nil, err
	}
	if _, err := m.KVGet(namesFeesCollectedKey, totals.Fees); err != nil {
		return nil, err
	}
	return totals, nil
}

// NamesTotalsPut persists the locked and fee totals.
func (m *Manager) NamesTotalsPut(totals *names.Totals) error {
	if totals == nil {
		return fmt.Errorf("names: nil totals")
	}
	locked := totals.Locked
	if locked == nil {
		locked = big.NewInt(0)
	}
	fees := totals.Fees
	if fees == nil {
		fees = big.NewInt(0)
	}
	if locked.Sign() < 0 || fees.Sign() < 0 {
		return fmt.Errorf("names: negative totals")
	}
	if err := m.KVPut(namesLockedTotalKey, locked); err != nil {
		return err
	}
	return m.KVPut(namesFeesCollectedKey, fees)
}

// NamesVaultAddress returns the registry vault account.
func (m *Manager) NamesVaultAddress() [20]byte {
	return NamesVaultAddressFor()
}
