package names

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/amalashkevich/vanitynamereg/core/events"
	"github.com/amalashkevich/vanitynamereg/core/types"
)

type engineState interface {
	NamesCommitmentGet(fingerprint [32]byte) (int64, bool, error)
	NamesCommitmentPut(fingerprint [32]byte, recordedAt int64) error
	NamesCommitmentDelete(fingerprint [32]byte) error
	NamesRegistrationGet(nameHash [32]byte) (*Registration, bool, error)
	NamesRegistrationPut(*Registration) error
	NamesRegistrationDelete(nameHash [32]byte) error
	NamesLockGet(nameHash [32]byte, owner [20]byte) (*Lock, bool, error)
	NamesLockPut(*Lock) error
	NamesLockDelete(nameHash [32]byte, owner [20]byte) error
	NamesTotalsGet() (*Totals, error)
	NamesTotalsPut(*Totals) error
	NamesVaultAddress() [20]byte
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// Engine implements the commit-reveal name registry on top of an injected
// state backend. Every exported mutator either applies all of its effects or
// returns an error; in the latter case the caller must discard the state it
// handed to the engine since partial writes may have happened.
type Engine struct {
	state   engineState
	emitter events.Emitter
	params  Params
	nowFn   func() int64
}

// NewEngine creates an engine with default parameters and a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		params:  DefaultParams(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetParams replaces the registry parameters.
func (e *Engine) SetParams(p Params) { e.params = p.Clone() }

// Params returns a copy of the active parameters.
func (e *Engine) Params() Params { return e.params.Clone() }

// SetNowFunc overrides the time source used by the engine. Passing nil
// restores the wall clock.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// Commit records a blinded registration intent. An existing fingerprint may
// only be overwritten once it has aged past the maximum reveal window.
func (e *Engine) Commit(caller [20]byte, fingerprint [32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	now := e.now()
	stored, ok, err := e.state.NamesCommitmentGet(fingerprint)
	if err != nil {
		return err
	}
	if ok && commitmentAge(stored, now) <= e.params.MaxCommitmentAge {
		return ErrCommitmentNotExpired
	}
	if err := e.state.NamesCommitmentPut(fingerprint, now); err != nil {
		return err
	}
	e.emit(events.CommitmentRecorded{Fingerprint: fingerprint, Caller: caller, Timestamp: now})
	return nil
}

// Register reveals a prior commitment and registers name to owner for
// durationMultiplier units. The caller pays; any payment above the fee and the
// outstanding lock is returned to the caller in the same step.
func (e *Engine) Register(caller [20]byte, name string, owner [20]byte, salt [32]byte, durationMultiplier uint64, payment *big.Int) (*Registration, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	now := e.now()

	fingerprint := ComputeFingerprint(name, owner, salt)
	stored, ok, err := e.state.NamesCommitmentGet(fingerprint)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no commitment recorded", ErrCommitmentTooYoung)
	}
	age := commitmentAge(stored, now)
	if age < e.params.MinCommitmentAge {
		return nil, ErrCommitmentTooYoung
	}
	if age >= e.params.MaxCommitmentAge {
		return nil, ErrCommitmentExpired
	}

	if durationMultiplier < e.params.MinDurationMultiplier {
		return nil, ErrDurationTooShort
	}

	nameHash := NameHash(name)
	current, ok, err := e.state.NamesRegistrationGet(nameHash)
	if err != nil {
		return nil, err
	}
	if ok && current.ExpiresAt > now {
		return nil, ErrNameUnavailable
	}

	existing, _, err := e.state.NamesLockGet(nameHash, owner)
	if err != nil {
		return nil, err
	}
	quote := e.quote(name, existing, durationMultiplier)
	paid := cloneBigInt(payment)
	if paid.Sign() < 0 || paid.Cmp(quote.Total) < 0 {
		return nil, fmt.Errorf("%w: need %s, got %s", ErrInsufficientPayment, quote.Total, paid)
	}
	expiresAt, err := addDuration(now, e.params.DurationUnit, durationMultiplier)
	if err != nil {
		return nil, err
	}

	lockAmount := cloneBigInt(e.params.LockAmount)
	previous := big.NewInt(0)
	if existing != nil {
		previous = cloneBigInt(existing.Amount)
	}
	// Collateral above the current lock amount belongs to the (name, owner)
	// pair and goes back to the owner.
	excess := new(big.Int).Sub(previous, lockAmount)
	if excess.Sign() < 0 {
		excess.SetInt64(0)
	}

	vault := e.state.NamesVaultAddress()
	if err := e.transfer(caller, vault, paid); err != nil {
		return nil, err
	}
	if err := e.transfer(vault, caller, new(big.Int).Sub(paid, quote.Total)); err != nil {
		return nil, err
	}
	if err := e.transfer(vault, owner, excess); err != nil {
		return nil, err
	}

	reg := &Registration{NameHash: nameHash, Name: name, Owner: owner, ExpiresAt: expiresAt}
	if err := e.state.NamesRegistrationPut(reg); err != nil {
		return nil, err
	}
	if err := e.state.NamesLockPut(&Lock{NameHash: nameHash, Owner: owner, Amount: lockAmount, ExpiresAt: expiresAt}); err != nil {
		return nil, err
	}
	if err := e.state.NamesCommitmentDelete(fingerprint); err != nil {
		return nil, err
	}
	if err := e.adjustTotals(new(big.Int).Sub(lockAmount, previous), quote.Fee); err != nil {
		return nil, err
	}

	e.emit(events.NameRegistered{
		Name:         name,
		NameHash:     nameHash,
		Owner:        owner,
		Fee:          cloneBigInt(quote.Fee),
		LockedAmount: cloneBigInt(lockAmount),
		ExpiresAt:    expiresAt,
	})
	return reg.Clone(), nil
}

// Renew extends an active registration held by caller. The new expiry is
// computed from the current expiry, not from now.
func (e *Engine) Renew(caller [20]byte, name string, durationMultiplier uint64, payment *big.Int) (*Registration, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if durationMultiplier < e.params.MinDurationMultiplier {
		return nil, ErrDurationTooShort
	}
	now := e.now()
	nameHash := NameHash(name)
	reg, ok, err := e.state.NamesRegistrationGet(nameHash)
	if err != nil {
		return nil, err
	}
	if !ok || reg.ExpiresAt <= now {
		return nil, ErrRegistrationExpired
	}
	if reg.Owner != caller {
		return nil, ErrNotOwner
	}
	fee := e.fee(name, durationMultiplier)
	paid := cloneBigInt(payment)
	if paid.Sign() < 0 || paid.Cmp(fee) < 0 {
		return nil, fmt.Errorf("%w: need %s, got %s", ErrInsufficientPayment, fee, paid)
	}
	newExpiresAt, err := addDuration(reg.ExpiresAt, e.params.DurationUnit, durationMultiplier)
	if err != nil {
		return nil, err
	}

	vault := e.state.NamesVaultAddress()
	if err := e.transfer(caller, vault, paid); err != nil {
		return nil, err
	}
	if err := e.transfer(vault, caller, new(big.Int).Sub(paid, fee)); err != nil {
		return nil, err
	}

	reg.ExpiresAt = newExpiresAt
	if err := e.state.NamesRegistrationPut(reg); err != nil {
		return nil, err
	}
	locked := big.NewInt(0)
	lock, ok, err := e.state.NamesLockGet(nameHash, caller)
	if err != nil {
		return nil, err
	}
	if ok {
		lock.ExpiresAt = newExpiresAt
		if err := e.state.NamesLockPut(lock); err != nil {
			return nil, err
		}
		locked = cloneBigInt(lock.Amount)
	}
	if err := e.adjustTotals(big.NewInt(0), fee); err != nil {
		return nil, err
	}

	e.emit(events.NameRenewed{
		Name:         name,
		NameHash:     nameHash,
		Owner:        caller,
		Fee:          cloneBigInt(fee),
		LockedAmount: locked,
		ExpiresAt:    newExpiresAt,
	})
	return reg.Clone(), nil
}

// Refund releases the caller's expired lock for name. When the caller still
// owns the expired registration it is cleared as well, making the name
// available without waiting for a competing registration.
func (e *Engine) Refund(caller [20]byte, name string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	now := e.now()
	nameHash := NameHash(name)
	lock, ok, err := e.state.NamesLockGet(nameHash, caller)
	if err != nil {
		return nil, err
	}
	if !ok || lock.Amount == nil || lock.Amount.Sign() == 0 {
		return nil, ErrNoLockFound
	}
	if lock.ExpiresAt > now {
		return nil, ErrNotYetExpired
	}
	amount := cloneBigInt(lock.Amount)
	if err := e.state.NamesLockDelete(nameHash, caller); err != nil {
		return nil, err
	}
	if err := e.transfer(e.state.NamesVaultAddress(), caller, amount); err != nil {
		return nil, err
	}
	reg, ok, err := e.state.NamesRegistrationGet(nameHash)
	if err != nil {
		return nil, err
	}
	if ok && reg.Owner == caller && reg.ExpiresAt <= now {
		if err := e.state.NamesRegistrationDelete(nameHash); err != nil {
			return nil, err
		}
	}
	if err := e.adjustTotals(new(big.Int).Neg(amount), big.NewInt(0)); err != nil {
		return nil, err
	}

	e.emit(events.NameRefunded{
		Name:      name,
		NameHash:  nameHash,
		Owner:     caller,
		Amount:    cloneBigInt(amount),
		Timestamp: now,
	})
	return amount, nil
}

// Available reports whether name can currently be registered.
func (e *Engine) Available(name string) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	if err := ValidateName(name); err != nil {
		return false, err
	}
	reg, ok, err := e.state.NamesRegistrationGet(NameHash(name))
	if err != nil {
		return false, err
	}
	return !ok || reg.ExpiresAt <= e.now(), nil
}

// Registration returns the stored registration for name, expired or not.
func (e *Engine) Registration(name string) (*Registration, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	if err := ValidateName(name); err != nil {
		return nil, false, err
	}
	reg, ok, err := e.state.NamesRegistrationGet(NameHash(name))
	if err != nil || !ok {
		return nil, ok, err
	}
	return reg.Clone(), true, nil
}

// Lock returns the collateral held for (name, owner).
func (e *Engine) Lock(name string, owner [20]byte) (*Lock, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	if err := ValidateName(name); err != nil {
		return nil, false, err
	}
	lock, ok, err := e.state.NamesLockGet(NameHash(name), owner)
	if err != nil || !ok {
		return nil, ok, err
	}
	return lock.Clone(), true, nil
}

// Commitment returns the commitment stored under fingerprint.
func (e *Engine) Commitment(fingerprint [32]byte) (*Commitment, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	ts, ok, err := e.state.NamesCommitmentGet(fingerprint)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &Commitment{Fingerprint: fingerprint, RecordedAt: ts}, true, nil
}

// Quote returns the payment Register would require from owner for name.
func (e *Engine) Quote(name string, owner [20]byte, durationMultiplier uint64) (*Quote, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if durationMultiplier < e.params.MinDurationMultiplier {
		return nil, ErrDurationTooShort
	}
	existing, _, err := e.state.NamesLockGet(NameHash(name), owner)
	if err != nil {
		return nil, err
	}
	return e.quote(name, existing, durationMultiplier), nil
}

// Totals returns the aggregate vault accounting.
func (e *Engine) Totals() (*Totals, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	totals, err := e.state.NamesTotalsGet()
	if err != nil {
		return nil, err
	}
	return totals.Clone(), nil
}

func (e *Engine) fee(name string, durationMultiplier uint64) *big.Int {
	fee := new(big.Int).SetInt64(int64(len(name)))
	fee.Mul(fee, cloneBigInt(e.params.FeePerSymbol))
	fee.Mul(fee, new(big.Int).SetUint64(durationMultiplier))
	return fee
}

func (e *Engine) quote(name string, existing *Lock, durationMultiplier uint64) *Quote {
	fee := e.fee(name, durationMultiplier)
	lockAmount := cloneBigInt(e.params.LockAmount)
	reusable := big.NewInt(0)
	if existing != nil && existing.Amount != nil {
		reusable = cloneBigInt(existing.Amount)
		if reusable.Cmp(lockAmount) > 0 {
			reusable.Set(lockAmount)
		}
	}
	lockDue := new(big.Int).Sub(lockAmount, reusable)
	return &Quote{Fee: fee, LockDue: lockDue, Total: new(big.Int).Add(fee, lockDue)}
}

func (e *Engine) adjustTotals(lockedDelta, feesDelta *big.Int) error {
	totals, err := e.state.NamesTotalsGet()
	if err != nil {
		return err
	}
	totals = totals.Clone()
	totals.Locked.Add(totals.Locked, lockedDelta)
	totals.Fees.Add(totals.Fees, feesDelta)
	if totals.Locked.Sign() < 0 {
		return fmt.Errorf("names: locked total underflow")
	}
	return e.state.NamesTotalsPut(totals)
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

func (e *Engine) transfer(from, to [20]byte, amount *big.Int) error {
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 || from == to {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("%w: negative amount", ErrTransferRejected)
	}
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	fromAcc = ensureAccount(fromAcc)
	if fromAcc.Balance.Cmp(amt) < 0 {
		return fmt.Errorf("%w: insufficient balance", ErrTransferRejected)
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	toAcc = ensureAccount(toAcc)
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to[:], toAcc)
}

// commitmentAge returns how long ago a commitment was recorded. A record from
// the future has age zero; an age too large for int64 saturates.
func commitmentAge(recordedAt, now int64) int64 {
	if now <= recordedAt {
		return 0
	}
	age := new(big.Int).Sub(big.NewInt(now), big.NewInt(recordedAt))
	if !age.IsInt64() {
		return math.MaxInt64
	}
	return age.Int64()
}

func addDuration(base, unit int64, multiplier uint64) (int64, error) {
	total := new(big.Int).Mul(big.NewInt(unit), new(big.Int).SetUint64(multiplier))
	total.Add(total, big.NewInt(base))
	if !total.IsInt64() {
		return 0, ErrDurationOverflow
	}
	return total.Int64(), nil
}
