package names

import "math/big"

// Registration records the current holder of a name.
type Registration struct {
	NameHash  [32]byte
	Name      string
	Owner     [20]byte
	ExpiresAt int64
}

// Clone returns a copy of the registration.
func (r *Registration) Clone() *Registration {
	if r == nil {
		return nil
	}
	out := *r
	return &out
}

// Lock is the collateral deposited by Owner for NameHash. The funds sit in the
// registry vault until Owner calls Refund after ExpiresAt; no other path
// releases them. A lock whose owner never refunds stays escrowed permanently.
type Lock struct {
	NameHash  [32]byte
	Owner     [20]byte
	Amount    *big.Int
	ExpiresAt int64
}

// Clone returns a deep copy of the lock.
func (l *Lock) Clone() *Lock {
	if l == nil {
		return nil
	}
	out := *l
	out.Amount = cloneBigInt(l.Amount)
	return &out
}

// Commitment is a blinded registration intent.
type Commitment struct {
	Fingerprint [32]byte
	RecordedAt  int64
}

// Totals tracks aggregate vault accounting. The vault balance always equals
// Locked + Fees.
type Totals struct {
	Locked *big.Int
	Fees   *big.Int
}

// Clone returns a deep copy of the totals.
func (t *Totals) Clone() *Totals {
	if t == nil {
		return &Totals{Locked: big.NewInt(0), Fees: big.NewInt(0)}
	}
	return &Totals{Locked: cloneBigInt(t.Locked), Fees: cloneBigInt(t.Fees)}
}

// Quote describes the payment Register requires.
type Quote struct {
	Fee     *big.Int
	LockDue *big.Int
	Total   *big.Int
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
