package core

import (
	"context"
	"math/big"

	regstate "github.com/amalashkevich/vanitynamereg/core/state"
	"github.com/amalashkevich/vanitynamereg/core/types"
	"github.com/amalashkevich/vanitynamereg/native/names"
)

func (n *Node) NamesCommit(ctx context.Context, caller [20]byte, fingerprint [32]byte) error {
	return n.apply(ctx, "commit", func(engine *names.Engine) error {
		return engine.Commit(caller, fingerprint)
	})
}

func (n *Node) NamesRegister(ctx context.Context, caller [20]byte, name string, owner [20]byte, salt [32]byte, durationMultiplier uint64, payment *big.Int) (*names.Registration, error) {
	var reg *names.Registration
	err := n.apply(ctx, "register", func(engine *names.Engine) error {
		var err error
		reg, err = engine.Register(caller, name, owner, salt, durationMultiplier, payment)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

func (n *Node) NamesRenew(ctx context.Context, caller [20]byte, name string, durationMultiplier uint64, payment *big.Int) (*names.Registration, error) {
	var reg *names.Registration
	err := n.apply(ctx, "renew", func(engine *names.Engine) error {
		var err error
		reg, err = engine.Renew(caller, name, durationMultiplier, payment)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

func (n *Node) NamesRefund(ctx context.Context, caller [20]byte, name string) (*big.Int, error) {
	var amount *big.Int
	err := n.apply(ctx, "refund", func(engine *names.Engine) error {
		var err error
		amount, err = engine.Refund(caller, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return amount, nil
}

func (n *Node) NamesAvailable(name string) (bool, error) {
	var available bool
	err := n.view(func(engine *names.Engine, _ *regstate.Manager) error {
		var err error
		available, err = engine.Available(name)
		return err
	})
	return available, err
}

// NamesRegistration returns the stored registration for name, including an
// expired one that has not been replaced or refunded yet.
func (n *Node) NamesRegistration(name string) (*names.Registration, bool, error) {
	var (
		reg *names.Registration
		ok  bool
	)
	err := n.view(func(engine *names.Engine, _ *regstate.Manager) error {
		var err error
		reg, ok, err = engine.Registration(name)
		return err
	})
	return reg, ok, err
}

func (n *Node) NamesLock(name string, owner [20]byte) (*names.Lock, bool, error) {
	var (
		lock *names.Lock
		ok   bool
	)
	err := n.view(func(engine *names.Engine, _ *regstate.Manager) error {
		var err error
		lock, ok, err = engine.Lock(name, owner)
		return err
	})
	return lock, ok, err
}

func (n *Node) NamesCommitment(fingerprint [32]byte) (*names.Commitment, bool, error) {
	var (
		c  *names.Commitment
		ok bool
	)
	err := n.view(func(engine *names.Engine, _ *regstate.Manager) error {
		var err error
		c, ok, err = engine.Commitment(fingerprint)
		return err
	})
	return c, ok, err
}

func (n *Node) NamesQuote(name string, owner [20]byte, durationMultiplier uint64) (*names.Quote, error) {
	var q *names.Quote
	err := n.view(func(engine *names.Engine, _ *regstate.Manager) error {
		var err error
		q, err = engine.Quote(name, owner, durationMultiplier)
		return err
	})
	return q, err
}

func (n *Node) NamesTotals() (*names.Totals, error) {
	var totals *names.Totals
	err := n.view(func(engine *names.Engine, _ *regstate.Manager) error {
		var err error
		totals, err = engine.Totals()
		return err
	})
	return totals, err
}

func (n *Node) NamesParams() names.Params {
	return n.params.Clone()
}

// NamesVaultAddress returns the account escrowing locks and fees.
func (n *Node) NamesVaultAddress() [20]byte {
	return regstate.NamesVaultAddressFor()
}

// GetAccount returns the balance view of addr.
func (n *Node) GetAccount(addr [20]byte) (*types.Account, error) {
	var acc *types.Account
	err := n.view(func(_ *names.Engine, manager *regstate.Manager) error {
		var err error
		acc, err = manager.GetAccount(addr[:])
		return err
	})
	return acc, err
}
