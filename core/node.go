package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/amalashkevich/vanitynamereg/core/events"
	"github.com/amalashkevich/vanitynamereg/core/genesis"
	regstate "github.com/amalashkevich/vanitynamereg/core/state"
	"github.com/amalashkevich/vanitynamereg/native/names"
	"github.com/amalashkevich/vanitynamereg/observability/metrics"
	"github.com/amalashkevich/vanitynamereg/storage"
	"github.com/amalashkevich/vanitynamereg/storage/trie"
)

// ErrNodeClosed is returned once Close has been called.
var ErrNodeClosed = errors.New("core: node closed")

var headKey = []byte("vnr/head")

// headRecord is the committed tip. Sequence is the last event sequence so
// cursors stay monotonic across restarts.
type headRecord struct {
	Root     common.Hash
	Height   uint64
	Sequence uint64
}

// Node owns the registry state and serialises every operation against it.
// Each mutating call runs on a copy of the state trie; the copy replaces the
// live trie only after the engine succeeded and the new root was committed.
type Node struct {
	db      storage.Database
	trie    *trie.Trie
	height  uint64
	params  names.Params
	nowFn   func() int64
	stateMu sync.Mutex
	closed  bool
	tracer  trace.Tracer

	streamMu      sync.Mutex
	streamSeq     uint64
	streamHistory []NameEvent
	historyLimit  int
	streamSubs    map[uint64]chan NameEvent
	streamNextID  uint64
	hooks         []func(NameEvent)
}

// NewNode opens the registry state stored in db. On an empty database the
// genesis allocations (if any) are applied and committed as height 0.
func NewNode(db storage.Database, params names.Params, spec *genesis.GenesisSpec) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("database must not be nil")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	n := &Node{
		db:           db,
		params:       params.Clone(),
		nowFn:        func() int64 { return time.Now().Unix() },
		tracer:       otel.Tracer("vanitynamereg/core"),
		historyLimit: defaultEventHistory,
		streamSubs:   make(map[uint64]chan NameEvent),
	}

	raw, err := db.Get(headKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if err := n.initGenesis(spec); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("load head: %w", err)
	default:
		var head headRecord
		if err := rlp.DecodeBytes(raw, &head); err != nil {
			return nil, fmt.Errorf("decode head: %w", err)
		}
		tr, err := trie.NewTrie(db, head.Root.Bytes())
		if err != nil {
			return nil, fmt.Errorf("open state at %s: %w", head.Root.Hex(), err)
		}
		if err := regstate.NewManager(tr).EnsureStateVersion(); err != nil {
			return nil, err
		}
		n.trie = tr
		n.height = head.Height
		n.streamSeq = head.Sequence
	}

	totals, err := n.NamesTotals()
	if err != nil {
		return nil, err
	}
	metrics.Names().SetTotals(totals.Locked, totals.Fees)
	metrics.Names().SetHeight(n.height)
	return n, nil
}

func (n *Node) initGenesis(spec *genesis.GenesisSpec) error {
	tr, err := trie.NewTrie(n.db, nil)
	if err != nil {
		return fmt.Errorf("init state trie: %w", err)
	}
	manager := regstate.NewManager(tr)
	if err := manager.SetStateVersion(regstate.StateVersion); err != nil {
		return fmt.Errorf("record state version: %w", err)
	}
	if spec != nil {
		if err := genesis.Apply(spec, manager); err != nil {
			return err
		}
	}
	root, err := tr.Commit(0)
	if err != nil {
		return fmt.Errorf("commit genesis: %w", err)
	}
	if err := n.persistHead(headRecord{Root: root}); err != nil {
		return err
	}
	n.trie = tr
	n.height = 0
	return nil
}

func (n *Node) persistHead(head headRecord) error {
	encoded, err := rlp.EncodeToBytes(head)
	if err != nil {
		return err
	}
	if err := n.db.Put(headKey, encoded); err != nil {
		return fmt.Errorf("persist head: %w", err)
	}
	return nil
}

// SetNowFunc overrides the clock. Passing nil restores the wall clock.
func (n *Node) SetNowFunc(now func() int64) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if now == nil {
		n.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	n.nowFn = now
}

// Now returns the node's current clock reading in unix seconds.
func (n *Node) Now() int64 {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.nowFn()
}

// Height returns the number of committed state transitions.
func (n *Node) Height() uint64 {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.height
}

// StateRoot returns the committed state root.
func (n *Node) StateRoot() common.Hash {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.trie.Root()
}

// Close stops the node from accepting operations and closes event
// subscriptions. The database is owned by the caller.
func (n *Node) Close() {
	n.stateMu.Lock()
	n.closed = true
	n.stateMu.Unlock()

	n.streamMu.Lock()
	for id, ch := range n.streamSubs {
		delete(n.streamSubs, id)
		close(ch)
	}
	n.streamMu.Unlock()
}

func (n *Node) newNamesEngine(manager *regstate.Manager, emitter events.Emitter) *names.Engine {
	engine := names.NewEngine()
	engine.SetState(manager)
	engine.SetEmitter(emitter)
	engine.SetParams(n.params)
	engine.SetNowFunc(n.nowFn)
	return engine
}

// apply runs fn as one indivisible transition.
func (n *Node) apply(ctx context.Context, op string, fn func(*names.Engine) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_, span := n.tracer.Start(ctx, "names."+op, trace.WithAttributes(attribute.String("names.op", op)))
	defer span.End()

	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.closed {
		return ErrNodeClosed
	}

	start := time.Now()
	working := n.trie.Copy()
	manager := regstate.NewManager(working)
	buffer := &events.Buffer{}
	engine := n.newNamesEngine(manager, buffer)

	fail := func(err error) error {
		reason := names.Reason(err)
		metrics.Names().RecordFailure(op, reason)
		span.SetAttributes(attribute.String("names.reason", reason))
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		return err
	}

	if err := fn(engine); err != nil {
		return fail(err)
	}
	totals, err := engine.Totals()
	if err != nil {
		return fail(err)
	}
	height := n.height + 1
	root, err := working.Commit(height)
	if err != nil {
		return fail(fmt.Errorf("commit state: %w", err))
	}
	emitted := buffer.Events()
	n.streamMu.Lock()
	lastSeq := n.streamSeq + uint64(countConvertible(emitted))
	n.streamMu.Unlock()
	if err := n.persistHead(headRecord{Root: root, Height: height, Sequence: lastSeq}); err != nil {
		return fail(err)
	}
	n.trie = working
	n.height = height

	metrics.Names().RecordSuccess(op, time.Since(start))
	metrics.Names().SetTotals(totals.Locked, totals.Fees)
	metrics.Names().SetHeight(height)
	span.SetAttributes(attribute.Int64("names.height", int64(height)))

	n.publishEvents(height, n.nowFn(), emitted)
	return nil
}

// view runs fn against the committed state without mutating it.
func (n *Node) view(fn func(*names.Engine, *regstate.Manager) error) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.closed {
		return ErrNodeClosed
	}
	manager := regstate.NewManager(n.trie.Copy())
	return fn(n.newNamesEngine(manager, events.NoopEmitter{}), manager)
}
