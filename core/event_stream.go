package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/amalashkevich/vanitynamereg/core/events"
	"github.com/amalashkevich/vanitynamereg/core/types"
	"github.com/amalashkevich/vanitynamereg/observability"
)

const defaultEventHistory = 2048

// NameEvent is a registry notification stamped with its position in the
// node's event log.
type NameEvent struct {
	Sequence  uint64      `json:"sequence"`
	Cursor    string      `json:"cursor"`
	Height    uint64      `json:"height"`
	Timestamp int64       `json:"timestamp"`
	Event     types.Event `json:"event"`
}

func cloneNameEvent(evt NameEvent) NameEvent {
	cloned := evt
	if c := evt.Event.Clone(); c != nil {
		cloned.Event = *c
	}
	return cloned
}

// SetEventHistoryLimit bounds the in-memory event backlog. Non-positive values
// restore the default.
func (n *Node) SetEventHistoryLimit(limit int) {
	n.streamMu.Lock()
	defer n.streamMu.Unlock()
	if limit <= 0 {
		limit = defaultEventHistory
	}
	n.historyLimit = limit
	n.trimHistoryLocked()
}

// AddEventHook registers fn to be called synchronously, in order, for every
// published event. Hooks run while the node holds its state lock and must not
// call back into the node.
func (n *Node) AddEventHook(fn func(NameEvent)) {
	if fn == nil {
		return
	}
	n.streamMu.Lock()
	n.hooks = append(n.hooks, fn)
	n.streamMu.Unlock()
}

// LastEventSequence returns the sequence of the most recently published event.
func (n *Node) LastEventSequence() uint64 {
	n.streamMu.Lock()
	defer n.streamMu.Unlock()
	return n.streamSeq
}

func (n *Node) trimHistoryLocked() {
	if len(n.streamHistory) <= n.historyLimit {
		return
	}
	excess := len(n.streamHistory) - n.historyLimit
	trimmed := make([]NameEvent, n.historyLimit)
	copy(trimmed, n.streamHistory[excess:])
	n.streamHistory = trimmed
}

func countConvertible(emitted []events.Event) int {
	count := 0
	for _, evt := range emitted {
		if convertible, ok := evt.(events.Convertible); ok && convertible.Event() != nil {
			count++
		}
	}
	return count
}

func (n *Node) publishEvents(height uint64, timestamp int64, emitted []events.Event) {
	for _, evt := range emitted {
		convertible, ok := evt.(events.Convertible)
		if !ok {
			continue
		}
		payload := convertible.Event()
		if payload == nil {
			continue
		}
		n.publish(NameEvent{Height: height, Timestamp: timestamp, Event: *payload})
	}
}

func (n *Node) publish(evt NameEvent) {
	n.streamMu.Lock()
	n.streamSeq++
	evt.Sequence = n.streamSeq
	evt.Cursor = strconv.FormatUint(evt.Sequence, 10)
	n.streamHistory = append(n.streamHistory, cloneNameEvent(evt))
	n.trimHistoryLocked()
	// Sends stay under streamMu so a cancelled subscription is never closed
	// while a send can still reach it. They never block.
	for _, ch := range n.streamSubs {
		select {
		case ch <- cloneNameEvent(evt):
		default:
			observability.Events().RecordDropped("subscriber")
		}
	}
	hooks := append([]func(NameEvent){}, n.hooks...)
	n.streamMu.Unlock()

	observability.Events().RecordPublished(evt.Event.Type)
	for _, hook := range hooks {
		hook(cloneNameEvent(evt))
	}
}

func parseCursor(cursor string) uint64 {
	trimmed := strings.TrimSpace(cursor)
	if trimmed == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}

// RecentEvents returns up to limit buffered events with a sequence greater
// than cursor, oldest first.
func (n *Node) RecentEvents(cursor string, limit int) []NameEvent {
	since := parseCursor(cursor)
	n.streamMu.Lock()
	defer n.streamMu.Unlock()
	out := make([]NameEvent, 0)
	for _, entry := range n.streamHistory {
		if entry.Sequence <= since {
			continue
		}
		out = append(out, cloneNameEvent(entry))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// SubscribeEvents registers a subscriber for notifications published after
// the supplied cursor. The returned backlog holds buffered events newer than
// the cursor; live events follow on the channel. Slow subscribers miss events
// rather than block the node.
func (n *Node) SubscribeEvents(ctx context.Context, cursor string) (<-chan NameEvent, func(), []NameEvent, error) {
	if n == nil {
		return nil, nil, nil, fmt.Errorf("node not initialised")
	}
	updates := make(chan NameEvent, 64)
	since := parseCursor(cursor)

	n.streamMu.Lock()
	id := n.streamNextID
	n.streamNextID++
	n.streamSubs[id] = updates
	backlog := make([]NameEvent, 0, len(n.streamHistory))
	for _, entry := range n.streamHistory {
		if entry.Sequence > since {
			backlog = append(backlog, cloneNameEvent(entry))
		}
	}
	n.streamMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.streamMu.Lock()
			if sub, ok := n.streamSubs[id]; ok {
				delete(n.streamSubs, id)
				close(sub)
			}
			n.streamMu.Unlock()
		})
	}
	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return updates, cancel, backlog, nil
}
