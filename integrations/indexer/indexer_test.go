package indexer

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/amalashkevich/vanitynamereg/core"
	"github.com/amalashkevich/vanitynamereg/core/events"
	"github.com/amalashkevich/vanitynamereg/core/types"
)

func setupTestIndexer(t *testing.T) *Indexer {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	idx, err := New(db, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func registeredEvent(seq uint64, name, owner string) core.NameEvent {
	return core.NameEvent{
		Sequence:  seq,
		Height:    seq,
		Timestamp: 1_700_000_000,
		Event: types.Event{
			Type: events.TypeNameRegistered,
			Attributes: map[string]string{
				"name":      name,
				"nameHash":  "ab",
				"owner":     owner,
				"fee":       "50",
				"locked":    "1000",
				"expiresAt": "1700001000",
			},
		},
	}
}

func TestIndexerRecordsAndQueriesHistory(t *testing.T) {
	idx := setupTestIndexer(t)
	ctx := context.Background()

	require.NoError(t, idx.Record(ctx, registeredEvent(1, "alice", "vnr1owner")))
	require.NoError(t, idx.Record(ctx, registeredEvent(2, "bob", "vnr1other")))
	require.NoError(t, idx.Record(ctx, core.NameEvent{
		Sequence: 3,
		Height:   3,
		Event: types.Event{
			Type: events.TypeNameRefunded,
			Attributes: map[string]string{
				"name":      "alice",
				"owner":     "vnr1owner",
				"amount":    "1000",
				"timestamp": "1700002000",
			},
		},
	}))

	history, err := idx.History(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, events.TypeNameRegistered, history[0].Type)
	require.Equal(t, int64(1700001000), history[0].ExpiresAt)
	require.Equal(t, "1000", history[0].Locked)
	require.Equal(t, events.TypeNameRefunded, history[1].Type)
	require.Equal(t, int64(1700002000), history[1].Timestamp)
	require.NotEqual(t, uuid.Nil, history[0].ID)

	last, err := idx.LastSequence(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), last)

	since, err := idx.Since(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, since, 2)
	require.Equal(t, uint64(2), since[0].Sequence)
}

func TestIndexerRecordIsIdempotent(t *testing.T) {
	idx := setupTestIndexer(t)
	ctx := context.Background()
	evt := registeredEvent(7, "carol", "vnr1owner")
	require.NoError(t, idx.Record(ctx, evt))
	idx.Handle(evt)

	history, err := idx.History(ctx, "carol", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestIndexerEmptyLastSequence(t *testing.T) {
	idx := setupTestIndexer(t)
	last, err := idx.LastSequence(context.Background())
	require.NoError(t, err)
	require.Zero(t, last)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "x", nil)
	require.Error(t, err)
}
