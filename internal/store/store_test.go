// ABOUTME: Tests for the SQLite event ledger and the recording handler
// ABOUTME: Uses a temporary database per test

package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/pillarclient/internal/event"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "ledger.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndListEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	events := []event.OperationEvent{
		{Type: event.IdentifyRequestSent, ConversationID: "c1", Operation: "PutFile", FileID: "f1", CollectionID: "books", Timestamp: base},
		{Type: event.IdentificationComplete, ConversationID: "c1", Operation: "PutFile", Contributors: []string{"P1", "P2"}, Timestamp: base.Add(time.Second)},
		{Type: event.ComponentComplete, ConversationID: "c1", Operation: "PutFile", ContributorID: "P1", Payload: map[string]string{"checksum": "ab"}, Timestamp: base.Add(2 * time.Second)},
		{Type: event.ComponentFailed, ConversationID: "c1", Operation: "PutFile", ContributorID: "P2", ResponseCode: "FAILURE", Info: "disk full", Timestamp: base.Add(3 * time.Second)},
		{Type: event.Failed, ConversationID: "c1", Operation: "PutFile", Info: "failed operation", Timestamp: base.Add(4 * time.Second)},
		{Type: event.Complete, ConversationID: "c2", Operation: "GetStatus", Results: []event.ContributorResult{{ContributorID: "P1", Payload: "ok"}}, Timestamp: base.Add(5 * time.Second)},
	}
	for _, e := range events {
		require.NoError(t, s.SaveEvent(ctx, e))
	}

	all, err := s.ListEvents(ctx, EventFilter{ConversationID: "c1"})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, event.IdentifyRequestSent, all[0].Type)
	assert.Equal(t, "books", all[0].CollectionID)
	assert.Equal(t, []string{"P1", "P2"}, all[1].Contributors)
	assert.JSONEq(t, `{"checksum":"ab"}`, string(all[2].Payload))
	assert.Equal(t, "FAILURE", all[3].ResponseCode)
	assert.Equal(t, "disk full", all[3].Info)
	assert.True(t, base.Equal(all[0].Timestamp))
	assert.Less(t, all[0].Seq, all[1].Seq)
	assert.NotEmpty(t, all[0].ID)

	failures, err := s.ListEvents(ctx, EventFilter{Type: event.ComponentFailed})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "P2", failures[0].ContributorID)

	since := base.Add(4 * time.Second)
	recent, err := s.ListEvents(ctx, EventFilter{Since: &since})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	byOp, err := s.ListEvents(ctx, EventFilter{Operation: "GetStatus"})
	require.NoError(t, err)
	require.Len(t, byOp, 1)
	var results []event.ContributorResult
	require.NoError(t, json.Unmarshal(byOp[0].Payload, &results))
	assert.Equal(t, "P1", results[0].ContributorID)

	newest, err := s.ListEvents(ctx, EventFilter{Newest: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, newest, 2)
	assert.Equal(t, "c2", newest[0].ConversationID)
}

func TestListOutcomes(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	require.NoError(t, s.SaveEvent(ctx, event.OperationEvent{Type: event.RequestSent, ConversationID: "c1"}))
	require.NoError(t, s.SaveEvent(ctx, event.OperationEvent{Type: event.Complete, ConversationID: "c1"}))
	require.NoError(t, s.SaveEvent(ctx, event.OperationEvent{Type: event.Failed, ConversationID: "c2"}))

	outcomes, err := s.ListOutcomes(ctx, 0)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "c2", outcomes[0].ConversationID)
	assert.Equal(t, event.Complete, outcomes[1].Type)
}

func TestSaveEvent_DefaultsTimestamp(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveEvent(t.Context(), event.OperationEvent{Type: event.Warning, ConversationID: "c"}))
	got, err := s.ListEvents(t.Context(), EventFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.WithinDuration(t, time.Now(), got[0].Timestamp, time.Minute)
	assert.Nil(t, got[0].Payload)
	assert.Nil(t, got[0].Contributors)
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, 100, normalizeLimit(0))
	assert.Equal(t, 100, normalizeLimit(-5))
	assert.Equal(t, 7, normalizeLimit(7))
	assert.Equal(t, 1000, normalizeLimit(5000))
}

func TestInMemoryStore(t *testing.T) {
	s, err := NewSQLiteStore(":memory:", nil)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.SaveEvent(t.Context(), event.OperationEvent{Type: event.Complete, ConversationID: "m"}))
	got, err := s.ListOutcomes(t.Context(), 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

type failingSaver struct{ calls int }

func (f *failingSaver) SaveEvent(context.Context, event.OperationEvent) error {
	f.calls++
	return errors.New("disk gone")
}

func TestRecorder_PersistsThenForwards(t *testing.T) {
	s := newTestStore(t)
	var forwarded []event.OperationEvent
	r := NewRecorder(s, event.HandlerFunc(func(e event.OperationEvent) {
		got, err := s.ListEvents(context.Background(), EventFilter{ConversationID: e.ConversationID})
		require.NoError(t, err)
		assert.Len(t, got, len(forwarded)+1, "event is stored before it is forwarded")
		forwarded = append(forwarded, e)
	}), nil)

	r.HandleEvent(event.OperationEvent{Type: event.RequestSent, ConversationID: "c"})
	r.HandleEvent(event.OperationEvent{Type: event.Complete, ConversationID: "c"})
	assert.Len(t, forwarded, 2)
}

func TestRecorder_SaveFailureStillForwards(t *testing.T) {
	saver := &failingSaver{}
	var forwarded int
	r := NewRecorder(saver, event.HandlerFunc(func(event.OperationEvent) { forwarded++ }), nil)
	r.HandleEvent(event.OperationEvent{Type: event.Complete})
	assert.Equal(t, 1, saver.calls)
	assert.Equal(t, 1, forwarded)

	NewRecorder(saver, nil, nil).HandleEvent(event.OperationEvent{Type: event.Failed})
	assert.Equal(t, 2, saver.calls)
}
