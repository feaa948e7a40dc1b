// Package store keeps a ledger of operation events in SQLite.
//
// The ledger is an observer: a Recorder sits in front of the caller's
// event handler and appends every event a conversation emits. Nothing in
// the conversation engine reads it back. The CLI uses it to show the
// history of earlier operations:
//
//	ledger, err := store.NewSQLiteStore("~/.pillarclient/ledger.db", logger)
//	handler := store.NewRecorder(ledger, printer, logger)
//
// # Schema
//
// operation_events holds one row per event, ordered by an autoincrement
// sequence so events of one conversation list in emission order even
// when timestamps collide. Terminal events store the aggregated
// contributor results as payload_json.
//
// The database runs in WAL mode and uses modernc.org/sqlite, a pure Go
// driver, so no cgo toolchain is needed.
package store
