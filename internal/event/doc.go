// Package event defines the OperationEvent values a conversation reports to
// its observer.
//
// A conversation emits, in order, events such as identify-request-sent,
// component-identified, identification-complete, request-sent, progress and
// component-complete, and exactly one terminal event: complete or failed.
// Nothing is emitted after the terminal event.
//
// Observers implement Handler (or use HandlerFunc). Multi combines several
// handlers, for example a CLI printer and the SQLite ledger recorder.
package event
