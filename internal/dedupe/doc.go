// Package dedupe drops redelivered messages.
//
// The transport is at-most-once per delivery but may hand the same
// message to a listener more than once, for example after a gRPC stream
// reconnect. The mediator consults a Cache keyed by message ID before
// routing, so a conversation only sees a duplicate when the pillar itself
// sent the response twice.
package dedupe
