// Package security signs and verifies bus traffic.
//
// Conversations trust every message they are handed; this package is
// where that trust is earned. Three pieces share one HS256 secret:
//
//   - SigningSender signs each outgoing message. The signature is a JWT
//     whose sub claim is the sender and whose dig claim is the SHA-256
//     Digest of the envelope.
//   - VerifyingListener checks inbound messages and drops any that are
//     unsigned, signed by someone other than From, or altered after
//     signing.
//   - UnaryInterceptor, StreamInterceptor and TokenCredentials require a
//     bearer token on gRPC bus connections.
//
// The package answers "who sent this" only. Deciding what a sender may do
// is left to the pillars.
package security
