// Package bus provides the in-process message transport.
//
// Destinations are plain names: a collection destination for identify
// broadcasts, and one queue per pillar and per client for addressed
// messages. The Bus delivers every message on a fresh goroutine, so
// listeners see the same concurrency a networked transport produces:
// deliveries for one destination may run in parallel and in any order.
//
// The grpcbus subpackage exposes the same contract over the network.
package bus
