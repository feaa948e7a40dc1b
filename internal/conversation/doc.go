// Package conversation implements the protocol engine every collection
// operation runs on.
//
// # Overview
//
// A Conversation coordinates one client operation against a set of
// independently operated pillars ("contributors") over an asynchronous,
// unordered, at-most-once message channel. It has two phases:
//
//  1. Identifying: broadcast an identify request, collect identify
//     responses through a Selector until it is finished or the identify
//     timeout fires.
//  2. PerformingOperation: send the real request to every selected
//     contributor and collect final responses through a ResponseStatus
//     until all have answered or the operation timeout fires.
//
// Finished is absorbing: anything that arrives afterwards is logged and
// dropped.
//
// # Timeouts
//
// The two phases treat a timeout differently:
//
//   - Identify timeout with some contributors identified: an
//     identify-timeout event, then the operation proceeds on the subset.
//   - Identify timeout with nobody identified: no-component-found, then
//     failed. No request is sent.
//   - Operation timeout: component-failed for each silent contributor,
//     then failed. Partial success is never reported.
//
// Timers are scheduled through a Scheduler and tagged with a phase
// generation. A timer that fires after its phase ended is ignored.
//
// # Concurrency
//
// Each conversation runs one goroutine that drains its inbox. Transport
// deliveries (HandleMessage), timer callbacks and Fail all post to the
// inbox, so the state, the selector and the response status are only ever
// touched by that goroutine. Different conversations share nothing except
// the Sender.
//
// # Events
//
// The Monitor turns every transition into an event.OperationEvent, logs
// it and hands it to the optional event.Handler on the conversation
// goroutine. Exactly one of complete or failed is delivered, always last.
// A conversation that recorded contributor failures ends with failed
// unless Params.TolerateComponentFailures is set.
//
// # Operations
//
// The engine is generic. An Operation supplies the message bodies, the
// Selector policy and the evaluation of final responses:
//
//	conv, err := conversation.New(conversation.Params{
//	    Settings:  settings,
//	    Operation: operation.GetChecksums(operation.ChecksumsOptions{Algorithm: "SHA256"}),
//	    Sender:    bus,
//	    Handler:   handler,
//	})
//	conv.Start()
//	terminal, err := conversation.NewFlowController(conv).AwaitCompletion(time.Minute)
//
// Messages reach a conversation through a router keyed by correlation id;
// see the mediator package.
package conversation
