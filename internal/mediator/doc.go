// Package mediator connects the transport to conversations.
//
// A client subscribes one Mediator to its reply destination. Every
// inbound message carries the correlation id of the conversation it
// belongs to; the mediator looks that id up and hands the message over.
// Routing is the only thing it does with a message: it never inspects
// kinds or response codes.
//
// A background sweep removes conversations that have finished and fails
// conversations that have been running longer than
// Config.ConversationTimeout, which catches conversations whose phase
// timeouts are disabled.
package mediator
