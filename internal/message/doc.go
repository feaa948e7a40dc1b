// Package message defines the envelope used on the message bus.
//
// Every message carries a Kind (identify request/response, operation request,
// progress and final response), the OperationType it belongs to, and the
// CorrelationID binding it to one conversation. Operation specific data lives
// in Body as JSON, using the typed bodies in bodies.go:
//
//	msg := message.New(message.KindRequest, message.OperationPutFile, id)
//	err := msg.SetBody(message.PutFileRequest{FileAddress: url, FileSize: n})
//
// Pillars answer with NewResponse, which copies correlation and collection
// fields and addresses the reply to the request's ReplyTo destination.
//
// Encode and Decode serialize the whole envelope for network transports.
// Validation of message contents beyond the envelope is left to the
// receiving side.
package message
