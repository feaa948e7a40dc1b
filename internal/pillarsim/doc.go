// Package pillarsim provides a simulated pillar for demos and end-to-end
// tests.
//
// A Pillar subscribes to the collection destination (identify broadcasts)
// and to its own queue (operation requests) on any bus.Transport. It keeps
// file metadata in memory and answers:
//
//   - identify requests positively when it can perform the operation: a put
//     needs the file to be absent; get, delete and replace need it present.
//   - operation requests with one progress response followed by a final
//     response carrying the operation's result body.
//
// Delay, Silent, FailWith and CorruptChecksums exercise the timeout and
// failure paths of the client. No file content is transferred; checksums
// come from the request or are derived deterministically.
package pillarsim
