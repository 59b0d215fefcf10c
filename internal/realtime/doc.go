// Package realtime implements the server side of the live update layer:
// the connection registry, the room table, the heartbeat monitor, the event
// dispatcher, and the websocket gateway that ties them to clients.
//
// The registry and room table are the only shared mutable state. Both live
// behind a single mutex inside Registry, so the bidirectional membership
// invariant (a connection lists a room if and only if the room lists the
// connection) is enforced in one place. Each connection gets a dedicated
// writer goroutine with a bounded queue; publishing never blocks on a slow
// peer, it drops the peer instead.
package realtime
