// Package socket provides the reconnecting TCP transport underneath the
// pub/sub clients.
//
// A Transport blocks in Connect until the host accepts, waiting between
// attempts according to an injected reliability.RetryPolicy (one second,
// forever, by default) and logging a record with "client" and "host"
// attributes for every attempt. Reads and writes never retry: they return
// a *ReadError or *WriteError and leave the decision to Reconnect to the
// caller, which is expected to run the transport inside a loop that never
// gives up.
package socket
