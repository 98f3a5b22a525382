// Package wire writes HTTP/1.1 GET requests and parses their responses
// directly on a raw connection.
//
// Responses are framed the way the pub/sub service sends them: a status
// line, header lines up to a blank line, then an optional body delimited by
// Content-Length, chunked encoding or, failing both, a single line.
// Framing errors wrap ErrMalformed.
package wire
