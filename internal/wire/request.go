package wire

import (
	"net"
	"net/url"
	"strings"
)

// HeaderField is one request header line.
type HeaderField struct {
	Name  string
	Value string
}

// Request is an HTTP/1.1 GET written by hand onto a raw connection.
type Request struct {
	Path   string
	Query  url.Values
	Host   string
	Header []HeaderField
}

// String renders the request including the terminating blank line.
func (r Request) String() string {
	var b strings.Builder

	b.WriteString("GET ")
	b.WriteString(r.Path)
	if len(r.Query) > 0 {
		b.WriteByte('?')
		b.WriteString(r.Query.Encode())
	}
	b.WriteString(" HTTP/1.1\r\n")

	b.WriteString("Host: ")
	b.WriteString(HostName(r.Host))
	b.WriteString("\r\n")

	for _, field := range r.Header {
		b.WriteString(field.Name)
		b.WriteString(": ")
		b.WriteString(field.Value)
		b.WriteString("\r\n")
	}

	b.WriteString("\r\n")
	return b.String()
}

// Bytes is String as a byte slice.
func (r Request) Bytes() []byte {
	return []byte(r.String())
}

// HostName strips the port from a "host:port" address.
func HostName(address string) string {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return address
	}
	return host
}

// EscapeSegment percent-encodes s for use as a single path segment. Only
// unreserved characters are left as they are; spaces become %20.
func EscapeSegment(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// JoinPath builds "/a/b/c" from segments that are already escaped.
func JoinPath(segments ...string) string {
	return "/" + strings.Join(segments, "/")
}
