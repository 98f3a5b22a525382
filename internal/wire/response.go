package wire

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"strings"
)

// MaxBodySize caps the body a single response may declare.
const MaxBodySize = 16 << 20

// ErrMalformed marks a response that does not follow the expected framing.
// Callers treat it exactly like a dropped connection.
var ErrMalformed = errors.New("wire: malformed response")

// Source is what responses are parsed from. *socket.Transport satisfies it.
type Source interface {
	ReadLine() (string, error)
	Reader() *bufio.Reader
}

// Response is a parsed status line and header block.
type Response struct {
	Proto      string
	StatusCode int
	Status     string
	Header     textproto.MIMEHeader
	// Lines counts every line consumed, terminator included.
	Lines int
}

// ReadHeader consumes lines up to and including the blank line ending the
// header block. A blank line is CRLF or a bare LF. The status line is parsed
// leniently: a first line that is not "HTTP/x.y code reason" leaves
// StatusCode at zero and is otherwise ignored.
func ReadHeader(src Source) (*Response, error) {
	resp := &Response{Header: make(textproto.MIMEHeader)}

	for {
		line, err := src.ReadLine()
		if err != nil {
			return nil, err
		}
		resp.Lines++

		if line == "\r\n" || line == "\n" {
			return resp, nil
		}
		if !strings.HasSuffix(line, "\n") {
			return nil, fmt.Errorf("%w: header line without terminator", ErrMalformed)
		}

		text := strings.TrimRight(line, "\r\n")
		if resp.Lines == 1 && strings.HasPrefix(text, "HTTP/") {
			resp.parseStatus(text)
			continue
		}

		name, value, ok := strings.Cut(text, ":")
		if !ok {
			continue
		}
		resp.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
}

func (r *Response) parseStatus(text string) {
	proto, rest, _ := strings.Cut(text, " ")
	r.Proto = proto
	r.Status = strings.TrimSpace(rest)

	code, _, _ := strings.Cut(r.Status, " ")
	if n, err := strconv.Atoi(code); err == nil {
		r.StatusCode = n
	}
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Chunked reports whether the body uses chunked transfer encoding.
func (r *Response) Chunked() bool {
	return strings.EqualFold(r.Header.Get("Transfer-Encoding"), "chunked")
}

// ContentLength returns the declared body length, or -1 when absent.
func (r *Response) ContentLength() (int, error) {
	value := r.Header.Get("Content-Length")
	if value == "" {
		return -1, nil
	}

	n, err := strconv.Atoi(value)
	if err != nil || n < 0 || n > MaxBodySize {
		return 0, fmt.Errorf("%w: content-length %q", ErrMalformed, value)
	}
	return n, nil
}

// HasBody reports whether the headers frame a body explicitly.
func (r *Response) HasBody() bool {
	n, err := r.ContentLength()
	return r.Chunked() || (err == nil && n > 0)
}

// ReadBody reads the body that follows the header block: chunked when
// declared, Content-Length bytes when declared, and a single line
// otherwise.
func (r *Response) ReadBody(src Source) ([]byte, error) {
	if r.Chunked() {
		return readChunked(src)
	}

	n, err := r.ContentLength()
	if err != nil {
		return nil, err
	}
	if n >= 0 {
		body := make([]byte, n)
		if _, err := io.ReadFull(src.Reader(), body); err != nil {
			return nil, err
		}
		return body, nil
	}

	line, err := src.ReadLine()
	if err != nil {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

// Discard drains an explicitly framed body so the next response starts at
// a boundary. Without framing headers nothing is read.
func (r *Response) Discard(src Source) error {
	if !r.HasBody() {
		if _, err := r.ContentLength(); err != nil {
			return err
		}
		return nil
	}
	_, err := r.ReadBody(src)
	return err
}

func readChunked(src Source) ([]byte, error) {
	var body []byte

	for {
		line, err := src.ReadLine()
		if err != nil {
			return nil, err
		}

		sizeText, _, _ := strings.Cut(strings.TrimRight(line, "\r\n"), ";")
		size, err := strconv.ParseInt(strings.TrimSpace(sizeText), 16, 64)
		if err != nil || size < 0 || int64(len(body))+size > MaxBodySize {
			return nil, fmt.Errorf("%w: chunk size %q", ErrMalformed, sizeText)
		}

		if size == 0 {
			// trailer section ends with a blank line
			for {
				trailer, err := src.ReadLine()
				if err != nil {
					return nil, err
				}
				if trailer == "\r\n" || trailer == "\n" {
					return body, nil
				}
			}
		}

		chunk := make([]byte, size)
		if _, err := io.ReadFull(src.Reader(), chunk); err != nil {
			return nil, err
		}
		body = append(body, chunk...)

		crlf, err := src.ReadLine()
		if err != nil {
			return nil, err
		}
		if crlf != "\r\n" && crlf != "\n" {
			return nil, fmt.Errorf("%w: missing chunk terminator", ErrMalformed)
		}
	}
}

// BufferedSource adapts a bufio.Reader to Source.
type BufferedSource struct {
	r *bufio.Reader
}

// NewBufferedSource wraps r.
func NewBufferedSource(r io.Reader) *BufferedSource {
	if br, ok := r.(*bufio.Reader); ok {
		return &BufferedSource{r: br}
	}
	return &BufferedSource{r: bufio.NewReader(r)}
}

// ReadLine implements Source. End of stream with nothing read is io.EOF.
func (s *BufferedSource) ReadLine() (string, error) {
	line, err := s.r.ReadString('\n')
	if len(line) == 0 {
		if err == nil {
			err = io.EOF
		}
		return "", err
	}
	return line, nil
}

// Reader implements Source.
func (s *BufferedSource) Reader() *bufio.Reader {
	return s.r
}
