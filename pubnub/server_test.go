package pubnub

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeServer accepts connections and hands each one to handle
type fakeServer struct {
	ln   net.Listener
	mu   sync.Mutex
	reqs []string
}

func serve(t *testing.T, handle func(index int, conn net.Conn, r *bufio.Reader, srv *fakeServer)) *fakeServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &fakeServer{ln: ln}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for index := 0; ; index++ {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(index int) {
				defer conn.Close()
				handle(index, conn, bufio.NewReader(conn), srv)
			}(index)
		}
	}()

	return srv
}

func (s *fakeServer) addr() string {
	return s.ln.Addr().String()
}

// readRequest consumes one request and records its request line
func (s *fakeServer) readRequest(r *bufio.Reader) (string, bool) {
	first, err := r.ReadString('\n')
	if err != nil {
		return "", false
	}
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", false
		}
		if line == "\r\n" {
			break
		}
	}

	first = strings.TrimRight(first, "\r\n")
	s.mu.Lock()
	s.reqs = append(s.reqs, first)
	s.mu.Unlock()
	return first, true
}

func (s *fakeServer) requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.reqs...)
}
