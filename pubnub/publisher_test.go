package pubnub

import (
	"bufio"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glimte/kafka-bridge/internal/reliability"
)

func TestPublisher(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	t.Run("Sends the publish request line", func(t *testing.T) {
		srv := serve(t, func(_ int, conn net.Conn, r *bufio.Reader, srv *fakeServer) {
			for {
				if _, ok := srv.readRequest(r); !ok {
					return
				}
				conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Type: text/javascript\r\n\r\n"))
			}
		})

		pub, err := NewPublisher(ctx, srv.addr(), "pub-key", "sub-key")
		require.NoError(t, err)
		defer pub.Close()

		result, err := pub.Publish(ctx, "root.t1", `"hello"`)
		require.NoError(t, err)

		assert.Equal(t, 200, result.StatusCode)
		assert.Equal(t, []string{"GET /publish/pub-key/sub-key/0/root.t1/0/%22hello%22 HTTP/1.1"}, srv.requests())
	})

	t.Run("Reads exactly the header block and leaves the next response", func(t *testing.T) {
		srv := serve(t, func(_ int, conn net.Conn, r *bufio.Reader, srv *fakeServer) {
			if _, ok := srv.readRequest(r); !ok {
				return
			}
			// four header lines, terminator, then a whole second response
			conn.Write([]byte("HTTP/1.1 200 OK\r\nA: 1\r\nB: 2\r\nC: 3\r\n\r\nHTTP/1.1 200 OK\r\nD: 4\r\n\r\n"))
			srv.readRequest(r)
			<-ctx.Done()
		})

		pub, err := NewPublisher(ctx, srv.addr(), "p", "s")
		require.NoError(t, err)
		defer pub.Close()

		first, err := pub.Publish(ctx, "ch", "1")
		require.NoError(t, err)
		assert.Equal(t, 5, first.Lines)

		second, err := pub.Publish(ctx, "ch", "2")
		require.NoError(t, err)
		assert.Equal(t, 3, second.Lines)
	})

	t.Run("Drains a Content-Length body", func(t *testing.T) {
		srv := serve(t, func(_ int, conn net.Conn, r *bufio.Reader, srv *fakeServer) {
			for {
				if _, ok := srv.readRequest(r); !ok {
					return
				}
				conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 30\r\n\r\n[1,\"Sent\",\"14375189629170609\"]"))
			}
		})

		pub, err := NewPublisher(ctx, srv.addr(), "p", "s")
		require.NoError(t, err)
		defer pub.Close()

		for i := 0; i < 3; i++ {
			result, err := pub.Publish(ctx, "ch", "x")
			require.NoError(t, err)
			assert.Equal(t, 3, result.Lines)
		}
	})

	t.Run("Non-success status is accepted unless strict", func(t *testing.T) {
		srv := serve(t, func(_ int, conn net.Conn, r *bufio.Reader, srv *fakeServer) {
			for {
				if _, ok := srv.readRequest(r); !ok {
					return
				}
				conn.Write([]byte("HTTP/1.1 403 Forbidden\r\nContent-Length: 2\r\n\r\n{}"))
			}
		})

		lenient, err := NewPublisher(ctx, srv.addr(), "p", "s")
		require.NoError(t, err)
		defer lenient.Close()

		result, err := lenient.Publish(ctx, "ch", "x")
		require.NoError(t, err)
		assert.Equal(t, 403, result.StatusCode)

		strict, err := NewPublisher(ctx, srv.addr(), "p", "s", WithStrictStatus(true))
		require.NoError(t, err)
		defer strict.Close()

		_, err = strict.Publish(ctx, "ch", "x")
		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, 403, statusErr.StatusCode)
	})

	t.Run("Failure reconnects before returning", func(t *testing.T) {
		srv := serve(t, func(index int, conn net.Conn, r *bufio.Reader, srv *fakeServer) {
			if _, ok := srv.readRequest(r); !ok {
				return
			}
			if index == 0 {
				conn.Write([]byte("HTTP/1.1 200 OK\r\n"))
				return
			}
			conn.Write([]byte("HTTP/1.1 200 OK\r\n\r\n"))
			<-ctx.Done()
		})

		pub, err := NewPublisher(ctx, srv.addr(), "p", "s",
			WithRetryPolicy(reliability.Forever(10*time.Millisecond)))
		require.NoError(t, err)
		defer pub.Close()

		_, err = pub.Publish(ctx, "ch", "lost")
		var pubErr *Error
		require.True(t, errors.As(err, &pubErr))
		assert.Equal(t, "publish", pubErr.Op)
		assert.True(t, pub.Connected())

		_, err = pub.Publish(ctx, "ch", "lost")
		require.NoError(t, err)
		assert.Len(t, srv.requests(), 2)
	})

	t.Run("Failure reconnects without waiting a backoff", func(t *testing.T) {
		srv := serve(t, func(index int, conn net.Conn, r *bufio.Reader, srv *fakeServer) {
			if _, ok := srv.readRequest(r); !ok {
				return
			}
			if index == 0 {
				return
			}
			<-ctx.Done()
		})

		pub, err := NewPublisher(ctx, srv.addr(), "p", "s",
			WithRetryPolicy(reliability.Forever(5*time.Second)))
		require.NoError(t, err)
		defer pub.Close()

		start := time.Now()
		_, err = pub.Publish(ctx, "ch", "lost")
		require.Error(t, err)
		assert.Less(t, time.Since(start), 2*time.Second)
		assert.True(t, pub.Connected())
	})

	t.Run("Construction failure wraps ErrConnect", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := ln.Addr().String()
		ln.Close()

		_, err = NewPublisher(ctx, addr, "p", "s",
			WithRetryPolicy(reliability.NewFixedDelay(time.Millisecond, 1)))
		assert.ErrorIs(t, err, ErrConnect)
	})

	t.Run("Closed publisher refuses", func(t *testing.T) {
		srv := serve(t, func(_ int, _ net.Conn, r *bufio.Reader, srv *fakeServer) {
			srv.readRequest(r)
		})

		pub, err := NewPublisher(ctx, srv.addr(), "p", "s")
		require.NoError(t, err)
		require.NoError(t, pub.Close())

		_, err = pub.Publish(ctx, "ch", "x")
		assert.ErrorIs(t, err, ErrClosed)
	})
}
