package localserver

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"
)

func TestListenAndAccept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.sock")
	accepted := make(chan net.Conn, 1)
	srv := New(log.NewNopLogger(), func(c net.Conn) {
		accepted <- c
	})
	require.NoError(t, srv.Listen(path))
	defer srv.Close()

	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case c := <-accepted:
		c.Close()
	case <-time.After(5 * time.Second):
		t.Fatal("no connection accepted")
	}

	require.NoError(t, srv.Close())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Close")
	}
}

func TestListenTwiceFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.sock")
	srv := New(log.NewNopLogger(), func(net.Conn) {})
	require.NoError(t, srv.Listen(path))
	defer srv.Close()
	require.Error(t, srv.Listen(path))
}

func TestTakeover(t *testing.T) {
	path := filepath.Join(t.TempDir(), "takeover.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	uln := ln.(*net.UnixListener)
	// Keep the socket file alive after handing the descriptor over.
	uln.SetUnlinkOnClose(false)
	f, err := uln.File()
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	accepted := make(chan net.Conn, 1)
	srv := New(log.NewNopLogger(), func(c net.Conn) {
		accepted <- c
	})
	require.NoError(t, srv.Takeover(int(f.Fd())))
	// Takeover owns the descriptor now; this only drops our handle.
	_ = f.Close()
	defer srv.Close()

	go srv.Serve()

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case c := <-accepted:
		c.Close()
	case <-time.After(5 * time.Second):
		t.Fatal("no connection accepted on adopted socket")
	}
}

func TestTakeoverRejectsNonSocket(t *testing.T) {
	srv := New(log.NewNopLogger(), func(net.Conn) {})
	// fd 0 in tests is not a socket.
	require.Error(t, srv.Takeover(0))
}

func TestParseTakeover(t *testing.T) {
	sockets, err := ParseTakeover("")
	require.NoError(t, err)
	require.Empty(t, sockets)

	sockets, err = ParseTakeover("/run/a.sock:3;/run/b.sock:4")
	require.NoError(t, err)
	require.Equal(t, map[string]int{"/run/a.sock": 3, "/run/b.sock": 4}, sockets)

	_, err = ParseTakeover("nonsense")
	require.Error(t, err)
	_, err = ParseTakeover("/run/a.sock:notanumber")
	require.Error(t, err)
}
