// Package localserver implements a Unix-domain-socket server: it owns a
// listening socket, accepts connections, and hands each one to a caller
// supplied callback. The socket can either be created here or adopted from a
// supervisor that already opened it and passed the descriptor down.
package localserver

import (
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// TakeoverEnv is the environment variable a supervisor uses to pass open
// sockets down: semicolon-separated "path:fd" entries.
const TakeoverEnv = "ELFSCOPE_SOCKET_TAKEOVER"

type Server struct {
	logger   log.Logger
	onAccept func(net.Conn)

	mu        sync.Mutex
	ln        net.Listener
	listening bool
	closed    bool
}

// New creates a Server that calls onAccept for every accepted connection.
// The callback runs on the accept goroutine; long-running handlers should
// spawn their own.
func New(logger log.Logger, onAccept func(net.Conn)) *Server {
	if onAccept == nil {
		panic("onAccept is nil")
	}
	return &Server{logger: logger, onAccept: onAccept}
}

// Listen binds a fresh socket at path. The socket is only accessible to the
// owning user.
func (s *Server) Listen(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listening {
		return errors.New("already listening")
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", path)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		ln.Close()
		return errors.Wrapf(err, "chmod %s", path)
	}
	s.ln = ln
	s.listening = true
	level.Debug(s.logger).Log("msg", "listening", "path", path)
	return nil
}

// Takeover adopts an already-open, externally passed listening socket
// instead of creating one. The descriptor must really be a socket; the
// close-on-exec flag is set here because the supervisor had to leave it
// clear to pass the descriptor across exec.
func (s *Server) Takeover(fd int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listening {
		return errors.New("already listening")
	}
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		return errors.Wrapf(err, "fstat fd %d", fd)
	}
	if stat.Mode&unix.S_IFMT != unix.S_IFSOCK {
		return errors.Errorf("fd %d is not a socket", fd)
	}
	unix.CloseOnExec(fd)

	f := os.NewFile(uintptr(fd), "takeover-socket")
	ln, err := net.FileListener(f)
	// FileListener dups the descriptor; the original is ours to close.
	f.Close()
	if err != nil {
		return errors.Wrapf(err, "adopt fd %d", fd)
	}
	s.ln = ln
	s.listening = true
	level.Debug(s.logger).Log("msg", "took over listening socket", "fd", fd)
	return nil
}

// TakeoverFromEnv adopts the socket registered for path in the takeover
// environment variable.
func (s *Server) TakeoverFromEnv(path string) error {
	sockets, err := ParseTakeover(os.Getenv(TakeoverEnv))
	if err != nil {
		return err
	}
	fd, ok := sockets[path]
	if !ok {
		return errors.Errorf("no socket passed for %s", path)
	}
	return s.Takeover(fd)
}

// ParseTakeover parses the supervisor hand-off format: semicolon-separated
// "path:fd" entries. An empty value yields an empty map.
func ParseTakeover(value string) (map[string]int, error) {
	sockets := map[string]int{}
	if value == "" {
		return sockets, nil
	}
	for _, entry := range strings.Split(value, ";") {
		i := strings.LastIndexByte(entry, ':')
		if i <= 0 {
			return nil, errors.Errorf("malformed takeover entry %q", entry)
		}
		fd, err := strconv.Atoi(entry[i+1:])
		if err != nil || fd < 0 {
			return nil, errors.Errorf("malformed takeover fd in %q", entry)
		}
		sockets[entry[:i]] = fd
	}
	return sockets, nil
}

// Accept waits for the next connection.
func (s *Server) Accept() (net.Conn, error) {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return nil, errors.New("not listening")
	}
	return ln.Accept()
}

// Serve accepts connections until Close, invoking the callback for each.
// Returns nil after Close.
func (s *Server) Serve() error {
	for {
		conn, err := s.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return errors.Wrap(err, "accept")
		}
		level.Debug(s.logger).Log("msg", "accepted connection", "remote", conn.RemoteAddr())
		s.onAccept(conn)
	}
}

// Addr returns the listening address, or nil before Listen/Takeover.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close shuts the listening socket down and unblocks Serve.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	s.closed = true
	return s.ln.Close()
}
