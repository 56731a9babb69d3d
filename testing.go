package fabricmanager

import (
	"net"
	"sync"
)

// MockLogger records every line logged through it instead of writing
// anywhere, for tests that want to assert on log content without wiring up
// a real logrus sink.
type MockLogger struct {
	mu    sync.Mutex
	lines []string
}

func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (l *MockLogger) record(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, msg)
}

func (l *MockLogger) Debug(msg string, args ...any)             { l.record(msg) }
func (l *MockLogger) Info(msg string, args ...any)              { l.record(msg) }
func (l *MockLogger) Warn(msg string, args ...any)              { l.record(msg) }
func (l *MockLogger) Error(msg string, args ...any)             { l.record(msg) }
func (l *MockLogger) Printf(format string, args ...interface{}) { l.record(format) }
func (l *MockLogger) Debugf(format string, args ...interface{}) { l.record(format) }

// Lines returns every message recorded so far.
func (l *MockLogger) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}

// newMockConnPair returns a connected pair of in-memory net.Conns standing
// in for the two ends of a Unix socket, for tests exercising request/response
// framing without touching the filesystem. Unlike a real *net.UnixConn,
// neither end has a usable SyscallConn, so this pair cannot exercise the
// MSG_PEEK tag-peek path directly; tests of that path use short-lived
// /tmp Unix sockets instead (see the end-to-end tests alongside eventloop.go).
func newMockConnPair() (net.Conn, net.Conn) {
	return net.Pipe()
}
