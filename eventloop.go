package fabricmanager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/cxlfabric/fabricmanager/internal/bufpool"
	"github.com/cxlfabric/fabricmanager/internal/constants"
	"github.com/cxlfabric/fabricmanager/internal/logging"
	"github.com/cxlfabric/fabricmanager/internal/wire"
)

// connHandle is the core-state goroutine's view of one live connection:
// enough to push an out-of-band notify to it later. conns is only ever
// touched from inside Manager.call, so no lock guards it here.
type connHandle struct {
	conn          *net.UnixConn
	correlationID string
	logger        *logging.Logger
}

// Run accepts connections on both fabric sockets and serves them until ctx
// is cancelled, at which point it stops listening, waits for in-flight
// connections to finish (bounded by ShutdownDrainTimeout), and releases
// every backing device.
func (m *Manager) Run(ctx context.Context) error {
	clientLn, err := net.Listen("unix", m.cfg.ClientSocketPath)
	if err != nil {
		return fmt.Errorf("fabricmanager: listen client socket: %w", err)
	}
	adminLn, err := net.Listen("unix", m.cfg.AdminSocketPath)
	if err != nil {
		clientLn.Close()
		return fmt.Errorf("fabricmanager: listen admin socket: %w", err)
	}

	go m.runCore()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.acceptClientLoop(clientLn.(*net.UnixListener), &wg)
	}()
	go func() {
		defer wg.Done()
		m.acceptAdminLoop(adminLn.(*net.UnixListener), &wg)
	}()

	<-ctx.Done()
	clientLn.Close()
	adminLn.Close()

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(constants.ShutdownDrainTimeout):
		m.logger.Warn("shutdown drain timeout exceeded, forcing exit")
	}

	return m.Close()
}

func (m *Manager) acceptClientLoop(ln *net.UnixListener, wg *sync.WaitGroup) {
	for {
		conn, err := ln.AcceptUnix()
		if err != nil {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.serveClientConn(conn)
		}()
	}
}

func (m *Manager) acceptAdminLoop(ln *net.UnixListener, wg *sync.WaitGroup) {
	limiter := rate.NewLimiter(rate.Limit(constants.AdminAcceptRateLimit), constants.AdminAcceptBurst)
	for {
		if err := limiter.WaitN(context.Background(), 1); err != nil {
			return
		}
		conn, err := ln.AcceptUnix()
		if err != nil {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.serveAdminConn(conn)
		}()
	}
}

func (m *Manager) serveClientConn(conn *net.UnixConn) {
	fd, ok := connFD(conn)
	if !ok {
		conn.Close()
		return
	}
	correlationID := uuid.NewString()
	connLogger := m.logger.WithFields(map[string]any{"fd": fd, "correlation_id": correlationID})
	handle := &connHandle{conn: conn, correlationID: correlationID, logger: connLogger}
	m.call(func() { m.conns[fd] = handle })

	connLogger.Debug("client connected")
	for m.serveOneFrame(conn, fd, connLogger) {
	}

	outcome := disconnectOutcome{}
	m.call(func() {
		delete(m.conns, fd)
		outcome = m.handleDisconnect(fd)
	})
	for _, n := range outcome.notifies {
		m.pushNotify(n.fd, n.tag, n.notify)
	}
	conn.Close()
	connLogger.Debug("client disconnected")
}

func (m *Manager) serveAdminConn(conn *net.UnixConn) {
	defer conn.Close()
	fd, ok := connFD(conn)
	if !ok {
		return
	}
	connLogger := m.logger.WithFields(map[string]any{"fd": fd, "admin": true})
	m.serveOneFrame(conn, fd, connLogger)
}

// serveOneFrame reads and dispatches exactly one framed request. It returns
// false when the connection should stop being served (clean disconnect or
// an unrecoverable framing error).
func (m *Manager) serveOneFrame(conn *net.UnixConn, fd int, log *logging.Logger) bool {
	tag, gotData, err := peekTag(conn)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			log.Debugf("peek error: %v", err)
		}
		return false
	}
	if !gotData {
		return false
	}

	bodyLen, known := tag.BodyLen()
	if !known {
		log.Warnf("unknown tag 0x%02x, closing connection", byte(tag))
		m.sendFrame(conn, wire.TagErrorResp, &wire.ErrorResp{Status: wire.StatusInvalidReq})
		return false
	}

	frame := bufpool.Get(1 + bodyLen)
	defer bufpool.Put(frame)
	if _, err := io.ReadFull(conn, frame); err != nil {
		log.Debugf("short read for tag %s: %v", tag, err)
		return false
	}
	body := frame[1:]

	m.dispatch(tag, body, fd, conn, log)
	return true
}

func (m *Manager) dispatch(tag wire.Tag, body []byte, fd int, conn *net.UnixConn, log *logging.Logger) {
	switch tag {
	case wire.TagGetMemSizeReq:
		var resp *wire.GetMemSizeResp
		m.call(func() { resp = m.handleGetMemSize() })
		m.sendFrame(conn, wire.TagGetMemSizeResp, resp)

	case wire.TagWriteReq:
		var req wire.WriteReq
		if err := wire.Unmarshal(tag, body, &req); err != nil {
			m.sendFrame(conn, wire.TagWriteResp, &wire.WriteResp{Status: wire.StatusInvalidReq})
			return
		}
		var resp *wire.WriteResp
		m.call(func() { resp = m.handleWrite(&req) })
		m.sendFrame(conn, wire.TagWriteResp, resp)

	case wire.TagReadReq:
		var req wire.ReadReq
		if err := wire.Unmarshal(tag, body, &req); err != nil {
			m.sendFrame(conn, wire.TagReadResp, &wire.ReadResp{Status: wire.StatusInvalidReq})
			return
		}
		var resp *wire.ReadResp
		m.call(func() { resp = m.handleRead(&req) })
		m.sendFrame(conn, wire.TagReadResp, resp)

	case wire.TagRegisterServiceReq:
		var req wire.RegisterServiceReq
		if err := wire.Unmarshal(tag, body, &req); err != nil {
			m.sendFrame(conn, wire.TagRegisterServiceResp, &wire.RegisterServiceResp{Status: wire.StatusInvalidReq})
			return
		}
		var resp *wire.RegisterServiceResp
		m.call(func() { resp = m.handleRegisterService(&req, fd) })
		m.sendFrame(conn, wire.TagRegisterServiceResp, resp)

	case wire.TagDeregisterServiceReq:
		var req wire.DeregisterServiceReq
		if err := wire.Unmarshal(tag, body, &req); err != nil {
			m.sendFrame(conn, wire.TagDeregisterServiceResp, &wire.DeregisterServiceResp{Status: wire.StatusInvalidReq})
			return
		}
		var resp *wire.DeregisterServiceResp
		m.call(func() { resp = m.handleDeregisterService(&req, fd) })
		m.sendFrame(conn, wire.TagDeregisterServiceResp, resp)

	case wire.TagRequestChannelReq:
		var req wire.RequestChannelReq
		if err := wire.Unmarshal(tag, body, &req); err != nil {
			m.sendFrame(conn, wire.TagRequestChannelResp, &wire.RequestChannelResp{Status: wire.StatusInvalidReq})
			return
		}
		var outcome requestChannelOutcome
		start := time.Now()
		m.call(func() { outcome = m.handleRequestChannel(&req, fd) })
		if outcome.allocatedOK {
			if !m.pushNotify(outcome.notifyFD, wire.TagNewClientNotify, outcome.notify) {
				// Notify write failed right after the liveness check passed:
				// unwind exactly as if the server had already been gone.
				m.call(func() { m.rollbackChannelByID(outcome.channelID) })
				outcome.resp = &wire.RequestChannelResp{Status: wire.StatusChannelAllocFailed}
			}
		}
		m.observer.ObserveChannelRequest(outcome.resp.Status == wire.StatusOK, uint64(time.Since(start).Nanoseconds()))
		m.sendFrame(conn, wire.TagRequestChannelResp, outcome.resp)

	case wire.TagReleaseChannelReq:
		var req wire.ReleaseChannelReq
		if err := wire.Unmarshal(tag, body, &req); err != nil {
			m.sendFrame(conn, wire.TagReleaseChannelResp, &wire.ReleaseChannelResp{Status: wire.StatusInvalidReq})
			return
		}
		var outcome releaseChannelOutcome
		m.call(func() { outcome = m.handleReleaseChannel(&req, fd) })
		m.sendFrame(conn, wire.TagReleaseChannelResp, outcome.resp)
		if outcome.shouldSend {
			m.pushNotify(outcome.notifyFD, wire.TagCloseChannelNotify, outcome.notify)
		}

	case wire.TagAdminFailReplicaReq:
		var req wire.AdminFailReplicaReq
		if err := wire.Unmarshal(tag, body, &req); err != nil {
			m.sendFrame(conn, wire.TagAdminFailReplicaResp, &wire.AdminFailReplicaResp{Status: wire.StatusInvalidReq})
			return
		}
		var resp *wire.AdminFailReplicaResp
		m.call(func() { resp = m.handleAdminFailReplica(&req) })
		m.sendFrame(conn, wire.TagAdminFailReplicaResp, resp)

	default:
		log.Warnf("unhandled known tag %s", tag)
		m.sendFrame(conn, wire.TagErrorResp, &wire.ErrorResp{Status: wire.StatusInvalidReq})
	}
}

// pushNotify marshals and best-effort writes an out-of-band notify to fd's
// connection, if it is still registered. Returns false if the connection is
// gone or the write failed; failures here are logged and ignored by the
// caller's normal path, matching the "does not stall on a dead peer" rule in
// SPEC_FULL.md sections 4.4.3 and 4.4.7.
func (m *Manager) pushNotify(fd int, tag wire.Tag, v interface{}) bool {
	var handle *connHandle
	m.call(func() { handle = m.conns[fd] })
	if handle == nil {
		return false
	}
	if err := m.sendFrame(handle.conn, tag, v); err != nil {
		handle.logger.Warnf("failed to push %s: %v", tag, err)
		return false
	}
	return true
}

func (m *Manager) sendFrame(conn *net.UnixConn, tag wire.Tag, v interface{}) error {
	frame := wire.Marshal(tag, v)
	_, err := conn.Write(frame)
	return err
}

// peekTag blocks until the connection's next tag byte is available without
// consuming it (MSG_PEEK), so a subsequent full-frame read starts from the
// same byte. Returns gotData=false on a clean zero-byte disconnect.
func peekTag(conn *net.UnixConn) (tag wire.Tag, gotData bool, err error) {
	raw, rawErr := conn.SyscallConn()
	if rawErr != nil {
		return 0, false, rawErr
	}

	var buf [1]byte
	var n int
	var sysErr error
	ctrlErr := raw.Read(func(fd uintptr) bool {
		n, _, sysErr = unix.Recvfrom(int(fd), buf[:], unix.MSG_PEEK)
		return sysErr != unix.EAGAIN
	})
	if ctrlErr != nil {
		return 0, false, ctrlErr
	}
	if sysErr != nil {
		return 0, false, sysErr
	}
	if n == 0 {
		return 0, false, nil
	}
	return wire.Tag(buf[0]), true, nil
}

// connFD extracts the raw file descriptor backing conn, used as the stable
// key for the per-connection indices in the registry and channel table.
func connFD(conn *net.UnixConn) (int, bool) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, false
	}
	var fd int
	ctrlErr := raw.Control(func(f uintptr) { fd = int(f) })
	if ctrlErr != nil {
		return 0, false
	}
	return fd, true
}
