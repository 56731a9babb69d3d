package fabricmanager

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/cxlfabric/fabricmanager/internal/wire"
)

// Error represents a structured fabric manager error with context and a
// wire-level status code attached.
type Error struct {
	Op        string      // operation that failed (e.g. "REQUEST_CHANNEL")
	ChannelID uint64      // channel id, if applicable (0 if not)
	Device    int         // device index, if applicable (-1 if not)
	Code      wire.Status // the status returned to the peer, if any
	Errno     syscall.Errno
	Msg       string
	Inner     error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.ChannelID != 0 {
		parts = append(parts, fmt.Sprintf("channel=%d", e.ChannelID))
	}
	if e.Device >= 0 {
		parts = append(parts, fmt.Sprintf("device=%d", e.Device))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = e.Code.String()
	}
	if len(parts) > 0 {
		return fmt.Sprintf("fabricmanager: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("fabricmanager: %s", msg)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// NewError creates a structured error carrying only a status code and
// message.
func NewError(op string, code wire.Status, msg string) *Error {
	return &Error{Op: op, Device: -1, Code: code, Msg: msg}
}

// NewChannelError creates a structured error scoped to a channel.
func NewChannelError(op string, channelID uint64, code wire.Status, msg string) *Error {
	return &Error{Op: op, ChannelID: channelID, Device: -1, Code: code, Msg: msg}
}

// NewDeviceError creates a structured error scoped to a backing device.
func NewDeviceError(op string, deviceIndex int, code wire.Status, msg string) *Error {
	return &Error{Op: op, Device: deviceIndex, Code: code, Msg: msg}
}

// WrapError wraps inner with fabric context, preserving its status code if
// it already carries one.
func WrapError(op string, code wire.Status, inner error) *Error {
	if inner == nil {
		return nil
	}
	if fe, ok := inner.(*Error); ok {
		return &Error{Op: op, ChannelID: fe.ChannelID, Device: fe.Device, Code: fe.Code, Errno: fe.Errno, Msg: fe.Msg, Inner: fe.Inner}
	}
	var errno syscall.Errno
	if errors.As(inner, &errno) {
		return &Error{Op: op, Device: -1, Code: code, Errno: errno, Msg: errno.Error(), Inner: inner}
	}
	return &Error{Op: op, Device: -1, Code: code, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is a *Error carrying the given status code.
func IsCode(err error, code wire.Status) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}
