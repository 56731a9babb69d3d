package fabricmanager

import (
	"errors"
	"testing"

	"github.com/cxlfabric/fabricmanager/internal/wire"
)

func TestStructuredError(t *testing.T) {
	err := NewError("REQUEST_CHANNEL", wire.StatusServiceNotFound, "no such service")

	if err.Op != "REQUEST_CHANNEL" {
		t.Errorf("Op = %s, want REQUEST_CHANNEL", err.Op)
	}
	if err.Code != wire.StatusServiceNotFound {
		t.Errorf("Code = %s, want SERVICE_NOT_FOUND", err.Code)
	}

	expected := "fabricmanager: no such service (op=REQUEST_CHANNEL)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestChannelError(t *testing.T) {
	err := NewChannelError("RELEASE_CHANNEL", 7, wire.StatusInvalidReq, "unknown channel")
	if err.ChannelID != 7 {
		t.Errorf("ChannelID = %d, want 7", err.ChannelID)
	}
	if IsCode(err, wire.StatusInvalidReq) != true {
		t.Errorf("expected IsCode(StatusInvalidReq) to be true")
	}
	if IsCode(err, wire.StatusIO) {
		t.Errorf("expected IsCode(StatusIO) to be false")
	}
}

func TestWrapErrorPreservesCode(t *testing.T) {
	inner := NewDeviceError("ALLOCATE", 1, wire.StatusChannelAllocFailed, "no free block")
	wrapped := WrapError("REQUEST_CHANNEL", wire.StatusErrGeneric, inner)
	if wrapped.Code != wire.StatusChannelAllocFailed {
		t.Errorf("wrapped.Code = %s, want CHANNEL_ALLOC_FAILED (preserved from inner)", wrapped.Code)
	}
	if !errors.Is(wrapped, inner) {
		t.Errorf("expected errors.Is(wrapped, inner) given matching codes")
	}
}

func TestWrapErrorNilIsNil(t *testing.T) {
	if WrapError("op", wire.StatusIO, nil) != nil {
		t.Errorf("expected WrapError(nil) to return nil")
	}
}
