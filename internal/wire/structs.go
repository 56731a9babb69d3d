package wire

// GetMemSizeReq carries no payload; presence of the tag is the whole
// request.
type GetMemSizeReq struct{}

// GetMemSizeResp reports the fabric's configured per-region replica size.
// See SPEC_FULL.md section 4.4.2 for why this, rather than a per-channel
// or aggregate figure, is what TotalSize means here.
type GetMemSizeResp struct {
	Status    Status
	TotalSize uint64
}

type WriteReq struct {
	ChannelID uint64
	Addr      uint64
	Size      uint8
	Value     uint64
}

type WriteResp struct {
	Status Status
}

type ReadReq struct {
	ChannelID uint64
	Addr      uint64
	Size      uint8
}

type ReadResp struct {
	Status Status
	Value  uint64
}

// ServiceIdentity is the shared payload shape of register, deregister, and
// request-channel requests: a fixed-width service name plus the sender's own
// instance id.
type ServiceIdentity struct {
	ServiceName [ServiceNameLen]byte
	InstanceID  [InstanceIDLen]byte
}

type RegisterServiceReq struct{ ServiceIdentity }
type RegisterServiceResp struct{ Status Status }

type DeregisterServiceReq struct{ ServiceIdentity }
type DeregisterServiceResp struct{ Status Status }

type RequestChannelReq struct{ ServiceIdentity }

type RequestChannelResp struct {
	Status    Status
	ChannelID uint64
	Offset    uint64
	Size      uint64
}

// NewClientNotify is pushed to the server chosen for a channel, out of band
// from any response the server itself solicited.
type NewClientNotify struct {
	ChannelID        uint64
	Offset           uint64
	Size             uint64
	ServiceName      [ServiceNameLen]byte
	ClientInstanceID [InstanceIDLen]byte
}

type ReleaseChannelReq struct {
	ChannelID uint64
}

type ReleaseChannelResp struct {
	Status Status
}

// CloseChannelNotify is pushed to whichever peer did not request the
// release (or, on disconnect, to the surviving peer of a torn-down channel).
type CloseChannelNotify struct {
	ChannelID uint64
}

type ErrorResp struct {
	Status Status
}

type AdminFailReplicaReq struct {
	DeviceIndex uint8
}

type AdminFailReplicaResp struct {
	Status Status
}

// ServiceNameField truncates and NUL-pads s into a fixed-width field.
func ServiceNameField(s string) [ServiceNameLen]byte {
	var out [ServiceNameLen]byte
	n := copy(out[:], s)
	_ = n
	return out
}

// InstanceIDField truncates and NUL-pads s into a fixed-width field.
func InstanceIDField(s string) [InstanceIDLen]byte {
	var out [InstanceIDLen]byte
	copy(out[:], s)
	return out
}

// StringField trims trailing NUL padding from a fixed-width field.
func StringField(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
