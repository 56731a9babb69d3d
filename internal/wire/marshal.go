package wire

import "encoding/binary"

// MarshalError is returned by Unmarshal when a buffer is short or a tag is
// unrecognized.
type MarshalError string

func (e MarshalError) Error() string { return string(e) }

const (
	ErrInsufficientData MarshalError = "insufficient data for unmarshaling"
	ErrUnknownTag       MarshalError = "unknown message tag"
)

// Marshal encodes a message into a full frame: tag byte followed by the
// message's fixed body. v must be a pointer to one of the request/response/
// notify struct types defined in structs.go (GetMemSizeReq may also be passed
// by value); any other v panics.
func Marshal(tag Tag, v interface{}) []byte {
	switch val := v.(type) {
	case GetMemSizeReq, *GetMemSizeReq:
		return []byte{byte(tag)}
	case *GetMemSizeResp:
		buf := make([]byte, 1+lenGetMemSizeResp)
		buf[0] = byte(tag)
		buf[1] = byte(val.Status)
		binary.LittleEndian.PutUint64(buf[2:10], val.TotalSize)
		return buf
	case *WriteReq:
		buf := make([]byte, 1+lenWriteReq)
		buf[0] = byte(tag)
		binary.LittleEndian.PutUint64(buf[1:9], val.ChannelID)
		binary.LittleEndian.PutUint64(buf[9:17], val.Addr)
		buf[17] = val.Size
		binary.LittleEndian.PutUint64(buf[18:26], val.Value)
		return buf
	case *WriteResp:
		return []byte{byte(tag), byte(val.Status)}
	case *ReadReq:
		buf := make([]byte, 1+lenReadReq)
		buf[0] = byte(tag)
		binary.LittleEndian.PutUint64(buf[1:9], val.ChannelID)
		binary.LittleEndian.PutUint64(buf[9:17], val.Addr)
		buf[17] = val.Size
		return buf
	case *ReadResp:
		buf := make([]byte, 1+lenReadResp)
		buf[0] = byte(tag)
		buf[1] = byte(val.Status)
		binary.LittleEndian.PutUint64(buf[2:10], val.Value)
		return buf
	case *RegisterServiceReq:
		return marshalServiceIdentity(tag, val.ServiceIdentity)
	case *RegisterServiceResp:
		return []byte{byte(tag), byte(val.Status)}
	case *DeregisterServiceReq:
		return marshalServiceIdentity(tag, val.ServiceIdentity)
	case *DeregisterServiceResp:
		return []byte{byte(tag), byte(val.Status)}
	case *RequestChannelReq:
		return marshalServiceIdentity(tag, val.ServiceIdentity)
	case *RequestChannelResp:
		buf := make([]byte, 1+lenRequestChannelResp)
		buf[0] = byte(tag)
		buf[1] = byte(val.Status)
		binary.LittleEndian.PutUint64(buf[2:10], val.ChannelID)
		binary.LittleEndian.PutUint64(buf[10:18], val.Offset)
		binary.LittleEndian.PutUint64(buf[18:26], val.Size)
		return buf
	case *NewClientNotify:
		buf := make([]byte, 1+lenNewClientNotify)
		buf[0] = byte(tag)
		binary.LittleEndian.PutUint64(buf[1:9], val.ChannelID)
		binary.LittleEndian.PutUint64(buf[9:17], val.Offset)
		binary.LittleEndian.PutUint64(buf[17:25], val.Size)
		off := 25
		copy(buf[off:off+ServiceNameLen], val.ServiceName[:])
		off += ServiceNameLen
		copy(buf[off:off+InstanceIDLen], val.ClientInstanceID[:])
		return buf
	case *ReleaseChannelReq:
		buf := make([]byte, 1+lenChannelIDOnly)
		buf[0] = byte(tag)
		binary.LittleEndian.PutUint64(buf[1:9], val.ChannelID)
		return buf
	case *ReleaseChannelResp:
		return []byte{byte(tag), byte(val.Status)}
	case *CloseChannelNotify:
		buf := make([]byte, 1+lenChannelIDOnly)
		buf[0] = byte(tag)
		binary.LittleEndian.PutUint64(buf[1:9], val.ChannelID)
		return buf
	case *ErrorResp:
		return []byte{byte(tag), byte(val.Status)}
	case *AdminFailReplicaReq:
		return []byte{byte(tag), val.DeviceIndex}
	case *AdminFailReplicaResp:
		return []byte{byte(tag), byte(val.Status)}
	default:
		panic(ErrUnknownTag)
	}
}

func marshalServiceIdentity(tag Tag, ident ServiceIdentity) []byte {
	buf := make([]byte, 1+lenServiceIdentity)
	buf[0] = byte(tag)
	off := 1
	copy(buf[off:off+ServiceNameLen], ident.ServiceName[:])
	off += ServiceNameLen
	copy(buf[off:off+InstanceIDLen], ident.InstanceID[:])
	return buf
}

// Unmarshal decodes body (the frame with the tag byte already stripped) into
// v, a pointer to one of the struct types in structs.go, according to tag.
func Unmarshal(tag Tag, body []byte, v interface{}) error {
	want, ok := tag.BodyLen()
	if !ok {
		return ErrUnknownTag
	}
	if len(body) < want {
		return ErrInsufficientData
	}
	switch val := v.(type) {
	case *GetMemSizeReq:
		return nil
	case *GetMemSizeResp:
		val.Status = Status(body[0])
		val.TotalSize = binary.LittleEndian.Uint64(body[1:9])
		return nil
	case *WriteReq:
		val.ChannelID = binary.LittleEndian.Uint64(body[0:8])
		val.Addr = binary.LittleEndian.Uint64(body[8:16])
		val.Size = body[16]
		val.Value = binary.LittleEndian.Uint64(body[17:25])
		return nil
	case *WriteResp:
		val.Status = Status(body[0])
		return nil
	case *ReadReq:
		val.ChannelID = binary.LittleEndian.Uint64(body[0:8])
		val.Addr = binary.LittleEndian.Uint64(body[8:16])
		val.Size = body[16]
		return nil
	case *ReadResp:
		val.Status = Status(body[0])
		val.Value = binary.LittleEndian.Uint64(body[1:9])
		return nil
	case *RegisterServiceReq:
		val.ServiceIdentity = unmarshalServiceIdentity(body)
		return nil
	case *RegisterServiceResp:
		val.Status = Status(body[0])
		return nil
	case *DeregisterServiceReq:
		val.ServiceIdentity = unmarshalServiceIdentity(body)
		return nil
	case *DeregisterServiceResp:
		val.Status = Status(body[0])
		return nil
	case *RequestChannelReq:
		val.ServiceIdentity = unmarshalServiceIdentity(body)
		return nil
	case *RequestChannelResp:
		val.Status = Status(body[0])
		val.ChannelID = binary.LittleEndian.Uint64(body[1:9])
		val.Offset = binary.LittleEndian.Uint64(body[9:17])
		val.Size = binary.LittleEndian.Uint64(body[17:25])
		return nil
	case *NewClientNotify:
		val.ChannelID = binary.LittleEndian.Uint64(body[0:8])
		val.Offset = binary.LittleEndian.Uint64(body[8:16])
		val.Size = binary.LittleEndian.Uint64(body[16:24])
		off := 24
		copy(val.ServiceName[:], body[off:off+ServiceNameLen])
		off += ServiceNameLen
		copy(val.ClientInstanceID[:], body[off:off+InstanceIDLen])
		return nil
	case *ReleaseChannelReq:
		val.ChannelID = binary.LittleEndian.Uint64(body[0:8])
		return nil
	case *ReleaseChannelResp:
		val.Status = Status(body[0])
		return nil
	case *CloseChannelNotify:
		val.ChannelID = binary.LittleEndian.Uint64(body[0:8])
		return nil
	case *ErrorResp:
		val.Status = Status(body[0])
		return nil
	case *AdminFailReplicaReq:
		val.DeviceIndex = body[0]
		return nil
	case *AdminFailReplicaResp:
		val.Status = Status(body[0])
		return nil
	default:
		return ErrUnknownTag
	}
}

func unmarshalServiceIdentity(body []byte) ServiceIdentity {
	var ident ServiceIdentity
	off := 0
	copy(ident.ServiceName[:], body[off:off+ServiceNameLen])
	off += ServiceNameLen
	copy(ident.InstanceID[:], body[off:off+InstanceIDLen])
	return ident
}
