package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripWriteReq(t *testing.T) {
	in := &WriteReq{ChannelID: 7, Addr: 128, Size: 8, Value: 0xDEADBEEFCAFEBABE}
	frame := Marshal(TagWriteReq, in)
	if Tag(frame[0]) != TagWriteReq {
		t.Fatalf("tag = %d, want %d", frame[0], TagWriteReq)
	}

	var out WriteReq
	if err := Unmarshal(TagWriteReq, frame[1:], &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	require.Equal(t, *in, out)
}

func TestRoundTripReadResp(t *testing.T) {
	in := &ReadResp{Status: StatusOK, Value: 0x1122334455667788}
	frame := Marshal(TagReadResp, in)

	var out ReadResp
	require.NoError(t, Unmarshal(TagReadResp, frame[1:], &out))
	require.Equal(t, *in, out)
}

func TestRoundTripRequestChannel(t *testing.T) {
	req := &RequestChannelReq{ServiceIdentity{
		ServiceName: ServiceNameField("svc"),
		InstanceID:  InstanceIDField("C1"),
	}}
	frame := Marshal(TagRequestChannelReq, req)

	var out RequestChannelReq
	require.NoError(t, Unmarshal(TagRequestChannelReq, frame[1:], &out))
	require.Equal(t, "svc", StringField(out.ServiceName[:]))
	require.Equal(t, "C1", StringField(out.InstanceID[:]))

	resp := &RequestChannelResp{Status: StatusOK, ChannelID: 42, Offset: 0, Size: 256 << 20}
	respFrame := Marshal(TagRequestChannelResp, resp)
	var respOut RequestChannelResp
	require.NoError(t, Unmarshal(TagRequestChannelResp, respFrame[1:], &respOut))
	require.Equal(t, *resp, respOut)
}

func TestRoundTripNewClientNotify(t *testing.T) {
	in := &NewClientNotify{
		ChannelID:        9,
		Offset:           0,
		Size:             256 << 20,
		ServiceName:      ServiceNameField("svc"),
		ClientInstanceID: InstanceIDField("C1"),
	}
	frame := Marshal(TagNewClientNotify, in)
	var out NewClientNotify
	require.NoError(t, Unmarshal(TagNewClientNotify, frame[1:], &out))
	require.Equal(t, *in, out)
}

func TestUnmarshalRejectsShortBuffer(t *testing.T) {
	var out WriteReq
	err := Unmarshal(TagWriteReq, make([]byte, 3), &out)
	if err != ErrInsufficientData {
		t.Fatalf("err = %v, want ErrInsufficientData", err)
	}
}

func TestServiceNameFieldTruncatesOverflow(t *testing.T) {
	long := "this-service-name-is-definitely-longer-than-32-bytes"
	field := ServiceNameField(long)
	if len(field) != ServiceNameLen {
		t.Fatalf("field length = %d, want %d", len(field), ServiceNameLen)
	}
	if StringField(field[:]) != long[:ServiceNameLen] {
		t.Fatalf("truncated value = %q, want %q", StringField(field[:]), long[:ServiceNameLen])
	}
}

func TestTagBodyLenUnknown(t *testing.T) {
	if _, ok := Tag(0xFF).BodyLen(); ok {
		t.Fatalf("expected unknown tag to report ok=false")
	}
}
