package bridge

import (
	"bytes"
	"testing"
)

func TestRequestEncode(t *testing.T) {
	req := Request{Command: CmdPortOut, Payload: []byte{0xFA, 0x00}}
	got := req.Encode()

	want := []byte{
		0x5A,       // start
		CmdPortOut, // command
		0x02, 0x00, // length
		0xFA, 0x00, // payload
		CmdPortOut ^ 0x02 ^ 0xFA, // checksum over cmd..payload
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode() = % X, want % X", got, want)
	}
}

func TestRequestEncode_EmptyPayload(t *testing.T) {
	req := Request{Command: CmdSync}
	got := req.Encode()
	want := []byte{0x5A, CmdSync, 0x00, 0x00, CmdSync}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode() = % X, want % X", got, want)
	}
}

// buildResponse assembles a valid response frame for tests.
func buildResponse(cmd, status byte, payload []byte) []byte {
	n := len(payload)
	frame := make([]byte, 6+n)
	frame[0] = 0xA5
	frame[1] = cmd
	frame[2] = status
	frame[3] = byte(n)
	frame[4] = byte(n >> 8)
	copy(frame[5:], payload)
	frame[5+n] = xorSum(frame[1 : 5+n])
	return frame
}

func TestDecodeResponse(t *testing.T) {
	frame := buildResponse(CmdPortIn, StatusOK, []byte{0x42})
	resp, err := DecodeResponse(frame)
	if err != nil {
		t.Fatalf("DecodeResponse() error: %v", err)
	}
	if resp.Command != CmdPortIn {
		t.Errorf("Command = 0x%02X, want 0x%02X", resp.Command, CmdPortIn)
	}
	if !resp.Ok() {
		t.Errorf("Ok() = false, want true")
	}
	if !bytes.Equal(resp.Payload, []byte{0x42}) {
		t.Errorf("Payload = % X, want 42", resp.Payload)
	}
}

func TestDecodeResponse_Errors(t *testing.T) {
	good := buildResponse(CmdSync, StatusOK, nil)

	badChecksum := append([]byte(nil), good...)
	badChecksum[len(badChecksum)-1] ^= 0xFF

	badStart := append([]byte(nil), good...)
	badStart[0] = 0x5A

	badLength := append([]byte(nil), good...)
	badLength[3] = 0x05

	tests := []struct {
		name  string
		frame []byte
	}{
		{"too short", good[:4]},
		{"bad checksum", badChecksum},
		{"bad start byte", badStart},
		{"length mismatch", badLength},
	}
	for _, tc := range tests {
		if _, err := DecodeResponse(tc.frame); err == nil {
			t.Errorf("%s: DecodeResponse() succeeded, want error", tc.name)
		}
	}
}

func TestDecodeResponse_StatusError(t *testing.T) {
	frame := buildResponse(CmdMemWrite, StatusBadAddr, nil)
	resp, err := DecodeResponse(frame)
	if err != nil {
		t.Fatalf("DecodeResponse() error: %v", err)
	}
	if resp.Ok() {
		t.Error("Ok() = true for error status")
	}
	if msg := StatusMessage(resp.Status); msg != "address out of range" {
		t.Errorf("StatusMessage() = %q, want %q", msg, "address out of range")
	}
}

func TestExtractFrame(t *testing.T) {
	frame := buildResponse(CmdPortIn, StatusOK, []byte{0x42})

	t.Run("exact frame", func(t *testing.T) {
		got, rest := ExtractFrame(frame)
		if !bytes.Equal(got, frame) {
			t.Errorf("frame = % X, want % X", got, frame)
		}
		if len(rest) != 0 {
			t.Errorf("remaining = % X, want empty", rest)
		}
	})

	t.Run("leading garbage", func(t *testing.T) {
		buf := append([]byte{0x00, 0x13, 0x37}, frame...)
		got, _ := ExtractFrame(buf)
		if !bytes.Equal(got, frame) {
			t.Errorf("frame = % X, want % X", got, frame)
		}
	})

	t.Run("trailing data kept", func(t *testing.T) {
		buf := append(append([]byte(nil), frame...), 0xAB, 0xCD)
		got, rest := ExtractFrame(buf)
		if !bytes.Equal(got, frame) {
			t.Errorf("frame = % X, want % X", got, frame)
		}
		if !bytes.Equal(rest, []byte{0xAB, 0xCD}) {
			t.Errorf("remaining = % X, want AB CD", rest)
		}
	})

	t.Run("incomplete", func(t *testing.T) {
		got, _ := ExtractFrame(frame[:5])
		if got != nil {
			t.Errorf("frame = % X for incomplete input, want nil", got)
		}
	})

	t.Run("no start byte", func(t *testing.T) {
		got, _ := ExtractFrame([]byte{0x01, 0x02, 0x03})
		if got != nil {
			t.Errorf("frame = % X for garbage input, want nil", got)
		}
	})
}

func TestRequestResponseRoundTrip(t *testing.T) {
	// A request's encoded bytes survive framing; the stub-side format is
	// symmetric enough that checksum and length logic match.
	payload := appendAddr24(nil, 0x01F400)
	payload = append(payload, 0x00, 0x02)
	req := Request{Command: CmdMemRead, Payload: payload}
	frame := req.Encode()

	if frame[0] != 0x5A {
		t.Errorf("start byte = 0x%02X, want 0x5A", frame[0])
	}
	n := int(frame[2]) | int(frame[3])<<8
	if n != len(payload) {
		t.Errorf("encoded length = %d, want %d", n, len(payload))
	}
	if got := xorSum(frame[1 : len(frame)-1]); got != frame[len(frame)-1] {
		t.Errorf("checksum = 0x%02X, want 0x%02X", frame[len(frame)-1], got)
	}
}
