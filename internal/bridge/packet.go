package bridge

import "fmt"

// Wire framing for the Agon debug bridge stub.
//
// Request:  [0x5A] [cmd] [len lo] [len hi] [payload...] [csum]
// Response: [0xA5] [cmd] [status] [len lo] [len hi] [payload...] [csum]
//
// csum is the XOR of every byte between the start byte and the checksum
// itself. Length-prefixed frames keep the stub's receive loop trivial;
// no byte stuffing is needed.

const (
	startRequest  = 0x5A
	startResponse = 0xA5
)

// Commands understood by the stub.
const (
	CmdSync     = 0x01
	CmdPortIn   = 0x02 // payload: port -> response: value
	CmdPortOut  = 0x03 // payload: port, value
	CmdMemRead  = 0x04 // payload: addr24, len16 -> response: data
	CmdMemWrite = 0x05 // payload: addr24, data
	CmdIrqOff   = 0x06
	CmdIrqOn    = 0x07
	CmdReset    = 0x08 // stub resets the target; no response
)

// Status codes returned by the stub.
const (
	StatusOK        = 0x00
	StatusBadCmd    = 0x01
	StatusBadLength = 0x02
	StatusBadAddr   = 0x03
)

// StatusMessage returns a human-readable message for a stub status code.
func StatusMessage(code byte) string {
	switch code {
	case StatusOK:
		return "ok"
	case StatusBadCmd:
		return "unknown command"
	case StatusBadLength:
		return "bad payload length"
	case StatusBadAddr:
		return "address out of range"
	default:
		return "unknown error"
	}
}

func xorSum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum ^= b
	}
	return sum
}

// Request is a command frame sent to the stub.
type Request struct {
	Command byte
	Payload []byte
}

// Encode serializes the request into a wire frame.
func (r *Request) Encode() []byte {
	n := len(r.Payload)
	pkt := make([]byte, 5+n)
	pkt[0] = startRequest
	pkt[1] = r.Command
	pkt[2] = byte(n)
	pkt[3] = byte(n >> 8)
	copy(pkt[4:], r.Payload)
	pkt[4+n] = xorSum(pkt[1 : 4+n])
	return pkt
}

// Response is a reply frame from the stub.
type Response struct {
	Command byte
	Status  byte
	Payload []byte
}

// Ok reports whether the stub accepted the command.
func (r *Response) Ok() bool {
	return r.Status == StatusOK
}

// DecodeResponse parses a complete response frame.
func DecodeResponse(frame []byte) (*Response, error) {
	if len(frame) < 6 {
		return nil, fmt.Errorf("response too short: %d bytes", len(frame))
	}
	if frame[0] != startResponse {
		return nil, fmt.Errorf("invalid start byte: 0x%02X", frame[0])
	}
	n := int(frame[3]) | int(frame[4])<<8
	if len(frame) != 6+n {
		return nil, fmt.Errorf("length mismatch: frame is %d bytes, header says %d payload bytes", len(frame), n)
	}
	if got, want := frame[5+n], xorSum(frame[1:5+n]); got != want {
		return nil, fmt.Errorf("checksum mismatch: got 0x%02X, want 0x%02X", got, want)
	}
	return &Response{
		Command: frame[1],
		Status:  frame[2],
		Payload: frame[5 : 5+n],
	}, nil
}

// ExtractFrame scans buf for a complete response frame. It returns the
// frame and the bytes after it, or nil if no complete frame has arrived
// yet. Garbage before the start byte is discarded.
func ExtractFrame(buf []byte) (frame, remaining []byte) {
	start := -1
	for i, b := range buf {
		if b == startResponse {
			start = i
			break
		}
	}
	if start == -1 {
		return nil, nil
	}
	buf = buf[start:]
	if len(buf) < 6 {
		return nil, buf
	}
	n := int(buf[3]) | int(buf[4])<<8
	total := 6 + n
	if len(buf) < total {
		return nil, buf
	}
	return buf[:total], buf[total:]
}
