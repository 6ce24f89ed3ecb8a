package bridge

import (
	"fmt"
	"time"

	"github.com/agon-tools/mos-flash/internal/serial"
)

const (
	// maxChunk is the largest memory payload per frame, sized to the
	// stub's receive buffer.
	maxChunk = 512

	defaultTimeout = 2 * time.Second
	syncAttempts   = 5
)

// Client talks to the debug bridge stub over a serial port. It
// implements the ez80.Bus operations: I/O register access, bulk memory
// access, and interrupt control.
type Client struct {
	port    *serial.Port
	timeout time.Duration
}

// New creates a Client on an open serial port.
func New(port *serial.Port) *Client {
	return &Client{port: port, timeout: defaultTimeout}
}

// Sync establishes communication with the stub, retrying a few times to
// ride out line garbage from a fresh connection.
func (c *Client) Sync() error {
	var lastErr error
	for attempt := 0; attempt < syncAttempts; attempt++ {
		c.port.Flush()
		if _, err := c.call(CmdSync, nil, 500*time.Millisecond); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("no bridge stub responding on %s: %w", c.port.PortName(), lastErr)
}

// In reads an I/O register.
func (c *Client) In(port byte) (byte, error) {
	payload, err := c.call(CmdPortIn, []byte{port}, c.timeout)
	if err != nil {
		return 0, err
	}
	if len(payload) != 1 {
		return 0, fmt.Errorf("port read returned %d bytes, want 1", len(payload))
	}
	return payload[0], nil
}

// Out writes an I/O register.
func (c *Client) Out(port byte, value byte) error {
	_, err := c.call(CmdPortOut, []byte{port, value}, c.timeout)
	return err
}

// ReadMem reads n bytes of target memory starting at addr.
func (c *Client) ReadMem(addr uint32, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for n > 0 {
		chunk := n
		if chunk > maxChunk {
			chunk = maxChunk
		}
		payload := appendAddr24(nil, addr)
		payload = append(payload, byte(chunk), byte(chunk>>8))
		data, err := c.call(CmdMemRead, payload, c.timeout)
		if err != nil {
			return nil, err
		}
		if len(data) != chunk {
			return nil, fmt.Errorf("memory read at 0x%06X returned %d bytes, want %d", addr, len(data), chunk)
		}
		out = append(out, data...)
		addr += uint32(chunk)
		n -= chunk
	}
	return out, nil
}

// WriteMem writes data into target memory starting at addr.
func (c *Client) WriteMem(addr uint32, data []byte) error {
	for len(data) > 0 {
		chunk := len(data)
		if chunk > maxChunk {
			chunk = maxChunk
		}
		payload := appendAddr24(nil, addr)
		payload = append(payload, data[:chunk]...)
		if _, err := c.call(CmdMemWrite, payload, c.timeout); err != nil {
			return err
		}
		addr += uint32(chunk)
		data = data[chunk:]
	}
	return nil
}

// InterruptsOff has the stub mask interrupts on the target.
func (c *Client) InterruptsOff() error {
	_, err := c.call(CmdIrqOff, nil, c.timeout)
	return err
}

// InterruptsOn has the stub unmask interrupts.
func (c *Client) InterruptsOn() error {
	_, err := c.call(CmdIrqOn, nil, c.timeout)
	return err
}

// Reset asks the stub to reset the target. The stub does not reply; the
// serial line goes dead as the target restarts.
func (c *Client) Reset() error {
	req := Request{Command: CmdReset}
	if _, err := c.port.Write(req.Encode()); err != nil {
		return err
	}
	return nil
}

// call sends one command frame and waits for its response, returning
// the response payload.
func (c *Client) call(cmd byte, payload []byte, timeout time.Duration) ([]byte, error) {
	req := Request{Command: cmd, Payload: payload}
	if _, err := c.port.Write(req.Encode()); err != nil {
		return nil, fmt.Errorf("writing command 0x%02X: %w", cmd, err)
	}

	deadline := time.Now().Add(timeout)
	var buffer []byte
	for time.Now().Before(deadline) {
		chunk := make([]byte, 256)
		n, err := c.port.ReadWithTimeout(chunk, 100*time.Millisecond)
		if n > 0 {
			buffer = append(buffer, chunk[:n]...)
		}
		if err != nil && n == 0 {
			continue
		}

		frame, _ := ExtractFrame(buffer)
		if frame == nil {
			continue
		}
		resp, err := DecodeResponse(frame)
		if err != nil {
			return nil, err
		}
		if resp.Command != cmd {
			return nil, fmt.Errorf("response for command 0x%02X while waiting for 0x%02X", resp.Command, cmd)
		}
		if !resp.Ok() {
			return nil, fmt.Errorf("command 0x%02X failed: %s", cmd, StatusMessage(resp.Status))
		}
		return resp.Payload, nil
	}

	return nil, fmt.Errorf("timeout waiting for response to command 0x%02X", cmd)
}

func appendAddr24(p []byte, addr uint32) []byte {
	return append(p, byte(addr), byte(addr>>8), byte(addr>>16))
}
