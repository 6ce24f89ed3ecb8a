package detect

import (
	"fmt"

	"github.com/agon-tools/mos-flash/internal/bridge"
	"github.com/agon-tools/mos-flash/internal/serial"
)

// Result represents a port with a responding bridge stub.
type Result struct {
	Port string
}

// DetectDevice scans the available serial ports for a bridge stub and
// returns the first port that answers a sync.
func DetectDevice(baudRate int) (*Result, error) {
	ports, err := serial.ListPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to list ports: %w", err)
	}

	if len(ports) == 0 {
		return nil, fmt.Errorf("no serial ports found")
	}

	var lastErr error
	for _, portName := range ports {
		result, err := tryPort(portName, baudRate)
		if err != nil {
			lastErr = err
			continue
		}
		return result, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("no bridge stub found (last error: %w)", lastErr)
	}
	return nil, fmt.Errorf("no bridge stub found")
}

// DetectOnPort checks a specific port for a bridge stub.
func DetectOnPort(portName string, baudRate int) (*Result, error) {
	return tryPort(portName, baudRate)
}

// ListDevices scans all ports and returns every one with a responding
// stub.
func ListDevices(baudRate int) ([]Result, error) {
	ports, err := serial.ListPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to list ports: %w", err)
	}

	var results []Result
	for _, portName := range ports {
		result, err := tryPort(portName, baudRate)
		if err == nil {
			results = append(results, *result)
		}
	}

	return results, nil
}

func tryPort(portName string, baudRate int) (*Result, error) {
	port, err := serial.Open(portName, baudRate)
	if err != nil {
		return nil, err
	}
	defer port.Close()

	if err := bridge.New(port).Sync(); err != nil {
		return nil, err
	}

	return &Result{Port: portName}, nil
}
