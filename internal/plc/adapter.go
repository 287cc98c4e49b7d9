// Package plc implements the protocol-agnostic PLC trigger state
// machine: the adapter interface vendor protocol stacks implement,
// address formatting per protocol dialect, the state machine itself,
// and a simulated in-memory adapter for tests and local runs.
package plc

import (
	"context"
	"fmt"

	"github.com/your-org/inspectline/internal/config"
)

// ReadTimeout and WriteTimeout are the protocol-level timeouts
// adapter implementers are expected to apply.
const (
	ReadTimeout  = 1000 // milliseconds, documented for adapter implementers
	WriteTimeout = 1000
)

// Adapter is the PLC collaborator interface. The controller never
// speaks a protocol dialect itself; vendor adapters (Mitsubishi MC,
// Modbus-TCP, Siemens S7, Omron FINS) implement this interface
// externally.
type Adapter interface {
	Connect(ctx context.Context) error
	Disconnect()
	ReadInt16(ctx context.Context, address string) (value int16, ok bool, err error)
	WriteInt16(ctx context.Context, address string, value int16) (ok bool, err error)
}

// ErrTransport marks a PLC read/write transport failure.
var ErrTransport = fmt.Errorf("plc transport error")

// FormatAddress renders a register number into the protocol's native
// address string: register 555 becomes "D555" for MitsubishiMC,
// "555" for ModbusTcp, "DB1.555" for SiemensS7, "D555" for OmronFins.
func FormatAddress(protocol config.PLCProtocol, register int) (string, error) {
	switch protocol {
	case config.ProtocolMitsubishiMcAscii, config.ProtocolMitsubishiMcBinary:
		return fmt.Sprintf("D%d", register), nil
	case config.ProtocolModbusTcp:
		return fmt.Sprintf("%d", register), nil
	case config.ProtocolSiemensS7:
		return fmt.Sprintf("DB1.%d", register), nil
	case config.ProtocolOmronFins:
		return fmt.Sprintf("D%d", register), nil
	default:
		return "", fmt.Errorf("unknown plc protocol %q", protocol)
	}
}
