package protocol

// Message IDs. Commands flow host to device, responses device to host.
const (
	CmdSPIConfig   uint32 = 1
	CmdSPITransfer uint32 = 2
	CmdSPISend     uint32 = 3
	CmdSPIClose    uint32 = 4
	CmdSPIStatus   uint32 = 5

	RespSPITransfer uint32 = 16
	RespSPIStatus   uint32 = 17
	RespError       uint32 = 18
)

// Message describes the argument layout of a message ID. %c and %u are
// VLQ integers, %*s a length-prefixed byte string.
type Message struct {
	ID     uint32
	Name   string
	Format string
}

// Messages lists every message of the bridge
var Messages = []Message{
	{CmdSPIConfig, "spi_config", "module=%c role=%c mode=%c order=%c rate=%u"},
	{CmdSPITransfer, "spi_transfer", "module=%c data=%*s"},
	{CmdSPISend, "spi_send", "module=%c data=%*s"},
	{CmdSPIClose, "spi_close", "module=%c"},
	{CmdSPIStatus, "spi_status", ""},
	{RespSPITransfer, "spi_transfer_response", "module=%c data=%*s"},
	{RespSPIStatus, "spi_status_response", "active=%c overrun=%c"},
	{RespError, "error_response", "code=%c"},
}

// Lookup returns the message with the given ID
func Lookup(id uint32) (Message, bool) {
	for _, m := range Messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// String renders the message the way it appears in a dictionary
func (m Message) String() string {
	if m.Format == "" {
		return m.Name
	}
	return m.Name + " " + m.Format
}

// ErrorCode is the argument of error_response
type ErrorCode uint8

const (
	CodeOK ErrorCode = iota
	CodeUnknownCommand
	CodeMalformed
	CodeInvalidModule
	CodeModuleInUse
	CodeInvalidConfig
	CodeNotConfigured
	CodeCallbacksActive
	CodeNoPlatform
	CodeTooLong
	CodeInternal
	CodeSlaveRole
)

func (c ErrorCode) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeUnknownCommand:
		return "unknown command"
	case CodeMalformed:
		return "malformed arguments"
	case CodeInvalidModule:
		return "invalid module"
	case CodeModuleInUse:
		return "module in use"
	case CodeInvalidConfig:
		return "invalid configuration"
	case CodeNotConfigured:
		return "module not configured"
	case CodeCallbacksActive:
		return "interrupt callbacks active"
	case CodeNoPlatform:
		return "no platform"
	case CodeTooLong:
		return "data too long"
	case CodeSlaveRole:
		return "module is a slave"
	default:
		return "internal error"
	}
}

// Error makes a non-zero code usable as an error value on the host
func (c ErrorCode) Error() string {
	return "device error: " + c.String()
}
