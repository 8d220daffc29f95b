// Package errors provides standardized error handling for the EEG bridge.
//
// # Classification
//
// Errors fall into three classes:
//
//   - Transient: the serial device vanished, a socket timed out, NATS is
//     reconnecting. The component logs, marks itself unhealthy and carries on.
//   - Invalid: malformed configuration or input. Configuration errors stop
//     startup; malformed serial lines never get this far, the parser skips them.
//   - Fatal: nothing useful can happen any more (disk full on the recorder).
//
// # Wrapping
//
// All wrapping follows the format
//
//	"component.method: action failed: %w"
//
// via Wrap, WrapTransient, WrapInvalid and WrapFatal:
//
//	if err := port.Close(); err != nil {
//	    return errors.WrapTransient(err, "serial-input", "Stop", "close device")
//	}
//
// errors.Is and errors.As work through every wrapper, so callers can test for
// the sentinel values (ErrDeviceUnavailable, ErrInvalidConfig, ...) directly.
package errors
