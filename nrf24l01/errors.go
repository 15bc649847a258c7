package nrf24l01

import (
	"errors"
	"strconv"
)

var (
	// ErrInvalidMode is returned by operations the current mode forbids,
	// such as opening a pipe while the radio is off.
	ErrInvalidMode = errors.New("nrf24l01: operation not allowed in current mode")
	// ErrPayloadTooLarge is returned for payloads over 32 bytes. No bus
	// activity takes place.
	ErrPayloadTooLarge = errors.New("nrf24l01: payload exceeds 32 bytes")
	// ErrPacketTimeout is returned when a transmission exhausts the
	// automatic retransmit count without being acknowledged. The TX FIFO
	// has been flushed by the time it is returned.
	ErrPacketTimeout = errors.New("nrf24l01: packet not acknowledged")
	// ErrInvalidPayloadSize is returned when the chip reports a dynamic
	// payload width over 32 bytes, which means the RX FIFO is corrupted.
	// The RX FIFO has been flushed by the time it is returned.
	ErrInvalidPayloadSize = errors.New("nrf24l01: invalid dynamic payload width")
	ErrPipeClosed         = errors.New("nrf24l01: pipe closed")
	ErrPipeInUse          = errors.New("nrf24l01: pipe already open")
	ErrBadPipe            = errors.New("nrf24l01: pipe number must be in 0..5")
	ErrBadAddress         = errors.New("nrf24l01: address too long for pipe")
	ErrNotDetected        = errors.New("nrf24l01: device not detected")
	ErrSubscriptionClosed = errors.New("nrf24l01: subscription closed")
	errCommandTooLong     = errors.New("nrf24l01: command data exceeds 32 bytes")
)

// UnknownFieldError is returned for a register field mnemonic not present
// in the register map.
type UnknownFieldError struct {
	Name string
}

func (e *UnknownFieldError) Error() string {
	return "nrf24l01: unknown register field " + strconv.Quote(e.Name)
}

// BusError wraps a failed bus transfer.
type BusError struct {
	Opcode Opcode
	Err    error
}

func (e *BusError) Error() string {
	return "nrf24l01: bus transfer for " + e.Opcode.String() + " failed: " + e.Err.Error()
}

func (e *BusError) Unwrap() error { return e.Err }
