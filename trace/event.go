package trace

import (
	"time"

	"github.com/google/uuid"
)

// Event is a single bus transaction. CBOR encoding uses integer keys.
type Event struct {
	// Session identifies the driver instance that issued the transaction.
	Session string `cbor:"1,keyasint"`
	// Seq increases by one for every transaction within a session.
	Seq uint64 `cbor:"2,keyasint"`
	// Time is when the transaction completed.
	Time time.Time `cbor:"3,keyasint"`
	// Opcode is the command byte, parameter included.
	Opcode byte `cbor:"4,keyasint"`
	// Write holds the command payload, opcode excluded.
	Write []byte `cbor:"5,keyasint,omitempty"`
	// Read holds the response bytes, status echo excluded.
	Read []byte `cbor:"6,keyasint,omitempty"`
	// Status is the status register echo clocked out with the opcode.
	Status byte `cbor:"7,keyasint"`
	// Err is the transfer error message, if any.
	Err string `cbor:"8,keyasint,omitempty"`
}

// NewSession returns a new random session identifier.
func NewSession() string { return uuid.NewString() }
