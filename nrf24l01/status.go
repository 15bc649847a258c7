package nrf24l01

import "strconv"

// RxPipeEmpty is the RX_P_NO value reported when the RX FIFO is empty.
// It is not a pipe number.
const RxPipeEmpty = 7

// Status is a decoded snapshot of the STATUS register.
type Status struct {
	// RxDataReady (RX_DR) is set when a payload arrived in the RX FIFO.
	RxDataReady bool
	// TxDataSent (TX_DS) is set when a packet was transmitted, and
	// acknowledged if auto acknowledgment is enabled.
	TxDataSent bool
	// MaxRetransmits (MAX_RT) is set when the retransmit count was
	// exhausted without acknowledgment.
	MaxRetransmits bool
	// RxPipe (RX_P_NO) is the pipe of the payload at the head of the RX
	// FIFO, or RxPipeEmpty.
	RxPipe uint8
	// TxFull (TX_FULL) is set when the TX FIFO is full.
	TxFull bool
}

// statusFields are read by the dispatcher on every interrupt.
var statusFields = []string{"RX_DR", "TX_DS", "MAX_RT", "RX_P_NO", "TX_FULL"}

func decodeStatus(b byte) Status {
	return Status{
		RxDataReady:    b&statusRX_DR != 0,
		TxDataSent:     b&statusTX_DS != 0,
		MaxRetransmits: b&statusMAX_RT != 0,
		RxPipe:         (b & statusRX_P_NO) >> 1,
		TxFull:         b&statusTX_FULL != 0,
	}
}

func statusFromFields(f Fields) Status {
	return Status{
		RxDataReady:    f["RX_DR"].Flag(),
		TxDataSent:     f["TX_DS"].Flag(),
		MaxRetransmits: f["MAX_RT"].Flag(),
		RxPipe:         f["RX_P_NO"].Uint8(),
		TxFull:         f["TX_FULL"].Flag(),
	}
}

// RxEmpty reports whether the RX FIFO is empty.
func (s Status) RxEmpty() bool { return s.RxPipe == RxPipeEmpty }

// pending reports whether the snapshot has anything to act upon.
func (s Status) pending() bool {
	return !s.RxEmpty() || s.TxDataSent || s.MaxRetransmits
}

func (s Status) String() string {
	str := "["
	if s.RxDataReady {
		str += "RxDR,"
	}
	if s.TxDataSent {
		str += "TxDS,"
	}
	if s.MaxRetransmits {
		str += "MaxRT,"
	}
	if s.TxFull {
		str += "TxFull,"
	}
	if s.RxEmpty() {
		return str + "RxPipe:empty]"
	}
	return str + "RxPipe:" + strconv.Itoa(int(s.RxPipe)) + "]"
}
