package nrf24l01

// Field locates a named bit field within the register file.
type Field struct {
	Name string
	// Addr is the register address.
	Addr uint8
	// Offset is the position of the field's least significant bit.
	Offset uint8
	// Width is the field size in bits. Fields wider than 8 bits (addresses)
	// occupy their whole register.
	Width uint8
}

// solo reports whether the field owns every bit of its register.
func (f Field) solo() bool { return f.Width >= 8 }

// size is the number of bytes transferred when reading the field's register.
func (f Field) size() int {
	if f.Width <= 8 {
		return 1
	}
	return (int(f.Width) + 7) / 8
}

func (f Field) mask() byte {
	if f.Width >= 8 {
		return 0xff
	}
	return byte(1<<f.Width-1) << f.Offset
}

// registerMap is the nRF24L01+ register file keyed by mnemonic.
var registerMap = func() map[string]Field {
	m := make(map[string]Field, len(fieldTable))
	for _, f := range fieldTable {
		m[f.Name] = f
	}
	return m
}()

// Lookup returns the field named by the datasheet mnemonic name.
func Lookup(name string) (Field, error) {
	f, ok := registerMap[name]
	if !ok {
		return Field{}, &UnknownFieldError{Name: name}
	}
	return f, nil
}

var fieldTable = []Field{
	// CONFIG
	{"MASK_RX_DR", regCONFIG, 6, 1},
	{"MASK_TX_DS", regCONFIG, 5, 1},
	{"MASK_MAX_RT", regCONFIG, 4, 1},
	{"EN_CRC", regCONFIG, 3, 1},
	{"CRCO", regCONFIG, 2, 1},
	{"PWR_UP", regCONFIG, 1, 1},
	{"PRIM_RX", regCONFIG, 0, 1},
	// EN_AA
	{"ENAA_P5", regEN_AA, 5, 1},
	{"ENAA_P4", regEN_AA, 4, 1},
	{"ENAA_P3", regEN_AA, 3, 1},
	{"ENAA_P2", regEN_AA, 2, 1},
	{"ENAA_P1", regEN_AA, 1, 1},
	{"ENAA_P0", regEN_AA, 0, 1},
	// EN_RXADDR
	{"ERX_P5", regEN_RXADDR, 5, 1},
	{"ERX_P4", regEN_RXADDR, 4, 1},
	{"ERX_P3", regEN_RXADDR, 3, 1},
	{"ERX_P2", regEN_RXADDR, 2, 1},
	{"ERX_P1", regEN_RXADDR, 1, 1},
	{"ERX_P0", regEN_RXADDR, 0, 1},
	// SETUP_AW
	{"AW", regSETUP_AW, 0, 2},
	// SETUP_RETR
	{"ARD", regSETUP_RETR, 4, 4},
	{"ARC", regSETUP_RETR, 0, 4},
	// RF_CH
	{"RF_CH", regRF_CH, 0, 7},
	// RF_SETUP
	{"CONT_WAVE", regRF_SETUP, 7, 1},
	{"RF_DR_LOW", regRF_SETUP, 5, 1},
	{"PLL_LOCK", regRF_SETUP, 4, 1},
	{"RF_DR_HIGH", regRF_SETUP, 3, 1},
	{"RF_PWR", regRF_SETUP, 1, 2},
	{"LNA_HCURR", regRF_SETUP, 0, 1},
	// STATUS
	{"RX_DR", regSTATUS, 6, 1},
	{"TX_DS", regSTATUS, 5, 1},
	{"MAX_RT", regSTATUS, 4, 1},
	{"RX_P_NO", regSTATUS, 1, 3},
	{"TX_FULL", regSTATUS, 0, 1},
	// OBSERVE_TX
	{"PLOS_CNT", regOBSERVE_TX, 4, 4},
	{"ARC_CNT", regOBSERVE_TX, 0, 4},
	// RPD
	{"RPD", regRPD, 0, 1},
	// Addresses. Pipes 2..5 only hold the least significant byte.
	{"RX_ADDR_P0", regRX_ADDR_P0, 0, 40},
	{"RX_ADDR_P1", regRX_ADDR_P1, 0, 40},
	{"RX_ADDR_P2", regRX_ADDR_P2, 0, 8},
	{"RX_ADDR_P3", regRX_ADDR_P3, 0, 8},
	{"RX_ADDR_P4", regRX_ADDR_P4, 0, 8},
	{"RX_ADDR_P5", regRX_ADDR_P5, 0, 8},
	{"TX_ADDR", regTX_ADDR, 0, 40},
	// RX_PW_Pn
	{"RX_PW_P0", regRX_PW_P0, 0, 6},
	{"RX_PW_P1", regRX_PW_P1, 0, 6},
	{"RX_PW_P2", regRX_PW_P2, 0, 6},
	{"RX_PW_P3", regRX_PW_P3, 0, 6},
	{"RX_PW_P4", regRX_PW_P4, 0, 6},
	{"RX_PW_P5", regRX_PW_P5, 0, 6},
	// FIFO_STATUS. TX_FULL is also mirrored in STATUS, which keeps the name.
	{"TX_REUSE", regFIFO_STATUS, 6, 1},
	{"FIFO_TX_FULL", regFIFO_STATUS, 5, 1},
	{"TX_EMPTY", regFIFO_STATUS, 4, 1},
	{"RX_FULL", regFIFO_STATUS, 1, 1},
	{"RX_EMPTY", regFIFO_STATUS, 0, 1},
	// DYNPD
	{"DPL_P5", regDYNPD, 5, 1},
	{"DPL_P4", regDYNPD, 4, 1},
	{"DPL_P3", regDYNPD, 3, 1},
	{"DPL_P2", regDYNPD, 2, 1},
	{"DPL_P1", regDYNPD, 1, 1},
	{"DPL_P0", regDYNPD, 0, 1},
	// FEATURE
	{"EN_DPL", regFEATURE, 2, 1},
	{"EN_ACK_PAY", regFEATURE, 1, 1},
	{"EN_DYN_ACK", regFEATURE, 0, 1},
}

// overwritable registers hold a single field narrower than 8 bits whose
// reserved high bits must read as 0, so they can be written without
// reading them first.
func overwritable(addr uint8) bool {
	return addr == regRF_CH || (addr >= regRX_PW_P0 && addr <= regRX_PW_P5)
}

// clearOnWrite returns the bits of a register that are cleared by writing 1.
// A read-modify-write must never echo these back.
func clearOnWrite(addr uint8) byte {
	if addr == regSTATUS {
		return statusRX_DR | statusTX_DS | statusMAX_RT
	}
	return 0
}

// defaults is the register image the chip comes out of reset with. Interrupt
// flags are written as 1 so that applying the image also acknowledges them.
var defaults = Fields{
	"MASK_RX_DR": Flag(false), "MASK_TX_DS": Flag(false), "MASK_MAX_RT": Flag(false),
	"EN_CRC": Flag(true), "CRCO": Flag(false), "PWR_UP": Flag(false), "PRIM_RX": Flag(false),

	"ENAA_P5": Flag(true), "ENAA_P4": Flag(true), "ENAA_P3": Flag(true),
	"ENAA_P2": Flag(true), "ENAA_P1": Flag(true), "ENAA_P0": Flag(true),

	"ERX_P5": Flag(false), "ERX_P4": Flag(false), "ERX_P3": Flag(false),
	"ERX_P2": Flag(false), "ERX_P1": Flag(true), "ERX_P0": Flag(true),

	"AW":  Uint(0b11),
	"ARD": Uint(0), "ARC": Uint(3),
	"RF_CH": Uint(2),

	"CONT_WAVE": Flag(false), "RF_DR_LOW": Flag(false), "PLL_LOCK": Flag(false),
	"RF_DR_HIGH": Flag(true), "RF_PWR": Uint(0b11),

	"RX_DR": Flag(true), "TX_DS": Flag(true), "MAX_RT": Flag(true),

	"RX_ADDR_P0": Bytes(0xE7, 0xE7, 0xE7, 0xE7, 0xE7),
	"RX_ADDR_P1": Bytes(0xC2, 0xC2, 0xC2, 0xC2, 0xC2),
	"RX_ADDR_P2": Uint(0xC3),
	"RX_ADDR_P3": Uint(0xC4),
	"RX_ADDR_P4": Uint(0xC5),
	"RX_ADDR_P5": Uint(0xC6),
	"TX_ADDR":    Bytes(0xE7, 0xE7, 0xE7, 0xE7, 0xE7),

	"RX_PW_P0": Uint(0), "RX_PW_P1": Uint(0), "RX_PW_P2": Uint(0),
	"RX_PW_P3": Uint(0), "RX_PW_P4": Uint(0), "RX_PW_P5": Uint(0),

	"DPL_P5": Flag(false), "DPL_P4": Flag(false), "DPL_P3": Flag(false),
	"DPL_P2": Flag(false), "DPL_P1": Flag(false), "DPL_P0": Flag(false),

	"EN_DPL": Flag(false), "EN_ACK_PAY": Flag(false), "EN_DYN_ACK": Flag(false),
}

// linkFields survive a transition into transmit mode: they describe the
// link shared with the peer and were set up by the caller.
var linkFields = []string{
	"RF_CH", "RF_PWR", "RF_DR_LOW", "RF_DR_HIGH",
	"ARD", "ARC", "EN_CRC", "CRCO", "AW",
}

const (
	regCONFIG      = 0x00
	regEN_AA       = 0x01
	regEN_RXADDR   = 0x02
	regSETUP_AW    = 0x03
	regSETUP_RETR  = 0x04
	regRF_CH       = 0x05
	regRF_SETUP    = 0x06
	regSTATUS      = 0x07
	regOBSERVE_TX  = 0x08
	regRPD         = 0x09
	regRX_ADDR_P0  = 0x0a
	regRX_ADDR_P1  = 0x0b
	regRX_ADDR_P2  = 0x0c
	regRX_ADDR_P3  = 0x0d
	regRX_ADDR_P4  = 0x0e
	regRX_ADDR_P5  = 0x0f
	regTX_ADDR     = 0x10
	regRX_PW_P0    = 0x11
	regRX_PW_P1    = 0x12
	regRX_PW_P2    = 0x13
	regRX_PW_P3    = 0x14
	regRX_PW_P4    = 0x15
	regRX_PW_P5    = 0x16
	regFIFO_STATUS = 0x17
	regDYNPD       = 0x1c
	regFEATURE     = 0x1d

	// STATUS register bits.
	statusRX_DR   = 1 << 6
	statusTX_DS   = 1 << 5
	statusMAX_RT  = 1 << 4
	statusRX_P_NO = 0b111 << 1
	statusTX_FULL = 1 << 0
)
