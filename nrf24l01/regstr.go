package nrf24l01

import "strconv"

// regstr names a register address for debug output.
type regstr uint8

func (r regstr) String() (s string) {
	switch r {
	case regCONFIG:
		s = "CONFIG"
	case regEN_AA:
		s = "EN_AA"
	case regEN_RXADDR:
		s = "EN_RXADDR"
	case regSETUP_AW:
		s = "SETUP_AW"
	case regSETUP_RETR:
		s = "SETUP_RETR"
	case regRF_CH:
		s = "RF_CH"
	case regRF_SETUP:
		s = "RF_SETUP"
	case regSTATUS:
		s = "STATUS"
	case regOBSERVE_TX:
		s = "OBSERVE_TX"
	case regRPD:
		s = "RPD"
	case regRX_ADDR_P0, regRX_ADDR_P1, regRX_ADDR_P2, regRX_ADDR_P3, regRX_ADDR_P4, regRX_ADDR_P5:
		s = "RX_ADDR_P" + strconv.Itoa(int(r-regRX_ADDR_P0))
	case regTX_ADDR:
		s = "TX_ADDR"
	case regRX_PW_P0, regRX_PW_P1, regRX_PW_P2, regRX_PW_P3, regRX_PW_P4, regRX_PW_P5:
		s = "RX_PW_P" + strconv.Itoa(int(r-regRX_PW_P0))
	case regFIFO_STATUS:
		s = "FIFO_STATUS"
	case regDYNPD:
		s = "DYNPD"
	case regFEATURE:
		s = "FEATURE"
	default:
		s = "0x" + strconv.FormatUint(uint64(r), 16)
	}
	return s
}

func (r regstr) valid() bool {
	return r <= regFIFO_STATUS || r == regDYNPD || r == regFEATURE
}
