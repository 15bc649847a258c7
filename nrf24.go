package nrf24

import (
	"errors"
	"time"
)

// Config is the radio configuration shared by two nRF24L01(+) transceivers
// that want to talk to each other. Channel, data rate, CRC length and
// address width must match on both ends.
type Config struct {
	// Channel selects the RF carrier at 2400+Channel MHz. Valid range 0..125.
	Channel uint8 `yaml:"channel"`
	// DataRate is the on-air bit rate. Lower rates improve receiver sensitivity.
	DataRate DataRate `yaml:"data_rate"`
	// Power is the transmit output power in dBm.
	Power Power `yaml:"power"`
	// CRC is the length of the packet CRC. CRC is forced on by the chip
	// whenever auto acknowledgment is enabled on any pipe.
	CRC CRCLength `yaml:"crc"`
	// AddressWidth is the length of pipe addresses in bytes, 3 to 5.
	AddressWidth uint8 `yaml:"address_width"`
	// RetryCount is the number of automatic retransmits (0..15) attempted
	// before a transmission is reported as lost.
	RetryCount uint8 `yaml:"retry_count"`
	// RetryDelay is the wait between retransmits, 250us to 4ms in 250us steps.
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// DefaultConfig returns the configuration the chip comes out of reset with.
func DefaultConfig() Config {
	return Config{
		Channel:      2,
		DataRate:     Rate2M,
		Power:        Power0dBm,
		CRC:          CRC1,
		AddressWidth: 5,
		RetryCount:   3,
		RetryDelay:   250 * time.Microsecond,
	}
}

var (
	errBadChannel      = errors.New("channel must be in 0..125")
	errBadAddressWidth = errors.New("address width must be 3, 4 or 5 bytes")
	errBadRetryCount   = errors.New("retry count must be in 0..15")
	errBadRetryDelay   = errors.New("retry delay must be 250us..4ms in 250us steps")
	errBadDataRate     = errors.New("bad data rate")
	errBadPower        = errors.New("bad tx power")
	errBadCRC          = errors.New("bad CRC length")
)

// Validate checks the configuration is representable by the chip registers.
func (cfg *Config) Validate() (err error) {
	switch {
	case cfg.Channel > MaxChannel:
		err = errBadChannel
	case cfg.AddressWidth < 3 || cfg.AddressWidth > 5:
		err = errBadAddressWidth
	case cfg.RetryCount > 15:
		err = errBadRetryCount
	case cfg.RetryDelay < 250*time.Microsecond || cfg.RetryDelay > 4*time.Millisecond ||
		cfg.RetryDelay%(250*time.Microsecond) != 0:
		err = errBadRetryDelay
	case !cfg.DataRate.valid():
		err = errBadDataRate
	case !cfg.Power.valid():
		err = errBadPower
	case cfg.CRC > CRC2:
		err = errBadCRC
	}
	return err
}

// TimeOnAir returns the time it takes to transmit a single Enhanced
// ShockBurst packet carrying payloadLength bytes, not counting retransmits.
// The packet is composed of:
//   - 1 byte preamble
//   - AddressWidth bytes of address
//   - 9 bit packet control field
//   - payload
//   - CRC bytes
func (cfg *Config) TimeOnAir(payloadLength int) time.Duration {
	if cfg.DataRate == 0 {
		return 0
	}
	bits := 8*(1+int64(cfg.AddressWidth)+int64(payloadLength)+int64(cfg.CRC)) + 9
	return time.Second * time.Duration(bits) / time.Duration(cfg.DataRate.BitsPerSecond())
}

// MaxChannel is the highest RF channel usable within the 2.4GHz ISM band.
const MaxChannel = 125

// MaxPayload is the largest payload a single packet can carry.
const MaxPayload = 32

// DataRate is the on-air data rate in kilobits per second.
type DataRate uint16

const (
	Rate250k DataRate = 250 // Only available on the nRF24L01+.
	Rate1M   DataRate = 1000
	Rate2M   DataRate = 2000
)

func (dr DataRate) BitsPerSecond() int64 { return int64(dr) * 1000 }

func (dr DataRate) valid() bool {
	return dr == Rate250k || dr == Rate1M || dr == Rate2M
}

func (dr DataRate) String() (s string) {
	switch dr {
	case Rate250k:
		s = "250kbps"
	case Rate1M:
		s = "1Mbps"
	case Rate2M:
		s = "2Mbps"
	default:
		s = "unknown"
	}
	return s
}

// Power is the transmitter output power in dBm.
type Power int8

const (
	PowerMin18dBm Power = -18
	PowerMin12dBm Power = -12
	PowerMin6dBm  Power = -6
	Power0dBm     Power = 0
)

func (p Power) valid() bool {
	return p == PowerMin18dBm || p == PowerMin12dBm || p == PowerMin6dBm || p == Power0dBm
}

// Level returns the 2 bit RF_PWR register value for p.
func (p Power) Level() uint8 { return uint8((int(p) + 18) / 6) }

// PowerFromLevel is the inverse of [Power.Level].
func PowerFromLevel(level uint8) Power { return Power(6*int(level&0b11) - 18) }

// CRCLength is the length of the packet CRC in bytes. Zero disables CRC.
type CRCLength uint8

const (
	CRCOff CRCLength = iota
	CRC1
	CRC2
)
