package nrf24l01

import (
	"time"

	"github.com/soypat/nrf24"
)

// Configure writes the link settings of cfg in a single batch. Transitions
// into Transmit and Receive mode keep these settings; a transition into
// Off resets them.
func (d *Device) Configure(cfg nrf24.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return d.eng.SetFields(configFields(cfg))
}

func configFields(cfg nrf24.Config) Fields {
	return Fields{
		"RF_CH":      Uint(cfg.Channel),
		"RF_DR_LOW":  Flag(cfg.DataRate == nrf24.Rate250k),
		"RF_DR_HIGH": Flag(cfg.DataRate == nrf24.Rate2M),
		"RF_PWR":     Uint(cfg.Power.Level()),
		"EN_CRC":     Flag(cfg.CRC != nrf24.CRCOff),
		"CRCO":       Flag(cfg.CRC == nrf24.CRC2),
		"AW":         Uint(cfg.AddressWidth - 2),
		"ARD":        Uint(uint8(cfg.RetryDelay/(250*time.Microsecond)) - 1),
		"ARC":        Uint(cfg.RetryCount),
	}
}

// ReadConfig reads the link settings back from the chip.
func (d *Device) ReadConfig() (cfg nrf24.Config, err error) {
	f, err := d.eng.GetFields(linkFields...)
	if err != nil {
		return cfg, err
	}
	cfg.Channel = f["RF_CH"].Uint8()
	switch {
	case f["RF_DR_LOW"].Flag():
		cfg.DataRate = nrf24.Rate250k
	case f["RF_DR_HIGH"].Flag():
		cfg.DataRate = nrf24.Rate2M
	default:
		cfg.DataRate = nrf24.Rate1M
	}
	cfg.Power = nrf24.PowerFromLevel(f["RF_PWR"].Uint8())
	switch {
	case !f["EN_CRC"].Flag():
		cfg.CRC = nrf24.CRCOff
	case f["CRCO"].Flag():
		cfg.CRC = nrf24.CRC2
	default:
		cfg.CRC = nrf24.CRC1
	}
	cfg.AddressWidth = f["AW"].Uint8() + 2
	cfg.RetryDelay = time.Duration(f["ARD"].Uint8()+1) * 250 * time.Microsecond
	cfg.RetryCount = f["ARC"].Uint8()
	return cfg, nil
}
