package nrf24

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Address is a pipe address as it goes over the air. Byte 0 is the least
// significant byte, which is also the order in which the chip expects
// address registers to be written.
type Address []byte

// ParseAddress parses a hex string written most significant byte first,
// the way addresses are usually printed (e.g. "E7E7E7E7E7"). Optional ':'
// separators and a 0x prefix are accepted.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimPrefix(strings.ReplaceAll(s, ":", ""), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("parse address %q: %w", s, err)
	}
	if len(b) == 0 || len(b) > 5 {
		return nil, fmt.Errorf("parse address %q: %w", s, errBadAddressWidth)
	}
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return Address(b), nil
}

// String formats the address most significant byte first.
func (a Address) String() string {
	var sb strings.Builder
	for i := len(a) - 1; i >= 0; i-- {
		fmt.Fprintf(&sb, "%02X", a[i])
	}
	return sb.String()
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Address) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	addr, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = addr
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (a Address) MarshalYAML() (any, error) {
	return a.String(), nil
}

// File is the on-disk configuration of a radio: the shared link
// parameters plus the pipe addresses used by an application.
type File struct {
	Radio Config `yaml:"radio"`
	// TxAddress is the address transmissions are sent to.
	TxAddress Address `yaml:"tx_address,omitempty"`
	// RxAddresses maps receive pipe numbers to addresses.
	RxAddresses map[uint8]Address `yaml:"rx_addresses,omitempty"`
}

// ParseConfig decodes a YAML configuration. Fields absent from the document
// keep the values of [DefaultConfig].
func ParseConfig(data []byte) (*File, error) {
	f := &File{Radio: DefaultConfig()}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := f.Radio.Validate(); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for pipe, addr := range f.RxAddresses {
		if pipe > 5 {
			return nil, fmt.Errorf("parse config: rx pipe %d out of range", pipe)
		}
		if pipe > 1 && len(addr) != 1 {
			// Pipes 2..5 share bytes 1..4 with pipe 1.
			return nil, fmt.Errorf("parse config: rx pipe %d takes a single byte address", pipe)
		}
	}
	return f, nil
}

// LoadConfig reads and parses the YAML configuration file at path.
func LoadConfig(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}
