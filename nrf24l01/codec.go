package nrf24l01

import "sort"

// Value is the content of a register field. Fields up to 8 bits wide hold
// a single right aligned byte. Wider fields hold the raw register bytes,
// least significant byte first.
type Value []byte

// Uint returns the Value of a bit field.
func Uint(v uint8) Value { return Value{v} }

// Flag returns the Value of a single bit field.
func Flag(b bool) Value { return Value{b2u8(b)} }

// Bytes returns the Value of a multi-byte field such as an address.
func Bytes(b ...byte) Value { return append(Value(nil), b...) }

// Uint8 returns the value of a bit field.
func (v Value) Uint8() uint8 {
	if len(v) == 0 {
		return 0
	}
	return v[0]
}

// Flag returns the value of a single bit field as a boolean.
func (v Value) Flag() bool { return v.Uint8() != 0 }

// Fields maps register field mnemonics to values.
type Fields map[string]Value

// regPlan is one register access in a transaction plan.
type regPlan struct {
	addr uint8
	// fields requested from this register.
	fields []string
	// length is the number of bytes to read.
	length int
	// solo is set when a single field occupies the whole register.
	solo string
}

// planRead groups the requested fields by register address. Every address
// appears once. Unknown names are returned separately.
func planRead(names []string) (plan []regPlan, unknown []string) {
	byAddr := make(map[uint8]int)
	for _, name := range names {
		f, err := Lookup(name)
		if err != nil {
			unknown = append(unknown, name)
			continue
		}
		i, ok := byAddr[f.Addr]
		if !ok {
			i = len(plan)
			byAddr[f.Addr] = i
			plan = append(plan, regPlan{addr: f.Addr, length: 1})
		}
		rp := &plan[i]
		if contains(rp.fields, name) {
			continue
		}
		rp.fields = append(rp.fields, name)
		if f.solo() {
			rp.solo = name
			rp.length = f.size()
		}
	}
	sort.Slice(plan, func(i, j int) bool { return plan[i].addr < plan[j].addr })
	return plan, unknown
}

// decode extracts the planned fields from the raw bytes read from rp's register.
func (rp regPlan) decode(raw []byte, dst Fields) {
	if rp.solo != "" {
		dst[rp.solo] = Bytes(raw...)
		return
	}
	var b byte
	if len(raw) > 0 {
		b = raw[0]
	}
	for _, name := range rp.fields {
		f := registerMap[name]
		dst[name] = Uint((b & f.mask()) >> f.Offset)
	}
}

// writeOp is the write access planned for one register.
type writeOp struct {
	addr uint8
	// merge requests a read-modify-write of a single byte register.
	merge bool
	// keep selects the bits of the current register value that survive a merge.
	keep byte
	// data is written as is when merge is false. When merge is true data
	// holds the single byte of new bits, already shifted into place.
	data []byte
}

// apply merges the planned bits into the current register value.
func (op writeOp) apply(current byte) byte {
	return current&op.keep | op.data[0]
}

// planWrite groups the values by register address and decides how each
// register is written. Registers holding one field that covers the register
// are overwritten, as are the registers whose reserved bits are documented
// to be safely written as 0. Any other register is merged into its current
// value so that sibling fields not present in values are preserved.
func planWrite(values Fields) (ops []writeOp, unknown []string) {
	byAddr := make(map[uint8]int)
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := values[name]
		f, err := Lookup(name)
		if err != nil {
			unknown = append(unknown, name)
			continue
		}
		if f.solo() {
			if f.Width == 8 {
				v = Uint(v.Uint8())
			}
			ops = append(ops, writeOp{addr: f.Addr, data: Bytes(v...)})
			byAddr[f.Addr] = len(ops) - 1
			continue
		}
		i, ok := byAddr[f.Addr]
		if !ok {
			i = len(ops)
			byAddr[f.Addr] = i
			ops = append(ops, writeOp{
				addr:  f.Addr,
				merge: !overwritable(f.Addr),
				keep:  ^clearOnWrite(f.Addr),
				data:  []byte{0},
			})
		}
		op := &ops[i]
		m := f.mask()
		op.keep &^= m
		op.data[0] = op.data[0]&^m | (v.Uint8()<<f.Offset)&m
	}
	sort.SliceStable(ops, func(i, j int) bool { return ops[i].addr < ops[j].addr })
	return ops, unknown
}

func contains(s []string, v string) bool {
	for i := range s {
		if s[i] == v {
			return true
		}
	}
	return false
}

func b2u8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
