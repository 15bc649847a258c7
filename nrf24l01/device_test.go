package nrf24l01

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/soypat/nrf24"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfiguresLines(t *testing.T) {
	errPin := errors.New("pin busy")
	ce := new(mockLine)
	ce.On("SetMode", LineLow).Return(errPin)
	_, err := New(newChip(), ce, nil, Config{})
	require.ErrorIs(t, err, errPin)
	ce.AssertExpectations(t)
}

func TestSetModeOff(t *testing.T) {
	d, c, _ := newTestDevice(t, true)
	ctx := testContext(t)
	require.NoError(t, d.SetFields(Fields{"RF_CH": Uint(76), "PWR_UP": Flag(true)}))
	c.mu.Lock()
	c.txFifo = [][]byte{{1}}
	c.rxFifo = []rxPacket{{pipe: 1, data: []byte{2}}}
	c.flags = statusMAX_RT
	c.mu.Unlock()
	c.resetOps()

	require.NoError(t, d.SetMode(ctx, Off, Fields{"ARC": Uint(5)}))
	ops := c.opLog()
	require.Greater(t, len(ops), 2)
	assert.Equal(t, FlushTx, ops[0])
	assert.Equal(t, FlushRx, ops[1])
	for _, op := range ops[2:] {
		assert.LessOrEqual(t, op, Opcode(0x3f), "register access expected, got %s", op)
	}
	assert.Equal(t, []byte{2}, c.reg(regRF_CH))
	assert.Equal(t, []byte{0x08}, c.reg(regCONFIG))
	assert.Equal(t, []byte{0x05}, c.reg(regSETUP_RETR))
	assert.Equal(t, []byte{0x0e}, c.reg(regSTATUS), "flags cleared and FIFOs empty")
	assert.False(t, c.ceHigh())
	assert.Equal(t, Off, d.Mode())
}

func TestSetModeTransmitKeepsLink(t *testing.T) {
	d, c, _ := newTestDevice(t, true)
	ctx := testContext(t)
	require.NoError(t, d.SetFields(Fields{"RF_CH": Uint(76), "ERX_P3": Flag(true)}))
	require.NoError(t, d.SetMode(ctx, Transmit, nil))
	assert.Equal(t, Transmit, d.Mode())
	assert.Equal(t, []byte{76}, c.reg(regRF_CH))
	assert.Equal(t, []byte{0x03}, c.reg(regEN_RXADDR), "pipe setup is reset")
	assert.Equal(t, []byte{0x0a}, c.reg(regCONFIG))
	assert.False(t, c.ceHigh())

	require.NoError(t, d.SetMode(ctx, Off, nil))
	assert.Equal(t, []byte{2}, c.reg(regRF_CH))
}

func TestSetModeReceive(t *testing.T) {
	d, c, _ := newTestDevice(t, true)
	require.NoError(t, d.SetMode(testContext(t), Receive, Fields{"RF_CH": Uint(10)}))
	assert.Equal(t, Receive, d.Mode())
	assert.Equal(t, []byte{0x0b}, c.reg(regCONFIG))
	assert.Equal(t, []byte{10}, c.reg(regRF_CH))
	assert.True(t, c.ceHigh())
}

func TestSetModeFailure(t *testing.T) {
	d, c, _ := newTestDevice(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := d.SetMode(ctx, Receive, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Off, d.Mode())
	assert.False(t, c.ceHigh())
	assert.Empty(t, c.opLog())

	assert.Error(t, d.SetMode(testContext(t), Mode(9), nil))
}

func TestSetModeLineFailure(t *testing.T) {
	errPin := errors.New("pin busy")
	c := newChip()
	ce := new(mockLine)
	ce.On("SetMode", LineLow).Return(nil)
	ce.On("Set", false).Return(errPin)
	d, err := New(c, ce, nil, testConfig(new(syncBuffer)))
	require.NoError(t, err)

	err = d.SetMode(testContext(t), Off, nil)
	require.ErrorIs(t, err, errPin)
	assert.Equal(t, Off, d.Mode())
	assert.Empty(t, c.opLog(), "remaining steps are skipped")
	ce.AssertNumberOfCalls(t, "Set", 2)
}

func TestConfigure(t *testing.T) {
	d, c, _ := newTestDevice(t, true)
	cfg := nrf24.Config{
		Channel:      76,
		DataRate:     nrf24.Rate250k,
		Power:        nrf24.PowerMin6dBm,
		CRC:          nrf24.CRC2,
		AddressWidth: 4,
		RetryCount:   15,
		RetryDelay:   1500 * time.Microsecond,
	}
	require.NoError(t, d.Configure(cfg))
	assert.Equal(t, []byte{0x5f}, c.reg(regSETUP_RETR))
	assert.Equal(t, []byte{0x02}, c.reg(regSETUP_AW))
	assert.Equal(t, []byte{0x24}, c.reg(regRF_SETUP))
	got, err := d.ReadConfig()
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	def, err := New(c, ceLine{c: c}, nil, testConfig(new(syncBuffer)))
	require.NoError(t, err)
	require.NoError(t, def.SetMode(testContext(t), Off, nil))
	got, err = def.ReadConfig()
	require.NoError(t, err)
	assert.Equal(t, nrf24.DefaultConfig(), got)

	c.resetOps()
	cfg.Channel = 200
	assert.Error(t, d.Configure(cfg))
	assert.Empty(t, c.opLog())
}

func TestChipQueries(t *testing.T) {
	d, c, _ := newTestDevice(t, true)
	assert.True(t, d.IsConnected())

	c.set(regOBSERVE_TX, 0x25)
	c.set(regRPD, 1)
	lost, retr, err := d.ObserveTx()
	require.NoError(t, err)
	assert.Equal(t, 2, lost)
	assert.Equal(t, 5, retr)
	cd, err := d.CarrierDetected()
	require.NoError(t, err)
	assert.True(t, cd)

	regs := make([]byte, 30)
	require.NoError(t, d.DumpRegisters(regs))
	assert.Equal(t, byte(0x02), regs[regRF_CH])
	assert.Equal(t, byte(0xe7), regs[regTX_ADDR])
	assert.Equal(t, byte(0x11), regs[regFIFO_STATUS])
	assert.Zero(t, regs[0x18])
	assert.Error(t, d.DumpRegisters(regs[:20]))

	c.resetOps()
	require.NoError(t, d.ReuseTx())
	assert.Equal(t, []Opcode{ReuseTxPayload}, c.opLog())
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "off", Off.String())
	assert.Equal(t, "transmit", Transmit.String())
	assert.Equal(t, "receive", Receive.String())
	assert.Equal(t, "unknown", Mode(7).String())
}
