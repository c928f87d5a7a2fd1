package subghz

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chipSim is a register-level simulation of the transceiver, standing
// in for the Transport bridge.  Commands switch the simulated state
// after a configurable number of status polls, like the real chip
// settling.
type chipSim struct {
	regs      [256]byte
	state     State
	pending   State
	pollsLeft int
	latency   int // status polls before a commanded switch lands

	txFifo    []byte
	exchanges [][]byte

	failAll bool
}

func newChipSim() *chipSim {
	return &chipSim{state: StateReady, pending: StateReady, latency: 2}
}

var errSimulatedIO = errors.New("simulated bus failure")

func (c *chipSim) Exchange(tx []byte) ([]byte, error) {
	if c.failAll {
		return nil, errSimulatedIO
	}
	c.exchanges = append(c.exchanges, append([]byte(nil), tx...))
	rx := make([]byte, len(tx))

	switch tx[0] {
	case headerCommand:
		switch Command(tx[1]) {
		case CommandTx:
			c.pending, c.pollsLeft = StateTx, c.latency
		case CommandRx:
			c.pending, c.pollsLeft = StateRx, c.latency
		case CommandReady, CommandAbort:
			c.pending, c.pollsLeft = StateReady, c.latency
		case CommandStandby:
			c.pending, c.pollsLeft = StateStandby, c.latency
		case CommandSleep:
			c.pending, c.pollsLeft = StateSleepA, c.latency
		case CommandLockTx, CommandLockRx:
			c.pending, c.pollsLeft = StateLock, c.latency
		}
	case headerWrite:
		addr := tx[1]
		if addr == regFifo {
			c.txFifo = append(c.txFifo, tx[2:]...)
		} else {
			copy(c.regs[addr:], tx[2:])
		}
	case headerRead:
		addr := int(tx[1])
		for i := 0; i < len(tx)-2; i++ {
			if addr+i == regMcState0 {
				if c.pollsLeft > 0 {
					c.pollsLeft--
					if c.pollsLeft == 0 {
						c.state = c.pending
					}
				}
				rx[2+i] = byte(c.state)<<1 | 0x01
			} else {
				rx[2+i] = c.regs[addr+i]
			}
		}
	}
	return rx, nil
}

func (c *chipSim) DelayMs(ms int) {}

// reg returns the last value written to a config register.
func (c *chipSim) reg(addr byte) byte { return c.regs[addr] }

type mockLine struct {
	value  int
	closed bool
}

func (m *mockLine) SetValue(v int) error { m.value = v; return nil }
func (m *mockLine) Close() error         { m.closed = true; return nil }

func newTestRadio() (*Radio, *chipSim, *mockLine) {
	sim := newChipSim()
	sdn := new(mockLine)
	return NewRadio(sim, sdn, nil), sim, sdn
}

func TestWaitForState_ReachesTarget(t *testing.T) {
	r, _, _ := newTestRadio()

	require.NoError(t, r.SendCommand(CommandTx))
	require.NoError(t, r.WaitForState(StateTx))

	assert.Equal(t, StateTx, r.LastState())
}

func TestWaitForState_Timeout(t *testing.T) {
	r, sim, _ := newTestRadio()
	sim.latency = statePollMaxCount + 10 // never settles within the bound

	require.NoError(t, r.SendCommand(CommandTx))
	err := r.WaitForState(StateTx)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStateTimeout)
	// Success must never be reported while observed state differs.
	assert.NotEqual(t, StateTx, r.LastState())
}

func TestWaitForStateBounded_CallerControlsPollCount(t *testing.T) {
	r, sim, _ := newTestRadio()
	sim.latency = 5

	// A bound tighter than the settling time must report a timeout.
	require.NoError(t, r.SendCommand(CommandTx))
	err := r.WaitForStateBounded(StateTx, 3)
	assert.ErrorIs(t, err, ErrStateTimeout)

	// A generous bound on the same switch then observes it land.
	require.NoError(t, r.WaitForStateBounded(StateTx, 10))
	assert.Equal(t, StateTx, r.LastState())
}

func TestWaitForState_NeverLiesAboutState(t *testing.T) {
	r, sim, _ := newTestRadio()
	sim.latency = 5

	require.NoError(t, r.SendCommand(CommandRx))
	// Asking for the wrong target must time out even though a switch
	// is in progress.
	err := r.WaitForState(StateTx)

	assert.ErrorIs(t, err, ErrStateTimeout)
}

func TestSendCommand_InvalidatesStateCache(t *testing.T) {
	r, _, _ := newTestRadio()

	require.NoError(t, r.SendCommand(CommandTx))
	require.NoError(t, r.WaitForState(StateTx))
	require.NoError(t, r.SendCommand(CommandSleep))

	assert.Equal(t, stateUnknown, r.LastState())
}

func TestShutdown_DrivesSdnLine(t *testing.T) {
	r, _, sdn := newTestRadio()

	require.NoError(t, r.EnterShutdown())
	assert.Equal(t, 1, sdn.value, "SDN high cuts chip power")

	require.NoError(t, r.ExitShutdown())
	assert.Equal(t, 0, sdn.value, "SDN low powers the chip")
	assert.Equal(t, stateUnknown, r.LastState())
}

func TestWriteFifo_RequiresConfirmedTxState(t *testing.T) {
	r, _, _ := newTestRadio()

	err := r.WriteFifo([]byte{0xAA})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFifoNotReady)
}

func TestWriteFifo_RejectsOversizedPayload(t *testing.T) {
	r, _, _ := newTestRadio()

	err := r.WriteFifo(make([]byte, FifoSize+1))

	assert.ErrorIs(t, err, ErrFifoOverrun)
}

func TestWriteFifo_AfterTxConfirm(t *testing.T) {
	r, sim, _ := newTestRadio()

	require.NoError(t, r.SendCommand(CommandTx))
	require.NoError(t, r.WaitForState(StateTx))

	payload := []byte{0x12, 0x34}
	require.NoError(t, r.WriteFifo(payload))

	assert.Equal(t, payload, sim.txFifo)
}

func TestReadFifo_RequiresConfirmedRxState(t *testing.T) {
	r, _, _ := newTestRadio()

	_, err := r.ReadFifo(4)

	assert.ErrorIs(t, err, ErrFifoNotReady)
}

func TestRssi_Mapping(t *testing.T) {
	r, sim, _ := newTestRadio()

	sim.regs[regRssiLevel] = 200
	v, err := r.Rssi()
	require.NoError(t, err)
	assert.Equal(t, -46, v)

	sim.regs[regRssiLevel] = 100
	v, err = r.Rssi()
	require.NoError(t, err)
	assert.Equal(t, -96, v)
}

func TestSetRfFrequency_SynthWord(t *testing.T) {
	r, sim, _ := newTestRadio()

	require.NoError(t, r.SetRfFrequency(868_130_000))

	// SYNT = 868130000 * 2^21 / 26 MHz = 0x42C77BA.
	assert.Equal(t, byte(0x04), sim.reg(regSynt3)&0x0F)
	assert.Equal(t, byte(0x2C), sim.reg(regSynt2))
	assert.Equal(t, byte(0x77), sim.reg(regSynt1))
	assert.Equal(t, byte(0xBA), sim.reg(regSynt0))
}

func TestSetBitRate(t *testing.T) {
	r, sim, _ := newTestRadio()

	require.NoError(t, r.SetBitRate(Datarate500bps))

	assert.Equal(t, byte(17059>>8), sim.reg(regMod4))
	assert.Equal(t, byte(17059&0xFF), sim.reg(regMod3))
	assert.Equal(t, byte(1), sim.reg(regMod2)&0x0F)
}

func TestSetModulation_PreservesDatarateExponent(t *testing.T) {
	r, sim, _ := newTestRadio()

	require.NoError(t, r.SetBitRate(Datarate500bps))
	require.NoError(t, r.SetModulation(ModulationPolar))

	assert.Equal(t, byte(ModulationPolar)<<4, sim.reg(regMod2)&0xF0)
	assert.Equal(t, byte(1), sim.reg(regMod2)&0x0F, "data rate exponent must survive")
}

func TestConfigureGpio(t *testing.T) {
	r, sim, _ := newTestRadio()

	require.NoError(t, r.ConfigureGpio(0, GPIOModeIn, GPIOInTxData))
	assert.Equal(t, byte(GPIOInTxData)<<3|byte(GPIOModeIn), sim.reg(regGPIO0Conf))

	err := r.ConfigureGpio(4, GPIOModeIn, GPIOInTxData)
	assert.Error(t, err, "only pins 0..3 exist")
}

func TestConfigureIrq_SetsOnlyRequestedBit(t *testing.T) {
	r, sim, _ := newTestRadio()

	require.NoError(t, r.ConfigureIrq(IrqTxDataSent, true))
	assert.Equal(t, byte(1)<<2, sim.reg(regIrqMask0))

	require.NoError(t, r.ConfigureIrq(IrqRxTimeout, true))
	assert.Equal(t, byte(1)<<4, sim.reg(regIrqMask0-3))

	require.NoError(t, r.ConfigureIrq(IrqTxDataSent, false))
	assert.Equal(t, byte(0), sim.reg(regIrqMask0))
}

func TestTransportFailure_PropagatesUnretried(t *testing.T) {
	r, sim, _ := newTestRadio()
	sim.failAll = true

	err := r.SendCommand(CommandTx)

	require.Error(t, err)
	assert.ErrorIs(t, err, errSimulatedIO)
	var st Status
	require.ErrorAs(t, err, &st)
	assert.Equal(t, ComponentRadio, st.Component)
}

func TestStartCW_ReachesTxState(t *testing.T) {
	r, _, _ := newTestRadio()

	require.NoError(t, r.StartCW(868_000_000))
	assert.Equal(t, StateTx, r.LastState())

	require.NoError(t, r.StopCW())
	assert.Equal(t, StateReady, r.LastState())
}
