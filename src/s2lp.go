package subghz

/*------------------------------------------------------------------
 *
 * Purpose:   	Driver for the S2-LP sub-GHz radio transceiver.
 *
 * Description:	Owns the chip's operating-state machine, configuration
 *		registers and FIFO.  All chip access goes through the
 *		Transport bridge; transport failures propagate wrapped
 *		with the radio component tag and are never retried here.
 *		Retry policy belongs to the caller, which typically
 *		forces a shutdown pulse and restarts.
 *
 *		A state transition is never reported successful unless
 *		the chip's observed status matches the target.
 *		Configuration writes are valid in any state but only
 *		take effect once the chip re-enters READY or synthesizer
 *		setup; they never themselves wait for a state.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"
)

// Reference clock frequency the synthesizer words are computed for.
const xoFrequencyHz = 26_000_000

// State polling bounds.  The chip settles in well under a millisecond;
// the iteration cap turns a wedged chip into a recoverable error
// instead of a hang.
const (
	statePollIntervalMs = 1
	statePollMaxCount   = 100
)

// stateUnknown marks the driver's state cache as unconfirmed.  The chip
// starts here after power-up and after every command strobe, until a
// WaitForState observes the real state.
const stateUnknown State = 0x7F

// Radio drives one S2-LP chip.  Not safe for concurrent use; the node
// runs a single control flow.
type Radio struct {
	transport Transport
	sdn       Line
	logger    *log.Logger

	lastState State
}

// NewRadio wraps a transport bridge and the shutdown (SDN) line.
// A nil logger silences driver debug output.
func NewRadio(t Transport, sdn Line, logger *log.Logger) *Radio {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Radio{
		transport: t,
		sdn:       sdn,
		logger:    logger,
		lastState: stateUnknown,
	}
}

/*
 * Power control.
 */

// EnterShutdown drives SDN high, cutting power to everything but the
// shutdown logic.  All register contents are lost.
func (r *Radio) EnterShutdown() error {
	r.lastState = stateUnknown
	if err := r.sdn.SetValue(1); err != nil {
		return Tag(ComponentRadio, fmt.Errorf("%w: sdn assert: %w", ErrTransport, err))
	}
	r.transport.DelayMs(1)
	return nil
}

// ExitShutdown releases SDN and waits out the power-on reset.  The chip
// lands in READY but the cache stays unconfirmed until WaitForState.
func (r *Radio) ExitShutdown() error {
	r.lastState = stateUnknown
	if err := r.sdn.SetValue(0); err != nil {
		return Tag(ComponentRadio, fmt.Errorf("%w: sdn release: %w", ErrTransport, err))
	}
	r.transport.DelayMs(1)
	return nil
}

/*
 * Register access.
 */

func (r *Radio) writeRegisters(addr byte, values ...byte) error {
	tx := make([]byte, 2+len(values))
	tx[0] = headerWrite
	tx[1] = addr
	copy(tx[2:], values)
	if _, err := r.transport.Exchange(tx); err != nil {
		return Tag(ComponentRadio, err)
	}
	return nil
}

func (r *Radio) readRegisters(addr byte, count int) ([]byte, error) {
	tx := make([]byte, 2+count)
	tx[0] = headerRead
	tx[1] = addr
	rx, err := r.transport.Exchange(tx)
	if err != nil {
		return nil, Tag(ComponentRadio, err)
	}
	return rx[2:], nil
}

func (r *Radio) readRegister(addr byte) (byte, error) {
	v, err := r.readRegisters(addr, 1)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

// updateRegister read-modify-writes a register, keeping the bits
// outside mask untouched.
func (r *Radio) updateRegister(addr byte, mask byte, value byte) error {
	old, err := r.readRegister(addr)
	if err != nil {
		return err
	}
	return r.writeRegisters(addr, (old&^mask)|(value&mask))
}

/*
 * State machine.
 */

// SendCommand strobes a command.  The transition happens asynchronously
// inside the chip; callers confirm it with WaitForState.
func (r *Radio) SendCommand(cmd Command) error {
	r.lastState = stateUnknown
	if _, err := r.transport.Exchange([]byte{headerCommand, byte(cmd)}); err != nil {
		return Tag(ComponentRadio, err)
	}
	return nil
}

// ReadState returns the chip's current operating state from MC_STATE0.
func (r *Radio) ReadState() (State, error) {
	v, err := r.readRegister(regMcState0)
	if err != nil {
		return stateUnknown, err
	}
	return State(v >> 1), nil
}

// WaitForState polls the chip status until it matches target or the
// default iteration bound runs out.
func (r *Radio) WaitForState(target State) error {
	return r.WaitForStateBounded(target, statePollMaxCount)
}

// WaitForStateBounded is WaitForState with a caller-supplied iteration
// bound, for transitions with unusual settling budgets.
func (r *Radio) WaitForStateBounded(target State, maxPolls int) error {
	var got State
	for i := 0; i < maxPolls; i++ {
		var err error
		got, err = r.ReadState()
		if err != nil {
			return err
		}
		if got == target {
			r.lastState = target
			r.logger.Debug("state switch", "state", target.String(), "polls", i+1)
			return nil
		}
		r.transport.DelayMs(statePollIntervalMs)
	}
	return Tag(ComponentRadio, fmt.Errorf("%w: want %s, observed %s", ErrStateTimeout, target, got))
}

// WaitForXo polls until the reference oscillator reports running
// (XO_ON bit of MC_STATE0).
func (r *Radio) WaitForXo() error {
	for i := 0; i < statePollMaxCount; i++ {
		v, err := r.readRegister(regMcState0)
		if err != nil {
			return err
		}
		if v&0x01 != 0 {
			return nil
		}
		r.transport.DelayMs(statePollIntervalMs)
	}
	return Tag(ComponentRadio, fmt.Errorf("%w: oscillator never started", ErrStateTimeout))
}

// LastState returns the last state confirmed by WaitForState, or an
// unconfirmed sentinel.
func (r *Radio) LastState() State { return r.lastState }

/*
 * Clock and power configuration.
 */

// SetOscillator selects the reference source.  A TCXO feeds a clipped
// sine into XIN, so the internal oscillator amplifier is bypassed.
func (r *Radio) SetOscillator(osc Oscillator) error {
	switch osc {
	case OscillatorTCXO:
		if err := r.updateRegister(regXoRcoConf0, 0x80, 0x80); err != nil {
			return err
		}
	case OscillatorQuartz:
		if err := r.updateRegister(regXoRcoConf0, 0x80, 0x00); err != nil {
			return err
		}
	default:
		return Tag(ComponentRadio, fmt.Errorf("unknown oscillator %d", osc))
	}
	// Disable the internal RCO calibration against the external clock.
	return r.updateRegister(regXoRcoConf1, 0x10, 0x00)
}

// ConfigureSmps applies a switched-mode power supply profile.  The chip
// wants different switching frequencies for TX and RX to keep spurs out
// of the channel.
func (r *Radio) ConfigureSmps(s SmpsSetting) error {
	if err := r.writeRegisters(regPmConf3, s.PmConf3); err != nil {
		return err
	}
	return r.writeRegisters(regPmConf2, s.PmConf2)
}

// ConfigureChargePump sets the PLL charge pump current for the high
// band with REFDIV off.
func (r *Radio) ConfigureChargePump() error {
	// PLL_CP_ISEL = 0b010, PLL_PFD_SPLIT_EN = 0.
	if err := r.updateRegister(regSynt3, 0xE0, 0x40); err != nil {
		return err
	}
	return r.updateRegister(regSynthConfig2, 0x04, 0x00)
}

/*
 * RF configuration.
 */

func (r *Radio) SetModulation(m Modulation) error {
	return r.updateRegister(regMod2, 0xF0, byte(m)<<4)
}

// SetRfFrequency programs the synthesizer for the given carrier.  High
// band (B=4) with REFDIV off (D=1), so SYNT = f * 2^21 / fXO.
func (r *Radio) SetRfFrequency(frequencyHz uint32) error {
	synt := uint32((uint64(frequencyHz) << 21) / xoFrequencyHz)
	// SYNT[27:24] shares SYNT3 with the charge pump and band select
	// bits; BS=0 selects the high band.
	if err := r.updateRegister(regSynt3, 0x1F, byte(synt>>24)&0x0F); err != nil {
		return err
	}
	return r.writeRegisters(regSynt2, byte(synt>>16), byte(synt>>8), byte(synt))
}

func (r *Radio) SetFskDeviation(d MantissaExponent) error {
	if err := r.updateRegister(regMod1, 0x0F, d.Exponent); err != nil {
		return err
	}
	return r.writeRegisters(regMod0, byte(d.Mantissa))
}

func (r *Radio) SetBitRate(br MantissaExponent) error {
	if err := r.writeRegisters(regMod4, byte(br.Mantissa>>8), byte(br.Mantissa)); err != nil {
		return err
	}
	return r.updateRegister(regMod2, 0x0F, br.Exponent)
}

func (r *Radio) SetRxBandwidth(bw MantissaExponent) error {
	return r.writeRegisters(regChFlt, byte(bw.Mantissa)<<4|bw.Exponent&0x0F)
}

// ConfigurePa sets up the power amplifier for FIR-filtered direct
// modulation at maximum configured level.
func (r *Radio) ConfigurePa() error {
	// Select PA slot 0 only, no ramping.
	if err := r.writeRegisters(regPaPower8, 0x07); err != nil {
		return err
	}
	// Enable the PA FIR filter.
	return r.updateRegister(regPaConfig1, 0x02, 0x02)
}

/*
 * Pin and FIFO configuration.
 */

// ConfigureGpio assigns mode and function to one of the chip's four
// GPIO pins.
func (r *Radio) ConfigureGpio(pin uint8, mode GPIOMode, function byte) error {
	if pin > 3 {
		return Tag(ComponentRadio, fmt.Errorf("gpio pin %d out of range", pin))
	}
	return r.writeRegisters(regGPIO0Conf+pin, function<<3|byte(mode))
}

// DisableGpio returns every pin to high-impedance input.
func (r *Radio) DisableGpio() error {
	for pin := uint8(0); pin <= 3; pin++ {
		if err := r.writeRegisters(regGPIO0Conf+pin, byte(GPIOModeIn)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Radio) SetFifoThreshold(th FifoThreshold, value byte) error {
	if value > FifoSize-1 {
		return Tag(ComponentRadio, fmt.Errorf("%w: threshold %d", ErrFifoOverrun, value))
	}
	return r.writeRegisters(byte(th), value)
}

/*
 * Interrupts.
 */

// ConfigureIrq enables or disables routing of one interrupt source to
// the IRQ pin.
func (r *Radio) ConfigureIrq(idx IrqIndex, enable bool) error {
	reg := regIrqMask0 - byte(idx)/8
	bit := byte(1) << (byte(idx) % 8)
	v := byte(0)
	if enable {
		v = bit
	}
	return r.updateRegister(reg, bit, v)
}

// ClearIrqFlags reads out the whole interrupt status word, which clears
// all pending flags.
func (r *Radio) ClearIrqFlags() error {
	_, err := r.readRegisters(regIrqStatus3, 4)
	return err
}

/*
 * Packet configuration.
 */

func (r *Radio) SetPacketLength(lengthBytes uint16) error {
	return r.writeRegisters(regPcktLen1, byte(lengthBytes>>8), byte(lengthBytes))
}

// SetPreambleDetector programs preamble length (in 2-bit units) and the
// repeated pattern.
func (r *Radio) SetPreambleDetector(length2bits byte, pattern PreamblePattern) error {
	if err := r.updateRegister(regPcktCtrl6, 0x03, 0x00); err != nil { // length MSBs
		return err
	}
	if err := r.writeRegisters(regPcktCtrl5, length2bits); err != nil {
		return err
	}
	return r.updateRegister(regPcktCtrl3, 0x03, byte(pattern))
}

// SetSyncWord programs up to 32 bits of sync word.
func (r *Radio) SetSyncWord(word []byte, lengthBits byte) error {
	if len(word) > 4 || lengthBits > 32 {
		return Tag(ComponentRadio, fmt.Errorf("sync word too long: %d bits", lengthBits))
	}
	for i, b := range word {
		if err := r.writeRegisters(regSync3+byte(i), b); err != nil {
			return err
		}
	}
	return r.updateRegister(regPcktCtrl6, 0xFC, lengthBits<<2)
}

func (r *Radio) DisableCrc() error {
	return r.updateRegister(regPcktCtrl1, 0xE0, 0x00)
}

func (r *Radio) SetTxSource(src TxSource) error {
	return r.updateRegister(regPcktCtrl1, 0x0C, byte(src)<<2)
}

func (r *Radio) SetRxSource(src RxSource) error {
	return r.updateRegister(regPcktCtrl3, 0x30, byte(src)<<4)
}

// DisableEquaCsAntSwitch turns off the ISI equalizer, carrier-sense
// blanking and the antenna-switching logic, none of which apply to an
// ultra-narrow-band downlink.
func (r *Radio) DisableEquaCsAntSwitch() error {
	return r.updateRegister(regAntSelectConf, 0xE0, 0x00)
}

/*
 * FIFO and RSSI.
 */

// WriteFifo pushes up to 128 bytes into the TX FIFO.  Rejected unless
// the last confirmed state is TX.
func (r *Radio) WriteFifo(data []byte) error {
	if len(data) > FifoSize {
		return Tag(ComponentRadio, fmt.Errorf("%w: %d bytes", ErrFifoOverrun, len(data)))
	}
	if r.lastState != StateTx {
		return Tag(ComponentRadio, fmt.Errorf("%w: want TX, last confirmed %s", ErrFifoNotReady, r.lastState))
	}
	return r.writeRegisters(regFifo, data...)
}

// ReadFifo pulls up to 128 bytes from the RX FIFO.  Rejected unless the
// last confirmed state is RX.
func (r *Radio) ReadFifo(count int) ([]byte, error) {
	if count > FifoSize {
		return nil, Tag(ComponentRadio, fmt.Errorf("%w: %d bytes", ErrFifoOverrun, count))
	}
	if r.lastState != StateRx {
		return nil, Tag(ComponentRadio, fmt.Errorf("%w: want RX, last confirmed %s", ErrFifoNotReady, r.lastState))
	}
	return r.readRegisters(regFifo, count)
}

// RSSI offset and scale for the level register.
const (
	rssiOffsetDb     = 146
	rssiHalfDbPerLsb = 2
)

// Rssi returns the measured input power in dBm.  Only meaningful while
// the chip is in RX or running carrier sense.
func (r *Radio) Rssi() (int, error) {
	v, err := r.readRegister(regRssiLevel)
	if err != nil {
		return 0, err
	}
	return int(v)/rssiHalfDbPerLsb - rssiOffsetDb, nil
}

/*
 * Test carrier.
 */

// StartCW keys an unmodulated carrier at the given frequency, used for
// certification and antenna tuning.
func (r *Radio) StartCW(frequencyHz uint32) error {
	if err := r.SetRfFrequency(frequencyHz); err != nil {
		return err
	}
	if err := r.SetModulation(ModulationNone); err != nil {
		return err
	}
	if err := r.SetTxSource(TxSourcePn9); err != nil {
		return err
	}
	if err := r.SendCommand(CommandTx); err != nil {
		return err
	}
	return r.WaitForState(StateTx)
}

// StopCW aborts the carrier and returns the chip to READY.
func (r *Radio) StopCW() error {
	if err := r.SendCommand(CommandAbort); err != nil {
		return err
	}
	return r.WaitForState(StateReady)
}
