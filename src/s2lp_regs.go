package subghz

/*------------------------------------------------------------------
 *
 * Purpose:   	S2-LP register map and command strobes.
 *
 *---------------------------------------------------------------*/

// SPI header bytes.  Every transfer starts with one of these followed
// by a register address (or a command code for headerCommand).
const (
	headerWrite   = 0x00
	headerRead    = 0x01
	headerCommand = 0x80
)

// Register addresses.
const (
	regGPIO0Conf = 0x00
	regGPIO1Conf = 0x01
	regGPIO2Conf = 0x02
	regGPIO3Conf = 0x03

	regSynt3 = 0x05
	regSynt2 = 0x06
	regSynt1 = 0x07
	regSynt0 = 0x08

	regMod4  = 0x0E // data rate mantissa high byte
	regMod3  = 0x0F // data rate mantissa low byte
	regMod2  = 0x10 // modulation type + data rate exponent
	regMod1  = 0x11 // FSK deviation exponent
	regMod0  = 0x12 // FSK deviation mantissa
	regChFlt = 0x13 // RX channel filter bandwidth

	regAntSelectConf = 0x1F

	regPcktCtrl6 = 0x2B // sync length + preamble length MSB
	regPcktCtrl5 = 0x2C // preamble length LSB
	regPcktCtrl3 = 0x2E // RX source + address length
	regPcktCtrl2 = 0x2F
	regPcktCtrl1 = 0x30 // CRC mode + TX source + whitening
	regPcktLen1  = 0x31
	regPcktLen0  = 0x32
	regSync3     = 0x33
	regSync2     = 0x34
	regSync1     = 0x35
	regSync0     = 0x36

	// FIFO threshold registers.  The threshold identifiers below are
	// the register addresses themselves.
	regFifoConfig3 = 0x3C // RX almost full
	regFifoConfig2 = 0x3D // RX almost empty
	regFifoConfig1 = 0x3E // TX almost full
	regFifoConfig0 = 0x3F // TX almost empty

	regPcktFltOptions = 0x40

	regIrqMask3 = 0x50
	regIrqMask2 = 0x51
	regIrqMask1 = 0x52
	regIrqMask0 = 0x53

	regPaPower8  = 0x5A
	regPaPower0  = 0x62
	regPaConfig1 = 0x63
	regPaConfig0 = 0x64

	regSynthConfig2 = 0x65 // charge pump current selection

	regXoRcoConf1 = 0x6C
	regXoRcoConf0 = 0x6D // external reference (TCXO) selection

	regPmConf4 = 0x75
	regPmConf3 = 0x76 // SMPS KRM high byte
	regPmConf2 = 0x77 // SMPS KRM low byte
	regPmConf1 = 0x78
	regPmConf0 = 0x79

	regMcState1 = 0x8D
	regMcState0 = 0x8E // STATE[6:0] in bits 7:1, XO_ON in bit 0

	regRssiLevel = 0xA2

	regIrqStatus3 = 0xFA
	regIrqStatus2 = 0xFB
	regIrqStatus1 = 0xFC
	regIrqStatus0 = 0xFD

	regFifo = 0xFF
)

// Command is a one-byte strobe sent under the command header.
type Command byte

const (
	CommandTx          Command = 0x60
	CommandRx          Command = 0x61
	CommandReady       Command = 0x62
	CommandStandby     Command = 0x63
	CommandSleep       Command = 0x64
	CommandLockRx      Command = 0x65
	CommandLockTx      Command = 0x66
	CommandAbort       Command = 0x67
	CommandLdcReload   Command = 0x68
	CommandSequenceUpd Command = 0x69
	CommandReset       Command = 0x70
	CommandFlushRxFifo Command = 0x71
	CommandFlushTxFifo Command = 0x72
)

// State is the chip operating state as encoded in MC_STATE0.
type State byte

const (
	StateReady      State = 0x00
	StateSleepA     State = 0x01
	StateStandby    State = 0x02
	StateSleepB     State = 0x03
	StateLock       State = 0x0C
	StateRx         State = 0x30
	StateSynthSetup State = 0x50
	StateTx         State = 0x5C
)

var stateNames = map[State]string{
	StateReady:      "READY",
	StateSleepA:     "SLEEP_A",
	StateStandby:    "STANDBY",
	StateSleepB:     "SLEEP_B",
	StateLock:       "LOCK",
	StateRx:         "RX",
	StateSynthSetup: "SYNTH_SETUP",
	StateTx:         "TX",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// Modulation selects the TX modulation scheme (MOD2 bits 7:4).
type Modulation byte

const (
	Modulation2FSK      Modulation = 0x00
	Modulation4FSK      Modulation = 0x01
	Modulation2GFSKBT1  Modulation = 0x02
	Modulation4GFSKBT1  Modulation = 0x03
	ModulationASKOOK    Modulation = 0x05
	ModulationPolar     Modulation = 0x06
	ModulationNone      Modulation = 0x07
	Modulation2GFSKBT05 Modulation = 0x0A
	Modulation4GFSKBT05 Modulation = 0x0B
)

// Oscillator selects the reference clock source.
type Oscillator byte

const (
	OscillatorQuartz Oscillator = iota
	OscillatorTCXO
)

// GPIOMode configures a chip pin direction/drive (GPIOx_CONF bits 1:0).
type GPIOMode byte

const (
	GPIOModeIn           GPIOMode = 0x01
	GPIOModeOutLowPower  GPIOMode = 0x02
	GPIOModeOutHighPower GPIOMode = 0x03
)

// GPIO output functions (GPIOx_CONF bits 7:3).
const (
	GPIOOutNIRQ         = 0x00
	GPIOOutNPOR         = 0x01
	GPIOOutWUT          = 0x02
	GPIOOutLowBatt      = 0x03
	GPIOOutTxDataClock  = 0x04
	GPIOOutTxState      = 0x05
	GPIOOutFifoEmpty    = 0x06
	GPIOOutFifoFull     = 0x07
	GPIOOutRxData       = 0x08
	GPIOOutRxClock      = 0x09
	GPIOOutRxState      = 0x0A
	GPIOOutSleepStandby = 0x0B
	GPIOOutStandby      = 0x0C
	GPIOOutAntenna      = 0x0D
	GPIOOutPreamble     = 0x0E
	GPIOOutSyncWord     = 0x0F
	GPIOOutRssiAbove    = 0x10
	GPIOOutTxRx         = 0x12
	GPIOOutVdd          = 0x13
	GPIOOutGnd          = 0x14
	GPIOOutSmpsEnable   = 0x15
	GPIOOutSleep        = 0x16
	GPIOOutReady        = 0x17
	GPIOOutLock         = 0x18
	GPIOOutLockDetect   = 0x19
	GPIOOutTxDataOOK    = 0x1A
	GPIOOutReady2       = 0x1B
	GPIOOutPm           = 0x1C
	GPIOOutVco          = 0x1D
	GPIOOutSynth        = 0x1E
)

// GPIO input functions (GPIOx_CONF bits 7:3 when mode is input).
const (
	GPIOInTxCommand = 0x00
	GPIOInRxCommand = 0x01
	GPIOInTxData    = 0x02
	GPIOInWakeUp    = 0x03
	GPIOInExtClock  = 0x04
)

// FifoThreshold identifies one of the four programmable FIFO watermarks.
// The values are the FIFO_CONFIGx register addresses.
type FifoThreshold byte

const (
	FifoThresholdRxFull  FifoThreshold = regFifoConfig3
	FifoThresholdRxEmpty FifoThreshold = regFifoConfig2
	FifoThresholdTxFull  FifoThreshold = regFifoConfig1
	FifoThresholdTxEmpty FifoThreshold = regFifoConfig0
)

// TxSource selects what feeds the modulator (PCKTCTRL1 bits 3:2).
type TxSource byte

const (
	TxSourceNormal TxSource = 0x00
	TxSourceFifo   TxSource = 0x01
	TxSourceGpio   TxSource = 0x02
	TxSourcePn9    TxSource = 0x03
)

// RxSource selects where received bits go (PCKTCTRL3 bits 5:4).
type RxSource byte

const (
	RxSourceNormal RxSource = 0x00
	RxSourceFifo   RxSource = 0x01
	RxSourceGpio   RxSource = 0x02
)

// IrqIndex is a bit position in the 32-bit interrupt mask/status word.
type IrqIndex uint8

const (
	IrqRxDataReady IrqIndex = iota
	IrqRxDataDisc
	IrqTxDataSent
	IrqMaxReTxReach
	IrqCrcError
	IrqTxFifoError
	IrqRxFifoError
	IrqTxFifoAlmostFull
	IrqTxFifoAlmostEmpty
	IrqRxFifoAlmostFull
	IrqRxFifoAlmostEmpty
	IrqMaxBoCcaReach
	IrqValidPreamble
	IrqValidSync
	IrqRssiAboveTh
	IrqWkupToutLdc
	IrqReady
	IrqStandbyDelayed
	IrqLowBattLvl
	IrqPor
	IrqRxTimeout      IrqIndex = 28
	IrqRxSniffTimeout IrqIndex = 29
)

// PreamblePattern selects the repeated preamble bit pair.
type PreamblePattern byte

const (
	PreamblePattern0101 PreamblePattern = 0x00
	PreamblePattern1010 PreamblePattern = 0x01
	PreamblePattern1100 PreamblePattern = 0x02
	PreamblePattern0011 PreamblePattern = 0x03
)

// MantissaExponent is the generic mantissa/exponent pair used by the
// data rate, deviation and RX bandwidth settings.
type MantissaExponent struct {
	Mantissa uint16
	Exponent uint8
}

// Settings for fXO = 26 MHz, high band (B=4), REFDIV off (D=1).
var (
	FskDeviation2kHz  = MantissaExponent{Mantissa: 67, Exponent: 1}  // uplink 100 bps
	FskDeviation800Hz = MantissaExponent{Mantissa: 129, Exponent: 0} // downlink 600 bps

	Datarate500bps = MantissaExponent{Mantissa: 17059, Exponent: 1}
	Datarate600bps = MantissaExponent{Mantissa: 33579, Exponent: 1}

	RxBandwidth2kHz1 = MantissaExponent{Mantissa: 8, Exponent: 8}
)

// SmpsSetting is the switched-mode power supply profile, expressed as
// raw PM_CONF3/PM_CONF2 register values.
type SmpsSetting struct {
	PmConf3 byte
	PmConf2 byte
}

var (
	SmpsTx = SmpsSetting{PmConf3: 0x9C, PmConf2: 0x28}
	SmpsRx = SmpsSetting{PmConf3: 0x87, PmConf2: 0xFC}
)

// FifoSize is the depth of the chip's TX and RX FIFOs in bytes.
const FifoSize = 128
