package subghz

/*------------------------------------------------------------------
 *
 * Purpose:   	Surface the upstream protocol stack consumes.
 *
 * Description:	Ties the radio driver, streaming engine, cipher, store
 *		and orchestrator together: device identity and key
 *		retrieval, the protocol sequence record read before and
 *		written after each transmission attempt, the standard
 *		inter-frame delays, and the transmission scenario
 *		itself.  The core never calls back into the protocol
 *		stack; everything is returned as a status.
 *
 *---------------------------------------------------------------*/

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// DelayKind names the standard inter-frame delays of the uplink
// protocol.
type DelayKind uint8

const (
	DelayInterFrameTx DelayKind = iota
	DelayInterFrameTrx
	DelayOobAck
	DelayCarrierSenseSleep
)

var delayDurations = map[DelayKind]time.Duration{
	DelayInterFrameTx:      500 * time.Millisecond,
	DelayInterFrameTrx:     500 * time.Millisecond,
	DelayOobAck:            2 * time.Second,
	DelayCarrierSenseSleep: time.Second,
}

// SequenceRecord is the protocol sequence state persisted around every
// transmission attempt.
type SequenceRecord struct {
	PN             uint16 // pseudo-random seed
	MessageCounter uint16
	FH             uint16 // frame-history bitfield
	RL             uint16 // repeat-level counter
}

// scratchSize bounds the fixed staging arena; no heap allocation
// happens per message.
const scratchSize = 200

// drainPollMax bounds the wait for the modulation stream to finish.
const drainPollMax = 10_000

// Node is the assembled end-point core.
type Node struct {
	radio        *Radio
	store        *Store
	cipher       *Cipher
	orchestrator *Orchestrator
	txStream     *TXStream
	logger       *log.Logger

	scratch [scratchSize]byte
	txLog   *TxLog

	datarate  MantissaExponent
	deviation MantissaExponent

	// Errors collects component failures for the protocol stack to
	// inspect after an attempt.
	Errors ErrorStack
}

// NewNode assembles the core.  txLog and logger may be nil.
func NewNode(radio *Radio, store *Store, cipher *Cipher, orch *Orchestrator, txStream *TXStream, txLog *TxLog, logger *log.Logger) *Node {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Node{
		radio:        radio,
		store:        store,
		cipher:       cipher,
		orchestrator: orch,
		txStream:     txStream,
		txLog:        txLog,
		logger:       logger,
		datarate:     Datarate500bps,
		deviation:    FskDeviation2kHz,
	}
}

// SetUplinkRates overrides the default 500 bps / 2 kHz uplink settings.
func (n *Node) SetUplinkRates(datarate, deviation MantissaExponent) {
	n.datarate = datarate
	n.deviation = deviation
}

// Scratch grants a slice of the fixed staging arena.  Requests past the
// arena size fail; nothing is allocated at runtime.
func (n *Node) Scratch(size int) ([]byte, error) {
	if size > scratchSize {
		return nil, Tag(ComponentNode, fmt.Errorf("scratch request %d exceeds arena %d", size, scratchSize))
	}
	return n.scratch[:size], nil
}

// DeviceID returns the device identity from the store.
func (n *Node) DeviceID() ([DeviceIDLength]byte, error) {
	var id [DeviceIDLength]byte
	if err := n.store.readBytes(AddrDeviceID, id[:]); err != nil {
		return id, Tag(ComponentNode, err)
	}
	return id, nil
}

// DeviceKey returns the device secret from the store.
func (n *Node) DeviceKey() ([DeviceKeyLength]byte, error) {
	var key [DeviceKeyLength]byte
	if err := n.store.readBytes(AddrDeviceKey, key[:]); err != nil {
		return key, Tag(ComponentNode, err)
	}
	return key, nil
}

// LoadSequence reads the persisted sequence record.
func (n *Node) LoadSequence() (SequenceRecord, error) {
	var raw [8]byte
	if err := n.store.readBytes(AddrPN, raw[:]); err != nil {
		return SequenceRecord{}, Tag(ComponentNode, err)
	}
	return SequenceRecord{
		PN:             binary.BigEndian.Uint16(raw[0:2]),
		MessageCounter: binary.BigEndian.Uint16(raw[2:4]),
		FH:             binary.BigEndian.Uint16(raw[4:6]),
		RL:             binary.BigEndian.Uint16(raw[6:8]),
	}, nil
}

// StoreSequence persists the sequence record after a transmission
// outcome.
func (n *Node) StoreSequence(rec SequenceRecord) error {
	var raw [8]byte
	binary.BigEndian.PutUint16(raw[0:2], rec.PN)
	binary.BigEndian.PutUint16(raw[2:4], rec.MessageCounter)
	binary.BigEndian.PutUint16(raw[4:6], rec.FH)
	binary.BigEndian.PutUint16(raw[6:8], rec.RL)
	for i, b := range raw {
		if err := n.store.WriteByte(AddrPN+uint16(i), b); err != nil {
			return Tag(ComponentNode, err)
		}
	}
	return nil
}

// EncryptFrame encrypts a staged plaintext frame with the persisted
// device key, CBC chained from a zero initialization vector.
func (n *Node) EncryptFrame(dst, src []byte) error {
	return n.cipher.EncryptCBC(dst, src, [BlockSize]byte{}, KeyDevice)
}

// InterFrameDelay runs the standard delay for the given kind in
// low-power sleep.
func (n *Node) InterFrameDelay(kind DelayKind) error {
	d, ok := delayDurations[kind]
	if !ok {
		return Tag(ComponentNode, fmt.Errorf("unknown delay kind %d", kind))
	}
	if err := n.orchestrator.Delay(d, DelayModeSleep); err != nil {
		return Tag(ComponentNode, err)
	}
	return nil
}

// ConfigureUplink applies the uplink radio configuration for the given
// carrier frequency: polar modulation driven from the data GPIO, CRC
// off, ultra-narrow-band settings.
func (n *Node) ConfigureUplink(frequencyHz uint32) error {
	steps := []func() error{
		func() error { return n.radio.SetOscillator(OscillatorTCXO) },
		func() error { return n.radio.ConfigureSmps(SmpsTx) },
		n.radio.ConfigureChargePump,
		func() error { return n.radio.SetModulation(ModulationPolar) },
		func() error { return n.radio.SetRfFrequency(frequencyHz) },
		func() error { return n.radio.SetFskDeviation(n.deviation) },
		func() error { return n.radio.SetBitRate(n.datarate) },
		n.radio.ConfigurePa,
		n.radio.DisableCrc,
		func() error { return n.radio.SetTxSource(TxSourceFifo) },
		func() error {
			return n.radio.ConfigureGpio(0, GPIOModeIn, GPIOInTxData)
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return Tag(ComponentNode, err)
		}
	}
	return nil
}

// Transmit runs one complete uplink attempt: power the chip up, apply
// the uplink configuration, load the payload, confirm the TX state,
// then let the stream engine drain the modulation buffer while the
// main flow does bookkeeping.  Cleanup - stream stop and radio sleep -
// runs on every exit path.
func (n *Node) Transmit(frequencyHz uint32, payload []byte, modulation []byte) (err error) {
	if len(payload) > FifoSize {
		return Tag(ComponentNode, fmt.Errorf("%w: payload %d bytes", ErrFifoOverrun, len(payload)))
	}

	seq, err := n.LoadSequence()
	if err != nil {
		return err
	}

	started := time.Now()
	defer func() {
		// Teardown happens regardless of how the attempt ended.
		n.txStream.Stop()
		if cmdErr := n.radio.SendCommand(CommandSleep); cmdErr != nil {
			n.Errors.Push(cmdErr)
		}
		if err != nil {
			n.Errors.Push(err)
		}
		if n.txLog != nil {
			n.txLog.Record(seq.MessageCounter, frequencyHz, len(payload), time.Since(started), err)
		}
	}()

	if err = n.radio.ExitShutdown(); err != nil {
		return err
	}
	if err = n.radio.WaitForXo(); err != nil {
		return err
	}
	if err = n.ConfigureUplink(frequencyHz); err != nil {
		return err
	}
	if err = n.radio.SendCommand(CommandTx); err != nil {
		return err
	}
	if err = n.radio.WaitForState(StateTx); err != nil {
		return err
	}
	if err = n.radio.WriteFifo(payload); err != nil {
		return err
	}

	// TX state is confirmed; only now may the stream engine start
	// draining the modulation buffer.
	if err = n.txStream.Configure(modulation); err != nil {
		return err
	}
	if err = n.txStream.Start(); err != nil {
		return err
	}
	for i := 0; ; i++ {
		if n.txStream.Done() {
			n.txStream.ClearDone()
			break
		}
		if streamErr := n.txStream.Err(); streamErr != nil {
			err = streamErr
			return err
		}
		if i >= drainPollMax {
			err = Tag(ComponentNode, fmt.Errorf("%w: modulation drain", ErrStateTimeout))
			return err
		}
		time.Sleep(time.Millisecond)
	}

	seq.MessageCounter++
	if err = n.StoreSequence(seq); err != nil {
		return err
	}
	n.logger.Info("transmission complete", "counter", seq.MessageCounter, "bytes", len(payload))
	return nil
}
