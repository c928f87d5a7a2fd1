package subghz

/*------------------------------------------------------------------
 *
 * Purpose:   	DMA-style streaming engine.
 *
 * Description:	Two independent one-shot channels move bytes without
 *		involving the main control flow:
 *
 *		TX stream - drains a precomputed modulation sample
 *		buffer toward the radio's data path while the caller
 *		overlaps other setup.  Completion is a flag set from
 *		the transfer context and polled by the consumer.
 *
 *		RX stream - continuously captures bytes arriving from
 *		the GPS serial line into one half of a double buffer.
 *		Each time a half fills, a fixed, short switch action
 *		flips the active half and hands the filled half to the
 *		consumer, so the consumer never touches an in-flight
 *		buffer and the engine never writes into one the
 *		consumer has not released.
 *
 *		Each completion flag has exactly one writer (the
 *		transfer goroutine) and one reader (the main flow), so
 *		no locks are needed beyond the atomics themselves.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// txChunkSize is how many bytes the TX engine pushes per transfer
// burst.  Small enough that Stop takes effect promptly.
const txChunkSize = 64

// TXStream is the one-shot channel feeding modulation samples to the
// radio.  Configure, Start and Stop are called from the main flow only.
type TXStream struct {
	sink io.Writer

	buf   []byte
	armed atomic.Bool
	done  atomic.Bool

	stop chan struct{}
	wg   sync.WaitGroup
	err  atomic.Pointer[error] // error from the transfer context, if any
}

// NewTXStream builds a TX stream draining into sink.
func NewTXStream(sink io.Writer) *TXStream {
	return &TXStream{sink: sink}
}

// Configure points the channel at a source buffer.  The channel must be
// stopped first; reconfiguring an armed channel is forbidden.
func (s *TXStream) Configure(buf []byte) error {
	if s.armed.Load() {
		return Tag(ComponentStream, fmt.Errorf("%w: tx stream", ErrDmaConfig))
	}
	s.buf = buf
	s.done.Store(false)
	s.err.Store(nil)
	return nil
}

// Start arms the channel and begins draining.  Starting an already
// armed channel is forbidden.
func (s *TXStream) Start() error {
	if s.armed.Load() {
		return Tag(ComponentStream, fmt.Errorf("%w: tx stream already armed", ErrDmaConfig))
	}
	if s.buf == nil {
		return Tag(ComponentStream, fmt.Errorf("%w: tx stream not configured", ErrDmaConfig))
	}
	s.armed.Store(true)
	s.done.Store(false)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.drain()
	return nil
}

// drain runs in the transfer context.  It only writes the completion
// flag; the main flow reads and clears it.
func (s *TXStream) drain() {
	defer s.wg.Done()
	defer s.armed.Store(false)
	for off := 0; off < len(s.buf); off += txChunkSize {
		select {
		case <-s.stop:
			return
		default:
		}
		end := off + txChunkSize
		if end > len(s.buf) {
			end = len(s.buf)
		}
		if _, err := s.sink.Write(s.buf[off:end]); err != nil {
			tagged := Tag(ComponentStream, err)
			s.err.Store(&tagged)
			return
		}
	}
	s.done.Store(true)
}

// Stop halts the transfer and clears the completion flag.  Safe to call
// on an idle channel.
func (s *TXStream) Stop() {
	if s.stop != nil {
		select {
		case <-s.stop:
		default:
			close(s.stop)
		}
	}
	s.wg.Wait()
	s.done.Store(false)
}

// Done reports whether the transfer completed.  Cleared only by the
// consumer via ClearDone or Stop.
func (s *TXStream) Done() bool { return s.done.Load() }

func (s *TXStream) ClearDone() { s.done.Store(false) }

// Armed reports whether a transfer is in flight.
func (s *TXStream) Armed() bool { return s.armed.Load() }

// Err returns the error recorded by the transfer context, if any.
func (s *TXStream) Err() error {
	if v := s.err.Load(); v != nil {
		return *v
	}
	return nil
}

// SwitchFunc is the fixed buffer-switch action run each time an RX half
// fills.  It must be O(1): hand the half off and return.  skipDecode is
// a configuration toggle owned by the sentence-parser collaborator.
type SwitchFunc func(filled []byte, skipDecode bool)

// RXStream is the continuous capture channel filling a double buffer
// from a byte source (the GPS serial line).
type RXStream struct {
	source io.Reader

	halves     [2][]byte
	activeHalf int // written only from the capture context
	onSwitch   SwitchFunc
	skipDecode atomic.Bool

	armed atomic.Bool
	stop  chan struct{}
	wg    sync.WaitGroup
	err   atomic.Pointer[error]
}

// NewRXStream builds an RX stream capturing halfSize-byte halves from
// source.  onSwitch runs in the capture context on each filled half.
func NewRXStream(source io.Reader, halfSize int, onSwitch SwitchFunc) *RXStream {
	s := &RXStream{source: source, onSwitch: onSwitch}
	s.halves[0] = make([]byte, halfSize)
	s.halves[1] = make([]byte, halfSize)
	return s
}

// SetSkipDecode toggles the decode-suppression flag passed to the
// switch action.
func (s *RXStream) SetSkipDecode(skip bool) { s.skipDecode.Store(skip) }

// Start begins continuous capture.  Starting an armed channel is
// forbidden; Stop first.
func (s *RXStream) Start() error {
	if s.armed.Load() {
		return Tag(ComponentStream, fmt.Errorf("%w: rx stream already armed", ErrDmaConfig))
	}
	s.armed.Store(true)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.capture()
	return nil
}

func (s *RXStream) capture() {
	defer s.wg.Done()
	defer s.armed.Store(false)
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		buf := s.halves[s.activeHalf]
		if _, err := io.ReadFull(s.source, buf); err != nil {
			select {
			case <-s.stop:
				// Teardown released the source out from under the
				// read; not a capture failure.
			default:
				if err != io.EOF {
					tagged := Tag(ComponentStream, err)
					s.err.Store(&tagged)
				}
			}
			return
		}
		// Buffer-switch action: flip the active half, then hand the
		// filled one over.  Nothing else runs here.
		s.activeHalf = 1 - s.activeHalf
		s.onSwitch(buf, s.skipDecode.Load())
	}
}

// Stop halts capture once the in-flight read finishes or fails.  A
// source that can stay quiet indefinitely keeps that read open, so all
// teardown of live serial lines goes through Disable, which releases
// the source before joining.
func (s *RXStream) Stop() {
	s.signalStop()
	s.wg.Wait()
}

func (s *RXStream) signalStop() {
	if s.stop == nil {
		return
	}
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

// Disable stops the channel and releases the underlying byte source.
// The source is closed before the join, so a read blocked on a quiet
// line is unblocked rather than waited on.
func (s *RXStream) Disable() error {
	s.signalStop()
	var closeErr error
	if c, ok := s.source.(io.Closer); ok {
		closeErr = c.Close()
	}
	s.wg.Wait()
	if closeErr != nil {
		return Tag(ComponentStream, closeErr)
	}
	return nil
}

// Err returns the error recorded by the capture context, if any.
func (s *RXStream) Err() error {
	if v := s.err.Load(); v != nil {
		return *v
	}
	return nil
}
