package subghz

/*------------------------------------------------------------------
 *
 * Purpose:   	Byte-level bridge between the node and the radio chip.
 *
 * Description:	The transceiver sits on an SPI bus with a separate
 *		chip-select line.  Every exchange is bracketed by a
 *		chip-select assert/deassert, including error paths, so
 *		the chip never sees a half-open transaction.  The bridge
 *		keeps no state of its own.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
)

// Transport is the contract the radio driver talks through: one full
// duplex byte exchange under a single chip-select bracket, plus a
// millisecond delay primitive.
type Transport interface {
	// Exchange shifts tx out while capturing the same number of bytes
	// coming back.  Chip select is asserted before the first byte and
	// released after the last, on every exit path.
	Exchange(tx []byte) ([]byte, error)

	// DelayMs blocks for at least the given number of milliseconds.
	DelayMs(ms int)
}

// Line is a single output pin.  It matches the subset of a gpiocdev
// line the bridge needs, so tests can substitute a plain mock.
type Line interface {
	SetValue(int) error
	Close() error
}

// SPITransport drives the radio over a periph.io SPI connection with an
// explicitly managed chip-select line.
type SPITransport struct {
	port spi.PortCloser
	conn spi.Conn
	cs   Line
}

// The S2-LP tolerates up to 8 MHz on its SPI interface.
const spiSpeed = 8 * physic.MegaHertz

// OpenSPITransport opens the named SPI port (empty string for the first
// available one) and requests the chip-select line from the given GPIO
// chip.  Chip select idles high.
func OpenSPITransport(spiDev string, gpioChip string, csOffset int) (*SPITransport, error) {
	port, err := spireg.Open(spiDev)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %w", ErrTransport, spiDev, err)
	}
	conn, err := port.Connect(spiSpeed, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("%w: connect: %w", ErrTransport, err)
	}
	cs, err := gpiocdev.RequestLine(gpioChip, csOffset, gpiocdev.AsOutput(1))
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("%w: chip select line %s:%d: %w", ErrTransport, gpioChip, csOffset, err)
	}
	return &SPITransport{port: port, conn: conn, cs: cs}, nil
}

func (t *SPITransport) Exchange(tx []byte) ([]byte, error) {
	rx := make([]byte, len(tx))
	if err := t.cs.SetValue(0); err != nil {
		return nil, fmt.Errorf("%w: chip select assert: %w", ErrTransport, err)
	}
	txErr := t.conn.Tx(tx, rx)
	// Release chip select before looking at the transfer result so the
	// bracket closes on error paths too.
	csErr := t.cs.SetValue(1)
	if txErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, txErr)
	}
	if csErr != nil {
		return nil, fmt.Errorf("%w: chip select release: %w", ErrTransport, csErr)
	}
	return rx, nil
}

func (t *SPITransport) DelayMs(ms int) {
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

// Close releases the chip-select line and the SPI port.
func (t *SPITransport) Close() error {
	csErr := t.cs.Close()
	portErr := t.port.Close()
	if csErr != nil {
		return fmt.Errorf("%w: chip select close: %w", ErrTransport, csErr)
	}
	if portErr != nil {
		return fmt.Errorf("%w: port close: %w", ErrTransport, portErr)
	}
	return nil
}
