package subghz

/*------------------------------------------------------------------
 *
 * Purpose:   	Locate and open the serial port of the GPS receiver.
 *
 * Description:	The receiver shows up as a tty whose USB vendor and
 *		product identifiers are known.  We enumerate the tty
 *		subsystem through udev and match on those properties,
 *		then open the device in raw mode at the configured
 *		speed.  Sentence content decoding belongs to the
 *		parser collaborator; this code only produces the byte
 *		stream the RX channel captures.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"

	"github.com/jochenvg/go-udev"
	"github.com/pkg/term"
)

// FindGPSPort returns the device node of the first tty whose USB
// vendor/product ids match.  Empty ids match anything, so a bare
// "first tty with a USB parent" lookup is possible.
func FindGPSPort(vendorID, productID string) (string, error) {
	u := udev.Udev{}
	e := u.NewEnumerate()
	if err := e.AddMatchSubsystem("tty"); err != nil {
		return "", fmt.Errorf("udev enumerate: %w", err)
	}
	devices, err := e.Devices()
	if err != nil {
		return "", fmt.Errorf("udev scan: %w", err)
	}
	for _, d := range devices {
		node := d.Devnode()
		if node == "" {
			continue
		}
		if vendorID != "" && d.PropertyValue("ID_VENDOR_ID") != vendorID {
			continue
		}
		if productID != "" && d.PropertyValue("ID_MODEL_ID") != productID {
			continue
		}
		return node, nil
	}
	return "", fmt.Errorf("no GPS serial port matching %s:%s", vendorID, productID)
}

// OpenGPSPort opens the serial device in raw mode.  A zero baud rate
// leaves the current speed alone; unsupported speeds fall back to
// 9600, the usual NMEA default.
func OpenGPSPort(devicename string, baud int) (*term.Term, error) {
	fd, err := term.Open(devicename, term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", devicename, err)
	}

	switch baud {
	case 0: // Leave it alone.
	case 1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200:
		fd.SetSpeed(baud)
	default:
		fd.SetSpeed(9600)
	}

	return fd, nil
}
