package subghz

/*------------------------------------------------------------------
 *
 * Purpose:   	Persistent counter store.
 *
 * Description:	Fixed-size byte-addressable non-volatile space holding
 *		the device identity, the device key and the protocol
 *		sequence state.  Every access validates the address
 *		against the space size before touching hardware.
 *		Writes are bracketed unlock -> write -> lock; a failed
 *		lock does not roll the write back, it is reported so
 *		the caller can retry the lock or distrust the record.
 *
 *---------------------------------------------------------------*/

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// SpaceSize is the size of the persistent byte space.
const SpaceSize = 512

// Fixed record layout inside the space.
const (
	AddrDeviceID       = 0  // 4 bytes
	AddrDeviceKey      = 4  // 16 bytes
	AddrPN             = 20 // 2 bytes, pseudo-random seed
	AddrMessageCounter = 22 // 2 bytes
	AddrFH             = 24 // 2 bytes, frame-history bitfield
	AddrRL             = 26 // 2 bytes, repeat-level counter

	DeviceIDLength  = 4
	DeviceKeyLength = 16
)

// EEPROM is the raw hardware contract: byte-addressable access plus
// the write-protection bracket.
type EEPROM interface {
	ReadByte(addr uint16) (byte, error)
	WriteByte(addr uint16, value byte) error
	Unlock() error
	Lock() error
}

// Store wraps an EEPROM with address validation and the unlock/lock
// write bracket.
type Store struct {
	ee EEPROM
}

func NewStore(ee EEPROM) *Store {
	return &Store{ee: ee}
}

// ReadByte returns the byte at addr.
func (s *Store) ReadByte(addr uint16) (byte, error) {
	if addr >= SpaceSize {
		return 0, Tag(ComponentStore, fmt.Errorf("%w: %d", ErrAddressOutOfRange, addr))
	}
	v, err := s.ee.ReadByte(addr)
	if err != nil {
		return 0, Tag(ComponentStore, err)
	}
	return v, nil
}

// WriteByte stores value at addr under an unlock/lock bracket.
func (s *Store) WriteByte(addr uint16, value byte) error {
	if addr >= SpaceSize {
		return Tag(ComponentStore, fmt.Errorf("%w: %d", ErrAddressOutOfRange, addr))
	}
	if err := s.ee.Unlock(); err != nil {
		return Tag(ComponentStore, fmt.Errorf("%w: unlock: %w", ErrLock, err))
	}
	writeErr := s.ee.WriteByte(addr, value)
	lockErr := s.ee.Lock()
	if writeErr != nil {
		return Tag(ComponentStore, writeErr)
	}
	if lockErr != nil {
		// The write already landed; report the lock failure as such.
		return Tag(ComponentStore, fmt.Errorf("%w: %w", ErrLock, lockErr))
	}
	return nil
}

// ResetDefault erases the whole space to zero.  Idempotent: applying it
// twice yields identical contents.
func (s *Store) ResetDefault() error {
	if err := s.ee.Unlock(); err != nil {
		return Tag(ComponentStore, fmt.Errorf("%w: unlock: %w", ErrLock, err))
	}
	var writeErr error
	for addr := uint16(0); addr < SpaceSize; addr++ {
		if err := s.ee.WriteByte(addr, 0); err != nil {
			writeErr = err
			break
		}
	}
	lockErr := s.ee.Lock()
	if writeErr != nil {
		return Tag(ComponentStore, writeErr)
	}
	if lockErr != nil {
		return Tag(ComponentStore, fmt.Errorf("%w: %w", ErrLock, lockErr))
	}
	return nil
}

// readBytes is a bounds-checked multi-byte read helper.
func (s *Store) readBytes(addr uint16, dst []byte) error {
	for i := range dst {
		v, err := s.ReadByte(addr + uint16(i))
		if err != nil {
			return err
		}
		dst[i] = v
	}
	return nil
}

// FileEEPROM emulates the byte-addressable EEPROM on top of a regular
// file, persisting each write immediately.  Writes while locked fail,
// matching the hardware write-protection behaviour.
type FileEEPROM struct {
	f        *os.File
	cache    [SpaceSize]byte
	unlocked bool
}

// OpenFileEEPROM opens (or creates) the backing file and loads the
// space contents.  A short or missing file reads as zeroes.
func OpenFileEEPROM(path string) (*FileEEPROM, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}
	e := &FileEEPROM{f: f}
	// A short or missing backing file reads as zeroes.
	if _, err := f.ReadAt(e.cache[:], 0); err != nil &&
		!errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		f.Close()
		return nil, err
	}
	return e, nil
}

func (e *FileEEPROM) ReadByte(addr uint16) (byte, error) {
	if addr >= SpaceSize {
		return 0, fmt.Errorf("%w: %d", ErrAddressOutOfRange, addr)
	}
	return e.cache[addr], nil
}

func (e *FileEEPROM) WriteByte(addr uint16, value byte) error {
	if addr >= SpaceSize {
		return fmt.Errorf("%w: %d", ErrAddressOutOfRange, addr)
	}
	if !e.unlocked {
		return fmt.Errorf("write while locked at %d", addr)
	}
	e.cache[addr] = value
	if _, err := e.f.WriteAt([]byte{value}, int64(addr)); err != nil {
		return err
	}
	return nil
}

func (e *FileEEPROM) Unlock() error {
	e.unlocked = true
	return nil
}

func (e *FileEEPROM) Lock() error {
	e.unlocked = false
	return e.f.Sync()
}

func (e *FileEEPROM) Close() error {
	return e.f.Close()
}
