package subghz

/*------------------------------------------------------------------
 *
 * Purpose:   	AES-128 block cipher engine.
 *
 * Description:	One core invocation per 16-byte block, bounded by a
 *		timeout that discards any partial output on expiry.
 *		Chaining is the caller's business: the engine is
 *		stateless across calls, and a multi-block message is
 *		encrypted by feeding each block's ciphertext back as
 *		the next block's initialization vector, strictly in
 *		order.  Key selection is always explicit - either the
 *		persisted device secret or a caller-supplied key for
 *		commissioning and test flows, never inferred.
 *
 *---------------------------------------------------------------*/

import (
	"crypto/aes"
	"fmt"
	"time"
)

// BlockSize is the AES-128 block size in bytes.
const BlockSize = 16

// KeyMode selects which key an encryption call uses.
type KeyMode uint8

const (
	// KeyDevice uses the device secret from the persistent store.
	KeyDevice KeyMode = iota
	// KeyGiven uses the key passed by the caller.
	KeyGiven
)

// cipherCoreTimeout bounds one core invocation, mirroring the hardware
// accelerator's busy-flag timeout.
const cipherCoreTimeout = 100 * time.Millisecond

// Cipher is the block encryption engine.
type Cipher struct {
	store   *Store
	timeout time.Duration
	now     func() time.Time
}

// NewCipher builds a cipher engine.  store supplies the device key for
// KeyDevice operations; it may be nil if only KeyGiven is used.
func NewCipher(store *Store) *Cipher {
	return &Cipher{store: store, timeout: cipherCoreTimeout, now: time.Now}
}

// Encrypt runs one AES-128 core invocation on a single block.  On
// timeout no partial block is ever returned.
func (c *Cipher) Encrypt(plaintext, iv, key [BlockSize]byte) ([BlockSize]byte, error) {
	var out [BlockSize]byte
	start := c.now()

	var input [BlockSize]byte
	for i := range input {
		input[i] = plaintext[i] ^ iv[i]
	}
	core, err := aes.NewCipher(key[:])
	if err != nil {
		return out, Tag(ComponentCipher, err)
	}
	core.Encrypt(out[:], input[:])

	if c.now().Sub(start) > c.timeout {
		// Expired mid-operation: discard everything.
		out = [BlockSize]byte{}
		return out, Tag(ComponentCipher, ErrEncryptionTimeout)
	}
	return out, nil
}

// EncryptCBC encrypts src into dst with a zero initialization vector,
// chaining block by block.  src must be a whole number of blocks and
// dst at least as long.  mode selects the key: the persisted device
// secret, or the given one.
func (c *Cipher) EncryptCBC(dst, src []byte, given [BlockSize]byte, mode KeyMode) error {
	if len(src)%BlockSize != 0 {
		return Tag(ComponentCipher, fmt.Errorf("input not block aligned: %d bytes", len(src)))
	}
	if len(dst) < len(src) {
		return Tag(ComponentCipher, fmt.Errorf("output too short: %d < %d", len(dst), len(src)))
	}

	var key [BlockSize]byte
	switch mode {
	case KeyDevice:
		if c.store == nil {
			return Tag(ComponentCipher, fmt.Errorf("no store attached for device key"))
		}
		if err := c.store.readBytes(AddrDeviceKey, key[:]); err != nil {
			return err
		}
	case KeyGiven:
		key = given
	default:
		return Tag(ComponentCipher, fmt.Errorf("unknown key mode %d", mode))
	}

	// Chain state is the previous ciphertext block, zero for the first.
	var iv [BlockSize]byte
	var in [BlockSize]byte
	for off := 0; off < len(src); off += BlockSize {
		copy(in[:], src[off:off+BlockSize])
		out, err := c.Encrypt(in, iv, key)
		if err != nil {
			return err
		}
		copy(dst[off:off+BlockSize], out[:])
		iv = out
	}
	return nil
}
