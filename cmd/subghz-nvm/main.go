package main

/*------------------------------------------------------------------
 *
 * Purpose:   	Provisioning and inspection tool for the node's
 *		persistent store.
 *
 * Description:	Commissioning writes the device identity and secret;
 *		in the field the tool dumps the space, reads or writes
 *		single bytes and performs the factory reset that the
 *		production firmware exposes as a maintenance command.
 *
 *---------------------------------------------------------------*/

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/pflag"

	subghz "github.com/fieldnode/subghz/src"
)

func main() {
	var file = pflag.StringP("file", "f", "nvm.bin", "Backing file of the persistent store")
	var help = pflag.Bool("help", false, "Display help text.")

	pflag.Usage = usage
	pflag.Parse()

	if *help || pflag.NArg() == 0 {
		usage()
		return
	}

	ee, err := subghz.OpenFileEEPROM(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %s\n", *file, err)
		os.Exit(1)
	}
	defer ee.Close()
	store := subghz.NewStore(ee)

	args := pflag.Args()
	if err := run(store, args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", args[0], err)
		os.Exit(1)
	}
}

func run(store *subghz.Store, args []string) error {
	switch args[0] {

	case "dump":
		return dump(store)

	case "reset":
		return store.ResetDefault()

	case "set-id":
		if len(args) != 2 {
			return fmt.Errorf("usage: set-id <8 hex digits>")
		}
		return writeHex(store, subghz.AddrDeviceID, args[1], subghz.DeviceIDLength)

	case "set-key":
		if len(args) != 2 {
			return fmt.Errorf("usage: set-key <32 hex digits>")
		}
		return writeHex(store, subghz.AddrDeviceKey, args[1], subghz.DeviceKeyLength)

	case "peek":
		if len(args) != 2 {
			return fmt.Errorf("usage: peek <addr>")
		}
		addr, err := strconv.ParseUint(args[1], 0, 16)
		if err != nil {
			return err
		}
		v, err := store.ReadByte(uint16(addr))
		if err != nil {
			return err
		}
		fmt.Printf("%02X\n", v)
		return nil

	case "poke":
		if len(args) != 3 {
			return fmt.Errorf("usage: poke <addr> <value>")
		}
		addr, err := strconv.ParseUint(args[1], 0, 16)
		if err != nil {
			return err
		}
		value, err := strconv.ParseUint(args[2], 0, 8)
		if err != nil {
			return err
		}
		return store.WriteByte(uint16(addr), byte(value))

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func writeHex(store *subghz.Store, addr uint16, s string, want int) error {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(raw) != want {
		return fmt.Errorf("expected %d bytes, got %d", want, len(raw))
	}
	for i, b := range raw {
		if err := store.WriteByte(addr+uint16(i), b); err != nil {
			return err
		}
	}
	return nil
}

// dump prints the identity, the sequence record and a hex view of the
// whole space.  The device key is deliberately not echoed in clear.
func dump(store *subghz.Store) error {
	var id [subghz.DeviceIDLength]byte
	for i := range id {
		v, err := store.ReadByte(subghz.AddrDeviceID + uint16(i))
		if err != nil {
			return err
		}
		id[i] = v
	}
	fmt.Printf("device id:       %08X\n", binary.BigEndian.Uint32(id[:]))

	for _, field := range []struct {
		name string
		addr uint16
	}{
		{"pn", subghz.AddrPN},
		{"message counter", subghz.AddrMessageCounter},
		{"frame history", subghz.AddrFH},
		{"repeat level", subghz.AddrRL},
	} {
		hi, err := store.ReadByte(field.addr)
		if err != nil {
			return err
		}
		lo, err := store.ReadByte(field.addr + 1)
		if err != nil {
			return err
		}
		fmt.Printf("%-16s %d\n", field.name+":", uint16(hi)<<8|uint16(lo))
	}

	fmt.Println()
	for base := uint16(0); base < subghz.SpaceSize; base += 16 {
		fmt.Printf("%04X ", base)
		for i := uint16(0); i < 16; i++ {
			addr := base + i
			if addr >= subghz.AddrDeviceKey && addr < subghz.AddrDeviceKey+subghz.DeviceKeyLength {
				fmt.Printf(" --")
				continue
			}
			v, err := store.ReadByte(addr)
			if err != nil {
				return err
			}
			fmt.Printf(" %02X", v)
		}
		fmt.Println()
	}
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "Persistent store provisioning tool.\n\n")
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "\tsubghz-nvm [-f file] dump\n")
	fmt.Fprintf(os.Stderr, "\tsubghz-nvm [-f file] reset\n")
	fmt.Fprintf(os.Stderr, "\tsubghz-nvm [-f file] set-id <8 hex digits>\n")
	fmt.Fprintf(os.Stderr, "\tsubghz-nvm [-f file] set-key <32 hex digits>\n")
	fmt.Fprintf(os.Stderr, "\tsubghz-nvm [-f file] peek <addr>\n")
	fmt.Fprintf(os.Stderr, "\tsubghz-nvm [-f file] poke <addr> <value>\n\n")
	pflag.PrintDefaults()
}
