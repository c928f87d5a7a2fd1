package main

/*------------------------------------------------------------------
 *
 * Purpose:   	Main program for the sub-GHz telemetry node, which
 *		includes:
 *
 *			S2-LP radio driver over SPI.
 *			Ultra-narrow-band uplink transmission.
 *			AES-128 CBC payload encryption.
 *			Persistent message counter storage.
 *			GPS NMEA capture from a serial receiver.
 *			Watchdog-bounded low-power delays.
 *			Continuous-wave test carrier for certification.
 *
 *---------------------------------------------------------------*/

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"github.com/warthog618/go-gpiocdev"
	"periph.io/x/periph/host"

	subghz "github.com/fieldnode/subghz/src"
)

// fifoSink refills the chip's TX FIFO as the stream engine drains the
// modulation buffer.
type fifoSink struct {
	radio *subghz.Radio
}

func (s *fifoSink) Write(p []byte) (int, error) {
	if err := s.radio.WriteFifo(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func main() {
	var configPath = pflag.StringP("config", "c", "subghz.yaml", "Node profile file")
	var frequency = pflag.Uint32P("frequency", "f", 0, "Carrier frequency in Hz, overrides the profile")
	var interval = pflag.IntP("interval", "i", 600, "Seconds between transmissions")
	var count = pflag.IntP("count", "n", 0, "Number of messages to send, 0 for forever")
	var cw = pflag.Bool("cw", false, "Key an unmodulated test carrier until interrupted")
	var verbose = pflag.BoolP("verbose", "v", false, "Verbose. Show radio driver debug output.")
	var help = pflag.Bool("help", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Sub-GHz telemetry node.\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n\tsubghz-node [options]\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		return
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	profile, err := subghz.LoadProfile(*configPath)
	if err != nil {
		logger.Fatal("profile", "err", err)
	}
	if *frequency != 0 {
		profile.Radio.FrequencyHz = *frequency
	}

	if _, err := host.Init(); err != nil {
		logger.Fatal("periph host init", "err", err)
	}

	transport, err := subghz.OpenSPITransport(profile.SPIDevice, profile.GPIOChip, profile.CSLine)
	if err != nil {
		logger.Fatal("spi", "err", err)
	}
	defer transport.Close()

	sdn, err := gpiocdev.RequestLine(profile.GPIOChip, profile.SDNLine, gpiocdev.AsOutput(1))
	if err != nil {
		logger.Fatal("sdn line", "err", err)
	}
	defer sdn.Close()

	radio := subghz.NewRadio(transport, sdn, logger)

	if *cw {
		runCW(logger, radio, profile.Radio.FrequencyHz)
		return
	}

	ee, err := subghz.OpenFileEEPROM(profile.NVMPath)
	if err != nil {
		logger.Fatal("nvm", "path", profile.NVMPath, "err", err)
	}
	defer ee.Close()
	store := subghz.NewStore(ee)

	txLog, err := subghz.NewTxLog(profile.TxLogDaily, profile.TxLogPath)
	if err != nil {
		logger.Fatal("txlog", "err", err)
	}
	defer txLog.Close()

	orch := subghz.NewOrchestrator(
		subghz.NewSoftwareWatchdog(subghz.WatchdogRefreshPeriod),
		subghz.NewMonotonicWakeTimer(),
	)
	node := subghz.NewNode(radio, store, subghz.NewCipher(store), orch,
		subghz.NewTXStream(&fifoSink{radio: radio}), txLog, logger)
	node.SetUplinkRates(profile.DatarateSetting(), profile.DeviationSetting())

	gps := startGPS(logger, profile)
	if gps != nil {
		defer gps.Disable()
	}

	id, err := node.DeviceID()
	if err != nil {
		logger.Fatal("device id", "err", err)
	}
	logger.Info("node up", "device", fmt.Sprintf("%08X", binary.BigEndian.Uint32(id[:])),
		"frequency", profile.Radio.FrequencyHz)

	interrupted := make(chan os.Signal, 1)
	signal.Notify(interrupted, syscall.SIGINT, syscall.SIGTERM)

	sent := 0
	for {
		if err := sendTelemetry(node, profile.Radio.FrequencyHz); err != nil {
			logger.Error("transmission failed", "err", err)
			for _, e := range node.Errors.All() {
				logger.Debug("collected", "err", e)
			}
			node.Errors.Reset()
		}
		sent++
		if *count > 0 && sent >= *count {
			return
		}

		select {
		case <-interrupted:
			logger.Info("shutting down")
			return
		case <-time.After(time.Duration(*interval) * time.Second):
		}
	}
}

// sendTelemetry builds one encrypted frame in the staging arena and
// transmits it.
func sendTelemetry(node *subghz.Node, frequencyHz uint32) error {
	plain, err := node.Scratch(2 * subghz.BlockSize)
	if err != nil {
		return err
	}
	for i := range plain {
		plain[i] = 0
	}

	id, err := node.DeviceID()
	if err != nil {
		return err
	}
	seq, err := node.LoadSequence()
	if err != nil {
		return err
	}
	copy(plain, id[:])
	binary.BigEndian.PutUint16(plain[4:], seq.MessageCounter)
	binary.BigEndian.PutUint32(plain[6:], uint32(time.Now().Unix()))

	frame := make([]byte, len(plain))
	if err := node.EncryptFrame(frame, plain); err != nil {
		return err
	}
	return node.Transmit(frequencyHz, frame, frame)
}

// startGPS locates and opens the GPS receiver, then begins continuous
// capture.  Any failure downgrades to running without position data.
func startGPS(logger *log.Logger, profile subghz.Profile) *subghz.RXStream {
	port := profile.GPS.Port
	if port == "" {
		found, err := subghz.FindGPSPort(profile.GPS.VendorID, profile.GPS.ProductID)
		if err != nil {
			logger.Warn("no GPS receiver", "err", err)
			return nil
		}
		port = found
	}
	serial, err := subghz.OpenGPSPort(port, profile.GPS.Baud)
	if err != nil {
		logger.Warn("GPS port", "err", err)
		return nil
	}

	stream := subghz.NewRXStream(serial, profile.GPS.HalfSize, func(filled []byte, skipDecode bool) {
		if skipDecode {
			return
		}
		for _, line := range bytes.Split(filled, []byte("\r\n")) {
			if len(line) > 6 && line[0] == '$' {
				logger.Debug("nmea", "sentence", string(line))
			}
		}
	})
	if err := stream.Start(); err != nil {
		logger.Warn("GPS capture", "err", err)
		return nil
	}
	logger.Info("GPS capture running", "port", port)
	return stream
}

// runCW keys a continuous carrier until interrupted.  Used for antenna
// tuning and regulatory certification.
func runCW(logger *log.Logger, radio *subghz.Radio, frequencyHz uint32) {
	if err := radio.ExitShutdown(); err != nil {
		logger.Fatal("radio power", "err", err)
	}
	if err := radio.WaitForXo(); err != nil {
		logger.Fatal("oscillator", "err", err)
	}
	if err := radio.StartCW(frequencyHz); err != nil {
		logger.Fatal("carrier", "err", err)
	}
	logger.Info("carrier on", "frequency", frequencyHz)

	interrupted := make(chan os.Signal, 1)
	signal.Notify(interrupted, syscall.SIGINT, syscall.SIGTERM)
	<-interrupted

	if err := radio.StopCW(); err != nil {
		logger.Error("carrier off", "err", err)
	}
	if err := radio.EnterShutdown(); err != nil {
		logger.Error("radio shutdown", "err", err)
	}
	logger.Info("carrier off")
}
