package subghz

/*------------------------------------------------------------------
 *
 * Purpose:   	Node profile loaded at startup.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RadioProfile is the RF side of the node configuration.
type RadioProfile struct {
	FrequencyHz uint32 `yaml:"frequency_hz"`
	Oscillator  string `yaml:"oscillator"`   // "quartz" or "tcxo"
	DatarateBps int    `yaml:"datarate_bps"` // 500 or 600
	DeviationHz int    `yaml:"deviation_hz"` // 2000 or 800
}

// GPSProfile locates the GPS receiver.
type GPSProfile struct {
	Port      string `yaml:"port"` // explicit device node; empty means discover
	VendorID  string `yaml:"vendor_id"`
	ProductID string `yaml:"product_id"`
	Baud      int    `yaml:"baud"`
	HalfSize  int    `yaml:"half_size"` // RX double-buffer half, bytes
}

// Profile is the full node configuration.
type Profile struct {
	Radio RadioProfile `yaml:"radio"`
	GPS   GPSProfile   `yaml:"gps"`

	SPIDevice string `yaml:"spi_device"`
	GPIOChip  string `yaml:"gpio_chip"`
	CSLine    int    `yaml:"cs_line"`
	SDNLine   int    `yaml:"sdn_line"`

	NVMPath string `yaml:"nvm_path"`

	TxLogPath  string `yaml:"txlog_path"`
	TxLogDaily bool   `yaml:"txlog_daily"`
}

// Sensible defaults for an EU uplink node.
func defaultProfile() Profile {
	return Profile{
		Radio: RadioProfile{
			FrequencyHz: 868_130_000,
			Oscillator:  "tcxo",
			DatarateBps: 500,
			DeviationHz: 2000,
		},
		GPS: GPSProfile{
			Baud:     9600,
			HalfSize: 128,
		},
		GPIOChip: "gpiochip0",
		NVMPath:  "nvm.bin",
	}
}

// LoadProfile reads a yaml profile from path, filling unset fields
// with defaults.
func LoadProfile(path string) (Profile, error) {
	p := defaultProfile()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if err := p.validate(); err != nil {
		return p, err
	}
	return p, nil
}

func (p Profile) validate() error {
	switch p.Radio.Oscillator {
	case "quartz", "tcxo":
	default:
		return fmt.Errorf("profile: unknown oscillator %q", p.Radio.Oscillator)
	}
	if p.Radio.FrequencyHz == 0 {
		return fmt.Errorf("profile: frequency_hz must be set")
	}
	switch p.Radio.DatarateBps {
	case 500, 600:
	default:
		return fmt.Errorf("profile: unsupported datarate_bps %d", p.Radio.DatarateBps)
	}
	switch p.Radio.DeviationHz {
	case 800, 2000:
	default:
		return fmt.Errorf("profile: unsupported deviation_hz %d", p.Radio.DeviationHz)
	}
	if p.GPS.HalfSize <= 0 {
		return fmt.Errorf("profile: gps half_size must be positive")
	}
	return nil
}

// OscillatorSetting maps the profile string onto the driver enum.
func (p Profile) OscillatorSetting() Oscillator {
	if p.Radio.Oscillator == "quartz" {
		return OscillatorQuartz
	}
	return OscillatorTCXO
}

// DatarateSetting maps the profile bit rate onto the synthesizer pair.
func (p Profile) DatarateSetting() MantissaExponent {
	if p.Radio.DatarateBps == 600 {
		return Datarate600bps
	}
	return Datarate500bps
}

// DeviationSetting maps the profile deviation onto the synthesizer pair.
func (p Profile) DeviationSetting() MantissaExponent {
	if p.Radio.DeviationHz == 800 {
		return FskDeviation800Hz
	}
	return FskDeviation2kHz
}
