package flasher

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config defines the flashing parameters.
type Config struct {
	// Device is the UART connected to the target.
	Device string
	// BaudRate is used for the bootloader handshake and the download agent.
	BaudRate int
	// BaudMultiplier gives the segment transfer rate, BaudRate*BaudMultiplier.
	BaudMultiplier int

	ResetPin           string
	BootstrapPin       string
	ResetActiveLow     bool
	BootstrapActiveLow bool

	// ImageDir is prepended to relative image names.
	ImageDir      string
	DownloadAgent string
	Loader        string
	WiFi          string
	Bluetooth     string

	// Strategy is the restart policy of the low baud handshake.
	Strategy         string
	HandshakeTimeout time.Duration
	SelectTimeout    time.Duration
	ReadTimeout      time.Duration
	SettleDelay      time.Duration
	MaxRetries       int
	MaxNoise         int

	// Optimistic keeps going after a failed low baud handshake or download
	// agent transfer, only logging the failure.
	Optimistic bool

	// CaptureDir enables the raw capture file when set.
	CaptureDir string

	TransferCommand string
	TransferArgs    string
	TransferTimeout time.Duration

	// MQTTBrokerURL enables report publishing, e.g. mqtt://host:1883/mtk/
	MQTTBrokerURL string
}

var defaultConfig = Config{
	Device:           "/dev/ttyHS0",
	BaudRate:         115200,
	BaudMultiplier:   8,
	ResetPin:         "GPIO2",
	BootstrapPin:     "GPIO7",
	ImageDir:         "/home/root/mtfiles",
	DownloadAgent:    "da97.bin",
	Loader:           "mt7697_bootloader.bin",
	WiFi:             "WIFI_RAM_CODE_MT76X7_in_flash.bin",
	Bluetooth:        "ble_smart_connect.bin",
	Strategy:         StrategySilence.String(),
	HandshakeTimeout: 3 * time.Second,
	SelectTimeout:    3 * time.Second,
	ReadTimeout:      100 * time.Millisecond,
	SettleDelay:      time.Second,
	MaxRetries:       3,
	MaxNoise:         3,
	TransferCommand:  "sx",
	TransferArgs:     "-vv",
	TransferTimeout:  5 * time.Minute,
}

func init() {
	if val := os.Getenv("MTK_SERIAL_PORT"); val != "" {
		defaultConfig.Device = val
	}
	if val := os.Getenv("MTK_IMAGE_DIR"); val != "" {
		defaultConfig.ImageDir = val
	}
	if val := os.Getenv("MTK_GPIO_RESET"); val != "" {
		defaultConfig.ResetPin = val
	}
	if val := os.Getenv("MTK_GPIO_BOOTSTRAP"); val != "" {
		defaultConfig.BootstrapPin = val
	}
	if val := os.Getenv("MTK_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	c := &defaultConfig
	flag.StringVar(&c.Device, "device", c.Device, "Serial device connected to the MTK7697.")
	flag.IntVar(&c.BaudRate, "baud", c.BaudRate, "Bootloader baud rate.")
	flag.IntVar(&c.BaudMultiplier, "baud-multiplier", c.BaudMultiplier, "Segment transfer baud rate multiplier (1-16).")
	flag.StringVar(&c.ResetPin, "reset-pin", c.ResetPin, "GPIO driving the target reset line.")
	flag.StringVar(&c.BootstrapPin, "bootstrap-pin", c.BootstrapPin, "GPIO driving the target bootstrap line.")
	flag.BoolVar(&c.ResetActiveLow, "reset-active-low", c.ResetActiveLow, "Reset GPIO is active low.")
	flag.BoolVar(&c.BootstrapActiveLow, "bootstrap-active-low", c.BootstrapActiveLow, "Bootstrap GPIO is active low.")
	flag.StringVar(&c.ImageDir, "image-dir", c.ImageDir, "Directory of relative image paths.")
	flag.StringVar(&c.DownloadAgent, "da", c.DownloadAgent, "Download agent image.")
	flag.StringVar(&c.Loader, "ldr", c.Loader, "Loader segment image.")
	flag.StringVar(&c.WiFi, "n9", c.WiFi, "Wi-Fi RAM code segment image.")
	flag.StringVar(&c.Bluetooth, "cm4", c.Bluetooth, "Bluetooth segment image.")
	flag.StringVar(&c.Strategy, "strategy", c.Strategy, "Handshake restart strategy: silence or noise.")
	flag.DurationVar(&c.HandshakeTimeout, "handshake-timeout", c.HandshakeTimeout, "Handshake attempt timeout.")
	flag.DurationVar(&c.SelectTimeout, "select-timeout", c.SelectTimeout, "Timeout waiting for the segment select sync.")
	flag.DurationVar(&c.ReadTimeout, "read-timeout", c.ReadTimeout, "Deadline of a single byte read.")
	flag.DurationVar(&c.SettleDelay, "settle", c.SettleDelay, "Settle delay for reset and baud changes.")
	flag.IntVar(&c.MaxRetries, "retries", c.MaxRetries, "Handshake restarts allowed for the whole run.")
	flag.IntVar(&c.MaxNoise, "max-noise", c.MaxNoise, "Noise bytes tolerated per attempt by the noise strategy.")
	flag.BoolVar(&c.Optimistic, "optimistic", c.Optimistic, "Continue after a failed handshake or download agent transfer.")
	flag.StringVar(&c.CaptureDir, "capture-dir", c.CaptureDir, "Write a raw capture of the serial traffic to this directory.")
	flag.StringVar(&c.TransferCommand, "xmodem", c.TransferCommand, "XMODEM sender program.")
	flag.StringVar(&c.TransferArgs, "xmodem-args", c.TransferArgs, "Arguments passed to the XMODEM sender.")
	flag.DurationVar(&c.TransferTimeout, "xmodem-timeout", c.TransferTimeout, "Timeout of a single image transfer.")
	flag.StringVar(&c.MQTTBrokerURL, "mqtt", c.MQTTBrokerURL, "MQTT broker URL for run reports, empty to disable.")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// HighBaudRate is the baud rate used after the download agent runs.
func (c *Config) HighBaudRate() int {
	return c.BaudRate * c.BaudMultiplier
}

// TransferArgList splits TransferArgs.
func (c *Config) TransferArgList() []string {
	return strings.Fields(c.TransferArgs)
}

// Validate checks the config.
func (c *Config) Validate() error {
	switch {
	case c.Device == "":
		return fmt.Errorf("serial device must be specified")
	case c.BaudRate <= 0:
		return fmt.Errorf("invalid baud rate %d", c.BaudRate)
	case c.BaudMultiplier < 1 || c.BaudMultiplier > 16:
		return fmt.Errorf("baud multiplier %d out of range 1-16", c.BaudMultiplier)
	case c.ResetPin == "" || c.BootstrapPin == "":
		return fmt.Errorf("reset and bootstrap pins must be specified")
	case c.HandshakeTimeout <= 0 || c.SelectTimeout <= 0 || c.ReadTimeout <= 0:
		return fmt.Errorf("timeouts must be positive")
	case c.SettleDelay < 0:
		return fmt.Errorf("negative settle delay")
	case c.MaxRetries < 0 || c.MaxNoise < 0:
		return fmt.Errorf("retry and noise limits must not be negative")
	case c.TransferCommand == "":
		return fmt.Errorf("XMODEM sender must be specified")
	}
	if _, err := ParseStrategy(c.Strategy); err != nil {
		return err
	}
	return nil
}
