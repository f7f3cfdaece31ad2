// Package config loads daemon settings from defaults, an optional YAML file,
// DISPLAY_POWERD_* environment variables and bound command-line flags.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/sweeney/display-powerd/internal/display"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "DISPLAY_POWERD"

// DefaultFile is read when present and no --config is given.
const DefaultFile = "/etc/display-powerd/config.yaml"

// Keys.
const (
	KeyNormal       = "timeouts.normal"
	KeyDim          = "timeouts.dim"
	KeyLCDOff       = "timeouts.lcdoff"
	KeyDimEnabled   = "dim.enabled"
	KeyPlugin       = "smartstay.plugin"
	KeyFallback     = "smartstay.fallback"
	KeyReapInterval = "standby.reap_interval"
	KeyBacklightDir = "backlight.dir"
	KeyKeyLED       = "backlight.key_led"
	KeyDimPercent   = "backlight.dim_percent"
	KeyDevices      = "devices"
	KeyPrefsPath    = "prefs.path"
	KeyGPIOChip     = "gpio.chip"
	KeyCoverPin     = "gpio.cover_pin"
	KeyPowerPin     = "gpio.power_pin"
	KeyBrightUpPin  = "gpio.brightness_up_pin"
	KeyBrightDnPin  = "gpio.brightness_down_pin"
	KeyBroker       = "mqtt.broker"
	KeyHeartbeat    = "mqtt.heartbeat"
	KeyHTTPAddr     = "http.addr"
	KeyLogLevel     = "log.level"
	KeyLogFormat    = "log.format"
)

// Config is the resolved daemon configuration.
type Config struct {
	NormalTimeout     time.Duration
	DimTimeout        time.Duration
	LCDOffTimeout     time.Duration
	DimEnabled        bool
	Plugin            string
	DetectionFallback time.Duration
	ReapInterval      time.Duration

	BacklightDir string
	KeyLED       string
	DimPercent   int
	Devices      map[string]string
	PrefsPath    string

	GPIOChip string
	CoverPin int
	PowerPin int
	// Brightness key lines; negative disables.
	BrightnessUpPin   int
	BrightnessDownPin int

	Broker    string
	Heartbeat time.Duration
	HTTPAddr  string

	LogLevel  string
	LogFormat string
}

// SetDefaults installs the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyNormal, 30*time.Second)
	v.SetDefault(KeyDim, 5*time.Second)
	v.SetDefault(KeyLCDOff, 10*time.Second)
	v.SetDefault(KeyDimEnabled, true)
	v.SetDefault(KeyPlugin, "/usr/lib/display-powerd/smartstay.so")
	v.SetDefault(KeyFallback, 3*time.Second)
	v.SetDefault(KeyReapInterval, 30*time.Second)
	v.SetDefault(KeyBacklightDir, "/sys/class/backlight/panel0")
	v.SetDefault(KeyKeyLED, "/sys/class/leds/keyboard-backlight/brightness")
	v.SetDefault(KeyDimPercent, 10)
	v.SetDefault(KeyDevices, map[string]string{
		"touchscreen": "/sys/class/input/input1/inhibited",
		"touchkey":    "/sys/class/input/input2/inhibited",
	})
	v.SetDefault(KeyPrefsPath, "/var/lib/display-powerd/prefs.db")
	v.SetDefault(KeyGPIOChip, "gpiochip0")
	v.SetDefault(KeyCoverPin, -1)
	v.SetDefault(KeyPowerPin, -1)
	v.SetDefault(KeyBrightUpPin, -1)
	v.SetDefault(KeyBrightDnPin, -1)
	v.SetDefault(KeyBroker, "tcp://127.0.0.1:1883")
	v.SetDefault(KeyHeartbeat, 15*time.Minute)
	v.SetDefault(KeyHTTPAddr, ":8080")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
}

// Load reads file (or DefaultFile when file is empty and it exists), applies
// environment overrides and validates the result. Flags must already be bound
// to v.
func Load(v *viper.Viper, file string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			file = DefaultFile
		}
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", file)
		}
	}

	c := Config{
		NormalTimeout:     v.GetDuration(KeyNormal),
		DimTimeout:        v.GetDuration(KeyDim),
		LCDOffTimeout:     v.GetDuration(KeyLCDOff),
		DimEnabled:        v.GetBool(KeyDimEnabled),
		Plugin:            v.GetString(KeyPlugin),
		DetectionFallback: v.GetDuration(KeyFallback),
		ReapInterval:      v.GetDuration(KeyReapInterval),
		BacklightDir:      v.GetString(KeyBacklightDir),
		KeyLED:            v.GetString(KeyKeyLED),
		DimPercent:        v.GetInt(KeyDimPercent),
		Devices:           v.GetStringMapString(KeyDevices),
		PrefsPath:         v.GetString(KeyPrefsPath),
		GPIOChip:          v.GetString(KeyGPIOChip),
		CoverPin:          v.GetInt(KeyCoverPin),
		PowerPin:          v.GetInt(KeyPowerPin),
		BrightnessUpPin:   v.GetInt(KeyBrightUpPin),
		BrightnessDownPin: v.GetInt(KeyBrightDnPin),
		Broker:            v.GetString(KeyBroker),
		Heartbeat:         v.GetDuration(KeyHeartbeat),
		HTTPAddr:          v.GetString(KeyHTTPAddr),
		LogLevel:          v.GetString(KeyLogLevel),
		LogFormat:         v.GetString(KeyLogFormat),
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects settings the controller cannot run with.
func (c Config) Validate() error {
	durations := []struct {
		key string
		d   time.Duration
	}{
		{KeyNormal, c.NormalTimeout},
		{KeyDim, c.DimTimeout},
		{KeyLCDOff, c.LCDOffTimeout},
		{KeyFallback, c.DetectionFallback},
		{KeyReapInterval, c.ReapInterval},
		{KeyHeartbeat, c.Heartbeat},
	}
	for _, d := range durations {
		if d.d < 0 {
			return errors.Errorf("%s: negative duration %v", d.key, d.d)
		}
	}
	if c.NormalTimeout == 0 {
		return errors.Errorf("%s must be greater than zero", KeyNormal)
	}
	if c.DimEnabled && c.DimTimeout == 0 {
		return errors.Errorf("%s must be greater than zero while %s is set", KeyDim, KeyDimEnabled)
	}
	if c.Plugin != "" && c.DetectionFallback == 0 {
		return errors.Errorf("%s must be greater than zero while %s is set", KeyFallback, KeyPlugin)
	}
	if c.DimPercent < 1 || c.DimPercent > 100 {
		return errors.Errorf("%s: %d not in [1,100]", KeyDimPercent, c.DimPercent)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, KeyLogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return errors.Errorf("%s: unknown format %q", KeyLogFormat, c.LogFormat)
	}
	return nil
}

// Display returns the controller settings.
func (c Config) Display() display.Config {
	d := display.DefaultConfig()
	d.NormalTimeout = c.NormalTimeout
	d.DimTimeout = c.DimTimeout
	d.LCDOffTimeout = c.LCDOffTimeout
	d.DimEnabled = c.DimEnabled
	d.DetectionFallback = c.DetectionFallback
	d.ReapInterval = c.ReapInterval
	return d
}

// Logger builds a logger with the configured level and format.
func (c Config) Logger() *logrus.Logger {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(c.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	switch c.LogFormat {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
