package backlight

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// fb_blank values accepted by bl_power.
const (
	blankUnblank   = "0"
	blankPowerdown = "4"
)

const prefsTimeout = 200 * time.Millisecond

// Sysfs drives a backlight class device such as /sys/class/backlight/panel0.
type Sysfs struct {
	dir        string
	keyLED     string
	dimPercent int
	prefs      BrightnessSource
	log        logrus.FieldLogger

	standby bool // panel blanked by Standby(true)
}

// NewSysfs creates an actuator for the backlight device in dir. keyLED is the
// brightness attribute of the key-backlight LED; empty disables it.
func NewSysfs(dir, keyLED string, dimPercent int, prefs BrightnessSource, log logrus.FieldLogger) *Sysfs {
	return &Sysfs{
		dir:        dir,
		keyLED:     keyLED,
		dimPercent: dimPercent,
		prefs:      prefs,
		log:        log,
	}
}

// Update applies the stored brightness and unblanks the panel.
func (s *Sysfs) Update() error {
	ctx, cancel := context.WithTimeout(context.Background(), prefsTimeout)
	defer cancel()

	pct, err := s.prefs.Brightness(ctx)
	if err != nil {
		return errors.Wrap(err, "read brightness preference")
	}
	if err := s.setPercent(pct); err != nil {
		return err
	}
	if err := s.write("bl_power", blankUnblank); err != nil {
		return err
	}
	s.standby = false
	return nil
}

// Dim sets the panel to the dim level.
func (s *Sysfs) Dim() error {
	return s.setPercent(s.dimPercent)
}

// Off blanks the panel. It does nothing while standby already holds it blank.
func (s *Sysfs) Off() error {
	if s.standby {
		s.log.Debug("panel blanked by standby, skipping off")
		return nil
	}
	return s.write("bl_power", blankPowerdown)
}

// Standby blanks the panel on entry. Leaving standby only clears the mode;
// the next Update unblanks.
func (s *Sysfs) Standby(on bool) error {
	if !on {
		s.standby = false
		s.log.Debug("leaving backlight standby")
		return nil
	}
	if s.standby {
		return nil
	}
	if err := s.write("bl_power", blankPowerdown); err != nil {
		return err
	}
	s.standby = true
	return nil
}

// KeyLight switches the key-backlight LED on or off.
func (s *Sysfs) KeyLight(on bool) error {
	if s.keyLED == "" {
		return nil
	}
	v := "0"
	if on {
		v = "1"
	}
	if err := os.WriteFile(s.keyLED, []byte(v), 0o644); err != nil {
		return errors.Wrap(err, "write key backlight")
	}
	return nil
}

func (s *Sysfs) setPercent(pct int) error {
	maxRaw, err := s.readInt("max_brightness")
	if err != nil {
		return err
	}
	raw := maxRaw * clampPercent(pct) / 100
	if raw < 1 {
		raw = 1
	}
	return s.write("brightness", strconv.Itoa(raw))
}

func (s *Sysfs) readInt(attr string) (int, error) {
	buf, err := os.ReadFile(filepath.Join(s.dir, attr))
	if err != nil {
		return 0, errors.Wrapf(err, "read %s", attr)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(buf)))
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", attr)
	}
	return v, nil
}

func (s *Sysfs) write(attr, value string) error {
	if err := os.WriteFile(filepath.Join(s.dir, attr), []byte(value), 0o644); err != nil {
		return errors.Wrapf(err, "write %s", attr)
	}
	return nil
}

func clampPercent(pct int) int {
	if pct < 1 {
		return 1
	}
	if pct > 100 {
		return 100
	}
	return pct
}
