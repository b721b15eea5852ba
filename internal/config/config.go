// Package config loads the board profile: how the reader is wired to its
// host, and where dumps go.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/thelolagemann/cartreader/internal/spi"
	"github.com/thelolagemann/cartreader/pkg/utils"
)

// Defaults of a Raspberry Pi 1 / Zero.
const (
	DefaultClockHz        = 10_000_000
	DefaultPeripheralBase = 0x20000000
	DefaultReadStrobe     = 25
	DefaultSettle         = 10 * time.Millisecond
	DefaultPoll           = time.Second

	// the expander tops out at 10MHz
	minClockHz = 100_000
	maxClockHz = 10_000_000

	maxGPIO = 53
)

// Board is a board profile.
type Board struct {
	ClockHz        uint32        `yaml:"clock_hz"`
	PeripheralBase int64         `yaml:"peripheral_base"`
	ReadStrobe     uint8         `yaml:"read_strobe_gpio"`
	Settle         time.Duration `yaml:"settle"`

	Store    string        `yaml:"store"`
	Compress bool          `yaml:"compress"`
	Poll     time.Duration `yaml:"poll"`
}

// Default returns the profile used when no file is given.
func Default() Board {
	return Board{
		ClockHz:        DefaultClockHz,
		PeripheralBase: DefaultPeripheralBase,
		ReadStrobe:     DefaultReadStrobe,
		Settle:         DefaultSettle,
		Store:          "dumps",
		Poll:           DefaultPoll,
	}
}

// Load reads the profile at path over the defaults. Keys missing from the
// file keep their default value. An empty path returns the defaults.
func Load(path string) (Board, error) {
	b := Default()
	if path == "" {
		return b, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return b, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, &b); err != nil {
		return b, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return b, b.Validate()
}

// Validate rejects profiles the board can't run with and clamps the clock
// into the range the expander supports.
func (b *Board) Validate() error {
	if b.ReadStrobe > maxGPIO {
		return fmt.Errorf("config: read strobe gpio %d out of range", b.ReadStrobe)
	}
	if b.PeripheralBase <= 0 {
		return errors.New("config: peripheral base must be set")
	}
	if b.Settle < 0 || b.Poll < 0 {
		return errors.New("config: negative delay")
	}
	if b.Poll == 0 {
		b.Poll = DefaultPoll
	}
	b.ClockHz = utils.Clamp(minClockHz, b.ClockHz, maxClockHz)
	return nil
}

// SPI returns the transport configuration of the profile.
func (b Board) SPI() spi.Config {
	return spi.Config{ClockHz: b.ClockHz, PeripheralBase: b.PeripheralBase}
}

// Save writes the profile to path.
func (b Board) Save(path string) error {
	data, err := yaml.Marshal(b)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
