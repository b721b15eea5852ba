// Package slot sequences power to the two cartridge slots. Both slots hang
// off the same expander ports and share the detect switch, so a Bay makes
// sure only one of them is ever powered.
package slot

import (
	"errors"
	"time"

	"github.com/thelolagemann/cartreader/internal/expander"
	"github.com/thelolagemann/cartreader/internal/spi"
	"github.com/thelolagemann/cartreader/pkg/log"
)

var (
	// ErrNoCartridge is returned when no cartridge answers with a valid
	// header.
	ErrNoCartridge = errors.New("no cartridge")
	// ErrChanged is returned when the live cartridge no longer matches the
	// loaded header.
	ErrChanged = errors.New("cartridge changed")
	// ErrNotLoaded is returned by writes issued before a header was loaded.
	ErrNotLoaded = errors.New("cartridge not loaded")
)

// SettleDelay is how long the supply is given to come up on the first
// power-up.
const SettleDelay = 10 * time.Millisecond

// PinMap describes the port D control lines of a slot.
type PinMap struct {
	Name string

	// Controls are the lines driven while powered. All of them are
	// active low.
	Controls byte
	DTSW     byte
	PWR      byte
}

var (
	// GB is the Game Boy / Game Boy Color slot: CSRAM, WR and RST driven.
	GB = PinMap{Name: "gb", Controls: 0x01 | 0x04 | 0x08, DTSW: 0x40, PWR: 0x80}
	// GBA is the Game Boy Advance slot: CS, WR and CS2 driven.
	GBA = PinMap{Name: "gba", Controls: 0x01 | 0x04 | 0x08, DTSW: 0x40, PWR: 0x80}
)

// Kind is what the detect switch reports.
type Kind uint8

const (
	KindGB Kind = iota
	KindGBA
)

func (k Kind) String() string {
	if k == KindGBA {
		return "gba"
	}
	return "gb"
}

// Opt configures a Bay.
type Opt func(b *Bay)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Opt {
	return func(b *Bay) {
		b.log = l
	}
}

// WithSpinner replaces the busy wait used for delays.
func WithSpinner(s spi.Spinner) Opt {
	return func(b *Bay) {
		b.spin = s
	}
}

// WithSettleDelay changes the first power-up delay.
func WithSettleDelay(d time.Duration) Opt {
	return func(b *Bay) {
		b.settle = d
	}
}

// Bay owns the expander ports and the read strobe shared by the slots.
type Bay struct {
	ex     *expander.Expander
	rd     spi.Pin
	spin   spi.Spinner
	settle time.Duration
	log    log.Logger

	slots   []*Slot
	active  *Slot
	settled bool
}

// NewBay returns a bay driving ex and rd. The expander must be initialised.
func NewBay(ex *expander.Expander, rd spi.Pin, opts ...Opt) *Bay {
	b := &Bay{
		ex:     ex,
		rd:     rd,
		spin:   spi.BusyWait{},
		settle: SettleDelay,
		log:    log.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Slot adds a slot with the given pin map and leaves it powered down.
func (b *Bay) Slot(pins PinMap) *Slot {
	s := &Slot{bay: b, pins: pins}
	b.slots = append(b.slots, s)
	s.PowerDown()
	return s
}

// Detect reads the slot switch. A Game Boy cartridge closes it and pulls
// DTSW low; with the switch open, or a GBA cartridge inserted, the pull-up
// holds it high.
func (b *Bay) Detect() Kind {
	if b.active != nil && b.active.powered {
		b.active.PowerDown()
	}
	pins := GB
	if len(b.slots) > 0 {
		pins = b.slots[0].pins
	}
	if b.ex.Read(expander.PortD)&pins.DTSW != 0 {
		return KindGBA
	}
	return KindGB
}

// Slot is one cartridge connector.
type Slot struct {
	bay     *Bay
	pins    PinMap
	powered bool
}

// Expander returns the shared port expander.
func (s *Slot) Expander() *expander.Expander {
	return s.bay.ex
}

// Strobe returns the read strobe.
func (s *Slot) Strobe() spi.Pin {
	return s.bay.rd
}

// Spin busy waits d.
func (s *Slot) Spin(d time.Duration) {
	s.bay.spin.Spin(d)
}

// Log returns the bay logger.
func (s *Slot) Log() log.Logger {
	return s.bay.log
}

// Pins returns the slot pin map.
func (s *Slot) Pins() PinMap {
	return s.pins
}

// Powered reports whether the slot supply is on.
func (s *Slot) Powered() bool {
	return s.powered
}

// PowerUp drives the bus to its idle state and switches the supply on.
// Address and data lines are outputs at 0, control lines outputs held
// inactive and the read strobe high. Calling it on a powered slot only
// restores the idle state. The settle delay is spent once per bay, on the
// first power-up of either slot.
func (s *Slot) PowerUp() {
	b := s.bay
	if b.active != nil && b.active != s && b.active.powered {
		b.active.PowerDown()
	}
	b.active = s

	dirD := ^(s.pins.Controls | s.pins.PWR)
	if s.powered {
		b.ex.SetDirAll(0x00, 0x00, 0x00, dirD)
		b.ex.WriteAll(0x00, 0x00, 0x00, ^s.pins.PWR)
		b.rd.Write(true)
		return
	}

	// every line inactive and the supply still off before anything is driven
	b.ex.WriteAll(0x00, 0x00, 0x00, 0xFF)
	b.rd.Write(true)
	b.rd.SetOutput(true)
	b.ex.SetDirAll(0x00, 0x00, 0x00, dirD)
	b.ex.Write(expander.PortD, ^s.pins.PWR)
	s.powered = true

	if !b.settled {
		b.log.Debugf("slot %s: waiting %v for supply to settle", s.pins.Name, b.settle)
		b.spin.Spin(b.settle)
		b.settled = true
	}
}

// PowerDown switches the supply off and grounds the bus. Only the detect
// switch is left an input, with its pull-up enabled.
func (s *Slot) PowerDown() {
	b := s.bay
	b.ex.SetPullupAll(0x00, 0x00, 0x00, s.pins.DTSW)
	b.ex.SetDirAll(0xFF, 0xFF, 0xFF, ^s.pins.PWR)
	b.rd.SetOutput(false)

	b.ex.WriteAll(0x00, 0x00, 0x00, s.pins.PWR)

	b.rd.Write(false)
	b.ex.SetDirAll(0x00, 0x00, 0x00, s.pins.DTSW)
	b.rd.SetOutput(true)
	s.powered = false
}
