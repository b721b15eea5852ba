// Package board assembles a reader from a board profile, on the real
// hardware or on the simulated board.
package board

import (
	"time"

	"github.com/thelolagemann/cartreader/internal/advance"
	"github.com/thelolagemann/cartreader/internal/cartridge"
	"github.com/thelolagemann/cartreader/internal/config"
	"github.com/thelolagemann/cartreader/internal/expander"
	"github.com/thelolagemann/cartreader/internal/gbx"
	"github.com/thelolagemann/cartreader/internal/sim"
	"github.com/thelolagemann/cartreader/internal/slot"
	"github.com/thelolagemann/cartreader/internal/spi"
	"github.com/thelolagemann/cartreader/pkg/log"
)

// Board is an assembled reader.
type Board struct {
	*gbx.Reader
	Lock *spi.Lock

	// Sim is the simulated board, nil on hardware.
	Sim *sim.Board

	// Now measures elapsed time: the wall clock on hardware, the virtual
	// clock of the simulated board.
	Now func() time.Duration

	close func() error
}

func assemble(tr spi.Transport, rd spi.Pin, cs spi.ChipSelect, cfg config.Board, l log.Logger, opts ...slot.Opt) (*spi.Lock, *gbx.Reader) {
	ex := expander.New(tr)
	ex.Init()

	opts = append([]slot.Opt{slot.WithLogger(l), slot.WithSettleDelay(cfg.Settle)}, opts...)
	bay := slot.NewBay(ex, rd, opts...)
	lock := spi.NewLock(cs)
	r := gbx.New(lock, bay,
		cartridge.New(bay.Slot(slot.GB)),
		advance.New(bay.Slot(slot.GBA)),
		gbx.WithLogger(l),
	)
	return lock, r
}

// Open maps the peripheral registers and builds a reader on them.
func Open(cfg config.Board, l log.Logger) (*Board, error) {
	ctrl, err := spi.Open(cfg.SPI())
	if err != nil {
		return nil, err
	}
	rd := ctrl.Pin(cfg.ReadStrobe)
	lock, r := assemble(ctrl, rd, ctrl, cfg, l)

	start := time.Now()
	return &Board{
		Reader: r,
		Lock:   lock,
		Now:    func() time.Duration { return time.Since(start) },
		close:  ctrl.Close,
	}, nil
}

// Simulate builds a reader on a simulated board with cart inserted. An
// empty cart name leaves the slot empty.
func Simulate(cfg config.Board, cart string, l log.Logger) (*Board, error) {
	b := sim.NewBoard()
	b.SetClockHz(cfg.ClockHz)
	if cart != "" {
		c, err := sim.Catalog(cart)
		if err != nil {
			return nil, err
		}
		b.Insert(c)
	}

	lock, r := assemble(b, b.RD(), b, cfg, l, slot.WithSpinner(b))
	return &Board{
		Reader: r,
		Lock:   lock,
		Sim:    b,
		Now:    b.Now,
		close:  func() error { return nil },
	}, nil
}

// Close releases the hardware.
func (b *Board) Close() error {
	return b.close()
}
