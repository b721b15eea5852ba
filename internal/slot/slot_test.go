package slot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thelolagemann/cartreader/internal/expander"
	"github.com/thelolagemann/cartreader/internal/sim"
)

func newBay(t *testing.T) (*Bay, *sim.Board) {
	t.Helper()
	board := sim.NewBoard()
	ex := expander.New(board)
	ex.Init()
	return NewBay(ex, board.RD(), WithSpinner(board)), board
}

func TestPowerUpOrdersSupplyLast(t *testing.T) {
	bay, board := newBay(t)
	s := bay.Slot(GBA)

	var violations int
	board.Watch(func(prev, cur sim.Bus) {
		if cur.Powered() && !prev.Powered() {
			// every control line inactive the moment power arrives
			for _, line := range []byte{0x01, 0x04, 0x08} {
				if !cur.High(line) {
					violations++
				}
			}
			if !cur.RD {
				violations++
			}
		}
	})

	s.PowerUp()
	assert.True(t, s.Powered())
	assert.True(t, board.Bus().Powered())
	assert.Zero(t, violations)

	bus := board.Bus()
	assert.Equal(t, [3]byte{}, [3]byte{bus.Dir[0], bus.Dir[1], bus.Dir[2]}, "address and data lines are outputs")
	assert.Equal(t, [3]byte{}, [3]byte{bus.Latch[0], bus.Latch[1], bus.Latch[2]})
}

func TestSettleDelayOnce(t *testing.T) {
	bay, board := newBay(t)
	s := bay.Slot(GB)

	s.PowerUp()
	assert.Equal(t, SettleDelay, board.Now())

	s.PowerUp()
	assert.Equal(t, SettleDelay, board.Now(), "powered slot must not wait again")

	s.PowerDown()
	s.PowerUp()
	assert.Equal(t, SettleDelay, board.Now())

	other := bay.Slot(GBA)
	other.PowerUp()
	assert.Equal(t, SettleDelay, board.Now(), "the delay is spent once for the bay")
}

func TestPowerDownGroundsBus(t *testing.T) {
	bay, board := newBay(t)
	s := bay.Slot(GB)
	s.PowerUp()
	s.PowerDown()

	bus := board.Bus()
	assert.False(t, s.Powered())
	assert.False(t, bus.Powered())
	assert.False(t, bus.RD, "strobe is driven low")
	for p := 0; p < 3; p++ {
		assert.Zero(t, bus.Dir[p], "port %d floats", p)
		assert.Zero(t, bus.Latch[p])
	}
	assert.Equal(t, byte(0x40), bus.Dir[3], "only the detect switch is an input")
	assert.Equal(t, byte(0x80), bus.Latch[3]&0xBF)
}

func TestSlotsNeverPoweredTogether(t *testing.T) {
	bay, _ := newBay(t)
	gb := bay.Slot(GB)
	gba := bay.Slot(GBA)

	gb.PowerUp()
	require.True(t, gb.Powered())
	gba.PowerUp()
	assert.True(t, gba.Powered())
	assert.False(t, gb.Powered())

	gb.PowerUp()
	assert.False(t, gba.Powered())
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		cart sim.Cartridge
		want Kind
	}{
		{"empty", nil, KindGBA},
		{"gb", sim.NewGB(sim.GBImage{Title: "TEST"}.Build()), KindGB},
		{"gba", sim.NewGBA(sim.GBAImage{Title: "TEST", Size: 4 << 20}.Build()), KindGBA},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bay, board := newBay(t)
			s := bay.Slot(GB)
			bay.Slot(GBA)
			if tt.cart != nil {
				board.Insert(tt.cart)
			}

			s.PowerUp()
			assert.Equal(t, tt.want, bay.Detect())
			assert.False(t, s.Powered(), "detection powers the slot down")
			assert.Equal(t, tt.want.String(), bay.Detect().String())
		})
	}
}
