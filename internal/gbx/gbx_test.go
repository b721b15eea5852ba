package gbx

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thelolagemann/cartreader/internal/advance"
	"github.com/thelolagemann/cartreader/internal/cartridge"
	"github.com/thelolagemann/cartreader/internal/expander"
	"github.com/thelolagemann/cartreader/internal/sim"
	"github.com/thelolagemann/cartreader/internal/slot"
	"github.com/thelolagemann/cartreader/internal/spi"
)

func newReader(t testing.TB) (*Reader, *sim.Board, *spi.Lock) {
	t.Helper()
	board := sim.NewBoard()
	ex := expander.New(board)
	ex.Init()
	bay := slot.NewBay(ex, board.RD(), slot.WithSpinner(board))
	lock := spi.NewLock(board)
	r := New(lock, bay,
		cartridge.New(bay.Slot(slot.GB)),
		advance.New(bay.Slot(slot.GBA)),
	)
	return r, board, lock
}

func gbCart(title string, flag byte) *sim.GB {
	return sim.NewGB(sim.GBImage{
		Title:   title,
		CGBFlag: flag,
		Type:    byte(cartridge.MBC5RAMBATT),
		ROMCode: 0x05,
		RAMCode: 0x03,
	}.Build())
}

func gbaCart(title string) (*sim.GBA, *sim.SRAM) {
	sram := sim.NewSRAM(32 * 1024)
	rom := sim.GBAImage{Title: title, Code: "AGBE", Maker: "01", Size: 16 << 20}.Build()
	return sim.NewGBA(rom).WithSRAM(sram), sram
}

func TestLoadHeader(t *testing.T) {
	t.Run("gb", func(t *testing.T) {
		r, board, lock := newReader(t)
		board.Insert(gbCart("TETRIS", 0x00))

		assert.Equal(t, PlatformGB, r.LoadHeader())
		assert.Equal(t, PlatformGB, r.CartridgeType())
		assert.Equal(t, "TETRIS", r.GameTitle())
		assert.Len(t, r.GameIdentifier(), 40)
		assert.Equal(t, 1<<20, r.ROMSize())
		assert.Equal(t, 32*1024, r.SaveSize())
		assert.Equal(t, "Battery RAM", r.SaveType())
		assert.Zero(t, lock.Holder(), "lock released")
		assert.False(t, board.Bus().Powered())
	})

	t.Run("gbc", func(t *testing.T) {
		r, board, _ := newReader(t)
		board.Insert(gbCart("POKEMON GOLD", 0x80))
		assert.Equal(t, PlatformGBC, r.LoadHeader())
		assert.Equal(t, "POKEMON_GOLD", r.GameTitle())
	})

	t.Run("gba", func(t *testing.T) {
		r, board, _ := newReader(t)
		cart, _ := gbaCart("ADVANCE WARS")
		board.Insert(cart)

		assert.Equal(t, PlatformGBA, r.LoadHeader())
		assert.Equal(t, "ADVANCE WARS", r.GameTitle())
		assert.Equal(t, "AGBE", r.GameIdentifier())
		assert.Equal(t, 16<<20, r.ROMSize())
		assert.Equal(t, 32*1024, r.SaveSize())
		assert.Equal(t, "SRAM 256K", r.SaveType())
	})

	t.Run("empty", func(t *testing.T) {
		r, _, _ := newReader(t)
		assert.Equal(t, PlatformNone, r.LoadHeader())
		assert.Zero(t, r.ROMSize())
		assert.Equal(t, "None", r.SaveType())
		assert.False(t, r.IsLoaded())
	})
}

func TestSwapClearsOtherSession(t *testing.T) {
	r, board, _ := newReader(t)
	cart, _ := gbaCart("ADVANCE WARS")
	board.Insert(cart)
	require.Equal(t, PlatformGBA, r.LoadHeader())

	board.Insert(gbCart("TETRIS", 0x00))
	require.Equal(t, PlatformGB, r.LoadHeader())

	info := r.Info()
	assert.Equal(t, "TETRIS", info.Title)
	assert.Empty(t, info.Maker)
	assert.Equal(t, "MBC5", info.Controller)
	assert.Equal(t, 1<<20, r.ROMSize())
}

func TestIsLoaded(t *testing.T) {
	r, board, _ := newReader(t)
	board.Insert(gbCart("TETRIS", 0x00))
	require.Equal(t, PlatformGB, r.LoadHeader())
	assert.True(t, r.IsLoaded())

	board.Eject()
	assert.False(t, r.IsLoaded())
}

func TestWriteSave(t *testing.T) {
	save := make([]byte, 32*1024)
	for i := range save {
		save[i] = byte(i * 7)
	}

	t.Run("not loaded", func(t *testing.T) {
		r, board, _ := newReader(t)
		board.Insert(gbCart("TETRIS", 0x00))

		n, err := r.WriteSave(save)
		assert.ErrorIs(t, err, ErrNotLoaded)
		assert.Equal(t, CodeNotLoaded, Code(err))
		assert.Zero(t, n)
	})

	t.Run("changed platform", func(t *testing.T) {
		r, board, _ := newReader(t)
		gb := gbCart("TETRIS", 0x00)
		board.Insert(gb)
		require.Equal(t, PlatformGB, r.LoadHeader())

		cart, sram := gbaCart("ADVANCE WARS")
		before := append([]byte(nil), sram.Data...)
		board.Insert(cart)

		_, err := r.WriteSave(save)
		assert.ErrorIs(t, err, ErrChanged)
		assert.Equal(t, CodeChanged, Code(err))
		assert.Equal(t, before, sram.Data)
		assert.Equal(t, PlatformGBA, r.CartridgeType())
	})

	t.Run("removed", func(t *testing.T) {
		r, board, lock := newReader(t)
		board.Insert(gbCart("TETRIS", 0x00))
		require.Equal(t, PlatformGB, r.LoadHeader())
		board.Eject()

		_, err := r.WriteSave(save)
		assert.ErrorIs(t, err, ErrNoCartridge)
		assert.Equal(t, CodeNoCartridge, Code(err))
		assert.Equal(t, PlatformNone, r.CartridgeType())
		assert.Zero(t, lock.Holder())
	})

	t.Run("gb", func(t *testing.T) {
		r, board, _ := newReader(t)
		gb := gbCart("TETRIS", 0x00)
		board.Insert(gb)
		require.Equal(t, PlatformGB, r.LoadHeader())

		n, err := r.WriteSave(save)
		require.NoError(t, err)
		assert.Equal(t, len(save), n)
		assert.Equal(t, save, gb.RAM())

		got := make([]byte, len(save))
		n, err = r.ReadSave(got)
		require.NoError(t, err)
		assert.Equal(t, len(save), n)
		assert.Equal(t, save, got)
	})

	t.Run("gba", func(t *testing.T) {
		r, board, _ := newReader(t)
		cart, sram := gbaCart("ADVANCE WARS")
		board.Insert(cart)
		require.Equal(t, PlatformGBA, r.LoadHeader())

		n, err := r.WriteSave(save)
		require.NoError(t, err)
		assert.Equal(t, len(save), n)
		assert.Equal(t, save, sram.Data)
	})
}

func TestReadROM(t *testing.T) {
	t.Run("nothing loaded", func(t *testing.T) {
		r, _, _ := newReader(t)
		_, err := r.ReadROM(make([]byte, 1024))
		assert.ErrorIs(t, err, ErrNoCartridge)

		_, err = r.ReadSave(make([]byte, 1024))
		assert.ErrorIs(t, err, ErrNoCartridge)
	})

	t.Run("gba", func(t *testing.T) {
		r, board, _ := newReader(t)
		cart, _ := gbaCart("ADVANCE WARS")
		board.Insert(cart)
		require.Equal(t, PlatformGBA, r.LoadHeader())

		buf := make([]byte, 0x400)
		n, err := r.ReadROM(buf)
		require.NoError(t, err)
		require.Equal(t, len(buf), n)
		for i := range buf {
			require.Equal(t, cart.ROM().At(i), buf[i])
		}
	})

	t.Run("moved to the other slot", func(t *testing.T) {
		r, board, _ := newReader(t)
		board.Insert(gbCart("TETRIS", 0x00))
		require.Equal(t, PlatformGB, r.LoadHeader())

		cart, _ := gbaCart("ADVANCE WARS")
		board.Insert(cart)
		_, err := r.ReadROM(make([]byte, 1024))
		assert.ErrorIs(t, err, ErrChanged)
		assert.Equal(t, PlatformGBA, r.CartridgeType())
	})
}

func TestDumpHeader(t *testing.T) {
	r, board, _ := newReader(t)
	rom := sim.GBImage{Title: "DUMP"}.Build()
	board.Insert(sim.NewGB(rom))

	buf := make([]byte, 1024)
	n, p := r.DumpHeader(buf)
	assert.Equal(t, PlatformGB, p)
	assert.Equal(t, cartridge.HeaderDumpLen, n)
	assert.Equal(t, rom[:n], buf[:n])
	assert.Equal(t, PlatformNone, r.CartridgeType(), "dumping loads nothing")
}

func TestBusLockExcludesOtherOwners(t *testing.T) {
	r, board, lock := newReader(t)
	board.Insert(gbCart("TETRIS", 0x00))

	lock.Obtain(spi.KeyRadio, true)
	var (
		loaded   atomic.Bool
		platform Platform
	)
	go func() {
		platform = r.LoadHeader()
		loaded.Store(true)
	}()

	assert.Never(t, loaded.Load, 50*time.Millisecond, 5*time.Millisecond,
		"loaded while the radio held the bus")
	assert.Equal(t, spi.KeyRadio, lock.Holder())

	lock.Unlock(spi.KeyRadio)
	require.Eventually(t, loaded.Load, 5*time.Second, time.Millisecond)
	assert.Equal(t, PlatformGB, platform)
	assert.Zero(t, lock.Holder())
}

func TestEstimates(t *testing.T) {
	t.Run("gba", func(t *testing.T) {
		r, board, _ := newReader(t)
		cart, _ := gbaCart("ADVANCE WARS")
		board.Insert(cart)
		require.Equal(t, PlatformGBA, r.LoadHeader())

		assert.Equal(t, 23571*time.Millisecond, r.TimeToReadROM())
		assert.Equal(t, 361*time.Millisecond, r.TimeToReadSave())
		assert.Equal(t, 734*time.Millisecond, r.TimeToWriteSave())
	})

	t.Run("gb", func(t *testing.T) {
		r, board, _ := newReader(t)
		board.Insert(gbCart("TETRIS", 0x00))
		require.Equal(t, PlatformGB, r.LoadHeader())

		assert.Equal(t, 10752*time.Millisecond, r.TimeToReadROM())
		assert.Equal(t, 696*time.Millisecond, r.TimeToReadSave())
		assert.Equal(t, 724*time.Millisecond, r.TimeToWriteSave())
	})

	t.Run("unknown gba save", func(t *testing.T) {
		assert.Equal(t, 1500*time.Millisecond, lookup(gbaReadTimes, advance.SaveUnknown, gbaUnknownReadTime))
		assert.Equal(t, 15*time.Second, lookup(gbaWriteTimes, advance.SaveUnknown, gbaUnknownWriteTime))
	})
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{ErrNoCartridge, -1},
		{ErrChanged, -2},
		{ErrNotLoaded, -3},
		{fmt.Errorf("write: %w", ErrChanged), -2},
		{ErrUnknownSave, 0},
		{errors.New("other"), 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Code(tt.err), "%v", tt.err)
	}
}

func TestPlatform(t *testing.T) {
	tests := []struct {
		p    Platform
		name string
		ext  string
	}{
		{PlatformNone, "None", "bin"},
		{PlatformGB, "GB", "gb"},
		{PlatformGBC, "GBC", "gbc"},
		{PlatformGBA, "GBA", "gba"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.p.String())
			assert.Equal(t, tt.ext, tt.p.Extension())

			text, err := tt.p.MarshalText()
			require.NoError(t, err)
			var p Platform
			require.NoError(t, p.UnmarshalText(text))
			assert.Equal(t, tt.p, p)
		})
	}

	var p Platform
	assert.Error(t, p.UnmarshalText([]byte("N64")))
}
