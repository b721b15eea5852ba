package cartridge

import (
	"crypto/sha1"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thelolagemann/cartreader/internal/expander"
	"github.com/thelolagemann/cartreader/internal/sim"
	"github.com/thelolagemann/cartreader/internal/slot"
)

func newEngine(t testing.TB, rom []byte) (*Engine, *sim.Board, *sim.GB) {
	t.Helper()
	board := sim.NewBoard()
	ex := expander.New(board)
	ex.Init()
	bay := slot.NewBay(ex, board.RD(), slot.WithSpinner(board))
	e := New(bay.Slot(slot.GB))

	var cart *sim.GB
	if rom != nil {
		cart = sim.NewGB(rom)
		board.Insert(cart)
	}
	return e, board, cart
}

func TestLoadHeader(t *testing.T) {
	rom := sim.GBImage{
		Title:   "POKEMON RED",
		Type:    byte(MBC3RAMBATT),
		ROMCode: 0x05,
		RAMCode: 0x03,
	}.Build()
	e, board, _ := newEngine(t, rom)

	var sess Session
	require.True(t, e.LoadHeader(&sess))
	assert.True(t, sess.Loaded())
	assert.Equal(t, "POKEMON_RED", sess.Title)
	assert.Equal(t, FlagOnlyDMG, sess.CGB)
	assert.Equal(t, MBC3RAMBATT, sess.CartridgeType)
	assert.Equal(t, ControllerMBC3, sess.Controller)
	assert.Equal(t, 1024*1024, sess.ROMSize)
	assert.Equal(t, 32*1024, sess.SaveSize)
	assert.Equal(t, fmt.Sprintf("%X", sha1.Sum(rom[:1024])), sess.Hash)
	assert.Len(t, sess.Hash, 40)
	assert.False(t, board.Bus().Powered(), "slot is powered down afterwards")
}

func TestColourFlag(t *testing.T) {
	tests := []struct {
		flag  byte
		want  Flag
		title string
	}{
		{0x00, FlagOnlyDMG, "ZELDA"},
		{0x80, FlagSupportsCGB, "ZELDA"},
		{0xC0, FlagOnlyCGB, "ZELDA"},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			rom := sim.GBImage{Title: "ZELDA", CGBFlag: tt.flag, Type: byte(MBC5)}.Build()
			e, _, _ := newEngine(t, rom)
			var sess Session
			require.True(t, e.LoadHeader(&sess))
			assert.Equal(t, tt.want, sess.CGB)
			assert.Equal(t, tt.title, sess.Title)
		})
	}
}

func TestLogoMutationFails(t *testing.T) {
	for i := 0; i < len(NintendoLogo); i++ {
		rom := sim.GBImage{Title: "TETRIS"}.Build()
		rom[0x104+i] ^= 0x01
		e, _, _ := newEngine(t, rom)

		var sess Session
		assert.False(t, e.LoadHeader(&sess), "mutated logo byte %d verified", i)
		assert.False(t, sess.Loaded())
	}
}

func TestNoCartridge(t *testing.T) {
	e, _, _ := newEngine(t, nil)
	var sess Session
	assert.False(t, e.LoadHeader(&sess))

	n, err := e.ReadROM(&sess, make([]byte, 32*1024))
	assert.ErrorIs(t, err, slot.ErrNoCartridge)
	assert.Zero(t, n)
}

func TestReadROM(t *testing.T) {
	tests := []struct {
		name    string
		typ     Type
		romCode byte
	}{
		{"rom only", ROM, 0x00},
		{"mbc1", MBC1, 0x04},
		{"mbc1 1M", MBC1, 0x05},
		{"mbc2", MBC2, 0x03},
		{"mbc3", MBC3, 0x05},
		{"mbc5", MBC5, 0x04},
		{"mbc5 8M", MBC5, 0x08},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rom := sim.GBImage{Title: "DUMP", Type: byte(tt.typ), ROMCode: tt.romCode}.Build()
			if testing.Short() && len(rom) > 1<<20 {
				t.Skip("full dump of a large ROM")
			}
			e, _, cart := newEngine(t, rom)

			var sess Session
			require.True(t, e.LoadHeader(&sess))

			buf := make([]byte, len(rom)+1024)
			n, err := e.ReadROM(&sess, buf)
			require.NoError(t, err)
			require.Equal(t, len(rom), n)
			assert.Equal(t, rom, buf[:n])

			// the controller is back on bank 1
			for _, addr := range []uint16{0x4000, 0x5555, 0x7FFF} {
				assert.Equal(t, rom[addr], cart.Peek(addr))
			}
		})
	}
}

func TestSelectROMBank(t *testing.T) {
	tests := []struct {
		name    string
		typ     Type
		ctl     Controller
		romCode byte
		banks   []int
	}{
		{"mbc1 upper bits", MBC1, ControllerMBC1, 0x05, []int{0x21, 0x3F, 0x20, 0x01}},
		{"mbc1 low window banks", MBC1, ControllerMBC1, 0x06, []int{0x20, 0x40, 0x60, 0x61}},
		{"mbc5 bit 8", MBC5, ControllerMBC5, 0x08, []int{0x100, 0x1FF, 0x0FF, 0x180, 0x001}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rom := sim.GBImage{Title: "BANKS", Type: byte(tt.typ), ROMCode: tt.romCode}.Build()
			e, _, _ := newEngine(t, rom)
			defer e.slot.PowerDown()

			sw := controllerFor(tt.ctl)
			sw.prepareROM(e)
			buf := make([]byte, 256)
			for _, bank := range tt.banks {
				window := sw.selectROM(e, bank)
				require.Equal(t, len(buf), e.readAt(buf, window+0x1000))
				start := bank*romBankSize + 0x1000
				assert.Equal(t, rom[start:start+len(buf)], buf, "bank %#x", bank)
			}
			sw.restoreROM(e)
		})
	}
}

func TestReadROMShortBuffer(t *testing.T) {
	rom := sim.GBImage{Title: "SHORT", Type: byte(MBC5), ROMCode: 0x02}.Build()
	e, _, _ := newEngine(t, rom)

	var sess Session
	buf := make([]byte, 0x4000+0x123)
	n, err := e.ReadROM(&sess, buf)
	require.NoError(t, err, "read loads the header on demand")
	assert.Equal(t, len(buf), n)
	assert.Equal(t, rom[:n], buf)
}

func TestSaveRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		typ     Type
		ramCode byte
		size    int
	}{
		{"mbc1 32K", MBC1RAMBATT, 0x03, 32 * 1024},
		{"mbc1 2K", MBC1RAMBATT, 0x01, 2 * 1024},
		{"mbc2", MBC2BATT, 0x00, 512},
		{"mbc3", MBC3RAMBATT, 0x03, 32 * 1024},
		{"mbc5", MBC5RAMBATT, 0x02, 8 * 1024},
		{"rom ram", ROMRAMBATT, 0x02, 8 * 1024},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rom := sim.GBImage{Title: "SAVE", Type: byte(tt.typ), ROMCode: 0x01, RAMCode: tt.ramCode}.Build()
			e, _, cart := newEngine(t, rom)

			var sess Session
			require.True(t, e.LoadHeader(&sess))
			require.Equal(t, tt.size, sess.SaveSize)

			save := make([]byte, tt.size)
			rand.New(rand.NewSource(int64(tt.size))).Read(save)
			if tt.typ == MBC2BATT {
				for i := range save {
					save[i] |= 0xF0
				}
			}

			n, err := e.WriteSave(&sess, save)
			require.NoError(t, err)
			require.Equal(t, tt.size, n)

			ram := cart.RAM()
			if tt.typ == MBC2BATT {
				for i := range ram {
					require.Equal(t, save[i]&0x0F, ram[i])
				}
			} else {
				require.Equal(t, save, ram[:tt.size])
			}

			got := make([]byte, tt.size)
			n, err = e.ReadSave(&sess, got)
			require.NoError(t, err)
			require.Equal(t, tt.size, n)
			assert.Equal(t, save, got)
		})
	}
}

func TestMBC1SaveSizeFromHeader(t *testing.T) {
	rom := sim.GBImage{Title: "SIZE", Type: byte(MBC1RAMBATT), ROMCode: 0x01, RAMCode: 0x03}.Build()
	e, _, _ := newEngine(t, rom)
	var sess Session
	require.True(t, e.LoadHeader(&sess))
	assert.Equal(t, 32*1024, sess.SaveSize)
}

func TestUnbankedSaveWindow(t *testing.T) {
	for _, typ := range []Type{MMM01RAMBATT, HUDSONHUC1, MBC7, ROMRAMBATT} {
		t.Run(fmt.Sprintf("%#02x", byte(typ)), func(t *testing.T) {
			rom := sim.GBImage{Title: "ODD", Type: byte(typ), ROMCode: 0x01, RAMCode: 0x03}.Build()
			e, _, cart := newEngine(t, rom)
			var sess Session
			require.True(t, e.LoadHeader(&sess))
			assert.Equal(t, ControllerNone, sess.Controller)
			assert.Equal(t, 32*1024, sess.SaveSize)

			save := make([]byte, sess.SaveSize)
			rand.New(rand.NewSource(int64(typ))).Read(save)
			n, err := e.WriteSave(&sess, save)
			require.NoError(t, err)
			require.Equal(t, ramBankSize, n)
			assert.Equal(t, save[:n], cart.RAM()[:n])
			assert.Zero(t, cart.RAM()[n], "nothing past the window")

			got := make([]byte, sess.SaveSize)
			n, err = e.ReadSave(&sess, got)
			require.NoError(t, err)
			require.Equal(t, ramBankSize, n)
			assert.Equal(t, save[:n], got[:n])
		})
	}

	t.Run("no battery", func(t *testing.T) {
		rom := sim.GBImage{Title: "ODD", Type: byte(MBC1RAM), ROMCode: 0x01, RAMCode: 0x03}.Build()
		e, _, _ := newEngine(t, rom)
		var sess Session
		require.True(t, e.LoadHeader(&sess))
		assert.Zero(t, sess.SaveSize)

		n, err := e.ReadSave(&sess, make([]byte, 1024))
		assert.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestWriteSaveChecks(t *testing.T) {
	romA := sim.GBImage{Title: "GAME A", Type: byte(MBC5RAMBATT), ROMCode: 0x01, RAMCode: 0x02}.Build()
	romB := sim.GBImage{Title: "GAME B", Type: byte(MBC5RAMBATT), ROMCode: 0x01, RAMCode: 0x02}.Build()
	save := make([]byte, 8*1024)
	for i := range save {
		save[i] = 0x5A
	}

	t.Run("not loaded", func(t *testing.T) {
		e, _, cart := newEngine(t, romA)
		var sess Session
		_, err := e.WriteSave(&sess, save)
		assert.ErrorIs(t, err, slot.ErrNotLoaded)
		assert.Zero(t, cart.RAM()[0], "nothing written")
	})

	t.Run("changed", func(t *testing.T) {
		e, board, _ := newEngine(t, romA)
		var sess Session
		require.True(t, e.LoadHeader(&sess))

		other := sim.NewGB(romB)
		copy(other.RAM(), []byte{1, 2, 3})
		board.Insert(other)

		_, err := e.WriteSave(&sess, save)
		assert.ErrorIs(t, err, slot.ErrChanged)
		assert.Equal(t, []byte{1, 2, 3}, other.RAM()[:3], "the other cartridge is untouched")
		assert.Equal(t, "GAME_B", sess.Title, "session follows the new cartridge")
	})

	t.Run("removed", func(t *testing.T) {
		e, board, _ := newEngine(t, romA)
		var sess Session
		require.True(t, e.LoadHeader(&sess))
		board.Eject()

		_, err := e.WriteSave(&sess, save)
		assert.ErrorIs(t, err, slot.ErrNoCartridge)
		assert.False(t, sess.Loaded())
	})
}

func TestIsLoaded(t *testing.T) {
	rom := sim.GBImage{Title: "LOADED", Type: byte(MBC1)}.Build()
	e, board, _ := newEngine(t, rom)

	var sess Session
	assert.False(t, e.IsLoaded(&sess))
	require.True(t, e.LoadHeader(&sess))
	assert.True(t, e.IsLoaded(&sess))

	board.Insert(sim.NewGB(sim.GBImage{Title: "OTHER", Type: byte(MBC1)}.Build()))
	assert.False(t, e.IsLoaded(&sess))
	assert.False(t, sess.Loaded(), "a mismatch clears the session")
}

func TestDumpHeader(t *testing.T) {
	rom := sim.GBImage{Title: "DUMP"}.Build()
	e, _, _ := newEngine(t, rom)
	buf := make([]byte, 1024)
	n := e.DumpHeader(buf)
	assert.Equal(t, HeaderDumpLen, n)
	assert.Equal(t, rom[:HeaderDumpLen], buf[:n])
}

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"TETRIS\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00", "TETRIS"},
		{"SUPER MARIOLAND\x00", "SUPER_MARIOLAND"},
		{"A\x00B\x00C", "ABC"},
		{"TRAIL   \x00", "TRAIL"},
		{"HI\xff", "HI"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanTitle([]byte(tt.raw)))
		})
	}
}

func BenchmarkReadAt(b *testing.B) {
	rom := sim.GBImage{Title: "BENCH"}.Build()
	e, _, _ := newEngine(b, rom)
	buf := make([]byte, 0x100)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.readAt(buf, 0)
	}
}
