package sim

import (
	"fmt"
	"sort"
)

// GB header type bytes used by the catalog.
const (
	typeMBC1RAMBATT = 0x03
	typeMBC5RAMBATT = 0x1B
)

var catalog = map[string]func() Cartridge{
	"gb": func() Cartridge {
		return NewGB(GBImage{Title: "TETRIS", Type: typeMBC1RAMBATT, ROMCode: 0x04, RAMCode: 0x02}.Build())
	},
	"gbc": func() Cartridge {
		return NewGB(GBImage{Title: "POKEMON_GLD", CGBFlag: 0x80, Type: typeMBC5RAMBATT, ROMCode: 0x06, RAMCode: 0x03}.Build())
	},
	"gba-eeprom4k": func() Cartridge {
		return gbaCart("SUPER MARIOA", "AMAE", 4<<20).WithEEPROM(NewEEPROM(512))
	},
	"gba-eeprom64k": func() Cartridge {
		return gbaCart("ZELDA MINISH", "BZME", 16<<20).WithEEPROM(NewEEPROM(8 << 10))
	},
	"gba-sram256k": func() Cartridge {
		return gbaCart("GOLDEN SUN", "AGSE", 8<<20).WithSRAM(NewSRAM(32 << 10))
	},
	"gba-sram512k": func() Cartridge {
		return gbaCart("SRAM 64K", "ASRE", 8<<20).WithSRAM(NewSRAM(64 << 10))
	},
	"gba-flash512k": func() Cartridge {
		return gbaCart("POKEMON RUBY", "AXVE", 16<<20).WithFlash(NewFlash(64<<10, 0xBF, 0xD4))
	},
	"gba-flash1m": func() Cartridge {
		return gbaCart("POKEMON EMER", "BPEE", 16<<20).WithFlash(NewFlash(128<<10, 0xC2, 0x09))
	},
}

func gbaCart(title, code string, size int) *GBA {
	return NewGBA(GBAImage{Title: title, Code: code, Maker: "01", Size: size}.Build())
}

// Catalog returns a fresh cartridge of the named kind.
func Catalog(name string) (Cartridge, error) {
	build, ok := catalog[name]
	if !ok {
		return nil, fmt.Errorf("sim: unknown cartridge %q", name)
	}
	return build(), nil
}

// CatalogNames lists the kinds Catalog knows, sorted.
func CatalogNames() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
