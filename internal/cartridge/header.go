package cartridge

import (
	"bytes"
	"fmt"
	"strings"
)

// Flag is the colour support declared by byte 0x143.
type Flag uint8

const (
	FlagOnlyDMG Flag = iota
	FlagSupportsCGB
	FlagOnlyCGB
)

func (f Flag) String() string {
	switch f {
	case FlagSupportsCGB:
		return "CGB compatible"
	case FlagOnlyCGB:
		return "CGB only"
	default:
		return "DMG"
	}
}

var (
	romSizes = map[uint8]int{
		0x00: 32 * 1024,
		0x01: 64 * 1024,
		0x02: 128 * 1024,
		0x03: 256 * 1024,
		0x04: 512 * 1024,
		0x05: 1024 * 1024,
		0x06: 2048 * 1024,
		0x07: 4096 * 1024,
		0x08: 8192 * 1024,
		0x52: 1152 * 1024,
		0x53: 1280 * 1024,
		0x54: 1536 * 1024,
	}
	ramSizes = map[uint8]int{
		0x00: 0,
		0x01: 2 * 1024,
		0x02: 8 * 1024,
		0x03: 32 * 1024,
		0x04: 128 * 1024,
		0x05: 64 * 1024,
	}
)

// Type is the cartridge type byte at 0x147.
type Type uint8

const (
	ROM               Type = 0x00
	MBC1              Type = 0x01
	MBC1RAM           Type = 0x02
	MBC1RAMBATT       Type = 0x03
	MBC2              Type = 0x05
	MBC2BATT          Type = 0x06
	ROMRAM            Type = 0x08
	ROMRAMBATT        Type = 0x09
	MMM01             Type = 0x0B
	MMM01RAM          Type = 0x0C
	MMM01RAMBATT      Type = 0x0D
	MBC3TIMERBATT     Type = 0x0F
	MBC3TIMERRAMBATT  Type = 0x10
	MBC3              Type = 0x11
	MBC3RAM           Type = 0x12
	MBC3RAMBATT       Type = 0x13
	MBC5              Type = 0x19
	MBC5RAM           Type = 0x1A
	MBC5RAMBATT       Type = 0x1B
	MBC5RUMBLE        Type = 0x1C
	MBC5RUMBLERAM     Type = 0x1D
	MBC5RUMBLERAMBATT Type = 0x1E
	MBC6              Type = 0x20
	MBC7              Type = 0x22
	POCKETCAMERA      Type = 0x1F
	BANDAITAMA5       Type = 0xFD
	HUDSONHUC3        Type = 0xFE
	HUDSONHUC1        Type = 0xFF
)

// Controller returns the bank controller the reader drives for the type.
// Types without supported banking map to ControllerNone.
func (t Type) Controller() Controller {
	switch t {
	case MBC1, MBC1RAM, MBC1RAMBATT:
		return ControllerMBC1
	case MBC2, MBC2BATT:
		return ControllerMBC2
	case MBC3TIMERBATT, MBC3TIMERRAMBATT, MBC3, MBC3RAM, MBC3RAMBATT:
		return ControllerMBC3
	case MBC5, MBC5RAM, MBC5RAMBATT, MBC5RUMBLE, MBC5RUMBLERAM, MBC5RUMBLERAMBATT:
		return ControllerMBC5
	}
	return ControllerNone
}

// battery reports whether the type keeps its RAM across power cycles.
func (t Type) battery() bool {
	switch t {
	case MBC1RAMBATT, MBC2BATT, ROMRAMBATT, MMM01RAMBATT, MBC3TIMERRAMBATT,
		MBC3RAMBATT, MBC5RAMBATT, MBC5RUMBLERAMBATT, MBC7, HUDSONHUC1:
		return true
	}
	return false
}

// Header represents the cartridge header found at 0x0100-0x014F.
type Header struct {
	// 0x0134-0x0143 - title, cleaned into a filesystem safe identifier
	Title string

	// 0x0143 - colour support. In older cartridges this byte was part of
	// the title.
	CGB Flag

	// 0x0144-0x0145 - new licensee code
	NewLicenseeCode string
	SGBFlag         bool
	CartridgeType   Type
	Controller      Controller

	// ROMSize is decoded from 0x148, SaveSize from 0x149 for battery
	// backed types only.
	ROMSize  int
	SaveSize int

	MaskROMVersion uint8
	HeaderChecksum uint8
	GlobalChecksum uint16
}

// logoOffset is the position of the logo within the 0x50 byte header.
const logoOffset = 0x04

// verifyLogo reports whether header carries the exact reference logo.
func verifyLogo(header []byte) bool {
	return len(header) >= logoOffset+len(NintendoLogo) &&
		bytes.Equal(header[logoOffset:logoOffset+len(NintendoLogo)], NintendoLogo[:])
}

// parseTitle extracts the cleaned title and colour flag.
func parseTitle(header []byte) (string, Flag) {
	raw := make([]byte, 16)
	copy(raw, header[0x34:0x44])

	flag := FlagOnlyDMG
	if raw[15]&0x80 != 0 {
		flag = FlagSupportsCGB
		if raw[15]&0xC0 == 0xC0 {
			flag = FlagOnlyCGB
		}
		raw = raw[:15]
	}
	return cleanTitle(raw), flag
}

// cleanTitle drops control and non-ASCII bytes, closing the gaps they
// leave, turns spaces into underscores and trims trailing underscores.
func cleanTitle(raw []byte) string {
	var b strings.Builder
	for _, c := range raw {
		switch {
		case c < 0x20 || c >= 0x7F:
		case c == ' ':
			b.WriteByte('_')
		default:
			b.WriteByte(c)
		}
	}
	return strings.TrimRight(b.String(), "_")
}

// parseHeader parses the 0x50 bytes starting at 0x100.
func parseHeader(header []byte) (Header, error) {
	if len(header) < 0x50 {
		return Header{}, fmt.Errorf("cartridge: short header: %d bytes", len(header))
	}
	h := Header{}
	h.Title, h.CGB = parseTitle(header)
	h.NewLicenseeCode = string(header[0x44:0x46])
	h.SGBFlag = header[0x46] == 0x03
	h.CartridgeType = Type(header[0x47])
	h.Controller = h.CartridgeType.Controller()

	h.ROMSize = 32 * 1024
	if size, ok := romSizes[header[0x48]]; ok {
		h.ROMSize = size
	}

	// battery types without a supported controller are still sized from
	// the header; transfers reach only the unbanked window
	switch {
	case !h.CartridgeType.battery():
	case h.Controller == ControllerMBC2:
		h.SaveSize = mbc2RAMSize
	default:
		h.SaveSize = ramSizes[header[0x49]]
	}

	h.MaskROMVersion = header[0x4C]
	h.HeaderChecksum = header[0x4D]
	h.GlobalChecksum = uint16(header[0x4E])<<8 | uint16(header[0x4F])
	return h, nil
}

// Hardware returns the model the cartridge expects.
func (h *Header) Hardware() string {
	if h.CGB == FlagOnlyDMG {
		return "DMG"
	}
	return "CGB"
}

func (h *Header) String() string {
	return fmt.Sprintf("%s Mode: %s | Controller: %s | ROM Size: %dkB | Save Size: %dB",
		h.Title, h.Hardware(), h.Controller, h.ROMSize/1024, h.SaveSize)
}
