package sim

import "time"

// GB control lines on port D.
const (
	gbCSRAM = 0x01
	gbWR    = 0x04
)

// NintendoLogo is the bitmap every licensed cartridge carries at 0x104.
var NintendoLogo = [48]byte{
	0xCE, 0xED, 0x66, 0x66, 0xCC, 0x0D, 0x00, 0x0B, 0x03, 0x73, 0x00, 0x83, 0x00, 0x0C, 0x00, 0x0D,
	0x00, 0x08, 0x11, 0x1F, 0x88, 0x89, 0x00, 0x0E, 0xDC, 0xCC, 0x6E, 0xE6, 0xDD, 0xDD, 0xD9, 0x99,
	0xBB, 0xBB, 0x67, 0x63, 0x6E, 0x0E, 0xEC, 0xCC, 0xDD, 0xDC, 0x99, 0x9F, 0xBB, 0xB9, 0x33, 0x3E,
}

var (
	gbROMSizes = map[byte]int{
		0x00: 32 << 10, 0x01: 64 << 10, 0x02: 128 << 10, 0x03: 256 << 10,
		0x04: 512 << 10, 0x05: 1 << 20, 0x06: 2 << 20, 0x07: 4 << 20, 0x08: 8 << 20,
		0x52: 72 * 16 << 10, 0x53: 80 * 16 << 10, 0x54: 96 * 16 << 10,
	}
	gbRAMSizes = map[byte]int{
		0x01: 2 << 10, 0x02: 8 << 10, 0x03: 32 << 10, 0x04: 128 << 10, 0x05: 64 << 10,
	}
)

// GBImage describes a cartridge to build a ROM image for.
type GBImage struct {
	Title   string
	CGBFlag byte
	Type    byte // header byte 0x147
	ROMCode byte // header byte 0x148
	RAMCode byte // header byte 0x149
}

// Build returns a ROM image whose every bank is distinguishable, with a
// valid header.
func (img GBImage) Build() []byte {
	size, ok := gbROMSizes[img.ROMCode]
	if !ok {
		size = 32 << 10
	}
	rom := make([]byte, size)
	for i := range rom {
		rom[i] = byte(i>>14) ^ byte(i>>22)*0x5B ^ byte(i*31+i>>8)
	}

	h := rom[0x100:0x150]
	copy(h[0x04:0x34], NintendoLogo[:])
	for i := 0x34; i < 0x44; i++ {
		h[i] = 0
	}
	copy(h[0x34:0x44], img.Title)
	if img.CGBFlag != 0 {
		h[0x43] = img.CGBFlag
	}
	h[0x47], h[0x48], h[0x49] = img.Type, img.ROMCode, img.RAMCode

	var chk byte
	for i := 0x34; i < 0x4D; i++ {
		chk = chk - h[i] - 1
	}
	h[0x4D] = chk
	return rom
}

// GB is a Game Boy or Game Boy Color cartridge.
type GB struct {
	ctl controller
}

// NewGB returns a cartridge running rom behind the controller its header
// names. Battery RAM starts zeroed.
func NewGB(rom []byte) *GB {
	typ, ramCode := rom[0x147], rom[0x149]
	ram := make([]byte, gbRAMSizes[ramCode])

	var c controller
	switch typ {
	case 0x01, 0x02, 0x03:
		c = newMBC1(rom, ram)
	case 0x05, 0x06:
		c = newMBC2(rom)
	case 0x0F, 0x10, 0x11, 0x12, 0x13:
		c = newMBC3(rom, ram)
	case 0x19, 0x1A, 0x1B, 0x1C, 0x1D, 0x1E:
		c = newMBC5(rom, ram)
	default:
		c = &romOnly{rom: rom, ram: ram}
	}
	return &GB{ctl: c}
}

// RAM returns the battery backed memory.
func (g *GB) RAM() []byte {
	return g.ctl.RAM()
}

// Peek reads from the cartridge address space with the current banking,
// RAM reads included.
func (g *GB) Peek(addr uint16) byte {
	return g.ctl.Read(addr)
}

func (g *GB) PressesSwitch() bool { return true }

func (g *GB) Update(prev, cur Bus, now time.Duration) {
	if !cur.Powered() {
		return
	}
	// latch on the rising edge of WR
	if prev.High(gbWR) || !cur.High(gbWR) {
		return
	}
	addr := cur.Address16()
	switch {
	case addr < 0x8000 && cur.High(gbCSRAM):
		g.ctl.Write(addr, cur.Out(2))
	case addr >= 0xA000 && addr < 0xC000 && !cur.High(gbCSRAM):
		g.ctl.Write(addr, cur.Out(2))
	}
}

func (g *GB) Drive(cur Bus) (val, mask [3]byte) {
	if !cur.Powered() || cur.RD || cur.Dir[2] != 0xFF {
		return val, mask
	}
	addr := cur.Address16()
	switch {
	case addr < 0x8000:
		val[2] = g.ctl.Read(addr)
	case addr >= 0xA000 && addr < 0xC000 && !cur.High(gbCSRAM):
		val[2] = g.ctl.Read(addr)
	default:
		val[2] = 0xFF
	}
	mask[2] = 0xFF
	return val, mask
}

// controller is a memory bank controller. Its registers survive power
// cycles, so tests observe the state the reader leaves behind.
type controller interface {
	Read(addr uint16) byte
	Write(addr uint16, v byte)
	RAM() []byte
}

type romOnly struct {
	rom, ram []byte
}

func (c *romOnly) Read(addr uint16) byte {
	switch {
	case int(addr) < len(c.rom) && addr < 0x8000:
		return c.rom[addr]
	case addr >= 0xA000 && int(addr-0xA000) < len(c.ram):
		return c.ram[addr-0xA000]
	}
	return 0xFF
}

func (c *romOnly) Write(addr uint16, v byte) {
	if addr >= 0xA000 && int(addr-0xA000) < len(c.ram) {
		c.ram[addr-0xA000] = v
	}
}

func (c *romOnly) RAM() []byte { return c.ram }
