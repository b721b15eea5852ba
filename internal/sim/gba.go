package sim

import "time"

// GBA control lines on port D.
const (
	gbaCS  = lineCS
	gbaWR  = lineWR
	gbaCS2 = lineCS2
)

// GBAROM is a ROM chip of Size bytes. Bytes past Data are derived from
// their offset, so large chips cost no memory.
type GBAROM struct {
	Size int
	Data []byte
}

// At returns the byte at off, wrapping at the chip size.
func (r GBAROM) At(off int) byte {
	off %= r.Size
	if off < len(r.Data) {
		return r.Data[off]
	}
	return pattern(off, 0)
}

// pattern is a fixed pseudo random fill that never repeats on a power of
// two boundary.
func pattern(i int, seed uint32) byte {
	x := (uint32(i) + seed) * 2654435761
	return byte(x>>24) ^ byte(x>>13)
}

// GBAImage describes a cartridge header.
type GBAImage struct {
	Title string
	Code  string
	Maker string
	Size  int
}

// Build returns a ROM with a header carrying a valid complement check.
func (img GBAImage) Build() GBAROM {
	h := make([]byte, 0xC0)
	h[0], h[1], h[2], h[3] = 0x2E, 0x00, 0x00, 0xEA
	for i := 4; i < 0xA0; i++ {
		h[i] = byte(i * 13)
	}
	copy(h[0xA0:0xAC], img.Title)
	copy(h[0xAC:0xB0], img.Code)
	copy(h[0xB0:0xB2], img.Maker)
	h[0xB2] = 0x96
	h[0xBD] = GBAChecksum(h)
	return GBAROM{Size: img.Size, Data: h}
}

// GBAChecksum computes the header complement check.
func GBAChecksum(h []byte) byte {
	var chk byte
	for i := 0xA0; i < 0xBC; i++ {
		chk -= h[i]
	}
	return chk - 0x19
}

// GBA is a Game Boy Advance cartridge. The ROM latches a word address on
// the falling edge of CS and advances on every rising edge of RD.
type GBA struct {
	rom GBAROM

	eeprom *EEPROM
	save   parallel

	counter uint32
	romSel  bool
	eepSel  bool
}

// parallel is a byte wide save chip selected by CS2.
type parallel interface {
	read(addr uint16) byte
	write(addr uint16, v byte, now time.Duration)
}

// NewGBA returns a cartridge without save memory.
func NewGBA(rom GBAROM) *GBA {
	return &GBA{rom: rom}
}

// WithEEPROM adds a serial EEPROM, mapped at the top of the address space.
func (g *GBA) WithEEPROM(e *EEPROM) *GBA {
	g.eeprom, g.save = e, nil
	return g
}

// WithSRAM adds battery backed SRAM.
func (g *GBA) WithSRAM(s *SRAM) *GBA {
	g.save, g.eeprom = s, nil
	return g
}

// WithFlash adds a flash chip.
func (g *GBA) WithFlash(f *Flash) *GBA {
	g.save, g.eeprom = f, nil
	return g
}

// ROM returns the ROM chip.
func (g *GBA) ROM() GBAROM {
	return g.rom
}

func (g *GBA) PressesSwitch() bool { return false }

func (g *GBA) words() uint32 {
	return uint32(g.rom.Size / 2)
}

func (g *GBA) Update(prev, cur Bus, now time.Duration) {
	if !cur.Powered() {
		g.romSel, g.eepSel = false, false
		return
	}

	csFell := prev.High(gbaCS) && !cur.High(gbaCS)
	csRose := !prev.High(gbaCS) && cur.High(gbaCS)
	rdRose := !prev.RD && cur.RD
	wrRose := !prev.High(gbaWR) && cur.High(gbaWR)

	switch {
	case csFell:
		word := uint32(cur.Out(0)) | uint32(cur.Out(1))<<8 | uint32(cur.Out(2))<<16
		g.romSel, g.eepSel = false, false
		if word&0x800000 != 0 && g.rom.Size <= 16<<20 {
			if g.eeprom != nil {
				g.eepSel = true
				g.eeprom.selected(now)
			}
			break
		}
		g.romSel = true
		g.counter = word % g.words()
	case csRose:
		g.romSel, g.eepSel = false, false
	}

	if !cur.High(gbaCS) {
		if rdRose {
			switch {
			case g.romSel:
				g.counter = (g.counter + 1) % g.words()
			case g.eepSel:
				g.eeprom.clockOut()
			}
		}
		if wrRose && g.eepSel {
			g.eeprom.clockIn(cur.Out(0)&1, now)
		}
	}

	if g.save != nil && !cur.High(gbaCS2) && wrRose {
		g.save.write(cur.Address16(), cur.Out(2), now)
	}
}

func (g *GBA) Drive(cur Bus) (val, mask [3]byte) {
	if !cur.Powered() || cur.RD {
		return val, mask
	}
	if !cur.High(gbaCS) {
		switch {
		case g.romSel:
			val[0] = g.rom.At(int(g.counter) * 2)
			val[1] = g.rom.At(int(g.counter)*2 + 1)
			mask[0], mask[1] = 0xFF, 0xFF
		case g.eepSel:
			val[0] = g.eeprom.bit()
			mask[0] = 0x01
		}
	}
	if g.save != nil && !cur.High(gbaCS2) {
		val[2], mask[2] = g.save.read(cur.Address16()), 0xFF
	}
	return val, mask
}

// SRAM is byte wide static RAM that mirrors past its size.
type SRAM struct {
	Data []byte

	// DropWrites is the number of writes, after the first, that are lost,
	// as they are on a chip with a failing cell.
	DropWrites int

	writes int
}

// NewSRAM returns size bytes of SRAM holding a fixed non-trivial pattern.
func NewSRAM(size int) *SRAM {
	s := &SRAM{Data: make([]byte, size)}
	for i := range s.Data {
		s.Data[i] = pattern(i, 0x5A5A)
	}
	return s
}

func (s *SRAM) read(addr uint16) byte {
	return s.Data[int(addr)%len(s.Data)]
}

func (s *SRAM) write(addr uint16, v byte, _ time.Duration) {
	s.writes++
	if s.writes > 1 && s.writes <= 1+s.DropWrites {
		return
	}
	s.Data[int(addr)%len(s.Data)] = v
}

// EEPROM is a serial EEPROM with 6-bit (512 byte) or 14-bit (8KB)
// addressing of 64-bit blocks. Commands are clocked in on WR, data clocked
// out on RD: four dummy bits followed by 64 data bits.
type EEPROM struct {
	Data []byte

	// Violations counts commands started while a block was programming.
	Violations int

	addrBits  int
	in        []byte
	done      bool
	out       []byte
	outPos    int
	busyUntil time.Duration
}

const eepromProgramTime = 5 * time.Millisecond

// NewEEPROM returns an EEPROM of size 512 or 8192 bytes holding a fixed
// non-trivial pattern.
func NewEEPROM(size int) *EEPROM {
	e := &EEPROM{Data: make([]byte, size), addrBits: 6}
	if size > 512 {
		e.addrBits = 14
	}
	for i := range e.Data {
		e.Data[i] = pattern(i, 0xEE)
	}
	return e
}

func (e *EEPROM) blocks() int {
	return len(e.Data) / 8
}

func (e *EEPROM) selected(now time.Duration) {
	e.in = e.in[:0]
	e.done = false
	if now < e.busyUntil {
		e.Violations++
	}
}

func (e *EEPROM) clockIn(bit byte, now time.Duration) {
	if e.done {
		return
	}
	e.in = append(e.in, bit)
	if len(e.in) < 2 {
		return
	}

	addr := func() int {
		a := 0
		for _, b := range e.in[2 : 2+e.addrBits] {
			a = a<<1 | int(b)
		}
		return a % e.blocks()
	}

	switch {
	case e.in[0] == 1 && e.in[1] == 1:
		if len(e.in) < 2+e.addrBits+1 {
			return
		}
		block := addr()
		e.out = append(e.out[:0], 0, 0, 0, 0)
		for _, v := range e.Data[block*8 : block*8+8] {
			for i := 7; i >= 0; i-- {
				e.out = append(e.out, v>>i&1)
			}
		}
		e.outPos = 0
		e.done = true
	case e.in[0] == 1 && e.in[1] == 0:
		if len(e.in) < 2+e.addrBits+64+1 {
			return
		}
		block := addr()
		data := e.in[2+e.addrBits:]
		for i := 0; i < 8; i++ {
			var v byte
			for j := 0; j < 8; j++ {
				v = v<<1 | data[i*8+j]
			}
			e.Data[block*8+i] = v
		}
		e.busyUntil = now + eepromProgramTime
		e.done = true
	default:
		e.done = true
	}
}

func (e *EEPROM) clockOut() {
	if e.outPos < len(e.out) {
		e.outPos++
	}
}

func (e *EEPROM) bit() byte {
	if e.outPos < len(e.out) {
		return e.out[e.outPos]
	}
	return 1
}

// Flash is a JEDEC style flash chip of 64KB or 128KB, the larger one split
// into two switchable banks. Atmel parts program 128-byte pages after a
// single unlock; every other part erases 4KB sectors and programs single
// bytes.
type Flash struct {
	Data         []byte
	Manufacturer byte
	Device       byte

	// Violations counts bus cycles issued while the chip was busy.
	Violations int

	bank      int
	state     flashState
	idMode    bool
	pageLeft  int
	busyUntil time.Duration
}

type flashState uint8

const (
	flashIdle flashState = iota
	flashUnlock1
	flashUnlock2
	flashEraseArmed
	flashEraseUnlock1
	flashEraseUnlock2
	flashProgram
	flashPage
	flashBank
)

const (
	flashByteTime   = 15 * time.Microsecond
	flashPageTime   = 10 * time.Millisecond
	flashSectorTime = 25 * time.Millisecond
)

// NewFlash returns an erased-looking chip with some programmed content.
func NewFlash(size int, manufacturer, device byte) *Flash {
	f := &Flash{Data: make([]byte, size), Manufacturer: manufacturer, Device: device}
	for i := range f.Data {
		f.Data[i] = pattern(i, 0xF1A5)
	}
	return f
}

func (f *Flash) atmel() bool {
	return f.Manufacturer == 0x1F
}

func (f *Flash) offset(addr uint16) int {
	return (f.bank*0x10000 + int(addr)) % len(f.Data)
}

func (f *Flash) read(addr uint16) byte {
	if f.idMode {
		switch addr {
		case 0:
			return f.Manufacturer
		case 1:
			return f.Device
		}
	}
	return f.Data[f.offset(addr)]
}

func (f *Flash) write(addr uint16, v byte, now time.Duration) {
	if now < f.busyUntil {
		f.Violations++
		return
	}

	switch f.state {
	case flashPage:
		f.Data[f.offset(addr)] = v
		if f.pageLeft--; f.pageLeft == 0 {
			f.busyUntil = now + flashPageTime
			f.state = flashIdle
		}
		return
	case flashProgram:
		f.Data[f.offset(addr)] &= v
		f.busyUntil = now + flashByteTime
		f.state = flashIdle
		return
	case flashBank:
		if addr == 0 && len(f.Data) > 0x10000 {
			f.bank = int(v & 1)
		}
		f.state = flashIdle
		return
	}

	switch {
	case f.state == flashIdle && addr == 0x5555 && v == 0xAA:
		f.state = flashUnlock1
	case f.state == flashIdle && v == 0xF0:
		f.idMode = false
	case f.state == flashUnlock1 && addr == 0x2AAA && v == 0x55:
		f.state = flashUnlock2
	case f.state == flashUnlock2 && addr == 0x5555:
		f.state = flashIdle
		switch v {
		case 0x90:
			f.idMode = true
		case 0xF0:
			f.idMode = false
		case 0xA0:
			if f.atmel() {
				f.state, f.pageLeft = flashPage, 128
			} else {
				f.state = flashProgram
			}
		case 0xB0:
			f.state = flashBank
		case 0x80:
			f.state = flashEraseArmed
		}
	case f.state == flashEraseArmed && addr == 0x5555 && v == 0xAA:
		f.state = flashEraseUnlock1
	case f.state == flashEraseUnlock1 && addr == 0x2AAA && v == 0x55:
		f.state = flashEraseUnlock2
	case f.state == flashEraseUnlock2 && v == 0x30:
		base := f.offset(addr &^ 0x0FFF)
		for i := base; i < base+0x1000; i++ {
			f.Data[i] = 0xFF
		}
		f.busyUntil = now + flashSectorTime
		f.state = flashIdle
	default:
		f.state = flashIdle
	}
}
