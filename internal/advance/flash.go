package advance

import (
	"time"

	"github.com/thelolagemann/cartreader/internal/expander"
)

const (
	flashCommandTime = 5 * time.Millisecond
	flashPageTime    = 20 * time.Millisecond
	flashEraseTime   = 100 * time.Millisecond
	flashByteTime    = 20 * time.Microsecond

	flashPageSize   = 128
	flashSectorSize = 0x1000
)

// flashClass decides how a chip is programmed.
type flashClass uint8

const (
	flashUnknown flashClass = iota
	// flashAtmel programs 128-byte pages after a single unlock.
	flashAtmel
	// flashSector erases 4KB sectors and programs single bytes.
	flashSector
)

func classifyManufacturer(id byte) flashClass {
	switch id {
	case 0x1F:
		return flashAtmel
	case 0xBF, 0xC2, 0x32, 0x62:
		return flashSector
	}
	return flashUnknown
}

// flashIDs maps manufacturer and device IDs of known parts to their size.
var flashIDs = map[[2]byte]SaveType{
	{0xBF, 0xD4}: Flash512K, // SST
	{0x1F, 0x3D}: Flash512K, // Atmel
	{0xC2, 0x1C}: Flash512K, // Macronix
	{0x32, 0x1B}: Flash512K, // Panasonic
	{0xC2, 0x09}: Flash1M,   // Macronix
	{0x62, 0x13}: Flash1M,   // Sanyo
}

// flashCommand writes the unlock sequence followed by cmd.
func (e *Engine) flashCommand(cmd byte) {
	e.writeBus(0x5555, 0xAA)
	e.writeBus(0x2AAA, 0x55)
	e.writeBus(0x5555, cmd)
}

// beginFlash powers up with CS2 asserted and the data bus driven.
func (e *Engine) beginFlash() {
	e.slot.PowerUp()
	ex := e.slot.Expander()
	ex.Write(expander.PortD, parallelSelect)
	ex.SetDir(expander.PortC, 0x00)
}

func (e *Engine) endFlash() {
	e.slot.Expander().Write(expander.PortD, saveIdle)
	e.slot.Strobe().Write(true)
}

// switchBank selects the 64KB half of a 1M chip.
func (e *Engine) switchBank(bank byte) {
	e.beginFlash()
	e.flashCommand(0xB0)
	e.writeBus(0x0000, bank)
	e.slot.Spin(flashCommandTime)
}

// flashID enters ID mode, reads the manufacturer and device bytes and
// leaves it again.
func (e *Engine) flashID() (manufacturer, device byte) {
	e.beginFlash()
	ex, rd := e.slot.Expander(), e.slot.Strobe()

	e.flashCommand(0x90)
	e.slot.Spin(flashCommandTime)

	ex.SetDir(expander.PortC, 0xFF)
	var id [2]byte
	for i := range id {
		ex.WriteAB(byte(i), 0)
		rd.Write(false)
		id[i] = ex.Read(expander.PortC)
		rd.Write(true)
	}
	ex.SetDir(expander.PortC, 0x00)

	e.flashCommand(0xF0)
	e.slot.Spin(flashCommandTime)
	e.endFlash()
	return id[0], id[1]
}

// readFlashAt reads from a single bank, switching to the upper one for
// offsets past 64KB and back afterwards.
func (e *Engine) readFlashAt(buf []byte, start int) int {
	if start < parallelSize {
		return e.readParallel(buf, start)
	}
	e.switchBank(1)
	n := e.readParallel(buf, start-parallelSize)
	e.switchBank(0)
	return n
}

// readFlash reads the whole of buf from offset 0, both banks if needed.
func (e *Engine) readFlash(buf []byte) int {
	n := e.readParallel(buf[:min(len(buf), parallelSize)], 0)
	if n < len(buf) {
		n += e.readFlashAt(buf[n:], parallelSize)
	}
	return n
}

// writeFlash programs buf from offset 0. Parts of an unknown manufacturer
// are left alone.
func (e *Engine) writeFlash(buf []byte) (int, error) {
	m, d := e.flashID()
	class := classifyManufacturer(m)
	if class == flashUnknown {
		e.log.Warnf("gba: flash %02X/%02X has no known program sequence", m, d)
		return 0, ErrUnknownSave
	}

	program := e.programSectors
	if class == flashAtmel {
		program = e.programPages
	}

	n := program(buf[:min(len(buf), parallelSize)])
	if n < len(buf) {
		e.switchBank(1)
		n += program(buf[n:min(len(buf), 2*parallelSize)])
		e.switchBank(0)
	}
	e.endFlash()
	return n, nil
}

// programPages writes 128-byte pages into the current bank.
func (e *Engine) programPages(buf []byte) int {
	e.beginFlash()
	for i := 0; i < len(buf); i += flashPageSize {
		e.flashCommand(0xA0)
		for j := 0; j < flashPageSize; j++ {
			v := byte(0xFF)
			if i+j < len(buf) {
				v = buf[i+j]
			}
			e.writeBus(i+j, v)
		}
		e.slot.Spin(flashPageTime)
	}
	return len(buf)
}

// programSectors erases each 4KB sector of the current bank and programs
// it byte by byte.
func (e *Engine) programSectors(buf []byte) int {
	e.beginFlash()
	for sector := 0; sector < len(buf); sector += flashSectorSize {
		e.flashCommand(0x80)
		e.writeBus(0x5555, 0xAA)
		e.writeBus(0x2AAA, 0x55)
		e.writeBus(sector, 0x30)
		e.slot.Spin(flashEraseTime)

		for i := sector; i < min(sector+flashSectorSize, len(buf)); i++ {
			e.flashCommand(0xA0)
			e.writeBus(i, buf[i])
			e.slot.Spin(flashByteTime)
		}
	}
	return len(buf)
}
