package cartridge

import "github.com/thelolagemann/cartreader/internal/expander"

// Port D control lines of the GB slot. All are active low except DTSW.
const (
	lineCSRAM = 0x01
	lineRD    = 0x02
	lineWR    = 0x04
	lineRST   = 0x08
	lineCLK   = 0x10
	lineAUD   = 0x20
	lineDTSW  = 0x40
	linePWR   = 0x80
)

const (
	romBankSize = 0x4000
	ramBankSize = 0x2000

	romEnd  = 0x8000
	busEnd  = 0x10000
	ramBase = 0xA000
)

// readAt reads len(buf) bytes starting at start. Reads below 0x8000 stay
// in ROM, reads above select cartridge RAM and stop at the end of the
// address space. It returns the number of bytes read.
func (e *Engine) readAt(buf []byte, start int) int {
	n := len(buf)
	if start < romEnd {
		n = min(n, romEnd-start)
	} else {
		start = min(start, busEnd)
		n = min(n, busEnd-start)
	}

	e.slot.PowerUp()
	ex, rd := e.slot.Expander(), e.slot.Strobe()
	ex.SetDir(expander.PortC, 0xFF)

	rd.Write(false)
	if start >= romEnd {
		ex.Write(expander.PortD, ^byte(lineCSRAM|linePWR))
	}

	for i := 0; i < n; i++ {
		addr := start + i
		if i == 0 || byte(addr) == 0 {
			ex.WriteAB(byte(addr), byte(addr>>8))
		} else {
			ex.Write(expander.PortA, byte(addr))
		}
		buf[i] = ex.Read(expander.PortC)
	}

	ex.Write(expander.PortD, ^byte(linePWR))
	rd.Write(true)
	return n
}

// writeAt writes buf to cartridge RAM starting at start. Writes into ROM
// space are ignored.
func (e *Engine) writeAt(buf []byte, start int) int {
	if start < romEnd {
		return 0
	}
	start = min(start, busEnd)
	n := min(len(buf), busEnd-start)

	e.slot.PowerUp()
	ex := e.slot.Expander()
	ex.Write(expander.PortD, ^byte(lineCSRAM|linePWR))

	for i := 0; i < n; i++ {
		addr := start + i
		if i == 0 || byte(addr) == 0 {
			ex.WriteAB(byte(addr), byte(addr>>8))
		} else {
			ex.Write(expander.PortA, byte(addr))
		}
		ex.Write(expander.PortC, buf[i])

		ex.Write(expander.PortD, ^byte(lineCSRAM|lineWR|linePWR))
		ex.Write(expander.PortD, ^byte(lineCSRAM|linePWR))
	}

	ex.Write(expander.PortD, ^byte(linePWR))
	return n
}

// writeByte pulses WR with v on the data bus, the way bank registers are
// written.
func (e *Engine) writeByte(v byte, addr int) {
	addr = min(addr, busEnd-1)
	e.slot.PowerUp()
	ex := e.slot.Expander()
	ex.WriteAll(byte(addr), byte(addr>>8), v, ^byte(linePWR))
	ex.Write(expander.PortD, ^byte(lineWR|linePWR))
	ex.Write(expander.PortD, ^byte(linePWR))
}
