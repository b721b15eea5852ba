package advance

import (
	"time"

	"github.com/thelolagemann/cartreader/internal/expander"
)

// Port D control lines of the GBA slot. All are active low.
const (
	lineCS   = 0x01
	lineRD   = 0x02
	lineWR   = 0x04
	lineCS2  = 0x08
	lineCLK  = 0x10
	lineDTSW = 0x40
	linePWR  = 0x80
)

// Port D states used by the save protocols.
const (
	// everything deselected
	saveIdle = (lineCS | lineWR | lineCS2) &^ (lineCLK | linePWR)
	// CS2 selects the parallel save chip
	parallelSelect = (lineCS | lineWR) &^ (lineCS2 | lineCLK | linePWR)
	parallelStrobe = lineCS &^ (lineWR | lineCS2 | lineCLK | linePWR)
	// CS with A23 set selects the EEPROM
	serialSelect = (lineWR | lineCS2) &^ (lineCS | lineCLK | linePWR)
	serialStrobe = lineCS2 &^ (lineCS | lineWR | lineCLK | linePWR)
)

const (
	// romChunk is the span of the auto incrementing address counter.
	romChunk = 0x20000

	// parallelSize is the address space seen through CS2. Larger chips
	// bank switch.
	parallelSize = 0x10000

	parallelHold = time.Microsecond
)

// readAt streams len(buf) bytes of ROM starting at start, which must be
// even. The word address is latched once and the cartridge advances it on
// every rising edge of RD.
func (e *Engine) readAt(buf []byte, start int) int {
	e.slot.PowerUp()
	ex, rd := e.slot.Expander(), e.slot.Strobe()

	word := start / 2
	ex.WriteAll(byte(word), byte(word>>8), byte(word>>16), ^byte(linePWR))
	ex.Write(expander.PortD, ^byte(lineCS|linePWR))
	ex.SetDirAll(0xFF, 0xFF, 0x00, ^byte(lineCS|lineWR|lineCS2|linePWR))

	ex.StartReadAB()
	n := 0
	for ; n < len(buf); n += 2 {
		rd.Write(false)
		lo, hi := ex.ReadAB()
		rd.Write(true)

		buf[n] = lo
		if n+1 < len(buf) {
			buf[n+1] = hi
		}
	}
	ex.EndRead()

	ex.Write(expander.PortD, ^byte(linePWR))
	rd.Write(true)
	return len(buf)
}

// readROM reads buf from start, relatching the address at every counter
// boundary.
func (e *Engine) readROM(buf []byte, start int) int {
	n := 0
	for n < len(buf) {
		addr := start + n
		end := min(len(buf), n+romChunk-addr%romChunk)
		n += e.readAt(buf[n:end], addr)
	}
	return n
}

// readParallel reads the CS2 save chip from start, clamped to the 64KB
// window.
func (e *Engine) readParallel(buf []byte, start int) int {
	start %= parallelSize
	n := min(len(buf), parallelSize-start)

	e.slot.PowerUp()
	ex, rd := e.slot.Expander(), e.slot.Strobe()
	ex.Write(expander.PortD, parallelSelect)
	ex.SetDir(expander.PortC, 0xFF)

	for i := 0; i < n; i++ {
		addr := start + i
		ex.WriteAB(byte(addr), byte(addr>>8))
		rd.Write(false)
		buf[i] = ex.Read(expander.PortC)
		rd.Write(true)
	}

	ex.Write(expander.PortD, saveIdle)
	rd.Write(true)
	return n
}

// writeParallel writes buf to SRAM from start, clamped to the 64KB window.
func (e *Engine) writeParallel(buf []byte, start int) int {
	start %= parallelSize
	n := min(len(buf), parallelSize-start)

	e.slot.PowerUp()
	ex := e.slot.Expander()
	ex.Write(expander.PortD, parallelSelect)

	for i := 0; i < n; i++ {
		addr := start + i
		ex.WriteAB(byte(addr), byte(addr>>8))
		ex.Write(expander.PortC, buf[i])
		ex.Write(expander.PortD, parallelStrobe)
		e.slot.Spin(parallelHold)
		ex.Write(expander.PortD, parallelSelect)
	}

	ex.Write(expander.PortD, saveIdle)
	e.slot.Strobe().Write(true)
	return n
}

// writeBus issues a single CS2 write cycle, the unit of every flash
// command. Port C must be an output.
func (e *Engine) writeBus(addr int, v byte) {
	ex := e.slot.Expander()
	ex.WriteAB(byte(addr), byte(addr>>8))
	ex.Write(expander.PortC, v)
	ex.Write(expander.PortD, parallelStrobe)
	ex.Write(expander.PortD, parallelSelect)
}
