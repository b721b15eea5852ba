package advance

import (
	"time"

	"github.com/thelolagemann/cartreader/internal/expander"
	"github.com/thelolagemann/cartreader/pkg/bits"
)

const (
	// eepromHalfPeriod is spent on each level of the read clock.
	eepromHalfPeriod = 600 * time.Nanosecond
	// eepromProgramTime covers the worst case block program.
	eepromProgramTime = 7 * time.Millisecond

	eepromBlockSize = 8
	eepromLeadBits  = 4
)

// eepromBlocks returns the number of blocks a part addresses with 14-bit
// (wide) or 6-bit framing.
func eepromBlocks(wide bool) int {
	if wide {
		return 1024
	}
	return 64
}

// selectEEPROM drives A23 and pulls CS, which makes the EEPROM listen.
func (e *Engine) selectEEPROM(dirA byte) {
	ex := e.slot.Expander()
	ex.SetDir(expander.PortA, dirA)
	ex.Write(expander.PortC, 0x80)
	ex.Write(expander.PortD, serialSelect)
}

func (e *Engine) deselectEEPROM() {
	ex := e.slot.Expander()
	ex.Write(expander.PortC, 0x00)
	ex.Write(expander.PortD, saveIdle)
}

// writeSerialByte clocks v out MSB first on A0, followed by a zero stop
// bit when stop is set.
func (e *Engine) writeSerialByte(v byte, stop bool) {
	ex := e.slot.Expander()
	clock := func(bit byte) {
		ex.Write(expander.PortA, bit)
		ex.Write(expander.PortD, serialStrobe)
		ex.Write(expander.PortD, serialSelect)
	}
	for i := 7; i >= 0; i-- {
		clock(bits.Val(v, uint8(i)))
	}
	if stop {
		clock(0)
	}
}

// readSerialByte clocks eight bits in MSB first. The first byte of a block
// is preceded by the lead bits, which carry no data.
func (e *Engine) readSerialByte(lead bool) byte {
	ex, rd := e.slot.Expander(), e.slot.Strobe()
	if lead {
		for i := 0; i < eepromLeadBits; i++ {
			rd.Write(false)
			e.slot.Spin(eepromHalfPeriod)
			rd.Write(true)
			e.slot.Spin(eepromHalfPeriod)
		}
	}

	var v byte
	for i := 0; i < 8; i++ {
		rd.Write(false)
		e.slot.Spin(eepromHalfPeriod)
		if bits.Test(ex.Read(expander.PortA), 0) {
			v = bits.Set(v, uint8(7-i))
		}
		rd.Write(true)
		e.slot.Spin(eepromHalfPeriod)
	}
	return v
}

// command sends the two opcode bits and the block address.
func (e *Engine) command(op byte, block int, wide, stop bool) {
	if wide {
		e.writeSerialByte(op|byte(block>>8)&0x03, false)
		e.writeSerialByte(byte(block), stop)
		return
	}
	e.writeSerialByte(op|byte(block)&0x3F, stop)
}

// readBlock reads up to one block into dst.
func (e *Engine) readBlock(dst []byte, block int, wide bool) int {
	e.selectEEPROM(0x00)
	e.command(0xC0, block, wide, true)
	e.deselectEEPROM()

	e.selectEEPROM(0x01)
	n := 0
	for ; n < eepromBlockSize && n < len(dst); n++ {
		dst[n] = e.readSerialByte(n == 0)
	}
	e.deselectEEPROM()
	return n
}

// readEEPROM fills buf block by block from block 0. wide selects 14-bit
// framing, which the size of the part decides, not the length of buf.
func (e *Engine) readEEPROM(buf []byte, wide bool) int {
	e.slot.PowerUp()
	blocks := eepromBlocks(wide)

	n := 0
	for block := 0; block < blocks && n < len(buf); block++ {
		n += e.readBlock(buf[n:], block, wide)
	}

	e.slot.Strobe().Write(true)
	return n
}

// writeEEPROM programs buf block by block, waiting out every block's
// program cycle. A trailing partial block is read first so the bytes past
// buf keep their contents.
func (e *Engine) writeEEPROM(buf []byte, wide bool) int {
	e.slot.PowerUp()
	blocks := eepromBlocks(wide)

	var block [eepromBlockSize]byte
	n := 0
	for b := 0; b < blocks && n < len(buf); b++ {
		if len(buf)-n < eepromBlockSize {
			e.readBlock(block[:], b, wide)
		}
		n += copy(block[:], buf[n:])

		e.selectEEPROM(0x00)
		e.command(0x80, b, wide, false)
		for i, v := range block {
			e.writeSerialByte(v, i == len(block)-1)
		}
		e.deselectEEPROM()
		e.slot.Spin(eepromProgramTime)
	}
	return n
}
