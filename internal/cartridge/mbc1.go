package cartridge

// mbc1 splits the ROM bank number over two registers: the low five bits at
// 0x2000 and the upper two at 0x4000, which in RAM banking mode select the
// RAM bank instead.
type mbc1 struct{}

func (mbc1) prepareROM(e *Engine) {
	e.writeByte(0x00, 0x6000) // ROM banking mode
}

// selectROM maps bank into the window at 0x4000. Banks 0x20, 0x40 and 0x60
// read as the bank after them there; they only show up at 0x0000, with the
// controller in RAM banking mode.
func (mbc1) selectROM(e *Engine, bank int) int {
	if bank&0x1F == 0 {
		e.writeByte(0x01, 0x6000)
		e.writeByte(byte((bank>>5)&0x03), 0x4000)
		return 0x0000
	}
	if bank&0x1F == 1 && bank > 1 {
		e.writeByte(0x00, 0x6000)
	}
	e.writeByte(byte(bank&0x1F), 0x2000)
	e.writeByte(byte((bank>>5)&0x03), 0x4000)
	return romBankSize
}

func (mbc1) restoreROM(e *Engine) {
	e.writeByte(0x01, 0x2000)
	e.writeByte(0x00, 0x4000)
	e.writeByte(0x00, 0x6000)
}

func (mbc1) enableRAM(e *Engine) {
	e.writeByte(0x0A, 0x0000)
	e.writeByte(0x01, 0x6000) // RAM banking mode
}

func (mbc1) selectRAM(e *Engine, bank int) {
	e.writeByte(byte(bank&0x03), 0x4000)
}

func (mbc1) disableRAM(e *Engine) {
	e.writeByte(0x00, 0x6000)
	e.writeByte(0x00, 0x4000)
	e.writeByte(0x00, 0x0000)
}

func (mbc1) ramBankSize() int { return ramBankSize }
