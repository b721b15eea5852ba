package cartridge

// mbc5 takes a 9-bit ROM bank, low byte at 0x2000 and bit 8 at 0x3000,
// and up to 16 RAM banks.
type mbc5 struct{}

func (mbc5) prepareROM(*Engine) {}

func (mbc5) selectROM(e *Engine, bank int) int {
	e.writeByte(byte((bank>>8)&0x01), 0x3000)
	e.writeByte(byte(bank), 0x2000)
	return romBankSize
}

func (mbc5) restoreROM(e *Engine) {
	e.writeByte(0x00, 0x3000)
	e.writeByte(0x01, 0x2000)
}

func (mbc5) enableRAM(e *Engine) {
	e.writeByte(0x0A, 0x0000)
}

func (mbc5) selectRAM(e *Engine, bank int) {
	e.writeByte(byte(bank&0x0F), 0x4000)
}

func (mbc5) disableRAM(e *Engine) {
	e.writeByte(0x00, 0x4000)
	e.writeByte(0x00, 0x0000)
}

func (mbc5) ramBankSize() int { return ramBankSize }
