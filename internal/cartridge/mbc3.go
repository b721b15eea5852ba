package cartridge

// mbc3 has a single 7-bit ROM bank register and four RAM banks. Values
// 0x08-0x0C of the RAM bank register map the clock, which is not read.
type mbc3 struct{}

func (mbc3) prepareROM(*Engine) {}

func (mbc3) selectROM(e *Engine, bank int) int {
	e.writeByte(byte(bank&0x7F), 0x2000)
	return romBankSize
}

func (mbc3) restoreROM(e *Engine) {
	e.writeByte(0x01, 0x2000)
}

func (mbc3) enableRAM(e *Engine) {
	e.writeByte(0x0A, 0x0000)
}

func (mbc3) selectRAM(e *Engine, bank int) {
	e.writeByte(byte(bank&0x03), 0x4000)
}

func (mbc3) disableRAM(e *Engine) {
	e.writeByte(0x00, 0x4000)
	e.writeByte(0x00, 0x0000)
}

func (mbc3) ramBankSize() int { return ramBankSize }
