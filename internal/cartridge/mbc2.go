package cartridge

// mbc2RAMSize is the built-in RAM of the MBC2: 512 half-bytes, each read
// back in the low nibble of a byte.
const mbc2RAMSize = 512

// mbc2 decodes address bit 8 of writes below 0x4000: set selects the ROM
// bank register, clear the RAM enable.
type mbc2 struct{}

func (mbc2) prepareROM(*Engine) {}

func (mbc2) selectROM(e *Engine, bank int) int {
	e.writeByte(byte(bank&0x0F), 0x2100)
	return romBankSize
}

func (mbc2) restoreROM(e *Engine) {
	e.writeByte(0x01, 0x2100)
}

func (mbc2) enableRAM(e *Engine) {
	e.writeByte(0x0A, 0x0000)
}

func (mbc2) selectRAM(*Engine, int) {}

func (mbc2) disableRAM(e *Engine) {
	e.writeByte(0x00, 0x0000)
}

func (mbc2) ramBankSize() int { return mbc2RAMSize }
