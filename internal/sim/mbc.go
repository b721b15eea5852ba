package sim

// mbc1 supports up to 2MB of ROM and 32KB of RAM. The two bit register at
// 0x4000 always feeds bits 5-6 of the bank at 0x4000; in RAM banking mode it
// also selects the RAM bank and the bank seen at 0x0000.
type mbc1 struct {
	rom   []byte
	lower int
	upper int

	ram        []byte
	ramEnabled bool
	ramBanking bool
}

func newMBC1(rom, ram []byte) *mbc1 {
	return &mbc1{rom: rom, ram: ram, lower: 1}
}

func (m *mbc1) romAt(bank int, addr uint16) byte {
	bank %= len(m.rom) / 0x4000
	return m.rom[bank*0x4000+int(addr&0x3FFF)]
}

func (m *mbc1) ramOffset(addr uint16) int {
	bank := 0
	if m.ramBanking {
		bank = m.upper
	}
	return (bank*0x2000 + int(addr&0x1FFF)) % len(m.ram)
}

func (m *mbc1) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if m.ramBanking {
			return m.romAt(m.upper<<5, addr)
		}
		return m.rom[addr]
	case addr < 0x8000:
		return m.romAt(m.upper<<5|m.lower, addr)
	case addr >= 0xA000 && addr < 0xC000:
		if m.ramEnabled && len(m.ram) > 0 {
			return m.ram[m.ramOffset(addr)]
		}
	}
	return 0xFF
}

func (m *mbc1) Write(addr uint16, v byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = len(m.ram) > 0 && v&0x0F == 0x0A
	case addr < 0x4000:
		// a zero in the low bits reads as one, whatever the upper bits
		m.lower = int(v & 0x1F)
		if m.lower == 0 {
			m.lower = 1
		}
	case addr < 0x6000:
		m.upper = int(v & 0x03)
	case addr < 0x8000:
		m.ramBanking = v&0x01 == 1
	case addr >= 0xA000 && addr < 0xC000:
		if m.ramEnabled && len(m.ram) > 0 {
			m.ram[m.ramOffset(addr)] = v
		}
	}
}

func (m *mbc1) RAM() []byte { return m.ram }

// mbc2 has 16 ROM banks and 512 half-bytes of built-in RAM. Address bit 8
// chooses between the ROM bank register and RAM enable.
type mbc2 struct {
	rom  []byte
	ram  []byte
	ramg bool
	romb int
}

func newMBC2(rom []byte) *mbc2 {
	return &mbc2{rom: rom, ram: make([]byte, 512), romb: 1}
}

func (m *mbc2) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		return m.rom[addr]
	case addr < 0x8000:
		offset := (m.romb * 0x4000) % len(m.rom)
		return m.rom[offset+int(addr-0x4000)]
	case addr >= 0xA000 && addr < 0xC000:
		if !m.ramg {
			return 0xFF
		}
		return m.ram[addr&0x01FF] | 0xF0
	}
	return 0xFF
}

func (m *mbc2) Write(addr uint16, v byte) {
	switch {
	case addr < 0x4000:
		if addr&0x100 != 0 {
			m.romb = int(v & 0x0F)
			if m.romb == 0 {
				m.romb = 1
			}
		} else {
			m.ramg = v&0x0F == 0x0A
		}
	case addr >= 0xA000 && addr < 0xC000:
		if m.ramg {
			m.ram[addr&0x01FF] = v & 0x0F
		}
	}
}

func (m *mbc2) RAM() []byte { return m.ram }

// mbc3 has a 7-bit ROM bank and four RAM banks. The clock registers are
// not emulated and read as open bus.
type mbc3 struct {
	rom     []byte
	romBank int

	ram        []byte
	ramBank    int
	ramEnabled bool
}

func newMBC3(rom, ram []byte) *mbc3 {
	return &mbc3{rom: rom, ram: ram, romBank: 1}
}

func (m *mbc3) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		return m.rom[addr]
	case addr < 0x8000:
		return m.rom[m.romBank*0x4000+int(addr-0x4000)]
	case addr >= 0xA000 && addr < 0xC000:
		if m.ramEnabled && m.ramBank >= 0 && len(m.ram) > 0 {
			return m.ram[(m.ramBank*0x2000+int(addr&0x1FFF))%len(m.ram)]
		}
	}
	return 0xFF
}

func (m *mbc3) Write(addr uint16, v byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = v&0x0F == 0x0A
	case addr < 0x4000:
		m.romBank = int(v & 0x7F)
		if banks := len(m.rom) / 0x4000; m.romBank >= banks {
			m.romBank %= banks
		}
		if m.romBank == 0 {
			m.romBank = 1
		}
	case addr < 0x6000:
		switch {
		case v <= 0x03:
			m.ramBank = int(v)
		case v >= 0x08 && v <= 0x0C:
			m.ramBank = -1
		}
	case addr >= 0xA000 && addr < 0xC000:
		if m.ramEnabled && m.ramBank >= 0 && len(m.ram) > 0 {
			m.ram[(m.ramBank*0x2000+int(addr&0x1FFF))%len(m.ram)] = v
		}
	}
}

func (m *mbc3) RAM() []byte { return m.ram }

// mbc5 has a 9-bit ROM bank, where bank 0 is selectable, and up to 16 RAM
// banks.
type mbc5 struct {
	rom        []byte
	ram        []byte
	ramEnabled bool
	romBank    int
	ramBank    int
}

func newMBC5(rom, ram []byte) *mbc5 {
	return &mbc5{rom: rom, ram: ram, romBank: 1}
}

func (m *mbc5) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		return m.rom[addr]
	case addr < 0x8000:
		return m.rom[m.romBank*0x4000+int(addr&0x3FFF)]
	case addr >= 0xA000 && addr < 0xC000:
		if m.ramEnabled && len(m.ram) > 0 {
			return m.ram[(m.ramBank*0x2000+int(addr&0x1FFF))%len(m.ram)]
		}
	}
	return 0xFF
}

func (m *mbc5) Write(addr uint16, v byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = len(m.ram) > 0 && v&0x0F == 0x0A
	case addr < 0x3000:
		m.romBank = m.romBank&0x100 | int(v)
		m.wrapROMBank()
	case addr < 0x4000:
		m.romBank = m.romBank&0xFF | int(v&0x01)<<8
		m.wrapROMBank()
	case addr < 0x6000:
		m.ramBank = int(v & 0x0F)
	case addr >= 0xA000 && addr < 0xC000:
		if m.ramEnabled && len(m.ram) > 0 {
			m.ram[(m.ramBank*0x2000+int(addr&0x1FFF))%len(m.ram)] = v
		}
	}
}

func (m *mbc5) wrapROMBank() {
	if banks := len(m.rom) / 0x4000; m.romBank >= banks {
		m.romBank %= banks
	}
}

func (m *mbc5) RAM() []byte { return m.ram }
