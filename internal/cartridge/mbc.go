package cartridge

// Controller is the memory bank controller of a cartridge.
type Controller uint8

const (
	ControllerNone Controller = iota
	ControllerMBC1
	ControllerMBC2
	ControllerMBC3
	ControllerMBC5
)

func (c Controller) String() string {
	switch c {
	case ControllerMBC1:
		return "MBC1"
	case ControllerMBC2:
		return "MBC2"
	case ControllerMBC3:
		return "MBC3"
	case ControllerMBC5:
		return "MBC5"
	}
	return "None"
}

// bankSwitcher writes the bank registers of one controller type. Every
// method leaves the controller in a state the next one can build on; the
// restore methods return it to its power-on defaults.
type bankSwitcher interface {
	prepareROM(e *Engine)
	// selectROM maps bank and returns the window it shows up in.
	selectROM(e *Engine, bank int) int
	restoreROM(e *Engine)

	enableRAM(e *Engine)
	selectRAM(e *Engine, bank int)
	disableRAM(e *Engine)
	ramBankSize() int
}

func controllerFor(c Controller) bankSwitcher {
	switch c {
	case ControllerMBC1:
		return mbc1{}
	case ControllerMBC2:
		return mbc2{}
	case ControllerMBC3:
		return mbc3{}
	case ControllerMBC5:
		return mbc5{}
	}
	return noController{}
}

// readROM reads bank 0 from 0x0000 and every further bank through the
// switchable window at 0x4000.
func (e *Engine) readROM(sw bankSwitcher, buf []byte) int {
	sw.prepareROM(e)
	n := e.readAt(buf[:min(len(buf), romBankSize)], 0)
	for bank := 1; n < len(buf); bank++ {
		window := sw.selectROM(e, bank)
		end := min(n+romBankSize, len(buf))
		n += e.readAt(buf[n:end], window)
	}
	sw.restoreROM(e)
	return n
}

// accessRAM reads or writes buf through the RAM window at 0xA000, one bank
// at a time. The last bank may be partial.
func (e *Engine) accessRAM(sw bankSwitcher, buf []byte, write bool) int {
	size := sw.ramBankSize()
	sw.enableRAM(e)
	n := 0
	for bank := 0; n < len(buf); bank++ {
		sw.selectRAM(e, bank)
		end := min(n+size, len(buf))
		if write {
			n += e.writeAt(buf[n:end], ramBase)
		} else {
			n += e.readAt(buf[n:end], ramBase)
		}
	}
	sw.disableRAM(e)
	return n
}

// noController covers ROM-only cartridges: 32KB of ROM and up to 8KB of
// RAM, both mapped directly.
type noController struct{}

func (noController) prepareROM(*Engine)         {}
func (noController) selectROM(*Engine, int) int { return romBankSize }
func (noController) restoreROM(*Engine)         {}
func (noController) enableRAM(*Engine)          {}
func (noController) selectRAM(*Engine, int)     {}
func (noController) disableRAM(*Engine)         {}
func (noController) ramBankSize() int           { return ramBankSize }
