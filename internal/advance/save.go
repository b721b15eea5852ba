package advance

import (
	"github.com/thelolagemann/cartreader/pkg/bits"
)

// SaveType is the kind of backup memory a cartridge carries.
type SaveType uint8

const (
	SaveUnknown SaveType = iota
	EEPROM4K
	EEPROM64K
	SRAM256K
	SRAM512K
	Flash512K
	Flash1M
)

var saveTypes = [...]struct {
	name string
	size int
}{
	SaveUnknown: {"Unknown", 0},
	EEPROM4K:    {"EEPROM 4K", 512},
	EEPROM64K:   {"EEPROM 64K", 8 * 1024},
	SRAM256K:    {"SRAM 256K", 32 * 1024},
	SRAM512K:    {"SRAM 512K", 64 * 1024},
	Flash512K:   {"Flash 512K", 64 * 1024},
	Flash1M:     {"Flash 1M", 128 * 1024},
}

func (t SaveType) String() string {
	if int(t) < len(saveTypes) {
		return saveTypes[t].name
	}
	return saveTypes[SaveUnknown].name
}

// Size returns the number of bytes the save memory holds.
func (t SaveType) Size() int {
	if int(t) < len(saveTypes) {
		return saveTypes[t].size
	}
	return 0
}

// Leniencies of the classification heuristics, as the percentage of bits
// that must behave as expected.
const (
	EEPROMLeniency      = 97
	FlashOrSRAMLeniency = 95
	SRAMLeniency        = 95
	FlashLeniency       = 95
)

const (
	// eepromProbeLen is 65 blocks: enough to compare every byte with the
	// one a block earlier over 512 bytes.
	eepromProbeLen = 520

	presenceReads   = 128
	presenceStride  = 512
	presenceReadLen = 64

	mirrorLen = 64
)

// classify works out the save memory of the inserted cartridge. EEPROM is
// tried first, then the parallel bus is checked for any chip at all, which
// is then told apart as SRAM or flash.
func (e *Engine) classify() SaveType {
	if t, ok := e.probeEEPROM(); ok {
		return t
	}
	if !e.parallelPresent() {
		return SaveUnknown
	}
	if t, ok := e.probeSRAM(); ok {
		return t
	}
	return e.probeFlash()
}

// probeEEPROM reads with 14-bit framing and hands the block to
// eepromKind.
func (e *Engine) probeEEPROM() (SaveType, bool) {
	buf := e.scratch[:eepromProbeLen]
	e.readEEPROM(buf, true)
	return eepromKind(buf)
}

// eepromKind classifies an over-read EEPROM block. A missing chip reads
// all zeros and a stuck bus all ones. A 4K part ignores the upper address
// bits and repeats block 0, so comparing every byte with the one a block
// earlier tells the sizes apart.
func eepromKind(buf []byte) (SaveType, bool) {
	total := len(buf) * 8
	limit := total * EEPROMLeniency / 100
	if n := bits.Count(buf); n > limit || n < total-limit {
		return SaveUnknown, false
	}

	diff := bits.Diff(buf[eepromBlockSize:], buf[:len(buf)-eepromBlockSize])
	if diff < bits.Margin((len(buf)-eepromBlockSize)*8, EEPROMLeniency) {
		return EEPROM4K, true
	}
	return EEPROM64K, true
}

// parallelPresent samples the CS2 bus across its 64KB window and reports
// whether anything drives it. An empty bus reads back as zeros, so one
// sample with enough bits set is a chip, however sparse the rest of the
// save is.
func (e *Engine) parallelPresent() bool {
	buf := e.scratch[:presenceReadLen]
	for i := 0; i < presenceReads; i++ {
		e.readFlashAt(buf, i*presenceStride)
		if bits.Count(buf) > bits.Margin(presenceReadLen*8, FlashOrSRAMLeniency) {
			return true
		}
	}
	return false
}

// probeSRAM inverts byte 0 and reads it back, then restores the original
// value and reads that back too. A 32KB part mirrors into the upper half of
// the window.
func (e *Engine) probeSRAM() (SaveType, bool) {
	var b [1]byte
	e.readParallel(b[:], 0)
	orig := b[0]

	b[0] = ^orig
	e.writeParallel(b[:], 0)
	e.readParallel(b[:], 0)
	got := b[0]

	b[0] = orig
	e.writeParallel(b[:], 0)
	if got != ^orig {
		return SaveUnknown, false
	}
	if e.readParallel(b[:], 0); b[0] != orig {
		return SaveUnknown, false
	}

	diff := e.mirrorDiff(e.readParallel, parallelSize/2)
	if diff < bits.Margin(2*mirrorLen*8, SRAMLeniency) {
		return SRAM256K, true
	}
	return SRAM512K, true
}

// probeFlash looks the chip up by its ID and falls back to checking
// whether the upper bank mirrors the lower one.
func (e *Engine) probeFlash() SaveType {
	m, d := e.flashID()
	if t, ok := flashIDs[[2]byte{m, d}]; ok {
		return t
	}
	e.log.Debugf("gba: unlisted flash %02X/%02X, comparing banks", m, d)

	diff := e.mirrorDiff(e.readFlashAt, parallelSize)
	if diff < bits.Margin(2*mirrorLen*8, FlashLeniency) {
		return Flash512K
	}
	return Flash1M
}

// mirrorDiff compares the first and last bytes below half with the same
// spans above it.
func (e *Engine) mirrorDiff(read func([]byte, int) int, half int) int {
	var lo, hi [mirrorLen]byte
	read(lo[:], 0)
	read(hi[:], half)
	diff := bits.Diff(lo[:], hi[:])

	read(lo[:], half-mirrorLen)
	read(hi[:], 2*half-mirrorLen)
	return diff + bits.Diff(lo[:], hi[:])
}
