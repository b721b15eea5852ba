package gbx

import (
	"time"

	"github.com/thelolagemann/cartreader/internal/advance"
)

// Fitted transfer rates, in milliseconds per 100 bytes scaled by 10000.
// cmd/calibrate measures them.
const (
	gbaROMRate   = 1405
	gbROMRate    = 10255
	gbReadRate   = 21314
	gbWriteRate  = 22158
	rateDivision = 10000
)

// Measured save transfer times of the GBA save types, in milliseconds.
var (
	gbaReadTimes = map[advance.SaveType]int{
		advance.EEPROM4K:  53,
		advance.EEPROM64K: 946,
		advance.SRAM256K:  361,
		advance.SRAM512K:  722,
		advance.Flash512K: 720,
		advance.Flash1M:   1449,
	}
	gbaWriteTimes = map[advance.SaveType]int{
		advance.EEPROM4K:  541,
		advance.EEPROM64K: 13289,
		advance.SRAM256K:  734,
		advance.SRAM512K:  1468,
		advance.Flash512K: 8638,
		advance.Flash1M:   16861,
	}
)

// Fallbacks for a GBA save that could not be classified.
const (
	gbaUnknownReadTime  = 1500
	gbaUnknownWriteTime = 15000
)

func linear(size, rate int) time.Duration {
	return time.Duration(size/100*rate/rateDivision) * time.Millisecond
}

func lookup(times map[advance.SaveType]int, t advance.SaveType, fallback int) time.Duration {
	ms, ok := times[t]
	if !ok {
		ms = fallback
	}
	return time.Duration(ms) * time.Millisecond
}

// TimeToReadROM estimates how long ReadROM takes for the loaded cartridge.
// The estimates only size progress indicators.
func (r *Reader) TimeToReadROM() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gbaSess.ROMSize > 0 {
		return linear(r.gbaSess.ROMSize, gbaROMRate)
	}
	return linear(r.gbSess.ROMSize, gbROMRate)
}

// TimeToReadSave estimates how long ReadSave takes.
func (r *Reader) TimeToReadSave() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gbaSess.ROMSize > 0 {
		return lookup(gbaReadTimes, r.gbaSess.SaveType, gbaUnknownReadTime)
	}
	return linear(r.gbSess.SaveSize, gbReadRate)
}

// TimeToWriteSave estimates how long WriteSave takes.
func (r *Reader) TimeToWriteSave() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gbaSess.ROMSize > 0 {
		return lookup(gbaWriteTimes, r.gbaSess.SaveType, gbaUnknownWriteTime)
	}
	return linear(r.gbSess.SaveSize, gbWriteRate)
}
