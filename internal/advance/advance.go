// Package advance reads and writes Game Boy Advance cartridges through the
// reader's GBA slot: ROM over the multiplexed address/data bus and saves
// over EEPROM, SRAM or flash.
package advance

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/thelolagemann/cartreader/internal/slot"
	"github.com/thelolagemann/cartreader/pkg/log"
)

// ErrUnknownSave is returned by writes to save memory that could not be
// identified.
var ErrUnknownSave = errors.New("unknown save type")

const (
	headerLen = 0xC0

	// HeaderDumpLen is the number of bytes DumpHeader reads.
	HeaderDumpLen = headerLen

	probeLead = 8
)

// romSizes are the boundaries the ROM probe tries, smallest first. Any
// larger chip is taken to be the maximum.
var romSizes = []int{4 << 20, 8 << 20, 16 << 20}

// MaxROMSize is the largest ROM the bus can address.
const MaxROMSize = 32 << 20

// Session is the cached state of a loaded cartridge. The zero value is an
// unloaded session.
type Session struct {
	Title string // 0xA0, 12 bytes
	Code  string // 0xAC, 4 bytes
	Maker string // 0xB0, 2 bytes

	ROMSize  int
	SaveType SaveType
	SaveSize int

	checksum byte
	loaded   bool
}

// Loaded reports whether the session holds a verified header.
func (s *Session) Loaded() bool {
	return s != nil && s.loaded
}

// Clear forgets the cached header.
func (s *Session) Clear() {
	*s = Session{}
}

// Engine drives the GBA slot. Like the GB engine it keeps no cartridge
// state itself. It is not safe for concurrent use.
type Engine struct {
	slot *slot.Slot
	log  log.Logger

	header  [headerLen]byte
	scratch [eepromProbeLen]byte
}

// New returns an engine on s and powers the slot down.
func New(s *slot.Slot) *Engine {
	s.PowerDown()
	return &Engine{slot: s, log: s.Log()}
}

// checksum computes the header complement check over 0xA0-0xBC.
func checksum(h []byte) byte {
	var chk byte
	for i := 0xA0; i < 0xBC; i++ {
		chk -= h[i]
	}
	return chk - 0x19
}

func headerString(b []byte) string {
	return strings.TrimRight(string(b), "\x00 ")
}

// readHeader reads the header and reports whether its checksum holds.
func (e *Engine) readHeader() bool {
	e.readAt(e.header[:], 0)
	return checksum(e.header[:]) == e.header[0xBD]
}

// LoadHeader reads the header of the inserted cartridge into sess, then
// probes the ROM size and classifies the save memory. A bad checksum
// leaves sess cleared.
func (e *Engine) LoadHeader(sess *Session) bool {
	defer e.slot.PowerDown()

	if !e.readHeader() {
		e.log.Debugf("gba: header checksum does not match")
		sess.Clear()
		return false
	}

	*sess = Session{
		Title:    headerString(e.header[0xA0:0xAC]),
		Code:     headerString(e.header[0xAC:0xB0]),
		Maker:    headerString(e.header[0xB0:0xB2]),
		checksum: e.header[0xBD],
		loaded:   true,
	}
	sess.ROMSize = e.probeROM()
	sess.SaveType = e.classify()
	sess.SaveSize = sess.SaveType.Size()

	e.log.Debugf("gba: loaded %s", sess.String())
	return true
}

// probeROM reads across each candidate boundary. A chip of that size wraps
// there, so the header shows up again right after it.
func (e *Engine) probeROM() int {
	buf := make([]byte, probeLead+headerLen)
	for _, size := range romSizes {
		e.readAt(buf, size-probeLead)
		if bytes.Equal(buf[probeLead:], e.header[:]) {
			return size
		}
	}
	return MaxROMSize
}

// IsLoaded re-reads the header and reports whether it still matches sess,
// clearing sess when it does not.
func (e *Engine) IsLoaded(sess *Session) bool {
	defer e.slot.PowerDown()
	return e.verify(sess)
}

func (e *Engine) verify(sess *Session) bool {
	if !sess.Loaded() {
		return false
	}
	if !e.readHeader() ||
		e.header[0xBD] != sess.checksum ||
		headerString(e.header[0xA0:0xAC]) != sess.Title ||
		headerString(e.header[0xAC:0xB0]) != sess.Code ||
		headerString(e.header[0xB0:0xB2]) != sess.Maker {
		sess.Clear()
		return false
	}
	return true
}

func (e *Engine) ensure(sess *Session) error {
	if !e.verify(sess) && !e.LoadHeader(sess) {
		return slot.ErrNoCartridge
	}
	return nil
}

// ReadROM dumps up to len(buf) bytes of ROM and returns the count.
func (e *Engine) ReadROM(sess *Session, buf []byte) (int, error) {
	defer e.slot.PowerDown()
	if err := e.ensure(sess); err != nil {
		return 0, err
	}
	return e.readROM(buf[:min(len(buf), sess.ROMSize)], 0), nil
}

// ReadSave reads up to len(buf) bytes of save memory. An unidentified save
// reads nothing.
func (e *Engine) ReadSave(sess *Session, buf []byte) (int, error) {
	defer e.slot.PowerDown()
	if err := e.ensure(sess); err != nil {
		return 0, err
	}

	buf = buf[:min(len(buf), sess.SaveSize)]
	switch sess.SaveType {
	case EEPROM4K, EEPROM64K:
		return e.readEEPROM(buf, sess.SaveType == EEPROM64K), nil
	case SRAM256K, SRAM512K:
		return e.readParallel(buf, 0), nil
	case Flash512K, Flash1M:
		return e.readFlash(buf), nil
	}
	return 0, nil
}

// WriteSave writes buf to save memory. It refuses to write when sess was
// never loaded, or when the inserted cartridge no longer matches.
func (e *Engine) WriteSave(sess *Session, buf []byte) (int, error) {
	if !sess.Loaded() {
		return 0, slot.ErrNotLoaded
	}
	defer e.slot.PowerDown()
	if !e.verify(sess) {
		if e.LoadHeader(sess) {
			return 0, slot.ErrChanged
		}
		return 0, slot.ErrNoCartridge
	}

	buf = buf[:min(len(buf), sess.SaveSize)]
	switch sess.SaveType {
	case EEPROM4K, EEPROM64K:
		return e.writeEEPROM(buf, sess.SaveType == EEPROM64K), nil
	case SRAM256K, SRAM512K:
		return e.writeParallel(buf, 0), nil
	case Flash512K, Flash1M:
		return e.writeFlash(buf)
	}
	return 0, ErrUnknownSave
}

// DumpHeader reads the header unverified.
func (e *Engine) DumpHeader(buf []byte) int {
	defer e.slot.PowerDown()
	return e.readAt(buf[:min(len(buf), HeaderDumpLen)], 0)
}

func (s *Session) String() string {
	return fmt.Sprintf("%s (%s%s) | ROM Size: %dMB | Save: %s",
		s.Title, s.Code, s.Maker, s.ROMSize>>20, s.SaveType)
}
