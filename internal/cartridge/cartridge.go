// Package cartridge reads and writes Game Boy and Game Boy Color
// cartridges through the reader's GB slot.
package cartridge

import (
	"crypto/sha1"
	"fmt"

	"github.com/thelolagemann/cartreader/internal/slot"
	"github.com/thelolagemann/cartreader/pkg/log"
)

// NintendoLogo is the bitmap at 0x104 the boot ROM checks.
var NintendoLogo = [48]byte{
	0xCE, 0xED, 0x66, 0x66, 0xCC, 0x0D, 0x00, 0x0B, 0x03, 0x73, 0x00, 0x83, 0x00, 0x0C, 0x00, 0x0D,
	0x00, 0x08, 0x11, 0x1F, 0x88, 0x89, 0x00, 0x0E, 0xDC, 0xCC, 0x6E, 0xE6, 0xDD, 0xDD, 0xD9, 0x99,
	0xBB, 0xBB, 0x67, 0x63, 0x6E, 0x0E, 0xEC, 0xCC, 0xDD, 0xDC, 0x99, 0x9F, 0xBB, 0xB9, 0x33, 0x3E,
}

const (
	headerStart = 0x100
	headerLen   = 0x50
	hashLen     = 1024

	// HeaderDumpLen is the number of bytes DumpHeader reads.
	HeaderDumpLen = 400
)

// Session is the cached state of a loaded cartridge. The zero value is an
// unloaded session.
type Session struct {
	Header

	// Hash is the uppercase hex SHA-1 of the first 1KB of ROM, the
	// catalogue identifier of a cartridge without a serial.
	Hash string

	loaded bool
}

// Loaded reports whether the session holds a verified header.
func (s *Session) Loaded() bool {
	return s != nil && s.loaded
}

// Clear forgets the cached header.
func (s *Session) Clear() {
	*s = Session{}
}

// Engine drives the GB slot. It holds no cartridge state of its own: every
// call takes the session it acts on. It is not safe for concurrent use.
type Engine struct {
	slot *slot.Slot
	log  log.Logger

	scratch [hashLen]byte
}

// New returns an engine on s and powers the slot down.
func New(s *slot.Slot) *Engine {
	s.PowerDown()
	return &Engine{slot: s, log: s.Log()}
}

// LoadHeader reads and verifies the header of the inserted cartridge into
// sess. A cartridge whose logo does not verify leaves sess cleared.
func (e *Engine) LoadHeader(sess *Session) bool {
	defer e.slot.PowerDown()

	// some cartridges need a read to wake up
	e.readAt(e.scratch[:4], 0)
	e.readAt(e.scratch[:], 0)

	header := e.scratch[headerStart : headerStart+headerLen]
	if !verifyLogo(header) {
		e.log.Debugf("gb: logo does not verify")
		sess.Clear()
		return false
	}

	h, err := parseHeader(header)
	if err != nil {
		e.log.Errorf("gb: %v", err)
		sess.Clear()
		return false
	}

	sess.Header = h
	sess.Hash = fmt.Sprintf("%X", sha1.Sum(e.scratch[:]))
	sess.loaded = true
	e.log.Debugf("gb: loaded %s", h.String())
	return true
}

// IsLoaded re-reads the header and reports whether it still matches sess,
// clearing sess when it does not.
func (e *Engine) IsLoaded(sess *Session) bool {
	defer e.slot.PowerDown()
	return e.verify(sess)
}

// verify compares the live logo, title and colour flag with sess.
func (e *Engine) verify(sess *Session) bool {
	if !sess.Loaded() {
		return false
	}
	header := e.scratch[:headerLen]
	e.readAt(header, headerStart)

	if !verifyLogo(header) {
		sess.Clear()
		return false
	}
	title, flag := parseTitle(header)
	if title != sess.Title || flag != sess.CGB {
		sess.Clear()
		return false
	}
	return true
}

// ensure makes sure sess describes the inserted cartridge, loading the
// header again if it does not.
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

	n := min(len(buf), sess.ROMSize)
	if sess.Controller == ControllerNone {
		n = min(n, 2*romBankSize)
	}
	if n == 0 {
		return 0, nil
	}
	return e.readROM(controllerFor(sess.Controller), buf[:n]), nil
}

// ReadSave reads up to len(buf) bytes of battery backed RAM.
func (e *Engine) ReadSave(sess *Session, buf []byte) (int, error) {
	defer e.slot.PowerDown()
	if err := e.ensure(sess); err != nil {
		return 0, err
	}

	n := saveWindow(sess, len(buf))
	if n == 0 {
		return 0, nil
	}
	return e.accessRAM(controllerFor(sess.Controller), buf[:n], false), nil
}

// WriteSave writes buf to battery backed RAM. It refuses to write when
// sess was never loaded, or when the inserted cartridge no longer matches.
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

	n := saveWindow(sess, len(buf))
	if n == 0 {
		return 0, nil
	}
	return e.accessRAM(controllerFor(sess.Controller), buf[:n], true), nil
}

// saveWindow returns how many of length bytes a save transfer moves.
// Without a controller only the single RAM bank at 0xA000 is reachable.
func saveWindow(sess *Session, length int) int {
	n := min(length, sess.SaveSize)
	if sess.Controller == ControllerNone {
		n = min(n, ramBankSize)
	}
	return n
}

// DumpHeader reads the first bytes of the address space unverified.
func (e *Engine) DumpHeader(buf []byte) int {
	defer e.slot.PowerDown()
	return e.readAt(buf[:min(len(buf), HeaderDumpLen)], 0)
}
