// Package gbx puts the GB and GBA engines behind a single reader. The slot
// switch picks the engine, and the shared bus lock is held for every
// complete transaction.
package gbx

import (
	"errors"
	"fmt"
	"sync"

	"github.com/thelolagemann/cartreader/internal/advance"
	"github.com/thelolagemann/cartreader/internal/cartridge"
	"github.com/thelolagemann/cartreader/internal/slot"
	"github.com/thelolagemann/cartreader/internal/spi"
	"github.com/thelolagemann/cartreader/pkg/log"
)

var (
	ErrNoCartridge = slot.ErrNoCartridge
	ErrChanged     = slot.ErrChanged
	ErrNotLoaded   = slot.ErrNotLoaded
	ErrUnknownSave = advance.ErrUnknownSave
)

// Result codes of the numeric surface.
const (
	CodeNoCartridge = -1
	CodeChanged     = -2
	CodeNotLoaded   = -3
)

// Code maps err to its numeric result code. Errors without a code, and
// nil, map to 0: nothing was transferred.
func Code(err error) int {
	switch {
	case errors.Is(err, ErrNoCartridge):
		return CodeNoCartridge
	case errors.Is(err, ErrChanged):
		return CodeChanged
	case errors.Is(err, ErrNotLoaded):
		return CodeNotLoaded
	}
	return 0
}

// Platform is the kind of cartridge loaded.
type Platform uint8

const (
	PlatformNone Platform = iota
	PlatformGB
	PlatformGBC
	PlatformGBA
)

func (p Platform) String() string {
	switch p {
	case PlatformGB:
		return "GB"
	case PlatformGBC:
		return "GBC"
	case PlatformGBA:
		return "GBA"
	}
	return "None"
}

// MarshalText implements encoding.TextMarshaler.
func (p Platform) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Platform) UnmarshalText(text []byte) error {
	for _, q := range []Platform{PlatformNone, PlatformGB, PlatformGBC, PlatformGBA} {
		if q.String() == string(text) {
			*p = q
			return nil
		}
	}
	return fmt.Errorf("gbx: unknown platform %q", text)
}

// Extension returns the file extension dumps of the platform use.
func (p Platform) Extension() string {
	switch p {
	case PlatformGB:
		return "gb"
	case PlatformGBC:
		return "gbc"
	case PlatformGBA:
		return "gba"
	}
	return "bin"
}

// Reader owns both sessions. At most one of them is loaded at a time.
// It is safe for concurrent use.
type Reader struct {
	mu   sync.Mutex
	lock *spi.Lock
	key  uint32
	bay  *slot.Bay
	log  log.Logger

	gb  *cartridge.Engine
	gba *advance.Engine

	gbSess  cartridge.Session
	gbaSess advance.Session
}

// New returns a reader. No header is loaded until LoadHeader is called.
func New(lock *spi.Lock, bay *slot.Bay, gb *cartridge.Engine, gba *advance.Engine, opts ...Opt) *Reader {
	r := &Reader{
		lock: lock,
		key:  spi.KeyGBX,
		bay:  bay,
		gb:   gb,
		gba:  gba,
		log:  log.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// acquire takes the reader mutex and the bus lock. The returned function
// releases both.
func (r *Reader) acquire() func() {
	r.mu.Lock()
	r.lock.Obtain(r.key, false)
	return func() {
		r.lock.Unlock(r.key)
		r.mu.Unlock()
	}
}

// LoadHeader reads the switch, forgets whatever the other slot had loaded
// and loads the header of the inserted cartridge.
func (r *Reader) LoadHeader() Platform {
	defer r.acquire()()
	r.loadHeader()
	return r.platform()
}

func (r *Reader) loadHeader() bool {
	r.lock.Obtain(r.key, false)
	defer r.lock.Unlock(r.key)

	kind := r.bay.Detect()
	r.log.Debugf("gbx: switch reports %s slot", kind)
	if kind == slot.KindGB {
		r.gbaSess.Clear()
		return r.gb.LoadHeader(&r.gbSess)
	}
	r.gbSess.Clear()
	return r.gba.LoadHeader(&r.gbaSess)
}

// IsLoaded checks the loaded header against the inserted cartridge.
func (r *Reader) IsLoaded() bool {
	defer r.acquire()()
	return r.isLoaded()
}

func (r *Reader) isLoaded() bool {
	switch {
	case r.gbSess.ROMSize > 0:
		return r.gb.IsLoaded(&r.gbSess)
	case r.gbaSess.ROMSize > 0:
		return r.gba.IsLoaded(&r.gbaSess)
	}
	return false
}

func (r *Reader) platform() Platform {
	switch {
	case r.gbSess.ROMSize > 0:
		if r.gbSess.CGB == cartridge.FlagOnlyDMG {
			return PlatformGB
		}
		return PlatformGBC
	case r.gbaSess.ROMSize > 0:
		return PlatformGBA
	}
	return PlatformNone
}

// CartridgeType returns the platform of the loaded cartridge.
func (r *Reader) CartridgeType() Platform {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.platform()
}

// GameTitle returns the title of the loaded cartridge.
func (r *Reader) GameTitle() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gbaSess.ROMSize > 0 {
		return r.gbaSess.Title
	}
	return r.gbSess.Title
}

// GameIdentifier returns the game code of a GBA cartridge, or the header
// hash of a GB one.
func (r *Reader) GameIdentifier() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gbaSess.ROMSize > 0 {
		return r.gbaSess.Code
	}
	return r.gbSess.Hash
}

// ROMSize returns the ROM size of the loaded cartridge, 0 if none.
func (r *Reader) ROMSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gbaSess.ROMSize > 0 {
		return r.gbaSess.ROMSize
	}
	return r.gbSess.ROMSize
}

// SaveSize returns the save size of the loaded cartridge.
func (r *Reader) SaveSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveSize()
}

func (r *Reader) saveSize() int {
	if r.gbaSess.ROMSize > 0 {
		return r.gbaSess.SaveSize
	}
	return r.gbSess.SaveSize
}

// SaveType describes the save memory of the loaded cartridge.
func (r *Reader) SaveType() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.gbaSess.ROMSize > 0:
		return r.gbaSess.SaveType.String()
	case r.gbSess.SaveSize > 0:
		return "Battery RAM"
	}
	return "None"
}

// ReadROM dumps the ROM of the loaded cartridge into buf.
func (r *Reader) ReadROM(buf []byte) (int, error) {
	defer r.acquire()()

	var (
		n   int
		err error
	)
	switch {
	case r.gbaSess.ROMSize > 0:
		n, err = r.gba.ReadROM(&r.gbaSess, buf)
	case r.gbSess.ROMSize > 0:
		n, err = r.gb.ReadROM(&r.gbSess, buf)
	default:
		return 0, ErrNoCartridge
	}
	return n, r.resync(err)
}

// ReadSave reads the save memory of the loaded cartridge into buf.
func (r *Reader) ReadSave(buf []byte) (int, error) {
	defer r.acquire()()

	var (
		n   int
		err error
	)
	switch {
	case r.gbaSess.ROMSize > 0:
		n, err = r.gba.ReadSave(&r.gbaSess, buf)
	case r.gbSess.ROMSize > 0:
		n, err = r.gb.ReadSave(&r.gbSess, buf)
	default:
		return 0, ErrNoCartridge
	}
	return n, r.resync(err)
}

// resync runs after an engine found its slot empty. The cartridge may have
// moved to the other slot, in which case it is loaded and reported as a
// change.
func (r *Reader) resync(err error) error {
	if !errors.Is(err, ErrNoCartridge) {
		return err
	}
	if r.loadHeader() {
		r.log.Infof("gbx: cartridge changed to %s", r.platform())
		return ErrChanged
	}
	return err
}

// WriteSave writes buf to the save memory of the loaded cartridge. The
// header is checked against the cartridge first, so a swapped cartridge is
// never written.
func (r *Reader) WriteSave(buf []byte) (int, error) {
	defer r.acquire()()

	if r.platform() == PlatformNone {
		return 0, ErrNotLoaded
	}
	if !r.isLoaded() {
		if r.loadHeader() {
			r.log.Warnf("gbx: cartridge changed, not writing")
			return 0, ErrChanged
		}
		return 0, ErrNoCartridge
	}

	var (
		n   int
		err error
	)
	if r.gbaSess.ROMSize > 0 {
		n, err = r.gba.WriteSave(&r.gbaSess, buf)
	} else {
		n, err = r.gb.WriteSave(&r.gbSess, buf)
	}
	if err != nil {
		r.log.Errorf("gbx: write save: %v", err)
	}
	return n, err
}

// HeaderDumpLen is a buffer size large enough for DumpHeader on either
// platform.
const HeaderDumpLen = max(cartridge.HeaderDumpLen, advance.HeaderDumpLen)

// DumpHeader reads the raw header region of whatever is in the slot,
// without verifying it.
func (r *Reader) DumpHeader(buf []byte) (int, Platform) {
	defer r.acquire()()
	if r.bay.Detect() == slot.KindGB {
		return r.gb.DumpHeader(buf), PlatformGB
	}
	return r.gba.DumpHeader(buf), PlatformGBA
}

// Info is a snapshot of the loaded cartridge.
type Info struct {
	Platform   Platform `json:"platform"`
	Title      string   `json:"title"`
	Identifier string   `json:"identifier"`
	Maker      string   `json:"maker,omitempty"`
	CGB        string   `json:"cgb,omitempty"`
	Controller string   `json:"controller,omitempty"`
	ROMSize    int      `json:"romSize"`
	SaveSize   int      `json:"saveSize"`
	SaveType   string   `json:"saveType"`
}

// Info returns a snapshot of the loaded cartridge.
func (r *Reader) Info() Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := Info{Platform: r.platform(), SaveType: "None"}
	switch i.Platform {
	case PlatformGBA:
		s := r.gbaSess
		i.Title, i.Identifier, i.Maker = s.Title, s.Code, s.Maker
		i.ROMSize, i.SaveSize, i.SaveType = s.ROMSize, s.SaveSize, s.SaveType.String()
	case PlatformGB, PlatformGBC:
		s := r.gbSess
		i.Title, i.Identifier = s.Title, s.Hash
		i.CGB, i.Controller = s.CGB.String(), s.Controller.String()
		i.ROMSize, i.SaveSize = s.ROMSize, s.SaveSize
		if s.SaveSize > 0 {
			i.SaveType = "Battery RAM"
		}
	}
	return i
}
