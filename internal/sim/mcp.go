package sim

const (
	iocon  = 0x0A
	seqop  = 0x20
	regMax = 0x15
)

// mcp holds the register file of one MCP23S17 in BANK = 0 layout. Only the
// registers the reader touches are kept; the rest read as zero.
type mcp struct {
	addr  byte
	iocon byte
	iodir [2]byte
	gppu  [2]byte
	olat  [2]byte
}

func newMCP(addr byte) *mcp {
	return &mcp{addr: addr, iodir: [2]byte{0xFF, 0xFF}}
}

// next returns the register addressed after reg. With SEQOP set the pointer
// toggles within the A/B pair.
func (m *mcp) next(reg byte) byte {
	if m.iocon&seqop != 0 {
		return reg ^ 1
	}
	if reg >= regMax {
		return 0
	}
	return reg + 1
}

func (m *mcp) write(reg, v byte) {
	half := reg & 1
	switch reg &^ 1 {
	case 0x00:
		m.iodir[half] = v
	case iocon:
		m.iocon = v
	case 0x0C:
		m.gppu[half] = v
	case 0x12, 0x14:
		m.olat[half] = v
	}
}

func (m *mcp) read(reg byte) byte {
	half := reg & 1
	switch reg &^ 1 {
	case 0x00:
		return m.iodir[half]
	case iocon:
		return m.iocon
	case 0x0C:
		return m.gppu[half]
	case 0x14:
		return m.olat[half]
	}
	return 0
}
