package battle

import "fmt"

// Layout translates continuous lane positions into zone membership and
// discrete defense-cell indexes. The battle core never computes geometry on
// its own; everything it needs from the visual layout is behind this
// interface so the rendering collaborator stays free to move pixels around.
type Layout interface {
	// Width returns the lane length in world units. The left castle sits at
	// x=0 and the right castle at x=Width().
	Width() float64

	// CastleX returns the castle position for the given side.
	CastleX(side Side) float64

	// CellCount returns the number of defense cells per side and lane.
	CellCount() int

	// InZone reports whether x lies inside the given side's defense zone.
	InZone(side Side, x float64) bool

	// CellIndex maps a position inside the side's defense zone to a discrete
	// cell index. Index 0 is always the cell nearest that side's castle,
	// regardless of the direction of travel. The second return is false when
	// x is outside the zone.
	CellIndex(side Side, x float64) (int, bool)
}

// GridLayout is the default Layout: two mirrored defense zones of equal
// depth, each divided into a fixed number of cells.
type GridLayout struct {
	width     float64
	zoneDepth float64
	cells     int
}

// NewGridLayout validates the dimensions and returns a GridLayout. The two
// zones must not overlap.
func NewGridLayout(width, zoneDepth float64, cells int) (*GridLayout, error) {
	if width <= 0 {
		return nil, fmt.Errorf("layout: width must be positive, got %v", width)
	}
	if zoneDepth <= 0 || zoneDepth*2 > width {
		return nil, fmt.Errorf("layout: zone depth %v does not fit lane width %v", zoneDepth, width)
	}
	if cells <= 0 {
		return nil, fmt.Errorf("layout: cell count must be positive, got %d", cells)
	}
	return &GridLayout{width: width, zoneDepth: zoneDepth, cells: cells}, nil
}

// Width returns the lane length in world units.
func (l *GridLayout) Width() float64 { return l.width }

// CastleX returns 0 for the left castle and the lane width for the right.
func (l *GridLayout) CastleX(side Side) float64 {
	if side == SideLeft {
		return 0
	}
	return l.width
}

// CellCount returns the number of defense cells per side and lane.
func (l *GridLayout) CellCount() int { return l.cells }

// InZone reports whether x falls inside the side's defense zone.
func (l *GridLayout) InZone(side Side, x float64) bool {
	if side == SideLeft {
		return x >= 0 && x < l.zoneDepth
	}
	return x > l.width-l.zoneDepth && x <= l.width
}

// CellIndex maps x to the defense cell for the given side. Cell 0 touches the
// castle: for the left side that is the lowest x band, for the right side the
// highest.
func (l *GridLayout) CellIndex(side Side, x float64) (int, bool) {
	if !l.InZone(side, x) {
		return 0, false
	}
	cellSize := l.zoneDepth / float64(l.cells)
	var distance float64
	if side == SideLeft {
		distance = x
	} else {
		distance = l.width - x
	}
	index := int(distance / cellSize)
	if index >= l.cells {
		index = l.cells - 1
	}
	return index, true
}
