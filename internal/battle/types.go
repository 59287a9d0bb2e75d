package battle

// ID identifies a single battle for the lifetime of its simulation.
type ID string

// Side is one of the two opposing battle participants.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Opponent returns the complementary side.
func (s Side) Opponent() Side {
	if s == SideLeft {
		return SideRight
	}
	return SideLeft
}

// Valid reports whether the side is one of the two known values.
func (s Side) Valid() bool {
	return s == SideLeft || s == SideRight
}

// Lane is one of the fixed stat-category tracks. Each lane hosts an
// independent attack/defense sub-simulation.
type Lane string

const (
	LanePoints   Lane = "pts"
	LaneRebounds Lane = "reb"
	LaneAssists  Lane = "ast"
	LaneSteals   Lane = "stl"
	LaneBlocks   Lane = "blk"
)

// Lanes returns every lane in canonical order.
func Lanes() []Lane {
	return []Lane{LanePoints, LaneRebounds, LaneAssists, LaneSteals, LaneBlocks}
}

// ValidLane reports whether the lane is one of the known tracks.
func ValidLane(lane Lane) bool {
	switch lane {
	case LanePoints, LaneRebounds, LaneAssists, LaneSteals, LaneBlocks:
		return true
	}
	return false
}

// Quarter numbers the battle phases starting at 1. Quarter 0 means the
// battle has not started.
type Quarter int
