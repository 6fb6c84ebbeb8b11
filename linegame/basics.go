package linegame

import "fmt"

// Color is the content of a board cell
type Color int8

// Cell contents. Players are the Black and White colors.
const (
	Empty Color = 0
	Black Color = 1
	White Color = 2
	Wall  Color = 3
)

// Player is a Color that is Black or White
type Player = Color

// Opp returns the opponent of a player
func Opp(c Color) Color {
	return c ^ 3
}

// IsPlayer reports whether c is Black or White
func IsPlayer(c Color) bool {
	return c == Black || c == White
}

// Direction is the orientation attached to a move
type Direction int8

// Directions, NoDirection is only used by the null location
const (
	North       Direction = 0
	West        Direction = 1
	NorthWest   Direction = 2
	NorthEast   Direction = 3
	NoDirection Direction = 4
)

// NumDirections counts NoDirection, NumActualDirections does not
const (
	NumDirections       = 5
	NumActualDirections = 4
)

// Board geometry
const (
	MaxLen        = 19
	MaxArrSize    = (MaxLen+1)*(MaxLen+2) + 1
	DefaultLen    = 5
	DefaultWinLen = 4
)

// Spot is a padded 1-D index of a cell: (x+1)+(y+1)*(xSize+1)
type Spot int

// NullSpot never refers to a cell on the board
const NullSpot Spot = 0

// Loc is a spot with a direction
type Loc struct {
	Spot Spot
	Dir  Direction
}

// NullLoc is the location before any move was made
var NullLoc = Loc{NullSpot, NoDirection}

// IsNull reports whether the location has no spot
func (l Loc) IsNull() bool {
	return l.Spot == NullSpot
}

// Move stores a location and the player making it
type Move struct {
	Loc Loc
	Pla Player
}

// NewMove creates a Move from board coordinates
func NewMove(pla Player, x, y int, dir Direction, xSize int) Move {
	return Move{Loc: GetLoc(x, y, dir, xSize), Pla: pla}
}

// Equals compares two moves
func (m Move) Equals(m2 Move) bool {
	return m.Loc == m2.Loc && m.Pla == m2.Pla
}

func (m Move) String() string {
	return fmt.Sprintf("%s spot %d %s", PlayerToString(m.Pla), m.Loc.Spot, DirectionToString(m.Loc.Dir))
}

// Placement is a stone used to set up a board
type Placement struct {
	Spot  Spot
	Color Color
}

// GetSpot converts coordinates to a spot
func GetSpot(x, y, xSize int) Spot {
	return Spot((x + 1) + (y+1)*(xSize+1))
}

// GetX returns the column of a spot
func GetX(s Spot, xSize int) int {
	return int(s)%(xSize+1) - 1
}

// GetY returns the row of a spot
func GetY(s Spot, xSize int) int {
	return int(s)/(xSize+1) - 1
}

// GetLoc converts coordinates and a direction to a location
func GetLoc(x, y int, dir Direction, xSize int) Loc {
	return Loc{GetSpot(x, y, xSize), dir}
}

// IsAdjacent reports whether two spots share an edge
func IsAdjacent(s0, s1 Spot, xSize int) bool {
	stride := Spot(xSize + 1)
	return s0 == s1-stride || s0 == s1-1 || s0 == s1+1 || s0 == s1+stride
}

// GetMirrorSpot reflects a spot through the center of the board
func GetMirrorSpot(s Spot, xSize, ySize int) Spot {
	if s == NullSpot {
		return s
	}
	return GetSpot(xSize-1-GetX(s, xSize), ySize-1-GetY(s, xSize), xSize)
}

// GetCenterSpot returns the center cell, or NullSpot when a dimension is even
func GetCenterSpot(xSize, ySize int) Spot {
	if xSize%2 == 0 || ySize%2 == 0 {
		return NullSpot
	}
	return GetSpot(xSize/2, ySize/2, xSize)
}

// IsCentral reports whether a spot is one of the (up to four) middle cells
func IsCentral(s Spot, xSize, ySize int) bool {
	x := GetX(s, xSize)
	y := GetY(s, xSize)
	return x >= (xSize-1)/2 && x <= xSize/2 && y >= (ySize-1)/2 && y <= ySize/2
}

// IsNearCentral widens IsCentral by one cell in every direction
func IsNearCentral(s Spot, xSize, ySize int) bool {
	x := GetX(s, xSize)
	y := GetY(s, xSize)
	return x >= (xSize-1)/2-1 && x <= xSize/2+1 && y >= (ySize-1)/2-1 && y <= ySize/2+1
}

// Distance is the manhattan distance between two spots
func Distance(s0, s1 Spot, xSize int) int {
	dx := GetX(s1, xSize) - GetX(s0, xSize)
	dy := GetY(s1, xSize) - GetY(s0, xSize)
	return abs(dx) + abs(dy)
}

// EuclideanDistanceSquared is the squared euclidean distance between two spots
func EuclideanDistanceSquared(s0, s1 Spot, xSize int) int {
	dx := GetX(s1, xSize) - GetX(s0, xSize)
	dy := GetY(s1, xSize) - GetY(s0, xSize)
	return dx*dx + dy*dy
}

// lineOffsets are the spot strides for N, W, NW, NE
func lineOffsets(xSize int) [NumActualDirections]Spot {
	stride := Spot(xSize + 1)
	return [NumActualDirections]Spot{-stride, -1, -stride - 1, -stride + 1}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
