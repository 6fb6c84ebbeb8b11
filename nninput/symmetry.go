package nninput

import "github.com/dodgebc/go-linegame/linegame"

// NumSymmetries is the size of the symmetry group of a square board.
// Bit 2 transposes, bit 1 flips x, bit 0 flips y.
const NumSymmetries = 8

// IsTranspose reports whether a symmetry swaps axes
func IsTranspose(sym int) bool {
	return sym&0x4 != 0
}

// Invert returns the symmetry undoing sym
func Invert(sym int) int {
	switch sym {
	case 5:
		return 6
	case 6:
		return 5
	}
	return sym
}

// Compose returns the symmetry applying first and then next
func Compose(first, next int) int {
	if IsTranspose(first) {
		next = (next & 0x4) | ((next & 0x2) >> 1) | ((next & 0x1) << 1)
	}
	return first ^ next
}

// Compose3 applies three symmetries in order
func Compose3(first, next, nextNext int) int {
	return Compose(Compose(first, next), nextNext)
}

// GetSymXY maps coordinates of an xSize by ySize board
func GetSymXY(x, y, xSize, ySize, sym int) (int, int) {
	if sym&0x2 != 0 {
		x = xSize - x - 1
	}
	if sym&0x1 != 0 {
		y = ySize - y - 1
	}
	if IsTranspose(sym) {
		x, y = y, x
	}
	return x, y
}

// GetSymSpot maps a spot, the result is a spot of the transformed board
func GetSymSpot(s linegame.Spot, xSize, ySize, sym int) linegame.Spot {
	if s == linegame.NullSpot {
		return s
	}
	x, y := GetSymXY(linegame.GetX(s, xSize), linegame.GetY(s, xSize), xSize, ySize, sym)
	if IsTranspose(sym) {
		return linegame.GetSpot(x, y, ySize)
	}
	return linegame.GetSpot(x, y, xSize)
}

// GetSymDir maps a direction. A single flip exchanges the diagonals and a
// transpose exchanges north and west, everything else keeps its line.
func GetSymDir(dir linegame.Direction, sym int) linegame.Direction {
	if dir == linegame.NoDirection {
		return dir
	}
	flipX := sym&0x2 != 0
	flipY := sym&0x1 != 0
	if flipX != flipY {
		switch dir {
		case linegame.NorthEast:
			return linegame.NorthWest
		case linegame.NorthWest:
			return linegame.NorthEast
		}
	}
	if IsTranspose(sym) {
		switch dir {
		case linegame.North:
			return linegame.West
		case linegame.West:
			return linegame.North
		}
	}
	return dir
}

// GetSymLoc maps a location with its direction
func GetSymLoc(loc linegame.Loc, xSize, ySize, sym int) linegame.Loc {
	if loc.IsNull() {
		return loc
	}
	return linegame.Loc{Spot: GetSymSpot(loc.Spot, xSize, ySize, sym), Dir: GetSymDir(loc.Dir, sym)}
}

// GetSymBoard transforms every stone and the last location of a board
func GetSymBoard(b *linegame.Board, sym int) linegame.Board {
	xs, ys := b.XSize, b.YSize
	if IsTranspose(sym) {
		xs, ys = ys, xs
	}
	sb := linegame.MustNewBoard(xs, ys, b.WinLen)
	for y := 0; y < b.YSize; y++ {
		for x := 0; x < b.XSize; x++ {
			s := linegame.GetSpot(x, y, b.XSize)
			sb.SetStone(GetSymSpot(s, b.XSize, b.YSize, sym), b.Colors[s])
		}
	}
	sb.LastLoc = GetSymLoc(b.LastLoc, b.XSize, b.YSize, sym)
	return sb
}

// GetSymHistory replays a history on the transformed initial board.
// The returned board is the transformed current board.
func GetSymHistory(h *linegame.BoardHistory, sym int) (linegame.Board, linegame.BoardHistory) {
	xs, ys := h.InitialBoard.XSize, h.InitialBoard.YSize
	b := GetSymBoard(&h.InitialBoard, sym)
	sh := linegame.NewBoardHistory(b, h.InitialPla)
	sh.SetInitialTurnNumber(h.InitialTurnNumber)
	for _, m := range h.MoveHistory {
		sh.MakeBoardMoveAssumeLegal(&b, GetSymLoc(m.Loc, xs, ys, sym), m.Pla)
	}
	sh.NumTurns = h.NumTurns
	if h.IsResignation {
		sh.SetWinnerByResignation(h.Winner)
	}
	return b, sh
}

// copyWithSymmetry moves NCHW planes. Transposes only apply to square planes.
func copyWithSymmetry(src, dst []float32, nSize, hSize, wSize, cSize, sym int, reverse bool) {
	transpose := IsTranspose(sym) && hSize == wSize
	flipX := sym&0x2 != 0
	flipY := sym&0x1 != 0
	if transpose && !reverse {
		flipX, flipY = flipY, flipX
	}

	ncSize := nSize * cSize
	ncStride := hSize * wSize
	hStride, wStride := wSize, 1
	hBaseNew, hStrideNew := 0, hStride
	wBaseNew, wStrideNew := 0, wStride
	if flipY {
		hBaseNew = (hSize - 1) * hStrideNew
		hStrideNew = -hStrideNew
	}
	if flipX {
		wBaseNew = (wSize - 1) * wStrideNew
		wStrideNew = -wStrideNew
	}
	if transpose {
		hStrideNew, wStrideNew = wStrideNew, hStrideNew
	}

	for nc := 0; nc < ncSize; nc++ {
		for h := 0; h < hSize; h++ {
			old := nc*ncStride + h*hStride
			nw := nc*ncStride + hBaseNew + h*hStrideNew
			for w := 0; w < wSize; w++ {
				dst[nw+wBaseNew+w*wStrideNew] = src[old+w*wStride]
			}
		}
	}
}

// CopyInputsWithSymmetry transforms the spatial planes of network inputs
func CopyInputsWithSymmetry(src, dst []float32, nSize, hSize, wSize, cSize, sym int) {
	copyWithSymmetry(src, dst, nSize, hSize, wSize, cSize, sym, false)
}

// CopyOutputsWithSymmetry maps single-channel network outputs back to the original frame
func CopyOutputsWithSymmetry(src, dst []float32, nSize, hSize, wSize, sym int) {
	copyWithSymmetry(src, dst, nSize, hSize, wSize, 1, sym, true)
}

// effectiveSym drops a transpose that cannot be applied to a non-square window
func effectiveSym(sym, nnXLen, nnYLen int) int {
	if nnXLen != nnYLen {
		return sym &^ 0x4
	}
	return sym
}

// SymmetrizeInputsV1 transforms one V1 spatial row, moving the
// direction-indexed channels along with the cells.
func SymmetrizeInputsV1(src, dst []float32, nnXLen, nnYLen, sym int) {
	sym = effectiveSym(sym, nnXLen, nnYLen)
	area := nnXLen * nnYLen
	tmp := make([]float32, NumFeaturesSpatialV1*area)
	CopyInputsWithSymmetry(src, tmp, 1, nnYLen, nnXLen, NumFeaturesSpatialV1, sym)
	copy(dst, tmp)
	for _, base := range []int{featureLastMoveDir, featureLegalDir} {
		for d := linegame.Direction(0); d < linegame.NumActualDirections; d++ {
			sd := GetSymDir(d, sym)
			copy(dst[(base+int(sd))*area:(base+int(sd)+1)*area], tmp[(base+int(d))*area:(base+int(d)+1)*area])
		}
	}
}

// CopyPolicyWithSymmetry maps a policy computed on transformed inputs back to
// the original frame, including the null move entry.
func CopyPolicyWithSymmetry(src, dst []float32, nnXLen, nnYLen, sym int) {
	sym = effectiveSym(sym, nnXLen, nnYLen)
	area := nnXLen * nnYLen
	for d := linegame.Direction(0); d < linegame.NumActualDirections; d++ {
		sd := GetSymDir(d, sym)
		CopyOutputsWithSymmetry(src[int(sd)*area:(int(sd)+1)*area], dst[int(d)*area:(int(d)+1)*area], 1, nnYLen, nnXLen, sym)
	}
	if len(src) > PolicySize(nnXLen, nnYLen) && len(dst) > PolicySize(nnXLen, nnYLen) {
		dst[NullPos(nnXLen, nnYLen)] = src[NullPos(nnXLen, nnYLen)]
	}
}
