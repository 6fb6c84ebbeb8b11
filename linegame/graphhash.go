package linegame

// GetStateHash hashes the current board, the next player and whether the game is over
func GetStateHash(h *BoardHistory, next Player) Hash128 {
	b := h.GetRecentBoard(0)
	hash := b.GetSitHash(next)
	if h.IsGameFinished {
		hash = hash.Xor(ZobristGameIsOver)
	}
	return hash
}

// GetGraphHash extends the hash of the path leading to the previous position
func GetGraphHash(prev Hash128, h *BoardHistory, next Player) Hash128 {
	if len(h.MoveHistory) == 0 || h.MoveHistory[len(h.MoveHistory)-1].Loc.IsNull() {
		return GetStateHash(h, next)
	}
	n := prev
	n.Hash0 = SplitMix64(n.Hash0 ^ n.Hash1)
	n.Hash1 = Nasam(n.Hash1) + n.Hash0
	s := GetStateHash(h, next)
	n.Hash0 += s.Hash0
	n.Hash1 += s.Hash1
	return n
}

// GetGraphHashFromScratch replays the whole game to compute its graph hash
func GetGraphHashFromScratch(orig *BoardHistory, next Player) Hash128 {
	h := orig.CopyToInitial()
	b := h.GetRecentBoard(0)
	var graphHash Hash128
	for _, m := range orig.MoveHistory {
		graphHash = GetGraphHash(graphHash, &h, m.Pla)
		h.MakeBoardMoveAssumeLegal(&b, m.Loc, m.Pla)
	}
	return GetGraphHash(graphHash, &h, next)
}
