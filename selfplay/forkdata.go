package selfplay

import (
	"sync"

	"github.com/dodgebc/go-linegame/rng"
)

// MaxHintPositions bounds the hint list, new hints replace random old ones beyond it
const MaxHintPositions = 1000

// ForkData passes positions from finished games to games about to start.
// It is safe for concurrent use.
type ForkData struct {
	forks []*InitialPosition
	hints []*InitialPosition
	mux   sync.Mutex
}

// Add queues a fork
func (fd *ForkData) Add(pos *InitialPosition) {
	fd.mux.Lock()
	defer fd.mux.Unlock()
	fd.forks = append(fd.forks, pos)
}

// takeRandom removes and returns a random element
func takeRandom(list *[]*InitialPosition, r *rng.Rand) *InitialPosition {
	n := len(*list)
	if n == 0 {
		return nil
	}
	i := r.Intn(n)
	pos := (*list)[i]
	(*list)[i] = (*list)[n-1]
	(*list)[n-1] = nil
	*list = (*list)[:n-1]
	return pos
}

// Get removes a random fork, nil if there is none
func (fd *ForkData) Get(r *rng.Rand) *InitialPosition {
	fd.mux.Lock()
	defer fd.mux.Unlock()
	return takeRandom(&fd.forks, r)
}

// AddHint stores a hint position, overwriting a random one when the list is full
func (fd *ForkData) AddHint(pos *InitialPosition, r *rng.Rand) {
	fd.mux.Lock()
	defer fd.mux.Unlock()
	if len(fd.hints) >= MaxHintPositions {
		fd.hints[r.Intn(len(fd.hints))] = pos
		return
	}
	fd.hints = append(fd.hints, pos)
}

// GetHint removes a random hint position, nil if there is none
func (fd *ForkData) GetHint(r *rng.Rand) *InitialPosition {
	fd.mux.Lock()
	defer fd.mux.Unlock()
	return takeRandom(&fd.hints, r)
}

// Len returns the number of queued forks and hints
func (fd *ForkData) Len() (int, int) {
	fd.mux.Lock()
	defer fd.mux.Unlock()
	return len(fd.forks), len(fd.hints)
}
