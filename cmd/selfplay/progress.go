package main

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressUpdate prints a single refreshing line of progress
type ProgressUpdate struct {
	out           io.Writer
	startTime     time.Time
	lastUpdate    time.Time
	iteration     int
	lastIteration int
	otherKeys     []string
	otherValues   []int64
	description   string
	mux           sync.Mutex
}

// NewProgressUpdate starts a progress line
func NewProgressUpdate(out io.Writer, description string) *ProgressUpdate {
	return &ProgressUpdate{
		out:         out,
		startTime:   time.Now(),
		lastUpdate:  time.Now(),
		description: description,
	}
}

// Update adds n iterations and reprints if enough time has gone by
func (pu *ProgressUpdate) Update(n int) {
	pu.mux.Lock()
	defer pu.mux.Unlock()
	pu.iteration += n
	if time.Since(pu.lastUpdate).Seconds() > 0.5 {
		pu.print(float64(pu.iteration-pu.lastIteration) / time.Since(pu.lastUpdate).Seconds())
		fmt.Fprint(pu.out, "\t\r")
		pu.lastUpdate = time.Now()
		pu.lastIteration = pu.iteration
	}
}

// SetOther sets the value of an additional statistic (or creates it)
func (pu *ProgressUpdate) SetOther(key string, value int64) {
	pu.mux.Lock()
	defer pu.mux.Unlock()
	for i := range pu.otherKeys {
		if pu.otherKeys[i] == key {
			pu.otherValues[i] = value
			return
		}
	}
	pu.otherKeys = append(pu.otherKeys, key)
	pu.otherValues = append(pu.otherValues, value)
}

// Close prints the overall rate and ends the line
func (pu *ProgressUpdate) Close() {
	pu.mux.Lock()
	defer pu.mux.Unlock()
	pu.print(float64(pu.iteration) / time.Since(pu.startTime).Seconds())
	fmt.Fprint(pu.out, "\t\r\n")
}

func (pu *ProgressUpdate) print(rate float64) {
	fmt.Fprintf(pu.out, "%s: %d games\t%.2f games/s", pu.description, pu.iteration, rate)
	for i := range pu.otherKeys {
		fmt.Fprintf(pu.out, "\t%s: %d", pu.otherKeys[i], pu.otherValues[i])
	}
}
