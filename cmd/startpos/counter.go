package main

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

type safeCounter struct {
	m   map[string]int
	mux sync.Mutex
}

func newSafeCounter() *safeCounter {
	return &safeCounter{
		m: make(map[string]int),
	}
}

func (c *safeCounter) Add(s string, n int) {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.m[s] += n
}

func (c *safeCounter) Get(s string) int {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.m[s]
}

func (c *safeCounter) Keys() []string {
	c.mux.Lock()
	defer c.mux.Unlock()
	s := []string{}
	for k := range c.m {
		s = append(s, k)
	}
	sort.Strings(s)
	return s
}

// progressExtended reprints the iteration count and every counter twice a second
func progressExtended(w io.Writer, description string, iterations <-chan int, extra *safeCounter) {
	lastUpdate := time.Now()
	i := 0
	show := func() {
		fmt.Fprintf(w, "\r%s: %d", description, i)
		for _, k := range extra.Keys() {
			fmt.Fprintf(w, "\t%s: %d", k, extra.Get(k))
		}
	}
	for it := range iterations {
		i += it
		if time.Since(lastUpdate).Seconds() > 0.5 {
			show()
			lastUpdate = time.Now()
		}
	}
	show()
	fmt.Fprintln(w)
}
