package main

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dodgebc/go-linegame/nneval"
	"github.com/dodgebc/go-linegame/record"
	"github.com/dodgebc/go-linegame/selfplay"
)

const testRecord = "(;GM[linegame]SZ[5]WL[3]PB[a]PW[b]RE[B+Line];B[C3 north];W[C4 north];B[C2 north];W[C5 north];B[C1 west])"

func newTestServer(t *testing.T) (*statusServer, *httptest.Server) {
	var stop atomic.Bool
	s := &statusServer{
		stats:    &runStats{startTime: time.Now()},
		hub:      newGameHub(),
		forkData: &selfplay.ForkData{},
		evals:    []selfplay.Evaluator{nneval.NewUniformEvaluator(9, 9)},
		stop:     &stop,
	}
	ts := httptest.NewServer(s.router())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestStatusServer(t *testing.T) {
	s, ts := newTestServer(t)
	s.stats.games.Store(3)

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var p statusPayload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		t.Fatal(err)
	}
	if p.Games != 3 || len(p.Nets) != 1 || p.Nets[0].Name != "uniform" || p.Stopping {
		t.Fatalf("unexpected status %+v", p)
	}

	resp, err = http.Post(ts.URL+"/api/stop", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if !s.stop.Load() {
		t.Fatal("stop flag not set")
	}

	resp, err = http.Get(ts.URL + "/api/nothing")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestGameFeed(t *testing.T) {
	s, ts := newTestServer(t)
	done := make(chan struct{})
	defer close(done)
	go s.hub.run(done)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/games"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for !s.hub.hasClients() {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
	s.hub.publish(gameSummary{Black: "a", White: "b", Winner: "Black", Moves: 5, Record: testRecord})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	var summary gameSummary
	if err := json.Unmarshal(msg.Payload, &summary); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "game" || summary.Record != testRecord || summary.Moves != 5 {
		t.Fatalf("unexpected message %s %+v", msg.Type, summary)
	}
}

func TestSaver(t *testing.T) {
	games, err := record.Parse(testRecord)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "records", "games.txt.gz")
	in := make(chan record.GameData)
	errc := make(chan error, 1)
	go func() { errc <- saver(in, path, 2) }()
	for i := 0; i < 10; i++ {
		in <- games[0]
	}
	close(in)
	if err := <-errc; err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gzipReader, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	text, err := io.ReadAll(gzipReader)
	if err != nil {
		t.Fatal(err)
	}
	saved, err := record.Parse(string(text))
	if err != nil {
		t.Fatal(err)
	}
	if len(saved) != 10 || !saved[9].Equals(games[0]) {
		t.Fatalf("expected 10 identical games, got %d", len(saved))
	}
}
