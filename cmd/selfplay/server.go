package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dodgebc/go-linegame/linegame"
	"github.com/dodgebc/go-linegame/record"
	"github.com/dodgebc/go-linegame/selfplay"
	"github.com/dodgebc/go-linegame/trainwrite"
)

const wsIdlePingInterval = 30 * time.Second

// runStats are updated by the workers and read by the status server
type runStats struct {
	startTime time.Time

	games     atomic.Int64
	moves     atomic.Int64
	blackWins atomic.Int64
	whiteWins atomic.Int64
	draws     atomic.Int64
	resigns   atomic.Int64
}

func (s *runStats) addGame(d *trainwrite.FinishedGameData) {
	s.games.Add(1)
	s.moves.Add(int64(d.NumMoves()))
	h := &d.EndHist
	switch {
	case h.Winner == linegame.Black:
		s.blackWins.Add(1)
	case h.Winner == linegame.White:
		s.whiteWins.Add(1)
	default:
		s.draws.Add(1)
	}
	if h.IsResignation {
		s.resigns.Add(1)
	}
}

type netStatus struct {
	Name    string `json:"name"`
	Rows    int64  `json:"rows"`
	Batches int64  `json:"batches"`
}

type statusPayload struct {
	Uptime    float64     `json:"uptime"`
	Games     int64       `json:"games"`
	Moves     int64       `json:"moves"`
	BlackWins int64       `json:"blackWins"`
	WhiteWins int64       `json:"whiteWins"`
	Draws     int64       `json:"draws"`
	Resigns   int64       `json:"resigns"`
	Forks     int         `json:"forks"`
	Hints     int         `json:"hints"`
	Stopping  bool        `json:"stopping"`
	Nets      []netStatus `json:"nets"`
}

// gameSummary is sent to websocket clients for every finished game
type gameSummary struct {
	Black  string `json:"black"`
	White  string `json:"white"`
	Winner string `json:"winner"`
	Moves  int    `json:"moves"`
	Mode   int    `json:"mode"`
	Record string `json:"record"`
}

func newGameSummary(d *trainwrite.FinishedGameData, g record.GameData) gameSummary {
	winner := "none"
	if d.EndHist.IsGameFinished {
		winner = linegame.PlayerToString(d.EndHist.Winner)
	}
	return gameSummary{
		Black:  d.BName,
		White:  d.WName,
		Winner: winner,
		Moves:  d.NumMoves(),
		Mode:   d.Mode,
		Record: record.Format(g),
	}
}

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type gameClient struct {
	conn *websocket.Conn
	send chan []byte
}

// gameHub broadcasts finished games to websocket clients. Slow clients miss messages.
type gameHub struct {
	mux       sync.Mutex
	clients   map[*gameClient]struct{}
	broadcast chan gameSummary
}

func newGameHub() *gameHub {
	return &gameHub{
		clients:   make(map[*gameClient]struct{}),
		broadcast: make(chan gameSummary, 32),
	}
}

func (h *gameHub) run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case s := <-h.broadcast:
			payload, err := json.Marshal(s)
			if err != nil {
				log.Error().Err(err).Msg("encoding game summary")
				continue
			}
			msg, _ := json.Marshal(wsMessage{Type: "game", Payload: payload})
			h.mux.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
				}
			}
			h.mux.Unlock()
		}
	}
}

func (h *gameHub) hasClients() bool {
	h.mux.Lock()
	defer h.mux.Unlock()
	return len(h.clients) > 0
}

func (h *gameHub) publish(s gameSummary) {
	select {
	case h.broadcast <- s:
	default:
	}
}

func (h *gameHub) register(c *gameClient) {
	h.mux.Lock()
	h.clients[c] = struct{}{}
	h.mux.Unlock()
}

func (h *gameHub) unregister(c *gameClient) {
	h.mux.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mux.Unlock()
}

func (h *gameHub) serveWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade")
		return
	}
	c := &gameClient{conn: conn, send: make(chan []byte, 16)}
	h.register(c)

	go func() {
		defer conn.Close()
		if err := writeWithHeartbeat(conn, c.send); err != nil {
			log.Debug().Err(err).Msg("websocket write")
		}
	}()

	// reads only detect the client going away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.unregister(c)
			return
		}
	}
}

func writeWithHeartbeat(conn *websocket.Conn, send <-chan []byte) error {
	ticker := time.NewTicker(wsIdlePingInterval)
	defer ticker.Stop()
	lastWrite := time.Now()
	for {
		select {
		case msg, ok := <-send:
			if !ok {
				return nil
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return err
			}
			lastWrite = time.Now()
		case <-ticker.C:
			if time.Since(lastWrite) < wsIdlePingInterval {
				continue
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
			lastWrite = time.Now()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("writing response")
	}
}

// requestLogger logs requests through zerolog
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request", middleware.GetReqID(r.Context())).
			Msg("http")
	})
}

// statusServer exposes the progress of a run over HTTP
type statusServer struct {
	stats    *runStats
	hub      *gameHub
	forkData *selfplay.ForkData
	evals    []selfplay.Evaluator
	stop     *atomic.Bool
	srv      *http.Server
}

func (s *statusServer) status() statusPayload {
	forks, hints := s.forkData.Len()
	p := statusPayload{
		Uptime:    time.Since(s.stats.startTime).Seconds(),
		Games:     s.stats.games.Load(),
		Moves:     s.stats.moves.Load(),
		BlackWins: s.stats.blackWins.Load(),
		WhiteWins: s.stats.whiteWins.Load(),
		Draws:     s.stats.draws.Load(),
		Resigns:   s.stats.resigns.Load(),
		Forks:     forks,
		Hints:     hints,
		Stopping:  s.stop.Load(),
		Nets:      []netStatus{},
	}
	for _, e := range s.evals {
		ns := netStatus{Name: e.ModelName()}
		if st, ok := e.(selfplay.EvaluatorStats); ok {
			ns.Rows = st.NumRowsProcessed()
			ns.Batches = st.NumBatchesProcessed()
		}
		p.Nets = append(p.Nets, ns)
	}
	return p
}

func (s *statusServer) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	r.Get("/api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.status())
	})
	r.Post("/api/stop", func(w http.ResponseWriter, r *http.Request) {
		s.stop.Store(true)
		log.Info().Msg("stop requested over http")
		writeJSON(w, http.StatusOK, s.status())
	})
	r.Get("/ws/games", s.hub.serveWS)
	return r
}

func (s *statusServer) start(addr string) {
	s.srv = &http.Server{Addr: addr, Handler: s.router()}
	go func() {
		log.Info().Str("addr", addr).Msg("status server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("status server")
		}
	}()
}

func (s *statusServer) shutdown() {
	if s.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("status server shutdown")
	}
}
