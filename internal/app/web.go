package app

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/wallfollower/internal/config"
	"github.com/relabs-tech/wallfollower/internal/runlog"
	"github.com/relabs-tech/wallfollower/internal/telemetry"
)

//go:embed static
var staticFiles embed.FS

// tickHub keeps the latest tick and fans new ones out to websocket clients.
type tickHub struct {
	mu      sync.RWMutex
	last    telemetry.TickRecord
	have    bool
	clients map[chan telemetry.TickRecord]struct{}
}

func newTickHub() *tickHub {
	return &tickHub{clients: make(map[chan telemetry.TickRecord]struct{})}
}

func (h *tickHub) update(r telemetry.TickRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = r
	h.have = true
	for ch := range h.clients {
		select {
		case ch <- r:
		default:
			// slow client; it catches up with a later tick
		}
	}
}

func (h *tickHub) latest() (telemetry.TickRecord, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last, h.have
}

func (h *tickHub) subscribe() chan telemetry.TickRecord {
	ch := make(chan telemetry.TickRecord, 16)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *tickHub) unsubscribe(ch chan telemetry.TickRecord) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// beliefSummary is what /api/belief returns.
type beliefSummary struct {
	Tick      int                `json:"tick"`
	Phase     string             `json:"phase"`
	Belief    map[string]float64 `json:"belief"`
	Top       string             `json:"top"`
	TopProb   float64            `json:"top_prob"`
	Distance  float64            `json:"distance_cm"`
	Left      float64            `json:"left_speed"`
	Right     float64            `json:"right_speed"`
	Travelled float64            `json:"post_door_cm"`
}

func summarize(r telemetry.TickRecord) beliefSummary {
	s := beliefSummary{
		Tick:      r.Tick,
		Phase:     r.Phase,
		Belief:    r.Belief,
		Distance:  r.Distance,
		Left:      r.Left,
		Right:     r.Right,
		Travelled: r.Travelled,
	}
	for l, p := range r.Belief {
		if p > s.TopProb || (p == s.TopProb && l < s.Top) {
			s.Top, s.TopProb = l, p
		}
	}
	return s
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

// newWebMux serves the dashboard page, the live belief API and, when runs
// is set, the stored runs of the run log.
func newWebMux(hub *tickHub, runs *runlog.DB) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/belief", func(w http.ResponseWriter, r *http.Request) {
		rec, ok := hub.latest()
		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, summarize(rec))
	})

	mux.HandleFunc("/api/tick", func(w http.ResponseWriter, r *http.Request) {
		rec, ok := hub.latest()
		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, rec)
	})

	mux.HandleFunc("/ws/belief", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("web: websocket upgrade: %v", err)
			return
		}
		defer conn.Close()

		ch := hub.subscribe()
		defer hub.unsubscribe(ch)

		// the reader only notices the client going away
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		if rec, ok := hub.latest(); ok {
			if err := conn.WriteJSON(summarize(rec)); err != nil {
				return
			}
		}
		for {
			select {
			case rec := <-ch:
				if err := conn.WriteJSON(summarize(rec)); err != nil {
					return
				}
			case <-gone:
				return
			}
		}
	})

	if runs != nil {
		mux.HandleFunc("GET /api/runs", func(w http.ResponseWriter, r *http.Request) {
			limit := 20
			if v := r.URL.Query().Get("limit"); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil || n <= 0 {
					http.Error(w, "invalid limit", http.StatusBadRequest)
					return
				}
				limit = n
			}
			list, err := runs.Runs(limit)
			if err != nil {
				log.Printf("web: list runs: %v", err)
				http.Error(w, "run log unavailable", http.StatusInternalServerError)
				return
			}
			if list == nil {
				list = []runlog.Run{}
			}
			writeJSON(w, list)
		})

		mux.HandleFunc("GET /api/runs/{id}/ticks", func(w http.ResponseWriter, r *http.Request) {
			ticks, err := runs.Ticks(r.PathValue("id"))
			if err != nil {
				log.Printf("web: ticks of run %s: %v", r.PathValue("id"), err)
				http.Error(w, "run log unavailable", http.StatusInternalServerError)
				return
			}
			if len(ticks) == 0 {
				http.Error(w, "unknown run", http.StatusNotFound)
				return
			}
			writeJSON(w, ticks)
		})
	}

	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	mux.Handle("/", http.FileServer(http.FS(static)))
	return mux
}

// RunWeb serves the latest belief over HTTP and a websocket stream.
func RunWeb() error {
	cfg := config.Get()

	client, err := telemetry.Connect(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	hub := newTickHub()
	if err := telemetry.Subscribe(client, cfg.TopicTelemetry, hub.update); err != nil {
		return err
	}
	log.Printf("web: subscribed to MQTT topic %s", cfg.TopicTelemetry)

	var runs *runlog.DB
	if cfg.RunLogDB != "" {
		runs, err = runlog.Open(cfg.RunLogDB)
		if err != nil {
			return fmt.Errorf("open run log: %w", err)
		}
		defer runs.Close()
		log.Printf("web: serving runs from %s", cfg.RunLogDB)
	}

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web server listening on %s", addr)
	return http.ListenAndServe(addr, newWebMux(hub, runs))
}
