package main

import (
	"encoding/json"
	"flag"
	"log"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// mock-feed serves a synthetic telemetry feed for local development. Point
// the tuner engine at it with PULSE_TUNER_FEED_URL=http://localhost:8080.

type eventRecord map[string]any

func main() {
	var (
		addr = flag.String("addr", ":8080", "listen address")
		rate = flag.Int("rate", 30, "events generated per second")
		seed = flag.Int64("seed", 1, "RNG seed")
	)
	flag.Parse()

	logger := log.New(log.Writer(), "mock-feed ", log.LstdFlags|log.Lmicroseconds)
	gen := newGenerator(*rate, *seed)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/telemetry/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Since time.Time `json:"since"`
			Limit int       `json:"limit"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		events, next := gen.take(req.Limit)
		writeJSON(w, map[string]any{"events": events, "next_since": next})
	})

	srv := &http.Server{
		Addr:    *addr,
		Handler: logRequests(logger, mux),
	}

	logger.Printf("listening on %s at %d events/s", *addr, *rate)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

// generator lazily produces a continuous event stream at a fixed rate. Each
// poll drains whatever accrued since the previous one.
type generator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	rate   int
	last   time.Time
	builds int
}

func newGenerator(rate int, seed int64) *generator {
	if rate <= 0 {
		rate = 1
	}
	return &generator{
		rng:  rand.New(rand.NewSource(seed)),
		rate: rate,
		last: time.Now().UTC(),
	}
}

func (g *generator) take(limit int) ([]eventRecord, time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UTC()
	elapsed := now.Sub(g.last)
	count := int(elapsed.Seconds() * float64(g.rate))
	if limit > 0 && count > limit {
		count = limit
	}
	if count == 0 {
		return []eventRecord{}, g.last
	}

	g.builds++
	// every seventh non-empty batch leads with a spike burst
	burst := g.builds%7 == 0
	step := elapsed / time.Duration(count)
	events := make([]eventRecord, 0, count)
	for i := 0; i < count; i++ {
		ts := g.last.Add(time.Duration(i) * step)
		events = append(events, g.event(ts, burst && i < 10))
	}
	g.last = now
	return events, now
}

func (g *generator) event(ts time.Time, spike bool) eventRecord {
	types := []string{"CLICK", "VIEW", "SCROLL", "PURCHASE"}
	ev := eventRecord{
		"type":      types[g.rng.Intn(len(types))],
		"impact":    math.Round(g.rng.Float64()*100) / 100,
		"timestamp": ts.Format(time.RFC3339Nano),
	}
	if spike {
		ev["type"] = "ERROR"
		ev["impact"] = 0.9 + g.rng.Float64()*0.1
	}
	if g.rng.Intn(3) == 0 {
		ev["data"] = map[string]any{"activity_id": "checkout"}
	}
	return ev
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
