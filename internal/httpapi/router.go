package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/chesseval/internal/eval"
	"github.com/freeeve/chesseval/internal/uci"
)

// Analyzer is the evaluation surface served over HTTP.
type Analyzer interface {
	GetBestMoves(ctx context.Context, fen string, req eval.SearchRequest) (eval.SearchResult, error)
	Evaluate(ctx context.Context, fen string, depth int) (eval.EvaluationResult, error)
	PlayMove(ctx context.Context, req eval.PlayRequest) (eval.PlayResult, error)
}

// EngineStatus reports the engine's lifecycle for probes.
type EngineStatus interface {
	State() uci.State
	ID() uci.EngineID
	Searches() int64
}

// Handler serves evaluation requests.
type Handler struct {
	analyzer Analyzer
	engine   EngineStatus
	timeout  time.Duration
	log      zerolog.Logger
}

// NewRouter creates the HTTP router. timeout bounds each evaluation request,
// including time spent queued behind other searches; 0 means no bound.
func NewRouter(log zerolog.Logger, analyzer Analyzer, engine EngineStatus, timeout time.Duration) http.Handler {
	h := &Handler{
		analyzer: analyzer,
		engine:   engine,
		timeout:  timeout,
		log:      log,
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", http.HandlerFunc(h.health))
	mux.Handle("/readyz", http.HandlerFunc(h.ready))
	mux.Handle("/v1/evaluate", http.HandlerFunc(h.evaluate))
	mux.Handle("/v1/bestmoves", http.HandlerFunc(h.bestMoves))
	mux.Handle("/v1/play", http.HandlerFunc(h.play))
	mux.Handle("/v1/engine", http.HandlerFunc(h.engineInfo))

	// pprof endpoints
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return CORS(RequestID(AccessLog(log, mux)))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	if s := h.engine.State(); s != uci.StateReady {
		http.Error(w, "engine "+s.String(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.timeout)
}

// evaluate handles GET /v1/evaluate?fen=&depth=
func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	fen := q.Get("fen")
	if fen == "" {
		http.Error(w, "missing fen parameter", http.StatusBadRequest)
		return
	}
	depth, err := intParam(q, "depth")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()
	res, err := h.analyzer.Evaluate(ctx, fen, depth)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// bestMoves handles GET /v1/bestmoves?fen=&depth=&lines=&time=
func (h *Handler) bestMoves(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	fen := q.Get("fen")
	if fen == "" {
		http.Error(w, "missing fen parameter", http.StatusBadRequest)
		return
	}
	var req eval.SearchRequest
	var err error
	if req.Depth, err = intParam(q, "depth"); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.NumLines, err = intParam(q, "lines"); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.TimeLimitMs, err = intParam(q, "time"); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()
	res, err := h.analyzer.GetBestMoves(ctx, fen, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// play handles POST /v1/play with a JSON PlayRequest body.
func (h *Handler) play(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req eval.PlayRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Move == "" {
		http.Error(w, "missing move", http.StatusBadRequest)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()
	res, err := h.analyzer.PlayMove(ctx, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) engineInfo(w http.ResponseWriter, r *http.Request) {
	id := h.engine.ID()
	writeJSON(w, map[string]any{
		"state":    h.engine.State().String(),
		"name":     id.Name,
		"author":   id.Author,
		"searches": h.engine.Searches(),
	})
}
