package eval

import (
	"fmt"
	"sync"

	"github.com/freeeve/pgn/v3"
)

// ResultCache is a bounded FIFO cache of search results keyed by packed
// position and search bounds. A nil *ResultCache is valid and never hits.
type ResultCache struct {
	mu      sync.Mutex
	entries map[string]SearchResult
	order   []string
	maxSize int
}

// NewResultCache returns a cache holding up to maxSize results, or nil when
// maxSize <= 0.
func NewResultCache(maxSize int) *ResultCache {
	if maxSize <= 0 {
		return nil
	}
	return &ResultCache{
		entries: make(map[string]SearchResult, maxSize),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
	}
}

// cacheKey is the packed position plus the search bounds.
func cacheKey(fen string, req SearchRequest) (string, bool) {
	gs, err := pgn.NewGame(fen)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%s|d%d|l%d|t%d", gs.Pack().String(), req.Depth, req.NumLines, req.TimeLimitMs), true
}

// Get returns a copy of the cached result for fen, with Position set to fen.
func (c *ResultCache) Get(fen string, req SearchRequest) (SearchResult, bool) {
	if c == nil {
		return SearchResult{}, false
	}
	key, ok := cacheKey(fen, req)
	if !ok {
		return SearchResult{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	res, ok := c.entries[key]
	if !ok {
		return SearchResult{}, false
	}
	res.Moves = cloneMoves(res.Moves)
	res.Position = fen
	return res, true
}

// Put stores res, evicting the oldest entry when full.
func (c *ResultCache) Put(fen string, req SearchRequest, res SearchResult) {
	if c == nil {
		return
	}
	key, ok := cacheKey(fen, req)
	if !ok {
		return
	}
	res.Moves = cloneMoves(res.Moves)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, seen := c.entries[key]; seen {
		c.entries[key] = res
		return
	}
	if len(c.order) >= c.maxSize {
		delete(c.entries, c.order[0])
		c.order = c.order[1:]
	}
	c.order = append(c.order, key)
	c.entries[key] = res
}

// Len returns the number of cached results.
func (c *ResultCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// cloneMoves copies moves including the Score and MateInPlies targets, so
// neither the cache nor its callers can change each other's results.
func cloneMoves(moves []BestMove) []BestMove {
	if moves == nil {
		return nil
	}
	out := make([]BestMove, len(moves))
	for i, m := range moves {
		if m.Score != nil {
			v := *m.Score
			m.Score = &v
		}
		if m.MateInPlies != nil {
			v := *m.MateInPlies
			m.MateInPlies = &v
		}
		out[i] = m
	}
	return out
}
