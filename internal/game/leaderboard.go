package game

import (
	"sort"
	"sync"
)

// Score weights: a round win outranks any number of kills in that round.
const (
	scorePerWin   = 100.0
	scorePerKill  = 10.0
	scorePerDeath = -1.0
)

// LeaderboardEntry represents a cycle in the leaderboard
type LeaderboardEntry struct {
	CycleID string  `json:"cycleId"`
	Owner   string  `json:"owner"`
	Wins    int     `json:"wins"`
	Kills   int     `json:"kills"`
	Deaths  int     `json:"deaths"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
}

// Leaderboard ranks cycles by wins, kills and deaths. Rankings are
// recomputed lazily on the first read after a change.
type Leaderboard struct {
	mu      sync.RWMutex
	entries map[string]*LeaderboardEntry
	ranked  []LeaderboardEntry
	dirty   bool
}

// NewLeaderboard creates an empty leaderboard.
func NewLeaderboard() *Leaderboard {
	return &Leaderboard{entries: make(map[string]*LeaderboardEntry)}
}

// Update records the latest totals for a cycle.
func (lb *Leaderboard) Update(c *Cycle) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	e, ok := lb.entries[c.ID]
	if !ok {
		e = &LeaderboardEntry{CycleID: c.ID}
		lb.entries[c.ID] = e
	}
	e.Owner = c.Owner
	e.Wins, e.Kills, e.Deaths = c.Wins, c.Kills, c.Deaths
	e.Score = float64(c.Wins)*scorePerWin + float64(c.Kills)*scorePerKill + float64(c.Deaths)*scorePerDeath
	lb.dirty = true
}

// Remove drops a cycle from the leaderboard.
func (lb *Leaderboard) Remove(cycleID string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if _, ok := lb.entries[cycleID]; ok {
		delete(lb.entries, cycleID)
		lb.dirty = true
	}
}

func (lb *Leaderboard) rerank() {
	if !lb.dirty {
		return
	}
	lb.ranked = lb.ranked[:0]
	for _, e := range lb.entries {
		lb.ranked = append(lb.ranked, *e)
	}
	sort.Slice(lb.ranked, func(i, j int) bool {
		a, b := lb.ranked[i], lb.ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.CycleID < b.CycleID
	})
	for i := range lb.ranked {
		lb.ranked[i].Rank = i + 1
	}
	lb.dirty = false
}

// Top returns up to n entries, best first.
func (lb *Leaderboard) Top(n int) []LeaderboardEntry {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.rerank()

	if n <= 0 || n > len(lb.ranked) {
		n = len(lb.ranked)
	}
	out := make([]LeaderboardEntry, n)
	copy(out, lb.ranked[:n])
	return out
}

// Rank returns a cycle's 1-based rank, or 0 if unknown.
func (lb *Leaderboard) Rank(cycleID string) int {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.rerank()

	for _, e := range lb.ranked {
		if e.CycleID == cycleID {
			return e.Rank
		}
	}
	return 0
}

// Len returns the number of ranked cycles.
func (lb *Leaderboard) Len() int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return len(lb.entries)
}
