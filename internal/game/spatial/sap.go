package spatial

import (
	"sort"
)

// SweepAndPrune is a 1-axis broad phase with temporal coherence. Bounding
// intervals are projected onto the X axis and kept sorted between calls,
// so when entities move little per tick the insertion sort is close to O(n).
// Candidate pairs are additionally pruned on the Z axis before being reported.
//
// Origin: Baraff & Witkin (SIGGRAPH 1992)
type SweepAndPrune struct {
	endpoints []SAPEndpoint   // sorted min/max endpoints, persistent across calls
	pairs     []CollisionPair // output buffer (reused)
	active    []uint32        // active interval set (reused)
	count     int             // entity count the endpoints were built for
}

// SAPEndpoint represents one end of a bounding interval on the sweep axis.
type SAPEndpoint struct {
	Value    float64
	EntityID uint32
	IsMin    bool
}

// CollisionPair represents two entities whose bounding squares overlap.
// A is always the smaller index.
type CollisionPair struct {
	A, B uint32
}

// NewSweepAndPrune creates a broad phase sized for maxEntities.
func NewSweepAndPrune(maxEntities int) *SweepAndPrune {
	if maxEntities < 1 {
		maxEntities = 1
	}
	return &SweepAndPrune{
		endpoints: make([]SAPEndpoint, 0, maxEntities*2),
		pairs:     make([]CollisionPair, 0, maxEntities),
		active:    make([]uint32, 0, maxEntities),
	}
}

// Update refreshes the interval of every entity from positions and returns
// the pairs whose squares of half-width radius overlap. positions is
// indexed by entity id; entries marked skip[i] (when skip is non-nil) are
// excluded from the result.
//
// The returned slice is reused on subsequent calls.
func (s *SweepAndPrune) Update(positions [][2]float64, radius float64, skip []bool) []CollisionPair {
	s.pairs = s.pairs[:0]

	if len(positions) != s.count {
		s.rebuild(positions, radius)
	} else {
		for i := range s.endpoints {
			ep := &s.endpoints[i]
			x := positions[ep.EntityID][0]
			if ep.IsMin {
				ep.Value = x - radius
			} else {
				ep.Value = x + radius
			}
		}
		insertionSortEndpoints(s.endpoints)
	}

	s.active = s.active[:0]
	for _, ep := range s.endpoints {
		if skip != nil && skip[ep.EntityID] {
			continue
		}
		if ep.IsMin {
			z := positions[ep.EntityID][1]
			for _, other := range s.active {
				dz := positions[other][1] - z
				if dz > 2*radius || dz < -2*radius {
					continue
				}
				a, b := ep.EntityID, other
				if a > b {
					a, b = b, a
				}
				s.pairs = append(s.pairs, CollisionPair{a, b})
			}
			s.active = append(s.active, ep.EntityID)
			continue
		}
		for i, id := range s.active {
			if id == ep.EntityID {
				s.active[i] = s.active[len(s.active)-1]
				s.active = s.active[:len(s.active)-1]
				break
			}
		}
	}

	// Sweep order depends on positions; callers need a stable order.
	sort.Slice(s.pairs, func(i, j int) bool {
		if s.pairs[i].A != s.pairs[j].A {
			return s.pairs[i].A < s.pairs[j].A
		}
		return s.pairs[i].B < s.pairs[j].B
	})
	return s.pairs
}

func (s *SweepAndPrune) rebuild(positions [][2]float64, radius float64) {
	s.endpoints = s.endpoints[:0]
	for i, pos := range positions {
		s.endpoints = append(s.endpoints,
			SAPEndpoint{pos[0] - radius, uint32(i), true},
			SAPEndpoint{pos[0] + radius, uint32(i), false},
		)
	}
	sort.SliceStable(s.endpoints, func(i, j int) bool {
		return endpointLess(s.endpoints[i], s.endpoints[j])
	})
	s.count = len(positions)
}

// endpointLess orders by value; at equal values a min endpoint sorts first
// so touching intervals still count as overlapping.
func endpointLess(a, b SAPEndpoint) bool {
	if a.Value != b.Value {
		return a.Value < b.Value
	}
	return a.IsMin && !b.IsMin
}

// insertionSortEndpoints sorts endpoints in-place; O(n) for nearly-sorted data.
func insertionSortEndpoints(eps []SAPEndpoint) {
	for i := 1; i < len(eps); i++ {
		key := eps[i]
		j := i - 1
		for j >= 0 && endpointLess(key, eps[j]) {
			eps[j+1] = eps[j]
			j--
		}
		eps[j+1] = key
	}
}
