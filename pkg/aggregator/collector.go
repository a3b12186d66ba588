package aggregator

import (
	"github.com/Ramsey-B/oak/pkg/matching"
	"github.com/Ramsey-B/oak/pkg/models"
)

// collector unions candidates by external identifier. A candidate without an
// identifier is kept until one with the same name and type arrives.
type collector struct {
	subject  string
	items    []models.DiscoveryCandidate
	byID     map[string]int
	excluded map[string]struct{}
}

func newCollector(subject string) *collector {
	return &collector{
		subject:  subject,
		byID:     make(map[string]int),
		excluded: make(map[string]struct{}),
	}
}

func (c *collector) exclude(id string) {
	if id != "" {
		c.excluded[id] = struct{}{}
	}
}

func (c *collector) has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

func (c *collector) get(id string) (models.DiscoveryCandidate, bool) {
	i, ok := c.byID[id]
	if !ok {
		return models.DiscoveryCandidate{}, false
	}
	return c.items[i], true
}

// add reports whether cand was kept as a new entry.
func (c *collector) add(cand models.DiscoveryCandidate) bool {
	if cand.Identifier != "" {
		if cand.Identifier == c.subject {
			return false
		}
		if _, ok := c.excluded[cand.Identifier]; ok {
			return false
		}
		if i, ok := c.byID[cand.Identifier]; ok {
			c.items[i] = fold(c.items[i], cand)
			return false
		}
		for i, existing := range c.items {
			if existing.Identifier == "" && existing.Type == cand.Type && matching.Equal(existing.Name, cand.Name) {
				c.items[i] = fold(cand, existing)
				c.byID[cand.Identifier] = i
				return false
			}
		}
		c.byID[cand.Identifier] = len(c.items)
		c.items = append(c.items, cand)
		return true
	}

	for _, existing := range c.items {
		if existing.Type == cand.Type && matching.Equal(existing.Name, cand.Name) {
			return false
		}
	}
	c.items = append(c.items, cand)
	return true
}

// fold keeps keep and fills its gaps from other.
func fold(keep, other models.DiscoveryCandidate) models.DiscoveryCandidate {
	if keep.Name == "" {
		keep.Name = other.Name
	}
	if keep.BirthDate == nil {
		keep.BirthDate = other.BirthDate
	}
	if keep.MotherName == "" {
		keep.MotherName = other.MotherName
	}
	if keep.FatherName == "" {
		keep.FatherName = other.FatherName
	}
	if keep.Record == nil {
		keep.Record = other.Record
	}
	if !keep.Known && other.Known {
		keep.Type, keep.Known, keep.Fallback, keep.RelationCode = other.Type, other.Known, other.Fallback, other.RelationCode
	}
	keep.Confidence = max(keep.Confidence, other.Confidence)
	return keep
}

func (c *collector) list() []models.DiscoveryCandidate {
	out := make([]models.DiscoveryCandidate, len(c.items))
	copy(out, c.items)
	return out
}
