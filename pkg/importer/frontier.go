package importer

import (
	"sync"

	"github.com/Ramsey-B/oak/pkg/models"
)

type nodeState int

const (
	nodeQueued nodeState = iota
	nodeActive
	nodeDone
	nodeFailed
)

// pendingLink is an edge to create once the target node has a Person.
type pendingLink struct {
	from       *models.Person
	relation   models.RelationshipType
	fallback   bool
	confidence int
}

type node struct {
	identifier string
	level      int
	candidate  models.DiscoveryCandidate

	state  nodeState
	person *models.Person
	links  []pendingLink
}

type offerOutcome int

const (
	offerQueued offerOutcome = iota
	offerPending
	offerDone
	offerRejected
)

// frontier is the breadth-first queue of one full-tree run. The processed-set
// never grows beyond maxPeople and no node above maxDepth is ever handed out.
type frontier struct {
	mu        sync.Mutex
	queue     []*node
	nodes     map[string]*node
	processed int
	maxDepth  int
	maxPeople int
	// unvisited holds identifiers dropped by a budget, with the lowest level seen.
	unvisited map[string]int
}

func newFrontier(maxDepth, maxPeople int) *frontier {
	return &frontier{
		nodes:     make(map[string]*node),
		maxDepth:  maxDepth,
		maxPeople: maxPeople,
		unvisited: make(map[string]int),
	}
}

// seed queues the root node.
func (f *frontier) seed(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := &node{identifier: id}
	f.nodes[id] = n
	f.queue = append(f.queue, n)
}

// offer queues a candidate reached at level through link. A node that is
// already known keeps its first level and collects the link; offerDone
// returns the person the caller can link to immediately.
func (f *frontier) offer(cand models.DiscoveryCandidate, level int, link pendingLink) (offerOutcome, *models.Person) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if n, ok := f.nodes[cand.Identifier]; ok {
		switch n.state {
		case nodeDone:
			return offerDone, n.person
		case nodeFailed:
			return offerRejected, nil
		default:
			n.links = append(n.links, link)
			return offerPending, nil
		}
	}

	if level > f.maxDepth || f.processed >= f.maxPeople {
		f.skip(cand.Identifier, level)
		return offerRejected, nil
	}

	n := &node{identifier: cand.Identifier, level: level, candidate: cand, links: []pendingLink{link}}
	f.nodes[cand.Identifier] = n
	f.queue = append(f.queue, n)
	return offerQueued, nil
}

// next pops up to size nodes. It returns nothing once the queue is empty or
// the people budget is exhausted.
func (f *frontier) next(size int) []*node {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.processed >= f.maxPeople {
		return nil
	}
	if size > len(f.queue) {
		size = len(f.queue)
	}
	batch := f.queue[:size]
	f.queue = f.queue[size:]
	return batch
}

// reserve claims a processed-set slot for n.
func (f *frontier) reserve(n *node) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if n.state != nodeQueued || n.level > f.maxDepth {
		return false
	}
	if f.processed >= f.maxPeople {
		f.skip(n.identifier, n.level)
		return false
	}
	f.processed++
	n.state = nodeActive
	return true
}

// complete records the node's person and returns every link collected for it.
func (f *frontier) complete(n *node, p *models.Person) []pendingLink {
	f.mu.Lock()
	defer f.mu.Unlock()

	n.state = nodeDone
	n.person = p
	links := n.links
	n.links = nil
	return links
}

func (f *frontier) fail(n *node) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.state = nodeFailed
	n.links = nil
}

func (f *frontier) processedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed
}

func (f *frontier) skip(id string, level int) {
	if id == "" {
		return
	}
	if prev, ok := f.unvisited[id]; !ok || level < prev {
		f.unvisited[id] = level
	}
}

// leftovers returns every identifier that was never visited, with its level.
func (f *frontier) leftovers() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, n := range f.nodes {
		if n.state == nodeQueued {
			f.skip(n.identifier, n.level)
		}
	}
	f.queue = nil

	out := make(map[string]int, len(f.unvisited))
	for id, level := range f.unvisited {
		if n, ok := f.nodes[id]; ok && n.state != nodeQueued {
			continue
		}
		out[id] = level
	}
	return out
}
