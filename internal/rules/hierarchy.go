package rules

import (
	"fmt"
	"regexp"
	"sort"

	"go.uber.org/zap"
)

// Node is one rule in a built hierarchy.
type Node struct {
	Rule     Rule
	Children []*Node
	Depth    int

	// patterns holds the rule's compiled regex hints. Invalid patterns
	// are skipped at build time.
	patterns []*regexp.Regexp
}

// Hierarchy is the rule tree for one (clause type, perspective) pair.
type Hierarchy struct {
	ClauseType  string
	Perspective Perspective
	Roots       []*Node

	byID map[string]*Node
}

// BuildHierarchy assembles a tree from a flat rule list using parent-id
// links. Rules without a resolvable parent become roots. The build is
// validated acyclic; a parent chain that revisits a rule fails with
// ErrCycleDetected rather than looping. Children are sorted by base
// confidence descending, recursively at every level.
func BuildHierarchy(clauseType string, perspective Perspective, flat []Rule, logger *zap.Logger) (*Hierarchy, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	byID := make(map[string]*Node, len(flat))
	for _, r := range flat {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.ID, err)
		}
		if _, dup := byID[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate rule ID %s", ErrInvalidRule, r.ID)
		}
		byID[r.ID] = &Node{Rule: r, patterns: compilePatterns(r, logger)}
	}

	if err := detectCycles(byID); err != nil {
		return nil, err
	}

	h := &Hierarchy{ClauseType: clauseType, Perspective: perspective, byID: byID}
	for _, node := range byID {
		parent, ok := byID[node.Rule.ParentID]
		if node.Rule.ParentID == "" || !ok {
			if node.Rule.ParentID != "" {
				logger.Warn("rule parent not found, promoting to root",
					zap.String("rule_id", node.Rule.ID),
					zap.String("parent_id", node.Rule.ParentID),
				)
			}
			h.Roots = append(h.Roots, node)
			continue
		}
		if node.Rule.Tier.severity() < parent.Rule.Tier.severity() {
			logger.Warn("child tier contradicts parent tier",
				zap.String("rule_id", node.Rule.ID),
				zap.String("tier", string(node.Rule.Tier)),
				zap.String("parent_tier", string(parent.Rule.Tier)),
			)
		}
		parent.Children = append(parent.Children, node)
	}

	sortRecursive(h.Roots)
	for _, root := range h.Roots {
		setDepth(root, 0)
	}
	return h, nil
}

func compilePatterns(r Rule, logger *zap.Logger) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(r.Patterns))
	for _, p := range r.Patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			logger.Warn("skipping invalid rule pattern",
				zap.String("rule_id", r.ID),
				zap.String("pattern", p),
				zap.Error(err),
			)
			continue
		}
		compiled = append(compiled, re)
	}
	return compiled
}

// detectCycles walks each rule's parent chain with path marking.
func detectCycles(byID map[string]*Node) error {
	const (
		unvisited = 0
		inPath    = 1
		done      = 2
	)
	state := make(map[string]int, len(byID))

	for id := range byID {
		if state[id] != unvisited {
			continue
		}
		var path []string
		cur := id
		for {
			if state[cur] == done {
				break
			}
			if state[cur] == inPath {
				return fmt.Errorf("%w: via rule %s", ErrCycleDetected, cur)
			}
			state[cur] = inPath
			path = append(path, cur)

			parentID := byID[cur].Rule.ParentID
			if parentID == "" {
				break
			}
			if _, ok := byID[parentID]; !ok {
				break
			}
			cur = parentID
		}
		for _, p := range path {
			state[p] = done
		}
	}
	return nil
}

func sortRecursive(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Rule.BaseConfidence > nodes[j].Rule.BaseConfidence
	})
	for _, n := range nodes {
		sortRecursive(n.Children)
	}
}

func setDepth(node *Node, depth int) {
	node.Depth = depth
	for _, child := range node.Children {
		setDepth(child, depth+1)
	}
}

// Walk visits every node exactly once in pre-order.
func (h *Hierarchy) Walk(fn func(*Node)) {
	var visit func(*Node)
	visit = func(n *Node) {
		fn(n)
		for _, child := range n.Children {
			visit(child)
		}
	}
	for _, root := range h.Roots {
		visit(root)
	}
}

// Path returns the ordered tier labels from root to the given node.
func (h *Hierarchy) Path(node *Node) []string {
	var tiers []string
	cur := node
	for cur != nil {
		tiers = append([]string{string(cur.Rule.Tier)}, tiers...)
		parent, ok := h.byID[cur.Rule.ParentID]
		if !ok {
			break
		}
		cur = parent
	}
	return tiers
}

// Node returns the node for a rule ID, or nil when absent.
func (h *Hierarchy) Node(id string) *Node {
	return h.byID[id]
}

// Size returns the number of nodes in the hierarchy.
func (h *Hierarchy) Size() int {
	count := 0
	h.Walk(func(*Node) { count++ })
	return count
}
