package patterns

// automaton is an Aho-Corasick multi-pattern matcher over byte strings.
//
// Nodes live in a flat arena addressed by index rather than a pointer graph.
// Each node carries a byte-transition map, a failure link, and the indexes of
// the rules whose literals end at that node. Output sets are merged along
// failure links at build time, so scanning never walks the failure chain to
// collect hits.
type automaton struct {
	nodes []acNode
	built bool
}

type acNode struct {
	next map[byte]int32
	fail int32
	out  []int32 // indexes into the owning RuleSet's rule table
}

const acRoot int32 = 0

func newAutomaton() *automaton {
	return &automaton{nodes: []acNode{{next: make(map[byte]int32)}}}
}

// add inserts a literal pattern ending in the given rule index.
// Patterns must be added before build.
func (a *automaton) add(literal []byte, ruleIdx int32) {
	cur := acRoot
	for _, b := range literal {
		nxt, ok := a.nodes[cur].next[b]
		if !ok {
			a.nodes = append(a.nodes, acNode{next: make(map[byte]int32)})
			nxt = int32(len(a.nodes) - 1)
			a.nodes[cur].next[b] = nxt
		}
		cur = nxt
	}
	a.nodes[cur].out = append(a.nodes[cur].out, ruleIdx)
}

// build computes failure links breadth-first and merges output sets so that
// every node's out slice holds all rules matched when the scan reaches it.
func (a *automaton) build() {
	queue := make([]int32, 0, len(a.nodes))

	for _, child := range a.nodes[acRoot].next {
		a.nodes[child].fail = acRoot
		queue = append(queue, child)
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for b, child := range a.nodes[cur].next {
			queue = append(queue, child)

			// Follow failure links until a node with a matching transition.
			f := a.nodes[cur].fail
			for {
				if nxt, ok := a.nodes[f].next[b]; ok {
					a.nodes[child].fail = nxt
					break
				}
				if f == acRoot {
					a.nodes[child].fail = acRoot
					break
				}
				f = a.nodes[f].fail
			}

			a.nodes[child].out = append(a.nodes[child].out, a.nodes[a.nodes[child].fail].out...)
		}
	}

	a.built = true
}

// scan walks text once and invokes emit for every literal hit with the rule
// index and the end offset (exclusive) of the hit.
func (a *automaton) scan(text []byte, emit func(ruleIdx int32, end int)) {
	cur := acRoot
	for i := 0; i < len(text); i++ {
		b := text[i]
		for {
			if nxt, ok := a.nodes[cur].next[b]; ok {
				cur = nxt
				break
			}
			if cur == acRoot {
				break
			}
			cur = a.nodes[cur].fail
		}
		for _, ruleIdx := range a.nodes[cur].out {
			emit(ruleIdx, i+1)
		}
	}
}

// size returns the number of arena nodes, including the root.
func (a *automaton) size() int {
	return len(a.nodes)
}

// asciiLower lowercases ASCII letters only, preserving byte length so that
// match offsets into the lowered text are valid offsets into the original.
func asciiLower(s string) []byte {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return b
}
