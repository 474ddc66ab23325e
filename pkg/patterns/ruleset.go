package patterns

import (
	"fmt"
	"regexp"
	"sort"
)

const (
	// MinLiteralLen is the minimum literal length admitted into the
	// automaton. Shorter literals produce too many incidental hits, so they
	// are compiled as quoted regexes instead.
	MinLiteralLen = 4
)

// RuleSet is a compiled, immutable pattern database. Build one with Compile
// and share it freely; Scan is safe for concurrent use.
type RuleSet struct {
	rules []Rule

	ac      *automaton
	acLits  map[int32][]byte // rule index -> lowered literal (for span math)
	regexes []compiledRegex
	byID    map[string]int32
}

type compiledRegex struct {
	ruleIdx int32
	re      *regexp.Regexp
}

// Compile builds a RuleSet from the given rules.
//
// Literal rules of at least MinLiteralLen bytes go into the automaton;
// shorter literals are quoted and matched by the regex engine. Regex rules
// are compiled case-insensitive with . matching newlines. A rule that fails
// to compile is rejected, not silently dropped.
func Compile(rules []Rule) (*RuleSet, error) {
	rs := &RuleSet{
		rules:  make([]Rule, len(rules)),
		ac:     newAutomaton(),
		acLits: make(map[int32][]byte),
		byID:   make(map[string]int32, len(rules)),
	}
	copy(rs.rules, rules)

	acCount := 0
	for i := range rs.rules {
		r := &rs.rules[i]
		if r.ID == "" {
			return nil, fmt.Errorf("rule %d: empty id", i)
		}
		if _, dup := rs.byID[r.ID]; dup {
			return nil, fmt.Errorf("rule %d: duplicate id %q", i, r.ID)
		}
		if r.Weight < 0 {
			return nil, fmt.Errorf("rule %q: negative weight %v", r.ID, r.Weight)
		}
		idx := int32(i)
		rs.byID[r.ID] = idx

		switch r.Kind {
		case KindLiteral:
			lit := asciiLower(r.Expression)
			if len(lit) >= MinLiteralLen {
				rs.ac.add(lit, idx)
				rs.acLits[idx] = lit
				acCount++
			} else {
				re, err := regexp.Compile(`(?is)` + regexp.QuoteMeta(r.Expression))
				if err != nil {
					return nil, fmt.Errorf("rule %q: %w", r.ID, err)
				}
				rs.regexes = append(rs.regexes, compiledRegex{ruleIdx: idx, re: re})
			}
		case KindRegex:
			re, err := regexp.Compile(`(?is)` + r.Expression)
			if err != nil {
				return nil, fmt.Errorf("rule %q: invalid regex: %w", r.ID, err)
			}
			rs.regexes = append(rs.regexes, compiledRegex{ruleIdx: idx, re: re})
		default:
			return nil, fmt.Errorf("rule %q: unknown matcher kind %q", r.ID, r.Kind)
		}
	}

	if acCount > 0 {
		rs.ac.build()
	}

	return rs, nil
}

// Len returns the number of compiled rules.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Rules returns a copy of the compiled rule table.
func (rs *RuleSet) Rules() []Rule {
	out := make([]Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// Scan runs both engines over text and returns the deduplicated matches,
// ordered by span start.
//
// When both engines report the same rule at the same span, the regex result
// wins; remaining ties break by descending weight.
func (rs *RuleSet) Scan(text string) []Match {
	var found []Match

	// Automaton pass over ASCII-lowered input. Lowering preserves byte
	// length, so spans index the original text directly.
	if rs.ac.built {
		lowered := asciiLower(text)
		rs.ac.scan(lowered, func(ruleIdx int32, end int) {
			r := rs.rules[ruleIdx]
			start := end - len(rs.acLits[ruleIdx])
			if start < 0 {
				start = 0
			}
			found = append(found, Match{
				RuleID:   r.ID,
				Category: r.Category,
				Severity: r.Severity,
				Weight:   r.Weight,
				Start:    start,
				End:      end,
				Text:     text[start:end],
				Engine:   EngineAutomaton,
			})
		})
	}

	// Regex pass over the full original text.
	for _, cr := range rs.regexes {
		r := rs.rules[cr.ruleIdx]
		for _, span := range cr.re.FindAllStringIndex(text, -1) {
			found = append(found, Match{
				RuleID:   r.ID,
				Category: r.Category,
				Severity: r.Severity,
				Weight:   r.Weight,
				Start:    span[0],
				End:      span[1],
				Text:     text[span[0]:span[1]],
				Engine:   EngineRegex,
			})
		}
	}

	return dedupe(found)
}

// dedupe collapses duplicate (rule, span) hits, preferring the regex engine
// and then higher weight, and returns matches ordered by span.
func dedupe(in []Match) []Match {
	sort.SliceStable(in, func(i, j int) bool {
		if (in[i].Engine == EngineRegex) != (in[j].Engine == EngineRegex) {
			return in[i].Engine == EngineRegex
		}
		return in[i].Weight > in[j].Weight
	})

	type key struct {
		id         string
		start, end int
	}
	seen := make(map[key]struct{}, len(in))
	out := in[:0]
	for _, m := range in {
		k := key{m.RuleID, m.Start, m.End}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		if out[i].End != out[j].End {
			return out[i].End < out[j].End
		}
		return out[i].RuleID < out[j].RuleID
	})
	return out
}
