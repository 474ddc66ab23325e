// Package patterns implements the compiled attack-pattern database and the
// dual-engine matcher used by the risk classifier.
//
// A RuleSet holds two structures built once at compile time:
//
//   - a multi-pattern Aho-Corasick automaton over literal rules, reporting
//     every literal hit in a single left-to-right pass over the input
//   - a list of compiled regular expressions for structured rules, each
//     scanned independently over the full text
//
// Matching is case-insensitive and tolerates multi-line input. After both
// passes, matches are deduplicated by (rule ID, span), preferring the regex
// engine's result when both engines report the same rule at the same span.
package patterns
