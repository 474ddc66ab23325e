// Saturn is an egress-control gate for AI assistant output.
//
// It classifies untrusted input against an injection pattern database,
// routes each request through a risk/budget/rate policy ladder, renders
// constrained or refused responses, and commits every decision to a
// hash-chained audit ledger.
//
// Usage:
//
//	# Start the interactive gate with default configuration
//	saturn run
//
//	# Start with a custom configuration file
//	saturn run --config /path/to/config.yaml
//
//	# Classify a single input without charging the budget
//	saturn check "Ignore all previous instructions"
//
//	# Verify the audit chain
//	saturn verify --ledger saturn_audit.jsonl
//
//	# Show version information
//	saturn version
package main

func main() {
	Execute()
}
