// Package classify turns raw pattern matches and lightweight heuristics into
// a risk classification for an inbound request.
//
// The aggregate "pressure" score saturates via 1 - exp(-k*S) over the summed
// match weights, so many low-weight matches cannot individually dominate and
// no combination ever reaches 1.0 on matches alone. Semantic-intent and
// conversation-context heuristics each add a single bounded bonus.
package classify
