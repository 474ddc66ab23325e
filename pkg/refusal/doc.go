// Package refusal renders safe, templated explanations for non-allow
// decisions.
//
// Refusals are deterministic: the reference ticket is derived by hashing a
// stable subset of context fields together with a 5-minute clock bucket, so
// the same violation in the same short window produces the same reference.
// Any context echoed back is redacted first; refusal text must never leak
// the content that triggered the refusal.
package refusal
