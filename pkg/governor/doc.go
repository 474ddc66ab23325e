// Package governor enforces the gate's two consumable resources: a finite,
// non-refillable cost budget and a sliding-window request-rate limit.
//
// Both resources live behind a single mutex per Governor instance, so
// concurrent requests observe a linear, consistent ordering of reservations:
// no two concurrent requests can both succeed a reservation that together
// overdraws the budget. The critical section covers only the check-and-mutate
// step, never I/O.
//
// Rate admission is deliberately split into Admit ("may I") and Commit
// ("I did"): a later pipeline stage may reject a request for other reasons
// without consuming a rate slot, while rate-limited refusals themselves must
// still count to prevent probing the limiter.
package governor
