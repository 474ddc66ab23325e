// Package storage provides spend-journal backends for the governor.
//
// The journal is an append-only record of budget spend. Because the budget
// never refills, the sum of journaled spend is all a fresh governor needs to
// restore its remaining balance after a restart.
package storage
