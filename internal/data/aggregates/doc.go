// Package aggregates implements the progress write boundary.
//
// Writes compose the table repos from internal/data/repos and own the
// transaction that keeps exactly one live latest record per key result.
package aggregates
