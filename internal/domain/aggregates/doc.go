// Package aggregates defines the write-boundary contracts and the error
// taxonomy shared by the progress service.
//
// Contracts avoid persistence and transport details. Each one names a
// boundary whose invariants must hold atomically.
package aggregates
