// Package sqlite implements the record store on SQLite.
//
// The schema lives in embedded migrations applied at startup. Bulk writes
// execute per-intent statements so one record's constraint violation never
// aborts its siblings; only a dead database fails the batch wholesale.
package sqlite
