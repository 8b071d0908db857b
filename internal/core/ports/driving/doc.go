// Package driving defines the interfaces through which the outside world
// drives the core.
//
// These are the "driving" or "primary" ports in hexagonal architecture.
// Boundary adapters (HTTP, CLI) depend on these interfaces, and core
// services implement them.
package driving
