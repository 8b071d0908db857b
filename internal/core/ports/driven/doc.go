// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - RecordStore: dedup lookup and the unordered bulk write primitive
//   - Authorizer: yes/no capability check before every mutating action
//   - EventBus: fire-and-forget cache coherence signals
//
// # Optional Interfaces
//
//   - ConfigStore: application configuration; adapters fall back to
//     defaults when nil
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
