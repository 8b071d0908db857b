// Package services implements the core write path behind the driving ports.
//
// The pipeline for one batch: resolve identity and classify every record
// concurrently (prepare), submit the decided intents as one unordered bulk
// write, reconcile the per-index outcome back onto the inputs, signal the
// cache bus with committed shapes only, and compose the aggregate status.
package services
