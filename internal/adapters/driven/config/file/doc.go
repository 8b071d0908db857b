// Package file provides the TOML-backed configuration store.
//
// Keys are dotted paths ("server.listen", "storage.backend"); nested TOML
// tables are flattened on load. The store can watch its file and reload on
// change so operational settings apply without a restart.
package file
