// Package domain holds the core types of the eventvault write path:
// records, write intents, bulk results, per-item errors and caller context.
//
// Domain types carry no infrastructure concerns. Storage, transport and
// cache adapters translate to and from these shapes at the edges.
package domain
