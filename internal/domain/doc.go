// Package domain holds the core entities of the news engine (items, users,
// comments), the storage ports they are persisted through, and the sentinel
// errors shared across components. It has no dependencies on any concrete
// store or transport.
package domain
