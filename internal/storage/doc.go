// Package storage provides the durable journals behind the relay dedup set.
//
// Every driver is an append-only log of relayed identifiers:
//   - "file":   plain text, one identifier per line (default)
//   - "sqlite": a single table in a SQLite database file
//   - "redis":  a Redis list, shared by every process using the same key
package storage
