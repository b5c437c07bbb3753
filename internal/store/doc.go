// Package store provides durable storage for the governance and treasury
// engines, and the token ledger that backs their balance oracle and value
// transfer service.
//
// Three implementations share one contract:
//   - Store on SQLite (Open): the default for the CLI
//   - Store on PostgreSQL (OpenPostgres, NewPostgres): same tables and queries
//   - MemoryStore and MemoryLedger: for tests and scenario runs
//
// # Commit Contract
//
// Each engine aggregate (governance_state, treasury_state) is a single row
// carrying a version. CommitGovernance and CommitTreasury write the aggregate
// and at most one record in one database transaction:
//   - version 0 inserts the aggregate; a row already present is a conflict
//   - version n updates WHERE version = n; zero rows affected is a conflict
//   - on success the caller's state.Version is incremented
//
// A conflict returns ir.ErrConflict and writes nothing. Capacity bounds
// (voters per proposal, pending transactions) return ir.ErrCapacity and
// write nothing.
//
// # Encoding
//
//   - Timestamps are unix seconds; 0 means unset
//   - Identity sets are canonical JSON arrays in insertion order
//   - Amounts are INTEGER (int64); values above math.MaxInt64 are rejected
//
// # Database Configuration (SQLite)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
