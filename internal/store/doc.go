// Package store provides SQLite-backed storage for mesh streams and
// recorded validation runs.
//
// A stream database holds one row per published time step plus its meshes,
// block tables and arrays. The sqlite transport reads it one step at a time;
// the synthetic producer writes it. The same database can carry the runs
// recorded by the validate command.
//
// # Ordering
//
// Steps are addressed by seq, their position in the stream. Every query that
// returns more than one row orders by an explicit column so repeated reads
// produce identical records.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Array values are stored as JSON text.
package store
