// Package storage persists task identities and launch history.
//
// Every backend implements LaunchHistory, the port the dispatch engine reads
// the last launch from and writes outcomes to, plus HistoryReader for
// diagnostics. Backends:
//   - "memory": process-local maps, nothing survives exit
//   - "file": JSON snapshot + append-only JSONL journal
//   - "sqlite": modernc.org/sqlite, no cgo
//   - "mysql": go-sql-driver/mysql
package storage
