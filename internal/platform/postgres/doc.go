// Package postgres provides the PostgreSQL implementations of the storage
// interfaces defined in internal/store. It owns query construction, row
// scanning, and the mapping of driver errors onto the store's sentinel
// errors; queue policy lives above it.
package postgres
