// Package database manages the Postgres connection pool used by the
// trade and ticker recorders.
package database
