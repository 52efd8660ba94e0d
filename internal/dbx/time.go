package dbx

import (
	"database/sql"
	"time"
)

// SQLite has no native timestamp type; the repositories store unix
// nanoseconds in INTEGER columns and convert with these helpers.

// UnixNano encodes t for an INTEGER column.
func UnixNano(t time.Time) int64 { return t.UnixNano() }

// FromUnixNano decodes an INTEGER column value as a UTC time.
func FromUnixNano(n int64) time.Time { return time.Unix(0, n).UTC() }

// NullUnixNano encodes an optional time.
func NullUnixNano(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

// TimePtr decodes an optional INTEGER timestamp.
func TimePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := FromUnixNano(n.Int64)
	return &t
}

// NullTimePtr converts a nullable native timestamp, as scanned from
// PostgreSQL, into an optional UTC time.
func NullTimePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time.UTC()
	return &t
}

// NullTime encodes an optional time for a native timestamp column.
func NullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
