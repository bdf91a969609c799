package models

import (
	"time"
)

// Row is the generic on-device shape of one synchronized record: column name
// to value. Synchronized tables are declared by descriptors at runtime, so
// the store layer reads and writes rows generically while entity transforms
// guard the typed boundary.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the named column as a string. Byte slices are converted;
// missing columns and other types yield "".
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// Time returns the named column as a UTC timestamp. Accepts time.Time values
// and RFC3339 strings (the store persists timestamps as RFC3339Nano text).
// Missing or malformed values yield the zero time.
func (r Row) Time(col string) time.Time {
	switch v := r[col].(type) {
	case time.Time:
		return v.UTC()
	case string:
		return parseRowTime(v)
	case []byte:
		return parseRowTime(string(v))
	default:
		return time.Time{}
	}
}

// Int returns the named column as an int64, tolerating the numeric types the
// sqlite driver may produce.
func (r Row) Int(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// Bool returns the named column as a bool, tolerating sqlite's integer
// representation.
func (r Row) Bool(col string) bool {
	switch v := r[col].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	default:
		return false
	}
}

// LocalID is a shortcut for the idempotency key column.
func (r Row) LocalID() string {
	return r.String(ColLocalID)
}

// Status returns the row's sync status.
func (r Row) Status() SyncStatus {
	return SyncStatus(r.String(ColSyncStatus))
}

func parseRowTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
