package catalog

import (
	"fmt"
	"time"
)

// dbTime scans timestamps stored natively (PostgreSQL) or as RFC 3339 text (SQLite).
type dbTime struct {
	time.Time
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case nil:
		t.Time = time.Time{}
	default:
		return fmt.Errorf("catalog: cannot scan %T into time", src)
	}
	return nil
}

func (t *dbTime) parse(raw string) error {
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return fmt.Errorf("catalog: parse time %q: %w", raw, err)
	}
	t.Time = parsed
	return nil
}
