package repo

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// storageLayout has a fixed width so that SQLite TEXT comparisons order the
// same way as the instants they encode. Values are always stored in UTC.
const storageLayout = "2006-01-02T15:04:05.000000Z"

// Date stores a timestamp as fixed-width UTC text on SQLite and is accepted as
// a timestamptz literal by Postgres.
type Date time.Time

func NewDate(t time.Time) Date {
	return Date(t.UTC())
}

func (d Date) Value() (driver.Value, error) {
	return time.Time(d).UTC().Format(storageLayout), nil
}

func (d *Date) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*d = Date(time.Time{})
		return nil
	case time.Time:
		*d = Date(v.UTC())
		return nil
	case []byte:
		return d.parse(string(v))
	case string:
		return d.parse(v)
	}
	return fmt.Errorf("cannot scan type %T into Date", value)
}

func (d *Date) parse(s string) error {
	for _, layout := range []string{storageLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			*d = Date(t.UTC())
			return nil
		}
	}
	return fmt.Errorf("cannot parse %q as Date", s)
}

func (d Date) String() string {
	return time.Time(d).UTC().Format(storageLayout)
}

func (d Date) Time() time.Time {
	return time.Time(d)
}

// timePtr converts a nullable column value.
func timePtr(d *Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time()
	return &t
}

// nullable renders t for a write, using an untyped nil for NULL.
func nullable(t *time.Time) any {
	if t == nil {
		return nil
	}
	return NewDate(*t)
}
