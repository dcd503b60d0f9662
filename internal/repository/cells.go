package repository

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Cell encoding helpers shared by the entity codecs. Values are stored as
// UTF-8 text so rows stay readable from any SQL client.

func (c Cells) putString(col, v string) {
	if v != "" {
		c[col] = []byte(v)
	}
}

func (c Cells) putInt(col string, v int64) {
	c[col] = []byte(strconv.FormatInt(v, 10))
}

func (c Cells) putDecimal(col string, v decimal.Decimal) {
	c[col] = []byte(v.String())
}

func (c Cells) putTime(col string, t time.Time) {
	if !t.IsZero() {
		c[col] = []byte(t.UTC().Format(time.RFC3339Nano))
	}
}

func (c Cells) putTimePtr(col string, t *time.Time) {
	if t != nil {
		c.putTime(col, *t)
	}
}

func (c Cells) putJSON(col string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c[col] = data
	return nil
}

func (c Cells) str(col string) string {
	return string(c[col])
}

func (c Cells) int64(col string) (int64, error) {
	raw, ok := c[col]
	if !ok || len(raw) == 0 {
		return 0, nil
	}
	return strconv.ParseInt(string(raw), 10, 64)
}

func (c Cells) decimal(col string) (decimal.Decimal, error) {
	raw, ok := c[col]
	if !ok || len(raw) == 0 {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(string(raw))
}

func (c Cells) time(col string) (time.Time, error) {
	raw, ok := c[col]
	if !ok || len(raw) == 0 {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, string(raw))
}

func (c Cells) timePtr(col string) (*time.Time, error) {
	if len(c[col]) == 0 {
		return nil, nil
	}
	t, err := c.time(col)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (c Cells) json(col string, v interface{}) error {
	raw, ok := c[col]
	if !ok || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// decoder accumulates the first decode error so codecs read linearly.
type decoder struct {
	cells Cells
	err   error
}

func (d *decoder) int64(col string) int64 {
	v, err := d.cells.int64(col)
	d.keep(col, err)
	return v
}

func (d *decoder) decimal(col string) decimal.Decimal {
	v, err := d.cells.decimal(col)
	d.keep(col, err)
	return v
}

func (d *decoder) time(col string) time.Time {
	v, err := d.cells.time(col)
	d.keep(col, err)
	return v
}

func (d *decoder) timePtr(col string) *time.Time {
	v, err := d.cells.timePtr(col)
	d.keep(col, err)
	return v
}

func (d *decoder) json(col string, v interface{}) {
	d.keep(col, d.cells.json(col, v))
}

func (d *decoder) keep(col string, err error) {
	if err != nil && d.err == nil {
		d.err = &ColumnError{Column: col, Err: err}
	}
}

// ColumnError reports a cell that could not be decoded.
type ColumnError struct {
	Column string
	Err    error
}

func (e *ColumnError) Error() string { return "column " + e.Column + ": " + e.Err.Error() }

func (e *ColumnError) Unwrap() error { return e.Err }
