package workflow

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// RowMapper is implemented by record types that can describe themselves as a
// field-name mapping.
type RowMapper interface {
	AsMap() map[string]any
}

// SerializeRow converts a database row into JSON-safe values. It never panics;
// a value that cannot be converted is returned as its string form.
func SerializeRow(row any) (out any) {
	defer func() {
		if r := recover(); r != nil {
			out = fmt.Sprint(row)
		}
	}()
	return SerializeValue(row)
}

// SerializeValue converts a single value into a JSON primitive, a []any or a
// map[string]any.
func SerializeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return val
	case float32:
		return finite(float64(val))
	case float64:
		return finite(val)
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return finite(f)
		}
		return val.String()
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case time.Duration:
		return val.String()
	case pgtype.Date:
		if !val.Valid {
			return nil
		}
		if val.InfinityModifier != pgtype.Finite {
			return val.InfinityModifier.String()
		}
		return val.Time.Format(time.DateOnly)
	case pgtype.Timestamp:
		if !val.Valid {
			return nil
		}
		return val.Time.Format(time.RFC3339Nano)
	case pgtype.Timestamptz:
		if !val.Valid {
			return nil
		}
		return val.Time.Format(time.RFC3339Nano)
	case pgtype.Time:
		if !val.Valid {
			return nil
		}
		return formatClock(val.Microseconds)
	case pgtype.Interval:
		if !val.Valid {
			return nil
		}
		return formatInterval(val)
	case pgtype.Numeric:
		if !val.Valid || val.NaN {
			return nil
		}
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return finite(f.Float64)
	case decimal.Decimal:
		return val.InexactFloat64()
	case *big.Float:
		if val == nil {
			return nil
		}
		f, _ := val.Float64()
		return finite(f)
	case *big.Rat:
		if val == nil {
			return nil
		}
		f, _ := val.Float64()
		return finite(f)
	case *big.Int:
		if val == nil {
			return nil
		}
		if val.IsInt64() {
			return val.Int64()
		}
		return val.String()
	case []byte:
		if utf8.Valid(val) {
			return string(val)
		}
		return fmt.Sprint(val)
	case [16]byte:
		return formatUUID(val)
	case pgtype.UUID:
		if !val.Valid {
			return nil
		}
		return formatUUID(val.Bytes)
	case RowMapper:
		return serializeMap(val.AsMap())
	case map[string]any:
		return serializeMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = SerializeValue(item)
		}
		return out
	}
	return serializeReflect(reflect.ValueOf(v))
}

func serializeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, item := range m {
		out[k] = SerializeValue(item)
	}
	return out
}

func serializeReflect(rv reflect.Value) any {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return SerializeValue(rv.Elem().Interface())
	}
	if s, ok := rv.Interface().(fmt.Stringer); ok {
		return s.String()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []any{}
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = SerializeValue(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = SerializeValue(iter.Value().Interface())
		}
		return out
	case reflect.Struct:
		t := rv.Type()
		out := make(map[string]any, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name := f.Name
			if tag, _, _ := strings.Cut(f.Tag.Get("json"), ","); tag == "-" {
				continue
			} else if tag != "" {
				name = tag
			}
			out[name] = SerializeValue(rv.Field(i).Interface())
		}
		return out
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return finite(rv.Float())
	}
	return fmt.Sprint(rv.Interface())
}

const (
	usPerSecond = int64(time.Second / time.Microsecond)
	usPerMinute = 60 * usPerSecond
	usPerHour   = 60 * usPerMinute
)

// formatClock renders microseconds since midnight as HH:MM:SS[.ffffff].
func formatClock(us int64) string {
	h, us := us/usPerHour, us%usPerHour
	m, us := us/usPerMinute, us%usPerMinute
	return fmt.Sprintf("%02d:%02d:%s", h, m, formatSeconds(us, true))
}

// formatInterval renders an interval as an ISO-8601 duration, e.g. P1Y2M3DT4H5M6.5S.
// Components keep their own sign the way PostgreSQL's iso_8601 style does.
func formatInterval(iv pgtype.Interval) string {
	var b strings.Builder
	b.WriteByte('P')
	if y := iv.Months / 12; y != 0 {
		fmt.Fprintf(&b, "%dY", y)
	}
	if m := iv.Months % 12; m != 0 {
		fmt.Fprintf(&b, "%dM", m)
	}
	if iv.Days != 0 {
		fmt.Fprintf(&b, "%dD", iv.Days)
	}
	if us := iv.Microseconds; us != 0 {
		b.WriteByte('T')
		h, us := us/usPerHour, us%usPerHour
		m, us := us/usPerMinute, us%usPerMinute
		if h != 0 {
			fmt.Fprintf(&b, "%dH", h)
		}
		if m != 0 {
			fmt.Fprintf(&b, "%dM", m)
		}
		if us != 0 {
			b.WriteString(formatSeconds(us, false) + "S")
		}
	}
	if b.Len() == 1 {
		return "PT0S"
	}
	return b.String()
}

// formatSeconds renders microseconds below a minute as seconds with a
// trimmed fractional part.
func formatSeconds(us int64, pad bool) string {
	sign := ""
	if us < 0 {
		sign, us = "-", -us
	}
	s := fmt.Sprintf("%d", us/usPerSecond)
	if pad {
		s = fmt.Sprintf("%02d", us/usPerSecond)
	}
	if frac := us % usPerSecond; frac != 0 {
		s += "." + strings.TrimRight(fmt.Sprintf("%06d", frac), "0")
	}
	return sign + s
}

func formatUUID(b [16]byte) string {
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

// finite maps NaN and infinities to nil since JSON cannot carry them.
func finite(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}
