// Package form composes typed field extractors into a mapping from a named
// capture-group dictionary to a structured record.
package form

import (
	"fmt"
	"strconv"
	"time"
)

// Func maps the named capture groups of a matched block into a structured
// record. A nil error with a non-nil record is a successful mapping.
type Func func(fields map[string]string) (any, error)

// Extractor pulls and converts a single named field out of fields, storing
// the converted value through dst.
type Extractor func(fields map[string]string) error

// Pipeline combines Extractors into a Func, invoked in order; the first
// error aborts the mapping.
func Pipeline(extractors ...Extractor) Func {
	return func(fields map[string]string) (any, error) {
		for _, ex := range extractors {
			if err := ex(fields); err != nil {
				return nil, err
			}
		}
		return fields, nil
	}
}

// String extracts field and stores it at dst, applying a default when the
// field is absent and required is false.
func String(field string, dst *string, required bool, def string) Extractor {
	return func(fields map[string]string) error {
		v, ok := fields[field]
		if !ok || v == "" {
			if required {
				return fmt.Errorf("form: missing required field %q", field)
			}
			*dst = def
			return nil
		}
		*dst = v
		return nil
	}
}

// Int extracts field as an integer bounded by [min, max] (inclusive; a zero
// min and max disables bounds checking).
func Int(field string, dst *int64, required bool, def, min, max int64) Extractor {
	return func(fields map[string]string) error {
		v, ok := fields[field]
		if !ok || v == "" {
			if required {
				return fmt.Errorf("form: missing required field %q", field)
			}
			*dst = def
			return nil
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("form: field %q: %w", field, err)
		}
		if (min != 0 || max != 0) && (n < min || n > max) {
			return fmt.Errorf("form: field %q value %d out of bounds [%d, %d]", field, n, min, max)
		}
		*dst = n
		return nil
	}
}

// Time extracts field, parsed with layout.
func Time(field, layout string, dst *time.Time, required bool) Extractor {
	return func(fields map[string]string) error {
		v, ok := fields[field]
		if !ok || v == "" {
			if required {
				return fmt.Errorf("form: missing required field %q", field)
			}
			return nil
		}
		t, err := time.Parse(layout, v)
		if err != nil {
			return fmt.Errorf("form: field %q: %w", field, err)
		}
		*dst = t
		return nil
	}
}

// Enum extracts field and translates it through table, falling back to def
// when the field is absent or unrecognized and required is false.
func Enum(field string, table map[string]string, dst *string, required bool, def string) Extractor {
	return func(fields map[string]string) error {
		v, ok := fields[field]
		if !ok || v == "" {
			if required {
				return fmt.Errorf("form: missing required field %q", field)
			}
			*dst = def
			return nil
		}
		mapped, ok := table[v]
		if !ok {
			if required {
				return fmt.Errorf("form: field %q has unrecognized value %q", field, v)
			}
			*dst = def
			return nil
		}
		*dst = mapped
		return nil
	}
}
