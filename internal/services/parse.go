package services

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	domainagg "github.com/yungbote/keyresult-tracker/internal/domain/aggregates"
)

// fieldErrors accumulates input problems so one response reports all of them.
type fieldErrors []domainagg.FieldError

func (f *fieldErrors) add(field, msg string) {
	*f = append(*f, domainagg.FieldError{Field: field, Message: msg})
}

func (f fieldErrors) err(op string) error {
	if len(f) == 0 {
		return nil
	}
	return domainagg.NewValidation(op, f...)
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseISOTime accepts RFC 3339 timestamps and bare dates. Values without
// an offset are read as UTC.
func parseISOTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func (f *fieldErrors) optionalTime(field, raw string) *time.Time {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	t, ok := parseISOTime(raw)
	if !ok {
		f.add(field, "must be an ISO 8601 date string")
		return nil
	}
	return &t
}

func (f *fieldErrors) requiredUUID(field, raw string) uuid.UUID {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		f.add(field, "is required")
		return uuid.Nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		f.add(field, "must be a UUID")
		return uuid.Nil
	}
	return id
}

func (f *fieldErrors) optionalUUID(field, raw string) *uuid.UUID {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	id := f.requiredUUID(field, raw)
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func (f *fieldErrors) optionalInt(field, raw string, def, min, max int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		f.add(field, "must be an integer")
		return def
	}
	if n < min || (max > 0 && n > max) {
		if max > 0 {
			f.add(field, "must be between "+strconv.Itoa(min)+" and "+strconv.Itoa(max))
		} else {
			f.add(field, "must be >= "+strconv.Itoa(min))
		}
		return def
	}
	return n
}

func (f *fieldErrors) optionalBool(field, raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		f.add(field, "must be a boolean")
		return false
	}
	return b
}

// ParseID validates a path identifier.
func ParseID(op, field, raw string) (uuid.UUID, error) {
	var fe fieldErrors
	id := fe.requiredUUID(field, raw)
	return id, fe.err(op)
}
