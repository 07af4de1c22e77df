package http

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"settleflow/internal/core"
)

// RangeParams holds the optional bounds of a query.
type RangeParams struct {
	From *time.Time
	To   *time.Time
}

// ParseRangeParams reads "from" and "to" as YYYY-MM-DD dates in loc. Missing
// values stay nil. A "to" date covers the whole day.
func ParseRangeParams(query url.Values, loc *time.Location) (RangeParams, error) {
	var p RangeParams
	from, err := parseDateParam(query, "from", loc)
	if err != nil {
		return p, err
	}
	to, err := parseDateParam(query, "to", loc)
	if err != nil {
		return p, err
	}
	if to != nil {
		end := to.AddDate(0, 0, 1).Add(-time.Nanosecond)
		to = &end
	}
	p.From, p.To = from, to
	return p, nil
}

func parseDateParam(query url.Values, name string, loc *time.Location) (*time.Time, error) {
	v := sanitizeInput(query.Get(name))
	if v == "" {
		return nil, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(time.DateOnly, v, loc)
	if err != nil {
		return nil, fmt.Errorf("%s: expected YYYY-MM-DD, got %q", name, v)
	}
	return &t, nil
}

// ParseClassParam reads "class" (all, capex, opex). Missing means all.
func ParseClassParam(query url.Values) (core.ClassFilter, error) {
	v := strings.ToLower(sanitizeInput(query.Get("class")))
	if v == "" {
		return core.AllClasses, nil
	}
	f := core.ClassFilter(v)
	if !f.IsValid() {
		return "", fmt.Errorf("%w: %q", core.ErrInvalidClass, v)
	}
	return f, nil
}

// RequireMethod returns an error response when r uses none of methods.
func RequireMethod(r *http.Request, methods ...string) *ResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

// RequireGET also accepts HEAD.
func RequireGET(r *http.Request) *ResponseBuilder {
	return RequireMethod(r, http.MethodGet, http.MethodHead)
}

// sanitizeInput trims whitespace and drops control characters.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' {
			return -1
		}
		return r
	}, s)
}
