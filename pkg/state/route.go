package state

import (
	"errors"
	"fmt"
	"strings"
)

// Route names the next step chosen by the supervisor.
type Route string

// Route values. The zero value RouteUnset means no decision has been made.
const (
	RouteUnset      Route = ""
	RouteScribe     Route = "Scribe"
	RouteTimekeeper Route = "Timekeeper"
	RouteStrategist Route = "Strategist"
	RouteGuardian   Route = "Guardian"
	RouteFinish     Route = "FINISH"
)

// ErrUnknownRoute is returned by ParseRoute for values outside the closed set.
var ErrUnknownRoute = errors.New("unknown route")

// Workers lists the worker routes in prompt order.
func Workers() []Route {
	return []Route{RouteScribe, RouteTimekeeper, RouteStrategist, RouteGuardian}
}

// Options lists every value the supervisor may choose, FINISH last.
func Options() []Route {
	return append(Workers(), RouteFinish)
}

// OptionNames returns Options as strings, for tool schemas.
func OptionNames() []string {
	opts := Options()
	out := make([]string, len(opts))
	for i, r := range opts {
		out[i] = string(r)
	}
	return out
}

// ParseRoute maps a wire name to a Route. Matching ignores case and surrounding
// whitespace, quotes and a trailing period.
func ParseRoute(s string) (Route, error) {
	trimmed := strings.Trim(strings.TrimSpace(s), "\"'`.")
	for _, r := range Options() {
		if strings.EqualFold(trimmed, string(r)) {
			return r, nil
		}
	}
	return RouteUnset, fmt.Errorf("%w: %q", ErrUnknownRoute, s)
}

// IsWorker reports whether r names a worker.
func (r Route) IsWorker() bool {
	switch r {
	case RouteScribe, RouteTimekeeper, RouteStrategist, RouteGuardian:
		return true
	default:
		return false
	}
}

// String returns the string representation of Route.
func (r Route) String() string {
	if r == RouteUnset {
		return "<unset>"
	}
	return string(r)
}
