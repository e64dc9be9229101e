package navigation

import (
	"fmt"
	"net/http"

	"github.com/dpup/prefab/errors"
	"google.golang.org/grpc/codes"

	"github.com/dpup/info.ersn.net/navigation/internal/lib/routing"
)

var (
	// ErrInvalidRoute is returned for routes with no points or no steps.
	ErrInvalidRoute = routing.ErrInvalidRoute

	// ErrRouteProviderFailure marks errors returned by the Route Provider.
	ErrRouteProviderFailure = errors.NewC("route provider failure", codes.Unavailable).
		WithHTTPStatusCode(http.StatusBadGateway)

	// ErrNotActive is returned by Update when the session is not tracking a
	// route (idle, arrived or failed).
	ErrNotActive = errors.NewC("navigation session is not active", codes.FailedPrecondition).
		WithHTTPStatusCode(http.StatusConflict)

	// ErrStopped is returned by Start when Stop was called while the initial
	// route was being fetched.
	ErrStopped = errors.NewC("navigation session stopped", codes.Aborted)
)

// RouteError wraps a Route Provider error. It matches both
// ErrRouteProviderFailure and the underlying error with errors.Is.
type RouteError struct {
	Op  string
	Err error
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrRouteProviderFailure, e.Err)
}

func (e *RouteError) Unwrap() []error {
	return []error{ErrRouteProviderFailure, e.Err}
}
