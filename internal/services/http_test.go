package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/dpup/info.ersn.net/navigation/internal/lib/navigation"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/routing"
)

func newRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(logging.EnsureLogger(t.Context()))
}

func createViaHandler(t *testing.T, h *Handler, route routing.Route) *SessionView {
	t.Helper()
	resp, err := h.HandleSessions(newRequest(t, http.MethodPost, SessionsPath, CreateSessionRequest{
		Origin:      route.Origin,
		Destination: route.Destination,
	}))
	require.NoError(t, err)
	return resp.(*SessionView)
}

func TestHandler_SessionLifecycle(t *testing.T) {
	route := testRoute()
	env := newTestEnv(t, staticProvider(route, nil), nil)
	h := NewHandler(env.svc)

	view := createViaHandler(t, h, route)
	assert.Equal(t, navigation.StatusWaitingForLocation, view.State.Status)

	resp, err := h.HandleSession(newRequest(t, http.MethodPost, fmt.Sprintf("%s/%s/locations", SessionsPath, view.ID),
		LocationRequest{Point: route.Points[2], SpeedKmh: 20}))
	require.NoError(t, err)
	loc := resp.(*LocationResponse)
	assert.Equal(t, navigation.StatusActive, loc.State.Status)
	assert.Equal(t, []string{"In 500 meters, turn left onto Main St"}, loc.Utterances)

	resp, err = h.HandleSession(newRequest(t, http.MethodGet, SessionsPath+"/"+view.ID, nil))
	require.NoError(t, err)
	got := resp.(*SessionView)
	assert.Equal(t, view.ID, got.ID)
	assert.Equal(t, navigation.StatusActive, got.State.Status)

	resp, err = h.HandleSession(newRequest(t, http.MethodGet, SessionsPath+"/"+view.ID+"/route", nil))
	require.NoError(t, err)
	r := resp.(routing.Route)
	assert.Len(t, r.Points, len(route.Points))
	assert.Len(t, r.Steps, 2)

	resp, err = h.HandleSession(newRequest(t, http.MethodDelete, SessionsPath+"/"+view.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, &StopResponse{ID: view.ID, Stopped: true}, resp)

	_, err = h.HandleSession(newRequest(t, http.MethodGet, SessionsPath+"/"+view.ID, nil))
	assert.Equal(t, codes.NotFound, errors.Code(err))
	assert.Equal(t, http.StatusNotFound, errors.HTTPStatusCode(err))
}

func TestHandler_EmptyUtterancesEncodeAsArray(t *testing.T) {
	route := testRoute()
	env := newTestEnv(t, staticProvider(route, nil), nil)
	h := NewHandler(env.svc)
	view := createViaHandler(t, h, route)

	path := fmt.Sprintf("%s/%s/locations", SessionsPath, view.ID)
	_, err := h.HandleSession(newRequest(t, http.MethodPost, path, LocationRequest{Point: route.Points[2], SpeedKmh: 20}))
	require.NoError(t, err)
	resp, err := h.HandleSession(newRequest(t, http.MethodPost, path, LocationRequest{Point: route.Points[2], SpeedKmh: 20}))
	require.NoError(t, err)

	b, err := json.Marshal(resp)
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.JSONEq(t, `[]`, string(raw["utterances"]))
}

func TestHandler_ArrivedSessionRejectsUpdates(t *testing.T) {
	route := testRoute()
	env := newTestEnv(t, staticProvider(route, nil), nil)
	h := NewHandler(env.svc)
	view := createViaHandler(t, h, route)

	path := fmt.Sprintf("%s/%s/locations", SessionsPath, view.ID)
	for _, i := range []int{0, 3, 6, 8, 10} {
		_, err := h.HandleSession(newRequest(t, http.MethodPost, path, LocationRequest{Point: route.Points[i], SpeedKmh: 20}))
		require.NoError(t, err, "fix %d", i)
	}

	_, err := h.HandleSession(newRequest(t, http.MethodPost, path, LocationRequest{Point: route.Points[10], SpeedKmh: 20}))
	assert.ErrorIs(t, err, navigation.ErrNotActive)
	assert.Equal(t, codes.FailedPrecondition, errors.Code(err))
	assert.Equal(t, http.StatusConflict, errors.HTTPStatusCode(err))
}

func TestHandler_Errors(t *testing.T) {
	route := testRoute()

	tests := []struct {
		name     string
		provider navigation.RouteProvider
		req      func(t *testing.T) *http.Request
		code     codes.Code
		status   int
	}{
		{
			name:     "malformed body",
			provider: staticProvider(route, nil),
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, SessionsPath, bytes.NewBufferString("{not json"))
				return req.WithContext(logging.EnsureLogger(t.Context()))
			},
			code:   codes.InvalidArgument,
			status: http.StatusBadRequest,
		},
		{
			name:     "unknown field",
			provider: staticProvider(route, nil),
			req: func(t *testing.T) *http.Request {
				return newRequest(t, http.MethodPost, SessionsPath, map[string]any{"start": route.Origin})
			},
			code:   codes.InvalidArgument,
			status: http.StatusBadRequest,
		},
		{
			name:     "provider failure",
			provider: staticProvider(routing.Route{}, fmt.Errorf("upstream 503")),
			req: func(t *testing.T) *http.Request {
				return newRequest(t, http.MethodPost, SessionsPath, CreateSessionRequest{
					Origin: route.Origin, Destination: route.Destination,
				})
			},
			code:   codes.Unavailable,
			status: http.StatusBadGateway,
		},
		{
			name:     "unusable route",
			provider: staticProvider(routing.Route{Points: route.Points}, nil),
			req: func(t *testing.T) *http.Request {
				return newRequest(t, http.MethodPost, SessionsPath, CreateSessionRequest{
					Origin: route.Origin, Destination: route.Destination,
				})
			},
			code:   codes.InvalidArgument,
			status: http.StatusUnprocessableEntity,
		},
		{
			name:     "unknown session",
			provider: staticProvider(route, nil),
			req: func(t *testing.T) *http.Request {
				return newRequest(t, http.MethodPost, SessionsPath+"/nope/locations", LocationRequest{Point: route.Points[0]})
			},
			code:   codes.NotFound,
			status: http.StatusNotFound,
		},
		{
			name:     "unknown sub-resource",
			provider: staticProvider(route, nil),
			req: func(t *testing.T) *http.Request {
				return newRequest(t, http.MethodGet, SessionsPath+"/abc/steps", nil)
			},
			code:   codes.NotFound,
			status: http.StatusNotFound,
		},
		{
			name:     "wrong method on item",
			provider: staticProvider(route, nil),
			req: func(t *testing.T) *http.Request {
				return newRequest(t, http.MethodPut, SessionsPath+"/abc", nil)
			},
			code:   codes.Unimplemented,
			status: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.provider, nil)
			h := NewHandler(env.svc)

			req := tt.req(t)
			var err error
			if req.URL.Path == SessionsPath {
				_, err = h.HandleSessions(req)
			} else {
				_, err = h.HandleSession(req)
			}
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.Code(err), err.Error())
			assert.Equal(t, tt.status, errors.HTTPStatusCode(err), err.Error())
		})
	}
}

func TestHandler_CollectionRejectsOtherMethods(t *testing.T) {
	env := newTestEnv(t, staticProvider(testRoute(), nil), nil)
	_, err := NewHandler(env.svc).HandleSessions(newRequest(t, http.MethodPut, SessionsPath, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, errors.HTTPStatusCode(err))
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		err    error
		code   codes.Code
		status int
	}{
		{ErrInvalidRequest, codes.InvalidArgument, http.StatusBadRequest},
		{ErrSessionNotFound, codes.NotFound, http.StatusNotFound},
		{navigation.ErrNotActive, codes.FailedPrecondition, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", routing.ErrInvalidRoute), codes.InvalidArgument, http.StatusUnprocessableEntity},
		{ErrTooManySessions, codes.ResourceExhausted, http.StatusTooManyRequests},
		{&navigation.RouteError{Op: "reroute", Err: fmt.Errorf("boom")}, codes.Unavailable, http.StatusBadGateway},
		{fmt.Errorf("other"), codes.Unknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, errors.Code(tt.err), tt.err.Error())
		assert.Equal(t, tt.status, errors.HTTPStatusCode(tt.err), tt.err.Error())
	}
}
