package services

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dpup/prefab/errors"
	"google.golang.org/grpc/codes"

	"github.com/dpup/info.ersn.net/navigation/internal/lib/geo"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/navigation"
)

// SessionsPath is the collection endpoint served by Handler.
const SessionsPath = "/api/v1/sessions"

const maxBodyBytes = 1 << 20

// LocationRequest is one GPS fix posted by a client.
type LocationRequest struct {
	Point                    geo.Point  `json:"point"`
	SpeedKmh                 float64    `json:"speed_kmh"`
	HeadingDegrees           float64    `json:"heading_degrees"`
	HorizontalAccuracyMeters float64    `json:"horizontal_accuracy_meters,omitempty"`
	Timestamp                *time.Time `json:"timestamp,omitempty"`
}

func (r LocationRequest) location(now time.Time) navigation.Location {
	ts := now
	if r.Timestamp != nil {
		ts = *r.Timestamp
	}
	return navigation.Location{
		Point:                    r.Point,
		SpeedKmh:                 r.SpeedKmh,
		HeadingDegrees:           r.HeadingDegrees,
		Timestamp:                ts,
		HorizontalAccuracyMeters: r.HorizontalAccuracyMeters,
	}
}

// StopResponse acknowledges a stopped session.
type StopResponse struct {
	ID      string `json:"id"`
	Stopped bool   `json:"stopped"`
}

// Handler exposes a NavigationService as prefab JSON handlers.
type Handler struct {
	svc *NavigationService
}

// NewHandler creates the JSON handlers for svc.
func NewHandler(svc *NavigationService) *Handler {
	return &Handler{svc: svc}
}

// HandleSessions serves the collection endpoint. Register it with
// prefab.WithJSONHandler(SessionsPath, ...).
func (h *Handler) HandleSessions(r *http.Request) (any, error) {
	if r.URL.Path != SessionsPath {
		return nil, errors.NewC("sessions: path not found", codes.NotFound)
	}
	if r.Method != http.MethodPost {
		return nil, methodNotAllowed(r)
	}

	var req CreateSessionRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	return h.svc.CreateSession(r.Context(), req)
}

// HandleSession serves everything below SessionsPath+"/": the session itself,
// its locations and its route.
func (h *Handler) HandleSession(r *http.Request) (any, error) {
	rest, ok := strings.CutPrefix(r.URL.Path, SessionsPath+"/")
	if !ok || rest == "" {
		return nil, errors.NewC("sessions: path not found", codes.NotFound)
	}
	id, sub, _ := strings.Cut(rest, "/")

	switch sub {
	case "":
		switch r.Method {
		case http.MethodGet:
			return h.svc.GetSession(id)
		case http.MethodDelete:
			if err := h.svc.StopSession(r.Context(), id); err != nil {
				return nil, err
			}
			return &StopResponse{ID: id, Stopped: true}, nil
		}
	case "locations":
		if r.Method == http.MethodPost {
			return h.updateLocation(r, id)
		}
	case "route":
		if r.Method == http.MethodGet {
			return h.svc.GetRoute(id)
		}
	default:
		return nil, errors.NewC("sessions: path not found", codes.NotFound)
	}
	return nil, methodNotAllowed(r)
}

func (h *Handler) updateLocation(r *http.Request, id string) (any, error) {
	var req LocationRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	resp, err := h.svc.UpdateLocation(r.Context(), id, req.location(h.svc.clock.Now()))
	if err != nil {
		return nil, err
	}
	if resp.Utterances == nil {
		resp.Utterances = []string{}
	}
	return resp, nil
}

func methodNotAllowed(r *http.Request) error {
	return errors.NewC(fmt.Sprintf("sessions: method %s not allowed on %s", r.Method, r.URL.Path), codes.Unimplemented).
		WithHTTPStatusCode(http.StatusMethodNotAllowed)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}
