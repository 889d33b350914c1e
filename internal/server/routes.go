// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package server

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tablewise/aiwaiter/internal/menu"
	"github.com/tablewise/aiwaiter/internal/pipeline"
)

// RegisterServices sets the service dependencies and registers routes.
func (s *Server) RegisterServices(svc *Services) {
	s.services = svc
	s.registerRoutes()
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "ask-waiter",
		Method:        http.MethodPost,
		Path:          "/agents/waiter",
		Summary:       "Answer a diner message",
		Description:   "Runs the upsell, allergen guardian and waiter agents and returns one sanitized reply.",
		Tags:          []string{"agents"},
		DefaultStatus: http.StatusOK,
		Errors:        []int{http.StatusBadRequest, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable},
	}, s.handleWaiter)

	if s.services.metrics != nil {
		s.router.Handle("/metrics", s.services.metrics)
	}
}

func (s *Server) registerHealth() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, s.handleHealth)
}

// --- Request/Response types for huma ---

type cartLine struct {
	ItemID   string `json:"item_id" format:"uuid" doc:"Menu item id"`
	Quantity int    `json:"quantity" minimum:"1" doc:"Quantity"`
}

type waiterRequest struct {
	Message        string     `json:"message" minLength:"1" doc:"Diner message"`
	TableSessionID string     `json:"table_session_id,omitempty" format:"uuid" doc:"Open table session"`
	TenantID       string     `json:"tenant_id,omitempty" format:"uuid" doc:"Tenant, derived from the location when omitted"`
	LocationID     string     `json:"location_id,omitempty" format:"uuid" doc:"Restaurant location"`
	UserID         string     `json:"user_id,omitempty" format:"uuid" doc:"Signed-in guest"`
	SessionID      string     `json:"session_id,omitempty" format:"uuid" doc:"Existing agent session to continue"`
	Language       string     `json:"language,omitempty" maxLength:"35" doc:"Preferred reply language"`
	Allergies      []string   `json:"allergies,omitempty" doc:"Declared allergens"`
	Cart           []cartLine `json:"cart,omitempty" doc:"Items already ordered"`
	AgeVerified    bool       `json:"age_verified,omitempty" doc:"Guest is verified to be of legal drinking age"`
}

type waiterInput struct {
	Body waiterRequest
}

// Resolve enforces that the request names a location, directly or through a
// table session.
func (in *waiterInput) Resolve(_ huma.Context) []error {
	if strings.TrimSpace(in.Body.LocationID) == "" && strings.TrimSpace(in.Body.TableSessionID) == "" {
		return []error{&huma.ErrorDetail{
			Location: "body",
			Message:  "location_id or table_session_id is required",
		}}
	}
	return nil
}

type waiterOutput struct {
	Body pipeline.Response
}

type providerHealth struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Message   string `json:"message,omitempty"`
}

type healthOutput struct {
	Body struct {
		Status    string           `json:"status" example:"ok" doc:"Health status"`
		Providers []providerHealth `json:"providers,omitempty" doc:"LLM provider availability"`
	}
}

// --- Handlers ---

func (s *Server) handleWaiter(ctx context.Context, in *waiterInput) (*waiterOutput, error) {
	if s.services == nil {
		return nil, huma.Error500InternalServerError("waiter not configured")
	}

	cart := make([]menu.CartLine, 0, len(in.Body.Cart))
	for _, l := range in.Body.Cart {
		cart = append(cart, menu.CartLine{ItemID: l.ItemID, Quantity: l.Quantity})
	}

	resp, err := s.services.waiter.Handle(ctx, pipeline.Request{
		Message:        in.Body.Message,
		SessionID:      in.Body.SessionID,
		TenantID:       in.Body.TenantID,
		LocationID:     in.Body.LocationID,
		TableSessionID: in.Body.TableSessionID,
		UserID:         in.Body.UserID,
		Language:       in.Body.Language,
		Allergies:      in.Body.Allergies,
		Cart:           cart,
		AgeVerified:    in.Body.AgeVerified,
	})
	if err != nil {
		return nil, s.fromError(ctx, err)
	}
	return &waiterOutput{Body: *resp}, nil
}

func (s *Server) handleHealth(ctx context.Context, _ *struct{}) (*healthOutput, error) {
	out := &healthOutput{}
	out.Body.Status = "ok"
	if s.services == nil || s.services.providers == nil {
		return out, nil
	}

	statuses := s.services.providers.Statuses(ctx)
	names := make([]string, 0, len(statuses))
	for name := range statuses {
		names = append(names, name)
	}
	sort.Strings(names)

	anyAvailable := false
	for _, name := range names {
		st := statuses[name]
		anyAvailable = anyAvailable || st.Available
		out.Body.Providers = append(out.Body.Providers, providerHealth{Name: name, Available: st.Available, Message: st.Message})
	}
	if len(names) > 0 && !anyAvailable {
		out.Body.Status = "degraded"
	}
	return out, nil
}
