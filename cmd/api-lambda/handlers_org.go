package main

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/facadelab/restyle/internal/httputil"
	"github.com/facadelab/restyle/internal/model"
)

// POST /api/orgs
// Body: {"name": "...", "maxProjects": 20}
func handleOrgs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Name        string `json:"name"`
		MaxProjects int    `json:"maxProjects"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondAppError(w, err)
		return
	}
	if req.Name == "" {
		httputil.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	org, err := repos.Organizations.Create(r.Context(), req.Name, req.MaxProjects)
	if err != nil {
		httputil.RespondAppError(w, err)
		return
	}
	log.Info().Str("orgId", org.ID).Msg("Organization created")
	httputil.RespondJSON(w, http.StatusCreated, org)
}

// GET /api/orgs/{orgId}
func handleOrgByID(w http.ResponseWriter, r *http.Request, orgID string) {
	if r.Method != http.MethodGet {
		httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	org, err := repos.Organizations.Get(r.Context(), orgID)
	if err != nil {
		httputil.RespondAppError(w, err)
		return
	}
	if org == nil {
		httputil.Error(w, http.StatusNotFound, "organization not found")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, org)
}

// handleUserRoutes serves /api/orgs/{orgId}/users and /users/{email}.
func handleUserRoutes(w http.ResponseWriter, r *http.Request, orgID string, rest []string) {
	switch {
	case len(rest) == 0:
		handleUsers(w, r, orgID)
	case len(rest) == 1:
		handleUserByEmail(w, r, orgID, rest[0])
	default:
		httputil.Error(w, http.StatusNotFound, "not found")
	}
}

// POST /api/orgs/{orgId}/users — add a member.
// GET  /api/orgs/{orgId}/users — list members.
func handleUsers(w http.ResponseWriter, r *http.Request, orgID string) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			Email string     `json:"email"`
			Name  string     `json:"name,omitempty"`
			Role  model.Role `json:"role"`
		}
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.RespondAppError(w, err)
			return
		}
		if req.Email == "" {
			httputil.Error(w, http.StatusBadRequest, "email is required")
			return
		}
		if req.Role == "" {
			req.Role = model.RoleViewer
		}
		user, err := repos.Users.Create(r.Context(), orgID, req.Email, req.Name, req.Role)
		if err != nil {
			httputil.RespondAppError(w, err)
			return
		}
		httputil.RespondJSON(w, http.StatusCreated, user)
	case http.MethodGet:
		limit, cursor := pageParams(r)
		users, next, err := repos.Users.ListByOrganization(r.Context(), orgID, limit, cursor)
		if err != nil {
			httputil.RespondAppError(w, err)
			return
		}
		httputil.RespondJSON(w, http.StatusOK, listResponse{Items: users, NextCursor: next})
	default:
		httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// GET   /api/orgs/{orgId}/users/{email}
// PATCH /api/orgs/{orgId}/users/{email} — change role.
func handleUserByEmail(w http.ResponseWriter, r *http.Request, orgID, email string) {
	switch r.Method {
	case http.MethodGet:
		user, err := repos.Users.Get(r.Context(), orgID, email)
		if err != nil {
			httputil.RespondAppError(w, err)
			return
		}
		if user == nil {
			httputil.Error(w, http.StatusNotFound, "user not found")
			return
		}
		httputil.RespondJSON(w, http.StatusOK, user)
	case http.MethodPatch:
		var req struct {
			Role model.Role `json:"role"`
		}
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.RespondAppError(w, err)
			return
		}
		if req.Role == "" {
			httputil.Error(w, http.StatusBadRequest, "role is required")
			return
		}
		user, err := repos.Users.UpdateRole(r.Context(), orgID, email, req.Role)
		if err != nil {
			httputil.RespondAppError(w, err)
			return
		}
		httputil.RespondJSON(w, http.StatusOK, user)
	default:
		httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
