package main

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/facadelab/restyle/internal/httputil"
	"github.com/facadelab/restyle/internal/model"
	"github.com/facadelab/restyle/internal/repo"
)

// POST /api/orgs/{orgId}/projects — create (enforces the org quota).
// GET  /api/orgs/{orgId}/projects — list, or prefix search with ?name= / ?client=.
func handleProjects(w http.ResponseWriter, r *http.Request, orgID string) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			Name       string `json:"name"`
			ClientName string `json:"clientName,omitempty"`
			Address    string `json:"address,omitempty"`
		}
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.RespondAppError(w, err)
			return
		}
		if req.Name == "" {
			httputil.Error(w, http.StatusBadRequest, "name is required")
			return
		}
		project, err := repos.Projects.Create(r.Context(), orgID, req.Name, req.ClientName, req.Address)
		if err != nil {
			httputil.RespondAppError(w, err)
			return
		}
		log.Info().Str("projectId", project.ID).Str("orgId", orgID).Msg("Project created")
		httputil.RespondJSON(w, http.StatusCreated, project)

	case http.MethodGet:
		limit, cursor := pageParams(r)
		var (
			projects []*model.Project
			next     string
			err      error
		)
		switch {
		case r.URL.Query().Get("name") != "":
			projects, next, err = repos.Projects.SearchByName(r.Context(), orgID, r.URL.Query().Get("name"), limit, cursor)
		case r.URL.Query().Get("client") != "":
			projects, next, err = repos.Projects.SearchByClient(r.Context(), orgID, r.URL.Query().Get("client"), limit, cursor)
		default:
			projects, next, err = repos.Projects.ListByOrganization(r.Context(), orgID, limit, cursor)
		}
		if err != nil {
			httputil.RespondAppError(w, err)
			return
		}
		httputil.RespondJSON(w, http.StatusOK, listResponse{Items: projects, NextCursor: next})

	default:
		httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// GET   /api/orgs/{orgId}/projects/{projectId}
// PATCH /api/orgs/{orgId}/projects/{projectId}
func handleProjectByID(w http.ResponseWriter, r *http.Request, orgID, projectID string) {
	switch r.Method {
	case http.MethodGet:
		project, err := repos.Projects.Get(r.Context(), orgID, projectID)
		if err != nil {
			httputil.RespondAppError(w, err)
			return
		}
		if project == nil {
			httputil.Error(w, http.StatusNotFound, "project not found")
			return
		}
		httputil.RespondJSON(w, http.StatusOK, project)

	case http.MethodPatch:
		var patch repo.ProjectPatch
		if err := httputil.DecodeJSON(r, &patch); err != nil {
			httputil.RespondAppError(w, err)
			return
		}
		project, err := repos.Projects.Update(r.Context(), orgID, projectID, patch)
		if err != nil {
			httputil.RespondAppError(w, err)
			return
		}
		httputil.RespondJSON(w, http.StatusOK, project)

	default:
		httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleShareRoutes serves /api/orgs/{o}/projects/{p}/share and
// /share/{token}.
func handleShareRoutes(w http.ResponseWriter, r *http.Request, orgID, projectID string, rest []string) {
	switch {
	case len(rest) == 0:
		handleShareLinks(w, r, projectID)
	case len(rest) == 1:
		handleShareLinkByToken(w, r, projectID, rest[0])
	default:
		httputil.Error(w, http.StatusNotFound, "not found")
	}
}

// POST /api/orgs/{o}/projects/{p}/share — mint a share token.
// GET  /api/orgs/{o}/projects/{p}/share — list active links.
func handleShareLinks(w http.ResponseWriter, r *http.Request, projectID string) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			ExpiresAt string `json:"expiresAt,omitempty"`
		}
		// An empty body is fine here; only decode when one is present.
		if r.ContentLength > 0 {
			if err := httputil.DecodeJSON(r, &req); err != nil {
				httputil.RespondAppError(w, err)
				return
			}
		}
		link, err := repos.ShareLinks.Create(r.Context(), projectID, req.ExpiresAt)
		if err != nil {
			httputil.RespondAppError(w, err)
			return
		}
		httputil.RespondJSON(w, http.StatusCreated, link)
	case http.MethodGet:
		limit, cursor := pageParams(r)
		links, next, err := repos.ShareLinks.ListByProject(r.Context(), projectID, limit, cursor)
		if err != nil {
			httputil.RespondAppError(w, err)
			return
		}
		httputil.RespondJSON(w, http.StatusOK, listResponse{Items: links, NextCursor: next})
	default:
		httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// DELETE /api/orgs/{o}/projects/{p}/share/{token} — revoke.
func handleShareLinkByToken(w http.ResponseWriter, r *http.Request, projectID, token string) {
	if r.Method != http.MethodDelete {
		httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := repos.ShareLinks.Revoke(r.Context(), projectID, token); err != nil {
		httputil.RespondAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/share/{token} — public read-only project view.
func handleSharedProject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	token := r.URL.Path[len("/api/share/"):]
	if token == "" {
		httputil.Error(w, http.StatusNotFound, "not found")
		return
	}

	link, err := repos.ShareLinks.GetByToken(r.Context(), token)
	if err != nil {
		httputil.RespondAppError(w, err)
		return
	}
	if link == nil {
		httputil.Error(w, http.StatusNotFound, "share link not found")
		return
	}

	limit, cursor := pageParams(r)
	images, next, err := repos.Images.ListByProject(r.Context(), link.ProjectID, limit, cursor)
	if err != nil {
		httputil.RespondAppError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"projectId":  link.ProjectID,
		"images":     images,
		"nextCursor": next,
	})
}
