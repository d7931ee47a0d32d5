package main

import (
	"net/http"

	"github.com/facadelab/restyle/internal/dispatch"
	"github.com/facadelab/restyle/internal/httputil"
)

// POST .../images/{i}/versions — create a styling version (gets the next
// sequential version number from the project counter).
// GET  .../images/{i}/versions — list the image's versions.
func handleVersions(w http.ResponseWriter, r *http.Request, orgID, projectID, imageID string) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			Name string `json:"name,omitempty"`
		}
		if r.ContentLength > 0 {
			if err := httputil.DecodeJSON(r, &req); err != nil {
				httputil.RespondAppError(w, err)
				return
			}
		}
		version, err := repos.Versions.Create(r.Context(), orgID, projectID, imageID, req.Name)
		if err != nil {
			httputil.RespondAppError(w, err)
			return
		}
		httputil.RespondJSON(w, http.StatusCreated, version)

	case http.MethodGet:
		limit, cursor := pageParams(r)
		versions, next, err := repos.Versions.ListByImage(r.Context(), imageID, limit, cursor)
		if err != nil {
			httputil.RespondAppError(w, err)
			return
		}
		httputil.RespondJSON(w, http.StatusOK, listResponse{Items: versions, NextCursor: next})

	default:
		httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// GET .../versions/{v} — the pollable version record.
func handleVersionByID(w http.ResponseWriter, r *http.Request, imageID, versionID string) {
	if r.Method != http.MethodGet {
		httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	version, err := repos.Versions.Get(r.Context(), imageID, versionID)
	if err != nil {
		httputil.RespondAppError(w, err)
		return
	}
	if version == nil {
		httputil.Error(w, http.StatusNotFound, "styling version not found")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, version)
}

// POST .../versions/{v}/render — dispatch a render job. Requires the
// image's segmentation to be DONE.
func handleRender(w http.ResponseWriter, r *http.Request, orgID, projectID, imageID, versionID string) {
	if r.Method != http.MethodPost {
		httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Quality    string `json:"quality,omitempty"`
		Priority   int    `json:"priority,omitempty"`
		MaxRetries int    `json:"maxRetries,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.RespondAppError(w, err)
			return
		}
	}

	job, err := dispatcher.StartRender(r.Context(), dispatch.RenderRequest{
		OrganizationID: orgID,
		ProjectID:      projectID,
		ImageID:        imageID,
		VersionID:      versionID,
		Quality:        req.Quality,
		Priority:       req.Priority,
		MaxRetries:     req.MaxRetries,
	})
	if err != nil {
		httputil.RespondAppError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusAccepted, job)
}

// POST .../versions/{v}/materials — assign a material to a region.
// GET  .../versions/{v}/materials — list the version's assignments.
func handleVersionMaterials(w http.ResponseWriter, r *http.Request, versionID string) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			RegionID   string `json:"regionId"`
			MaterialID string `json:"materialId"`
		}
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.RespondAppError(w, err)
			return
		}
		if req.RegionID == "" || req.MaterialID == "" {
			httputil.Error(w, http.StatusBadRequest, "regionId and materialId are required")
			return
		}
		assignment, err := repos.RegionMaterials.Assign(r.Context(), versionID, req.RegionID, req.MaterialID)
		if err != nil {
			httputil.RespondAppError(w, err)
			return
		}
		httputil.RespondJSON(w, http.StatusCreated, assignment)

	case http.MethodGet:
		limit, cursor := pageParams(r)
		assignments, next, err := repos.RegionMaterials.ListByVersion(r.Context(), versionID, limit, cursor)
		if err != nil {
			httputil.RespondAppError(w, err)
			return
		}
		httputil.RespondJSON(w, http.StatusOK, listResponse{Items: assignments, NextCursor: next})

	default:
		httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
