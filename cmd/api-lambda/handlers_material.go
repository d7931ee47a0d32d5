package main

import (
	"net/http"
	"strings"

	"github.com/facadelab/restyle/internal/httputil"
	"github.com/facadelab/restyle/internal/model"
)

// POST /api/materials — add a catalog entry.
// GET  /api/materials — list the catalog.
func handleMaterials(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req model.Material
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.RespondAppError(w, err)
			return
		}
		if req.Name == "" || req.TextureURL == "" {
			httputil.Error(w, http.StatusBadRequest, "name and textureUrl are required")
			return
		}
		material, err := repos.Materials.Create(r.Context(), &req)
		if err != nil {
			httputil.RespondAppError(w, err)
			return
		}
		httputil.RespondJSON(w, http.StatusCreated, material)

	case http.MethodGet:
		limit, cursor := pageParams(r)
		materials, next, err := repos.Materials.List(r.Context(), limit, cursor)
		if err != nil {
			httputil.RespondAppError(w, err)
			return
		}
		httputil.RespondJSON(w, http.StatusOK, listResponse{Items: materials, NextCursor: next})

	default:
		httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// GET /api/materials/{materialId}
func handleMaterialByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	materialID := strings.TrimPrefix(r.URL.Path, "/api/materials/")
	if materialID == "" || strings.Contains(materialID, "/") {
		httputil.Error(w, http.StatusNotFound, "not found")
		return
	}
	material, err := repos.Materials.Get(r.Context(), materialID)
	if err != nil {
		httputil.RespondAppError(w, err)
		return
	}
	if material == nil {
		httputil.Error(w, http.StatusNotFound, "material not found")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, material)
}
