package main

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/facadelab/restyle/internal/dispatch"
	"github.com/facadelab/restyle/internal/httputil"
	"github.com/facadelab/restyle/internal/s3util"
)

// POST /api/orgs/{o}/projects/{p}/images — register a photo and return a
// presigned upload URL for the browser to PUT the file with.
// GET  /api/orgs/{o}/projects/{p}/images — list the project's photos.
func handleImages(w http.ResponseWriter, r *http.Request, orgID, projectID string) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			FileName    string `json:"fileName"`
			ContentType string `json:"contentType,omitempty"`
		}
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.RespondAppError(w, err)
			return
		}
		if req.FileName == "" {
			httputil.Error(w, http.StatusBadRequest, "fileName is required")
			return
		}
		if req.ContentType == "" {
			req.ContentType = "image/jpeg"
		}

		image, err := repos.Images.Create(r.Context(), orgID, projectID, req.FileName, "")
		if err != nil {
			httputil.RespondAppError(w, err)
			return
		}

		key := s3util.PhotoKey(projectID, image.ID, req.FileName)
		uploadURL, err := s3util.PresignUpload(r.Context(), media.Presigner, media.Bucket, key, req.ContentType)
		if err != nil {
			httputil.Error(w, http.StatusInternalServerError, "failed to create upload URL", err.Error())
			return
		}

		log.Info().Str("imageId", image.ID).Str("projectId", projectID).Msg("Image registered")
		httputil.RespondJSON(w, http.StatusCreated, map[string]interface{}{
			"image":     image,
			"uploadUrl": uploadURL,
			"objectKey": key,
		})

	case http.MethodGet:
		limit, cursor := pageParams(r)
		images, next, err := repos.Images.ListByProject(r.Context(), projectID, limit, cursor)
		if err != nil {
			httputil.RespondAppError(w, err)
			return
		}
		httputil.RespondJSON(w, http.StatusOK, listResponse{Items: images, NextCursor: next})

	default:
		httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// GET /api/orgs/{o}/projects/{p}/images/{i} — the pollable image record.
func handleImageByID(w http.ResponseWriter, r *http.Request, orgID, projectID, imageID string) {
	if r.Method != http.MethodGet {
		httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	image, err := repos.Images.Get(r.Context(), projectID, imageID)
	if err != nil {
		httputil.RespondAppError(w, err)
		return
	}
	if image == nil {
		httputil.Error(w, http.StatusNotFound, "image not found")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, image)
}

// GET /api/orgs/{o}/projects/{p}/images/{i}/download — presigned GET URL
// for the stored photo, good for one client session.
func handleImageDownload(w http.ResponseWriter, r *http.Request, projectID, imageID string) {
	if r.Method != http.MethodGet {
		httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	image, err := repos.Images.Get(r.Context(), projectID, imageID)
	if err != nil {
		httputil.RespondAppError(w, err)
		return
	}
	if image == nil {
		httputil.Error(w, http.StatusNotFound, "image not found")
		return
	}

	key := s3util.PhotoKey(projectID, imageID, image.FileName)
	downloadURL, err := s3util.PresignDownload(r.Context(), media.Presigner, media.Bucket, key)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "failed to create download URL", err.Error())
		return
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]string{
		"downloadUrl": downloadURL,
		"objectKey":   key,
	})
}

// POST /api/orgs/{o}/projects/{p}/images/{i}/confirm — the browser calls
// this after finishing its presigned PUT. Presigned uploads cannot carry
// object tags, so the cost-allocation tag is applied here.
func handleImageConfirm(w http.ResponseWriter, r *http.Request, projectID, imageID string) {
	if r.Method != http.MethodPost {
		httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	image, err := repos.Images.Get(r.Context(), projectID, imageID)
	if err != nil {
		httputil.RespondAppError(w, err)
		return
	}
	if image == nil {
		httputil.Error(w, http.StatusNotFound, "image not found")
		return
	}

	key := s3util.PhotoKey(projectID, imageID, image.FileName)
	if err := s3util.TagObject(r.Context(), media.Client, media.Bucket, key); err != nil {
		httputil.Error(w, http.StatusInternalServerError, "failed to tag uploaded object", err.Error())
		return
	}
	log.Info().Str("imageId", imageID).Str("objectKey", key).Msg("Upload confirmed")
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/orgs/{o}/projects/{p}/images/{i}/segment — dispatch a
// segmentation job for the photo.
func handleSegment(w http.ResponseWriter, r *http.Request, orgID, projectID, imageID string) {
	if r.Method != http.MethodPost {
		httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Priority   int `json:"priority,omitempty"`
		MaxRetries int `json:"maxRetries,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.RespondAppError(w, err)
			return
		}
	}

	job, err := dispatcher.StartSegmentation(r.Context(), dispatch.SegmentationRequest{
		OrganizationID: orgID,
		ProjectID:      projectID,
		ImageID:        imageID,
		Priority:       req.Priority,
		MaxRetries:     req.MaxRetries,
	})
	if err != nil {
		httputil.RespondAppError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusAccepted, job)
}

// GET /api/orgs/{o}/projects/{p}/images/{i}/regions
func handleRegions(w http.ResponseWriter, r *http.Request, imageID string) {
	if r.Method != http.MethodGet {
		httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit, cursor := pageParams(r)
	regions, next, err := repos.Regions.ListByImage(r.Context(), imageID, limit, cursor)
	if err != nil {
		httputil.RespondAppError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, listResponse{Items: regions, NextCursor: next})
}
