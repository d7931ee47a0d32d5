// Package webhook correlates worker callbacks with their jobs and applies
// the resulting state transitions.
//
// Workers POST a JSON payload signed with X-Webhook-Signature
// ("sha256=<hex-encoded HMAC-SHA256>" over the raw body, using the shared
// secret). The payload does not carry the job's storage partition key;
// the handler recovers the owning entity from metadata.imageId or
// metadata.versionId and looks the job up under it. Callbacks for jobs
// already in a terminal state are acknowledged without any state change,
// which makes replays harmless.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/facadelab/restyle/internal/apperr"
	"github.com/facadelab/restyle/internal/httputil"
	"github.com/facadelab/restyle/internal/metrics"
	"github.com/facadelab/restyle/internal/model"
	"github.com/facadelab/restyle/internal/repo"
)

// maxBodySize is the maximum allowed callback body size (1 MB). A
// segmentation callback carries at most a few hundred region descriptors,
// which stays well under this limit.
const maxBodySize = 1 << 20

// signatureHeader carries the HMAC signature, "sha256=<hex>".
const signatureHeader = "X-Webhook-Signature"

// workerFailedCode is recorded on jobs a worker reports as failed.
const workerFailedCode = "WORKER_FAILED"

// Handler processes worker callbacks. One instance serves both callback
// routes; the route determines the job type.
type Handler struct {
	repos  *repo.Repos
	secret string
}

// NewHandler creates a callback handler. secret is the shared webhook
// HMAC secret; signed callbacks are verified against it.
func NewHandler(repos *repo.Repos, secret string) *Handler {
	return &Handler{repos: repos, secret: secret}
}

// Segmentation handles POST /callbacks/segmentation.
func (h *Handler) Segmentation(w http.ResponseWriter, r *http.Request) {
	h.handleCallback(w, r, model.JobTypeSegmentation)
}

// Render handles POST /callbacks/render.
func (h *Handler) Render(w http.ResponseWriter, r *http.Request) {
	h.handleCallback(w, r, model.JobTypeRender)
}

// callbackPayload is the worker callback body.
type callbackPayload struct {
	JobID     string             `json:"jobId"`
	Success   bool               `json:"success"`
	ResultURL string             `json:"result_url,omitempty"`
	Error     string             `json:"error,omitempty"`
	Metadata  callbackMetadata   `json:"metadata"`
	Regions   []regionDescriptor `json:"regions,omitempty"`
}

// callbackMetadata echoes the correlation ids the dispatcher sent the
// worker.
type callbackMetadata struct {
	ImageID   string `json:"imageId,omitempty"`
	VersionID string `json:"versionId,omitempty"`
	ProjectID string `json:"projectId,omitempty"`
}

// regionDescriptor is one segmented region reported by the segmentation
// worker.
type regionDescriptor struct {
	Label         string            `json:"label"`
	MaskURL       string            `json:"maskUrl"`
	BoundingBox   model.BoundingBox `json:"boundingBox"`
	Area          float64           `json:"area"`
	Confidence    float64           `json:"confidence"`
	PolygonPoints []float64         `json:"polygonPoints,omitempty"`
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request, jobType model.JobType) {
	startTime := time.Now()

	if r.Method != http.MethodPost {
		httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "failed to read body", err.Error())
		return
	}
	defer r.Body.Close()
	if len(body) == 0 {
		httputil.Error(w, http.StatusBadRequest, "empty body")
		return
	}

	// Signature check happens before any state change. An absent header is
	// tolerated as an unverified callback; a present-but-wrong one is not.
	if signature := r.Header.Get(signatureHeader); signature == "" {
		log.Warn().Str("jobType", string(jobType)).Msg("Callback without signature accepted unverified")
	} else if !h.verifySignature(body, signature) {
		log.Warn().Str("jobType", string(jobType)).Msg("Callback signature mismatch")
		emitCallback(jobType, "rejected", time.Since(startTime))
		httputil.Error(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var payload callbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return
	}

	outcome, err := h.apply(r.Context(), jobType, &payload)
	if err != nil {
		emitCallback(jobType, "error", time.Since(startTime))
		httputil.RespondAppError(w, err)
		return
	}
	emitCallback(jobType, outcome, time.Since(startTime))
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": outcome})
}

// apply performs the callback's state transitions. It returns the outcome
// label for the response body and metrics: "ok" or "ignored".
func (h *Handler) apply(ctx context.Context, jobType model.JobType, payload *callbackPayload) (string, error) {
	owner, err := recoverOwner(jobType, payload.Metadata)
	if err != nil {
		return "", err
	}

	job, err := h.repos.RenderJobs.GetByOwner(ctx, owner, payload.JobID)
	if err != nil {
		return "", err
	}
	if job == nil {
		return "", apperr.New(apperr.KindNotFound, "job not found")
	}
	if job.Status.Terminal() {
		log.Info().
			Str("jobId", job.ID).
			Str("status", string(job.Status)).
			Msg("Callback for terminal job ignored")
		return "ignored", nil
	}

	ids := h.correlationIDs(payload.Metadata, job)

	if !payload.Success {
		return "ok", h.applyFailure(ctx, jobType, owner, job.ID, ids, payload.Error)
	}

	// Entity and region side effects land before the job goes terminal.
	// Job terminality is the replay gate above, so a worker retry after a
	// partial failure must still find the job non-terminal and be able to
	// finish the remaining writes.
	switch jobType {
	case model.JobTypeSegmentation:
		if err := h.createRegions(ctx, ids.imageID, payload.Regions); err != nil {
			return "", err
		}
		if err := h.repos.Images.CompleteSegmentation(ctx, ids.projectID, ids.imageID, payload.ResultURL); err != nil {
			return "", err
		}
		log.Info().
			Str("jobId", job.ID).
			Str("imageId", ids.imageID).
			Int("regions", len(payload.Regions)).
			Msg("Segmentation completed")
	case model.JobTypeRender:
		if err := h.repos.Versions.CompleteRender(ctx, ids.imageID, ids.versionID, payload.ResultURL); err != nil {
			return "", err
		}
		log.Info().
			Str("jobId", job.ID).
			Str("versionId", ids.versionID).
			Msg("Render completed")
	}

	if err := h.repos.RenderJobs.Complete(ctx, owner, job.ID, payload.ResultURL); err != nil {
		return "", err
	}
	return "ok", nil
}

func (h *Handler) applyFailure(ctx context.Context, jobType model.JobType, owner model.JobOwner, jobID string, ids correlationIDs, workerError string) error {
	message := workerError
	if message == "" {
		message = "worker reported failure"
	}
	// Entity flip first, job FAILED last, for the same reason as the
	// success path: a retry must see a non-terminal job until the entity
	// reflects the failure.
	switch jobType {
	case model.JobTypeSegmentation:
		if err := h.repos.Images.FailSegmentation(ctx, ids.projectID, ids.imageID, message); err != nil {
			return err
		}
	case model.JobTypeRender:
		if err := h.repos.Versions.FailRender(ctx, ids.imageID, ids.versionID, message); err != nil {
			return err
		}
	}
	if err := h.repos.RenderJobs.Fail(ctx, owner, jobID, workerFailedCode, message); err != nil {
		return err
	}
	log.Warn().
		Str("jobId", jobID).
		Str("jobType", string(jobType)).
		Str("workerError", message).
		Msg("Job failed by worker callback")
	return nil
}

// createRegions bulk-creates one Region per descriptor. Names number per
// label: two "wall" descriptors become "wall 1" and "wall 2".
func (h *Handler) createRegions(ctx context.Context, imageID string, descriptors []regionDescriptor) error {
	if len(descriptors) == 0 {
		return nil
	}
	labelCounts := make(map[string]int, len(descriptors))
	regions := make([]*model.Region, 0, len(descriptors))
	for _, d := range descriptors {
		labelCounts[d.Label]++
		regions = append(regions, &model.Region{
			Name:          fmt.Sprintf("%s %d", d.Label, labelCounts[d.Label]),
			Label:         d.Label,
			MaskURL:       d.MaskURL,
			BoundingBox:   d.BoundingBox,
			Area:          d.Area,
			Confidence:    d.Confidence,
			PolygonPoints: d.PolygonPoints,
		})
	}
	_, err := h.repos.Regions.CreateBatch(ctx, imageID, regions)
	return err
}

// correlationIDs are the entity ids needed to apply a callback's entity
// transitions.
type correlationIDs struct {
	projectID string
	imageID   string
	versionID string
}

// correlationIDs merges the callback metadata with the ids the dispatcher
// recorded in the job's input payload. Workers are only required to echo
// the owner id; the rest is recoverable from the stored record of intent.
func (h *Handler) correlationIDs(md callbackMetadata, job *model.RenderJob) correlationIDs {
	ids := correlationIDs{
		projectID: md.ProjectID,
		imageID:   md.ImageID,
		versionID: md.VersionID,
	}
	if ids.projectID != "" && ids.imageID != "" && (job.JobType != model.JobTypeRender || ids.versionID != "") {
		return ids
	}

	var stored struct {
		ProjectID string `json:"projectId"`
		ImageID   string `json:"imageId"`
		VersionID string `json:"versionId"`
	}
	if len(job.InputPayload) > 0 {
		if err := json.Unmarshal(job.InputPayload, &stored); err != nil {
			log.Warn().Err(err).Str("jobId", job.ID).Msg("Stored job payload not parseable")
		}
	}
	if ids.projectID == "" {
		ids.projectID = stored.ProjectID
	}
	if ids.imageID == "" {
		ids.imageID = stored.ImageID
	}
	if ids.versionID == "" {
		ids.versionID = stored.VersionID
	}
	return ids
}

// recoverOwner derives the job's owning entity from the callback metadata.
// A callback carrying neither id cannot be correlated.
func recoverOwner(jobType model.JobType, md callbackMetadata) (model.JobOwner, error) {
	if md.ImageID == "" && md.VersionID == "" {
		return model.JobOwner{}, apperr.New(apperr.KindBadRequest, "metadata must carry imageId or versionId")
	}
	switch jobType {
	case model.JobTypeSegmentation:
		if md.ImageID == "" {
			return model.JobOwner{}, apperr.New(apperr.KindBadRequest, "segmentation callback requires metadata.imageId")
		}
		return model.ImageOwner(md.ImageID), nil
	default:
		if md.VersionID == "" {
			return model.JobOwner{}, apperr.New(apperr.KindBadRequest, "render callback requires metadata.versionId")
		}
		return model.VersionOwner(md.VersionID), nil
	}
}

// verifySignature validates the X-Webhook-Signature header value against
// the HMAC-SHA256 of the body using the shared secret.
//
// The header format is: "sha256=<hex-encoded hash>"
//
// Uses hmac.Equal for constant-time comparison.
func (h *Handler) verifySignature(body []byte, header string) bool {
	const prefix = "sha256="
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}

	receivedBytes, err := hex.DecodeString(header[len(prefix):])
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	return hmac.Equal(receivedBytes, mac.Sum(nil))
}

func emitCallback(jobType model.JobType, outcome string, elapsed time.Duration) {
	metrics.New().
		Dimension("JobType", string(jobType)).
		Count("CallbackReceived").
		Property("outcome", outcome).
		Duration("CallbackLatency", elapsed).
		Flush()
}
