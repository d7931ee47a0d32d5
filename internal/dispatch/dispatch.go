// Package dispatch starts async AI jobs: it records the job, flips the
// owning entity to PROCESSING, and hands the work to an external worker
// over HTTP. The worker reports the outcome later through the webhook
// correlator; nothing in this package waits for results.
package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/facadelab/restyle/internal/apperr"
	"github.com/facadelab/restyle/internal/metrics"
	"github.com/facadelab/restyle/internal/model"
	"github.com/facadelab/restyle/internal/repo"
)

// Worker failure codes recorded on jobs this package marks FAILED.
const (
	codeDispatchConflict  = "DISPATCH_CONFLICT"
	codeWorkerUnavailable = "WORKER_UNAVAILABLE"
)

// Dispatcher coordinates job creation, entity status flips, and worker
// submission for both job types.
type Dispatcher struct {
	repos           *repo.Repos
	segmentation    *WorkerClient
	render          *WorkerClient
	callbackBaseURL string
}

// New creates a Dispatcher. callbackBaseURL is the public base URL of the
// callback Lambda; per-type callback paths are appended to it.
func New(repos *repo.Repos, segmentation, render *WorkerClient, callbackBaseURL string) *Dispatcher {
	return &Dispatcher{
		repos:           repos,
		segmentation:    segmentation,
		render:          render,
		callbackBaseURL: callbackBaseURL,
	}
}

// SegmentationRequest identifies the image to segment.
type SegmentationRequest struct {
	OrganizationID string
	ProjectID      string
	ImageID        string
	Priority       int
	MaxRetries     int
}

// RenderRequest identifies the styling version to render. Quality is an
// optional worker-side rendering preset ("draft", "final").
type RenderRequest struct {
	OrganizationID string
	ProjectID      string
	ImageID        string
	VersionID      string
	Quality        string
	Priority       int
	MaxRetries     int
}

// segmentationPayload is the body POSTed to the segmentation worker.
type segmentationPayload struct {
	JobID          string            `json:"jobId"`
	ImageID        string            `json:"imageId"`
	ProjectID      string            `json:"projectId"`
	OrganizationID string            `json:"organizationId"`
	ImageURL       string            `json:"imageUrl,omitempty"`
	CallbackURL    string            `json:"callbackUrl"`
	Metadata       map[string]string `json:"metadata"`
}

// renderPayload is the body POSTed to the render worker.
type renderPayload struct {
	JobID          string             `json:"jobId"`
	VersionID      string             `json:"versionId"`
	ImageID        string             `json:"imageId"`
	ProjectID      string             `json:"projectId"`
	OrganizationID string             `json:"organizationId"`
	ImageURL       string             `json:"imageUrl,omitempty"`
	Quality        string             `json:"quality,omitempty"`
	CallbackURL    string             `json:"callbackUrl"`
	Metadata       map[string]string  `json:"metadata"`
	Assignments    []renderAssignment `json:"assignments"`
}

// renderAssignment tells the render worker which material goes on which
// region.
type renderAssignment struct {
	RegionID   string `json:"regionId"`
	MaterialID string `json:"materialId"`
}

// StartSegmentation dispatches a segmentation job for an image.
//
// Postcondition on success: exactly one new PROCESSING job exists for the
// image and the image shows segmentationStatus PROCESSING. A concurrent
// dispatch loses the conditional status flip and gets Conflict.
func (d *Dispatcher) StartSegmentation(ctx context.Context, req SegmentationRequest) (*model.RenderJob, error) {
	startTime := time.Now()

	image, err := d.repos.Images.Get(ctx, req.ProjectID, req.ImageID)
	if err != nil {
		return nil, err
	}
	if image == nil {
		return nil, apperr.New(apperr.KindNotFound, "image not found")
	}
	if image.SegmentationStatus == model.StatusProcessing {
		return nil, apperr.New(apperr.KindConflict, "segmentation already in progress")
	}

	payload := &segmentationPayload{
		ImageID:        req.ImageID,
		ProjectID:      req.ProjectID,
		OrganizationID: req.OrganizationID,
		ImageURL:       image.ImageURL,
		CallbackURL:    d.callbackBaseURL + "/callbacks/segmentation",
		Metadata: map[string]string{
			"imageId":   req.ImageID,
			"projectId": req.ProjectID,
		},
	}

	owner := model.ImageOwner(req.ImageID)
	job, err := d.createJob(ctx, owner, model.JobTypeSegmentation, req.Priority, req.MaxRetries, payload, payload.CallbackURL)
	if err != nil {
		return nil, err
	}
	payload.JobID = job.ID

	if err := d.repos.Images.MarkSegmenting(ctx, req.ProjectID, req.ImageID); err != nil {
		return nil, d.loseDispatchRace(ctx, owner, job.ID, err)
	}

	executionID, err := d.segmentation.Submit(ctx, job.ID, payload)
	if err != nil {
		d.failDispatch(ctx, owner, job.ID, err)
		if ferr := d.repos.Images.FailSegmentation(ctx, req.ProjectID, req.ImageID, workerFailureMessage); ferr != nil {
			log.Error().Err(ferr).Str("imageId", req.ImageID).Msg("Failed to mark image FAILED after worker error")
		}
		emitDispatch(model.JobTypeSegmentation, "failed", time.Since(startTime))
		return nil, apperr.Wrap(apperr.KindServiceUnavailable, "segmentation worker unavailable", err)
	}

	d.markDispatched(ctx, owner, job, executionID)
	emitDispatch(model.JobTypeSegmentation, "dispatched", time.Since(startTime))
	log.Info().
		Str("jobId", job.ID).
		Str("imageId", req.ImageID).
		Str("projectId", req.ProjectID).
		Msg("Segmentation job dispatched")
	return job, nil
}

// StartRender dispatches a render job for a styling version. The version's
// image must have completed segmentation first.
func (d *Dispatcher) StartRender(ctx context.Context, req RenderRequest) (*model.RenderJob, error) {
	startTime := time.Now()

	version, err := d.repos.Versions.Get(ctx, req.ImageID, req.VersionID)
	if err != nil {
		return nil, err
	}
	if version == nil {
		return nil, apperr.New(apperr.KindNotFound, "styling version not found")
	}
	image, err := d.repos.Images.Get(ctx, req.ProjectID, req.ImageID)
	if err != nil {
		return nil, err
	}
	if image == nil {
		return nil, apperr.New(apperr.KindNotFound, "image not found")
	}
	if image.SegmentationStatus != model.StatusDone {
		return nil, apperr.New(apperr.KindPreconditionFailed, "image segmentation has not completed")
	}
	if version.RenderStatus == model.StatusProcessing {
		return nil, apperr.New(apperr.KindConflict, "render already in progress")
	}

	assignments, err := d.loadAssignments(ctx, req.VersionID)
	if err != nil {
		return nil, err
	}

	payload := &renderPayload{
		VersionID:      req.VersionID,
		ImageID:        req.ImageID,
		ProjectID:      req.ProjectID,
		OrganizationID: req.OrganizationID,
		ImageURL:       image.ImageURL,
		Quality:        req.Quality,
		CallbackURL:    d.callbackBaseURL + "/callbacks/render",
		Metadata: map[string]string{
			"versionId": req.VersionID,
			"imageId":   req.ImageID,
			"projectId": req.ProjectID,
		},
		Assignments: assignments,
	}

	owner := model.VersionOwner(req.VersionID)
	job, err := d.createJob(ctx, owner, model.JobTypeRender, req.Priority, req.MaxRetries, payload, payload.CallbackURL)
	if err != nil {
		return nil, err
	}
	payload.JobID = job.ID

	if err := d.repos.Versions.MarkRendering(ctx, req.ImageID, req.VersionID); err != nil {
		return nil, d.loseDispatchRace(ctx, owner, job.ID, err)
	}

	executionID, err := d.render.Submit(ctx, job.ID, payload)
	if err != nil {
		d.failDispatch(ctx, owner, job.ID, err)
		if ferr := d.repos.Versions.FailRender(ctx, req.ImageID, req.VersionID, workerFailureMessage); ferr != nil {
			log.Error().Err(ferr).Str("versionId", req.VersionID).Msg("Failed to mark version FAILED after worker error")
		}
		emitDispatch(model.JobTypeRender, "failed", time.Since(startTime))
		return nil, apperr.Wrap(apperr.KindServiceUnavailable, "render worker unavailable", err)
	}

	d.markDispatched(ctx, owner, job, executionID)
	emitDispatch(model.JobTypeRender, "dispatched", time.Since(startTime))
	log.Info().
		Str("jobId", job.ID).
		Str("versionId", req.VersionID).
		Str("imageId", req.ImageID).
		Msg("Render job dispatched")
	return job, nil
}

const workerFailureMessage = "worker did not accept the job"

// createJob writes the PENDING job row before anything else, so a crash
// mid-dispatch leaves a record of intent rather than a silent loss.
func (d *Dispatcher) createJob(ctx context.Context, owner model.JobOwner, jobType model.JobType, priority, maxRetries int, payload interface{}, callbackURL string) (*model.RenderJob, error) {
	input, err := json.Marshal(payload)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "marshal job payload", err)
	}
	return d.repos.RenderJobs.Create(ctx, repo.CreateJobInput{
		Owner:              owner,
		JobType:            jobType,
		Priority:           priority,
		MaxRetries:         maxRetries,
		InputPayload:       input,
		WebhookCallbackURL: callbackURL,
	})
}

// loseDispatchRace handles a failed PROCESSING flip. A Conflict means a
// concurrent dispatch won the conditional write; the freshly created
// PENDING job row is marked FAILED best-effort (TTL reclaims it anyway).
func (d *Dispatcher) loseDispatchRace(ctx context.Context, owner model.JobOwner, jobID string, err error) error {
	if apperr.KindOf(err) == apperr.KindConflict {
		if ferr := d.repos.RenderJobs.Fail(ctx, owner, jobID, codeDispatchConflict, "lost dispatch race"); ferr != nil {
			log.Warn().Err(ferr).Str("jobId", jobID).Msg("Failed to mark orphaned job FAILED")
		}
		return apperr.New(apperr.KindConflict, "job already in progress")
	}
	return err
}

func (d *Dispatcher) failDispatch(ctx context.Context, owner model.JobOwner, jobID string, cause error) {
	log.Error().Err(cause).Str("jobId", jobID).Msg("Worker submission failed")
	if err := d.repos.RenderJobs.Fail(ctx, owner, jobID, codeWorkerUnavailable, cause.Error()); err != nil {
		log.Error().Err(err).Str("jobId", jobID).Msg("Failed to mark job FAILED after worker error")
	}
}

func (d *Dispatcher) markDispatched(ctx context.Context, owner model.JobOwner, job *model.RenderJob, executionID string) {
	if err := d.repos.RenderJobs.MarkProcessing(ctx, owner, job.ID, executionID); err != nil {
		// The worker has the job; the row catches up when the callback
		// lands. Log and continue.
		log.Warn().Err(err).Str("jobId", job.ID).Msg("Failed to mark job PROCESSING")
		return
	}
	job.Status = model.StatusProcessing
	job.ExternalExecutionID = executionID
}

// loadAssignments pages through all material assignments for a version.
func (d *Dispatcher) loadAssignments(ctx context.Context, versionID string) ([]renderAssignment, error) {
	var out []renderAssignment
	cursor := ""
	for {
		page, next, err := d.repos.RegionMaterials.ListByVersion(ctx, versionID, 100, cursor)
		if err != nil {
			return nil, err
		}
		for _, a := range page {
			out = append(out, renderAssignment{RegionID: a.RegionID, MaterialID: a.MaterialID})
		}
		if next == "" {
			return out, nil
		}
		cursor = next
	}
}

func emitDispatch(jobType model.JobType, outcome string, elapsed time.Duration) {
	metrics.New().
		Dimension("JobType", string(jobType)).
		Count("JobDispatch").
		Property("outcome", outcome).
		Duration("DispatchLatency", elapsed).
		Flush()
}
