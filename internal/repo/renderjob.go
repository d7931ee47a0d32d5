package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/facadelab/restyle/internal/apperr"
	"github.com/facadelab/restyle/internal/keys"
	"github.com/facadelab/restyle/internal/model"
	"github.com/facadelab/restyle/internal/store"
)

// JobTTL is how long RenderJob items live before the table TTL reclaims
// them. Jobs are never deleted explicitly; they are audit records with a
// bounded shelf life.
const JobTTL = 7 * 24 * time.Hour

// Job id prefixes per job type.
const (
	segJobPrefix    = "seg-"
	renderJobPrefix = "rnd-"
)

// RenderJobRepo manages async AI work records. Jobs are partitioned by
// their owning entity (the image for segmentation, the version for
// render), so every operation takes a model.JobOwner — there is no
// lookup by job id alone.
type RenderJobRepo struct {
	store store.TableStore
}

// CreateJobInput carries the caller-supplied job attributes.
type CreateJobInput struct {
	Owner              model.JobOwner
	JobType            model.JobType
	Priority           int
	MaxRetries         int
	InputPayload       json.RawMessage
	WebhookCallbackURL string
}

// Create writes a new PENDING job row under the owner's partition.
func (r *RenderJobRepo) Create(ctx context.Context, in CreateJobInput) (*model.RenderJob, error) {
	prefix := segJobPrefix
	if in.JobType == model.JobTypeRender {
		prefix = renderJobPrefix
	}

	now := nowISO()
	job := &model.RenderJob{
		ID:                 newJobID(prefix),
		Owner:              in.Owner,
		JobType:            in.JobType,
		Status:             model.StatusPending,
		Priority:           in.Priority,
		MaxRetries:         in.MaxRetries,
		InputPayload:       in.InputPayload,
		WebhookCallbackURL: in.WebhookCallbackURL,
		CreatedAt:          now,
		UpdatedAt:          now,
		ExpiresAt:          time.Now().Add(JobTTL).Unix(),
	}

	pk, err := ownerPK(in.Owner)
	if err != nil {
		return nil, err
	}
	err = r.store.Put(ctx, store.PutInput{
		PK:        pk,
		SK:        keys.JobSK(job.ID),
		Data:      job,
		Condition: store.NotExists("PK"),
	})
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("jobId", job.ID).
		Str("jobType", string(job.JobType)).
		Str("ownerKind", string(in.Owner.Kind)).
		Str("ownerId", in.Owner.ID).
		Msg("Render job created")
	return job, nil
}

// GetByOwner retrieves a job under its owner's partition. Returns
// nil, nil if not found.
func (r *RenderJobRepo) GetByOwner(ctx context.Context, owner model.JobOwner, jobID string) (*model.RenderJob, error) {
	pk, err := ownerPK(owner)
	if err != nil {
		return nil, err
	}
	item, found, err := r.store.Get(ctx, pk, keys.JobSK(jobID))
	if err != nil || !found {
		return nil, err
	}
	var job model.RenderJob
	if err := store.Unmarshal(item, &job); err != nil {
		return nil, err
	}
	job.ID = jobID
	job.Owner = owner
	return &job, nil
}

// MarkProcessing transitions a job to PROCESSING, optionally recording
// the worker's execution id.
func (r *RenderJobRepo) MarkProcessing(ctx context.Context, owner model.JobOwner, jobID, executionID string) error {
	set := map[string]interface{}{
		"jobStatus": model.StatusProcessing,
		"updatedAt": nowISO(),
	}
	if executionID != "" {
		set["externalExecutionId"] = executionID
	}
	return r.updateJob(ctx, owner, jobID, set)
}

// Complete transitions a job to DONE with its result URL.
func (r *RenderJobRepo) Complete(ctx context.Context, owner model.JobOwner, jobID, resultURL string) error {
	return r.updateJob(ctx, owner, jobID, map[string]interface{}{
		"jobStatus": model.StatusDone,
		"resultUrl": resultURL,
		"updatedAt": nowISO(),
	})
}

// Fail transitions a job to FAILED with an error code and message.
func (r *RenderJobRepo) Fail(ctx context.Context, owner model.JobOwner, jobID, errorCode, errorMessage string) error {
	return r.updateJob(ctx, owner, jobID, map[string]interface{}{
		"jobStatus":    model.StatusFailed,
		"errorCode":    errorCode,
		"errorMessage": errorMessage,
		"updatedAt":    nowISO(),
	})
}

func (r *RenderJobRepo) updateJob(ctx context.Context, owner model.JobOwner, jobID string, set map[string]interface{}) error {
	pk, err := ownerPK(owner)
	if err != nil {
		return err
	}
	_, err = r.store.Update(ctx, store.UpdateInput{
		PK:  pk,
		SK:  keys.JobSK(jobID),
		Set: set,
	})
	return err
}

// ownerPK maps a job owner to its partition key.
func ownerPK(owner model.JobOwner) (string, error) {
	switch owner.Kind {
	case model.OwnerImage:
		return keys.ImagePK(owner.ID), nil
	case model.OwnerVersion:
		return keys.VersionPK(owner.ID), nil
	default:
		return "", apperr.New(apperr.KindValidation, fmt.Sprintf("unknown job owner kind %q", owner.Kind))
	}
}
