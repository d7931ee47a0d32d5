package repo

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/facadelab/restyle/internal/keys"
	"github.com/facadelab/restyle/internal/model"
	"github.com/facadelab/restyle/internal/store"
)

// ImageRepo manages uploaded building photos. The segmentationStatus
// field mirrors the image's segmentation job and is what clients poll.
type ImageRepo struct {
	store store.TableStore
}

// Create registers an uploaded photo with segmentationStatus PENDING and
// bumps the project's imageCount. The counter update runs first: it fails
// with NotFound when the project does not exist, which doubles as the
// parent check.
func (r *ImageRepo) Create(ctx context.Context, orgID, projectID, fileName, imageURL string) (*model.ProjectImage, error) {
	_, err := r.store.Update(ctx, store.UpdateInput{
		PK:  keys.ProjectPK(orgID),
		SK:  keys.ProjectSK(projectID),
		Add: map[string]int{"imageCount": 1},
		Set: map[string]interface{}{"updatedAt": nowISO()},
	})
	if err != nil {
		return nil, err
	}

	now := nowISO()
	image := &model.ProjectImage{
		ID:                 newID(),
		ProjectID:          projectID,
		FileName:           fileName,
		ImageURL:           imageURL,
		SegmentationStatus: model.StatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	err = r.store.Put(ctx, store.PutInput{
		PK:        keys.ImagePK(projectID),
		SK:        keys.ImageSK(image.ID),
		Data:      image,
		Condition: store.NotExists("PK"),
	})
	if err != nil {
		return nil, err
	}

	log.Debug().Str("projectId", projectID).Str("imageId", image.ID).Str("fileName", fileName).Msg("Project image created")
	return image, nil
}

// Get retrieves an image. Returns nil, nil if not found.
func (r *ImageRepo) Get(ctx context.Context, projectID, imageID string) (*model.ProjectImage, error) {
	item, found, err := r.store.Get(ctx, keys.ImagePK(projectID), keys.ImageSK(imageID))
	if err != nil || !found {
		return nil, err
	}
	return unmarshalImage(item, projectID)
}

// ListByProject pages through a project's images.
func (r *ImageRepo) ListByProject(ctx context.Context, projectID string, limit int32, cursor string) ([]*model.ProjectImage, string, error) {
	items, next, err := r.store.Query(ctx, store.QueryInput{
		PK:       keys.ImagePK(projectID),
		SKPrefix: keys.ImagePrefix,
		Limit:    normalizeLimit(limit),
		Cursor:   cursor,
	})
	if err != nil {
		return nil, "", err
	}
	images := make([]*model.ProjectImage, 0, len(items))
	for _, item := range items {
		image, err := unmarshalImage(item, projectID)
		if err != nil {
			return nil, "", err
		}
		images = append(images, image)
	}
	return images, next, nil
}

// MarkSegmenting flips segmentationStatus to PROCESSING. The conditional
// write is the single source of truth against concurrent dispatches: it
// fails with Conflict when the image is already PROCESSING.
func (r *ImageRepo) MarkSegmenting(ctx context.Context, projectID, imageID string) error {
	_, err := r.store.Update(ctx, store.UpdateInput{
		PK: keys.ImagePK(projectID),
		SK: keys.ImageSK(imageID),
		Set: map[string]interface{}{
			"segmentationStatus": model.StatusProcessing,
			"errorMessage":       "",
			"updatedAt":          nowISO(),
		},
		Condition: store.NotEquals("segmentationStatus", model.StatusProcessing),
	})
	return err
}

// CompleteSegmentation records a successful segmentation result.
func (r *ImageRepo) CompleteSegmentation(ctx context.Context, projectID, imageID, segmentationURL string) error {
	_, err := r.store.Update(ctx, store.UpdateInput{
		PK: keys.ImagePK(projectID),
		SK: keys.ImageSK(imageID),
		Set: map[string]interface{}{
			"segmentationStatus": model.StatusDone,
			"segmentationUrl":    segmentationURL,
			"updatedAt":          nowISO(),
		},
	})
	return err
}

// FailSegmentation records a failed segmentation with its error message.
func (r *ImageRepo) FailSegmentation(ctx context.Context, projectID, imageID, errorMessage string) error {
	_, err := r.store.Update(ctx, store.UpdateInput{
		PK: keys.ImagePK(projectID),
		SK: keys.ImageSK(imageID),
		Set: map[string]interface{}{
			"segmentationStatus": model.StatusFailed,
			"errorMessage":       errorMessage,
			"updatedAt":          nowISO(),
		},
	})
	return err
}

func unmarshalImage(item store.Item, projectID string) (*model.ProjectImage, error) {
	var image model.ProjectImage
	if err := store.Unmarshal(item, &image); err != nil {
		return nil, err
	}
	image.ProjectID = projectID
	if sk, ok := store.StringAttr(item, "SK"); ok {
		image.ID = keys.StripPrefix(sk, keys.ImagePrefix)
	}
	return &image, nil
}
