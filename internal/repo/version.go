package repo

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/facadelab/restyle/internal/keys"
	"github.com/facadelab/restyle/internal/model"
	"github.com/facadelab/restyle/internal/store"
)

// VersionRepo manages styling attempts on an image. The renderStatus
// field mirrors the version's render job and is what clients poll.
type VersionRepo struct {
	store store.TableStore
}

// Create adds a styling version with renderStatus PENDING. The version
// number is taken from the project's versionCount counter, which the
// atomic increment makes unique per project.
func (r *VersionRepo) Create(ctx context.Context, orgID, projectID, imageID, name string) (*model.StylingVersion, error) {
	projectItem, err := r.store.Update(ctx, store.UpdateInput{
		PK:  keys.ProjectPK(orgID),
		SK:  keys.ProjectSK(projectID),
		Add: map[string]int{"versionCount": 1},
		Set: map[string]interface{}{"updatedAt": nowISO()},
	})
	if err != nil {
		return nil, err
	}
	var project model.Project
	if err := store.Unmarshal(projectItem, &project); err != nil {
		return nil, err
	}

	now := nowISO()
	version := &model.StylingVersion{
		ID:            newID(),
		ImageID:       imageID,
		VersionNumber: project.VersionCount,
		Name:          name,
		RenderStatus:  model.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err = r.store.Put(ctx, store.PutInput{
		PK:        keys.VersionPK(imageID),
		SK:        keys.VersionSK(version.ID),
		Data:      version,
		Condition: store.NotExists("PK"),
	})
	if err != nil {
		return nil, err
	}

	log.Debug().Str("imageId", imageID).Str("versionId", version.ID).Int("versionNumber", version.VersionNumber).Msg("Styling version created")
	return version, nil
}

// Get retrieves a styling version. Returns nil, nil if not found.
func (r *VersionRepo) Get(ctx context.Context, imageID, versionID string) (*model.StylingVersion, error) {
	item, found, err := r.store.Get(ctx, keys.VersionPK(imageID), keys.VersionSK(versionID))
	if err != nil || !found {
		return nil, err
	}
	return unmarshalVersion(item, imageID)
}

// ListByImage pages through an image's styling versions.
func (r *VersionRepo) ListByImage(ctx context.Context, imageID string, limit int32, cursor string) ([]*model.StylingVersion, string, error) {
	items, next, err := r.store.Query(ctx, store.QueryInput{
		PK:       keys.VersionPK(imageID),
		SKPrefix: keys.VersionPrefix,
		Limit:    normalizeLimit(limit),
		Cursor:   cursor,
	})
	if err != nil {
		return nil, "", err
	}
	versions := make([]*model.StylingVersion, 0, len(items))
	for _, item := range items {
		version, err := unmarshalVersion(item, imageID)
		if err != nil {
			return nil, "", err
		}
		versions = append(versions, version)
	}
	return versions, next, nil
}

// MarkRendering flips renderStatus to PROCESSING, failing with Conflict
// when a render is already in flight.
func (r *VersionRepo) MarkRendering(ctx context.Context, imageID, versionID string) error {
	_, err := r.store.Update(ctx, store.UpdateInput{
		PK: keys.VersionPK(imageID),
		SK: keys.VersionSK(versionID),
		Set: map[string]interface{}{
			"renderStatus": model.StatusProcessing,
			"errorMessage": "",
			"updatedAt":    nowISO(),
		},
		Condition: store.NotEquals("renderStatus", model.StatusProcessing),
	})
	return err
}

// CompleteRender records a successful render result.
func (r *VersionRepo) CompleteRender(ctx context.Context, imageID, versionID, renderURL string) error {
	_, err := r.store.Update(ctx, store.UpdateInput{
		PK: keys.VersionPK(imageID),
		SK: keys.VersionSK(versionID),
		Set: map[string]interface{}{
			"renderStatus": model.StatusDone,
			"renderUrl":    renderURL,
			"updatedAt":    nowISO(),
		},
	})
	return err
}

// FailRender records a failed render with its error message.
func (r *VersionRepo) FailRender(ctx context.Context, imageID, versionID, errorMessage string) error {
	_, err := r.store.Update(ctx, store.UpdateInput{
		PK: keys.VersionPK(imageID),
		SK: keys.VersionSK(versionID),
		Set: map[string]interface{}{
			"renderStatus": model.StatusFailed,
			"errorMessage": errorMessage,
			"updatedAt":    nowISO(),
		},
	})
	return err
}

func unmarshalVersion(item store.Item, imageID string) (*model.StylingVersion, error) {
	var version model.StylingVersion
	if err := store.Unmarshal(item, &version); err != nil {
		return nil, err
	}
	version.ImageID = imageID
	if sk, ok := store.StringAttr(item, "SK"); ok {
		version.ID = keys.StripPrefix(sk, keys.VersionPrefix)
	}
	return &version, nil
}
