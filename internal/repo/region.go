package repo

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/facadelab/restyle/internal/keys"
	"github.com/facadelab/restyle/internal/model"
	"github.com/facadelab/restyle/internal/store"
)

// RegionRepo manages segmented areas of a project image. Regions are
// bulk-created from segmentation worker callbacks.
type RegionRepo struct {
	store store.TableStore
}

// CreateBatch writes all regions for an image in one batch, assigning ids
// and timestamps. The store retries unprocessed batch items with backoff;
// leftovers surface as a PartialFailure.
func (r *RegionRepo) CreateBatch(ctx context.Context, imageID string, regions []*model.Region) ([]*model.Region, error) {
	if len(regions) == 0 {
		return nil, nil
	}

	now := nowISO()
	puts := make([]store.PutInput, 0, len(regions))
	for _, region := range regions {
		region.ID = newID()
		region.ImageID = imageID
		region.CreatedAt = now
		region.UpdatedAt = now
		puts = append(puts, store.PutInput{
			PK:   keys.RegionPK(imageID),
			SK:   keys.RegionSK(region.ID),
			Data: region,
		})
	}

	if err := r.store.BatchPut(ctx, puts); err != nil {
		return nil, err
	}
	log.Debug().Str("imageId", imageID).Int("count", len(regions)).Msg("Regions created")
	return regions, nil
}

// Get retrieves a region. Returns nil, nil if not found.
func (r *RegionRepo) Get(ctx context.Context, imageID, regionID string) (*model.Region, error) {
	item, found, err := r.store.Get(ctx, keys.RegionPK(imageID), keys.RegionSK(regionID))
	if err != nil || !found {
		return nil, err
	}
	return unmarshalRegion(item, imageID)
}

// ListByImage pages through an image's regions.
func (r *RegionRepo) ListByImage(ctx context.Context, imageID string, limit int32, cursor string) ([]*model.Region, string, error) {
	items, next, err := r.store.Query(ctx, store.QueryInput{
		PK:       keys.RegionPK(imageID),
		SKPrefix: keys.RegionPrefix,
		Limit:    normalizeLimit(limit),
		Cursor:   cursor,
	})
	if err != nil {
		return nil, "", err
	}
	regions := make([]*model.Region, 0, len(items))
	for _, item := range items {
		region, err := unmarshalRegion(item, imageID)
		if err != nil {
			return nil, "", err
		}
		regions = append(regions, region)
	}
	return regions, next, nil
}

func unmarshalRegion(item store.Item, imageID string) (*model.Region, error) {
	var region model.Region
	if err := store.Unmarshal(item, &region); err != nil {
		return nil, err
	}
	region.ImageID = imageID
	if sk, ok := store.StringAttr(item, "SK"); ok {
		region.ID = keys.StripPrefix(sk, keys.RegionPrefix)
	}
	return &region, nil
}
