package repo

import (
	"context"

	"github.com/facadelab/restyle/internal/keys"
	"github.com/facadelab/restyle/internal/model"
	"github.com/facadelab/restyle/internal/store"
)

// RegionMaterialRepo manages material assignments within a styling
// version. The GSI3 keys make every version using a given material
// discoverable from the material side.
type RegionMaterialRepo struct {
	store store.TableStore
}

// Assign records that a region is styled with a material in a version.
func (r *RegionMaterialRepo) Assign(ctx context.Context, versionID, regionID, materialID string) (*model.StylingRegionMaterial, error) {
	now := nowISO()
	assignment := &model.StylingRegionMaterial{
		ID:         newID(),
		VersionID:  versionID,
		RegionID:   regionID,
		MaterialID: materialID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := r.store.Put(ctx, store.PutInput{
		PK: keys.RegionMaterialPK(versionID),
		SK: keys.RegionMaterialSK(assignment.ID),
		GSI: map[string]string{
			"GSI3PK": keys.MaterialPK(materialID),
			"GSI3SK": keys.VersionSK(versionID),
		},
		Data:      assignment,
		Condition: store.NotExists("PK"),
	})
	if err != nil {
		return nil, err
	}
	return assignment, nil
}

// ListByVersion pages through a version's material assignments.
func (r *RegionMaterialRepo) ListByVersion(ctx context.Context, versionID string, limit int32, cursor string) ([]*model.StylingRegionMaterial, string, error) {
	items, next, err := r.store.Query(ctx, store.QueryInput{
		PK:       keys.RegionMaterialPK(versionID),
		SKPrefix: keys.RegionMatPrefix,
		Limit:    normalizeLimit(limit),
		Cursor:   cursor,
	})
	if err != nil {
		return nil, "", err
	}
	assignments := make([]*model.StylingRegionMaterial, 0, len(items))
	for _, item := range items {
		var a model.StylingRegionMaterial
		if err := store.Unmarshal(item, &a); err != nil {
			return nil, "", err
		}
		a.VersionID = versionID
		if sk, ok := store.StringAttr(item, "SK"); ok {
			a.ID = keys.StripPrefix(sk, keys.RegionMatPrefix)
		}
		assignments = append(assignments, &a)
	}
	return assignments, next, nil
}

// ListVersionsByMaterial returns the ids of versions that use a material,
// via the GSI3 reverse lookup.
func (r *RegionMaterialRepo) ListVersionsByMaterial(ctx context.Context, materialID string, limit int32, cursor string) ([]string, string, error) {
	items, next, err := r.store.Query(ctx, store.QueryInput{
		Index:    store.GSI3,
		PK:       keys.MaterialPK(materialID),
		SKPrefix: keys.VersionPrefix,
		Limit:    normalizeLimit(limit),
		Cursor:   cursor,
	})
	if err != nil {
		return nil, "", err
	}
	seen := make(map[string]bool, len(items))
	var versionIDs []string
	for _, item := range items {
		sk, ok := store.StringAttr(item, "GSI3SK")
		if !ok {
			continue
		}
		id := keys.StripPrefix(sk, keys.VersionPrefix)
		if !seen[id] {
			seen[id] = true
			versionIDs = append(versionIDs, id)
		}
	}
	return versionIDs, next, nil
}
