package repo

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/facadelab/restyle/internal/apperr"
	"github.com/facadelab/restyle/internal/keys"
	"github.com/facadelab/restyle/internal/model"
	"github.com/facadelab/restyle/internal/store"
)

// MaterialRepo manages the material catalog. Materials have no tenant
// partition; they share a constant GSI1 partition so the catalog is
// listable without a table scan.
type MaterialRepo struct {
	store store.TableStore
}

// Create adds a catalog entry.
func (r *MaterialRepo) Create(ctx context.Context, m *model.Material) (*model.Material, error) {
	if m.ID == "" {
		m.ID = newID()
	}
	now := nowISO()
	m.CreatedAt = now
	m.UpdatedAt = now

	err := r.store.Put(ctx, store.PutInput{
		PK:        keys.MaterialPK(m.ID),
		SK:        keys.MaterialSK(m.ID),
		GSI:       materialGSI(m.ID),
		Data:      m,
		Condition: store.NotExists("PK"),
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Get retrieves a material. Returns nil, nil if not found.
func (r *MaterialRepo) Get(ctx context.Context, materialID string) (*model.Material, error) {
	item, found, err := r.store.Get(ctx, keys.MaterialPK(materialID), keys.MaterialSK(materialID))
	if err != nil || !found {
		return nil, err
	}
	return unmarshalMaterial(item)
}

// List pages through the full catalog.
func (r *MaterialRepo) List(ctx context.Context, limit int32, cursor string) ([]*model.Material, string, error) {
	items, next, err := r.store.Query(ctx, store.QueryInput{
		Index:    store.GSI1,
		PK:       keys.MaterialCatalogPK,
		SKPrefix: keys.MaterialPrefix,
		Limit:    normalizeLimit(limit),
		Cursor:   cursor,
	})
	if err != nil {
		return nil, "", err
	}
	materials := make([]*model.Material, 0, len(items))
	for _, item := range items {
		m, err := unmarshalMaterial(item)
		if err != nil {
			return nil, "", err
		}
		materials = append(materials, m)
	}
	return materials, next, nil
}

// seedRetries bounds re-submission of a throttled catalog seed batch.
const seedRetries = 2

// SeedCatalog bulk-loads catalog entries. Existing entries with the same
// id are replaced. Throttled batches are retried whole; the puts are
// unconditional upserts, so re-writing already-landed items is harmless.
func (r *MaterialRepo) SeedCatalog(ctx context.Context, materials []*model.Material) error {
	now := nowISO()
	puts := make([]store.PutInput, 0, len(materials))
	for _, m := range materials {
		if m.ID == "" {
			m.ID = newID()
		}
		if m.CreatedAt == "" {
			m.CreatedAt = now
		}
		m.UpdatedAt = now
		puts = append(puts, store.PutInput{
			PK:   keys.MaterialPK(m.ID),
			SK:   keys.MaterialSK(m.ID),
			GSI:  materialGSI(m.ID),
			Data: m,
		})
	}

	var err error
	for attempt := 0; attempt <= seedRetries; attempt++ {
		if err = r.store.BatchPut(ctx, puts); err == nil {
			log.Info().Int("count", len(materials)).Msg("Material catalog seeded")
			return nil
		}
		if !apperr.Retryable(err) {
			return err
		}
		log.Warn().Err(err).Int("attempt", attempt+1).Msg("Catalog seed throttled, retrying")
	}
	return err
}

func materialGSI(materialID string) map[string]string {
	return map[string]string{
		"GSI1PK": keys.MaterialCatalogPK,
		"GSI1SK": keys.MaterialSK(materialID),
	}
}

func unmarshalMaterial(item store.Item) (*model.Material, error) {
	var m model.Material
	if err := store.Unmarshal(item, &m); err != nil {
		return nil, err
	}
	if sk, ok := store.StringAttr(item, "SK"); ok {
		m.ID = keys.StripPrefix(sk, keys.MaterialPrefix)
	}
	return &m, nil
}
