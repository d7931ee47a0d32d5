package repo

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/facadelab/restyle/internal/keys"
	"github.com/facadelab/restyle/internal/model"
	"github.com/facadelab/restyle/internal/store"
)

// OrganizationRepo manages tenant root records.
type OrganizationRepo struct {
	store store.TableStore
}

// Create creates an organization with the given project quota.
func (r *OrganizationRepo) Create(ctx context.Context, name string, maxProjects int) (*model.Organization, error) {
	now := nowISO()
	org := &model.Organization{
		ID:          newID(),
		Name:        name,
		MaxProjects: maxProjects,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := r.store.Put(ctx, store.PutInput{
		PK:        keys.OrgPK(org.ID),
		SK:        keys.OrgSK(org.ID),
		Data:      org,
		Condition: store.NotExists("PK"),
	})
	if err != nil {
		return nil, err
	}
	log.Debug().Str("orgId", org.ID).Str("name", name).Msg("Organization created")
	return org, nil
}

// Get retrieves an organization. Returns nil, nil if not found.
func (r *OrganizationRepo) Get(ctx context.Context, orgID string) (*model.Organization, error) {
	item, found, err := r.store.Get(ctx, keys.OrgPK(orgID), keys.OrgSK(orgID))
	if err != nil || !found {
		return nil, err
	}
	var org model.Organization
	if err := store.Unmarshal(item, &org); err != nil {
		return nil, err
	}
	org.ID = orgID
	return &org, nil
}
