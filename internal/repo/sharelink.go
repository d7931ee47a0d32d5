package repo

import (
	"context"

	"github.com/facadelab/restyle/internal/keys"
	"github.com/facadelab/restyle/internal/model"
	"github.com/facadelab/restyle/internal/store"
)

// ShareLinkRepo manages public share tokens for projects. Token lookup
// goes through GSI2; the base-table key keeps links listable per project.
type ShareLinkRepo struct {
	store store.TableStore
}

// Create mints a share token for a project. expiresAt is optional
// (RFC3339) and advisory; callers enforce it.
func (r *ShareLinkRepo) Create(ctx context.Context, projectID, expiresAt string) (*model.ShareLink, error) {
	now := nowISO()
	link := &model.ShareLink{
		Token:     newToken(),
		ProjectID: projectID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := r.store.Put(ctx, store.PutInput{
		PK: keys.SharePK(projectID),
		SK: keys.ShareSK(link.Token),
		GSI: map[string]string{
			"GSI2PK": keys.ShareTokenPK(link.Token),
			"GSI2SK": keys.ProjectSK(projectID),
		},
		Data:      link,
		Condition: store.NotExists("PK"),
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// GetByToken resolves a token to its share link. Returns nil, nil if the
// token is unknown or revoked.
func (r *ShareLinkRepo) GetByToken(ctx context.Context, token string) (*model.ShareLink, error) {
	items, _, err := r.store.Query(ctx, store.QueryInput{
		Index: store.GSI2,
		PK:    keys.ShareTokenPK(token),
		Limit: 1,
	})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	var link model.ShareLink
	if err := store.Unmarshal(items[0], &link); err != nil {
		return nil, err
	}
	link.Token = token
	if pk, ok := store.StringAttr(items[0], "PK"); ok {
		link.ProjectID = keys.StripPrefix(pk, keys.ProjectPrefix)
	}
	return &link, nil
}

// ListByProject pages through a project's share links.
func (r *ShareLinkRepo) ListByProject(ctx context.Context, projectID string, limit int32, cursor string) ([]*model.ShareLink, string, error) {
	items, next, err := r.store.Query(ctx, store.QueryInput{
		PK:       keys.SharePK(projectID),
		SKPrefix: keys.SharePrefix,
		Limit:    normalizeLimit(limit),
		Cursor:   cursor,
	})
	if err != nil {
		return nil, "", err
	}
	links := make([]*model.ShareLink, 0, len(items))
	for _, item := range items {
		var link model.ShareLink
		if err := store.Unmarshal(item, &link); err != nil {
			return nil, "", err
		}
		link.ProjectID = projectID
		if sk, ok := store.StringAttr(item, "SK"); ok {
			link.Token = keys.StripPrefix(sk, keys.SharePrefix)
		}
		links = append(links, &link)
	}
	return links, next, nil
}

// Revoke deletes a share link. Revoking an unknown token is a no-op.
func (r *ShareLinkRepo) Revoke(ctx context.Context, projectID, token string) error {
	return r.store.Delete(ctx, keys.SharePK(projectID), keys.ShareSK(token))
}
