package repo

import (
	"context"

	"github.com/facadelab/restyle/internal/keys"
	"github.com/facadelab/restyle/internal/model"
	"github.com/facadelab/restyle/internal/store"
)

// UserRepo manages organization membership records, keyed by email under
// the organization partition.
type UserRepo struct {
	store store.TableStore
}

// Create adds a member to an organization. Fails with Conflict if the
// email is already a member.
func (r *UserRepo) Create(ctx context.Context, orgID, email, name string, role model.Role) (*model.User, error) {
	now := nowISO()
	user := &model.User{
		OrgID:     orgID,
		Email:     email,
		Name:      name,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := r.store.Put(ctx, store.PutInput{
		PK:        keys.UserPK(orgID),
		SK:        keys.UserSK(email),
		Data:      user,
		Condition: store.NotExists("PK"),
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Get retrieves a membership record. Returns nil, nil if not found.
func (r *UserRepo) Get(ctx context.Context, orgID, email string) (*model.User, error) {
	item, found, err := r.store.Get(ctx, keys.UserPK(orgID), keys.UserSK(email))
	if err != nil || !found {
		return nil, err
	}
	var user model.User
	if err := store.Unmarshal(item, &user); err != nil {
		return nil, err
	}
	user.OrgID = orgID
	user.Email = email
	return &user, nil
}

// UpdateRole changes a member's role.
func (r *UserRepo) UpdateRole(ctx context.Context, orgID, email string, role model.Role) (*model.User, error) {
	item, err := r.store.Update(ctx, store.UpdateInput{
		PK:  keys.UserPK(orgID),
		SK:  keys.UserSK(email),
		Set: map[string]interface{}{"role": role, "updatedAt": nowISO()},
	})
	if err != nil {
		return nil, err
	}
	var user model.User
	if err := store.Unmarshal(item, &user); err != nil {
		return nil, err
	}
	user.OrgID = orgID
	user.Email = email
	return &user, nil
}

// ListByOrganization pages through an organization's members.
func (r *UserRepo) ListByOrganization(ctx context.Context, orgID string, limit int32, cursor string) ([]*model.User, string, error) {
	items, next, err := r.store.Query(ctx, store.QueryInput{
		PK:       keys.UserPK(orgID),
		SKPrefix: keys.UserPrefix,
		Limit:    normalizeLimit(limit),
		Cursor:   cursor,
	})
	if err != nil {
		return nil, "", err
	}
	users := make([]*model.User, 0, len(items))
	for _, item := range items {
		var user model.User
		if err := store.Unmarshal(item, &user); err != nil {
			return nil, "", err
		}
		user.OrgID = orgID
		if sk, ok := store.StringAttr(item, "SK"); ok {
			user.Email = keys.StripPrefix(sk, keys.UserPrefix)
		}
		users = append(users, &user)
	}
	return users, next, nil
}
