package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/facadelab/restyle/internal/apperr"
	"github.com/facadelab/restyle/internal/keys"
	"github.com/facadelab/restyle/internal/model"
	"github.com/facadelab/restyle/internal/store"
)

// ProjectRepo manages client engagements under an organization.
type ProjectRepo struct {
	store store.TableStore
}

// ProjectPatch carries optional field updates; nil fields are untouched.
type ProjectPatch struct {
	Name       *string
	ClientName *string
	Address    *string
}

// Create creates a project, enforcing the organization's maxProjects
// quota. The quota check is an optimistic conditional increment of the
// organization's projectCount, so two concurrent creates cannot both
// slip under the limit.
func (r *ProjectRepo) Create(ctx context.Context, orgID, name, clientName, address string) (*model.Project, error) {
	org, err := r.orgForUpdate(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.MaxProjects > 0 && org.ProjectCount >= org.MaxProjects {
		return nil, apperr.New(apperr.KindConflict, fmt.Sprintf("organization %s reached its project quota (%d)", orgID, org.MaxProjects))
	}

	// Reserve the quota slot; loses with Conflict if another create won.
	_, err = r.store.Update(ctx, store.UpdateInput{
		PK:        keys.OrgPK(orgID),
		SK:        keys.OrgSK(orgID),
		Add:       map[string]int{"projectCount": 1},
		Set:       map[string]interface{}{"updatedAt": nowISO()},
		Condition: store.Equals("projectCount", org.ProjectCount),
	})
	if err != nil {
		return nil, err
	}

	now := nowISO()
	project := &model.Project{
		ID:         newID(),
		OrgID:      orgID,
		Name:       name,
		ClientName: clientName,
		Address:    address,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err = r.store.Put(ctx, store.PutInput{
		PK:        keys.ProjectPK(orgID),
		SK:        keys.ProjectSK(project.ID),
		GSI:       projectGSI(orgID, name, clientName),
		Data:      project,
		Condition: store.NotExists("PK"),
	})
	if err != nil {
		// Release the reserved quota slot; failure here only loosens the
		// quota, never corrupts project data.
		if _, relErr := r.store.Update(ctx, store.UpdateInput{
			PK:  keys.OrgPK(orgID),
			SK:  keys.OrgSK(orgID),
			Add: map[string]int{"projectCount": -1},
		}); relErr != nil {
			log.Warn().Err(relErr).Str("orgId", orgID).Msg("Failed to release project quota slot")
		}
		return nil, err
	}

	log.Debug().Str("orgId", orgID).Str("projectId", project.ID).Str("name", name).Msg("Project created")
	return project, nil
}

// Get retrieves a project. Returns nil, nil if not found.
func (r *ProjectRepo) Get(ctx context.Context, orgID, projectID string) (*model.Project, error) {
	item, found, err := r.store.Get(ctx, keys.ProjectPK(orgID), keys.ProjectSK(projectID))
	if err != nil || !found {
		return nil, err
	}
	return unmarshalProject(item, orgID)
}

// Update merges the patch fields and bumps updatedAt. Search index keys
// are recomputed when the indexed fields change.
func (r *ProjectRepo) Update(ctx context.Context, orgID, projectID string, patch ProjectPatch) (*model.Project, error) {
	set := map[string]interface{}{"updatedAt": nowISO()}
	if patch.Name != nil {
		set["name"] = *patch.Name
		set["GSI1SK"] = keys.ProjectNameSK(*patch.Name)
	}
	if patch.ClientName != nil {
		set["clientName"] = *patch.ClientName
		set["GSI4PK"] = keys.ProjectPK(orgID)
		set["GSI4SK"] = keys.ProjectClientSK(*patch.ClientName)
	}
	if patch.Address != nil {
		set["address"] = *patch.Address
	}

	item, err := r.store.Update(ctx, store.UpdateInput{
		PK:  keys.ProjectPK(orgID),
		SK:  keys.ProjectSK(projectID),
		Set: set,
	})
	if err != nil {
		return nil, err
	}
	return unmarshalProject(item, orgID)
}

// ListByOrganization pages through all projects of an organization,
// ordered by project id.
func (r *ProjectRepo) ListByOrganization(ctx context.Context, orgID string, limit int32, cursor string) ([]*model.Project, string, error) {
	return r.queryProjects(ctx, store.QueryInput{
		PK:       keys.ProjectPK(orgID),
		SKPrefix: keys.ProjectPrefix,
		Limit:    normalizeLimit(limit),
		Cursor:   cursor,
	}, orgID)
}

// SearchByName finds projects whose name starts with prefix
// (case-insensitive). Prefix match only, not full-text.
func (r *ProjectRepo) SearchByName(ctx context.Context, orgID, prefix string, limit int32, cursor string) ([]*model.Project, string, error) {
	return r.queryProjects(ctx, store.QueryInput{
		Index:    store.GSI1,
		PK:       keys.ProjectPK(orgID),
		SKPrefix: keys.NamePrefix + strings.ToLower(prefix),
		Limit:    normalizeLimit(limit),
		Cursor:   cursor,
	}, orgID)
}

// SearchByClient finds projects whose client name starts with prefix
// (case-insensitive).
func (r *ProjectRepo) SearchByClient(ctx context.Context, orgID, prefix string, limit int32, cursor string) ([]*model.Project, string, error) {
	return r.queryProjects(ctx, store.QueryInput{
		Index:    store.GSI4,
		PK:       keys.ProjectPK(orgID),
		SKPrefix: keys.ClientPrefix + strings.ToLower(prefix),
		Limit:    normalizeLimit(limit),
		Cursor:   cursor,
	}, orgID)
}

func (r *ProjectRepo) queryProjects(ctx context.Context, in store.QueryInput, orgID string) ([]*model.Project, string, error) {
	items, next, err := r.store.Query(ctx, in)
	if err != nil {
		return nil, "", err
	}
	projects := make([]*model.Project, 0, len(items))
	for _, item := range items {
		project, err := unmarshalProject(item, orgID)
		if err != nil {
			return nil, "", err
		}
		projects = append(projects, project)
	}
	return projects, next, nil
}

// orgForUpdate loads the organization or fails with NotFound.
func (r *ProjectRepo) orgForUpdate(ctx context.Context, orgID string) (*model.Organization, error) {
	item, found, err := r.store.Get(ctx, keys.OrgPK(orgID), keys.OrgSK(orgID))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperr.New(apperr.KindNotFound, fmt.Sprintf("organization %s not found", orgID))
	}
	var org model.Organization
	if err := store.Unmarshal(item, &org); err != nil {
		return nil, err
	}
	org.ID = orgID
	return &org, nil
}

func projectGSI(orgID, name, clientName string) map[string]string {
	gsi := map[string]string{
		"GSI1PK": keys.ProjectPK(orgID),
		"GSI1SK": keys.ProjectNameSK(name),
	}
	if clientName != "" {
		gsi["GSI4PK"] = keys.ProjectPK(orgID)
		gsi["GSI4SK"] = keys.ProjectClientSK(clientName)
	}
	return gsi
}

func unmarshalProject(item store.Item, orgID string) (*model.Project, error) {
	var project model.Project
	if err := store.Unmarshal(item, &project); err != nil {
		return nil, err
	}
	project.OrgID = orgID
	if sk, ok := store.StringAttr(item, "SK"); ok {
		project.ID = keys.StripPrefix(sk, keys.ProjectPrefix)
	}
	return &project, nil
}
