// Package repo provides the typed entity repositories. Each repository
// composes the key builders (internal/keys) with the table store
// (internal/store) and owns the translation of storage errors into
// apperr kinds. Get operations return (nil, nil) when the entity does
// not exist; absence is never an error.
package repo

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/facadelab/restyle/internal/store"
)

// defaultListLimit applies when a caller passes limit <= 0.
const defaultListLimit = 50

// Repos bundles all repositories over one store, for wiring at boot.
type Repos struct {
	Organizations   *OrganizationRepo
	Users           *UserRepo
	Projects        *ProjectRepo
	Images          *ImageRepo
	Versions        *VersionRepo
	Regions         *RegionRepo
	RegionMaterials *RegionMaterialRepo
	Materials       *MaterialRepo
	RenderJobs      *RenderJobRepo
	ShareLinks      *ShareLinkRepo
}

// New creates the full repository set over ts.
func New(ts store.TableStore) *Repos {
	return &Repos{
		Organizations:   &OrganizationRepo{store: ts},
		Users:           &UserRepo{store: ts},
		Projects:        &ProjectRepo{store: ts},
		Images:          &ImageRepo{store: ts},
		Versions:        &VersionRepo{store: ts},
		Regions:         &RegionRepo{store: ts},
		RegionMaterials: &RegionMaterialRepo{store: ts},
		Materials:       &MaterialRepo{store: ts},
		RenderJobs:      &RenderJobRepo{store: ts},
		ShareLinks:      &ShareLinkRepo{store: ts},
	}
}

// nowISO returns the shared timestamp format for createdAt/updatedAt.
func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// newID generates an entity id.
func newID() string {
	return uuid.NewString()
}

// newJobID creates a cryptographically random job id with a type prefix,
// e.g. "seg-3f2a…" or "rnd-9c01…".
func newJobID(prefix string) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		log.Fatal().Err(err).Msgf("Failed to generate random %s job ID", prefix)
	}
	return prefix + hex.EncodeToString(b)
}

// newToken creates an opaque share-link token.
func newToken() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		log.Fatal().Err(err).Msg("Failed to generate share token")
	}
	return hex.EncodeToString(b)
}

func normalizeLimit(limit int32) int32 {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}
