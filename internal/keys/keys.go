// Package keys builds the partition, sort, and GSI keys for the
// single-table design. Every entity kind has a fixed string prefix, which
// keeps keys collision-free across kinds. The functions are pure: no I/O,
// no randomness.
package keys

import (
	"fmt"
	"strings"
)

// Key prefixes per entity kind.
const (
	OrgPrefix       = "ORG#"
	UserPrefix      = "USER#"
	ProjectPrefix   = "PROJ#"
	ImagePrefix     = "IMG#"
	RegionPrefix    = "REGION#"
	VersionPrefix   = "VER#"
	RegionMatPrefix = "RM#"
	MaterialPrefix  = "MAT#"
	JobPrefix       = "JOB#"
	SharePrefix     = "SHARE#"

	// GSI sort-key prefixes for the project search indexes.
	NamePrefix   = "NAME#"
	ClientPrefix = "CLIENT#"

	// MaterialCatalogPK is the constant GSI1 partition for the material
	// catalog. Materials have no tenant partition, so they share one GSI1
	// partition to stay listable without a table scan.
	MaterialCatalogPK = "MAT"
)

// --- Organization ---

func OrgPK(orgID string) string { return OrgPrefix + orgID }
func OrgSK(orgID string) string { return OrgPrefix + orgID }

// --- User (membership under an organization) ---

func UserPK(orgID string) string { return OrgPrefix + orgID }
func UserSK(email string) string { return UserPrefix + email }

// --- Project ---

func ProjectPK(orgID string) string     { return OrgPrefix + orgID }
func ProjectSK(projectID string) string { return ProjectPrefix + projectID }

// ProjectNameSK returns the GSI1 sort key for name prefix search.
// Names are lowercased so search is case-insensitive.
func ProjectNameSK(name string) string {
	return NamePrefix + strings.ToLower(name)
}

// ProjectClientSK returns the GSI4 sort key for client-name prefix search.
func ProjectClientSK(clientName string) string {
	return ClientPrefix + strings.ToLower(clientName)
}

// --- ProjectImage ---

func ImagePK(projectID string) string { return ProjectPrefix + projectID }
func ImageSK(imageID string) string   { return ImagePrefix + imageID }

// --- Region ---

func RegionPK(imageID string) string  { return ImagePrefix + imageID }
func RegionSK(regionID string) string { return RegionPrefix + regionID }

// --- StylingVersion ---

func VersionPK(imageID string) string   { return ImagePrefix + imageID }
func VersionSK(versionID string) string { return VersionPrefix + versionID }

// --- StylingRegionMaterial ---

func RegionMaterialPK(versionID string) string { return VersionPrefix + versionID }
func RegionMaterialSK(id string) string        { return RegionMatPrefix + id }

// --- Material ---

func MaterialPK(materialID string) string { return MaterialPrefix + materialID }
func MaterialSK(materialID string) string { return MaterialPrefix + materialID }

// --- RenderJob ---
//
// The job partition key is the owning entity's key: ImagePK-shaped for
// segmentation jobs, VersionPK-shaped for render jobs. Callers carry the
// owner explicitly (model.JobOwner); there is no lookup by job id alone.

func JobSK(jobID string) string { return JobPrefix + jobID }

// --- ShareLink ---

func SharePK(projectID string) string { return ProjectPrefix + projectID }
func ShareSK(token string) string     { return SharePrefix + token }

// ShareTokenPK returns the GSI2 partition key for token lookup.
func ShareTokenPK(token string) string { return SharePrefix + token }

// --- Strip helpers ---

// StripPrefix removes a known key prefix, returning the raw id.
// It panics on a mismatched prefix: that is always a programming error,
// never data-dependent.
func StripPrefix(key, prefix string) string {
	if !strings.HasPrefix(key, prefix) {
		panic(fmt.Sprintf("keys: %q does not carry prefix %q", key, prefix))
	}
	return key[len(prefix):]
}
