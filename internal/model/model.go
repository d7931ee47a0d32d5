// Package model defines the domain entities stored in the single table.
//
// Fields derived from PK/SK (ids, owning ids) carry dynamodbav:"-" and are
// restored by the repositories on read. All other fields are stored as
// item attributes.
package model

import "encoding/json"

// JobStatus is the lifecycle state of a RenderJob. ProjectImage and
// StylingVersion mirror the same values in their status fields, which are
// what clients poll.
type JobStatus string

const (
	StatusPending    JobStatus = "PENDING"
	StatusProcessing JobStatus = "PROCESSING"
	StatusDone       JobStatus = "DONE"
	StatusFailed     JobStatus = "FAILED"
)

// Terminal reports whether no further transitions occur from s.
func (s JobStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// JobType discriminates the two kinds of async AI work.
type JobType string

const (
	JobTypeSegmentation JobType = "SEGMENTATION"
	JobTypeRender       JobType = "RENDER"
)

// OwnerKind tags which entity a RenderJob is filed under.
type OwnerKind string

const (
	OwnerImage   OwnerKind = "image"
	OwnerVersion OwnerKind = "version"
)

// JobOwner identifies the entity whose status a RenderJob tracks: the
// ProjectImage for segmentation, the StylingVersion for render. Jobs are
// partitioned by their owner, so every job lookup takes a JobOwner —
// a job id alone is not addressable.
type JobOwner struct {
	Kind OwnerKind
	ID   string
}

// ImageOwner returns the owner tag for a segmentation job.
func ImageOwner(imageID string) JobOwner {
	return JobOwner{Kind: OwnerImage, ID: imageID}
}

// VersionOwner returns the owner tag for a render job.
func VersionOwner(versionID string) JobOwner {
	return JobOwner{Kind: OwnerVersion, ID: versionID}
}

// Role is a user's permission level within an organization.
type Role string

const (
	RoleOwner  Role = "Owner"
	RoleEditor Role = "Editor"
	RoleViewer Role = "Viewer"
)

// Organization is the tenant root.
type Organization struct {
	ID           string `json:"id" dynamodbav:"-"`
	Name         string `json:"name" dynamodbav:"name"`
	MaxProjects  int    `json:"maxProjects" dynamodbav:"maxProjects"`
	ProjectCount int    `json:"projectCount" dynamodbav:"projectCount"`
	CreatedAt    string `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt    string `json:"updatedAt" dynamodbav:"updatedAt"`
}

// User is a membership record under an organization.
type User struct {
	OrgID     string `json:"orgId" dynamodbav:"-"`
	Email     string `json:"email" dynamodbav:"-"`
	Name      string `json:"name,omitempty" dynamodbav:"name,omitempty"`
	Role      Role   `json:"role" dynamodbav:"role"`
	CreatedAt string `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt string `json:"updatedAt" dynamodbav:"updatedAt"`
}

// Project is one client engagement within an organization.
type Project struct {
	ID           string `json:"id" dynamodbav:"-"`
	OrgID        string `json:"orgId" dynamodbav:"-"`
	Name         string `json:"name" dynamodbav:"name"`
	ClientName   string `json:"clientName,omitempty" dynamodbav:"clientName,omitempty"`
	Address      string `json:"address,omitempty" dynamodbav:"address,omitempty"`
	ImageCount   int    `json:"imageCount" dynamodbav:"imageCount"`
	VersionCount int    `json:"versionCount" dynamodbav:"versionCount"`
	CreatedAt    string `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt    string `json:"updatedAt" dynamodbav:"updatedAt"`
}

// ProjectImage is an uploaded building photo. SegmentationStatus mirrors
// the status of the image's segmentation job and is the pollable field.
type ProjectImage struct {
	ID                 string    `json:"id" dynamodbav:"-"`
	ProjectID          string    `json:"projectId" dynamodbav:"-"`
	FileName           string    `json:"fileName,omitempty" dynamodbav:"fileName,omitempty"`
	ImageURL           string    `json:"imageUrl,omitempty" dynamodbav:"imageUrl,omitempty"`
	SegmentationStatus JobStatus `json:"segmentationStatus" dynamodbav:"segmentationStatus"`
	SegmentationURL    string    `json:"segmentationUrl,omitempty" dynamodbav:"segmentationUrl,omitempty"`
	ErrorMessage       string    `json:"errorMessage,omitempty" dynamodbav:"errorMessage,omitempty"`
	CreatedAt          string    `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt          string    `json:"updatedAt" dynamodbav:"updatedAt"`
}

// BoundingBox locates a region within its image, in pixels.
type BoundingBox struct {
	X      float64 `json:"x" dynamodbav:"x"`
	Y      float64 `json:"y" dynamodbav:"y"`
	Width  float64 `json:"width" dynamodbav:"width"`
	Height float64 `json:"height" dynamodbav:"height"`
}

// Region is a segmented area of a ProjectImage.
type Region struct {
	ID            string      `json:"id" dynamodbav:"-"`
	ImageID       string      `json:"imageId" dynamodbav:"-"`
	Name          string      `json:"name" dynamodbav:"name"`
	Label         string      `json:"label" dynamodbav:"label"`
	MaskURL       string      `json:"maskUrl" dynamodbav:"maskUrl"`
	BoundingBox   BoundingBox `json:"boundingBox" dynamodbav:"boundingBox"`
	Area          float64     `json:"area" dynamodbav:"area"`
	Confidence    float64     `json:"confidence" dynamodbav:"confidence"`
	PolygonPoints []float64   `json:"polygonPoints,omitempty" dynamodbav:"polygonPoints,omitempty"`
	CreatedAt     string      `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt     string      `json:"updatedAt" dynamodbav:"updatedAt"`
}

// StylingVersion is one styling attempt on an image. RenderStatus mirrors
// the status of the version's render job.
type StylingVersion struct {
	ID            string    `json:"id" dynamodbav:"-"`
	ImageID       string    `json:"imageId" dynamodbav:"-"`
	VersionNumber int       `json:"versionNumber" dynamodbav:"versionNumber"`
	Name          string    `json:"name,omitempty" dynamodbav:"name,omitempty"`
	RenderStatus  JobStatus `json:"renderStatus" dynamodbav:"renderStatus"`
	RenderURL     string    `json:"renderUrl,omitempty" dynamodbav:"renderUrl,omitempty"`
	ErrorMessage  string    `json:"errorMessage,omitempty" dynamodbav:"errorMessage,omitempty"`
	CreatedAt     string    `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt     string    `json:"updatedAt" dynamodbav:"updatedAt"`
}

// StylingRegionMaterial assigns a material to a region within a version.
type StylingRegionMaterial struct {
	ID         string `json:"id" dynamodbav:"-"`
	VersionID  string `json:"versionId" dynamodbav:"-"`
	RegionID   string `json:"regionId" dynamodbav:"regionId"`
	MaterialID string `json:"materialId" dynamodbav:"materialId"`
	CreatedAt  string `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt  string `json:"updatedAt" dynamodbav:"updatedAt"`
}

// Material is a catalog entry renderable onto regions.
type Material struct {
	ID             string  `json:"id" dynamodbav:"-"`
	Name           string  `json:"name" dynamodbav:"name"`
	Category       string  `json:"category,omitempty" dynamodbav:"category,omitempty"`
	TextureURL     string  `json:"textureUrl" dynamodbav:"textureUrl"`
	NormalMapURL   string  `json:"normalMapUrl,omitempty" dynamodbav:"normalMapUrl,omitempty"`
	PhysicalWidth  float64 `json:"physicalWidth,omitempty" dynamodbav:"physicalWidth,omitempty"`
	PhysicalHeight float64 `json:"physicalHeight,omitempty" dynamodbav:"physicalHeight,omitempty"`
	CreatedAt      string  `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt      string  `json:"updatedAt" dynamodbav:"updatedAt"`
}

// RenderJob is one unit of async AI work dispatched to an external worker.
// It is the audit and correlation record behind the entity status fields;
// jobs are never deleted explicitly and expire via the table TTL.
type RenderJob struct {
	ID                  string          `json:"id" dynamodbav:"-"`
	Owner               JobOwner        `json:"-" dynamodbav:"-"`
	JobType             JobType         `json:"jobType" dynamodbav:"jobType"`
	Status              JobStatus       `json:"status" dynamodbav:"jobStatus"`
	Priority            int             `json:"priority" dynamodbav:"priority"`
	MaxRetries          int             `json:"maxRetries" dynamodbav:"maxRetries"`
	InputPayload        json.RawMessage `json:"inputPayload,omitempty" dynamodbav:"inputPayload,omitempty"`
	WebhookCallbackURL  string          `json:"webhookCallbackUrl" dynamodbav:"webhookCallbackUrl"`
	ResultURL           string          `json:"resultUrl,omitempty" dynamodbav:"resultUrl,omitempty"`
	ErrorCode           string          `json:"errorCode,omitempty" dynamodbav:"errorCode,omitempty"`
	ErrorMessage        string          `json:"errorMessage,omitempty" dynamodbav:"errorMessage,omitempty"`
	ExternalExecutionID string          `json:"externalExecutionId,omitempty" dynamodbav:"externalExecutionId,omitempty"`
	CreatedAt           string          `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt           string          `json:"updatedAt" dynamodbav:"updatedAt"`
	ExpiresAt           int64           `json:"-" dynamodbav:"expiresAt"`
}

// ShareLink grants public read access to a project via an opaque token.
type ShareLink struct {
	Token     string `json:"token" dynamodbav:"-"`
	ProjectID string `json:"projectId" dynamodbav:"-"`
	ExpiresAt string `json:"expiresAt,omitempty" dynamodbav:"linkExpiresAt,omitempty"`
	CreatedAt string `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt string `json:"updatedAt" dynamodbav:"updatedAt"`
}
