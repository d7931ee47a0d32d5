// Package main provides the HTTP API Lambda: organization, project,
// image, version, material, and share-link endpoints, plus job dispatch.
//
// All routes live under /api. The Lambda is fronted by API Gateway; the
// httpadapter proxy turns proxy events into standard http requests so the
// handlers are plain net/http.
package main

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/facadelab/restyle/internal/boot"
	"github.com/facadelab/restyle/internal/dispatch"
	"github.com/facadelab/restyle/internal/httputil"
	"github.com/facadelab/restyle/internal/logging"
	"github.com/facadelab/restyle/internal/repo"
)

var (
	repos      *repo.Repos
	dispatcher *dispatch.Dispatcher
	media      boot.S3Clients
)

// coldStart wires the AWS clients, store, and dispatcher. Called once
// from main during the Lambda init phase.
func coldStart() {
	initStart := time.Now()
	logging.Init()

	clients := boot.InitAWS()
	tableStore := boot.InitStore(clients.Config, "TABLE_NAME")
	media = boot.InitS3(clients.Config, "MEDIA_BUCKET_NAME")

	segmentationURL := boot.RequireEnv("SEGMENTATION_WORKER_URL")
	renderURL := boot.RequireEnv("RENDER_WORKER_URL")
	callbackBaseURL := boot.RequireEnv("CALLBACK_BASE_URL")

	repos = repo.New(tableStore)
	dispatcher = dispatch.New(
		repos,
		dispatch.NewWorkerClient(segmentationURL),
		dispatch.NewWorkerClient(renderURL),
		callbackBaseURL,
	)

	boot.StartupLog("api-lambda", initStart).
		DynamoTable("main", os.Getenv("TABLE_NAME")).
		S3Bucket("media", media.Bucket).
		Worker("segmentation", segmentationURL).
		Worker("render", renderURL).
		Config("callbackBaseUrl", callbackBaseURL).
		Log()
	log.Info().Msg("API handlers initialized")
}

func main() {
	coldStart()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", handleHealth)
	mux.HandleFunc("/api/orgs", handleOrgs)
	mux.HandleFunc("/api/orgs/", handleOrgRoutes)
	mux.HandleFunc("/api/materials", handleMaterials)
	mux.HandleFunc("/api/materials/", handleMaterialByID)
	mux.HandleFunc("/api/share/", handleSharedProject)

	adapter := httpadapter.NewV2(mux)
	lambda.Start(adapter.ProxyWithContext)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleOrgRoutes routes everything nested under /api/orgs/{orgId}/.
// Split the path once, switch on the resource words between ids.
func handleOrgRoutes(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/orgs/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		httputil.Error(w, http.StatusNotFound, "not found")
		return
	}
	orgID := parts[0]
	rest := parts[1:]

	switch {
	case len(rest) == 0:
		handleOrgByID(w, r, orgID)
	case rest[0] == "users":
		handleUserRoutes(w, r, orgID, rest[1:])
	case rest[0] == "projects":
		handleProjectRoutes(w, r, orgID, rest[1:])
	default:
		httputil.Error(w, http.StatusNotFound, "not found")
	}
}

// handleProjectRoutes routes /api/orgs/{orgId}/projects and below.
func handleProjectRoutes(w http.ResponseWriter, r *http.Request, orgID string, rest []string) {
	if len(rest) == 0 {
		handleProjects(w, r, orgID)
		return
	}
	projectID := rest[0]
	rest = rest[1:]

	switch {
	case len(rest) == 0:
		handleProjectByID(w, r, orgID, projectID)
	case rest[0] == "images":
		handleImageRoutes(w, r, orgID, projectID, rest[1:])
	case rest[0] == "share":
		handleShareRoutes(w, r, orgID, projectID, rest[1:])
	default:
		httputil.Error(w, http.StatusNotFound, "not found")
	}
}

// handleImageRoutes routes /api/orgs/{o}/projects/{p}/images and below.
func handleImageRoutes(w http.ResponseWriter, r *http.Request, orgID, projectID string, rest []string) {
	if len(rest) == 0 {
		handleImages(w, r, orgID, projectID)
		return
	}
	imageID := rest[0]
	rest = rest[1:]

	switch {
	case len(rest) == 0:
		handleImageByID(w, r, orgID, projectID, imageID)
	case rest[0] == "segment" && len(rest) == 1:
		handleSegment(w, r, orgID, projectID, imageID)
	case rest[0] == "download" && len(rest) == 1:
		handleImageDownload(w, r, projectID, imageID)
	case rest[0] == "confirm" && len(rest) == 1:
		handleImageConfirm(w, r, projectID, imageID)
	case rest[0] == "regions" && len(rest) == 1:
		handleRegions(w, r, imageID)
	case rest[0] == "versions":
		handleVersionRoutes(w, r, orgID, projectID, imageID, rest[1:])
	default:
		httputil.Error(w, http.StatusNotFound, "not found")
	}
}

// handleVersionRoutes routes .../images/{i}/versions and below.
func handleVersionRoutes(w http.ResponseWriter, r *http.Request, orgID, projectID, imageID string, rest []string) {
	if len(rest) == 0 {
		handleVersions(w, r, orgID, projectID, imageID)
		return
	}
	versionID := rest[0]
	rest = rest[1:]

	switch {
	case len(rest) == 0:
		handleVersionByID(w, r, imageID, versionID)
	case rest[0] == "render" && len(rest) == 1:
		handleRender(w, r, orgID, projectID, imageID, versionID)
	case rest[0] == "materials" && len(rest) == 1:
		handleVersionMaterials(w, r, versionID)
	default:
		httputil.Error(w, http.StatusNotFound, "not found")
	}
}

// --- Shared query helpers ---

// pageParams reads the limit/cursor list parameters.
func pageParams(r *http.Request) (int32, string) {
	var limit int32
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = int32(n)
		}
	}
	return limit, r.URL.Query().Get("cursor")
}

// listResponse is the common shape for paged collections.
type listResponse struct {
	Items      interface{} `json:"items"`
	NextCursor string      `json:"nextCursor,omitempty"`
}
