// Package main provides the Lambda entry point for worker callbacks.
//
// This is a lightweight Lambda that handles:
//   - POST /callbacks/segmentation — segmentation worker results
//   - POST /callbacks/render — render worker results
//
// The webhook HMAC secret is loaded from SSM Parameter Store at cold
// start unless WEBHOOK_SECRET is set. The Lambda talks to DynamoDB only;
// it has no S3 or worker access.
package main

import (
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/facadelab/restyle/internal/boot"
	"github.com/facadelab/restyle/internal/logging"
	"github.com/facadelab/restyle/internal/repo"
	"github.com/facadelab/restyle/internal/webhook"
)

var callbackHandler *webhook.Handler

func init() {
	initStart := time.Now()
	logging.Init()

	clients := boot.InitAWS()
	tableStore := boot.InitStore(clients.Config, "TABLE_NAME")
	secret := boot.LoadWebhookSecret(clients.SSM)

	callbackHandler = webhook.NewHandler(repo.New(tableStore), secret)

	boot.StartupLog("callback-lambda", initStart).
		DynamoTable("main", os.Getenv("TABLE_NAME")).
		SSMParam("webhookSecret", logging.EnvOrDefault("SSM_WEBHOOK_SECRET_PARAM", "/restyle/prod/webhook-secret")).
		Feature("webhookVerify", secret != "").
		Log()
	log.Info().Msg("Callback handler initialized")
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/callbacks/segmentation", callbackHandler.Segmentation)
	mux.HandleFunc("/callbacks/render", callbackHandler.Render)

	adapter := httpadapter.NewV2(mux)
	lambda.Start(adapter.ProxyWithContext)
}
