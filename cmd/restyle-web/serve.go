package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/facadelab/restyle/internal/boot"
	"github.com/facadelab/restyle/internal/httputil"
	"github.com/facadelab/restyle/internal/logging"
	"github.com/facadelab/restyle/internal/repo"
	"github.com/facadelab/restyle/internal/store"
	"github.com/facadelab/restyle/internal/webhook"
)

var (
	portFlag   int
	secretFlag string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the callback endpoints locally",
	Run:   runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 8080, "Port to listen on")
	serveCmd.Flags().StringVar(&secretFlag, "secret", "", "Webhook HMAC secret (empty accepts unsigned callbacks)")
}

func runServe(cmd *cobra.Command, args []string) {
	logging.Init()

	ts := devStore()
	handler := webhook.NewHandler(repo.New(ts), secretFlag)

	mux := http.NewServeMux()
	mux.HandleFunc("/callbacks/segmentation", handler.Segmentation)
	mux.HandleFunc("/callbacks/render", handler.Render)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", portFlag),
		Handler: mux,
	}

	go func() {
		log.Info().Int("port", portFlag).Bool("verify", secretFlag != "").Msg("Callback server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
	}
	log.Info().Msg("Server stopped")
}

// devStore uses the real table when TABLE_NAME is set, otherwise an
// in-memory store that starts empty.
func devStore() store.TableStore {
	if os.Getenv("TABLE_NAME") != "" {
		clients := boot.InitAWS()
		return boot.InitStore(clients.Config, "TABLE_NAME")
	}
	log.Warn().Msg("TABLE_NAME not set — using in-memory store")
	return store.NewMemoryStore()
}
