package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/facadelab/restyle/internal/boot"
	"github.com/facadelab/restyle/internal/logging"
	"github.com/facadelab/restyle/internal/model"
	"github.com/facadelab/restyle/internal/repo"
)

var seedFileFlag string

var seedCmd = &cobra.Command{
	Use:   "seed-materials",
	Short: "Bulk-load the material catalog from a JSON file",
	Long: `seed-materials reads a JSON array of materials and batch-writes them
into the catalog. Entries with an id replace existing catalog rows, so
the command is safe to re-run after editing the file.`,
	Run: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedFileFlag, "file", "materials.json", "Path to the materials JSON file")
}

func runSeed(cmd *cobra.Command, args []string) {
	logging.Init()

	data, err := os.ReadFile(seedFileFlag)
	if err != nil {
		log.Fatal().Err(err).Str("file", seedFileFlag).Msg("Failed to read materials file")
	}
	var materials []*model.Material
	if err := json.Unmarshal(data, &materials); err != nil {
		log.Fatal().Err(err).Str("file", seedFileFlag).Msg("Materials file is not a JSON array of materials")
	}
	if len(materials) == 0 {
		log.Warn().Str("file", seedFileFlag).Msg("No materials to seed")
		return
	}

	clients := boot.InitAWS()
	ts := boot.InitStore(clients.Config, "TABLE_NAME")

	if err := repo.New(ts).Materials.SeedCatalog(context.Background(), materials); err != nil {
		log.Fatal().Err(err).Msg("Seeding failed")
	}
	log.Info().Int("count", len(materials)).Msg("Catalog seeding complete")
}
