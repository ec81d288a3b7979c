// Command patchprep prepares hurricane damage training data: it resolves an
// event's satellite imagery and labeled buildings, then cuts a pre- and
// post-event GeoTIFF patch around every building.
//
// Usage:
//
//	patchprep extract --event irma
//	patchprep links --event irma --left -67.3 --bottom 17.9 --right -65.2 --top 18.5
//	patchprep footprints --event irma --out irma-footprints.geojson
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	envFile   string
	event     string
	verbose   bool
	overwrite bool

	left, bottom, right, top float64

	outFile string
)

var rootCmd = &cobra.Command{
	Use:               "patchprep",
	Short:             "Prepare pre/post-event satellite patches for building damage classification",
	SilenceUsage:      true,
	PersistentPreRunE: loadEnv,
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract pre- and post-event patches for every labeled building",
	Long: `Resolve the event's tidied imagery catalog and labeled buildings, then write
one GeoTIFF patch per covering source to <DATA_DIR>/processed/patches/<event>/{pre,post}.`,
	RunE: runExtract,
}

var linksCmd = &cobra.Command{
	Use:   "links",
	Short: "List the imagery links overlapping a bounding box",
	RunE:  runLinks,
}

var footprintsCmd = &cobra.Command{
	Use:   "footprints",
	Short: "Write the bounds of the event's imagery as GeoJSON",
	RunE:  runFootprints,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file to load if present")
	rootCmd.PersistentFlags().StringVarP(&event, "event", "e", "", "Event name (default $DEFAULT_EVENT)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
	rootCmd.PersistentFlags().BoolVar(&overwrite, "overwrite", false, "Rebuild cached link catalogs and label sets")

	linksCmd.Flags().Float64Var(&left, "left", 0, "Minimum longitude")
	linksCmd.Flags().Float64Var(&bottom, "bottom", 0, "Minimum latitude")
	linksCmd.Flags().Float64Var(&right, "right", 0, "Maximum longitude")
	linksCmd.Flags().Float64Var(&top, "top", 0, "Maximum latitude")
	for _, name := range []string{"left", "bottom", "right", "top"} {
		_ = linksCmd.MarkFlagRequired(name)
	}

	footprintsCmd.Flags().StringVarP(&outFile, "out", "o", "", "Output file (default stdout)")

	rootCmd.AddCommand(extractCmd, linksCmd, footprintsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadEnv(_ *cobra.Command, _ []string) error {
	if envFile == "" {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}
	return nil
}
