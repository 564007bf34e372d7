// Command vdb is a small CLI for inspecting and manipulating vdb database
// files.
//
// Usage:
//
//	vdb --db vectors.vdb add --id 1 --vector 0.1,0.2,0.3 --label docs
//	vdb --db vectors.vdb search --vector 0.1,0.2,0.3 -k 5
//	vdb --db vectors.vdb stats
//	vdb --db vectors.vdb backup --out vectors.vdb.zst
//	vdb restore --in vectors.vdb.zst --db restored.vdb
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/syuya2036/vdb"
	"github.com/syuya2036/vdb/distance"
	"github.com/syuya2036/vdb/metadata"
)

var (
	dbPath     string
	metricName string
)

var rootCmd = &cobra.Command{
	Use:          "vdb",
	Short:        "Embedded vector database tool",
	SilenceUsage: true,
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a vector to the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := cmd.Flags().GetUint64("id")
		if err != nil {
			return err
		}
		vecStr, _ := cmd.Flags().GetString("vector")
		label, _ := cmd.Flags().GetString("label")
		description, _ := cmd.Flags().GetString("description")

		vector, err := parseVector(vecStr)
		if err != nil {
			return err
		}

		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		err = db.Add(cmd.Context(), id, vector, metadata.Metadata{
			Label:       label,
			Description: description,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "added id %d (%d dimensions)\n", id, len(vector))
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search for the nearest neighbors of a vector",
	RunE: func(cmd *cobra.Command, args []string) error {
		vecStr, _ := cmd.Flags().GetString("vector")
		k, _ := cmd.Flags().GetInt("k")
		ef, _ := cmd.Flags().GetInt("ef")
		label, _ := cmd.Flags().GetString("label")

		query, err := parseVector(vecStr)
		if err != nil {
			return err
		}

		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		builder := db.Search(query).KNN(k)
		if ef > 0 {
			builder = builder.EF(ef)
		}
		if label != "" {
			builder = builder.WithLabel(label)
		}

		results, err := builder.Execute(cmd.Context())
		if err != nil {
			return err
		}

		if len(results) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no results")
			return nil
		}
		for i, r := range results {
			line := fmt.Sprintf("%d. id=%d distance=%g", i+1, r.ID, r.Distance)
			if r.Metadata.Label != "" {
				line += " label=" + r.Metadata.Label
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print database statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.Stats()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "path:            %s\n", db.Path())
		fmt.Fprintf(out, "metric:          %s\n", stats.Metric)
		fmt.Fprintf(out, "count:           %d\n", stats.Count)
		fmt.Fprintf(out, "dimension:       %d\n", stats.Dimension)
		fmt.Fprintf(out, "labels:          %d\n", stats.Labels)
		fmt.Fprintf(out, "M:               %d\n", stats.M)
		fmt.Fprintf(out, "efConstruction:  %d\n", stats.EFConstruction)
		fmt.Fprintf(out, "max layer:       %d\n", stats.MaxLayer)
		for layer, n := range stats.LayerHistogram {
			fmt.Fprintf(out, "  layer %d nodes: %d\n", layer, n)
		}
		return nil
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write a compressed snapshot of the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		outPath, _ := cmd.Flags().GetString("out")

		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		f, err := os.Create(outPath)
		if err != nil {
			return err
		}

		if err := db.Backup(cmd.Context(), f); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "backup written to %s\n", outPath)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore a database file from a compressed snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		inPath, _ := cmd.Flags().GetString("in")

		f, err := os.Open(inPath)
		if err != nil {
			return err
		}
		defer f.Close()

		if err := vdb.Restore(cmd.Context(), f, dbPath); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "restored to %s\n", dbPath)
		return nil
	},
}

func openDatabase() (*vdb.DB, error) {
	metric, err := distance.ParseMetric(metricName)
	if err != nil {
		return nil, err
	}
	return vdb.Open(dbPath, metric)
}

// parseVector parses a comma-separated list of floats, e.g. "0.1,0.2,0.3".
func parseVector(s string) ([]float32, error) {
	if s == "" {
		return nil, fmt.Errorf("vector must not be empty")
	}

	parts := strings.Split(s, ",")
	vector := make([]float32, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", part, err)
		}
		vector[i] = float32(v)
	}
	return vector, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file path")
	rootCmd.PersistentFlags().StringVar(&metricName, "metric", "euclidean", "distance metric (cosine, euclidean, dotproduct)")
	_ = rootCmd.MarkPersistentFlagRequired("db")

	addCmd.Flags().Uint64("id", 0, "vector id")
	addCmd.Flags().String("vector", "", "comma-separated vector components")
	addCmd.Flags().String("label", "", "label stored with the vector")
	addCmd.Flags().String("description", "", "description stored with the vector")
	_ = addCmd.MarkFlagRequired("id")
	_ = addCmd.MarkFlagRequired("vector")

	searchCmd.Flags().String("vector", "", "comma-separated query vector")
	searchCmd.Flags().IntP("k", "k", 10, "number of neighbors to return")
	searchCmd.Flags().Int("ef", 0, "search beam width (0 for default)")
	searchCmd.Flags().String("label", "", "restrict results to this label")
	_ = searchCmd.MarkFlagRequired("vector")

	backupCmd.Flags().String("out", "", "output file for the snapshot")
	_ = backupCmd.MarkFlagRequired("out")

	restoreCmd.Flags().String("in", "", "snapshot file to restore from")
	_ = restoreCmd.MarkFlagRequired("in")

	rootCmd.AddCommand(addCmd, searchCmd, statsCmd, backupCmd, restoreCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
