package main

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/vecstore"
	"github.com/hupe1980/vecstore/metadata"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			c, err := asCollections(db)
			if err != nil {
				return err
			}
			names, err := c.ListCollections(cmd.Context())
			if err != nil {
				return fmt.Errorf("list collections: %w", err)
			}

			if asJSON(cmd) {
				return writeJSON(cmd, names)
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <collection>",
		Short: "Show collection statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openCollection(cmd, args[0])
			if err != nil {
				return err
			}
			defer db.Close()

			stats, err := db.GetStats(cmd.Context())
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}

			if asJSON(cmd) {
				return writeJSON(cmd, stats)
			}
			for _, k := range slices.Sorted(maps.Keys(stats)) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", k, stats[k])
			}
			return nil
		},
	}
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <collection> <id>",
		Short: "Print one record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openCollection(cmd, args[0])
			if err != nil {
				return err
			}
			defer db.Close()

			rec, err := db.GetVectorByID(cmd.Context(), args[1])
			if err != nil {
				return fmt.Errorf("get %q: %w", args[1], err)
			}

			if asJSON(cmd) {
				return writeJSON(cmd, map[string]any{
					"id":       rec.ID,
					"vector":   rec.Vector,
					"metadata": rec.Metadata,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, rec.ID)
			fmt.Fprintf(out, "vector: %v\n", rec.Vector)
			for _, k := range rec.Metadata.Keys() {
				fmt.Fprintf(out, "%s: %v\n", k, rec.Metadata[k].Any())
			}
			return nil
		},
	}
}

func newSearchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <collection>",
		Short: "Find the records most similar to a vector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, _ := cmd.Flags().GetFloat32Slice("vector")
			topN, _ := cmd.Flags().GetInt("number")
			pairs, _ := cmd.Flags().GetStringArray("filter")

			filter, err := parseFilter(pairs)
			if err != nil {
				return err
			}

			db, err := a.openCollection(cmd, args[0])
			if err != nil {
				return err
			}
			defer db.Close()

			results, err := db.TopCosineSimilarity(cmd.Context(), query, topN, filter)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if asJSON(cmd) {
				out := make([]map[string]any, len(results))
				for i, r := range results {
					out[i] = map[string]any{
						"id":         r.ID,
						"similarity": r.Similarity,
						"metadata":   r.Metadata,
					}
				}
				return writeJSON(cmd, out)
			}
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%.4f  %s\n", r.Similarity, r.ID)
			}
			return nil
		},
	}

	cmd.Flags().Float32Slice("vector", nil, "query vector, comma separated")
	cmd.Flags().IntP("number", "n", 10, "maximum results")
	cmd.Flags().StringArray("filter", nil, "metadata equality filter key=value (repeatable)")
	_ = cmd.MarkFlagRequired("vector")
	return cmd
}

// parseFilter turns key=value pairs into an equality filter. Values that
// parse as numbers or booleans are compared as such.
func parseFilter(pairs []string) (vecstore.FilterFunc, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	doc := make(metadata.Document, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid filter %q, want key=value", p)
		}
		doc[k] = parseValue(v)
	}
	fs := metadata.Equals(doc)
	return func(_ string, md metadata.Document) bool { return fs.Matches(md) }, nil
}

func parseValue(s string) metadata.Value {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return metadata.Int(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return metadata.Float(f)
	}
	switch s {
	case "true":
		return metadata.Bool(true)
	case "false":
		return metadata.Bool(false)
	}
	return metadata.String(s)
}

func newCompressCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compress <collection>",
		Short: "Re-encode a collection with 16 or 8 bits per component and save it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bits, _ := cmd.Flags().GetInt("bits")

			db, err := a.openCollection(cmd, args[0])
			if err != nil {
				return err
			}
			defer db.Close()

			ratio, err := db.CompressVectors(cmd.Context(), bits)
			if err != nil {
				return fmt.Errorf("compress: %w", err)
			}
			if err := save(cmd.Context(), db, args[0]); err != nil {
				return fmt.Errorf("save %q: %w", args[0], err)
			}

			if asJSON(cmd) {
				return writeJSON(cmd, map[string]any{"bits": bits, "ratio": ratio})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "compressed %s to %d bits (%.1fx)\n", args[0], bits, ratio)
			return nil
		},
	}
	cmd.Flags().Int("bits", 16, "bits per component (16 or 8)")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <collection> [id...]",
		Short: "Delete records from a collection, or the whole collection",
		Long:  "With ids, removes those records and saves the collection. Without ids, removes the saved collection.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection, ids := args[0], args[1:]
			if len(ids) == 0 {
				db, err := a.open(cmd)
				if err != nil {
					return err
				}
				defer db.Close()

				c, err := asCollections(db)
				if err != nil {
					return err
				}
				if err := c.DeleteCollection(cmd.Context(), collection); err != nil {
					return fmt.Errorf("delete %q: %w", collection, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted collection %s\n", collection)
				return nil
			}

			db, err := a.openCollection(cmd, collection)
			if err != nil {
				return err
			}
			defer db.Close()

			for _, id := range ids {
				if _, err := db.DeleteVector(cmd.Context(), id); err != nil {
					return fmt.Errorf("delete %q: %w", id, err)
				}
			}
			if err := save(cmd.Context(), db, collection); err != nil {
				return fmt.Errorf("save %q: %w", collection, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d records from %s\n", len(ids), collection)
			return nil
		},
	}
}
