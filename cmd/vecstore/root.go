package main

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/vecstore"
	"github.com/hupe1980/vecstore/config"
	"github.com/hupe1980/vecstore/provider"
)

// app carries the viper instance the root flags are bound to.
type app struct {
	v *viper.Viper
}

// flagKeys maps persistent flags to config keys.
var flagKeys = map[string]string{
	"provider":       "provider",
	"log-level":      "log_level",
	"data-dir":       "local.data_dir",
	"compression":    "local.compression",
	"dynamodb-table": "dynamodb.table",
}

// NewRootCmd creates the root command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "vecstore",
		Short:         "Inspect and maintain vecstore collections",
		Long:          "vecstore loads saved collections and runs stats, lookups, searches and compression against them.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			for flag, key := range flagKeys {
				if err := a.v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringP("config", "c", "", "path to config file")
	pf.String("provider", "", "provider (local|dynamodb)")
	pf.String("log-level", "", "log level (debug|info|warn|error)")
	pf.String("data-dir", "", "directory holding local snapshots")
	pf.String("compression", "", "snapshot compression (none|lz4|zstd)")
	pf.String("dynamodb-table", "", "DynamoDB table for the dynamodb provider")
	pf.Bool("json", false, "output in JSON format")

	root.AddCommand(
		newListCmd(a),
		newStatsCmd(a),
		newGetCmd(a),
		newSearchCmd(a),
		newCompressCmd(a),
		newDeleteCmd(a),
	)
	return root
}

// open loads the configuration and opens the selected provider.
func (a *app) open(cmd *cobra.Command) (vecstore.DB, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadViper(a.v, path)
	if err != nil {
		return nil, err
	}
	return provider.Open(cmd.Context(), cfg)
}

// openCollection opens the DB and loads collection into it. Providers without
// snapshots serve their live data instead.
func (a *app) openCollection(cmd *cobra.Command, collection string) (vecstore.DB, error) {
	db, err := a.open(cmd)
	if err != nil {
		return nil, err
	}
	if err := db.LoadFromDisk(cmd.Context(), collection); err != nil && !vecstore.IsNotImplemented(err) {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// save writes db back to collection, skipping providers without snapshots.
func save(ctx context.Context, db vecstore.DB, collection string) error {
	if err := db.SaveToDisk(ctx, collection); err != nil && !vecstore.IsNotImplemented(err) {
		return err
	}
	return nil
}

// collections is implemented by providers that keep named snapshots.
type collections interface {
	ListCollections(ctx context.Context) ([]string, error)
	DeleteCollection(ctx context.Context, collection string) error
}

func asCollections(db vecstore.DB) (collections, error) {
	c, ok := db.(collections)
	if !ok {
		return nil, fmt.Errorf("%w: provider keeps no collections", vecstore.ErrNotImplemented)
	}
	return c, nil
}

func asJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
