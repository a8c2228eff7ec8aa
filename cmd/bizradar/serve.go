package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yeonjae-dev/bizradar/internal/pipeline"
	"github.com/yeonjae-dev/bizradar/internal/server"
	"github.com/yeonjae-dev/bizradar/internal/worksheet"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bizradar HTTP server",
		Long: `Start the HTTP server exposing sync, analyze, scan, and worksheet
endpoints. Sync and analyze-all respond with event streams.`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", ":8899", "listen address")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	notes, err := openNotes()
	if err != nil {
		return err
	}

	scans, err := openScans()
	if err != nil {
		return err
	}
	defer func() { _ = scans.Close() }()
	if err := scans.Migrate(cmd.Context()); err != nil {
		return err
	}

	an, err := newAnalyzer()
	if err != nil {
		return err
	}

	portal, err := newSource()
	if err != nil {
		return err
	}

	runner := pipeline.NewRunner(notes, portal, an, runnerConfig())
	scanner := pipeline.NewScanner(notes, an, scans)
	engine := worksheet.NewEngine(notes, an, scans)

	srv := server.New(runner, scanner, engine, scans)
	return srv.ListenAndServe(cmd.Context(), viper.GetString("server.addr"))
}
