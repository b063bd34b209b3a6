package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stated/internal/config"
	"github.com/fyrsmithlabs/stated/internal/filestore"
	"github.com/fyrsmithlabs/stated/internal/logging"
	"github.com/fyrsmithlabs/stated/internal/store"
)

var getCmd = &cobra.Command{
	Use:   "get <document>",
	Short: "Print a stored document as JSON",
	Long: `Print a stored document as JSON.

Examples:
  # Global document
  stated get config

  # Project-scoped document
  stated get hta --project proj1

  # Sub-path-scoped document
  stated get hta --project proj1 --path deep-dive`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

var setCmd = &cobra.Command{
	Use:   "set <document> [json]",
	Short: "Write a document from an argument or stdin",
	Long: `Write a document. The JSON value is taken from the second argument,
or from stdin when the argument is "-" or absent.

Examples:
  stated set config '{"goal":"Learn X"}' --project proj1
  cat hta.json | stated set hta --project proj1`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSet,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <document>",
	Short: "Delete a project-scoped document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var validateCmd = &cobra.Command{
	Use:   "validate <document>",
	Short: "Run the advisory validation pass against a stored document",
	Long: `Load a document and print its validation report. Saves never block on
validation failures; this surfaces them for manual repair.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

var sweepOlderThan time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove orphaned write-temp files from the data directory",
	RunE:  runSweep,
}

func init() {
	sweepCmd.Flags().DurationVar(&sweepOlderThan, "older-than", time.Hour, "only remove temp files older than this")
}

func runGet(cmd *cobra.Command, args []string) error {
	svc, _, err := openStore()
	if err != nil {
		return err
	}
	defer svc.Close()

	doc, err := loadScoped(cmd, svc, args[0])
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("document %q has never been saved", args[0])
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func runSet(cmd *cobra.Command, args []string) error {
	raw, err := readValue(args)
	if err != nil {
		return err
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	svc, logger, err := openStore()
	if err != nil {
		return err
	}
	defer svc.Close()

	name := args[0]
	var ok bool
	switch {
	case projectID != "" && pathName != "":
		ok = svc.SavePathData(cmd.Context(), projectID, pathName, name, doc)
	case projectID != "":
		ok = svc.SaveProjectData(cmd.Context(), projectID, name, doc)
	default:
		ok = svc.SaveGlobalData(cmd.Context(), name, doc)
	}
	if !ok {
		logger.Error("save failed", zap.String("document", name))
		return fmt.Errorf("failed to save %q (see %s)", name, "errors.log")
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	if projectID == "" {
		return fmt.Errorf("--project is required")
	}

	svc, _, err := openStore()
	if err != nil {
		return err
	}
	defer svc.Close()

	if !svc.DeleteProjectData(cmd.Context(), projectID, args[0]) {
		return fmt.Errorf("failed to delete %q", args[0])
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	svc, _, err := openStore()
	if err != nil {
		return err
	}
	defer svc.Close()

	doc, err := loadScoped(cmd, svc, args[0])
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("document %q has never been saved", args[0])
	}

	res := svc.ValidateDocument(doc)
	for _, e := range res.Errors {
		fmt.Fprintf(cmd.OutOrStdout(), "error: %s\n", e)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", w)
	}
	if !res.Valid {
		return fmt.Errorf("document %q is invalid", args[0])
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if dataDir != "" {
		cfg.Store.DataDir = dataDir
	}
	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		return err
	}

	files := filestore.New(logger)
	removed, err := files.SweepTemp(cfg.Store.DataDir, sweepOlderThan)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d orphaned temp file(s)\n", removed)
	return nil
}

// loadScoped dispatches to the right load operation for the flag set.
func loadScoped(cmd *cobra.Command, svc store.Service, name string) (map[string]any, error) {
	switch {
	case projectID != "" && pathName != "":
		return svc.LoadPathData(cmd.Context(), projectID, pathName, name)
	case projectID != "":
		return svc.LoadProjectData(cmd.Context(), projectID, name)
	default:
		return svc.LoadGlobalData(cmd.Context(), name)
	}
}

// readValue takes the document body from the argument or stdin.
func readValue(args []string) ([]byte, error) {
	if len(args) == 2 && args[1] != "-" {
		return []byte(args[1]), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return data, nil
}
