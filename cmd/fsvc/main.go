package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	fsvc "github.com/Amankrah/fsvc-sub000"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	respondentType string
	commodity      string
	country        string

	projectID    string
	categories   []string
	workPackages []string
	replace      bool

	runID   string
	asJSON  bool
	seedSrc string
	outPath string
)

var rootCmd = &cobra.Command{
	Use:   "fsvc",
	Short: "Survey question targeting and reconciliation engine",
	Long: `fsvc manages the question lifecycle of a food-system survey platform:
targets the shared question bank onto (respondent type, commodity, country)
tuples, materializes per-project questionnaires, records raw answers, and
reconciles stored answers back to their bank items even after the original
link is gone.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		core, err := fsvc.New(fsvc.WithVersion(version))
		if err != nil {
			return err
		}
		defer closeCore(core)

		fmt.Println("migrations applied")
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load bank items, projects, and dev fixtures from a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		core, err := fsvc.New(fsvc.WithVersion(version))
		if err != nil {
			return err
		}
		defer closeCore(core)

		res, err := core.SeedFile(cmd.Context(), seedSrc)
		if err != nil {
			return err
		}
		fmt.Printf("projects=%d items=%d skipped_items=%d respondents=%d answers=%d\n",
			res.Projects, res.Items, res.SkippedItems, res.Respondents, res.Answers)
		return nil
	},
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Preview the applicable bank items for a tuple in canonical order",
	RunE: func(cmd *cobra.Command, args []string) error {
		core, err := fsvc.New(fsvc.WithVersion(version))
		if err != nil {
			return err
		}
		defer closeCore(core)

		items, err := core.Catalog(cmd.Context(), tupleFromFlags())
		if err != nil {
			return err
		}
		for i, item := range items {
			fmt.Printf("%3d  %-24s  p%-3d  %s\n", i, item.Category, item.Priority, item.Text)
		}
		fmt.Printf("%d applicable items\n", len(items))
		return nil
	},
}

var materializeCmd = &cobra.Command{
	Use:   "materialize",
	Short: "Generate a project's questions for one targeting tuple",
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := uuid.Parse(projectID)
		if err != nil {
			return fmt.Errorf("parse --project: %w", err)
		}
		core, err := fsvc.New(fsvc.WithVersion(version))
		if err != nil {
			return err
		}
		defer closeCore(core)

		cats := make([]fsvc.Category, len(categories))
		for i, c := range categories {
			cats[i] = fsvc.Category(c)
		}
		res, err := core.Materialize(cmd.Context(), pid, tupleFromFlags(), fsvc.MaterializeOptions{
			Categories:      cats,
			WorkPackages:    workPackages,
			ReplaceExisting: replace,
		})
		if err != nil {
			return err
		}
		fmt.Printf("created=%d skipped=%d failed=%d deleted=%d\n",
			len(res.Created), res.Skipped, res.Failed, res.Deleted)
		return nil
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile stored answers against the current catalog",
	Long: `Reconcile maps every stored answer of the project back to a bank item
through the recovery cascade (direct link, captured id, category position,
content shape), or reports it unresolved. Pass all three tuple flags to
restrict the run to one tuple; pass --run with a previous run id to resume an
interrupted journaled run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := uuid.Parse(projectID)
		if err != nil {
			return fmt.Errorf("parse --project: %w", err)
		}
		var rid uuid.UUID
		if runID != "" {
			rid, err = uuid.Parse(runID)
			if err != nil {
				return fmt.Errorf("parse --run: %w", err)
			}
		}
		core, err := fsvc.New(fsvc.WithVersion(version))
		if err != nil {
			return err
		}
		defer closeCore(core)

		var report fsvc.ReconciliationReport
		if runID != "" {
			report, err = core.ReconcileRun(cmd.Context(), pid, scopeFromFlags(), rid)
		} else {
			report, err = core.ReconcileProject(cmd.Context(), pid, scopeFromFlags())
		}
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		fmt.Printf("respondents=%d resolved=%d unresolved=%d inconsistencies=%d duplicate_claims=%d\n",
			report.Respondents, report.Resolved(), report.Unresolved,
			report.Inconsistencies, report.DuplicateClaims)
		for _, s := range []fsvc.Strategy{
			fsvc.StrategyDirectLink, fsvc.StrategyCapturedID,
			fsvc.StrategyCategoryPosition, fsvc.StrategyContentMatch,
		} {
			if n := report.ByStrategy[s]; n > 0 {
				fmt.Printf("  %-18s %d\n", s, n)
			}
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Reconcile one tuple and export the respondent matrix as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := uuid.Parse(projectID)
		if err != nil {
			return fmt.Errorf("parse --project: %w", err)
		}
		core, err := fsvc.New(fsvc.WithVersion(version))
		if err != nil {
			return err
		}
		defer closeCore(core)

		rs, err := core.ExportMatrix(cmd.Context(), pid, tupleFromFlags())
		if err != nil {
			return err
		}

		out := os.Stdout
		if outPath != "" && outPath != "-" {
			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("create %s: %w", outPath, err)
			}
			defer func() { _ = f.Close() }()
			out = f
		}
		return rs.WriteCSV(out)
	},
}

func tupleFromFlags() fsvc.TargetingTuple {
	return fsvc.TargetingTuple{
		RespondentType: respondentType,
		Commodity:      commodity,
		Country:        country,
	}
}

// scopeFromFlags returns nil when no tuple flag is set (whole-project run).
// A partially set tuple passes through so validation can name the missing
// axes.
func scopeFromFlags() *fsvc.TargetingTuple {
	if respondentType == "" && commodity == "" && country == "" {
		return nil
	}
	t := tupleFromFlags()
	return &t
}

// closeCore releases under a fresh context: the command context is already
// cancelled when a signal triggered the exit.
func closeCore(core *fsvc.Core) {
	if err := core.Close(context.Background()); err != nil {
		slog.Warn("close failed", "error", err)
	}
}

func addTupleFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&respondentType, "respondent-type", "", "targeting axis: respondent type (farmer, processor, trader, ...)")
	cmd.Flags().StringVar(&commodity, "commodity", "", "targeting axis: commodity")
	cmd.Flags().StringVar(&country, "country", "", "targeting axis: country")
}

func init() {
	rootCmd.Version = version

	seedCmd.Flags().StringVar(&seedSrc, "file", "", "YAML seed file (required)")
	_ = seedCmd.MarkFlagRequired("file")

	addTupleFlags(catalogCmd)
	_ = catalogCmd.MarkFlagRequired("respondent-type")
	_ = catalogCmd.MarkFlagRequired("commodity")
	_ = catalogCmd.MarkFlagRequired("country")

	addTupleFlags(materializeCmd)
	materializeCmd.Flags().StringVar(&projectID, "project", "", "project id (required)")
	materializeCmd.Flags().StringSliceVar(&categories, "category", nil, "restrict to these categories")
	materializeCmd.Flags().StringSliceVar(&workPackages, "work-package", nil, "restrict to these work packages")
	materializeCmd.Flags().BoolVar(&replace, "replace", false, "delete ALL of the project's questions before regenerating")
	_ = materializeCmd.MarkFlagRequired("project")
	_ = materializeCmd.MarkFlagRequired("respondent-type")
	_ = materializeCmd.MarkFlagRequired("commodity")
	_ = materializeCmd.MarkFlagRequired("country")

	addTupleFlags(reconcileCmd)
	reconcileCmd.Flags().StringVar(&projectID, "project", "", "project id (required)")
	reconcileCmd.Flags().StringVar(&runID, "run", "", "resume or replay this run id (requires journaling)")
	reconcileCmd.Flags().BoolVar(&asJSON, "json", false, "print the full report as JSON, mapping included")
	_ = reconcileCmd.MarkFlagRequired("project")

	addTupleFlags(exportCmd)
	exportCmd.Flags().StringVar(&projectID, "project", "", "project id (required)")
	exportCmd.Flags().StringVar(&outPath, "out", "-", "output file, - for stdout")
	_ = exportCmd.MarkFlagRequired("project")
	_ = exportCmd.MarkFlagRequired("respondent-type")
	_ = exportCmd.MarkFlagRequired("commodity")
	_ = exportCmd.MarkFlagRequired("country")

	rootCmd.AddCommand(migrateCmd, seedCmd, catalogCmd, materializeCmd, reconcileCmd, exportCmd)
}

func main() {
	level := slog.LevelInfo
	if os.Getenv("FSVC_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}
