// link-engine links incoming email messages to design projects.
//
// It learns sender patterns from accepted links, applies deterministic rules
// before falling back to LLM classification, and repairs referential
// integrity after upstream re-imports.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/atelier-ops/link-engine/pkg/config"
	"github.com/atelier-ops/link-engine/pkg/database"
	"github.com/atelier-ops/link-engine/pkg/llm"
	"github.com/atelier-ops/link-engine/pkg/mcp"
	"github.com/atelier-ops/link-engine/pkg/repositories"
	"github.com/atelier-ops/link-engine/pkg/services"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var verbose bool

// app holds the wired dependency graph for one command invocation.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sql.DB

	messages repositories.MessageRepository
	projects repositories.ProjectRepository
	contacts repositories.ContactRepository
	links    repositories.LinkRepository
	patterns repositories.PatternRepository
	reviews  repositories.ReviewRepository
	audit    repositories.AuditRepository

	linker     services.LinkerService
	patternSvc services.PatternService
	reconciler services.ReconcilerService
	importer   services.ImporterService
	stats      services.StatsService
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Env == "production" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zcfg.Build()
}

// buildApp loads config, opens the database, runs migrations, and wires the
// repositories and services. withLLM controls whether a classifier is
// constructed; commands that never classify skip it so they work without
// credentials.
func buildApp(withLLM bool) (*app, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(Version)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	db, err := database.Open(cfg.Database.Path, cfg.Database.BusyTimeoutMS, logger)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		messages: repositories.NewMessageRepository(db),
		projects: repositories.NewProjectRepository(db),
		contacts: repositories.NewContactRepository(db),
		links:    repositories.NewLinkRepository(db),
		patterns: repositories.NewPatternRepository(db),
		reviews:  repositories.NewReviewRepository(db),
		audit:    repositories.NewAuditRepository(db),
	}

	var classifier llm.Classifier
	if withLLM {
		classifier, err = llm.NewClassifier(cfg.LLM.Provider, &llm.Config{
			Endpoint:  cfg.LLM.Endpoint,
			Model:     cfg.LLM.Model,
			APIKey:    cfg.LLM.APIKey,
			BodyLimit: cfg.Linking.BodyTruncateLen,
		}, logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create classifier: %w", err)
		}
	}

	a.linker = services.NewLinkerService(
		a.messages, a.projects, a.contacts, a.links, a.patterns, a.reviews,
		a.audit, classifier, &cfg.Linking, &cfg.LLM, logger)
	a.patternSvc = services.NewPatternService(a.links, a.patterns, &cfg.Linking, logger)
	a.reconciler = services.NewReconcilerService(
		a.messages, a.projects, a.links, a.patterns, a.audit, &cfg.Linking, logger)
	a.importer = services.NewImporterService(a.projects, a.contacts, logger)
	a.stats = services.NewStatsService(
		a.projects, a.contacts, a.messages, a.links, a.patterns, a.reviews, a.audit)

	return a, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("Failed to close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

var rootCmd = &cobra.Command{
	Use:   "link-engine",
	Short: "Email-to-project linking engine",
	Long: `link-engine links incoming email messages to design projects.

Deterministic rules run first (thread inheritance, learned sender patterns,
contact and domain matching); LLM classification is the fallback. Confident
candidates become links, uncertain ones queue for manual review.`,
	SilenceUsage: true,
}

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Link unprocessed messages to projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		suggest, _ := cmd.Flags().GetBool("suggest")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		a, err := buildApp(true)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, cancel := signalContext()
		defer cancel()

		result, err := a.linker.ProcessBatch(ctx, services.BatchOptions{
			Limit:   limit,
			Suggest: suggest,
			DryRun:  dryRun,
		})
		if err != nil {
			return err
		}

		fmt.Printf("processed=%d auto_linked=%d queued_for_review=%d unlinked=%d failures=%d\n",
			result.Processed, result.AutoLinked, result.QueuedForReview,
			result.Unlinked, result.Failures)
		return nil
	},
}

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Manage learned sender patterns",
}

var patternsRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Recompute learned patterns from accepted links",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, cancel := signalContext()
		defer cancel()

		result, err := a.patternSvc.Rebuild(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("patterns=%d senders_excluded=%d\n",
			result.Patterns, result.SendersExcluded)
		return nil
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Repair links orphaned by upstream re-imports",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, cancel := signalContext()
		defer cancel()

		result, err := a.reconciler.Repair(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("run=%s orphans=%d relinked=%d deleted=%d patterns_reapplied=%d\n",
			result.RunID, result.OrphansFound, result.Relinked,
			result.Deleted, result.PatternsReapplied)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import projects and contacts from a YAML seed file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, cancel := signalContext()
		defer cancel()

		result, err := a.importer.ImportFile(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("projects=%d contacts=%d\n", result.Projects, result.Contacts)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Report store counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, cancel := signalContext()
		defer cancel()

		s, err := a.stats.Collect(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("projects=%d contacts=%d messages=%d unlinked=%d links=%d\n",
			s.Projects, s.Contacts, s.Messages, s.UnlinkedMessages, s.Links)
		fmt.Printf("patterns=%d pending_reviews=%d classification_failures=%d\n",
			s.LearnedPatterns, s.PendingReviews, s.ClassificationFailures)
		return nil
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve read-only operator tools over MCP stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(true)
		if err != nil {
			return err
		}
		defer a.close()

		srv := mcp.NewServer("link-engine", Version, a.logger)
		mcp.RegisterTools(srv, &mcp.ToolDeps{
			Messages: a.messages,
			Reviews:  a.reviews,
			Linker:   a.linker,
			Stats:    a.stats,
			Logger:   a.logger,
		})

		return srv.ServeStdio()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	linkCmd.Flags().Int("limit", 0, "max messages to process (0 = config batch size)")
	linkCmd.Flags().Bool("suggest", false, "keep rule candidates when classification fails")
	linkCmd.Flags().Bool("dry-run", false, "evaluate and count without writing")

	patternsCmd.AddCommand(patternsRebuildCmd)

	rootCmd.AddCommand(linkCmd, patternsCmd, reconcileCmd, importCmd, statsCmd, mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
