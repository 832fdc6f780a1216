package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"draftpool/internal/article"
	"draftpool/internal/config"
	"draftpool/internal/httpclient"
	"draftpool/internal/ideate"
	"draftpool/internal/llm"
	"draftpool/internal/pool"
	"draftpool/internal/state"
	"draftpool/internal/wordpress"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "draftpool",
	Short:   "WordPress draft-pool replenisher",
	Long:    "draftpool keeps a WordPress site's pool of draft posts topped up with AI-generated, deduplicated travel articles.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Secrets may live in a local .env; missing file is fine.
		_ = godotenv.Load()

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("draftpool", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/draftpool/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to set the site URL, region and provider, then export the named secrets.")
		return nil
	},
}

// --- run command ---

var dryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one replenishment pass: count drafts, generate ideas, create drafts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := buildController()
		if err != nil {
			return err
		}

		ctx := context.Background()
		var result *pool.Result
		if dryRun {
			result, err = ctrl.DryRun(ctx)
		} else {
			result, err = ctrl.Run(ctx)
		}
		if result != nil {
			printResult(result)
		}
		return err
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be done without generating or creating anything")
}

func printResult(r *pool.Result) {
	if r.Locked {
		return
	}
	fmt.Println("\nRun summary:")
	fmt.Printf("  Existing drafts: %d\n", r.CurrentDrafts)
	fmt.Printf("  Needed: %d\n", r.Needed)
	fmt.Printf("  Ideas collected: %d\n", r.Collected)
	fmt.Printf("  Drafts created: %d\n", r.Created)
}

// --- status command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local state: used titles and today's lock",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := state.Open(cfg.GetDataDir())
		if err != nil {
			return err
		}

		used := store.LoadUsedTitles()
		today := time.Now().UTC()

		fmt.Printf("Data dir: %s\n", store.Dir())
		fmt.Printf("Used titles: %d\n", len(used))
		if store.HasRunMarker(today) {
			fmt.Printf("Run lock: present for %s\n", today.Format("2006-01-02"))
		} else {
			fmt.Println("Run lock: none for today")
		}
		fmt.Printf("Pool target: %d (create limit %d)\n", cfg.Pool.Target, cfg.Pool.CreateLimit)
		return nil
	},
}

// --- unlock command ---

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Remove today's run-lock marker so the next run proceeds",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := state.Open(cfg.GetDataDir())
		if err != nil {
			return err
		}

		today := time.Now().UTC()
		if !store.HasRunMarker(today) {
			fmt.Println("No lock marker for today.")
			return nil
		}
		if err := store.RemoveRunMarker(today); err != nil {
			return err
		}
		fmt.Printf("Removed lock marker for %s.\n", today.Format("2006-01-02"))
		return nil
	},
}

func buildController() (*pool.Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := httpclient.New(
		time.Duration(cfg.HTTP.TimeoutSeconds)*time.Second,
		cfg.HTTP.Retries,
		time.Duration(cfg.HTTP.BackoffSeconds)*time.Second,
	)

	wp, err := wordpress.New(cfg.Site.BaseURL, cfg.Site.Username, cfg.Site.AppPassword, cfg.Site.AuthorID, cfg.Site.CategoryID, client)
	if err != nil {
		return nil, err
	}

	provider, err := llm.CreateProvider(cfg.LLM, cfg.Site.BaseURL, client)
	if err != nil {
		return nil, err
	}
	log.Printf("Using %s provider", provider.Name())

	store, err := state.Open(cfg.GetDataDir())
	if err != nil {
		return nil, err
	}

	ideas := ideate.NewGenerator(provider, cfg.Site.Region, cfg.Article.Language)
	articles := article.NewGenerator(provider, cfg.Site.BaseURL, cfg.Article.Language, cfg.Article.MinWords, cfg.Article.MaxWords)

	return pool.New(cfg, wp, store, ideas, articles), nil
}
