package main

import (
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/BiasLens/internal/analyze"
	"github.com/TobiSchelling/BiasLens/internal/auth"
	"github.com/TobiSchelling/BiasLens/internal/collect"
	"github.com/TobiSchelling/BiasLens/internal/config"
	"github.com/TobiSchelling/BiasLens/internal/database"
	"github.com/TobiSchelling/BiasLens/internal/llm"
	"github.com/TobiSchelling/BiasLens/internal/logging"
	"github.com/TobiSchelling/BiasLens/internal/pipeline"
	"github.com/TobiSchelling/BiasLens/internal/reputation"
	"github.com/TobiSchelling/BiasLens/internal/scrape"
	"github.com/TobiSchelling/BiasLens/internal/server"
	"github.com/TobiSchelling/BiasLens/internal/similar"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	envPath    string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "biaslens",
	Short:   "News bias analysis with community voting",
	Long:    "BiasLens analyzes news articles for political bias, sentiment and factual accuracy, and lets readers vote on them while earning badges.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			logging.Setup("info", verbose)
			return nil
		}

		if err := config.LoadEnv(envPath); err != nil {
			return err
		}
		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logging.Setup(cfg.Logging.Level, verbose)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env-file", ".env", "Path to a dotenv file with API keys")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(voteCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(badgesCmd)
	rootCmd.AddCommand(relatedCmd)
	rootCmd.AddCommand(usersCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("biaslens", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/biaslens/",
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
		fmt.Println("Edit it to configure feeds and the LLM provider. Put API keys in .env or your environment.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats(cmd.Context())
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Articles:")
		fmt.Printf("  Analyzed: %d\n", stats.Articles)
		fmt.Printf("  Analysis requests: %d (%d failed)\n", stats.Requests, stats.FailedRequests)
		fmt.Println("\nCommunity:")
		fmt.Printf("  Votes: %d\n", stats.Votes)
		fmt.Printf("  Profiles: %d\n", stats.Profiles)
		fmt.Printf("  Badges awarded: %d\n", stats.BadgesAwarded)
		fmt.Printf("  API tokens: %d\n", stats.Tokens)
		fmt.Println("\nAnalysis:")
		fmt.Printf("  Model: %s (%s)\n", cfg.Analysis.Model, cfg.Analysis.BaseURL)
		if cfg.Analysis.APIKey() == "" {
			fmt.Printf("  API key: not set (%s)\n", cfg.Analysis.APIKeyEnv)
		} else {
			fmt.Println("  API key: set")
		}
		fmt.Printf("  Similar articles: %v\n", cfg.Similar.Enabled)
		return nil
	},
}

// --- serve command ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API and web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if servePort > 0 {
			cfg.Server.Port = servePort
		}

		rep, err := newReputation(db)
		if err != nil {
			return err
		}
		srv, err := server.New(db, server.Options{
			Analyzer:         newAnalyzer(db),
			Scraper:          newScraper(),
			Reputation:       rep,
			Tokens:           auth.NewTokenStore(db),
			AnalyzePerMinute: cfg.Server.AnalyzePerMinute,
			AnalyzeBurst:     cfg.Server.AnalyzeBurst,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Starting server at http://%s\n", cfg.Addr())
		fmt.Println("Press Ctrl+C to stop")
		return srv.ListenAndServe(ctx, cfg.Addr())
	},
}

var servePort int

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Override the configured port")
}

// --- analyze command ---

var analyzeFlags struct {
	headline string
	content  string
	url      string
	file     string
	user     string
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze an article from text, a URL or a file",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		sub := analyze.Submission{
			UserID:   analyzeFlags.user,
			Headline: analyzeFlags.headline,
			Content:  analyzeFlags.content,
			URL:      analyzeFlags.url,
		}
		if analyzeFlags.file != "" {
			data, err := os.ReadFile(analyzeFlags.file)
			if err != nil {
				return fmt.Errorf("reading %s: %w", analyzeFlags.file, err)
			}
			page, err := scrape.ExtractFile(analyzeFlags.file, mime.TypeByExtension(filepath.Ext(analyzeFlags.file)), data)
			if err != nil {
				return err
			}
			sub.InputType = analyze.InputFile
			sub.InputContent = filepath.Base(analyzeFlags.file)
			sub.Content = page.Content
			sub.SourceName = page.SourceName
			if sub.Headline == "" {
				sub.Headline = page.Headline
			}
		}

		res, err := newAnalyzer(db).Analyze(cmd.Context(), sub)
		if err != nil {
			return err
		}

		a := res.Analysis
		fmt.Printf("Article %s: %s\n\n", res.Article.ID, res.Article.Headline)
		fmt.Printf("  Bias:        %s (%.0f)\n", a.BiasLabel, a.BiasScore)
		fmt.Printf("  Sentiment:   %s (%.2f)\n", a.SentimentLabel, a.SentimentScore)
		fmt.Printf("  Fact check:  %.0f/100\n", a.FactCheckScore)
		fmt.Printf("  Credibility: %.0f/10\n", a.CredibilityScore)
		fmt.Printf("  Confidence:  %.0f%%\n\n", a.Confidence)
		fmt.Println(a.Explanation)
		for _, f := range a.KeyFindings {
			fmt.Printf("  - %s\n", f)
		}
		return nil
	},
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeFlags.headline, "headline", "", "Article headline")
	f.StringVar(&analyzeFlags.content, "content", "", "Article text")
	f.StringVar(&analyzeFlags.url, "url", "", "Article URL to scrape when no content is given")
	f.StringVar(&analyzeFlags.file, "file", "", "Path to a .txt or .html file")
	f.StringVar(&analyzeFlags.user, "user", "", "User ID recorded with the request")
	analyzeCmd.MarkFlagsMutuallyExclusive("url", "file")
}

// --- ingest command ---

var ingestFlags struct {
	daysBack int
	limit    int
	dryRun   bool
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Analyze new articles from the configured RSS feeds",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		collector := collect.NewCollector(cfg, db, ingestFlags.daysBack)
		pipe := pipeline.New(collector, newAnalyzer(db), ingestFlags.limit)

		var result *pipeline.Result
		if ingestFlags.dryRun {
			result = pipe.DryRun(ctx)
		} else {
			result = pipe.Run(ctx)
		}

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/2: %s\n", i+1, step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			}
			if step.Summary != "" {
				fmt.Printf("  %s\n", step.Summary)
			}
		}

		printSources(result.Sources)

		if !ingestFlags.dryRun {
			fmt.Println("\nIngest complete! Run 'biaslens serve' to browse the results.")
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().IntVar(&ingestFlags.daysBack, "days-back", 1, "Only consider entries published within this many days")
	ingestCmd.Flags().IntVar(&ingestFlags.limit, "limit", 0, "Maximum number of entries to analyze (0 = all)")
	ingestCmd.Flags().BoolVar(&ingestFlags.dryRun, "dry-run", false, "Show what would be analyzed without calling the model")
}

func openDB() (*database.DB, error) {
	if err := os.MkdirAll(cfg.GetDataDir(), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(cfg.DBPath())
}

func newReputation(db *database.DB) (*reputation.Service, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return reputation.NewService(db, reputation.WithLocation(loc)), nil
}

func newScraper() *scrape.Scraper {
	return scrape.New(cfg.Scrape.Timeout(), cfg.Scrape.UserAgent, cfg.Scrape.MaxBodyBytes)
}

func newAnalyzer(db *database.DB) *analyze.Analyzer {
	a := cfg.Analysis
	provider := llm.CreateProvider(a.BaseURL, a.Model, a.APIKey(), a.Temperature)

	opts := analyze.Options{
		Scraper:   newScraper(),
		MaxTokens: a.MaxTokens,
		Timeout:   a.Timeout(),
	}
	if cfg.Similar.Enabled {
		s := cfg.Similar
		embedder := llm.NewOpenAIEmbedder(s.BaseURL, s.EmbeddingModel, s.APIKey())
		opts.Linker = similar.NewLinker(db, embedder, similar.Options{
			Candidates: s.Candidates,
			TopK:       s.TopK,
			Threshold:  s.Threshold,
		})
	}
	return analyze.NewAnalyzer(db, provider, opts)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return strings.ToLower(keys[i]) < strings.ToLower(keys[j])
	})
	return keys
}

func printSources(sources map[string]int) {
	if len(sources) == 0 {
		return
	}
	fmt.Println("\nNew entries by source:")
	for _, k := range sortedKeys(sources) {
		fmt.Printf("  %s: %d\n", k, sources[k])
	}
}
