// finlens: financial statement analysis with AI narratives.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/seenimoa/finlens/api"
	"github.com/seenimoa/finlens/internal/config"
	"github.com/seenimoa/finlens/internal/infra"
	"github.com/seenimoa/finlens/internal/llm"
	"github.com/seenimoa/finlens/internal/report"
	"github.com/seenimoa/finlens/internal/statement"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config
var cfg *config.Config

// stdin is shared by the correction prompts and the chat REPL.
var stdin = bufio.NewReader(os.Stdin)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "finlens",
	Short: "finlens: financial ratio analysis, forecasts and AI narratives",
	Long: `finlens reads financial statements (CSV, Excel or PDF), computes
profitability, utilization, liquidity, leverage, growth, cash-flow and
valuation ratios, projects them forward, compares companies or an industry
benchmark, and writes bilingual (English/Arabic) reports.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return eris.Wrap(err, "failed to load config")
		}

		level := cfg.Logging.Level
		if l, _ := cmd.Flags().GetString("log-level"); l != "" {
			level = l
		}
		infra.SetupLogger(level, cfg.Logging.Format)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(templateCmd)
	rootCmd.AddCommand(ratiosCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("finlens %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Template Command ---

var templateCmd = &cobra.Command{
	Use:   "template [dir]",
	Short: "Write the sample financial statement template",
	Long:  "Write financial_template.csv (or .xlsx with --xlsx) with every recognized column and three sample years.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		xlsx, _ := cmd.Flags().GetBool("xlsx")

		name, write := statement.TemplateCSVName, report.WriteTemplateCSV
		if xlsx {
			name, write = statement.TemplateXLSXName, report.WriteTemplateXLSX
		}
		path := filepath.Join(dir, name)
		if err := writeFileWith(path, write); err != nil {
			return err
		}
		fmt.Printf("📄 Template written to %s\n", path)
		return nil
	},
}

func init() {
	templateCmd.Flags().Bool("xlsx", false, "write an Excel workbook instead of CSV")
}

// --- Ratios Command ---

var ratiosCmd = &cobra.Command{
	Use:   "ratios",
	Short: "List every computed ratio by category",
	Run: func(cmd *cobra.Command, args []string) {
		report.RenderRatioCatalog(os.Stdout, colorEnabled(cmd))
	},
}

func init() {
	ratiosCmd.Flags().Bool("no-color", false, "disable colored output")
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.API.Port = port
		}
		api.Version = version

		srv, err := api.NewServer(cfg)
		if err != nil {
			return err
		}
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		fmt.Printf("🌐 Starting finlens API server on %s\n", addr)
		return srv.ListenAndServe(addr)
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (default from config)")
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  finlens: System Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:       %s (%s)\n", version, commit)
		fmt.Printf("  Config file:   %s\n", config.ConfigFilePath())
		fmt.Println()

		// Config summary
		fmt.Println("  Configuration:")
		fmt.Printf("    LLM Provider:  %s (model: %s)\n", cfg.LLM.Primary, cfg.LLM.Model)
		fmt.Printf("    PDF Reader:    %s\n", cfg.LLM.DocumentProvider)
		fmt.Printf("    Languages:     %v\n", cfg.Analysis.Languages)
		fmt.Printf("    Forecast:      %d periods (min history %d)\n", cfg.Analysis.ForecastPeriods, cfg.Analysis.ForecastMinPeriods)
		fmt.Printf("    API Server:    %s:%d\n", cfg.API.Host, cfg.API.Port)
		fmt.Printf("    Reports:       %s (author: %s)\n", cfg.Report.OutputDir, cfg.Report.Author)
		fmt.Println()

		// API keys status
		fmt.Println("  API Keys:")
		keys := config.CheckAPIKeys(cfg)
		for _, k := range keys {
			status := "❌ not set"
			if k.IsSet {
				status = fmt.Sprintf("✅ set (%s: %s)", k.Source, k.Masked)
			}
			fmt.Printf("    %-25s %s\n", k.Name+":", status)
		}
		ai := "❌ unavailable (numeric analysis only)"
		if config.HasKeyFor(cfg, cfg.LLM.Primary) {
			ai = "✅ " + cfg.LLM.Primary
		}
		fmt.Printf("    %-25s %s\n", "AI narratives:", ai)

		if ping, _ := cmd.Flags().GetBool("ping"); ping {
			fmt.Println()
			fmt.Println("  Provider Health:")
			router, err := llm.NewRouterFromConfig(cfg)
			if err != nil {
				fmt.Printf("    ❌ %v\n", err)
			} else {
				results := router.HealthCheck(cmd.Context())
				for _, name := range router.ProviderNames() {
					status := "✅ reachable"
					if err := results[name]; err != nil {
						status = "❌ " + err.Error()
					}
					fmt.Printf("    %-25s %s\n", name+":", status)
				}
			}
		}

		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("ping", false, "ping every configured AI provider")
}
