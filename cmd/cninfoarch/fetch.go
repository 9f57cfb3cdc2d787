package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cninfoarch/internal/ai"
	"cninfoarch/internal/cninfo"
	"cninfoarch/internal/config"
	"cninfoarch/internal/download"
	"cninfoarch/internal/ledger"
	"cninfoarch/internal/notify"
	"cninfoarch/internal/report"
	"cninfoarch/internal/retry"
	"cninfoarch/internal/ticker"
	"cninfoarch/internal/types"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch announcements and download their documents",
	Long: "Fetches announcement pages for the given tickers (or market-wide when none are given), " +
		"filters out documents archived in earlier runs, downloads the rest and writes a run report.",
	RunE: runFetch,
}

var (
	fetchCfg       = config.Default()
	fetchStockCode string
	fetchStockFile string
	fetchPlanOnly  bool
)

func init() {
	f := fetchCmd.Flags()
	f.StringVar(&fetchStockCode, "stock-code", "", "Comma-separated ticker codes (600000, 000001.SZ, 600000.SH)")
	f.StringVar(&fetchStockFile, "stock-file", "", "File with one ticker code per line")
	f.BoolVar(&fetchPlanOnly, "plan-only", false, "Print the crawl plan and exit without network activity")

	f.StringVar(&fetchCfg.SaveDir, "save-dir", fetchCfg.SaveDir, "Archive directory")
	f.StringVar(&fetchCfg.OrgIDFile, "org-id-file", fetchCfg.OrgIDFile, "JSON table mapping codes to organization ids")
	f.IntVar(&fetchCfg.MaxItemsTotal, "max-items-total", fetchCfg.MaxItemsTotal, "Global cap on accepted announcements")
	f.IntVar(&fetchCfg.PageSize, "page-size", fetchCfg.PageSize, "Announcements per page request")
	f.IntVar(&fetchCfg.Days, "days", fetchCfg.Days, "Only fetch announcements from the last N days")
	f.Float64Var(&fetchCfg.TimeoutMin, "timeout-min", fetchCfg.TimeoutMin, "Minimum per-attempt timeout in seconds")
	f.Float64Var(&fetchCfg.TimeoutMax, "timeout-max", fetchCfg.TimeoutMax, "Maximum per-attempt timeout in seconds")
	f.Float64Var(&fetchCfg.DelayMin, "delay-min", fetchCfg.DelayMin, "Minimum delay between page requests in seconds")
	f.Float64Var(&fetchCfg.DelayMax, "delay-max", fetchCfg.DelayMax, "Maximum delay between page requests in seconds")
	f.Float64Var(&fetchCfg.DownloadDelayMin, "download-delay-min", fetchCfg.DownloadDelayMin, "Minimum delay between downloads in seconds")
	f.Float64Var(&fetchCfg.DownloadDelayMax, "download-delay-max", fetchCfg.DownloadDelayMax, "Maximum delay between downloads in seconds")
	f.IntVar(&fetchCfg.MaxRetries, "max-retries", fetchCfg.MaxRetries, "Retries after a failed request")
	f.Float64Var(&fetchCfg.RetryDelay, "retry-delay", fetchCfg.RetryDelay, "Search retry backoff base in seconds")
	f.Float64Var(&fetchCfg.DownloadRetryDelay, "download-retry-delay", fetchCfg.DownloadRetryDelay, "Download retry backoff base in seconds")
	f.BoolVar(&fetchCfg.NoHTML, "no-html", fetchCfg.NoHTML, "Download PDFs only, skip HTML detail pages")
	f.IntVar(&fetchCfg.Workers, "workers", fetchCfg.Workers, "Concurrent per-ticker download workers")

	f.StringVar(&fetchCfg.SMTPServer, "smtp-server", fetchCfg.SMTPServer, "SMTP server for report delivery")
	f.IntVar(&fetchCfg.SMTPPort, "smtp-port", fetchCfg.SMTPPort, "SMTP port")
	f.StringVar(&fetchCfg.SMTPUser, "smtp-user", fetchCfg.SMTPUser, "SMTP username")
	f.StringVar(&fetchCfg.SMTPPass, "smtp-pass", fetchCfg.SMTPPass, "SMTP password or app password")
	f.StringVar(&fetchCfg.FromEmail, "from-email", fetchCfg.FromEmail, "Report sender (defaults to smtp-user)")
	f.StringVar(&fetchCfg.ToEmail, "to-email", fetchCfg.ToEmail, "Report recipient")

	f.StringVar(&fetchCfg.GeminiAPIKey, "gemini-api-key", fetchCfg.GeminiAPIKey, "Gemini API key for the optional run digest")
	f.StringVar(&fetchCfg.GeminiModel, "gemini-model", fetchCfg.GeminiModel, "Gemini model for the run digest")

	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, _ []string) error {
	cfg := fetchCfg
	if rootConfigPath != "" {
		fileCfg, err := config.LoadFile(rootConfigPath)
		if err != nil {
			return err
		}
		cfg = overlayFlags(cmd, cfg, fileCfg)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := slog.Default()

	codes, err := collectTickers(fetchStockCode, fetchStockFile)
	if err != nil {
		return err
	}

	resolver, err := ticker.LoadResolver(cfg.OrgIDFile)
	if err != nil {
		if len(codes) > 0 {
			return err
		}
		logger.Warn("org-id table unavailable, continuing market-wide", "error", err)
		resolver = ticker.NewResolver(nil)
	}

	var stocks []ticker.Identity
	for _, code := range codes {
		id, err := resolver.Resolve(code)
		if err != nil {
			logger.Warn("skipping ticker without org id mapping", "ticker", code)
			continue
		}
		stocks = append(stocks, id)
	}
	if len(codes) > 0 && len(stocks) == 0 {
		return fmt.Errorf("none of the %d requested tickers have an org id mapping", len(codes))
	}

	printPlan(cfg, codes)
	if fetchPlanOnly {
		fmt.Println("plan-only mode: no requests issued")
		return nil
	}

	if err := os.MkdirAll(cfg.SaveDir, 0o755); err != nil {
		return fmt.Errorf("failed to create save directory %s: %w", cfg.SaveDir, err)
	}

	led := ledger.Load(cfg.SaveDir)
	ledgerBefore := led.Len()
	logger.Info("ledger loaded", "ids", ledgerBefore, "path", led.Path())

	timeoutMin, timeoutMax := cfg.TimeoutRange()
	delayMin, delayMax := cfg.DelayRange()
	downloadDelayMin, downloadDelayMax := cfg.DownloadDelayRange()

	client := &cninfo.Client{
		TimeoutMin: timeoutMin,
		TimeoutMax: timeoutMax,
		Policy:     retry.Policy{MaxRetries: cfg.MaxRetries, BaseDelay: cfg.RetryBase()},
		Logger:     logger,
	}
	paginator := &cninfo.Paginator{
		Client:    client,
		Dedup:     led,
		PageSize:  cfg.PageSize,
		MaxItems:  cfg.MaxItemsTotal,
		DateRange: cninfo.DateRange(time.Now(), cfg.Days),
		DelayMin:  delayMin,
		DelayMax:  delayMax,
		Logger:    logger,
	}

	ctx := cmd.Context()
	res := paginator.Run(ctx, stocks)
	logger.Info("fetch complete",
		"accepted", len(res.Accepted), "skipped_duplicates", res.SkippedDuplicates, "pages", res.Pages)

	executor := &download.Executor{
		SaveDir:    cfg.SaveDir,
		TimeoutMin: timeoutMin,
		TimeoutMax: timeoutMax,
		Policy:     retry.Policy{MaxRetries: cfg.MaxRetries, BaseDelay: cfg.DownloadRetryBase()},
		DelayMin:   downloadDelayMin,
		DelayMax:   downloadDelayMax,
		Workers:    cfg.Workers,
		NoHTML:     cfg.NoHTML,
		Ledger:     led,
		Logger:     logger,
	}
	statuses := executor.Run(ctx, res.Accepted)

	if err := led.Persist(); err != nil {
		logger.Warn("failed to persist ledger", "error", err)
	} else {
		logger.Info("ledger saved", "ids", led.Len(), "path", led.Path())
	}

	rep := report.Build(res.Accepted, statuses, codes)
	rep.SaveDir = cfg.SaveDir
	rep.SkippedDuplicates = res.SkippedDuplicates
	rep.DegradedBatches = res.DegradedBatches
	rep.LedgerBefore = ledgerBefore
	rep.LedgerAfter = led.Len()
	rep.Settings = report.Settings{
		StockCode:        fetchStockCode,
		StockFile:        fetchStockFile,
		MaxItemsTotal:    cfg.MaxItemsTotal,
		PageSize:         cfg.PageSize,
		TimeoutMinSecs:   cfg.TimeoutMin,
		TimeoutMaxSecs:   cfg.TimeoutMax,
		DelayMinSecs:     cfg.DelayMin,
		DelayMaxSecs:     cfg.DelayMax,
		DownloadDelayMin: cfg.DownloadDelayMin,
		DownloadDelayMax: cfg.DownloadDelayMax,
		NoHTML:           cfg.NoHTML,
		Days:             cfg.Days,
	}

	if cfg.GeminiAPIKey != "" {
		if digest, err := ai.GenerateDigest(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, downloadedTitles(res.Accepted, statuses)); err != nil {
			logger.Warn("run digest failed", "error", err)
		} else {
			rep.Digest = digest.Markdown()
		}
	}

	if path, err := rep.Write(); err != nil {
		logger.Warn("failed to write report", "error", err)
	} else {
		logger.Info("report written", "path", path)
	}

	fmt.Printf("\nDone: %d PDF / %d HTML downloaded, %d fetched, %d duplicates skipped\n",
		rep.SuccessPDF, rep.SuccessHTML, rep.TotalFetched, rep.SkippedDuplicates)

	emailCfg := notify.EmailConfig{
		SMTPServer: cfg.SMTPServer,
		SMTPPort:   cfg.SMTPPort,
		SMTPUser:   cfg.SMTPUser,
		SMTPPass:   cfg.SMTPPass,
		FromEmail:  cfg.FromEmail,
		ToEmail:    cfg.ToEmail,
		Enabled:    cfg.EmailEnabled(),
	}
	subject := fmt.Sprintf("Announcement archive run: %d downloaded", rep.SuccessPDF+rep.SuccessHTML)
	_ = notify.SendReport(emailCfg, subject, rep.Render())

	return nil
}

// overlayFlags merges a config file with explicit command-line flags. The
// file provides the baseline; any flag the user set on this invocation wins.
func overlayFlags(cmd *cobra.Command, flagCfg, fileCfg config.Config) config.Config {
	merged := fileCfg
	set := func(name string, apply func()) {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}

	set("save-dir", func() { merged.SaveDir = flagCfg.SaveDir })
	set("org-id-file", func() { merged.OrgIDFile = flagCfg.OrgIDFile })
	set("max-items-total", func() { merged.MaxItemsTotal = flagCfg.MaxItemsTotal })
	set("page-size", func() { merged.PageSize = flagCfg.PageSize })
	set("days", func() { merged.Days = flagCfg.Days })
	set("timeout-min", func() { merged.TimeoutMin = flagCfg.TimeoutMin })
	set("timeout-max", func() { merged.TimeoutMax = flagCfg.TimeoutMax })
	set("delay-min", func() { merged.DelayMin = flagCfg.DelayMin })
	set("delay-max", func() { merged.DelayMax = flagCfg.DelayMax })
	set("download-delay-min", func() { merged.DownloadDelayMin = flagCfg.DownloadDelayMin })
	set("download-delay-max", func() { merged.DownloadDelayMax = flagCfg.DownloadDelayMax })
	set("max-retries", func() { merged.MaxRetries = flagCfg.MaxRetries })
	set("retry-delay", func() { merged.RetryDelay = flagCfg.RetryDelay })
	set("download-retry-delay", func() { merged.DownloadRetryDelay = flagCfg.DownloadRetryDelay })
	set("no-html", func() { merged.NoHTML = flagCfg.NoHTML })
	set("workers", func() { merged.Workers = flagCfg.Workers })
	set("smtp-server", func() { merged.SMTPServer = flagCfg.SMTPServer })
	set("smtp-port", func() { merged.SMTPPort = flagCfg.SMTPPort })
	set("smtp-user", func() { merged.SMTPUser = flagCfg.SMTPUser })
	set("smtp-pass", func() { merged.SMTPPass = flagCfg.SMTPPass })
	set("from-email", func() { merged.FromEmail = flagCfg.FromEmail })
	set("to-email", func() { merged.ToEmail = flagCfg.ToEmail })
	set("gemini-api-key", func() { merged.GeminiAPIKey = flagCfg.GeminiAPIKey })
	set("gemini-model", func() { merged.GeminiModel = flagCfg.GeminiModel })

	return merged
}

// collectTickers merges --stock-code entries with lines from --stock-file,
// normalizes them and removes duplicates while keeping first-seen order.
// Any malformed code or an unreadable file is fatal before network activity.
func collectTickers(stockCode, stockFile string) ([]string, error) {
	var raw []string
	for _, part := range strings.Split(stockCode, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			raw = append(raw, trimmed)
		}
	}

	if stockFile != "" {
		data, err := os.ReadFile(stockFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read stock file: %w", err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				raw = append(raw, trimmed)
			}
		}
	}

	seen := make(map[string]struct{}, len(raw))
	var codes []string
	for _, r := range raw {
		normalized, err := ticker.Normalize(r)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		codes = append(codes, normalized)
	}
	return codes, nil
}

// downloadedTitles collects the titles of successfully archived items,
// grouped by ticker, for the optional run digest.
func downloadedTitles(fetched []types.Announcement, statuses []types.ItemStatus) map[string][]string {
	downloaded := make(map[string]struct{})
	for _, st := range statuses {
		if st.Outcome == types.OutcomeDownloaded {
			downloaded[st.ID] = struct{}{}
		}
	}
	titles := make(map[string][]string)
	for _, a := range fetched {
		if _, ok := downloaded[a.ID]; ok {
			titles[a.SecCode] = append(titles[a.SecCode], a.Title)
		}
	}
	return titles
}

func printPlan(cfg config.Config, codes []string) {
	fmt.Println("Crawl plan:")
	if len(codes) > 0 {
		fmt.Printf("  tickers: %d (%s)\n", len(codes), strings.Join(codes, ", "))
	} else {
		fmt.Println("  tickers: all issuers")
	}
	fmt.Printf("  target: %d announcements\n", cfg.MaxItemsTotal)
	estimatedPages := (cfg.MaxItemsTotal + cfg.PageSize - 1) / cfg.PageSize
	fmt.Printf("  estimated pages: %d (page size %d)\n", estimatedPages, cfg.PageSize)
	fmt.Printf("  request delay: %.1f-%.1f s, download delay: %.1f-%.1f s\n",
		cfg.DelayMin, cfg.DelayMax, cfg.DownloadDelayMin, cfg.DownloadDelayMax)
	if cfg.Days > 0 {
		fmt.Printf("  date window: last %d days\n", cfg.Days)
	}
	if cfg.NoHTML {
		fmt.Println("  mode: PDF only")
	}
}
