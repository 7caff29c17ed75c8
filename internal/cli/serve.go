package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/akshayaggarwal99/judge/internal/api"
	"github.com/akshayaggarwal99/judge/internal/config"
	"github.com/akshayaggarwal99/judge/internal/coupler"
	"github.com/akshayaggarwal99/judge/internal/lang"
	"github.com/akshayaggarwal99/judge/internal/metrics"
	"github.com/akshayaggarwal99/judge/internal/pipeline"
	"github.com/akshayaggarwal99/judge/internal/sandbox"
)

var (
	port        string
	toolPath    string
	numBoxes    int
	cgroups     bool
	languageDir string
	configFile  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the judge HTTP server",
	Run: func(cmd *cobra.Command, args []string) {
		runServer(cmd)
	},
}

func init() {
	def := config.DefaultServer()
	serveCmd.Flags().StringVarP(&port, "port", "p", def.Port, "HTTP server port")
	serveCmd.Flags().StringVar(&toolPath, "tool-path", def.ToolPath, "Path to the isolate-compatible binary")
	serveCmd.Flags().IntVar(&numBoxes, "num-boxes", def.NumBoxes, "Number of sandbox box ids to manage")
	serveCmd.Flags().BoolVar(&cgroups, "cgroups", def.CGroups, "Pass --cg to the isolation tool")
	serveCmd.Flags().StringVar(&languageDir, "languages", def.LanguageDir, "Path to the language descriptor table")
	serveCmd.Flags().StringVar(&configFile, "config", "", "Optional YAML server config file, overridden by flags")
	serveCmd.Flags().StringVar(&apiKey, "api-key", os.Getenv("JUDGE_API_KEY"), "API key for authentication")
	RootCmd.AddCommand(serveCmd)
}

func runServer(cmd *cobra.Command) {
	cfg, err := config.LoadServer(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load server config")
	}
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = port
	}
	if flags.Changed("tool-path") {
		cfg.ToolPath = toolPath
	}
	if flags.Changed("num-boxes") {
		cfg.NumBoxes = numBoxes
	}
	cfg.CGroups = cfg.CGroups || cgroups
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	if flags.Changed("languages") {
		cfg.LanguageDir = languageDir
	}

	log.Info().Str("tool", cfg.ToolPath).Int("boxes", cfg.NumBoxes).Str("port", cfg.Port).Msg("starting judge server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		cancel()
	}()

	descs, err := config.LoadLanguages(cfg.LanguageDir)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.LanguageDir).Msg("failed to load language descriptors")
	}
	registry := lang.NewRegistry(descs)
	log.Info().Int("declared", len(registry.All())).Int("eligible", len(registry.Eligible())).Msg("language registry loaded")

	driver := sandbox.NewIsolateDriver(sandbox.IsolateDriverConfig{
		ToolPath: cfg.ToolPath,
		NumBoxes: cfg.NumBoxes,
		CGroups:  cfg.CGroups,
	})
	metrics.ObservePoolSize(cfg.NumBoxes)
	go pollPoolMetrics(ctx, driver)

	pl := pipeline.New(driver)
	ip := pipeline.NewInteractive(driver, coupler.New(cfg.ToolPath, cfg.CGroups))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	h := api.NewHandler(registry, pl, ip, cfg.APIKey)
	h.RegisterRoutes(e)

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("server listening")
		serverErr <- e.Start(":" + cfg.Port)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server forced to shutdown")
		}
	case err := <-serverErr:
		if err != nil {
			log.Fatal().Err(err).Msg("server startup failed")
		}
	}
}

func pollPoolMetrics(ctx context.Context, d *sandbox.IsolateDriver) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, inUse := d.PoolStats()
			metrics.BoxesInUse.Set(float64(inUse))
		}
	}
}
