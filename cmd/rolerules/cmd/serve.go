package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/clypper/roles-rules/internal/api"
	"github.com/clypper/roles-rules/internal/api/middleware"
	"github.com/clypper/roles-rules/internal/config"
	"github.com/clypper/roles-rules/internal/pricing"
	"github.com/clypper/roles-rules/internal/repository"
	"github.com/clypper/roles-rules/internal/service"
	"github.com/clypper/roles-rules/pkg/db"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the rules HTTP service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "", "HTTP listen host (overrides config)")
	serveCmd.Flags().Int("port", 0, "HTTP listen port (overrides config)")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.Encoding = cfg.LogFormat
	return zapCfg.Build()
}

func runServe(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("host") {
		cfg.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetInt("port")
	}
	if dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database URL required (--db-url or RR_DB_URL)")
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer conn.Close()

	queries, err := db.LoadQueries(conn)
	if err != nil {
		return fmt.Errorf("load queries: %w", err)
	}

	store := repository.NewRoleRulesRepo(queries)
	catalog := repository.NewCatalogRepo(queries)
	roles := repository.NewRolesRepo(queries)
	svc := service.NewRuleService(store, catalog, log)
	resolver := pricing.NewResolver(int32(cfg.Precision))

	authn := &middleware.StaticTokenAuthenticator{Tokens: map[string]*middleware.Identity{}}
	if cfg.AdminToken != "" {
		authn.Tokens[cfg.AdminToken] = &middleware.Identity{
			Subject:      "admin",
			Capabilities: map[string]bool{middleware.CapManageOptions: true},
		}
	}
	if cfg.CatalogToken != "" {
		authn.Tokens[cfg.CatalogToken] = &middleware.Identity{
			Subject:      "catalog",
			Capabilities: map[string]bool{middleware.CapManageCatalog: true},
		}
	}

	handler := api.NewRouter(svc, roles, resolver, authn, log)
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		<-c
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error("server shutdown", zap.Error(err))
		}
		close(idleConnsClosed)
	}()

	log.Info("starting rules service", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen: %w", err)
	}

	<-idleConnsClosed
	log.Info("server stopped")
	return nil
}
