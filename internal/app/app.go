// Package app wires the gateway's configuration, storage, services and
// dispatcher into a single App shared by both binaries.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aiveilix/aiveilix/internal/clients/knowledge"
	"github.com/aiveilix/aiveilix/internal/common"
	"github.com/aiveilix/aiveilix/internal/interfaces"
	"github.com/aiveilix/aiveilix/internal/mcp"
	"github.com/aiveilix/aiveilix/internal/services/auth"
	"github.com/aiveilix/aiveilix/internal/services/oauth"
	"github.com/aiveilix/aiveilix/internal/storage"
)

// purgeInterval controls how often expired codes and tokens are removed.
const purgeInterval = 15 * time.Minute

// App holds the initialized services and clients. There are no package
// level singletons; everything reachable from handlers hangs off App.
type App struct {
	Config     *common.Config
	Logger     *common.Logger
	Storage    interfaces.StorageManager
	Knowledge  interfaces.KnowledgeClient
	OAuth      interfaces.OAuthService
	Bridge     interfaces.CredentialBridge
	Dispatcher interfaces.ProtocolDispatcher

	StartupTime time.Time

	purgeCancel context.CancelFunc
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes configuration, storage, services and the dispatcher.
// configPath may be empty, in which case AIVEILIX_CONFIG and the binary
// directory are tried in order.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	binDir := getBinaryDir()

	if configPath == "" {
		configPath = os.Getenv("AIVEILIX_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "aiveilix.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/aiveilix.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Resolve relative storage path to binary directory
	if config.Storage.Path != "" && !filepath.IsAbs(config.Storage.Path) {
		config.Storage.Path = filepath.Join(binDir, config.Storage.Path)
	}

	logger := common.NewLogger(config.Logging.Level)

	storageManager, err := storage.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	knowledgeClient := knowledge.NewClient(config.Knowledge.ServiceToken,
		knowledge.WithBaseURL(config.Knowledge.BaseURL),
		knowledge.WithRateLimit(config.Knowledge.RateLimit),
		knowledge.WithTimeout(config.Knowledge.GetTimeout()),
		knowledge.WithLogger(logger),
	)

	oauthService := oauth.NewService(storageManager.OAuthStore(), config, logger)
	bridge := auth.NewBridge(oauthService, storageManager.APIKeyStore(), knowledgeClient, logger)
	dispatcher := mcp.NewDispatcher(bridge, knowledgeClient, logger)

	a := &App{
		Config:      config,
		Logger:      logger,
		Storage:     storageManager,
		Knowledge:   knowledgeClient,
		OAuth:       oauthService,
		Bridge:      bridge,
		Dispatcher:  dispatcher,
		StartupTime: startupStart,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")

	return a, nil
}

// StartPurgeLoop launches the background loop that removes expired codes
// and tokens.
func (a *App) StartPurgeLoop() {
	ctx, cancel := context.WithCancel(context.Background())
	a.purgeCancel = cancel
	go func() {
		ticker := time.NewTicker(purgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := a.OAuth.PurgeExpired(ctx); err != nil {
					a.Logger.Warn().Err(err).Msg("Expired grant purge failed")
				}
			}
		}
	}()
}

// Close releases all resources held by the App.
func (a *App) Close() {
	if a.purgeCancel != nil {
		a.purgeCancel()
		a.purgeCancel = nil
	}
	if a.Storage != nil {
		a.Storage.Close()
		a.Storage = nil
	}
}
