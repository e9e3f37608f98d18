package main

import (
	"context"
	"embed"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/menu"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/mac"
	"go.uber.org/zap"

	bentoApp "bento/internal/app"
	"bento/internal/config"
	"bento/internal/logging"
	"bento/internal/secret"
)

//go:embed all:frontend/dist
var assets embed.FS

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd opens the desktop board.
var rootCmd = &cobra.Command{
	Use:   "bento",
	Short: "Bento - a grid of link, image and text cards",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config %s: %w", configPath, err)
		}
		logger, err = logging.New(cfg.Logging, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDesktop()
	},
}

// mcpCmd serves the board to AI agents over stdio, without a window.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run a standalone MCP server on stdin/stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return bentoApp.ServeMCP(ctx, cfg, logger)
	},
}

// secretCmd manages credentials kept in the OS keychain, such as the
// storage DSN named by storage.dsn_secret.
var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage keychain secrets",
}

var secretSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a secret",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return secret.NewKeychainStore().Set(args[0], []byte(args[1]))
	},
}

var secretDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Remove a secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return secret.NewKeychainStore().Delete(args[0])
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c",
		filepath.Join(config.DefaultDataDir(), "config.yaml"), "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	secretCmd.AddCommand(secretSetCmd, secretDeleteCmd)
	rootCmd.AddCommand(mcpCmd, secretCmd)
}

func runDesktop() error {
	app := bentoApp.New(cfg, logger)

	// macOS needs an Edit menu for Cmd+C/V/X/A to reach the WebView
	appMenu := menu.NewMenu()
	appMenu.Append(menu.EditMenu())

	return wails.Run(&options.App{
		Title:     "Bento",
		Width:     1280,
		Height:    860,
		MinWidth:  360,
		MinHeight: 480,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		BackgroundColour: &options.RGBA{R: 15, G: 15, B: 20, A: 1},
		Menu:             appMenu,
		OnStartup:        app.Startup,
		OnBeforeClose:    app.BeforeClose,
		OnShutdown:       app.Shutdown,
		Bind: []interface{}{
			app,
		},
		Mac: &mac.Options{
			TitleBar: &mac.TitleBar{
				TitlebarAppearsTransparent: true,
				HideTitle:                  true,
				FullSizeContent:            true,
			},
			About: &mac.AboutInfo{
				Title:   "Bento",
				Message: "Personal bento grid of links, images and notes",
			},
		},
	})
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
