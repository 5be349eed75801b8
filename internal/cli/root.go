// Package cli comandos de operación: migraciones, alta de emisores, verificación de la
// cadena, exportación y cola de revisión.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jhoicas/facturae-api/internal/bootstrap"
	"github.com/jhoicas/facturae-api/pkg/config"
	"github.com/jhoicas/facturae-api/pkg/logger"
)

var (
	cfg       *config.Config
	appLogger *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:               "attestctl",
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	Short:             "Operación de la cadena de atestación de facturas",
	SilenceUsage:      true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("cargar configuración: %w", err)
		}
		appLogger = logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, Output: os.Stderr})
		return nil
	},
}

// Execute punto de entrada de cmd/attestctl.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(issuerCmd)
	rootCmd.AddCommand(clientsCmd)
	rootCmd.AddCommand(verifyChainCmd)
	rootCmd.AddCommand(certInfoCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(dlqCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(userCmd)
}

// openApp construye los servicios contra la base de datos configurada.
func openApp(ctx context.Context) (*bootstrap.App, error) {
	return bootstrap.New(ctx, cfg, appLogger.Zerolog())
}

func zlog() zerolog.Logger { return appLogger.Zerolog() }

func out(cmd *cobra.Command) io.Writer { return cmd.OutOrStdout() }
