package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jhoicas/facturae-api/internal/infrastructure/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Aplica las migraciones pendientes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pool, err := postgres.NewPool(ctx, cfg.DB, zlog())
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			return err
		}
		v, err := postgres.MigrationVersion(ctx, pool)
		if err != nil {
			return err
		}
		fmt.Fprintf(out(cmd), "esquema en la versión %d\n", v)
		return nil
	},
}
