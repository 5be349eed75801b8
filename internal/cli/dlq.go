package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Cola de revisión de envíos agotados",
}

var dlqLimit int64

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lista los envíos que agotaron los reintentos",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()
		if app.DLQ == nil {
			return errors.New("REDIS_URL no configurado")
		}
		n, err := app.DLQ.Length(cmd.Context())
		if err != nil {
			return err
		}
		entries, err := app.DLQ.Entries(cmd.Context(), dlqLimit)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%d entradas en total\n", n)
		return printJSON(cmd, entries)
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry-due",
	Short: "Procesa una vez los envíos pendientes cuyo reintento ha vencido",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()
		n, err := app.Submissions.ProcessDue(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(out(cmd), "%d envíos procesados\n", n)
		return nil
	},
}

func init() {
	dlqListCmd.Flags().Int64VarP(&dlqLimit, "limit", "n", 20, "número máximo de entradas")
	dlqCmd.AddCommand(dlqListCmd)
}
