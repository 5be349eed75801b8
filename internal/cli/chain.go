package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jhoicas/facturae-api/internal/infrastructure/facturae"
)

var verifyChainCmd = &cobra.Command{
	Use:   "verify-chain <issuer-id>",
	Short: "Recalcula todas las huellas de la cadena del emisor",
	Long:  "Sale con código 2 si la cadena presenta incidencias.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()
		report, err := app.Verifier.Verify(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := printJSON(cmd, report); err != nil {
			return err
		}
		if !report.Valid {
			app.Close()
			os.Exit(2)
		}
		return nil
	},
}

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <issuer-id>",
	Short: "Exporta la cadena completa del emisor a un ZIP con los XML firmados",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		issuer, err := app.Parties.GetIssuer(ctx, args[0])
		if err != nil {
			return err
		}
		records, err := app.Repos.Records.ListByIssuer(ctx, issuer.ID)
		if err != nil {
			return err
		}
		raw, err := facturae.ChainArchive(issuer.TaxID, records, time.Now())
		if err != nil {
			return err
		}
		path := exportOut
		if path == "" {
			path = fmt.Sprintf("cadena_%s_%s.zip", issuer.TaxID, time.Now().Format("20060102"))
		}
		if err := os.WriteFile(path, raw, 0o600); err != nil {
			return err
		}
		fmt.Fprintf(out(cmd), "%d eslabones exportados a %s\n", len(records), path)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "fichero ZIP de salida")
}
