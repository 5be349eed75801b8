package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jhoicas/facturae-api/internal/application/billing"
	"github.com/jhoicas/facturae-api/internal/infrastructure/csvimport"
)

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "Clientes de un emisor",
}

var (
	importIssuer  string
	importCharset string
)

var clientsImportCmd = &cobra.Command{
	Use:   "import <fichero.csv>",
	Short: "Alta masiva de clientes desde CSV",
	Long: `Alta masiva de clientes desde un CSV con cabecera (nombre;nif;direccion;cp;ciudad;pais;email).
Las filas con NIF no válido o repetido se informan y se saltan.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		res, err := ImportClients(cmd.Context(), app.Parties, importIssuer, f, importCharset)
		if err != nil {
			return err
		}
		for _, e := range res.Errors {
			fmt.Fprintln(cmd.ErrOrStderr(), e)
		}
		fmt.Fprintf(out(cmd), "%d clientes creados, %d rechazados\n", res.Created, len(res.Errors))
		return nil
	},
}

// ImportResult resumen de una importación.
type ImportResult struct {
	Created int
	Errors  []string
}

// ImportClients da de alta cada fila del CSV. Un fallo en una fila no detiene el resto.
func ImportClients(ctx context.Context, parties *billing.PartyUseCase, issuerID string, r io.Reader, charset string) (*ImportResult, error) {
	if _, err := parties.GetIssuer(ctx, issuerID); err != nil {
		return nil, err
	}
	rows, err := csvimport.ReadClients(r, charset)
	if err != nil {
		return nil, err
	}
	res := &ImportResult{}
	for i, row := range rows {
		if _, err := parties.CreateClient(ctx, issuerID, row); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("fila %d (%s): %v", i+2, row.Name, err))
			continue
		}
		res.Created++
	}
	return res, nil
}

func init() {
	clientsImportCmd.Flags().StringVar(&importIssuer, "issuer", "", "ID del emisor")
	clientsImportCmd.Flags().StringVar(&importCharset, "charset", csvimport.CharsetLatin1, "juego de caracteres del fichero")
	_ = clientsImportCmd.MarkFlagRequired("issuer")
	clientsCmd.AddCommand(clientsImportCmd)
}
