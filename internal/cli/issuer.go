package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/jhoicas/facturae-api/internal/application/dto"
)

var issuerCmd = &cobra.Command{
	Use:   "issuer",
	Short: "Emisores (una cadena de atestación por emisor)",
}

var issuerIn dto.RegisterIssuerRequest

var issuerCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Da de alta un emisor",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()
		issuer, err := app.Parties.RegisterIssuer(cmd.Context(), issuerIn)
		if err != nil {
			return err
		}
		return printJSON(cmd, issuer)
	},
}

var issuerShowCmd = &cobra.Command{
	Use:   "show <issuer-id>",
	Short: "Muestra un emisor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()
		issuer, err := app.Parties.GetIssuer(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, issuer)
	},
}

func init() {
	f := issuerCreateCmd.Flags()
	f.StringVar(&issuerIn.Name, "name", "", "razón social")
	f.StringVar(&issuerIn.TaxID, "tax-id", "", "NIF del emisor")
	f.StringVar(&issuerIn.Address, "address", "", "dirección")
	f.StringVar(&issuerIn.PostalCode, "postal-code", "", "código postal")
	f.StringVar(&issuerIn.City, "city", "", "municipio")
	_ = issuerCreateCmd.MarkFlagRequired("name")
	_ = issuerCreateCmd.MarkFlagRequired("tax-id")

	issuerCmd.AddCommand(issuerCreateCmd)
	issuerCmd.AddCommand(issuerShowCmd)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(out(cmd))
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
