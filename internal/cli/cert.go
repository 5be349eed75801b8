package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jhoicas/facturae-api/internal/infrastructure/facturae/signer"
)

var certInfoCmd = &cobra.Command{
	Use:   "cert-info",
	Short: "Diagnóstico del certificado de firma configurado",
	Long:  "Carga SIGNING_CERT_PATH con su contraseña y muestra titular, emisor y vigencia.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := signer.NewStoreFromConfig(cfg.Signing, signer.WithLogger(zlog()))
		if err != nil {
			return fmt.Errorf("no se pudo cargar el certificado: %w", err)
		}
		info, err := store.Info()
		if errors.Is(err, signer.ErrUnsignedMode) {
			fmt.Fprintln(out(cmd), "modo sin firma: no hay certificado configurado")
			return nil
		}
		if err != nil {
			return err
		}
		validity, err := store.Validate()
		if err != nil {
			return err
		}
		return printJSON(cmd, struct {
			signer.Info
			Validity signer.ValidityReport `json:"validity"`
		}{info, validity})
	},
}
