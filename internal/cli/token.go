package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jhoicas/facturae-api/pkg/jwt"
)

var (
	tokenUser    string
	tokenIssuer  string
	tokenRole    string
	tokenMinutes int
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Genera un JWT para un emisor y rol",
	RunE: func(cmd *cobra.Command, args []string) error {
		switch tokenRole {
		case jwt.RoleAdmin, jwt.RoleBilling, jwt.RoleAuditor:
		default:
			return fmt.Errorf("rol desconocido: %s", tokenRole)
		}
		if tokenUser == "" {
			tokenUser = uuid.NewString()
		}
		minutes := tokenMinutes
		if minutes <= 0 {
			minutes = cfg.JWT.Expiration
		}
		tok, err := jwt.Generate(cfg.JWT.Secret, tokenUser, tokenIssuer, tokenRole, cfg.JWT.Issuer, minutes)
		if err != nil {
			return err
		}
		fmt.Fprintln(out(cmd), tok)
		return nil
	},
}

func init() {
	f := tokenCmd.Flags()
	f.StringVar(&tokenUser, "user", "", "ID de usuario (por defecto uno aleatorio)")
	f.StringVar(&tokenIssuer, "issuer", "", "ID del emisor")
	f.StringVar(&tokenRole, "role", jwt.RoleBilling, "admin | facturador | auditor")
	f.IntVar(&tokenMinutes, "minutes", 0, "validez en minutos (por defecto JWT_EXPIRATION_MINUTES)")
	_ = tokenCmd.MarkFlagRequired("issuer")
}
