package cli

import (
	"github.com/spf13/cobra"

	"github.com/jhoicas/facturae-api/internal/application/dto"
	"github.com/jhoicas/facturae-api/internal/domain/entity"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Usuarios de la API",
}

var (
	userIssuer string
	userIn     dto.RegisterUserRequest
)

// Primer administrador de un emisor: la API solo permite altas a otro admin.
var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Da de alta un usuario del emisor",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()
		user, err := app.Auth.RegisterUser(cmd.Context(), userIssuer, userIn)
		if err != nil {
			return err
		}
		return printJSON(cmd, user)
	},
}

func init() {
	f := userCreateCmd.Flags()
	f.StringVar(&userIssuer, "issuer", "", "ID del emisor")
	f.StringVar(&userIn.Email, "email", "", "email de acceso")
	f.StringVar(&userIn.Password, "password", "", "contraseña (mínimo 8 caracteres)")
	f.StringVar(&userIn.Name, "name", "", "nombre")
	f.StringVar(&userIn.Role, "role", entity.RoleAdmin, "admin | facturador | auditor")
	for _, name := range []string{"issuer", "email", "password"} {
		_ = userCreateCmd.MarkFlagRequired(name)
	}
	userCmd.AddCommand(userCreateCmd)
}
