// attestctl operación de la cadena de atestación: migraciones, emisores, importación de
// clientes, verificación y exportación de la cadena, tokens y cola de revisión.
package main

import "github.com/jhoicas/facturae-api/internal/cli"

func main() {
	cli.Execute()
}
