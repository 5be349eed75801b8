// Package csvimport lee altas masivas de clientes exportadas desde hojas de cálculo.
// Los ficheros suelen venir en ISO-8859-1 con ';' como separador.
package csvimport

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/jhoicas/facturae-api/internal/application/dto"
)

// Juegos de caracteres admitidos.
const (
	CharsetUTF8   = "utf-8"
	CharsetLatin1 = "iso-8859-1"
	CharsetCP1252 = "windows-1252"
)

// Cabeceras reconocidas (sin distinguir mayúsculas). nombre es obligatoria.
var columns = map[string]string{
	"nombre":        "name",
	"razon social":  "name",
	"razón social":  "name",
	"nif":           "tax_id",
	"cif":           "tax_id",
	"direccion":     "address",
	"dirección":     "address",
	"cp":            "postal_code",
	"codigo postal": "postal_code",
	"código postal": "postal_code",
	"ciudad":        "city",
	"municipio":     "city",
	"pais":          "country",
	"país":          "country",
	"email":         "email",
}

// Decoder envuelve r para convertir el juego de caracteres indicado a UTF-8.
func Decoder(r io.Reader, charset string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", CharsetUTF8, "utf8":
		return r, nil
	case CharsetLatin1, "iso8859-1", "latin1":
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder()), nil
	case CharsetCP1252, "cp1252":
		return transform.NewReader(r, charmap.Windows1252.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("csvimport: juego de caracteres no soportado: %s", charset)
	}
}

// ReadClients devuelve una petición de alta por fila. La primera fila es la cabecera;
// las columnas desconocidas se ignoran. El separador se detecta entre ';' y ','.
func ReadClients(r io.Reader, charset string) ([]dto.CreateClientRequest, error) {
	dec, err := Decoder(r, charset)
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("csvimport: leer: %w", err)
	}
	text := strings.TrimPrefix(string(raw), "\ufeff")

	cr := csv.NewReader(strings.NewReader(text))
	cr.Comma = detectComma(text)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csvimport: cabecera: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		if field, ok := columns[strings.ToLower(strings.TrimSpace(h))]; ok {
			if _, dup := index[field]; !dup {
				index[field] = i
			}
		}
	}
	if _, ok := index["name"]; !ok {
		return nil, fmt.Errorf("csvimport: falta la columna nombre")
	}

	var out []dto.CreateClientRequest
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("csvimport: línea %d: %w", line, err)
		}
		get := func(field string) string {
			i, ok := index[field]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		if get("name") == "" && get("tax_id") == "" {
			continue
		}
		out = append(out, dto.CreateClientRequest{
			Name:       get("name"),
			TaxID:      get("tax_id"),
			Address:    get("address"),
			PostalCode: get("postal_code"),
			City:       get("city"),
			Country:    get("country"),
			Email:      get("email"),
		})
	}
	return out, nil
}

func detectComma(text string) rune {
	first := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		first = text[:i]
	}
	if strings.Count(first, ";") >= strings.Count(first, ",") {
		return ';'
	}
	return ','
}
