// Package fiscal contiene validaciones y catálogos de la normativa tributaria española
// usados por la facturación (NIF/NIE/CIF, códigos de error del servicio de atestación).
package fiscal

import (
	"fmt"
	"strings"
	"unicode"
)

// letras de control del DNI/NIE: índice = número % 23.
const dniLetters = "TRWAGMYFPDXBNJZSQVHLCKE"

// letras de control del CIF cuando el dígito se expresa como letra.
const cifLetters = "JABCDEFGHI"

// Tipos de identificador fiscal.
const (
	TaxIDKindDNI = "DNI"
	TaxIDKindNIE = "NIE"
	TaxIDKindCIF = "CIF"
)

// NormalizeTaxID quita espacios, puntos y guiones y pasa a mayúsculas.
// "12.345.678-z" -> "12345678Z".
func NormalizeTaxID(taxID string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(taxID) {
		if unicode.IsDigit(r) || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateTaxID valida el carácter de control de un NIF español (DNI, NIE o CIF) y
// devuelve el tipo detectado.
func ValidateTaxID(taxID string) (string, error) {
	id := NormalizeTaxID(taxID)
	if len(id) != 9 {
		return "", fmt.Errorf("fiscal: el NIF debe tener 9 caracteres, se recibieron %d", len(id))
	}
	switch first := id[0]; {
	case first >= '0' && first <= '9':
		return TaxIDKindDNI, validateDNI(id)
	case first == 'X' || first == 'Y' || first == 'Z':
		return TaxIDKindNIE, validateNIE(id)
	case strings.IndexByte("ABCDEFGHJNPQRSUVW", first) >= 0:
		return TaxIDKindCIF, validateCIF(id)
	default:
		return "", fmt.Errorf("fiscal: letra inicial %q no corresponde a ningún tipo de NIF", first)
	}
}

func validateDNI(id string) error {
	if !allDigits(id[:8]) {
		return fmt.Errorf("fiscal: DNI con caracteres no numéricos")
	}
	expected := dniLetter(id[:8])
	if id[8] != expected {
		return fmt.Errorf("fiscal: letra de control del DNI inválida: esperada %c, recibida %c", expected, id[8])
	}
	return nil
}

func validateNIE(id string) error {
	prefix := map[byte]byte{'X': '0', 'Y': '1', 'Z': '2'}[id[0]]
	num := string(prefix) + id[1:8]
	if !allDigits(num) {
		return fmt.Errorf("fiscal: NIE con caracteres no numéricos")
	}
	expected := dniLetter(num)
	if id[8] != expected {
		return fmt.Errorf("fiscal: letra de control del NIE inválida: esperada %c, recibida %c", expected, id[8])
	}
	return nil
}

// validateCIF: los dígitos en posición par se suman; los de posición impar se duplican y
// se suman sus cifras. Control = (10 - suma%10) % 10, como número o como letra según el tipo
// de entidad.
func validateCIF(id string) error {
	digits := id[1:8]
	if !allDigits(digits) {
		return fmt.Errorf("fiscal: CIF con caracteres no numéricos")
	}
	var sum int
	for i := 0; i < len(digits); i++ {
		d := int(digits[i] - '0')
		if i%2 == 0 {
			d *= 2
			d = d/10 + d%10
		}
		sum += d
	}
	control := (10 - sum%10) % 10
	asDigit := byte('0' + control)
	asLetter := cifLetters[control]

	got := id[8]
	switch {
	case strings.IndexByte("PQRSNW", id[0]) >= 0:
		if got != asLetter {
			return fmt.Errorf("fiscal: control del CIF inválido: esperado %c, recibido %c", asLetter, got)
		}
	case strings.IndexByte("ABEH", id[0]) >= 0:
		if got != asDigit {
			return fmt.Errorf("fiscal: control del CIF inválido: esperado %c, recibido %c", asDigit, got)
		}
	default:
		if got != asDigit && got != asLetter {
			return fmt.Errorf("fiscal: control del CIF inválido: esperado %c o %c, recibido %c", asDigit, asLetter, got)
		}
	}
	return nil
}

func dniLetter(num string) byte {
	var n int
	for i := 0; i < len(num); i++ {
		n = n*10 + int(num[i]-'0')
	}
	return dniLetters[n%23]
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
