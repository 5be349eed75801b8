package csvimport_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/jhoicas/facturae-api/internal/infrastructure/csvimport"
)

func latin1(t *testing.T, s string) []byte {
	t.Helper()
	out, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
	require.NoError(t, err)
	return out
}

func TestReadClients_Latin1ConPuntoYComa(t *testing.T) {
	src := latin1(t, "Razón social;NIF;Dirección;CP;Municipio;País\n"+
		"Peña Ibáñez SL;B12345674;Calle Mayor 1;48001;Bilbao;es\n"+
		";;;;;\n"+
		"José Núñez;12345678Z;;;Donostia;\n")

	list, err := csvimport.ReadClients(bytes.NewReader(src), csvimport.CharsetLatin1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Peña Ibáñez SL", list[0].Name)
	assert.Equal(t, "B12345674", list[0].TaxID)
	assert.Equal(t, "Calle Mayor 1", list[0].Address)
	assert.Equal(t, "48001", list[0].PostalCode)
	assert.Equal(t, "es", list[0].Country)
	assert.Equal(t, "José Núñez", list[1].Name)
	assert.Equal(t, "Donostia", list[1].City)
}

func TestReadClients_UTF8ConComas(t *testing.T) {
	src := "\ufeffnombre,nif,email,otra\nAcme SA,A58818501,info@acme.es,x\n"
	list, err := csvimport.ReadClients(strings.NewReader(src), "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Acme SA", list[0].Name)
	assert.Equal(t, "info@acme.es", list[0].Email)
}

func TestReadClients_SinColumnaNombre(t *testing.T) {
	_, err := csvimport.ReadClients(strings.NewReader("nif;cp\nB12345674;48001\n"), "")
	assert.Error(t, err)
}

func TestReadClients_CharsetDesconocido(t *testing.T) {
	_, err := csvimport.ReadClients(strings.NewReader("nombre\nx\n"), "ebcdic")
	assert.Error(t, err)
}
