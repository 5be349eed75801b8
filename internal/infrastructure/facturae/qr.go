package facturae

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"net/url"
	"strings"

	"github.com/boombuler/barcode/qr"
	"github.com/jhoicas/facturae-api/internal/domain"
	"github.com/makiuchi-d/gozxing"
	gozxingqr "github.com/makiuchi-d/gozxing/qrcode"
)

// Parámetros fijos del QR: PNG de 200x200, nivel de corrección M y zona de silencio de
// 4 módulos.
const (
	QRSize           = 200
	QRQuietZone      = 4
	QRMaxPayloadLen  = 1024
	QRFingerprintLen = 16
)

// QRCodeEncoder codifica y decodifica el QR de verificación.
type QRCodeEncoder struct{}

// NewQRCodeEncoder crea el codificador.
func NewQRCodeEncoder() *QRCodeEncoder {
	return &QRCodeEncoder{}
}

// Encode genera el PNG del QR. Falla con ValidationError si el contenido está vacío o no
// cabe en la imagen.
func (e *QRCodeEncoder) Encode(payload string) ([]byte, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, domain.NewValidationError("QR001", "el contenido del QR está vacío")
	}
	if len(payload) > QRMaxPayloadLen {
		return nil, domain.NewValidationError("QR002", "el contenido del QR es demasiado largo")
	}
	code, err := qr.Encode(payload, qr.M, qr.Auto)
	if err != nil {
		return nil, domain.NewValidationError("QR003", "no se pudo codificar el QR: "+err.Error())
	}

	modules := code.Bounds().Dx()
	scale := QRSize / (modules + 2*QRQuietZone)
	if scale < 1 {
		return nil, domain.NewValidationError("QR002", "el contenido del QR no cabe en la imagen")
	}
	offset := (QRSize - modules*scale) / 2

	img := image.NewGray(image.Rect(0, 0, QRSize, QRSize))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	min := code.Bounds().Min
	for y := 0; y < modules; y++ {
		for x := 0; x < modules; x++ {
			if isDark(code.At(min.X+x, min.Y+y)) {
				px := image.Rect(offset+x*scale, offset+y*scale, offset+(x+1)*scale, offset+(y+1)*scale)
				draw.Draw(img, px, &image.Uniform{C: color.Black}, image.Point{}, draw.Src)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode lee el contenido de un PNG generado por Encode (o cualquier QR limpio).
func (e *QRCodeEncoder) Decode(pngBytes []byte) (string, error) {
	if len(pngBytes) == 0 {
		return "", domain.NewValidationError("QR004", "imagen vacía")
	}
	img, err := png.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return "", domain.NewValidationError("QR004", "imagen ilegible: "+err.Error())
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", domain.NewValidationError("QR005", "no se pudo preparar la imagen: "+err.Error())
	}
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_PURE_BARCODE:  true,
		gozxing.DecodeHintType_CHARACTER_SET: "UTF-8",
	}
	result, err := gozxingqr.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return "", domain.NewValidationError("QR005", "no se encontró un QR legible: "+err.Error())
	}
	return result.GetText(), nil
}

// ValidatePayload comprueba que el contenido tenga forma de URL de verificación:
// esquema http(s), host y parámetros id y fp.
func (e *QRCodeEncoder) ValidatePayload(payload string) bool {
	if strings.TrimSpace(payload) == "" || len(payload) > QRMaxPayloadLen {
		return false
	}
	u, err := url.Parse(payload)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return false
	}
	q := u.Query()
	return q.Get("id") != "" && q.Get("fp") != ""
}

// VerificationURL <base>/verificar?id=<identificador>&fp=<prefijo de la huella>.
func VerificationURL(base, attestationID, fingerprint string) string {
	base = strings.TrimRight(base, "/")
	if !strings.HasSuffix(base, "/verificar") {
		base += "/verificar"
	}
	fp := fingerprint
	if len(fp) > QRFingerprintLen {
		fp = fp[:QRFingerprintLen]
	}
	q := url.Values{}
	q.Set("id", attestationID)
	q.Set("fp", fp)
	return base + "?" + q.Encode()
}

func isDark(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return (r+g+b)/3 < 0x8000
}
