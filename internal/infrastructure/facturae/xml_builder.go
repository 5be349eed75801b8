package facturae

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/jhoicas/facturae-api/internal/domain"
	"github.com/jhoicas/facturae-api/internal/domain/entity"
	"github.com/jhoicas/facturae-api/internal/domain/fiscal"
	"github.com/jhoicas/facturae-api/internal/domain/tax"
	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// Namespace del documento de factura atestada.
const (
	NsFactura = "urn:facturae-api:atestacion:1.2"
	// Id del elemento raíz; la Reference de la firma apunta a "#factura".
	InvoiceElementID = "factura"
	// Id del elemento raíz del registro de anulación.
	CancellationElementID = "anulacion"
)

// SoftwareInfo identificación del software de facturación (requisito de auditoría).
type SoftwareInfo struct {
	Name    string
	Version string
	License string
}

// InvoiceBuildContext datos necesarios para construir el XML de una factura.
// Original solo se usa en rectificativas.
type InvoiceBuildContext struct {
	Invoice  *entity.Invoice
	Details  []*entity.InvoiceDetail
	Issuer   *entity.Issuer
	Client   *entity.Client
	Original *entity.Invoice
}

// CancellationBuildContext datos del registro de anulación.
type CancellationBuildContext struct {
	Invoice             *entity.Invoice // factura anulada (ya emitida)
	Issuer              *entity.Issuer
	Input               fiscal.CancellationInput
	PreviousFingerprint string
	Fingerprint         string
	AttestationID       string
}

// XMLBuilderService construye el XML canónico de la factura (sin firma).
// Mismos datos producen siempre los mismos bytes.
type XMLBuilderService struct {
	software      SoftwareInfo
	schemaVersion string
}

// NewXMLBuilderService crea el servicio.
func NewXMLBuilderService(software SoftwareInfo, schemaVersion string) *XMLBuilderService {
	if schemaVersion == "" {
		schemaVersion = "1.2"
	}
	return &XMLBuilderService{software: software, schemaVersion: schemaVersion}
}

// Build genera el documento <Factura>. Si la factura aún no tiene huella (vista previa de
// un borrador) se omite el bloque Encadenamiento.
func (s *XMLBuilderService) Build(ctx *InvoiceBuildContext) ([]byte, error) {
	if err := s.checkRequired(ctx); err != nil {
		return nil, err
	}
	inv := ctx.Invoice
	breakdown, err := tax.ComputeSigned(inv.TaxableBase, inv.TaxRate, inv.WithholdingRate)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	root := xml.StartElement{
		Name: xml.Name{Local: "Factura"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "Id"}, Value: InvoiceElementID},
			{Name: xml.Name{Local: "xmlns"}, Value: NsFactura},
		},
	}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}

	s.writeHeader(enc)

	// ---- Identificación
	start(enc, "IdentificacionFactura")
	writeEl(enc, "Serie", inv.Series)
	writeEl(enc, "Numero", inv.Number)
	writeEl(enc, "TipoFactura", fiscal.TypeCode(inv.Type))
	writeEl(enc, "FechaExpedicion", fiscal.FormatTimestamp(inv.IssueDate))
	if inv.OperationDate != nil {
		writeEl(enc, "FechaOperacion", inv.OperationDate.UTC().Format("2006-01-02"))
	}
	if inv.Concept != "" {
		writeEl(enc, "Concepto", inv.Concept)
	}
	end(enc, "IdentificacionFactura")

	// ---- Emisor y destinatario
	start(enc, "Emisor")
	writeEl(enc, "NIF", ctx.Issuer.TaxID)
	writeEl(enc, "RazonSocial", ctx.Issuer.Name)
	writeOptional(enc, "Domicilio", ctx.Issuer.Address)
	writeOptional(enc, "CodigoPostal", ctx.Issuer.PostalCode)
	writeOptional(enc, "Municipio", ctx.Issuer.City)
	end(enc, "Emisor")

	start(enc, "Destinatario")
	writeOptional(enc, "NIF", ctx.Client.TaxID)
	writeEl(enc, "Nombre", ctx.Client.Name)
	writeOptional(enc, "Domicilio", ctx.Client.Address)
	writeOptional(enc, "CodigoPostal", ctx.Client.PostalCode)
	writeOptional(enc, "Municipio", ctx.Client.City)
	writeOptional(enc, "Pais", ctx.Client.Country)
	end(enc, "Destinatario")

	// ---- Líneas
	if len(ctx.Details) > 0 {
		start(enc, "DetallesFactura")
		for i, d := range ctx.Details {
			s.writeLine(enc, i+1, d)
		}
		end(enc, "DetallesFactura")
	}

	// ---- Desglose (salida de la calculadora)
	start(enc, "DesgloseIVA")
	start(enc, "DetalleIVA")
	writeEl(enc, "BaseImponible", formatDecimal(breakdown.TaxableBase))
	writeEl(enc, "TipoImpositivo", formatDecimal(inv.TaxRate))
	writeEl(enc, "CuotaImpuesto", formatDecimal(breakdown.TaxAmount))
	end(enc, "DetalleIVA")
	if !inv.WithholdingRate.IsZero() {
		start(enc, "Retencion")
		writeEl(enc, "TipoRetencion", formatDecimal(inv.WithholdingRate))
		writeEl(enc, "ImporteRetencion", formatDecimal(breakdown.WithholdingAmount))
		end(enc, "Retencion")
	}
	end(enc, "DesgloseIVA")

	// ---- Totales (importes registrados de la factura)
	start(enc, "Totales")
	writeEl(enc, "BaseImponibleTotal", formatDecimal(inv.TaxableBase))
	writeEl(enc, "CuotaTotal", formatDecimal(inv.TaxAmount))
	writeEl(enc, "RetencionTotal", formatDecimal(inv.WithholdingAmount))
	writeEl(enc, "ImporteTotal", formatDecimal(inv.TotalAmount))
	end(enc, "Totales")

	// ---- Bloque específico del tipo
	switch inv.Type {
	case entity.InvoiceTypeCorrective:
		start(enc, "Rectificativa")
		writeEl(enc, "IDFacturaRectificada", *inv.OriginalInvoiceID)
		if ctx.Original != nil {
			writeEl(enc, "SerieRectificada", ctx.Original.Series)
			writeEl(enc, "NumeroRectificada", ctx.Original.Number)
		}
		writeEl(enc, "Motivo", inv.CorrectiveReason)
		end(enc, "Rectificativa")
	case entity.InvoiceTypeSummary:
		start(enc, "Recapitulativa")
		writeEl(enc, "Periodo", inv.SummaryPeriod)
		end(enc, "Recapitulativa")
	}

	// ---- Encadenamiento
	if inv.Fingerprint != "" {
		start(enc, "Encadenamiento")
		writeEl(enc, "HuellaAnterior", inv.PreviousFingerprint)
		writeEl(enc, "Huella", inv.Fingerprint)
		writeEl(enc, "IdentificadorAtestacion", inv.AttestationID)
		end(enc, "Encadenamiento")
	}

	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildCancellation genera el documento <AnulacionFactura> encadenado.
func (s *XMLBuilderService) BuildCancellation(ctx *CancellationBuildContext) ([]byte, error) {
	if ctx == nil || ctx.Invoice == nil || ctx.Issuer == nil {
		return nil, domain.NewValidationError("XML001", "faltan factura o emisor para la anulación")
	}
	if ctx.Invoice.Fingerprint == "" || ctx.Fingerprint == "" {
		return nil, domain.NewValidationError("XML002", "la anulación requiere la huella del alta y la propia")
	}
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	root := xml.StartElement{
		Name: xml.Name{Local: "AnulacionFactura"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "Id"}, Value: CancellationElementID},
			{Name: xml.Name{Local: "xmlns"}, Value: NsFactura},
		},
	}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}
	s.writeHeader(enc)

	start(enc, "IDFactura")
	writeEl(enc, "NIFEmisor", ctx.Issuer.TaxID)
	writeEl(enc, "Serie", ctx.Invoice.Series)
	writeEl(enc, "Numero", ctx.Invoice.Number)
	writeEl(enc, "FechaExpedicion", fiscal.FormatTimestamp(ctx.Invoice.IssueDate))
	writeEl(enc, "IdentificadorAtestacion", ctx.Invoice.AttestationID)
	end(enc, "IDFactura")

	writeEl(enc, "FechaAnulacion", fiscal.FormatTimestamp(ctx.Input.CancelledAt))
	writeEl(enc, "HuellaFacturaAnulada", ctx.Input.CancelledFingerprint)

	start(enc, "Encadenamiento")
	writeEl(enc, "HuellaAnterior", ctx.PreviousFingerprint)
	writeEl(enc, "Huella", ctx.Fingerprint)
	writeEl(enc, "IdentificadorAtestacion", ctx.AttestationID)
	end(enc, "Encadenamiento")

	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// checkRequired no omite nunca un elemento obligatorio: si falta, error.
func (s *XMLBuilderService) checkRequired(ctx *InvoiceBuildContext) error {
	if ctx == nil || ctx.Invoice == nil || ctx.Issuer == nil || ctx.Client == nil {
		return domain.NewValidationError("XML001", "faltan factura, emisor o destinatario en el contexto")
	}
	inv := ctx.Invoice
	var missing []string
	if inv.Series == "" {
		missing = append(missing, "Serie")
	}
	if inv.Number == "" {
		missing = append(missing, "Numero")
	}
	if inv.IssueDate.IsZero() {
		missing = append(missing, "FechaExpedicion")
	}
	if ctx.Issuer.TaxID == "" {
		missing = append(missing, "Emisor/NIF")
	}
	if ctx.Issuer.Name == "" {
		missing = append(missing, "Emisor/RazonSocial")
	}
	if inv.Type != entity.InvoiceTypeSimplified && ctx.Client.TaxID == "" {
		missing = append(missing, "Destinatario/NIF")
	}
	switch inv.Type {
	case entity.InvoiceTypeCorrective:
		if inv.OriginalInvoiceID == nil || *inv.OriginalInvoiceID == "" {
			missing = append(missing, "Rectificativa/IDFacturaRectificada")
		}
		if strings.TrimSpace(inv.CorrectiveReason) == "" {
			missing = append(missing, "Rectificativa/Motivo")
		}
	case entity.InvoiceTypeSummary:
		if strings.TrimSpace(inv.SummaryPeriod) == "" {
			missing = append(missing, "Recapitulativa/Periodo")
		}
	case entity.InvoiceTypeOrdinary, entity.InvoiceTypeSimplified:
	default:
		return domain.NewValidationError("XML003", fmt.Sprintf("tipo de factura desconocido: %q", inv.Type))
	}
	if s.software.Name == "" || s.software.Version == "" || s.software.License == "" {
		missing = append(missing, "Cabecera/Software")
	}
	if len(missing) > 0 {
		return domain.NewValidationError("XML004", "faltan elementos obligatorios: "+strings.Join(missing, ", "))
	}
	return nil
}

func (s *XMLBuilderService) writeHeader(enc *xml.Encoder) {
	start(enc, "Cabecera")
	writeEl(enc, "VersionEsquema", s.schemaVersion)
	start(enc, "Software")
	writeEl(enc, "Nombre", s.software.Name)
	writeEl(enc, "Version", s.software.Version)
	writeEl(enc, "Licencia", s.software.License)
	end(enc, "Software")
	end(enc, "Cabecera")
}

func (s *XMLBuilderService) writeLine(enc *xml.Encoder, n int, d *entity.InvoiceDetail) {
	_ = enc.EncodeToken(xml.StartElement{
		Name: xml.Name{Local: "Linea"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "numero"}, Value: strconv.Itoa(n)}},
	})
	writeEl(enc, "Descripcion", d.Description)
	writeEl(enc, "Cantidad", d.Quantity.String())
	writeEl(enc, "PrecioUnitario", formatDecimal(d.UnitPrice))
	writeEl(enc, "TipoImpositivo", formatDecimal(d.TaxRate))
	writeEl(enc, "BaseImponible", formatDecimal(d.Subtotal()))
	writeEl(enc, "Cuota", formatDecimal(d.Tax()))
	writeEl(enc, "Importe", formatDecimal(d.Total()))
	end(enc, "Linea")
}

func start(enc *xml.Encoder, local string) {
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: local}})
}

func end(enc *xml.Encoder, local string) {
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: local}})
}

// writeEl escribe <local>valor</local> con el texto normalizado a NFC.
func writeEl(enc *xml.Encoder, local, value string) {
	start(enc, local)
	_ = enc.EncodeToken(xml.CharData(norm.NFC.String(value)))
	end(enc, local)
}

func writeOptional(enc *xml.Encoder, local, value string) {
	if value != "" {
		writeEl(enc, local, value)
	}
}

func formatDecimal(d decimal.Decimal) string {
	return d.StringFixed(2)
}
