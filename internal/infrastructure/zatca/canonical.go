package zatca

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/xml"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"

	"github.com/jhoicas/zatca-api/internal/domain"
)

// HasherService calcula el hash de factura que ZATCA verifica: se eliminan
// del documento los tres subárboles excluidos de la firma (ext:UBLExtensions,
// cac:Signature y el AdditionalDocumentReference del QR), se canonicaliza el
// resultado (C14N) y se toma SHA-256 en base64.
type HasherService struct{}

// NewHasherService crea el servicio.
func NewHasherService() *HasherService {
	return &HasherService{}
}

// InvoiceHash devuelve base64(sha256(C14N(documento podado))). Es el valor
// que viaja como invoiceHash en el envío y como PIH de la factura siguiente.
func (s *HasherService) InvoiceHash(xmlBytes []byte) (string, error) {
	canonical, err := s.Canonicalize(xmlBytes)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256(canonical)
	return base64.StdEncoding.EncodeToString(digest[:]), nil
}

// Canonicalize poda los subárboles excluidos y canonicaliza. El resultado es
// determinista: dos serializaciones equivalentes del mismo documento producen
// los mismos bytes.
func (s *HasherService) Canonicalize(xmlBytes []byte) ([]byte, error) {
	pruned, err := s.prune(xmlBytes)
	if err != nil {
		return nil, err
	}
	dec := xml.NewDecoder(bytes.NewReader(pruned))
	dec.Entity = map[string]string{}
	canonical, err := c14n.Canonicalize(dec)
	if err != nil {
		return nil, &domain.CryptoError{Op: "canonicalizar documento", Err: err}
	}
	return canonical, nil
}

// prune elimina ext:UBLExtensions, cac:Signature y el tercer
// AdditionalDocumentReference (cbc:ID = QR) del elemento raíz.
func (s *HasherService) prune(xmlBytes []byte) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, &domain.CryptoError{Op: "parsear documento para hash", Err: err}
	}
	root := doc.Root()
	if root == nil {
		return nil, &domain.CryptoError{Op: "parsear documento para hash", Err: etree.ErrXML}
	}

	if ext := root.SelectElement("ext:UBLExtensions"); ext != nil {
		root.RemoveChild(ext)
	}
	if sig := root.SelectElement("cac:Signature"); sig != nil {
		root.RemoveChild(sig)
	}
	for _, ref := range root.SelectElements("cac:AdditionalDocumentReference") {
		if id := ref.SelectElement("cbc:ID"); id != nil && id.Text() == "QR" {
			root.RemoveChild(ref)
			break
		}
	}

	return doc.WriteToBytes()
}
