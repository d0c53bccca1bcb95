package zatca

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jhoicas/zatca-api/internal/domain"
	zatcapkg "github.com/jhoicas/zatca-api/pkg/zatca"
)

// ── Puerto (interfaz) ──────────────────────────────────────────────────────────

// CSIDResponse es la respuesta de la pasarela a la emisión de credenciales,
// tanto de cumplimiento (/compliance) como de producción (/production/csids).
type CSIDResponse struct {
	RequestID           json.Number `json:"requestID"`
	DispositionMessage  string      `json:"dispositionMessage"`
	BinarySecurityToken string      `json:"binarySecurityToken"`
	Secret              string      `json:"secret"`
	Errors              []string    `json:"errors"`
	Raw                 []byte      `json:"-"`
}

// ValidationMessage es una entrada de validationResults en la respuesta de
// envío de facturas.
type ValidationMessage struct {
	Type     string `json:"type"`
	Code     string `json:"code"`
	Category string `json:"category"`
	Message  string `json:"message"`
	Status   string `json:"status"`
}

// SubmitResponse es la respuesta al envío de una factura firmada. La pasarela
// usa reportingStatus para simplificadas y clearanceStatus para estándar.
type SubmitResponse struct {
	ReportingStatus   string `json:"reportingStatus"`
	ClearanceStatus   string `json:"clearanceStatus"`
	ClearedInvoice    string `json:"clearedInvoice"`
	ValidationResults struct {
		WarningMessages []ValidationMessage `json:"warningMessages"`
		ErrorMessages   []ValidationMessage `json:"errorMessages"`
	} `json:"validationResults"`
	StatusCode int    `json:"-"`
	Raw        []byte `json:"-"`
}

// Status devuelve el estado que aplica según el flujo (reporting o clearance).
func (r *SubmitResponse) Status(pos bool) string {
	if pos {
		return r.ReportingStatus
	}
	return r.ClearanceStatus
}

// InvoicePayload es el cuerpo del envío de factura: el hash, el UUID del
// documento y el XML firmado (el cliente lo codifica en base64).
type InvoicePayload struct {
	InvoiceHash string
	UUID        string
	SignedXML   []byte
}

// APIClient define el puerto de salida hacia la pasarela Fatoora. La
// implementación concreta usa HTTP/JSON; para tests se inyecta un stub.
type APIClient interface {
	// SubmitCSR envía el CSR con el OTP del portal y devuelve la credencial
	// de cumplimiento (token + secret + requestID).
	SubmitCSR(ctx context.Context, csrPEM, otp string) (*CSIDResponse, error)
	// IssueProductionCSID canjea el requestID de cumplimiento por la
	// credencial de producción, autenticado con la credencial de cumplimiento.
	IssueProductionCSID(ctx context.Context, requestID string, cred zatcapkg.Credential) (*CSIDResponse, error)
	// SubmitComplianceInvoice envía una factura de muestra al endpoint de
	// validación de cumplimiento.
	SubmitComplianceInvoice(ctx context.Context, payload *InvoicePayload, cred zatcapkg.Credential) (*SubmitResponse, error)
	// SubmitInvoice envía una factura real: reporting si pos, clearance si no.
	SubmitInvoice(ctx context.Context, payload *InvoicePayload, cred zatcapkg.Credential, pos bool) (*SubmitResponse, error)
}

// ── Implementación HTTP ────────────────────────────────────────────────────────

// HTTPAPIClient implementa APIClient contra la pasarela Fatoora.
type HTTPAPIClient struct {
	baseURL    string
	httpClient *http.Client
}

var _ APIClient = (*HTTPAPIClient)(nil)

// NewHTTPAPIClient construye el cliente. live selecciona la pasarela de
// producción; en sandbox se usa el developer portal. timeout cero aplica el
// valor por defecto de 30 s.
func NewHTTPAPIClient(live bool, timeout time.Duration) *HTTPAPIClient {
	baseURL := zatcapkg.BaseURLSandbox
	if live {
		baseURL = zatcapkg.BaseURLProduction
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPAPIClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPAPIClient) SubmitCSR(ctx context.Context, csrPEM, otp string) (*CSIDResponse, error) {
	body := map[string]string{"csr": base64.StdEncoding.EncodeToString([]byte(csrPEM))}
	headers := map[string]string{"OTP": otp}

	status, raw, err := c.post(ctx, zatcapkg.PathComplianceCSID, body, headers, nil)
	if err != nil {
		return nil, err
	}
	return c.parseCSID(status, raw, "emitir credencial de cumplimiento")
}

func (c *HTTPAPIClient) IssueProductionCSID(ctx context.Context, requestID string, cred zatcapkg.Credential) (*CSIDResponse, error) {
	body := map[string]string{"compliance_request_id": requestID}

	status, raw, err := c.post(ctx, zatcapkg.PathProductionCSID, body, nil, &cred)
	if err != nil {
		return nil, err
	}
	return c.parseCSID(status, raw, "emitir credencial de producción")
}

func (c *HTTPAPIClient) SubmitComplianceInvoice(ctx context.Context, payload *InvoicePayload, cred zatcapkg.Credential) (*SubmitResponse, error) {
	return c.submit(ctx, zatcapkg.PathComplianceInvoice, payload, cred)
}

func (c *HTTPAPIClient) SubmitInvoice(ctx context.Context, payload *InvoicePayload, cred zatcapkg.Credential, pos bool) (*SubmitResponse, error) {
	path := zatcapkg.PathClearance
	if pos {
		path = zatcapkg.PathReporting
	}
	return c.submit(ctx, path, payload, cred)
}

func (c *HTTPAPIClient) submit(ctx context.Context, path string, payload *InvoicePayload, cred zatcapkg.Credential) (*SubmitResponse, error) {
	body := map[string]string{
		"invoiceHash": payload.InvoiceHash,
		"uuid":        payload.UUID,
		"invoice":     base64.StdEncoding.EncodeToString(payload.SignedXML),
	}

	status, raw, err := c.post(ctx, path, body, nil, &cred)
	if err != nil {
		return nil, err
	}

	var resp SubmitResponse
	if len(raw) > 0 {
		// La pasarela a veces responde texto plano en errores de pasarela;
		// el cuerpo crudo se conserva igual para auditoría.
		_ = json.Unmarshal(raw, &resp)
	}
	resp.StatusCode = status
	resp.Raw = raw

	if status < 200 || status >= 300 {
		return nil, &domain.AuthorityRejection{
			Status:      fmt.Sprintf("HTTP %d", status),
			Warnings:    messagesOf(resp.ValidationResults.WarningMessages),
			Errors:      messagesOf(resp.ValidationResults.ErrorMessages),
			RawResponse: raw,
		}
	}
	return &resp, nil
}

// post ejecuta el POST con los headers comunes de la pasarela. Devuelve el
// código de estado y el cuerpo crudo; los fallos de transporte se envuelven
// en NetworkError (reintenables: el documento y su hash son deterministas).
func (c *HTTPAPIClient) post(ctx context.Context, path string, body any, headers map[string]string, cred *zatcapkg.Credential) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, &domain.NetworkError{Op: "serializar petición " + path, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, &domain.NetworkError{Op: "crear petición " + path, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Version", "V2")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("accept-language", "en")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if cred != nil {
		req.SetBasicAuth(cred.SecurityToken, cred.Secret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &domain.NetworkError{Op: "POST " + path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &domain.NetworkError{Op: "leer respuesta " + path, Err: err}
	}
	return resp.StatusCode, raw, nil
}

// parseCSID interpreta la respuesta de emisión de credenciales. Cualquier
// estado fuera de 2xx o un dispositionMessage distinto de ISSUED es un
// rechazo de la autoridad.
func (c *HTTPAPIClient) parseCSID(status int, raw []byte, op string) (*CSIDResponse, error) {
	var resp CSIDResponse
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &resp)
	}
	resp.Raw = raw

	if status < 200 || status >= 300 {
		return nil, &domain.CredentialError{
			Reason:      fmt.Sprintf("%s: la pasarela respondió HTTP %d", op, status),
			RawResponse: raw,
		}
	}
	if resp.DispositionMessage != zatcapkg.DispositionIssued {
		return nil, &domain.CredentialError{
			Reason:      fmt.Sprintf("%s: dispositionMessage %q", op, resp.DispositionMessage),
			RawResponse: raw,
		}
	}
	return &resp, nil
}

func messagesOf(msgs []ValidationMessage) []string {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Message)
	}
	return out
}
