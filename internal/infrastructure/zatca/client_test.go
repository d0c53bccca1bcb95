package zatca

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/zatca-api/internal/domain"
	zatcapkg "github.com/jhoicas/zatca-api/pkg/zatca"
)

// ──────────────────────────────────────────────────────────────────────────────
// Tests del cliente HTTP contra una pasarela simulada (httptest). Paquete
// interno para apuntar baseURL al servidor de pruebas.
// ──────────────────────────────────────────────────────────────────────────────

func newTestClient(srv *httptest.Server) *HTTPAPIClient {
	return &HTTPAPIClient{
		baseURL:    srv.URL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func testCredential() zatcapkg.Credential {
	return zatcapkg.Credential{SecurityToken: "token-base64", Secret: "secret-123"}
}

func TestSubmitCSR_CredencialEmitida(t *testing.T) {
	var gotOTP, gotAccept, gotVersion string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOTP = r.Header.Get("OTP")
		gotAccept = r.Header.Get("Accept")
		gotVersion = r.Header.Get("Accept-Version")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"requestID":           1234567890123,
			"dispositionMessage":  "ISSUED",
			"binarySecurityToken": "dG9rZW4=",
			"secret":              "s3cr3t",
		})
	}))
	defer srv.Close()

	client := newTestClient(srv)
	resp, err := client.SubmitCSR(context.Background(), "-----BEGIN CERTIFICATE REQUEST-----\nABC\n-----END CERTIFICATE REQUEST-----", "123456")
	require.NoError(t, err)

	assert.Equal(t, "123456", gotOTP)
	assert.Equal(t, "application/json", gotAccept)
	assert.Equal(t, "V2", gotVersion)

	// El CSR viaja en base64 dentro del body JSON.
	decoded, err := base64.StdEncoding.DecodeString(gotBody["csr"])
	require.NoError(t, err)
	assert.Contains(t, string(decoded), "CERTIFICATE REQUEST")

	assert.Equal(t, "1234567890123", resp.RequestID.String())
	assert.Equal(t, "dG9rZW4=", resp.BinarySecurityToken)
	assert.Equal(t, "s3cr3t", resp.Secret)
}

// TestSubmitCSR_DispositionNoEmitida: un 200 con dispositionMessage distinto
// de ISSUED sigue siendo rechazo de credencial.
func TestSubmitCSR_DispositionNoEmitida(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"dispositionMessage": "NOT_ISSUED"})
	}))
	defer srv.Close()

	_, err := newTestClient(srv).SubmitCSR(context.Background(), "csr", "123456")
	require.Error(t, err)

	var credErr *domain.CredentialError
	require.ErrorAs(t, err, &credErr)
	assert.Contains(t, credErr.Reason, "NOT_ISSUED")
	assert.NotEmpty(t, credErr.RawResponse, "el cuerpo crudo se conserva para auditoría")
}

func TestSubmitCSR_OTPRechazado(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":["invalid OTP"]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).SubmitCSR(context.Background(), "csr", "000000")
	require.Error(t, err)

	var credErr *domain.CredentialError
	require.ErrorAs(t, err, &credErr)
	assert.Contains(t, credErr.Reason, "HTTP 400")
}

func TestIssueProductionCSID_AutenticacionBasic(t *testing.T) {
	var gotUser, gotPass string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"dispositionMessage":  "ISSUED",
			"binarySecurityToken": "cHJvZA==",
			"secret":              "prod-secret",
		})
	}))
	defer srv.Close()

	resp, err := newTestClient(srv).IssueProductionCSID(context.Background(), "1234567890123", testCredential())
	require.NoError(t, err)

	assert.Equal(t, "token-base64", gotUser)
	assert.Equal(t, "secret-123", gotPass)
	assert.Equal(t, "1234567890123", gotBody["compliance_request_id"])
	assert.Equal(t, "cHJvZA==", resp.BinarySecurityToken)
	assert.Equal(t, "prod-secret", resp.Secret)
}

func TestSubmitInvoice_SeleccionDeEndpoint(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"reportingStatus": "REPORTED"})
	}))
	defer srv.Close()

	client := newTestClient(srv)
	payload := &InvoicePayload{InvoiceHash: "hash", UUID: "uuid", SignedXML: []byte("<Invoice/>")}

	_, err := client.SubmitInvoice(context.Background(), payload, testCredential(), true)
	require.NoError(t, err)
	assert.Equal(t, zatcapkg.PathReporting, gotPath)

	_, err = client.SubmitInvoice(context.Background(), payload, testCredential(), false)
	require.NoError(t, err)
	assert.Equal(t, zatcapkg.PathClearance, gotPath)
}

func TestSubmitInvoice_RechazoConValidaciones(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{
			"validationResults": {
				"warningMessages": [{"message": "minor issue"}],
				"errorMessages": [{"message": "BR-KSA-26 broken chain"}]
			}
		}`))
	}))
	defer srv.Close()

	payload := &InvoicePayload{InvoiceHash: "hash", UUID: "uuid", SignedXML: []byte("<Invoice/>")}
	_, err := newTestClient(srv).SubmitInvoice(context.Background(), payload, testCredential(), true)
	require.Error(t, err)

	var rejection *domain.AuthorityRejection
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, []string{"BR-KSA-26 broken chain"}, rejection.Errors)
	assert.Equal(t, []string{"minor issue"}, rejection.Warnings)
	assert.Equal(t, "HTTP 400", rejection.Status)
}

// TestSubmitInvoice_FalloDeTransporte: un servidor caído produce NetworkError,
// la única categoría que el caller puede reintentar sin riesgo.
func TestSubmitInvoice_FalloDeTransporte(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // cerrado a propósito

	payload := &InvoicePayload{InvoiceHash: "hash", UUID: "uuid", SignedXML: []byte("<Invoice/>")}
	_, err := newTestClient(srv).SubmitInvoice(context.Background(), payload, testCredential(), true)
	require.Error(t, err)

	var netErr *domain.NetworkError
	assert.ErrorAs(t, err, &netErr)
}

func TestSubmitComplianceInvoice_XMLEnBase64(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"reportingStatus": "REPORTED"})
	}))
	defer srv.Close()

	payload := &InvoicePayload{InvoiceHash: "el-hash", UUID: "el-uuid", SignedXML: []byte("<Invoice>firmada</Invoice>")}
	_, err := newTestClient(srv).SubmitComplianceInvoice(context.Background(), payload, testCredential())
	require.NoError(t, err)

	assert.Equal(t, "el-hash", gotBody["invoiceHash"])
	assert.Equal(t, "el-uuid", gotBody["uuid"])
	decoded, err := base64.StdEncoding.DecodeString(gotBody["invoice"])
	require.NoError(t, err)
	assert.Equal(t, "<Invoice>firmada</Invoice>", string(decoded))
}
