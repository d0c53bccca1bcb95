package einvoice_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/jhoicas/zatca-api/internal/domain"
	"github.com/jhoicas/zatca-api/internal/domain/entity"
	"github.com/jhoicas/zatca-api/internal/domain/repository"
	infrazatca "github.com/jhoicas/zatca-api/internal/infrastructure/zatca"
	zatcapkg "github.com/jhoicas/zatca-api/pkg/zatca"
)

var (
	_ repository.DeviceRepository     = (*fakeDeviceRepo)(nil)
	_ repository.SubmissionRepository = (*fakeSubmissionRepo)(nil)
	_ infrazatca.APIClient            = (*stubAPIClient)(nil)
	_ zatcapkg.Signer                 = (*stubSigner)(nil)
)

// ──────────────────────────────────────────────────────────────────────────────
// Dobles de test: repositorios en memoria, pasarela y firmador programables.
// ──────────────────────────────────────────────────────────────────────────────

type fakeDeviceRepo struct {
	mu      sync.Mutex
	devices map[string]*entity.Device
}

func newFakeDeviceRepo() *fakeDeviceRepo {
	return &fakeDeviceRepo{devices: make(map[string]*entity.Device)}
}

func (r *fakeDeviceRepo) Create(_ context.Context, d *entity.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[d.ID]; ok {
		return domain.ErrConflict
	}
	copied := *d
	r.devices[d.ID] = &copied
	return nil
}

func (r *fakeDeviceRepo) Update(_ context.Context, d *entity.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[d.ID]; !ok {
		return domain.ErrNotFound
	}
	copied := *d
	r.devices[d.ID] = &copied
	return nil
}

func (r *fakeDeviceRepo) GetByID(_ context.Context, id string) (*entity.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *d
	return &copied, nil
}

func (r *fakeDeviceRepo) GetByVATNumber(_ context.Context, vat string) (*entity.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *entity.Device
	for _, d := range r.devices {
		if d.Profile.VATNumber == vat {
			if latest == nil || d.CreatedAt.After(latest.CreatedAt) {
				latest = d
			}
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (r *fakeDeviceRepo) Supersede(_ context.Context, vat string) error {
	return nil
}

type fakeSubmissionRepo struct {
	mu          sync.Mutex
	submissions map[string]*entity.Submission
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{submissions: make(map[string]*entity.Submission)}
}

func (r *fakeSubmissionRepo) Create(_ context.Context, s *entity.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *s
	r.submissions[s.ID] = &copied
	return nil
}

func (r *fakeSubmissionRepo) Update(_ context.Context, s *entity.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.submissions[s.ID]; !ok {
		return domain.ErrNotFound
	}
	copied := *s
	r.submissions[s.ID] = &copied
	return nil
}

func (r *fakeSubmissionRepo) GetByID(_ context.Context, id string) (*entity.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.submissions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *fakeSubmissionRepo) GetChainHead(_ context.Context, deviceID string) (*entity.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var head *entity.Submission
	for _, s := range r.submissions {
		if s.DeviceID != deviceID || !s.IsFinal() {
			continue
		}
		if head == nil || s.ICV > head.ICV {
			head = s
		}
	}
	if head == nil {
		return nil, domain.ErrNotFound
	}
	copied := *head
	return &copied, nil
}

func (r *fakeSubmissionRepo) ListByDevice(_ context.Context, deviceID string, _ int) ([]*entity.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Submission
	for _, s := range r.submissions {
		if s.DeviceID == deviceID {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, nil
}

// stubAPIClient implementa infrazatca.APIClient con funciones programables;
// las llamadas se registran para las aserciones.
type stubAPIClient struct {
	mu sync.Mutex

	csrFn        func(csrPEM, otp string) (*infrazatca.CSIDResponse, error)
	productionFn func(requestID string) (*infrazatca.CSIDResponse, error)
	complianceFn func(payload *infrazatca.InvoicePayload) (*infrazatca.SubmitResponse, error)
	submitFn     func(payload *infrazatca.InvoicePayload, pos bool) (*infrazatca.SubmitResponse, error)

	compliancePayloads []*infrazatca.InvoicePayload
	productionCalls    int
}

func issuedCSID(token, secret string) *infrazatca.CSIDResponse {
	return &infrazatca.CSIDResponse{
		RequestID:           "1234567890123",
		DispositionMessage:  zatcapkg.DispositionIssued,
		BinarySecurityToken: token,
		Secret:              secret,
	}
}

func (s *stubAPIClient) SubmitCSR(_ context.Context, csrPEM, otp string) (*infrazatca.CSIDResponse, error) {
	if s.csrFn != nil {
		return s.csrFn(csrPEM, otp)
	}
	return issuedCSID("compliance-token", "compliance-secret"), nil
}

func (s *stubAPIClient) IssueProductionCSID(_ context.Context, requestID string, _ zatcapkg.Credential) (*infrazatca.CSIDResponse, error) {
	s.mu.Lock()
	s.productionCalls++
	s.mu.Unlock()
	if s.productionFn != nil {
		return s.productionFn(requestID)
	}
	return issuedCSID("production-token", "production-secret"), nil
}

func (s *stubAPIClient) SubmitComplianceInvoice(_ context.Context, payload *infrazatca.InvoicePayload, _ zatcapkg.Credential) (*infrazatca.SubmitResponse, error) {
	s.mu.Lock()
	s.compliancePayloads = append(s.compliancePayloads, payload)
	s.mu.Unlock()
	if s.complianceFn != nil {
		return s.complianceFn(payload)
	}
	return &infrazatca.SubmitResponse{ReportingStatus: "REPORTED"}, nil
}

func (s *stubAPIClient) SubmitInvoice(_ context.Context, payload *infrazatca.InvoicePayload, _ zatcapkg.Credential, pos bool) (*infrazatca.SubmitResponse, error) {
	if s.submitFn != nil {
		return s.submitFn(payload, pos)
	}
	return &infrazatca.SubmitResponse{ReportingStatus: "REPORTED", ClearanceStatus: "CLEARED"}, nil
}

// stubSigner devuelve hashes secuenciales deterministas sin criptografía real.
type stubSigner struct {
	mu    sync.Mutex
	calls int
}

func (s *stubSigner) Sign(xmlBytes []byte, _ zatcapkg.Credential, _ zatcapkg.InvoiceMeta) (*zatcapkg.SignResult, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()
	return &zatcapkg.SignResult{
		SignedXML:        xmlBytes,
		InvoiceHash:      fmt.Sprintf("hash-%d", n),
		DigitalSignature: fmt.Sprintf("sig-%d", n),
		QRCode:           fmt.Sprintf("qr-%d", n),
	}, nil
}
