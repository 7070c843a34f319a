package usecase

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"time"

	"assistant-gateway/internal/domain"
)

// RegistrationStore persists contact-form submissions. ListRegistrations
// returns newest first.
type RegistrationStore interface {
	SaveRegistration(ctx context.Context, rec domain.RegistrationRecord) error
	ListRegistrations(ctx context.Context) ([]domain.RegistrationRecord, error)
}

type RegisterInput struct {
	FullName       string
	Email          string
	Phone          string
	ProjectDetails string
}

// RegistrationService is the contact-form CRUD passthrough: validate,
// write once, export in bulk.
type RegistrationService struct {
	store RegistrationStore
	now   func() time.Time
}

func NewRegistrationService(store RegistrationStore) (*RegistrationService, error) {
	if store == nil {
		return nil, errors.New("usecase: registration store must not be nil")
	}
	return &RegistrationService{store: store, now: time.Now}, nil
}

func (s *RegistrationService) Register(ctx context.Context, in RegisterInput) error {
	fullName := strings.TrimSpace(in.FullName)
	email := strings.TrimSpace(in.Email)
	phone := strings.TrimSpace(in.Phone)
	if fullName == "" {
		return newError(ErrorInvalidInput, "missing_full_name", nil)
	}
	if email == "" {
		return newError(ErrorInvalidInput, "missing_email", nil)
	}
	if phone == "" {
		return newError(ErrorInvalidInput, "missing_phone", nil)
	}

	rec := domain.RegistrationRecord{
		FullName:       fullName,
		Email:          email,
		Phone:          phone,
		ProjectDetails: strings.TrimSpace(in.ProjectDetails),
		CreatedAt:      s.now(),
	}
	if err := s.store.SaveRegistration(ctx, rec); err != nil {
		return newError(ErrorStoreFailure, "registration_save_error", err)
	}
	return nil
}

// ExportCSV renders all registrations as CSV, newest first, with a header
// row.
func (s *RegistrationService) ExportCSV(ctx context.Context) (string, error) {
	recs, err := s.store.ListRegistrations(ctx)
	if err != nil {
		return "", newError(ErrorStoreFailure, "registration_list_error", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"fullName", "email", "phone", "projectDetails", "createdAt"})
	for _, r := range recs {
		_ = w.Write([]string{r.FullName, r.Email, r.Phone, r.ProjectDetails, r.CreatedAt.UTC().Format(time.RFC3339)})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", newError(ErrorInternal, "csv_encode_error", err)
	}
	return buf.String(), nil
}
