package identity

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// HTTPDirectory resolves patients against a remote registration service
// exposing GET /patients/{id}.
type HTTPDirectory struct {
	client *resty.Client
}

func NewHTTPDirectory(baseURL string) *HTTPDirectory {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Accept", "application/json")
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil || r.StatusCode() >= http.StatusInternalServerError
	})
	return &HTTPDirectory{client: client}
}

func (d *HTTPDirectory) ResolvePatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	resp, err := d.client.R().
		SetContext(ctx).
		SetPathParam("id", id.String()).
		SetResult(&p).
		Get("/patients/{id}")
	if err != nil {
		return nil, fmt.Errorf("patient directory: %w", err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, ErrPatientNotFound
	case resp.IsError():
		return nil, fmt.Errorf("patient directory: unexpected status %d", resp.StatusCode())
	}
	if p.ID == uuid.Nil || !p.Active {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}
