package medication

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// PharmacyClient creates prescriptions on a remote pharmacy service via
// POST /prescriptions. It cannot join a database transaction.
type PharmacyClient struct {
	client *resty.Client
}

func NewPharmacyClient(baseURL string) *PharmacyClient {
	return &PharmacyClient{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(10 * time.Second).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
	}
}

func (c *PharmacyClient) Transactional() bool { return false }

type pharmacyError struct {
	Message string `json:"message"`
}

func (c *PharmacyClient) CreatePrescription(ctx context.Context, p *Prescription) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.Status == "" {
		p.Status = StatusActive
	}
	var perr pharmacyError
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(p).
		SetResult(p).
		SetError(&perr).
		Post("/prescriptions")
	if err != nil {
		return fmt.Errorf("pharmacy: %w", err)
	}
	if resp.IsError() {
		if perr.Message != "" {
			return fmt.Errorf("pharmacy: status %d: %s", resp.StatusCode(), perr.Message)
		}
		return fmt.Errorf("pharmacy: status %d", resp.StatusCode())
	}
	return nil
}
