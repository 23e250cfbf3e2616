// Package crm implements the outbound CRM adapter.
package crm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"

	"triage_server/core/port/out"
	"triage_server/pkg/httputil"
	"triage_server/pkg/logger"
)

// CRMAdapter implements out.CRMPort over the CRM's REST API with a
// circuit breaker so a degraded CRM cannot stall the pipeline.
type CRMAdapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *logger.Logger
}

// NewCRMAdapter creates a CRM adapter.
func NewCRMAdapter(baseURL, apiKey string, log *logger.Logger) *CRMAdapter {
	if log == nil {
		log = logger.Default()
	}
	log = log.WithField("component", "crm")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "crm-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	})

	return &CRMAdapter{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  httputil.CRMClient(),
		breaker: breaker,
		log:     log,
	}
}

type leadStatusRequest struct {
	Status string `json:"status"`
}

// UpdateLeadStatus sets the lead's disposition in the CRM.
func (a *CRMAdapter) UpdateLeadStatus(ctx context.Context, leadID, status string) error {
	payload, err := json.Marshal(leadStatusRequest{Status: status})
	if err != nil {
		return fmt.Errorf("failed to marshal lead status: %w", err)
	}
	path := fmt.Sprintf("/api/leads/%s/status", leadID)
	if err := a.do(ctx, http.MethodPatch, path, payload); err != nil {
		return fmt.Errorf("failed to update lead status: %w", err)
	}
	a.log.WithFields(map[string]any{
		"lead_id": leadID,
		"status":  status,
	}).Debug("lead status updated")
	return nil
}

// StopCampaign removes the lead from all active outreach sequences.
func (a *CRMAdapter) StopCampaign(ctx context.Context, leadID string) error {
	path := fmt.Sprintf("/api/leads/%s/campaigns/stop", leadID)
	if err := a.do(ctx, http.MethodPost, path, nil); err != nil {
		return fmt.Errorf("failed to stop campaign: %w", err)
	}
	a.log.WithField("lead_id", leadID).Info("campaign stopped for lead")
	return nil
}

// do runs one CRM API call through the circuit breaker.
func (a *CRMAdapter) do(ctx context.Context, method, path string, payload []byte) error {
	_, err := a.breaker.Execute(func() (any, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequest(method, a.baseURL+path, body)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Authorization", "Bearer "+a.apiKey)

		resp, err := httputil.DoWithContext(ctx, a.client, req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, fmt.Errorf("CRM API returned %d: %s", resp.StatusCode, respBody)
		}
		io.Copy(io.Discard, resp.Body)
		return nil, nil
	})
	return err
}

var _ out.CRMPort = (*CRMAdapter)(nil)
