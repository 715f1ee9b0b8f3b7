// Package painclient talks to the opioid calculator endpoints and keeps
// only the newest answer while a regimen is being edited.
package painclient

import (
	"context"
	"net/http"
	"time"

	"github.com/onco/onco/internal/domain/pain"
	"github.com/onco/onco/internal/platform/apiclient"
)

const (
	mmePath         = "/api/pain/opiates/mme"
	safetyCheckPath = "/api/pain/opiates/safety-check"
)

// Checker runs a safety check. *Client and LocalChecker implement it.
type Checker interface {
	SafetyCheck(ctx context.Context, body pain.SafetyCheckBody) (*pain.SafetyCheckResponse, error)
}

type Client struct {
	api *apiclient.Client
}

// New returns a client for the server at baseURL. A non-empty token is sent
// as a bearer token; clinic selects the clinic schema.
func New(baseURL, token, clinic string, timeout time.Duration) (*Client, error) {
	api, err := apiclient.New(baseURL, timeout)
	if err != nil {
		return nil, err
	}
	if token != "" {
		api.Header.Set("Authorization", "Bearer "+token)
	}
	if clinic != "" {
		api.Header.Set("X-Clinic-ID", clinic)
	}
	return &Client{api: api}, nil
}

func (c *Client) MME(ctx context.Context, req pain.MMERequest) (*pain.MMEResponse, error) {
	var out pain.MMEResponse
	if err := c.api.DoJSON(ctx, http.MethodPost, mmePath, nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SafetyCheck(ctx context.Context, body pain.SafetyCheckBody) (*pain.SafetyCheckResponse, error) {
	var out pain.SafetyCheckResponse
	if err := c.api.DoJSON(ctx, http.MethodPost, safetyCheckPath, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LocalChecker runs checks in-process against a pain.Service.
type LocalChecker struct {
	Service *pain.Service
}

func (l LocalChecker) SafetyCheck(ctx context.Context, body pain.SafetyCheckBody) (*pain.SafetyCheckResponse, error) {
	res, err := l.Service.SafetyCheck(ctx, pain.SafetyCheckRequest{
		Medications: body.Medications,
		Patient:     body.Patient,
		PatientID:   body.PatientID,
	})
	if err != nil {
		return nil, err
	}
	return &pain.SafetyCheckResponse{RequestSeq: body.RequestSeq, CheckResult: res}, nil
}
