package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cyberbrief/cyberbrief-backend/internal/payments"
	"github.com/cyberbrief/cyberbrief-backend/pkg/enums"
	pkgerrors "github.com/cyberbrief/cyberbrief-backend/pkg/errors"
)

const statusPathFormat = "/api/v1/payments/%s/status"

// HTTPFetcher reads status from the public status endpoint.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFetcher builds a fetcher against the API at baseURL.
func NewHTTPFetcher(baseURL string, client *http.Client) (*HTTPFetcher, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("base url must be absolute: %q", baseURL)
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPFetcher{baseURL: strings.TrimRight(parsed.String(), "/"), client: client}, nil
}

type statusEnvelope struct {
	Success bool                   `json:"success"`
	Data    *payments.StatusResult `json:"data"`
	Error   *statusError           `json:"error"`
}

type statusError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (f *HTTPFetcher) FetchStatus(ctx context.Context, reference string) (enums.PaymentStatus, error) {
	endpoint := f.baseURL + fmt.Sprintf(statusPathFormat, url.PathEscape(reference))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("status request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read status response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNotFound
	}

	var envelope statusEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("decode status response (%d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode/100 != 2 || !envelope.Success || envelope.Data == nil {
		msg := http.StatusText(resp.StatusCode)
		if envelope.Error != nil && envelope.Error.Message != "" {
			msg = envelope.Error.Message
		}
		return "", fmt.Errorf("status endpoint returned %d: %s", resp.StatusCode, msg)
	}

	status, err := enums.ParsePaymentStatus(string(envelope.Data.Status))
	if err != nil {
		return "", err
	}
	return status, nil
}

type statusReader interface {
	Status(ctx context.Context, reference string) (*payments.StatusResult, error)
}

// StoreFetcher reads status in-process through the payments service.
type StoreFetcher struct {
	svc statusReader
}

func NewStoreFetcher(svc statusReader) *StoreFetcher {
	return &StoreFetcher{svc: svc}
}

func (f *StoreFetcher) FetchStatus(ctx context.Context, reference string) (enums.PaymentStatus, error) {
	res, err := f.svc.Status(ctx, reference)
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return res.Status, nil
}
