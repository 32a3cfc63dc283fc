package registry

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/auto-dns/traefik-cname-sync/internal/config"
	"github.com/auto-dns/traefik-cname-sync/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	opCreate = "create"
	opDelete = "delete"
	opList   = "list"
)

// NamecomRegistry talks to the Name.com v4 API. It holds no state beyond the
// encoded credential and is safe for concurrent use.
type NamecomRegistry struct {
	baseURL       string
	authorization string
	timeout       time.Duration
	client        *http.Client
	logger        zerolog.Logger
}

func NewNamecomRegistry(cfg *config.RegistrarConfig, logger zerolog.Logger) *NamecomRegistry {
	token := base64.StdEncoding.EncodeToString([]byte(cfg.Account + ":" + cfg.APIKey))
	timeout := cfg.TimeoutDuration()
	return &NamecomRegistry{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		authorization: "Basic " + token,
		timeout:       timeout,
		client:        &http.Client{},
		logger:        logger,
	}
}

// doRequest issues one API call under the per-call timeout and decodes a 2xx
// body into out when out is non-nil.
func (r *NamecomRegistry) doRequest(ctx context.Context, op, domain, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return NewRegistrarError(op, domain, 0, "", fmt.Errorf("marshal request body: %w", err))
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, bodyReader)
	if err != nil {
		return NewRegistrarError(op, domain, 0, "", fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Authorization", r.authorization)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		metrics.RegistrarRequestsTotal.WithLabelValues(op, "error").Inc()
		return NewRegistrarError(op, domain, 0, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RegistrarRequestsTotal.WithLabelValues(op, "error").Inc()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return NewRegistrarError(op, domain, resp.StatusCode, errorMessage(respBody), nil)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			metrics.RegistrarRequestsTotal.WithLabelValues(op, "error").Inc()
			return NewRegistrarError(op, domain, resp.StatusCode, "", fmt.Errorf("decode response: %w", err))
		}
	}
	metrics.RegistrarRequestsTotal.WithLabelValues(op, "success").Inc()
	return nil
}

func errorMessage(body []byte) string {
	var e namecomErrorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		if e.Details != "" {
			return e.Message + ": " + e.Details
		}
		return e.Message
	}
	return strings.TrimSpace(string(body))
}

func recordsPath(domain string) string {
	return "/domains/" + url.PathEscape(domain) + "/records"
}

// CreateCNAME creates subdomain.domain as a CNAME to target and returns the
// registrar's record id. It does not retry.
func (r *NamecomRegistry) CreateCNAME(ctx context.Context, domain, subdomain, target string, ttl int) (string, error) {
	in := namecomRecord{Host: subdomain, Type: "CNAME", Answer: target, TTL: ttl}
	var out namecomRecord
	if err := r.doRequest(ctx, opCreate, domain, http.MethodPost, recordsPath(domain), in, &out); err != nil {
		return "", err
	}
	if out.Id == 0 {
		return "", NewRegistrarError(opCreate, domain, http.StatusOK, "response carried no record id", nil)
	}
	id := strconv.FormatInt(out.Id, 10)
	r.logger.Debug().Str("domain", domain).Str("subdomain", subdomain).Str("target", target).Str("record_id", id).Msg("Registrar created CNAME")
	return id, nil
}

// DeleteRecord deletes a record by id. A record that no longer exists is
// reported as the registrar's error like any other failure.
func (r *NamecomRegistry) DeleteRecord(ctx context.Context, domain, recordId string) error {
	path := recordsPath(domain) + "/" + url.PathEscape(recordId)
	if err := r.doRequest(ctx, opDelete, domain, http.MethodDelete, path, nil, nil); err != nil {
		return err
	}
	r.logger.Debug().Str("domain", domain).Str("record_id", recordId).Msg("Registrar deleted record")
	return nil
}

// ListRecords returns every record of the domain, following pagination.
func (r *NamecomRegistry) ListRecords(ctx context.Context, domain string) ([]Record, error) {
	var records []Record
	page := 1
	for {
		var out namecomListResponse
		path := fmt.Sprintf("%s?page=%d", recordsPath(domain), page)
		if err := r.doRequest(ctx, opList, domain, http.MethodGet, path, nil, &out); err != nil {
			return nil, err
		}
		for _, rec := range out.Records {
			records = append(records, rec.toRecord(domain))
		}
		if out.NextPage == 0 || out.NextPage <= page {
			return records, nil
		}
		page = out.NextPage
	}
}
