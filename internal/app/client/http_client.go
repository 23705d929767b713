package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/slog"

	"posclient/internal/app/client/config"
	"posclient/internal/domain/erp"
	"posclient/internal/domain/snapshot"
	"posclient/internal/infrastructure/metrics"
)

const (
	bootstrapPath   = "/api/method/pos.bootstrap"
	creditNotesPath = "/api/method/pos.get_credit_notes"
	resourcePath    = "/api/resource/"
)

// ERPClient talks to the ERP backend. It implements the remote interfaces of the
// snapshot, outbox, session and returns packages.
type ERPClient struct {
	client    *http.Client
	log       *slog.Logger
	metrics   *metrics.Metrics
	baseURL   string
	userAgent string

	mu    sync.RWMutex
	token string
}

func NewHTTPClient(cfg *config.Config, m *metrics.Metrics, log *slog.Logger) *ERPClient {
	client := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			MaxIdleConnsPerHost: 10,
		},
	}

	h := &ERPClient{
		client:    client,
		log:       log.With("component", "erp_client"),
		metrics:   m,
		baseURL:   strings.TrimRight(cfg.ERPURL, "/"),
		userAgent: "posclient/1.0",
	}
	h.SetCredentials(cfg.APIKey, cfg.APISecret)
	return h
}

// SetCredentials replaces the API key pair sent with every request.
func (h *ERPClient) SetCredentials(apiKey, apiSecret string) {
	var token string
	if apiKey != "" || apiSecret != "" {
		token = "token " + apiKey + ":" + apiSecret
	}
	h.mu.Lock()
	h.token = token
	h.mu.Unlock()
}

func (h *ERPClient) authToken() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

// FetchSnapshotSection calls the bootstrap endpoint once.
func (h *ERPClient) FetchSnapshotSection(ctx context.Context, req snapshot.SectionRequest) (*snapshot.BootstrapResponse, error) {
	q := url.Values{}
	if req.Profile != "" {
		q.Set("pos_profile", req.Profile)
	}
	if req.Include != "" {
		q.Set("include", string(req.Include))
		q.Set("offset", strconv.Itoa(req.Offset))
		if req.Limit > 0 {
			q.Set("limit", strconv.Itoa(req.Limit))
		}
	}
	if req.Warehouse != "" {
		q.Set("warehouse", req.Warehouse)
	}
	if req.PriceList != "" {
		q.Set("price_list", req.PriceList)
	}

	var envelope struct {
		Message *snapshot.BootstrapResponse `json:"message"`
	}
	if err := h.do(ctx, http.MethodGet, bootstrapPath, q, nil, &envelope); err != nil {
		return nil, fmt.Errorf("bootstrap %s: %w", sectionLabel(req.Include), err)
	}
	return envelope.Message, nil
}

// CreateDocument inserts a document and returns the name the backend assigned.
func (h *ERPClient) CreateDocument(ctx context.Context, doctype string, payload any) (string, error) {
	var envelope struct {
		Data struct {
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := h.do(ctx, http.MethodPost, resourcePath+url.PathEscape(doctype), nil, payload, &envelope); err != nil {
		return "", fmt.Errorf("create %s: %w", doctype, err)
	}
	if envelope.Data.Name == "" {
		return "", fmt.Errorf("create %s: response carries no name", doctype)
	}
	if erp.IsPlaceholder(envelope.Data.Name) {
		return "", fmt.Errorf("create %s: %w", doctype, erp.ErrPlaceholderName)
	}
	return envelope.Data.Name, nil
}

// SubmitDocument moves a draft to docstatus 1.
func (h *ERPClient) SubmitDocument(ctx context.Context, doctype, name string) error {
	if erp.IsPlaceholder(name) {
		return fmt.Errorf("submit %s: %w", doctype, erp.ErrPlaceholderName)
	}
	body := map[string]int{"docstatus": erp.DocStatusSubmitted}
	if err := h.do(ctx, http.MethodPut, docPath(doctype, name), nil, body, nil); err != nil {
		return fmt.Errorf("submit %s %s: %w", doctype, name, err)
	}
	return nil
}

// GetDocument returns the raw document.
func (h *ERPClient) GetDocument(ctx context.Context, doctype, name string) (json.RawMessage, error) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := h.do(ctx, http.MethodGet, docPath(doctype, name), nil, nil, &envelope); err != nil {
		return nil, fmt.Errorf("get %s %s: %w", doctype, name, err)
	}
	return envelope.Data, nil
}

// GetDocumentsForParent lists every document whose parentField equals parent.
func (h *ERPClient) GetDocumentsForParent(ctx context.Context, doctype, parentField, parent string) ([]json.RawMessage, error) {
	filters, err := json.Marshal([][]string{{parentField, "=", parent}})
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("filters", string(filters))
	q.Set("fields", `["*"]`)
	q.Set("limit_page_length", "0")

	var envelope struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := h.do(ctx, http.MethodGet, resourcePath+url.PathEscape(doctype), q, nil, &envelope); err != nil {
		return nil, fmt.Errorf("list %s by %s: %w", doctype, parentField, err)
	}
	return envelope.Data, nil
}

// GetCreditNotes returns the credit notes issued against an invoice.
func (h *ERPClient) GetCreditNotes(ctx context.Context, returnAgainst string) ([]erp.Invoice, error) {
	q := url.Values{}
	q.Set("return_against", returnAgainst)

	var envelope struct {
		Message []erp.Invoice `json:"message"`
	}
	if err := h.do(ctx, http.MethodGet, creditNotesPath, q, nil, &envelope); err != nil {
		return nil, fmt.Errorf("credit notes for %s: %w", returnAgainst, err)
	}
	return envelope.Message, nil
}

// LoggedUser returns the user the credentials authenticate as.
func (h *ERPClient) LoggedUser(ctx context.Context) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	if err := h.do(ctx, http.MethodGet, "/api/method/frappe.auth.get_logged_user", nil, nil, &out); err != nil {
		return "", err
	}
	if out.Message == "" || out.Message == "Guest" {
		return "", fmt.Errorf("%w: credentials were not accepted", erp.ErrUnauthorized)
	}
	return out.Message, nil
}

// HealthCheck pings the backend.
func (h *ERPClient) HealthCheck(ctx context.Context) error {
	return h.do(ctx, http.MethodGet, "/api/method/ping", nil, nil, nil)
}

func (h *ERPClient) do(ctx context.Context, method, path string, query url.Values, body, result any) error {
	resp, err := h.doRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	return h.parseResponse(resp, result)
}

func (h *ERPClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	target := h.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", h.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := h.authToken(); token != "" {
		req.Header.Set("Authorization", token)
	}

	h.log.Debug("sending request", "method", method, "path", path)

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		h.metrics.ObserveERPRequest(method, 0, time.Since(start))
		return nil, fmt.Errorf("send request: %w", err)
	}
	h.metrics.ObserveERPRequest(method, resp.StatusCode, time.Since(start))

	return resp, nil
}

func (h *ERPClient) parseResponse(resp *http.Response, result any) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	h.log.Debug("received response", "status", resp.StatusCode, "bytes", len(body))

	if resp.StatusCode >= http.StatusBadRequest {
		return &erp.RemoteError{Status: resp.StatusCode, Message: errorMessage(body)}
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// errorMessage extracts a readable message from an ERP error body.
func errorMessage(body []byte) string {
	var errResp struct {
		Exception      string          `json:"exception"`
		ExcType        string          `json:"exc_type"`
		Message        json.RawMessage `json:"message"`
		ServerMessages string          `json:"_server_messages"`
		Error          string          `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return strings.TrimSpace(string(body))
	}

	var msg string
	if len(errResp.Message) > 0 && json.Unmarshal(errResp.Message, &msg) == nil && msg != "" {
		return msg
	}
	for _, s := range []string{errResp.Exception, errResp.Error, serverMessage(errResp.ServerMessages), errResp.ExcType} {
		if s != "" {
			return s
		}
	}
	return ""
}

// serverMessage unwraps the doubly-encoded _server_messages list.
func serverMessage(raw string) string {
	if raw == "" {
		return ""
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil || len(list) == 0 {
		return ""
	}
	var inner struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(list[0]), &inner); err == nil && inner.Message != "" {
		return inner.Message
	}
	return list[0]
}

func docPath(doctype, name string) string {
	return resourcePath + url.PathEscape(doctype) + "/" + url.PathEscape(name)
}

func sectionLabel(s snapshot.Section) string {
	if s == "" {
		return "base"
	}
	return string(s)
}
