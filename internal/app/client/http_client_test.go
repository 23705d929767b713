package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"posclient/internal/app/client/config"
	"posclient/internal/domain/erp"
	"posclient/internal/domain/snapshot"
	"posclient/internal/infrastructure/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestERPClient(t *testing.T, r http.Handler) *ERPClient {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		ERPURL:      srv.URL + "/",
		APIKey:      "key",
		APISecret:   "secret",
		HTTPTimeout: 5 * time.Second,
	}
	return NewHTTPClient(cfg, metrics.New(), testLogger())
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestERPClient_FetchSnapshotSection(t *testing.T) {
	// Arrange
	var gotQuery map[string]string
	var gotAuth string
	r := chi.NewRouter()
	r.Get("/api/method/pos.bootstrap", func(w http.ResponseWriter, req *http.Request) {
		gotAuth = req.Header.Get("Authorization")
		gotQuery = map[string]string{}
		for k := range req.URL.Query() {
			gotQuery[k] = req.URL.Query().Get(k)
		}
		writeJSON(w, http.StatusOK, `{"message":{
			"context":{"pos_profile":"Main","default_warehouse":"Stores"},
			"pos_profiles":[{"name":"Main"}],
			"inventory":{"items":[{"item_code":"PEN"}],"pagination":{"offset":0,"limit":50,"total":1}}
		}}`)
	})
	c := newTestERPClient(t, r)

	// Act
	resp, err := c.FetchSnapshotSection(context.Background(), snapshot.SectionRequest{
		Profile:   "Main",
		Warehouse: "Stores",
		PriceList: "Standard Selling",
		Include:   snapshot.SectionInventory,
		Offset:    50,
		Limit:     50,
	})

	// Assert
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "token key:secret", gotAuth)
	assert.Equal(t, map[string]string{
		"pos_profile": "Main",
		"include":     "inventory",
		"offset":      "50",
		"limit":       "50",
		"warehouse":   "Stores",
		"price_list":  "Standard Selling",
	}, gotQuery)
	assert.Equal(t, "Stores", resp.Context.DefaultWarehouse)
	require.NotNil(t, resp.Inventory)
	assert.Len(t, resp.Inventory.Items, 1)
	assert.Equal(t, 1, resp.Inventory.Pagination.Total)
}

func TestERPClient_BaseRequestOmitsPaging(t *testing.T) {
	var rawQuery string
	r := chi.NewRouter()
	r.Get("/api/method/pos.bootstrap", func(w http.ResponseWriter, req *http.Request) {
		rawQuery = req.URL.RawQuery
		writeJSON(w, http.StatusOK, `{"message":{}}`)
	})
	c := newTestERPClient(t, r)

	_, err := c.FetchSnapshotSection(context.Background(), snapshot.SectionRequest{Profile: "Main"})

	require.NoError(t, err)
	assert.Equal(t, "pos_profile=Main", rawQuery)
}

func TestERPClient_Errors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantNotFound bool
		wantConflict bool
		wantMessage  string
	}{
		{
			name:         "not found",
			status:       http.StatusNotFound,
			body:         `{"exc_type":"DoesNotExistError"}`,
			wantNotFound: true,
			wantMessage:  "DoesNotExistError",
		},
		{
			name:         "conflict status",
			status:       http.StatusConflict,
			body:         `{"message":"Customer CUST-1 exists"}`,
			wantConflict: true,
			wantMessage:  "Customer CUST-1 exists",
		},
		{
			name:         "duplicate in server messages",
			status:       http.StatusExpectationFailed,
			body:         `{"_server_messages":"[\"{\\\"message\\\": \\\"Duplicate entry for Ana\\\"}\"]"}`,
			wantConflict: true,
			wantMessage:  "Duplicate entry for Ana",
		},
		{
			name:        "server error",
			status:      http.StatusInternalServerError,
			body:        `{"exception":"frappe.exceptions.ValidationError: bad posting date"}`,
			wantMessage: "frappe.exceptions.ValidationError: bad posting date",
		},
		{
			name:        "plain text",
			status:      http.StatusBadGateway,
			body:        "upstream down",
			wantMessage: "upstream down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Post("/api/resource/{doctype}", func(w http.ResponseWriter, req *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})
			c := newTestERPClient(t, r)

			_, err := c.CreateDocument(context.Background(), erp.DocTypeCustomer, map[string]string{"customer_name": "Ana"})

			require.Error(t, err)
			var re *erp.RemoteError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.status, re.Status)
			assert.Equal(t, tt.wantMessage, re.Message)
			assert.Equal(t, tt.wantNotFound, errors.Is(err, erp.ErrNotFound))
			assert.Equal(t, tt.wantConflict, erp.IsConflict(err))
		})
	}
}

func TestERPClient_CreateAndSubmit(t *testing.T) {
	// Arrange
	var created map[string]any
	var submitted map[string]any
	var submittedDoctype, submittedName string
	r := chi.NewRouter()
	r.Post("/api/resource/{doctype}", func(w http.ResponseWriter, req *http.Request) {
		require.NoError(t, json.NewDecoder(req.Body).Decode(&created))
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		writeJSON(w, http.StatusOK, `{"data":{"name":"POS-OPE-0001","docstatus":0}}`)
	})
	r.Put("/api/resource/{doctype}/{name}", func(w http.ResponseWriter, req *http.Request) {
		submittedDoctype = chi.URLParam(req, "doctype")
		submittedName = chi.URLParam(req, "name")
		require.NoError(t, json.NewDecoder(req.Body).Decode(&submitted))
		writeJSON(w, http.StatusOK, `{"data":{"name":"POS-OPE-0001","docstatus":1}}`)
	})
	c := newTestERPClient(t, r)
	ctx := context.Background()

	// Act
	name, err := c.CreateDocument(ctx, erp.DocTypeOpeningEntry, erp.OpeningEntry{POSProfile: "Main"})
	require.NoError(t, err)
	err = c.SubmitDocument(ctx, erp.DocTypeOpeningEntry, name)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "POS-OPE-0001", name)
	assert.Equal(t, "Main", created["pos_profile"])
	assert.Equal(t, erp.DocTypeOpeningEntry, submittedDoctype)
	assert.Equal(t, "POS-OPE-0001", submittedName)
	assert.Equal(t, map[string]any{"docstatus": float64(1)}, submitted)
}

func TestERPClient_RejectsPlaceholders(t *testing.T) {
	calls := 0
	r := chi.NewRouter()
	r.Post("/api/resource/{doctype}", func(w http.ResponseWriter, req *http.Request) {
		calls++
		writeJSON(w, http.StatusOK, `{"data":{"name":"LOCAL-echo"}}`)
	})
	c := newTestERPClient(t, r)
	ctx := context.Background()

	_, err := c.CreateDocument(ctx, erp.DocTypeCustomer, map[string]string{})
	assert.ErrorIs(t, err, erp.ErrPlaceholderName)

	err = c.SubmitDocument(ctx, erp.DocTypeCustomer, erp.NewPlaceholder())
	assert.ErrorIs(t, err, erp.ErrPlaceholderName)
	assert.Equal(t, 1, calls)
}

func TestERPClient_Lookups(t *testing.T) {
	// Arrange
	var filters, returnAgainst string
	r := chi.NewRouter()
	r.Get("/api/resource/{doctype}", func(w http.ResponseWriter, req *http.Request) {
		filters = req.URL.Query().Get("filters")
		writeJSON(w, http.StatusOK, `{"data":[{"name":"POS-CLO-0001","docstatus":1}]}`)
	})
	r.Get("/api/resource/{doctype}/{name}", func(w http.ResponseWriter, req *http.Request) {
		if chi.URLParam(req, "name") == "SINV-404" {
			writeJSON(w, http.StatusNotFound, `{}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"data":{"name":"SINV-1","outstanding_amount":60}}`)
	})
	r.Get("/api/method/pos.get_credit_notes", func(w http.ResponseWriter, req *http.Request) {
		returnAgainst = req.URL.Query().Get("return_against")
		writeJSON(w, http.StatusOK, `{"message":[{"name":"SINV-RET-1","is_return":1,"docstatus":1,
			"items":[{"item_code":"PEN","qty":-2}]}]}`)
	})
	c := newTestERPClient(t, r)
	ctx := context.Background()

	// Act + Assert
	docs, err := c.GetDocumentsForParent(ctx, erp.DocTypeClosingEntry, "pos_opening_entry", "POS-OPE-0001")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.JSONEq(t, `[["pos_opening_entry","=","POS-OPE-0001"]]`, filters)

	raw, err := c.GetDocument(ctx, erp.DocTypeSalesInvoice, "SINV-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"SINV-1","outstanding_amount":60}`, string(raw))

	_, err = c.GetDocument(ctx, erp.DocTypeSalesInvoice, "SINV-404")
	assert.ErrorIs(t, err, erp.ErrNotFound)

	notes, err := c.GetCreditNotes(ctx, "SINV-1")
	require.NoError(t, err)
	assert.Equal(t, "SINV-1", returnAgainst)
	require.Len(t, notes, 1)
	assert.True(t, bool(notes[0].IsReturn))
	assert.Equal(t, "-2", notes[0].Items[0].Qty.String())
}

func TestERPClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := NewHTTPClient(&config.Config{ERPURL: srv.URL, HTTPTimeout: time.Second}, nil, testLogger())

	_, err := c.GetDocument(context.Background(), erp.DocTypeCustomer, "CUST-1")

	require.Error(t, err)
	var re *erp.RemoteError
	assert.False(t, errors.As(err, &re))
}
