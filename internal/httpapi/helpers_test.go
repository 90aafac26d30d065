package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ntb-arenas/grocery-list-tracker/internal/docstore"
	"github.com/ntb-arenas/grocery-list-tracker/internal/grocery"
)

// newTestServer builds a router over a fresh in-memory document store.
func newTestServer(t *testing.T) (http.Handler, *docstore.Memory) {
	t.Helper()
	store := docstore.NewMemory()
	srv := &Server{Svc: grocery.NewService(store)}
	return srv.Routes(), store
}

// doJSON makes a request with an optional JSON body and returns the recorder.
func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var bodyReader *bytes.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	} else {
		bodyReader = bytes.NewReader([]byte{})
	}

	req := httptest.NewRequest(method, path, bodyReader)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// decodeBody parses a JSON response body into v.
func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
}

// decodeItems parses a GET /v1/items response body.
func decodeItems(t *testing.T, w *httptest.ResponseRecorder) []grocery.Item {
	t.Helper()
	var resp struct {
		Items []grocery.Item `json:"items"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode items response: %v", err)
	}
	return resp.Items
}
