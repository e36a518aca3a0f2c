package consent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/cstorey/bankmirror/internal/httpenv"
)

// rewriteTransport points the envelope's https://host/path URLs at a local
// httptest server, the same shim internal/httpenv's own tests use.
type rewriteTransport struct{ srv *httptest.Server }

func (t rewriteTransport) Do(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	req.URL.Host = t.srv.Listener.Addr().String()
	return http.DefaultClient.Do(req)
}

func TestCreateRequisitionReturnsIDAndLink(t *testing.T) {
	wantID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/requisitions/" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"` + wantID.String() + `","link":"https://ob.example/auth/start"}`))
	}))
	defer srv.Close()

	client := httpenv.New(t.Name(), rewriteTransport{srv: srv},
		httpenv.HostTable{Sandbox: srv.Listener.Addr().String()}, httpenv.Sandbox)

	id, link, err := CreateRequisition(context.Background(), client, "INSTITUTION_ID", "http://127.0.0.1:9999/callback")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != wantID {
		t.Errorf("id = %v, want %v", id, wantID)
	}
	if link != "https://ob.example/auth/start" {
		t.Errorf("link = %q", link)
	}
}

func TestAuthorizeURLIncludesExpectedFields(t *testing.T) {
	got := AuthorizeURL("auth.example-bank.com", "client-123", "http://127.0.0.1:8080/callback", "nonce-abc")
	for _, want := range []string{
		"https://auth.example-bank.com/",
		"client_id=client-123",
		"response_type=code",
		"state=nonce-abc",
		"redirect_uri=http%3A%2F%2F127.0.0.1%3A8080%2Fcallback",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("AuthorizeURL() = %q, want it to contain %q", got, want)
		}
	}
}
