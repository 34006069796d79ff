package forwarder

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestForwardRelaysBodyVerbatim(t *testing.T) {
	var receivedBody []byte
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		receivedBody = body
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x1"}`))
	}))
	defer upstream.Close()

	f := New(upstream.URL)
	reqBody := []byte(`{"jsonrpc":"2.0","method":"eth_blockNumber","params":[],"id":1}`)
	resp, err := f.Forward(context.Background(), reqBody)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if string(receivedBody) != string(reqBody) {
		t.Fatalf("expected upstream to receive the request body verbatim, got %s", receivedBody)
	}
	if string(resp) != `{"jsonrpc":"2.0","id":1,"result":"0x1"}` {
		t.Fatalf("expected response body to be relayed unchanged, got %s", resp)
	}
}

func TestForwardSurfacesConnectionError(t *testing.T) {
	f := New("http://127.0.0.1:1")
	_, err := f.Forward(context.Background(), []byte(`{}`))
	if err == nil {
		t.Fatalf("expected an error when the upstream is unreachable")
	}
}
