package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestHTTPClient_ErrorHandling(t *testing.T) {
	tests := []struct {
		name           string
		responseBody   string
		statusCode     int
		checkErrorFunc func(*testing.T, error)
	}{
		{
			name: "JSON-RPC error with revert data",
			responseBody: `{
				"jsonrpc": "2.0",
				"error": {"code": 3, "message": "execution reverted", "data": "0x2d2d4a2f"},
				"id": 1
			}`,
			statusCode: 200,
			checkErrorFunc: func(t *testing.T, err error) {
				e, ok := AsError(err)
				if !ok {
					t.Fatalf("expected *Error, got %T", err)
				}
				if e.Code != ErrCodeRPCError || e.RPCCode != 3 {
					t.Errorf("expected RPC error code 3, got %d/%d", e.Code, e.RPCCode)
				}
				data, ok := RevertData(err)
				if !ok || len(data) != 4 {
					t.Errorf("expected 4 bytes of revert data, got %x (%v)", data, ok)
				}
			},
		},
		{
			name:         "JSON-RPC error without data",
			responseBody: `{"jsonrpc": "2.0", "error": {"code": -32601, "message": "method not found"}, "id": 1}`,
			statusCode:   200,
			checkErrorFunc: func(t *testing.T, err error) {
				if _, ok := RevertData(err); ok {
					t.Error("expected no revert data")
				}
				e, _ := AsError(err)
				if e == nil || e.Message != "method not found" {
					t.Errorf("unexpected error: %v", err)
				}
			},
		},
		{
			name:         "HTTP 404 without JSON body",
			responseBody: `not found`,
			statusCode:   404,
			checkErrorFunc: func(t *testing.T, err error) {
				if !IsNotFound(err) {
					t.Errorf("expected not found error, got %v", err)
				}
			},
		},
		{
			name:         "invalid JSON with 200",
			responseBody: `{{{`,
			statusCode:   200,
			checkErrorFunc: func(t *testing.T, err error) {
				e, ok := AsError(err)
				if !ok || e.Code != ErrCodeInvalidResponse {
					t.Errorf("expected invalid response error, got %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.responseBody))
			}))
			defer server.Close()

			client, err := NewClient(&Config{
				Endpoint: server.URL,
				Protocol: ProtocolHTTP,
				Retry:    NoRetry(),
			})
			if err != nil {
				t.Fatalf("failed to create client: %v", err)
			}
			defer client.Close()

			_, err = client.Call(context.Background(), "eth_call", []interface{}{})
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			tt.checkErrorFunc(t, err)
		})
	}
}

func TestHTTPClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","result":"0x1","id":1}`))
	}))
	defer server.Close()

	client, err := NewHTTPClient(&Config{
		Endpoint: server.URL,
		Retry:    &RetryConfig{MaxRetries: 3, InitialDelay: 1, MaxDelay: 5, BackoffMultiplier: 2},
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	result, err := client.Call(context.Background(), "eth_chainId", nil)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if string(result) != `"0x1"` {
		t.Errorf("Call() result = %s, want \"0x1\"", result)
	}
	if calls != 3 {
		t.Errorf("server called %d times, want 3", calls)
	}
}

func TestHTTPClient_NoRetryOnRPCError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","error":{"code":-32000,"message":"boom"},"id":1}`))
	}))
	defer server.Close()

	client, _ := NewHTTPClient(&Config{Endpoint: server.URL, Retry: DefaultRetryConfig()})
	if _, err := client.Call(context.Background(), "eth_call", nil); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("server called %d times, want 1", calls)
	}
}

func TestHTTPClient_CustomHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Client"); got != "authz" {
			t.Errorf("X-Client header = %q, want authz", got)
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","result":true,"id":1}`))
	}))
	defer server.Close()

	client, _ := NewHTTPClient(&Config{Endpoint: server.URL, Headers: map[string]string{"X-Client": "authz"}})
	if _, err := client.Call(context.Background(), "net_listening", nil); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
}

func TestHTTPClient_SubscribeNotSupported(t *testing.T) {
	client, _ := NewHTTPClient(DefaultConfig())
	_, err := client.Subscribe(context.Background(), &EventFilter{})
	e, ok := AsError(err)
	if !ok || e.Code != ErrCodeNotSupported {
		t.Errorf("Subscribe() error = %v, want not supported", err)
	}
}
