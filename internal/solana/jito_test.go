package solana

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestJitoClient_SendBundle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/bundles" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Method != "sendBundle" {
			t.Errorf("expected sendBundle, got %s", req.Method)
		}
		txs, _ := req.Params[0].([]interface{})
		if len(txs) != 1 {
			t.Errorf("expected 1 tx, got %d", len(txs))
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  "2id3YC2jK9G5Wo2phDx4gJVAew8DcY5NAojnVuao8rkxwPYPe8cSwE5GzhEgJA2y8fVjDEo6iR6ykBvDxrTQrtpb",
		})
	}))
	defer server.Close()

	client := NewJitoClient(server.URL)

	id, err := client.SendBundle(context.Background(), []string{"AQID"})
	if err != nil {
		t.Fatalf("SendBundle: %v", err)
	}
	if id == "" {
		t.Error("expected bundle id")
	}
}

func TestJitoClient_SendBundle_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]interface{}{"code": -32602, "message": "bundle must contain a tip"},
		})
	}))
	defer server.Close()

	client := NewJitoClient(server.URL + "/api/v1/bundles")

	_, err := client.SendBundle(context.Background(), []string{"AQID"})
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %v", err)
	}
}

func TestJitoClient_SendBundle_Size(t *testing.T) {
	client := NewJitoClient("http://127.0.0.1:0")
	if _, err := client.SendBundle(context.Background(), nil); err == nil {
		t.Error("expected error for empty bundle")
	}
}

func TestJitoClient_GetTipAccounts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  []string{DefaultJitoTipAccount},
		})
	}))
	defer server.Close()

	accounts, err := NewJitoClient(server.URL).GetTipAccounts(context.Background())
	if err != nil {
		t.Fatalf("GetTipAccounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0] != DefaultJitoTipAccount {
		t.Errorf("unexpected accounts %v", accounts)
	}
}
