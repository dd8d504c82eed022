package etherscan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	xerrors "LSRWA-Express/internal/errors"
)

type fakeExplorer struct {
	mu        sync.Mutex
	verified  bool
	submitted map[string]string
	statuses  []string
	polls     int
}

func (f *fakeExplorer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("chainid") != "11155111" || r.Form.Get("apikey") != "key" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	reply := func(status string, result any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "message": "OK", "result": result})
	}

	switch r.Form.Get("action") {
	case "getsourcecode":
		source := ""
		if f.verified {
			source = "pragma solidity ^0.8.30;"
		}
		reply("1", []map[string]string{{"SourceCode": source, "ContractName": "LSRWAExpress"}})
	case "verifysourcecode":
		if r.Method != http.MethodPost {
			http.Error(w, "post required", http.StatusMethodNotAllowed)
			return
		}
		f.submitted = map[string]string{}
		for key := range r.PostForm {
			f.submitted[key] = r.PostForm.Get(key)
		}
		if f.verified {
			reply("0", "Contract source code already verified")
			return
		}
		reply("1", "guid-123")
	case "checkverifystatus":
		f.polls++
		status := f.statuses[0]
		if len(f.statuses) > 1 {
			f.statuses = f.statuses[1:]
		}
		reply("1", status)
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
	}
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{APIKey: "key", BaseURL: srv.URL, ChainID: 11155111, PollInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.httpClient = srv.Client()
	return client
}

func testRequest() Request {
	return Request{
		Address:           common.HexToAddress("0x5c4518abFE8f7560C1b12e01FD550c3a05377910"),
		ContractName:      "contracts/LSRWAExpress.sol:LSRWAExpress",
		CompilerVersion:   "v0.8.30+commit.73712a01",
		StandardJSONInput: []byte(`{"language":"Solidity"}`),
		ConstructorArgs:   []byte{0xab, 0xcd},
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{ChainID: 1}); xerrors.CodeOf(err) != xerrors.CodeConfigInvalid {
		t.Fatalf("expected config error without api key, got %v", err)
	}
	if _, err := NewClient(Config{APIKey: "key"}); xerrors.CodeOf(err) != xerrors.CodeConfigInvalid {
		t.Fatalf("expected config error without chain id, got %v", err)
	}
}

func TestVerifyPollsUntilPass(t *testing.T) {
	explorer := &fakeExplorer{statuses: []string{"Pending in queue", "Pending in queue", "Pass - Verified"}}
	client := newTestClient(t, explorer)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := client.Verify(ctx, testRequest())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.GUID != "guid-123" || result.AlreadyVerified {
		t.Fatalf("unexpected result %+v", result)
	}

	explorer.mu.Lock()
	defer explorer.mu.Unlock()
	if explorer.polls != 3 {
		t.Fatalf("expected 3 polls, got %d", explorer.polls)
	}
	if explorer.submitted["codeformat"] != "solidity-standard-json-input" {
		t.Fatalf("unexpected code format %q", explorer.submitted["codeformat"])
	}
	if explorer.submitted["constructorArguements"] != "abcd" {
		t.Fatalf("unexpected constructor args %q", explorer.submitted["constructorArguements"])
	}
	if explorer.submitted["contractname"] != "contracts/LSRWAExpress.sol:LSRWAExpress" {
		t.Fatalf("unexpected contract name %q", explorer.submitted["contractname"])
	}
}

func TestVerifyAlreadyVerified(t *testing.T) {
	explorer := &fakeExplorer{verified: true}
	client := newTestClient(t, explorer)

	result, err := client.Verify(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !result.AlreadyVerified {
		t.Fatalf("expected already verified, got %+v", result)
	}
	if explorer.submitted != nil {
		t.Fatal("verified contracts must not be resubmitted")
	}

	_, already, err := client.Submit(context.Background(), testRequest())
	if err != nil || !already {
		t.Fatalf("submit on verified contract: already=%t err=%v", already, err)
	}
}

func TestVerifyFailure(t *testing.T) {
	explorer := &fakeExplorer{statuses: []string{"Fail - Unable to verify"}}
	client := newTestClient(t, explorer)

	_, err := client.Verify(context.Background(), testRequest())
	if xerrors.CodeOf(err) != xerrors.CodeVerificationFailed {
		t.Fatalf("expected verification failure, got %v", err)
	}
}

func TestVerifyTimeout(t *testing.T) {
	explorer := &fakeExplorer{statuses: []string{"Pending in queue"}}
	client := newTestClient(t, explorer)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Verify(ctx, testRequest())
	if code := xerrors.CodeOf(err); code != xerrors.CodeTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestHTTPError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	if _, err := client.IsVerified(context.Background(), common.Address{}); xerrors.CodeOf(err) != xerrors.CodeVerificationFailed {
		t.Fatalf("expected verification failure, got %v", err)
	}
}
