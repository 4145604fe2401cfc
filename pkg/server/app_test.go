package server

import (
	"encoding/json"
	"testing"
)

func TestBalanceFromAuthorize(t *testing.T) {
	raw := json.RawMessage(`{"authorize":{"balance":1042.37,"currency":"USD","loginid":"CR123"}}`)
	got, ok := balanceFromAuthorize(raw)
	if !ok {
		t.Fatal("expected balance to be extracted")
	}
	if got != 1042.37 {
		t.Fatalf("balance = %v, want 1042.37", got)
	}
}

func TestBalanceFromAuthorizeRejectsUnusable(t *testing.T) {
	cases := []string{
		`{}`,
		`{"authorize":{}}`,
		`{"authorize":{"balance":0}}`,
		`{"authorize":{"balance":-5}}`,
		`not json`,
	}
	for _, raw := range cases {
		if _, ok := balanceFromAuthorize(json.RawMessage(raw)); ok {
			t.Fatalf("extracted a balance from %q", raw)
		}
	}
}
