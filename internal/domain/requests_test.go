package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestAmount_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantValue    int64
		wantCurrency string
		wantErr      bool
	}{
		{
			name:      "bare integer",
			input:     `2500`,
			wantValue: 2500,
		},
		{
			name:      "quoted integer",
			input:     `"2500"`,
			wantValue: 2500,
		},
		{
			name:         "object with value and currency",
			input:        `{"value": 2500, "currency": "UGX"}`,
			wantValue:    2500,
			wantCurrency: "UGX",
		},
		{
			name:      "object without currency",
			input:     `{"value": 100}`,
			wantValue: 100,
		},
		{
			name:    "fractional minor units rejected",
			input:   `25.5`,
			wantErr: true,
		},
		{
			name:    "non-numeric rejected",
			input:   `"plenty"`,
			wantErr: true,
		},
		{
			name:    "null rejected",
			input:   `null`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var amount Amount
			err := json.Unmarshal([]byte(tt.input), &amount)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAmount) {
					t.Fatalf("expected ErrInvalidAmount, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if amount.Value != tt.wantValue {
				t.Fatalf("expected value %d, got %d", tt.wantValue, amount.Value)
			}
			if amount.Currency != tt.wantCurrency {
				t.Fatalf("expected currency %q, got %q", tt.wantCurrency, amount.Currency)
			}
		})
	}
}

func TestAmount_ValidateRejectsNonPositive(t *testing.T) {
	if err := (Amount{Value: 0}).Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero, got %v", err)
	}
	if err := (Amount{Value: -5}).Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative, got %v", err)
	}
	if err := (Amount{Value: 1}).Validate(); err != nil {
		t.Fatalf("expected positive amount to pass, got %v", err)
	}
}

func TestDebitRequest_DecodesBothAmountEncodings(t *testing.T) {
	var req DebitRequest
	if err := json.Unmarshal([]byte(`{"reference_id":"R1","phase":"lock","amount":2500,"connection_token_hash":"h"}`), &req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Amount.Value != 2500 {
		t.Fatalf("expected amount 2500, got %d", req.Amount.Value)
	}

	if err := json.Unmarshal([]byte(`{"reference_id":"R1","amount":{"value":900,"currency":"KES"}}`), &req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Amount.Value != 900 || req.Amount.Currency != "KES" {
		t.Fatalf("unexpected amount: %+v", req.Amount)
	}
}
