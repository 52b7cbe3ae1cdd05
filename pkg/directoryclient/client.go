/**
 * @description
 * This package provides a client for the convertor protocol directory API. The
 * directory is where participating banks register their identity and current
 * public verification key; the counterparty fetches keys from it to validate
 * bank signatures on proofs.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package directoryclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Client is a client for the protocol directory API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new protocol directory client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// RegistrationRequest is the payload sent to register or re-register this bank.
type RegistrationRequest struct {
	BankCode     string `json:"bank_code"`
	BankName     string `json:"bank_name"`
	PublicKeyPEM string `json:"public_key_pem"`
}

// RegistrationStatus describes this bank's standing in the directory.
type RegistrationStatus struct {
	BankCode     string    `json:"bank_code"`
	Registered   bool      `json:"registered"`
	KeyUpdatedAt time.Time `json:"key_updated_at"`
}

// ErrorResponse represents an error from the directory API.
type ErrorResponse struct {
	ErrorMessage string `json:"error"`
	Status       int    `json:"-"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("directory api error (status %d): %s", e.Status, e.ErrorMessage)
}

// RegisterBank registers (or re-registers) this bank's identity and public key.
// Called at startup and after every admin key rotation.
func (c *Client) RegisterBank(ctx context.Context, bankCode, bankName, publicKeyPEM string) error {
	body, err := json.Marshal(RegistrationRequest{
		BankCode:     bankCode,
		BankName:     bankName,
		PublicKeyPEM: publicKeyPEM,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal registration request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/api/v1/banks/register", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("x-directory-key", c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute registration request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp, "register_bank")
	}
	return nil
}

// RegistrationStatus fetches this bank's registration record from the directory.
func (c *Client) RegistrationStatus(ctx context.Context, bankCode string) (*RegistrationStatus, error) {
	url := c.BaseURL + "/api/v1/banks/" + bankCode + "/registration"

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("x-directory-key", c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute status request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(resp, "registration_status")
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read status response: %w", err)
	}
	var status RegistrationStatus
	if err := json.Unmarshal(bodyBytes, &status); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}
	return &status, nil
}

func decodeError(resp *http.Response, op string) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read error response (status %d)", resp.StatusCode)
	}
	var errResp ErrorResponse
	if err := json.Unmarshal(bodyBytes, &errResp); err != nil || errResp.ErrorMessage == "" {
		log.Printf("level=warn component=directory_client op=%s status=%d msg=\"non-2xx response (unparsable error body)\"", op, resp.StatusCode)
		return fmt.Errorf("directory request failed (status %d)", resp.StatusCode)
	}
	errResp.Status = resp.StatusCode
	log.Printf("level=warn component=directory_client op=%s status=%d error=%q", op, resp.StatusCode, errResp.ErrorMessage)
	return &errResp
}
