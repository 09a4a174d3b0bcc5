package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidTransaction is returned when a transaction request fails validation.
var ErrInvalidTransaction = errors.New("invalid transaction")

// Transaction is a validated card transaction handed to the rule engine.
// Timestamp is always UTC. The engine never mutates a Transaction.
type Transaction struct {
	UserID    string    `json:"user_id"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	Country   string    `json:"country"`
	Merchant  string    `json:"merchant"`
	Timestamp time.Time `json:"timestamp"`
}

// TransactionRequest is the wire payload for a transaction evaluation.
// Timestamp is optional; naive timestamps (no zone) are read as UTC.
type TransactionRequest struct {
	UserID    string  `json:"user_id"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Country   string  `json:"country"`
	Merchant  string  `json:"merchant"`
	Timestamp string  `json:"timestamp,omitempty"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Validate checks the request against the field constraints of a Transaction.
func (r *TransactionRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidTransaction)
	}
	if r.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidTransaction)
	}
	if len(r.Currency) != 3 {
		return fmt.Errorf("%w: currency must be a 3-letter code", ErrInvalidTransaction)
	}
	if len(r.Country) != 2 {
		return fmt.Errorf("%w: country must be a 2-letter code", ErrInvalidTransaction)
	}
	if r.Timestamp != "" {
		if _, err := parseTimestamp(r.Timestamp); err != nil {
			return fmt.Errorf("%w: timestamp: %v", ErrInvalidTransaction, err)
		}
	}
	return nil
}

// ToTransaction converts a validated request into a Transaction.
// now is used when the request carries no timestamp.
func (r *TransactionRequest) ToTransaction(now time.Time) (Transaction, error) {
	if err := r.Validate(); err != nil {
		return Transaction{}, err
	}

	ts := now
	if r.Timestamp != "" {
		ts, _ = parseTimestamp(r.Timestamp)
	}

	return Transaction{
		UserID:    strings.TrimSpace(r.UserID),
		Amount:    r.Amount,
		Currency:  strings.ToUpper(r.Currency),
		Country:   strings.ToUpper(r.Country),
		Merchant:  r.Merchant,
		Timestamp: ts.UTC(),
	}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised format %q", s)
}

// ParseRequests decodes a JSON array of transaction requests, or a single
// request object, without validating them.
func ParseRequests(data []byte) ([]TransactionRequest, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var single TransactionRequest
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, err
		}
		return []TransactionRequest{single}, nil
	}

	var reqs []TransactionRequest
	if err := json.Unmarshal(trimmed, &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}
