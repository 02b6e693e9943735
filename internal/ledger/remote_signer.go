package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/Div1912/Ageis/internal/logger"
)

// RemoteSigner submits intents to an external signing daemon over HTTP. The
// daemon holds the keys; this process never sees them. One request per
// intent, no retry: a rejected or failed transaction is surfaced as-is.
type RemoteSigner struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewRemoteSigner points at the daemon's base URL.
func NewRemoteSigner(baseURL string) *RemoteSigner {
	return &RemoteSigner{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     logger.GetForComponent("remote_signer"),
	}
}

type signResponse struct {
	TxID    string `json:"tx_id"`
	Message string `json:"message"`
}

// SignAndSubmit implements TransactionSigner. Status mapping: 401/403 means
// the holder declined, 4xx otherwise means the intent could not be signed,
// anything else means submission to the network failed.
func (s *RemoteSigner) SignAndSubmit(ctx context.Context, intent TxIntent) (string, error) {
	body, err := json.Marshal(intent)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/sign", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	defer resp.Body.Close()

	var decoded signResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil && resp.StatusCode == http.StatusOK {
		return "", fmt.Errorf("%w: malformed signer response: %v", ErrSubmissionFailed, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if decoded.TxID == "" {
			return "", fmt.Errorf("%w: signer returned no transaction id", ErrSubmissionFailed)
		}
		return decoded.TxID, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		s.log.Warn().Str("intent_id", intent.ID).Msg("Signer declined the transaction")
		return "", fmt.Errorf("%w: %s", ErrUserRejected, decoded.Message)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", fmt.Errorf("%w: signer returned %d: %s", ErrSigningFailed, resp.StatusCode, decoded.Message)
	default:
		return "", fmt.Errorf("%w: signer returned %d: %s", ErrSubmissionFailed, resp.StatusCode, decoded.Message)
	}
}
