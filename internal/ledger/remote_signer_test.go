package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signerIntent() TxIntent {
	return TxIntent{
		ID:     "intent-1",
		AppID:  745991234,
		Method: MethodTriggerRebalance,
		Args:   []uint64{147, 219},
		Sender: "AGENTADDR",
	}
}

func TestRemoteSignerSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/sign", r.URL.Path)
		var intent TxIntent
		require.NoError(t, json.NewDecoder(r.Body).Decode(&intent))
		assert.Equal(t, MethodTriggerRebalance, intent.Method)
		json.NewEncoder(w).Encode(map[string]string{"tx_id": "TXSIGNED1"})
	}))
	defer srv.Close()

	txID, err := NewRemoteSigner(srv.URL).SignAndSubmit(context.Background(), signerIntent())
	require.NoError(t, err)
	assert.Equal(t, "TXSIGNED1", txID)
}

func TestRemoteSignerRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"message": "declined by holder"})
	}))
	defer srv.Close()

	_, err := NewRemoteSigner(srv.URL).SignAndSubmit(context.Background(), signerIntent())
	require.ErrorIs(t, err, ErrUserRejected)
	assert.Contains(t, err.Error(), "declined by holder")
}

func TestRemoteSignerSigningFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"message": "unknown sender key"})
	}))
	defer srv.Close()

	_, err := NewRemoteSigner(srv.URL).SignAndSubmit(context.Background(), signerIntent())
	assert.ErrorIs(t, err, ErrSigningFailed)
}

func TestRemoteSignerSubmissionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewRemoteSigner(srv.URL).SignAndSubmit(context.Background(), signerIntent())
	assert.ErrorIs(t, err, ErrSubmissionFailed)
}

func TestRemoteSignerUnreachable(t *testing.T) {
	_, err := NewRemoteSigner("http://127.0.0.1:1").SignAndSubmit(context.Background(), signerIntent())
	assert.ErrorIs(t, err, ErrSubmissionFailed)
}

func TestRemoteSignerEmptyTxID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	_, err := NewRemoteSigner(srv.URL).SignAndSubmit(context.Background(), signerIntent())
	assert.ErrorIs(t, err, ErrSubmissionFailed)
}
