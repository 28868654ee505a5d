package processor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/walletcore/internal/logging"
)

type capturedRequest struct {
	method string
	path   string
	form   map[string]string
}

func newProcessorServer(t *testing.T, status int, body string) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var captured []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		form := make(map[string]string)
		for k := range r.Form {
			form[k] = r.Form.Get(k)
		}
		mu.Lock()
		captured = append(captured, capturedRequest{method: r.Method, path: r.URL.Path, form: form})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func TestClientFundCardPostsForm(t *testing.T) {
	srv, captured := newProcessorServer(t, http.StatusOK, `{"status":"success","data":{"reference":"prc-1"}}`)
	client := NewClient(srv.URL, "pk_test", time.Second, logging.Discard())

	result, err := client.FundCard(context.Background(), "crd_1", decimal.RequireFromString("25.5"), "ref-1")
	require.NoError(t, err)
	assert.Equal(t, "prc-1", result.Reference)
	assert.Equal(t, OutcomeCompleted, result.Status)

	require.Len(t, *captured, 1)
	req := (*captured)[0]
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/cards/fund", req.path)
	assert.Equal(t, "crd_1", req.form["card_id"])
	assert.Equal(t, "25.50", req.form["amount"])
	assert.Equal(t, "pk_test", req.form["public_key"])
}

func TestClientGetActionUsesQuery(t *testing.T) {
	srv, captured := newProcessorServer(t, http.StatusOK, `{"transaction_status":"pending"}`)
	client := NewClient(srv.URL, "", time.Second, logging.Discard())

	result, err := client.WithdrawStatus(context.Background(), "crd_1", "wd-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, result.Status)
	assert.Equal(t, "wd-1", result.Reference)
	require.Len(t, *captured, 1)
	assert.Equal(t, http.MethodGet, (*captured)[0].method)
	assert.Equal(t, "wd-1", (*captured)[0].form["reference"])
}

func TestClientRejectsNonJSON(t *testing.T) {
	for name, body := range map[string]string{
		"html":   `<html>gateway error</html>`,
		"string": `"ok"`,
		"array":  `[1,2]`,
		"null":   `null`,
	} {
		t.Run(name, func(t *testing.T) {
			srv, _ := newProcessorServer(t, http.StatusOK, body)
			client := NewClient(srv.URL, "", time.Second, logging.Discard())

			_, err := client.CardDetail(context.Background(), "crd_1")
			require.ErrorIs(t, err, ErrIntegrationFailure)

			_, err = client.FundCard(context.Background(), "crd_1", decimal.NewFromInt(10), "ref")
			require.ErrorIs(t, err, ErrIntegrationFailure)
		})
	}
}

func TestClientRejectsNon2xx(t *testing.T) {
	srv, _ := newProcessorServer(t, http.StatusBadGateway, `{"message":"down"}`)
	client := NewClient(srv.URL, "", time.Second, logging.Discard())

	require.ErrorIs(t, client.Freeze(context.Background(), "crd_1"), ErrIntegrationFailure)
}

func TestClientReportedFailure(t *testing.T) {
	srv, _ := newProcessorServer(t, http.StatusOK, `{"success":false,"message":"insufficient card balance"}`)
	client := NewClient(srv.URL, "", time.Second, logging.Discard())

	_, err := client.WithdrawFromCard(context.Background(), "crd_1", decimal.NewFromInt(10), "wd-2")
	require.ErrorIs(t, err, ErrIntegrationFailure)
	assert.Contains(t, err.Error(), "insufficient card balance")
}

func TestClientValidatesActionAndParams(t *testing.T) {
	srv, captured := newProcessorServer(t, http.StatusOK, `{}`)
	client := NewClient(srv.URL, "", time.Second, logging.Discard())

	_, err := client.Do(context.Background(), Action("teleport"), nil)
	require.ErrorIs(t, err, ErrIntegrationFailure)

	_, err = client.Do(context.Background(), ActionFundCard, map[string]string{"card_id": "crd_1"})
	require.ErrorIs(t, err, ErrIntegrationFailure)
	assert.Empty(t, *captured)
}

func TestClientHonoursCancelledContext(t *testing.T) {
	srv, captured := newProcessorServer(t, http.StatusOK, `{}`)
	client := NewClient(srv.URL, "", time.Second, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, client.Block(ctx, "crd_1"), ErrIntegrationFailure)
	assert.Empty(t, *captured)
}

func TestNormalizeOutcome(t *testing.T) {
	assert.Equal(t, OutcomeCompleted, NormalizeOutcome("SUCCESS"))
	assert.Equal(t, OutcomeCompleted, NormalizeOutcome(""))
	assert.Equal(t, OutcomePending, NormalizeOutcome("processing"))
	assert.Equal(t, OutcomeFailed, NormalizeOutcome("declined"))
}

func TestStaticScriptedFailure(t *testing.T) {
	s := NewStatic()
	s.Fail(ActionFundCard, assert.AnError)

	_, err := s.FundCard(context.Background(), "crd_1", decimal.NewFromInt(1), "r")
	require.ErrorIs(t, err, ErrIntegrationFailure)

	s.Recover(ActionFundCard)
	_, err = s.FundCard(context.Background(), "crd_1", decimal.NewFromInt(1), "r")
	require.NoError(t, err)
	assert.Equal(t, []Action{ActionFundCard, ActionFundCard}, s.Calls())
}
