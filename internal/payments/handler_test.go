package payments

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/walletcore/internal/middleware"
)

const secret = "payments-test"

func newApp(t *testing.T, f fixture) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
	h := NewHandler(f.svc, nil)
	api := app.Group("/payments", middleware.JWTAuth(secret))
	api.Post("/send", h.Send)
	api.Post("/bill", h.PayBill)
	return app
}

func call(t *testing.T, app *fiber.App, owner, path, body string) (int, map[string]any) {
	t.Helper()
	token, err := middleware.IssueToken(secret, owner, time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func TestHandlerSend(t *testing.T) {
	f := newFixture(t, map[string]int64{"alice": 1_000, "bob": 0})
	app := newApp(t, f)

	status, body := call(t, app, "alice", "/payments/send", `{"amount":"250.25","counterparty":"bob","reference":"r-1"}`)
	assert.Equal(t, fiber.StatusCreated, status)
	txs := body["transactions"].([]any)
	require.Len(t, txs, 2)
	assert.Equal(t, "-250.25", txs[0].(map[string]any)["amount"])
	assert.True(t, f.balance(t, "bob").Equal(amount("250.25")))

	status, body = call(t, app, "alice", "/payments/send", `{"amount":"250.25","counterparty":"bob","reference":"r-1"}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["duplicate"])
	assert.True(t, f.balance(t, "alice").Equal(amount("749.75")))
}

func TestHandlerValidation(t *testing.T) {
	f := newFixture(t, map[string]int64{"alice": 100})
	app := newApp(t, f)

	status, body := call(t, app, "alice", "/payments/send", `{"amount":"10.001"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "validation failed", body["error"])
	details := body["details"].(map[string]any)
	assert.Contains(t, details, "amount")
	assert.Contains(t, details, "counterparty")

	status, _ = call(t, app, "alice", "/payments/bill", `not json`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestHandlerInsufficientBalance(t *testing.T) {
	f := newFixture(t, map[string]int64{"alice": 100})
	app := newApp(t, f)

	status, body := call(t, app, "alice", "/payments/bill", `{"amount":"150","counterparty":"power-co"}`)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "insufficient balance", body["error"])
}
