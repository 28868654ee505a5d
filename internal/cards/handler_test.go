package cards

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

	"github.com/congo-pay/walletcore/internal/clock"
	"github.com/congo-pay/walletcore/internal/logging"
	"github.com/congo-pay/walletcore/internal/middleware"
	"github.com/congo-pay/walletcore/internal/processor"
)

const handlerSecret = "cards-test"

func newCardApp() *fiber.App {
	svc := NewService(NewInMemory(clock.NewFixed(noon)), processor.NewStatic(), logging.Discard())
	h := NewHandler(svc, nil)
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
	g := app.Group("/cards", middleware.JWTAuth(handlerSecret))
	g.Post("/", h.Issue)
	g.Get("/", h.List)
	g.Get("/:cardId", h.Get)
	g.Post("/:cardId/activate", h.Activate)
	g.Post("/:cardId/freeze", h.Freeze)
	g.Post("/:cardId/block", h.Block)
	g.Post("/:cardId/unfreeze", h.Unfreeze)
	g.Get("/:cardId/detail", h.Detail)
	return app
}

func doJSON(t *testing.T, app *fiber.App, owner, method, path, body string) (int, map[string]any) {
	t.Helper()
	token, err := middleware.IssueToken(handlerSecret, owner, time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
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

const issueBody = `{"first_name":"Ada","last_name":"Obi","email":"ada@example.com","phone":"+2348000000000","currency":"usd","spending_limit":"500"}`

func TestHandlerCardLifecycle(t *testing.T) {
	app := newCardApp()

	status, card := doJSON(t, app, "owner-1", fiber.MethodPost, "/cards", issueBody)
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "pending", card["status"])
	assert.Equal(t, "500.00", card["spending_limit"])
	id := card["id"].(string)

	status, card = doJSON(t, app, "owner-1", fiber.MethodPost, "/cards/"+id+"/activate", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "active", card["status"])

	status, _ = doJSON(t, app, "owner-1", fiber.MethodPost, "/cards/"+id+"/block", "")
	require.Equal(t, fiber.StatusOK, status)

	status, body := doJSON(t, app, "owner-1", fiber.MethodPost, "/cards/"+id+"/unfreeze", "")
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Contains(t, body["error"], "illegal card status transition")

	status, _ = doJSON(t, app, "owner-2", fiber.MethodGet, "/cards/"+id, "")
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body = doJSON(t, app, "owner-1", fiber.MethodGet, "/cards", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["cards"], 1)
}

func TestHandlerIssueValidation(t *testing.T) {
	app := newCardApp()

	status, body := doJSON(t, app, "owner-1", fiber.MethodPost, "/cards", `{"first_name":"Ada","email":"nope","currency":"dollars","spending_limit":"-1"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	details := body["details"].(map[string]any)
	for _, field := range []string{"last_name", "email", "phone", "currency", "spending_limit"} {
		assert.Contains(t, details, field)
	}
}

func TestHandlerDetailProxiesProcessor(t *testing.T) {
	app := newCardApp()
	_, card := doJSON(t, app, "owner-1", fiber.MethodPost, "/cards", issueBody)

	status, body := doJSON(t, app, "owner-1", fiber.MethodGet, "/cards/"+card["id"].(string)+"/detail", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.NotEmpty(t, body)
}
