package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

const defaultTimeout = 10 * time.Second

// Client dispatches actions to the card processor as form-encoded requests.
type Client struct {
	baseURL   string
	publicKey string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewClient constructs a processor client.
func NewClient(baseURL, publicKey string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		publicKey: publicKey,
		timeout:   timeout,
		logger:    logger,
	}
}

// Response is a decoded processor answer.
type Response struct {
	StatusCode int
	Body       json.RawMessage
	fields     map[string]any
}

// String returns the first non-empty value among keys, searching the top level and then the
// "data" object.
func (r Response) String(keys ...string) string {
	scopes := []map[string]any{r.fields}
	if data, ok := r.fields["data"].(map[string]any); ok {
		scopes = append(scopes, data)
	}
	for _, scope := range scopes {
		for _, k := range keys {
			switch v := scope[k].(type) {
			case string:
				if v != "" {
					return v
				}
			case json.Number:
				return v.String()
			case bool:
				return fmt.Sprint(v)
			}
		}
	}
	return ""
}

// Do sends one action. The request deadline is the shorter of the client timeout and ctx.
func (c *Client) Do(ctx context.Context, action Action, params map[string]string) (Response, error) {
	ep, ok := actions[action]
	if !ok {
		return Response{}, fmt.Errorf("%w: unknown action %q", ErrIntegrationFailure, action)
	}
	for _, key := range ep.required {
		if strings.TrimSpace(params[key]) == "" {
			return Response{}, fmt.Errorf("%w: %s requires %s", ErrIntegrationFailure, action, key)
		}
	}
	if err := ctx.Err(); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrIntegrationFailure, err)
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return Response{}, fmt.Errorf("%w: %v", ErrIntegrationFailure, context.DeadlineExceeded)
	}

	args := fiber.AcquireArgs()
	defer fiber.ReleaseArgs(args)
	for k, v := range params {
		args.Set(k, v)
	}
	if c.publicKey != "" {
		args.Set("public_key", c.publicKey)
	}

	url := c.baseURL + ep.path
	var agent *fiber.Agent
	if ep.method == http.MethodGet {
		agent = fiber.Get(url).QueryString(args.String())
	} else {
		agent = fiber.Post(url).Form(args)
	}
	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	agent.Timeout(timeout)

	started := time.Now()
	code, body, errs := agent.Bytes()
	logAttrs := []any{
		slog.String("action", string(action)),
		slog.Int("status", code),
		slog.Duration("elapsed", time.Since(started)),
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		c.logger.Warn("processor call failed", append(logAttrs, slog.Any("error", err))...)
		return Response{}, fmt.Errorf("%w: %s: %v", ErrIntegrationFailure, action, err)
	}
	if code < 200 || code >= 300 {
		c.logger.Warn("processor call rejected", logAttrs...)
		return Response{}, fmt.Errorf("%w: %s returned status %d", ErrIntegrationFailure, action, code)
	}
	if !json.Valid(body) {
		c.logger.Warn("processor returned non-JSON body", logAttrs...)
		return Response{}, fmt.Errorf("%w: %s returned a non-JSON body", ErrIntegrationFailure, action)
	}

	resp := Response{StatusCode: code, Body: append(json.RawMessage(nil), body...)}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&resp.fields); err != nil || resp.fields == nil {
		c.logger.Warn("processor returned a non-object body", logAttrs...)
		return Response{}, fmt.Errorf("%w: %s returned a non-object body", ErrIntegrationFailure, action)
	}

	if success, ok := resp.fields["success"].(bool); ok && !success {
		msg := resp.String("message", "error")
		c.logger.Warn("processor reported failure", append(logAttrs, slog.String("message", msg))...)
		return resp, fmt.Errorf("%w: %s: %s", ErrIntegrationFailure, action, msg)
	}
	c.logger.Debug("processor call completed", logAttrs...)
	return resp, nil
}

func (c *Client) CreateCustomer(ctx context.Context, customer Customer) (string, error) {
	resp, err := c.Do(ctx, ActionCreateCustomer, map[string]string{
		"first_name": customer.FirstName,
		"last_name":  customer.LastName,
		"email":      customer.Email,
		"phone":      customer.Phone,
	})
	if err != nil {
		return "", err
	}
	id := resp.String("customer_id", "customerId", "id")
	if id == "" {
		return "", fmt.Errorf("%w: create-customer returned no customer id", ErrIntegrationFailure)
	}
	return id, nil
}

func (c *Client) CreateCard(ctx context.Context, customerID, currency string) (IssuedCard, error) {
	resp, err := c.Do(ctx, ActionCreateCard, map[string]string{
		"customer_id": customerID,
		"currency":    currency,
	})
	if err != nil {
		return IssuedCard{}, err
	}
	card := IssuedCard{CardID: resp.String("card_id", "cardId", "id"), Status: resp.String("status", "card_status")}
	if card.CardID == "" {
		return IssuedCard{}, fmt.Errorf("%w: create-card returned no card id", ErrIntegrationFailure)
	}
	return card, nil
}

func (c *Client) FundCard(ctx context.Context, cardID string, amount decimal.Decimal, reference string) (Result, error) {
	return c.movement(ctx, ActionFundCard, cardID, amount, reference)
}

func (c *Client) WithdrawFromCard(ctx context.Context, cardID string, amount decimal.Decimal, reference string) (Result, error) {
	return c.movement(ctx, ActionWithdrawFromCard, cardID, amount, reference)
}

func (c *Client) WithdrawStatus(ctx context.Context, cardID, reference string) (Result, error) {
	resp, err := c.Do(ctx, ActionWithdrawStatus, map[string]string{"card_id": cardID, "reference": reference})
	if err != nil {
		return Result{}, err
	}
	return toResult(resp, reference), nil
}

func (c *Client) movement(ctx context.Context, action Action, cardID string, amount decimal.Decimal, reference string) (Result, error) {
	resp, err := c.Do(ctx, action, map[string]string{
		"card_id":   cardID,
		"amount":    amount.StringFixed(2),
		"reference": reference,
	})
	if err != nil {
		return Result{}, err
	}
	result := toResult(resp, reference)
	if result.Status == OutcomeFailed {
		return result, fmt.Errorf("%w: %s was declined", ErrIntegrationFailure, action)
	}
	return result, nil
}

func toResult(resp Response, reference string) Result {
	ref := resp.String("reference", "transaction_reference", "transaction_id")
	if ref == "" {
		ref = reference
	}
	return Result{Reference: ref, Status: NormalizeOutcome(resp.String("transaction_status", "status"))}
}

func (c *Client) Freeze(ctx context.Context, cardID string) error {
	_, err := c.Do(ctx, ActionFreezeCard, map[string]string{"card_id": cardID})
	return err
}

func (c *Client) Unfreeze(ctx context.Context, cardID string) error {
	_, err := c.Do(ctx, ActionUnfreezeCard, map[string]string{"card_id": cardID})
	return err
}

func (c *Client) Block(ctx context.Context, cardID string) error {
	_, err := c.Do(ctx, ActionBlockCard, map[string]string{"card_id": cardID})
	return err
}

func (c *Client) CardDetail(ctx context.Context, cardID string) (json.RawMessage, error) {
	resp, err := c.Do(ctx, ActionFetchCardDetail, map[string]string{"card_id": cardID})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) CardTransactions(ctx context.Context, cardID string) (json.RawMessage, error) {
	resp, err := c.Do(ctx, ActionCardTransactions, map[string]string{"card_id": cardID})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
