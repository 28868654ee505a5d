package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/walletcore/internal/ledger"
	"github.com/congo-pay/walletcore/internal/metrics"
)

// Case records a processor-side effect whose paired ledger commit failed. Replaying Posting
// (which always carries a reference) brings the ledger in line with the processor.
type Case struct {
	ID                 string         `json:"id"`
	OwnerID            string         `json:"owner_id"`
	Action             string         `json:"action"`
	Posting            ledger.Posting `json:"posting"`
	ProcessorReference string         `json:"processor_reference"`
	Error              string         `json:"error"`
	Attempts           int            `json:"attempts"`
	RaisedAt           time.Time      `json:"raised_at"`
}

// NewCase builds a case for a failed commit.
func NewCase(action string, posting ledger.Posting, processorReference string, cause error) Case {
	c := Case{
		ID:                 uuid.NewString(),
		OwnerID:            posting.OwnerID,
		Action:             action,
		Posting:            posting,
		ProcessorReference: processorReference,
		RaisedAt:           time.Now().UTC(),
	}
	if cause != nil {
		c.Error = cause.Error()
	}
	return c
}

// ReconciliationRequiredError reports that the processor moved money but the ledger did not.
type ReconciliationRequiredError struct {
	Case Case
	// Escalated is false when the sink itself failed and the case only reached the logs.
	Escalated bool
	Cause     error
}

func (e *ReconciliationRequiredError) Error() string {
	return fmt.Sprintf("reconciliation required for %s %s: %v", e.Case.Action, e.Case.Posting.Reference, e.Cause)
}

func (e *ReconciliationRequiredError) Unwrap() error {
	return e.Cause
}

// Sink takes escalated cases out of band.
type Sink interface {
	Name() string
	Escalate(ctx context.Context, c Case) error
}

// Escalator hands cases to a sink and never drops them silently.
type Escalator struct {
	sink    Sink
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewEscalator(sink Sink, m *metrics.Metrics, logger *slog.Logger) *Escalator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Escalator{sink: sink, metrics: m, logger: logger}
}

// Raise escalates c and returns the error to hand back to the caller. Escalation runs on a
// context detached from the caller's cancellation.
func (e *Escalator) Raise(ctx context.Context, c Case, cause error) *ReconciliationRequiredError {
	attrs := []any{
		slog.String("case_id", c.ID),
		slog.String("owner_id", c.OwnerID),
		slog.String("action", c.Action),
		slog.String("reference", c.Posting.Reference),
		slog.String("processor_reference", c.ProcessorReference),
		slog.String("amount", c.Posting.Amount.String()),
		slog.Any("error", cause),
	}
	e.logger.Error("reconciliation required", attrs...)

	rerr := &ReconciliationRequiredError{Case: c, Cause: cause}
	if e.sink == nil {
		return rerr
	}
	escalateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.sink.Escalate(escalateCtx, c); err != nil {
		e.metrics.ObserveReconciliation(e.sink.Name(), "error")
		e.logger.Error("reconciliation escalation failed", append(attrs, slog.String("sink", e.sink.Name()), slog.Any("sink_error", err))...)
		return rerr
	}
	e.metrics.ObserveReconciliation(e.sink.Name(), "escalated")
	rerr.Escalated = true
	return rerr
}
