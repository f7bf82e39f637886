package flows

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type CheckoutPurchaser struct {
	ID    string
	Name  string
	Email string
}

// CheckoutInvoice is everything the renderer needs to produce the artifact.
// Order lists item identifiers in the order their secrets were issued.
type CheckoutInvoice struct {
	InvoiceID string
	Purchaser CheckoutPurchaser
	Lines     []CheckoutLine
	Totals    Totals
	Secrets   map[string]string
	Order     []string
	IssuedAt  time.Time
}

type CheckoutResult struct {
	ArtifactRef string
	InvoiceID   string
	Secrets     map[string]string
	Order       []string
	Totals      Totals
	IssuedAt    time.Time
}

type CheckoutMetrics struct {
	CheckoutSuccess int
	CheckoutFailure int
	EmptyCart       int
	UnknownAccount  int
	RenderFailed    int
	OTPIssued       int
}

type CheckoutEvents struct {
	Checkout  string
	OTPIssued string
}

type CheckoutErrors struct {
	EngineNotReady        error
	EmptyCart             error
	InvalidCart           error
	UnknownAccount        error
	AccountLookupFailed   error
	CredentialUnavailable error
	RenderFailed          error
	PurchaseRecordFailed  error
}

type CheckoutDeps struct {
	TaxRate decimal.Decimal
	OTPTTL  time.Duration

	Now          func() time.Time
	NewInvoiceID func() string

	LookupAccount  func(context.Context, string) (CheckoutPurchaser, bool, error)
	IssueOTP       func(context.Context, string, string, time.Duration) (string, error)
	RenderInvoice  func(context.Context, CheckoutInvoice) (string, error)
	AppendPurchase func(context.Context, string, string, []CheckoutLine) error

	MetricInc      func(int)
	ObserveLatency func(time.Duration)
	EmitAudit      func(context.Context, string, bool, string, string, error, func() map[string]string)

	Metrics CheckoutMetrics
	Events  CheckoutEvents
	Errors  CheckoutErrors
}

// RunCheckout validates the cart, issues one OTP per distinct item, renders
// the invoice and records the purchase. Issuance is not rolled back when a
// later step fails.
func RunCheckout(ctx context.Context, account string, lines []CheckoutLine, deps CheckoutDeps) (CheckoutResult, error) {
	normalizeCheckoutDeps(&deps)

	if deps.LookupAccount == nil || deps.IssueOTP == nil || deps.RenderInvoice == nil {
		return CheckoutResult{}, deps.Errors.EngineNotReady
	}

	start := deps.Now()
	fail := func(metric int, err error, reason string) (CheckoutResult, error) {
		if metric >= 0 {
			deps.MetricInc(metric)
		}
		deps.MetricInc(deps.Metrics.CheckoutFailure)
		deps.EmitAudit(ctx, deps.Events.Checkout, false, account, "", err, func() map[string]string {
			return map[string]string{
				"reason": reason,
			}
		})
		return CheckoutResult{}, err
	}

	if len(lines) == 0 {
		return fail(deps.Metrics.EmptyCart, deps.Errors.EmptyCart, "empty_cart")
	}
	if idx, ok := validateCheckoutLines(lines); !ok {
		return fail(-1, fmt.Errorf("%w: line %d", deps.Errors.InvalidCart, idx), "invalid_line_"+strconv.Itoa(idx))
	}

	purchaser, found, err := deps.LookupAccount(ctx, account)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return CheckoutResult{}, err
		}
		return fail(-1, fmt.Errorf("%w: %v", deps.Errors.AccountLookupFailed, err), "lookup_failed")
	}
	if !found {
		return fail(deps.Metrics.UnknownAccount, deps.Errors.UnknownAccount, "unknown_account")
	}
	if purchaser.ID == "" {
		purchaser.ID = account
	}

	order := distinctItems(lines)
	secrets := make(map[string]string, len(order))
	for _, item := range order {
		secret, err := deps.IssueOTP(ctx, account, item, deps.OTPTTL)
		if err != nil {
			return fail(-1, fmt.Errorf("%w: %v", deps.Errors.CredentialUnavailable, err), "issue_failed")
		}
		secrets[item] = secret
		deps.MetricInc(deps.Metrics.OTPIssued)
		deps.EmitAudit(ctx, deps.Events.OTPIssued, true, account, item, nil, nil)
	}

	issuedAt := deps.Now()
	invoice := CheckoutInvoice{
		InvoiceID: deps.NewInvoiceID(),
		Purchaser: purchaser,
		Lines:     append([]CheckoutLine(nil), lines...),
		Totals:    ComputeTotals(lines, deps.TaxRate),
		Secrets:   secrets,
		Order:     order,
		IssuedAt:  issuedAt,
	}

	ref, err := deps.RenderInvoice(ctx, invoice)
	if err != nil {
		return fail(deps.Metrics.RenderFailed, fmt.Errorf("%w: %v", deps.Errors.RenderFailed, err), "render_failed")
	}

	if deps.AppendPurchase != nil {
		if err := deps.AppendPurchase(ctx, account, ref, invoice.Lines); err != nil {
			return fail(-1, fmt.Errorf("%w: %v", deps.Errors.PurchaseRecordFailed, err), "ledger_failed")
		}
	}

	deps.MetricInc(deps.Metrics.CheckoutSuccess)
	deps.ObserveLatency(deps.Now().Sub(start))
	deps.EmitAudit(ctx, deps.Events.Checkout, true, account, "", nil, func() map[string]string {
		return map[string]string{
			"invoice_id": invoice.InvoiceID,
			"items":      strconv.Itoa(len(order)),
			"total":      invoice.Totals.Total.StringFixed(2),
		}
	})

	return CheckoutResult{
		ArtifactRef: ref,
		InvoiceID:   invoice.InvoiceID,
		Secrets:     secrets,
		Order:       order,
		Totals:      invoice.Totals,
		IssuedAt:    issuedAt,
	}, nil
}

func validateCheckoutLines(lines []CheckoutLine) (int, bool) {
	for i, line := range lines {
		if strings.TrimSpace(line.Item) == "" || line.Quantity < 1 || line.UnitPrice.IsNegative() {
			return i, false
		}
	}
	return 0, true
}

func distinctItems(lines []CheckoutLine) []string {
	seen := make(map[string]struct{}, len(lines))
	order := make([]string, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.Item]; ok {
			continue
		}
		seen[line.Item] = struct{}{}
		order = append(order, line.Item)
	}
	return order
}

func normalizeCheckoutDeps(deps *CheckoutDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewInvoiceID == nil {
		deps.NewInvoiceID = func() string {
			return strconv.FormatInt(deps.Now().UnixMilli(), 10)
		}
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.ObserveLatency == nil {
		deps.ObserveLatency = func(time.Duration) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
}
