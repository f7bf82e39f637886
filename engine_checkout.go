package goDeliver

import (
	"context"
	"time"

	internalflows "github.com/MrEthical07/goDeliver/internal/flows"
	"github.com/MrEthical07/goDeliver/internal/stores"
	"github.com/google/uuid"
)

// Checkout describes the checkout operation and its observable behavior.
//
// Checkout issues one OTP per distinct item in lines, renders the invoice
// carrying every secret and appends the purchase to the ledger. It may return
// ErrEmptyCart, ErrInvalidCart, ErrUnknownAccount, ErrAccountLookupFailed,
// ErrCredentialUnavailable, ErrRenderFailed or ErrPurchaseRecordFailed. OTPs
// issued before a failure stay valid.
func (e *Engine) Checkout(ctx context.Context, accountID string, lines []LineItem) (*CheckoutResult, error) {
	flowLines := make([]internalflows.CheckoutLine, len(lines))
	for i, line := range lines {
		flowLines[i] = internalflows.CheckoutLine{
			Item:      line.Item,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
		}
	}

	result, err := internalflows.RunCheckout(ctx, accountID, flowLines, e.checkoutFlowDeps())
	if err != nil {
		return nil, err
	}

	return &CheckoutResult{
		ArtifactRef: result.ArtifactRef,
		InvoiceID:   result.InvoiceID,
		Secrets:     result.Secrets,
		Totals:      totalsFromFlow(result.Totals),
		IssuedAt:    result.IssuedAt,
	}, nil
}

func (e *Engine) checkoutFlowDeps() internalflows.CheckoutDeps {
	var cfg Config
	if e != nil {
		cfg = e.config
	}

	deps := internalflows.CheckoutDeps{
		TaxRate:      cfg.Pricing.TaxRate,
		OTPTTL:       cfg.Credentials.OTPTTL,
		Now:          e.now,
		NewInvoiceID: func() string { return uuid.NewString() },
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		ObserveLatency: func(d time.Duration) {
			if e != nil {
				e.metrics.Observe(MetricCheckoutLatency, d)
			}
		},
		EmitAudit: e.emitAudit,
		Metrics: internalflows.CheckoutMetrics{
			CheckoutSuccess: int(MetricCheckoutSuccess),
			CheckoutFailure: int(MetricCheckoutFailure),
			EmptyCart:       int(MetricCheckoutEmptyCart),
			UnknownAccount:  int(MetricCheckoutUnknownAccount),
			RenderFailed:    int(MetricCheckoutRenderFailed),
			OTPIssued:       int(MetricOTPIssued),
		},
		Events: internalflows.CheckoutEvents{
			Checkout:  auditEventCheckout,
			OTPIssued: auditEventOTPIssued,
		},
		Errors: internalflows.CheckoutErrors{
			EngineNotReady:        ErrEngineNotReady,
			EmptyCart:             ErrEmptyCart,
			InvalidCart:           ErrInvalidCart,
			UnknownAccount:        ErrUnknownAccount,
			AccountLookupFailed:   ErrAccountLookupFailed,
			CredentialUnavailable: ErrCredentialUnavailable,
			RenderFailed:          ErrRenderFailed,
			PurchaseRecordFailed:  ErrPurchaseRecordFailed,
		},
	}

	if e == nil {
		return deps
	}

	if e.accounts != nil {
		deps.LookupAccount = func(ctx context.Context, id string) (internalflows.CheckoutPurchaser, bool, error) {
			p, found, err := e.accounts.LookupAccount(ctx, id)
			if err != nil || !found {
				return internalflows.CheckoutPurchaser{}, found, err
			}
			return internalflows.CheckoutPurchaser{ID: p.ID, Name: p.Name, Email: p.Email}, true, nil
		}
	}
	if e.store != nil {
		deps.IssueOTP = func(ctx context.Context, account, item string, ttl time.Duration) (string, error) {
			return e.store.IssueOTP(ctx, stores.OTPKey{Account: account, Item: item}, ttl)
		}
	}
	if e.renderer != nil {
		deps.RenderInvoice = func(ctx context.Context, inv internalflows.CheckoutInvoice) (string, error) {
			return e.renderer.RenderInvoice(ctx, e.invoiceInput(inv))
		}
	}
	if e.ledger != nil {
		deps.AppendPurchase = func(ctx context.Context, account, ref string, lines []internalflows.CheckoutLine) error {
			now := e.now()
			entries := make([]PurchaseEntry, len(lines))
			for i, line := range lines {
				entries[i] = PurchaseEntry{
					Item:        line.Item,
					UnitPrice:   line.UnitPrice,
					Quantity:    line.Quantity,
					InvoiceRef:  ref,
					PurchasedAt: now,
				}
			}
			return e.ledger.AppendPurchase(ctx, account, entries)
		}
	}

	return deps
}

func (e *Engine) invoiceInput(inv internalflows.CheckoutInvoice) InvoiceInput {
	lines := make([]LineItem, len(inv.Lines))
	for i, line := range inv.Lines {
		lines[i] = LineItem{Item: line.Item, UnitPrice: line.UnitPrice, Quantity: line.Quantity}
	}
	secrets := make([]ItemSecret, 0, len(inv.Order))
	for _, item := range inv.Order {
		secrets = append(secrets, ItemSecret{Item: item, Secret: inv.Secrets[item]})
	}

	return InvoiceInput{
		InvoiceID: inv.InvoiceID,
		Purchaser: Purchaser{
			ID:    inv.Purchaser.ID,
			Name:  inv.Purchaser.Name,
			Email: inv.Purchaser.Email,
		},
		Lines:    lines,
		Totals:   totalsFromFlow(inv.Totals),
		Secrets:  secrets,
		IssuedAt: inv.IssuedAt,
		TaxLabel: e.config.Pricing.TaxLabel,
		Currency: e.config.Pricing.Currency,
	}
}

func totalsFromFlow(t internalflows.Totals) Totals {
	return Totals{Subtotal: t.Subtotal, Tax: t.Tax, Total: t.Total}
}
