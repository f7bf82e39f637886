package goDeliver

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Purchaser is the account a checkout is billed to.
type Purchaser struct {
	ID    string
	Name  string
	Email string
}

// LineItem is one cart line. Item identifies the purchasable file.
type LineItem struct {
	Item      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Amount returns UnitPrice x Quantity, unrounded.
func (l LineItem) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Totals holds the monetary summary of a checkout, each field rounded half-up
// to two places.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// ItemSecret pairs an item with the OTP issued for it.
type ItemSecret struct {
	Item   string
	Secret string
}

// InvoiceInput is handed to an [InvoiceRenderer]. Secrets are listed in the
// order the items first appeared in the cart.
type InvoiceInput struct {
	InvoiceID string
	Purchaser Purchaser
	Lines     []LineItem
	Totals    Totals
	Secrets   []ItemSecret
	IssuedAt  time.Time
	TaxLabel  string
	Currency  string
}

// CheckoutResult is returned by [Engine.Checkout].
//
// Secrets maps every distinct purchased item to its OTP. ArtifactRef names the
// rendered invoice and can be passed back to the renderer to retrieve it.
type CheckoutResult struct {
	ArtifactRef string
	InvoiceID   string
	Secrets     map[string]string
	Totals      Totals
	IssuedAt    time.Time
}

// DownloadToken is returned by [Engine.ExchangeSecret].
type DownloadToken struct {
	TokenID   string
	ExpiresAt time.Time
}

// Download is returned by [Engine.Fetch] once a token has been spent.
type Download struct {
	Account string
	Item    string
	Path    string
}

// PurchaseEntry is one line appended to a purchaser's history.
type PurchaseEntry struct {
	Item        string
	UnitPrice   decimal.Decimal
	Quantity    int
	InvoiceRef  string
	PurchasedAt time.Time
}

// AccountDirectory resolves account identifiers to purchasers. A missing
// account is reported as found=false with a nil error.
type AccountDirectory interface {
	LookupAccount(ctx context.Context, accountID string) (Purchaser, bool, error)
}

// FileRegistry maps an item identifier to the path of its file on disk.
type FileRegistry interface {
	ResolveFilePath(ctx context.Context, item string) (string, error)
}

// InvoiceRenderer renders and persists an invoice, returning a reference to
// the stored artifact.
type InvoiceRenderer interface {
	RenderInvoice(ctx context.Context, input InvoiceInput) (string, error)
}

// PurchaseLedger records completed checkouts. It is optional.
type PurchaseLedger interface {
	AppendPurchase(ctx context.Context, accountID string, entries []PurchaseEntry) error
}
