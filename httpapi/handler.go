package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	goDeliver "github.com/MrEthical07/goDeliver"
	"github.com/MrEthical07/goDeliver/catalog"
	"github.com/MrEthical07/goDeliver/jwt"
	"go.uber.org/zap"
)

// Engine is the credential lifecycle the buyer routes call into.
type Engine interface {
	Checkout(ctx context.Context, accountID string, lines []goDeliver.LineItem) (*goDeliver.CheckoutResult, error)
	ExchangeSecret(ctx context.Context, accountID, item, secret string) (*goDeliver.DownloadToken, error)
	Fetch(ctx context.Context, tokenID string) (*goDeliver.Download, error)
	StatusCheck(ctx context.Context, accountID, item string) (bool, error)
}

// Catalog is the storefront data the handlers read and write.
type Catalog interface {
	CreatePurchaser(ctx context.Context, name, email, passwordHash string) (catalog.Purchaser, error)
	GetPurchaser(ctx context.Context, email string) (catalog.Purchaser, error)
	SetPasswordHash(ctx context.Context, email, passwordHash string) error
	AppendPurchase(ctx context.Context, accountID string, entries []goDeliver.PurchaseEntry) error
	ListPurchasers(ctx context.Context) ([]catalog.Purchaser, error)
	Purchases(ctx context.Context, email string) ([]catalog.Purchase, error)
	GetItem(ctx context.Context, title string) (catalog.Item, error)
	ListItems(ctx context.Context) ([]catalog.Item, error)
	AddItem(ctx context.Context, in catalog.NewItem) (catalog.Item, error)
	RemoveItem(ctx context.Context, title string) (bool, error)
	SaveFile(ctx context.Context, original string, r io.Reader) (string, error)
	FilesDir() string
	AddSubject(ctx context.Context, code, name string) (catalog.Subject, error)
	ListSubjects(ctx context.Context) (map[string]string, error)
	Setting(ctx context.Context, key string) (string, bool, error)
	PutSetting(ctx context.Context, key, value string) error
}

// Passwords hashes and checks purchaser passwords and the admin secret.
type Passwords interface {
	Hash(pw string) (string, error)
	Verify(pw, encoded string) (bool, error)
}

// Invoices opens rendered invoices by reference.
type Invoices interface {
	Open(ref string) (*os.File, error)
}

// AdminTokens mints and verifies admin bearer tokens.
type AdminTokens interface {
	CreateAdmin(email string) (string, error)
	ParseAdmin(token string) (*jwt.AdminClaims, error)
}

// Options configures a Handler.
type Options struct {
	// AdminEmail and AdminSecret are the single admin credential. AdminSecret
	// is the bootstrap value: once rotated through /admin/change-password the
	// stored hash wins. Admin login is disabled while neither exists.
	AdminEmail  string
	AdminSecret string
	// TrustClientPrices takes unit prices from the checkout request instead
	// of the catalog.
	TrustClientPrices bool
	// MaxUploadBytes bounds admin item uploads. Zero means 64 MiB.
	MaxUploadBytes int64
	// Metrics is mounted at GET /metrics when set.
	Metrics http.Handler
	Logger  *zap.Logger
	Now     func() time.Time
}

// Handler serves every storefront route.
type Handler struct {
	engine    Engine
	catalog   Catalog
	invoices  Invoices
	tokens    AdminTokens
	passwords Passwords
	opts      Options
	logger    *zap.Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewHandler wires the route handlers. All collaborators are required.
func NewHandler(engine Engine, cat Catalog, invoices Invoices, tokens AdminTokens, passwords Passwords, opts Options) (*Handler, error) {
	if engine == nil || cat == nil || invoices == nil || tokens == nil || passwords == nil {
		return nil, errors.New("httpapi: engine, catalog, invoices, tokens and passwords are required")
	}
	opts.AdminEmail = strings.TrimSpace(opts.AdminEmail)
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 64 << 20
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Handler{
		engine:    engine,
		catalog:   cat,
		invoices:  invoices,
		tokens:    tokens,
		passwords: passwords,
		opts:      opts,
		logger:    opts.Logger.Named("http"),
	}, nil
}
