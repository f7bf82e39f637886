package invoice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	goDeliver "github.com/MrEthical07/goDeliver"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrInvalidRef is returned for a reference that is not a plain invoice file name.
	ErrInvalidRef = errors.New("invalid invoice reference")
	// ErrNotFound is returned when no invoice exists for a reference.
	ErrNotFound = errors.New("invoice not found")
)

// Branding holds the static text printed on every invoice.
type Branding struct {
	StoreName    string
	ContactEmail string
	ContactPhone string
	BankName     string
	AccountNo    string
	IFSC         string
	Copyright    string
}

// DefaultBranding returns the store's standard invoice text.
func DefaultBranding() Branding {
	return Branding{
		StoreName:    "Study Materials Store",
		ContactEmail: "contact@studymaterials.com",
		ContactPhone: "+91 123-456-7890",
		BankName:     "Study Materials Bank",
		AccountNo:    "123-456-7890",
		IFSC:         "STDY0001234",
		Copyright:    "Study Materials Store © 2025",
	}
}

type Options struct {
	Dir      string
	Branding Branding
	Now      func() time.Time
}

// PDFRenderer writes invoices into one directory.
type PDFRenderer struct {
	dir      string
	branding Branding
	now      func() time.Time
	logger   *zap.Logger
}

// NewPDFRenderer creates opts.Dir if needed.
func NewPDFRenderer(opts Options, logger *zap.Logger) (*PDFRenderer, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("invoice dir required")
	}
	if err := os.MkdirAll(opts.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create invoice dir: %w", err)
	}
	if opts.Branding == (Branding{}) {
		opts.Branding = DefaultBranding()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PDFRenderer{
		dir:      opts.Dir,
		branding: opts.Branding,
		now:      opts.Now,
		logger:   logger.Named("invoice"),
	}, nil
}

// RenderInvoice lays out in as an A4 PDF and stores it. The file is written
// under a temporary name and renamed, so a reference never points at a
// partial document.
func (r *PDFRenderer) RenderInvoice(ctx context.Context, in goDeliver.InvoiceInput) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ref := r.newRef(in.Purchaser.ID)
	final := filepath.Join(r.dir, ref)
	tmp := final + ".tmp"

	doc := r.layout(in)
	if err := doc.OutputFileAndClose(tmp); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write invoice: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("store invoice: %w", err)
	}

	r.logger.Info("invoice rendered",
		zap.String("ref", ref),
		zap.String("invoice_id", in.InvoiceID),
		zap.Int("lines", len(in.Lines)),
	)
	return ref, nil
}

// Path resolves ref to the invoice file on disk.
func (r *PDFRenderer) Path(ref string) (string, error) {
	if !validRef(ref) {
		return "", ErrInvalidRef
	}
	p := filepath.Join(r.dir, ref)
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return "", ErrNotFound
	}
	return p, nil
}

// Open returns the stored invoice for ref. The caller closes the file.
func (r *PDFRenderer) Open(ref string) (*os.File, error) {
	p, err := r.Path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, ErrNotFound
	}
	return f, nil
}

func (r *PDFRenderer) newRef(account string) string {
	short := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return sanitize(account) + "_bill_" + strconv.FormatInt(r.now().UnixMilli(), 10) + "_" + short + ".pdf"
}

func validRef(ref string) bool {
	if ref == "" || ref != filepath.Base(ref) || strings.HasPrefix(ref, ".") {
		return false
	}
	if !strings.HasSuffix(ref, ".pdf") {
		return false
	}
	return !strings.ContainsAny(ref, `/\`)
}

func sanitize(account string) string {
	var b strings.Builder
	for _, c := range account {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '@', c == '-', c == '_':
			b.WriteRune(c)
		case c == '.':
			if b.Len() == 0 {
				b.WriteByte('_')
			} else {
				b.WriteByte('.')
			}
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "account"
	}
	out := b.String()
	if len(out) > 64 {
		out = out[:64]
	}
	return out
}
