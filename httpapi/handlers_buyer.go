package httpapi

import (
	"errors"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	goDeliver "github.com/MrEthical07/goDeliver"
	"github.com/MrEthical07/goDeliver/catalog"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type cartLine struct {
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

type checkoutRequest struct {
	Email string     `json:"email"`
	Cart  []cartLine `json:"cart"`
}

type checkoutResponse struct {
	Success   bool              `json:"success"`
	Download  string            `json:"download"`
	Passwords map[string]string `json:"passwords"`
	InvoiceID string            `json:"invoice_id"`
	Subtotal  string            `json:"subtotal"`
	Tax       string            `json:"tax"`
	Total     string            `json:"total"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		status, msg := mapError(goDeliver.ErrEmptyCart)
		writeFailure(w, status, msg)
		return
	}

	lines := make([]goDeliver.LineItem, 0, len(req.Cart))
	for _, c := range req.Cart {
		line := goDeliver.LineItem{Item: c.Title, UnitPrice: c.Price, Quantity: c.Quantity}
		if !h.opts.TrustClientPrices {
			item, err := h.catalog.GetItem(r.Context(), c.Title)
			if errors.Is(err, catalog.ErrItemNotFound) {
				writeFailure(w, http.StatusBadRequest, "Unknown item: "+c.Title)
				return
			}
			if err != nil {
				status, msg := mapError(err)
				writeFailure(w, status, msg)
				return
			}
			line.UnitPrice = item.Price
		}
		lines = append(lines, line)
	}

	res, err := h.engine.Checkout(r.Context(), req.Email, lines)
	if err != nil {
		status, msg := mapError(err)
		writeFailure(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, checkoutResponse{
		Success:   true,
		Download:  "/download-bill/" + url.PathEscape(res.ArtifactRef),
		Passwords: res.Secrets,
		InvoiceID: res.InvoiceID,
		Subtotal:  res.Totals.Subtotal.StringFixed(2),
		Tax:       res.Totals.Tax.StringFixed(2),
		Total:     res.Totals.Total.StringFixed(2),
	})
}

func (h *Handler) downloadBill(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	f, err := h.invoices.Open(ref)
	if err != nil {
		http.Error(w, "Bill not found.", http.StatusNotFound)
		return
	}
	defer f.Close()

	modTime := time.Time{}
	if info, err := f.Stat(); err == nil {
		modTime = info.ModTime()
	}
	w.Header().Set("Content-Disposition", attachment(ref))
	http.ServeContent(w, r, ref, modTime, f)
}

type redeemRequest struct {
	Email    string `json:"email"`
	Title    string `json:"title"`
	Password string `json:"password"`
}

type redeemResponse struct {
	Success   bool      `json:"success"`
	Download  string    `json:"download"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) verifyPassword(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tok, err := h.engine.ExchangeSecret(r.Context(), req.Email, req.Title, req.Password)
	if errors.Is(err, goDeliver.ErrDenied) {
		writeFailure(w, http.StatusForbidden, msgPasswordDenied)
		return
	}
	if err != nil {
		status, msg := mapError(err)
		writeFailure(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, redeemResponse{
		Success:   true,
		Download:  "/download/" + tok.TokenID,
		ExpiresAt: tok.ExpiresAt.UTC(),
	})
}

type statusRequest struct {
	Email string `json:"email"`
	Title string `json:"title"`
}

type statusResponse struct {
	HasPassword bool   `json:"hasPassword"`
	Message     string `json:"message"`
}

func (h *Handler) checkPasswordStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ok, err := h.engine.StatusCheck(r.Context(), req.Email, req.Title)
	if err != nil {
		status, msg := mapError(err)
		writeFailure(w, status, msg)
		return
	}
	msg := "Password expired or not generated"
	if ok {
		msg = "Password available"
	}
	writeJSON(w, http.StatusOK, statusResponse{HasPassword: ok, Message: msg})
}

// download spends a token. Links of the form /download/{title}?token=... are
// accepted too; the token in the query wins.
func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = chi.URLParam(r, "token")
	}

	dl, err := h.engine.Fetch(r.Context(), token)
	if err != nil {
		status, msg := mapError(err)
		if errors.Is(err, goDeliver.ErrDenied) {
			status, msg = http.StatusForbidden, msgLinkDenied
		}
		http.Error(w, msg, status)
		return
	}

	h.logger.Info("download served",
		zap.String("item", dl.Item),
		zap.String("request_id", goDeliver.RequestIDFromContext(r.Context())),
	)
	w.Header().Set("Content-Disposition", attachment(filepath.Base(dl.Path)))
	http.ServeFile(w, r, dl.Path)
}

func attachment(name string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": name})
}
