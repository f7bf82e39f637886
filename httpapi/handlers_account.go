package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goDeliver "github.com/MrEthical07/goDeliver"
	"github.com/MrEthical07/goDeliver/catalog"
	"github.com/MrEthical07/goDeliver/password"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const msgBadLogin = "Invalid email or password."

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if strings.TrimSpace(req.Name) == "" || req.Email == "" || req.Password == "" {
		writeFailure(w, http.StatusBadRequest, "All fields are required.")
		return
	}
	if h.isAdminEmail(req.Email) {
		writeFailure(w, http.StatusConflict, "Email already registered.")
		return
	}

	encoded, err := h.passwords.Hash(req.Password)
	if err != nil {
		status, msg := mapError(err)
		writeFailure(w, status, msg)
		return
	}
	if _, err := h.catalog.CreatePurchaser(r.Context(), req.Name, req.Email, encoded); err != nil {
		status, msg := mapError(err)
		writeFailure(w, status, msg)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"success": true})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// login authenticates a purchaser. Role "admin" is forwarded to the admin
// login so one form can serve both.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Role == "admin" {
		h.issueAdminToken(w, r, req.Email, req.Password)
		return
	}
	if h.isAdminEmail(req.Email) {
		writeFailure(w, http.StatusBadRequest, "Please use admin login for administrator account")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeFailure(w, http.StatusBadRequest, "Both email and password are required.")
		return
	}

	p, ok, err := h.verifyPurchaser(r.Context(), req.Email, req.Password)
	if err != nil {
		status, msg := mapError(err)
		writeFailure(w, status, msg)
		return
	}
	if !ok {
		writeFailure(w, http.StatusUnauthorized, msgBadLogin)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": p})
}

type changePasswordRequest struct {
	Email           string `json:"email"`
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.CurrentPassword == "" || req.NewPassword == "" {
		writeFailure(w, http.StatusBadRequest, "All fields are required.")
		return
	}

	p, ok, err := h.verifyPurchaser(r.Context(), req.Email, req.CurrentPassword)
	if err != nil {
		status, msg := mapError(err)
		writeFailure(w, status, msg)
		return
	}
	if !ok {
		writeFailure(w, http.StatusUnauthorized, "Current password is incorrect")
		return
	}

	encoded, err := h.passwords.Hash(req.NewPassword)
	if err != nil {
		status, msg := mapError(err)
		writeFailure(w, status, msg)
		return
	}
	if err := h.catalog.SetPasswordHash(r.Context(), p.Email, encoded); err != nil {
		status, msg := mapError(err)
		writeFailure(w, status, msg)
		return
	}
	h.logger.Info("purchaser password changed", zap.String("account", p.Email))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type recordLine struct {
	Title      string           `json:"title"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	Quantity   int              `json:"quantity"`
	InvoiceRef string           `json:"invoice"`
}

type recordPurchaseRequest struct {
	Email     string       `json:"email"`
	Purchases []recordLine `json:"purchases"`
}

// recordPurchase appends ledger rows outside checkout, for corrections and
// sales made elsewhere. It grants nothing downloadable.
func (h *Handler) recordPurchase(w http.ResponseWriter, r *http.Request) {
	var req recordPurchaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || len(req.Purchases) == 0 {
		writeFailure(w, http.StatusBadRequest, "Email and purchases are required.")
		return
	}

	ctx := r.Context()
	p, err := h.catalog.GetPurchaser(ctx, req.Email)
	if err != nil {
		status, msg := mapError(err)
		writeFailure(w, status, msg)
		return
	}

	now := h.opts.Now().UTC()
	entries := make([]goDeliver.PurchaseEntry, 0, len(req.Purchases))
	for _, line := range req.Purchases {
		if line.Quantity < 0 {
			writeFailure(w, http.StatusBadRequest, "Invalid quantity for "+line.Title)
			return
		}
		if line.Quantity == 0 {
			line.Quantity = 1
		}
		entry := goDeliver.PurchaseEntry{
			Item:        line.Title,
			Quantity:    line.Quantity,
			InvoiceRef:  line.InvoiceRef,
			PurchasedAt: now,
		}
		if h.opts.TrustClientPrices && line.Price != nil {
			if line.Price.IsNegative() {
				writeFailure(w, http.StatusBadRequest, "Invalid price for "+line.Title)
				return
			}
			entry.UnitPrice = *line.Price
		} else {
			item, err := h.catalog.GetItem(ctx, line.Title)
			if errors.Is(err, catalog.ErrItemNotFound) {
				writeFailure(w, http.StatusBadRequest, "Unknown item: "+line.Title)
				return
			}
			if err != nil {
				status, msg := mapError(err)
				writeFailure(w, status, msg)
				return
			}
			entry.UnitPrice = item.Price
		}
		entries = append(entries, entry)
	}

	if err := h.catalog.AppendPurchase(ctx, p.Email, entries); err != nil {
		h.logger.Error("purchase not recorded", zap.String("account", p.Email), zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, "Failed to update purchase history.")
		return
	}
	rows, err := h.catalog.Purchases(ctx, p.Email)
	if err != nil {
		status, msg := mapError(err)
		writeFailure(w, status, msg)
		return
	}
	h.logAdmin(r, "purchase recorded", zap.String("account", p.Email), zap.Int("lines", len(entries)))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": p, "purchases": rows})
}

// verifyPurchaser checks pw for email. An unknown account still pays for one
// hash comparison so response time does not reveal which emails exist.
func (h *Handler) verifyPurchaser(ctx context.Context, email, pw string) (catalog.Purchaser, bool, error) {
	p, err := h.catalog.GetPurchaser(ctx, email)
	if errors.Is(err, catalog.ErrAccountNotFound) {
		h.spendDummyVerify(pw)
		return catalog.Purchaser{}, false, nil
	}
	if err != nil {
		return catalog.Purchaser{}, false, err
	}

	ok, err := h.passwords.Verify(pw, p.PasswordHash)
	if errors.Is(err, password.ErrMalformedHash) {
		h.logger.Warn("stored password hash unreadable", zap.String("account", p.Email))
		return catalog.Purchaser{}, false, nil
	}
	if err != nil || !ok {
		return catalog.Purchaser{}, false, err
	}
	return p, true, nil
}

func (h *Handler) spendDummyVerify(pw string) {
	h.dummyOnce.Do(func() {
		h.dummyHash, _ = h.passwords.Hash(uuid.NewString())
	})
	if h.dummyHash != "" {
		_, _ = h.passwords.Verify(pw, h.dummyHash)
	}
}

func (h *Handler) isAdminEmail(email string) bool {
	return h.opts.AdminEmail != "" && strings.EqualFold(strings.TrimSpace(email), h.opts.AdminEmail)
}
