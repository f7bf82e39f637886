package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrEthical07/goDeliver/catalog"
	"github.com/MrEthical07/goDeliver/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// adminSecretSetting holds the argon2id hash of a rotated admin secret.
const adminSecretSetting = "admin_secret_hash"

var errAdminDisabled = errors.New("admin login disabled")

type adminLoginRequest struct {
	Email    string `json:"email"`
	Secret   string `json:"secret"`
	Password string `json:"password"`
}

func (h *Handler) adminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	secret := req.Secret
	if secret == "" {
		secret = req.Password
	}
	h.issueAdminToken(w, r, req.Email, secret)
}

func (h *Handler) issueAdminToken(w http.ResponseWriter, r *http.Request, email, secret string) {
	emailOK := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(email)), []byte(h.opts.AdminEmail)) == 1
	secretOK, err := h.checkAdminSecret(r.Context(), secret)
	if errors.Is(err, errAdminDisabled) {
		writeFailure(w, http.StatusServiceUnavailable, "Admin login is disabled.")
		return
	}
	if err != nil {
		status, msg := mapError(err)
		writeFailure(w, status, msg)
		return
	}
	if !emailOK || !secretOK {
		h.logger.Warn("admin login rejected")
		writeFailure(w, http.StatusUnauthorized, "Invalid admin credentials")
		return
	}

	tok, err := h.tokens.CreateAdmin(h.opts.AdminEmail)
	if err != nil {
		h.logger.Error("admin token not issued", zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, msgServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   tok,
		"user":    map[string]string{"name": "Admin", "email": h.opts.AdminEmail},
	})
}

// checkAdminSecret prefers the rotated hash and falls back to the
// configured secret until the first rotation.
func (h *Handler) checkAdminSecret(ctx context.Context, secret string) (bool, error) {
	encoded, rotated, err := h.catalog.Setting(ctx, adminSecretSetting)
	if err != nil {
		return false, err
	}
	if rotated {
		return h.passwords.Verify(secret, encoded)
	}
	if h.opts.AdminSecret == "" {
		return false, errAdminDisabled
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(h.opts.AdminSecret)) == 1, nil
}

type adminChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// adminChangePassword rotates the admin secret. Admin tokens already issued
// stay valid until they expire.
func (h *Handler) adminChangePassword(w http.ResponseWriter, r *http.Request) {
	var req adminChangePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeFailure(w, http.StatusBadRequest, "All fields are required.")
		return
	}

	ok, err := h.checkAdminSecret(r.Context(), req.CurrentPassword)
	if errors.Is(err, errAdminDisabled) {
		writeFailure(w, http.StatusServiceUnavailable, "Admin login is disabled.")
		return
	}
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
	if err := h.catalog.PutSetting(r.Context(), adminSecretSetting, encoded); err != nil {
		h.logger.Error("admin secret not stored", zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, "Failed to update password permanently")
		return
	}
	h.logAdmin(r, "admin secret rotated")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Password updated successfully"})
}

func (h *Handler) adminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.catalog.ListPurchasers(r.Context())
	if err != nil {
		status, msg := mapError(err)
		writeFailure(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "users": users})
}

func (h *Handler) adminUserPurchases(w http.ResponseWriter, r *http.Request) {
	rows, err := h.catalog.Purchases(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		status, msg := mapError(err)
		writeFailure(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "purchases": rows})
}

// adminAddItem accepts multipart fields title, desc, price, subject, an
// optional newSubjectCode/newSubjectName pair and an optional file.
func (h *Handler) adminAddItem(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid upload.")
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	price, err := decimal.NewFromString(strings.TrimSpace(r.FormValue("price")))
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid price.")
		return
	}

	subject := strings.TrimSpace(r.FormValue("subject"))
	if code, name := r.FormValue("newSubjectCode"), r.FormValue("newSubjectName"); code != "" && name != "" {
		sub, err := h.catalog.AddSubject(r.Context(), code, name)
		if err != nil {
			status, msg := mapError(err)
			writeFailure(w, status, msg)
			return
		}
		if subject == "" {
			subject = sub.Key
		}
	}

	var filename string
	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		filename, err = h.catalog.SaveFile(r.Context(), header.Filename, file)
		if err != nil {
			h.logger.Error("item upload not stored", zap.Error(err))
			writeFailure(w, http.StatusInternalServerError, "Failed to add item")
			return
		}
	case errors.Is(err, http.ErrMissingFile):
	default:
		writeFailure(w, http.StatusBadRequest, "Invalid upload.")
		return
	}

	item, err := h.catalog.AddItem(r.Context(), catalog.NewItem{
		Title:       r.FormValue("title"),
		Description: r.FormValue("desc"),
		Price:       price,
		Subject:     subject,
		Filename:    filename,
	})
	if err != nil {
		if filename != "" {
			_ = os.Remove(filepath.Join(h.catalog.FilesDir(), filename))
		}
		status, msg := mapError(err)
		writeFailure(w, status, msg)
		return
	}

	h.logAdmin(r, "item added", zap.String("title", item.Title))
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "item": item})
}

func (h *Handler) adminRemoveItem(w http.ResponseWriter, r *http.Request) {
	title := chi.URLParam(r, "title")
	fileDeleted, err := h.catalog.RemoveItem(r.Context(), title)
	if err != nil {
		status, msg := mapError(err)
		writeFailure(w, status, msg)
		return
	}

	msg := "Item deleted successfully."
	if fileDeleted {
		msg = "Item and associated file deleted successfully."
	}
	h.logAdmin(r, "item removed", zap.String("title", title), zap.Bool("file_deleted", fileDeleted))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": msg, "file_deleted": fileDeleted})
}

type subjectRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func (h *Handler) adminAddSubject(w http.ResponseWriter, r *http.Request) {
	var req subjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := h.catalog.AddSubject(r.Context(), req.Code, req.Name); err != nil {
		status, msg := mapError(err)
		writeFailure(w, status, msg)
		return
	}
	subjects, err := h.catalog.ListSubjects(r.Context())
	if err != nil {
		status, msg := mapError(err)
		writeFailure(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "subjects": subjects})
}

func (h *Handler) logAdmin(r *http.Request, msg string, fields ...zap.Field) {
	if claims, ok := middleware.AdminFromContext(r.Context()); ok {
		fields = append(fields, zap.String("admin", claims.Email()))
	}
	h.logger.Info(msg, fields...)
}
