package httpapi

import (
	"net/http"

	"github.com/MrEthical07/goDeliver/middleware"
	"github.com/go-chi/chi/v5"
)

// NewRouter mounts every route served by h.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestContext)
	r.Use(h.recoverMiddleware)
	r.Use(h.loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if h.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.opts.Metrics)
	}

	r.Post("/signup", h.signup)
	r.Post("/login", h.login)
	r.Post("/change-password", h.changePassword)
	r.Get("/items", h.listItems)
	r.Get("/subjects", h.listSubjects)

	r.Post("/checkout", h.checkout)
	r.Get("/download-bill/{ref}", h.downloadBill)
	r.Post("/verify-password", h.verifyPassword)
	r.Post("/check-password-status", h.checkPasswordStatus)
	r.Get("/download/{token}", h.download)
	r.With(middleware.RequireAdmin(h.tokens)).Post("/record-purchase", h.recordPurchase)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/login", h.adminLogin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin(h.tokens))
			r.Get("/users", h.adminListUsers)
			r.Get("/user-purchases/{email}", h.adminUserPurchases)
			r.Post("/items", h.adminAddItem)
			r.Delete("/items/{title}", h.adminRemoveItem)
			r.Post("/subjects", h.adminAddSubject)
			r.Post("/change-password", h.adminChangePassword)
		})
	})
	return r
}
