package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// RegisterRoutes registers all admin API routes using chi router
func RegisterRoutes(mux *http.ServeMux, handlers *AdminHandlers) {
	r := chi.NewRouter()
	r.Use(AuthMiddleware)

	r.Route("/ledger", func(r chi.Router) {
		r.Get("/", handlers.handleLedger)
		r.Get("/verify", handlers.handleVerify)
		r.Get("/snapshot", handlers.handleSnapshot)
	})

	r.Get("/xids/{xid}", handlers.xidByID)
	r.Get("/transitions", handlers.handleTransitions)

	// Mount chi router under /admin
	mux.Handle("/admin", http.RedirectHandler("/admin/", http.StatusMovedPermanently))
	mux.Handle("/admin/", http.StripPrefix("/admin", r))

	log.Info().Msg("Admin endpoints enabled at /admin/ledger and /admin/xids/{xid}")
}

func (h *AdminHandlers) xidByID(w http.ResponseWriter, r *http.Request) {
	xid, err := parseXID(chi.URLParam(r, "xid"))
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	h.handleXID(w, r, xid)
}
