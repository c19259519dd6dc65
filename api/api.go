package api

import (
	"context"
	"net/http"

	"github.com/spectra-gallery/spectra-playground/api/rest"
	"github.com/spectra-gallery/spectra-playground/api/ws"
	"github.com/spectra-gallery/spectra-playground/logging"
	"github.com/spectra-gallery/spectra-playground/service"
)

type PlaygroundAPI struct {
	restHandler *rest.Handler
	wsHandler   *ws.Handler
	shutdownCtx context.Context
}

// NewPlaygroundAPI builds the HTTP and websocket front of svc. The websocket
// hub runs until shutdownCtx ends.
func NewPlaygroundAPI(svc *service.Service, log logging.Logger, shutdownCtx context.Context) *PlaygroundAPI {
	wsHub := ws.NewHub(svc.Cache, log)
	go wsHub.Run(shutdownCtx)

	return &PlaygroundAPI{
		restHandler: rest.NewHandler(svc, log),
		wsHandler:   ws.NewHandler(svc, wsHub, log),
		shutdownCtx: shutdownCtx,
	}
}

func (playgroundAPI *PlaygroundAPI) RegisterRoutes(mux *http.ServeMux, allowedOrigin string) {
	// Health check endpoint (no auth required)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	playgroundAPI.restHandler.RegisterRoutes(mux)

	wsUpgrader := playgroundAPI.wsHandler.NewWsUpgrader(allowedOrigin)
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		playgroundAPI.wsHandler.ServeWS(wsUpgrader, w, r, playgroundAPI.shutdownCtx)
	})
}

// WithCORS answers preflight requests and tags responses for allowedOrigin.
func WithCORS(next http.Handler, allowedOrigin string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if allowedOrigin != "" && r.Header.Get("Origin") == allowedOrigin {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
