package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/spectra-gallery/spectra-playground/auth"
	"github.com/spectra-gallery/spectra-playground/logging"
	"github.com/spectra-gallery/spectra-playground/models"
	"github.com/spectra-gallery/spectra-playground/service"
)

// Request bodies above this size are rejected before decoding.
const maxBodyBytes = 4 << 20

type Handler struct {
	Service *service.Service
	Guard   *auth.Guard
	Log     logging.Logger

	loginLimiter   *ipLimiter
	decryptLimiter *ipLimiter
}

func NewHandler(svc *service.Service, log logging.Logger) *Handler {
	cfg := svc.Config
	return &Handler{
		Service:        svc,
		Guard:          auth.NewGuard(svc.Tokens),
		Log:            log.With("component", "rest"),
		loginLimiter:   newIPLimiter(cfg.LoginRatePerSecond, cfg.LoginBurst),
		decryptLimiter: newIPLimiter(cfg.DecryptRatePerSecond, cfg.DecryptBurst),
	}
}

// RegisterRoutes mounts every REST endpoint on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/register", h.HandleRegister)
	mux.HandleFunc("POST /auth/login", h.HandleLogin)
	mux.HandleFunc("GET /auth/me", h.HandleMe)

	mux.HandleFunc("POST /autosave", h.HandleAutosave)
	mux.HandleFunc("GET /resources/{id}", h.HandleGetResource)
	mux.HandleFunc("PUT /resources/{id}/tags", h.HandleUpdateTags)
	mux.HandleFunc("PUT /resources/{id}/attrs", h.HandleUpdateAttrs)
	mux.HandleFunc("PUT /resources/{id}/layout", h.HandleUpdateLayout)
	mux.HandleFunc("PUT /resources/{id}/title", h.HandleUpdateTitle)
	mux.HandleFunc("POST /resources/{id}/transforms", h.HandleGenerateTransform)
	mux.HandleFunc("POST /resources/{id}/encryption", h.HandleSetEncryption)
	mux.HandleFunc("DELETE /resources/{id}/encryption", h.HandleRemoveEncryption)
	mux.HandleFunc("POST /resources/{id}/shares", h.HandleIssueShare)
	mux.HandleFunc("GET /resources/{id}/shares", h.HandleListShares)

	mux.HandleFunc("GET /shares/{token}", h.HandleResolveShare)
	mux.HandleFunc("POST /shares/{token}/decrypt", h.HandleDecryptShare)
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string             `json:"token"`
	User  service.PublicUser `json:"user"`
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, token, err := h.Service.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.sendResponse(w, http.StatusCreated, authResponse{Token: token, User: user})
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if !h.loginLimiter.Allow(clientIP(r)) {
		h.writeError(w, r, service.ErrTooManyAttempts)
		return
	}

	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, token, err := h.Service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.sendResponse(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireAuth(w, r)
	if !ok {
		return
	}
	user, err := h.Service.Me(&identity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.sendResponse(w, http.StatusOK, user)
}

type autosaveRequest struct {
	Id         string `json:"id"`
	HTML       string `json:"html"`
	CSS        string `json:"css"`
	JavaScript string `json:"javascript"`
	Hash       string `json:"hash"`
	Seed       string `json:"seed"`
	Title      string `json:"title"`
}

type revisionResponse struct {
	Id       string `json:"id"`
	Revision int    `json:"revision"`
}

func (h *Handler) HandleAutosave(w http.ResponseWriter, r *http.Request) {
	var req autosaveRequest
	if !h.decode(w, r, &req) {
		return
	}

	resource, err := h.Service.SaveResource(r.Context(), h.Guard.TryAuth(r), service.SaveParams{
		Id:      req.Id,
		Content: models.Content{HTML: req.HTML, CSS: req.CSS, JavaScript: req.JavaScript},
		Hash:    req.Hash,
		Seed:    req.Seed,
		Title:   req.Title,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.sendResponse(w, http.StatusOK, revisionResponse{Id: resource.Id, Revision: resource.Revision})
}

func (h *Handler) HandleGetResource(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.GetResource(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.sendResponse(w, http.StatusOK, view)
}

type tagsRequest struct {
	Tags []string `json:"tags"`
}

func (h *Handler) HandleUpdateTags(w http.ResponseWriter, r *http.Request) {
	var req tagsRequest
	if !h.decode(w, r, &req) {
		return
	}
	resource, err := h.Service.UpdateTags(r.Context(), r.PathValue("id"), h.Guard.TryAuth(r), req.Tags)
	h.sendRevision(w, r, resource, err)
}

type attrsRequest struct {
	Attrs map[string]string `json:"attrs"`
}

func (h *Handler) HandleUpdateAttrs(w http.ResponseWriter, r *http.Request) {
	var req attrsRequest
	if !h.decode(w, r, &req) {
		return
	}
	resource, err := h.Service.UpdateAttrs(r.Context(), r.PathValue("id"), h.Guard.TryAuth(r), req.Attrs)
	h.sendRevision(w, r, resource, err)
}

type layoutRequest struct {
	Layout json.RawMessage `json:"layout"`
}

func (h *Handler) HandleUpdateLayout(w http.ResponseWriter, r *http.Request) {
	var req layoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	resource, err := h.Service.UpdateLayout(r.Context(), r.PathValue("id"), h.Guard.TryAuth(r), req.Layout)
	h.sendRevision(w, r, resource, err)
}

type titleRequest struct {
	Title string `json:"title"`
}

func (h *Handler) HandleUpdateTitle(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if !h.decode(w, r, &req) {
		return
	}
	resource, err := h.Service.UpdateTitle(r.Context(), r.PathValue("id"), h.Guard.TryAuth(r), req.Title)
	h.sendRevision(w, r, resource, err)
}

type transformRequest struct {
	Kind  string          `json:"kind"`
	Input json.RawMessage `json:"input"`
}

func (h *Handler) HandleGenerateTransform(w http.ResponseWriter, r *http.Request) {
	var req transformRequest
	if !h.decode(w, r, &req) {
		return
	}
	transform, err := h.Service.GenerateTransform(r.Context(), r.PathValue("id"), h.Guard.TryAuth(r), req.Kind, req.Input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.sendResponse(w, http.StatusOK, transform)
}

type encryptionRequest struct {
	Password        string `json:"password"`
	CurrentPassword string `json:"currentPassword"`
}

type encryptionResponse struct {
	Id          string `json:"id"`
	Revision    int    `json:"revision"`
	IsEncrypted bool   `json:"isEncrypted"`
	Algorithm   string `json:"algorithm,omitempty"`
}

func (h *Handler) HandleSetEncryption(w http.ResponseWriter, r *http.Request) {
	var req encryptionRequest
	if !h.decode(w, r, &req) {
		return
	}
	resource, err := h.Service.SetEncryption(r.Context(), r.PathValue("id"), h.Guard.TryAuth(r), req.Password, req.CurrentPassword)
	h.sendEncryption(w, r, resource, err)
}

func (h *Handler) HandleRemoveEncryption(w http.ResponseWriter, r *http.Request) {
	var req encryptionRequest
	if !h.decode(w, r, &req) {
		return
	}
	resource, err := h.Service.RemoveEncryption(r.Context(), r.PathValue("id"), h.Guard.TryAuth(r), req.Password)
	h.sendEncryption(w, r, resource, err)
}

func (h *Handler) sendEncryption(w http.ResponseWriter, r *http.Request, resource models.Resource, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := encryptionResponse{Id: resource.Id, Revision: resource.Revision, IsEncrypted: resource.IsEncrypted()}
	if resource.Envelope != nil {
		resp.Algorithm = resource.Envelope.Algorithm
	}
	h.sendResponse(w, http.StatusOK, resp)
}

type shareRequest struct {
	Mode       string `json:"mode"`
	TTLSeconds int64  `json:"ttlSeconds"`
}

func (h *Handler) HandleIssueShare(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireAuth(w, r)
	if !ok {
		return
	}
	var req shareRequest
	if !h.decode(w, r, &req) {
		return
	}
	grant, err := h.Service.IssueShare(r.Context(), r.PathValue("id"), &identity, req.Mode, req.TTLSeconds)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.sendResponse(w, http.StatusCreated, grant)
}

type listSharesResponse struct {
	Shares []service.ShareGrant `json:"shares"`
}

func (h *Handler) HandleListShares(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireAuth(w, r)
	if !ok {
		return
	}
	grants, err := h.Service.ListShares(r.Context(), r.PathValue("id"), &identity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.sendResponse(w, http.StatusOK, listSharesResponse{Shares: grants})
}

func (h *Handler) HandleResolveShare(w http.ResponseWriter, r *http.Request) {
	shared, err := h.Service.ResolveShare(r.Context(), r.PathValue("token"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.sendResponse(w, http.StatusOK, shared)
}

type decryptRequest struct {
	Password string `json:"password"`
}

func (h *Handler) HandleDecryptShare(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !h.decryptLimiter.Allow(ip) {
		h.writeError(w, r, service.ErrTooManyAttempts)
		return
	}

	var req decryptRequest
	if !h.decode(w, r, &req) {
		return
	}
	content, err := h.Service.DecryptShared(r.Context(), r.PathValue("token"), req.Password, ip)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.sendResponse(w, http.StatusOK, content)
}

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	identity, err := h.Guard.RequireAuth(r)
	if err != nil {
		h.writeError(w, r, service.ErrUnauthorized)
		return models.Identity{}, false
	}
	return identity, true
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.sendError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	h.sendError(w, http.StatusBadRequest, "invalid request body")
	return false
}

func (h *Handler) sendRevision(w http.ResponseWriter, r *http.Request, resource models.Resource, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.sendResponse(w, http.StatusOK, revisionResponse{Id: resource.Id, Revision: resource.Revision})
}

func (h *Handler) sendResponse(w http.ResponseWriter, status int, resp any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.Log.Warn(context.Background(), "encode response failed", "error", err)
	}
}
