package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/apigee/apigee-templater/internal/document"
	terrors "github.com/apigee/apigee-templater/internal/errors"
	"github.com/apigee/apigee-templater/internal/generate"
	"github.com/apigee/apigee-templater/internal/service"
)

// Handler implements the HTTP API on top of a service.
type Handler struct {
	svc    *service.Service
	config *Config
	auth   *Authenticator
	logger *zap.Logger
}

// NewHandler creates a handler. config and logger may be nil.
func NewHandler(svc *service.Service, config *Config, logger *zap.Logger) *Handler {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{svc: svc, config: config, logger: logger}
	if config.Auth.Enabled() {
		h.auth = NewAuthenticator(config.Auth)
	}
	return h
}

// Routes builds the router.
//
//	GET    /templates                          list templates
//	POST   /templates                          create a template
//	POST   /templates/{name}/archive           import a bundle archive
//	GET    /templates/{name}                   get (?format=yaml)
//	PUT    /templates/{name}                   replace
//	DELETE /templates/{name}                   delete
//	GET    /templates/{name}/archive           export as bundle archive
//	POST   /templates/{name}/endpoints         add an endpoint
//	POST   /templates/{name}/targets           add a target
//	POST   /templates/{name}/features/{feature}  apply a feature
//	DELETE /templates/{name}/features/{feature}  remove a feature
//	GET    /features ...                       same for features
//	POST   /token                              exchange credentials for a bearer token
//	POST   /generate                           generate a bundle (?format=zip)
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(limitBody(h.config.MaxBodyBytes))
	if h.auth != nil {
		r.Use(requireAuth(h.auth, "/health"))
	}

	r.Get("/health", h.health)
	r.Post("/token", h.issueToken)

	r.Route("/templates", func(r chi.Router) {
		r.Get("/", h.listTemplates)
		r.Post("/", h.createTemplate)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", h.getTemplate)
			r.Put("/", h.putTemplate)
			r.Delete("/", h.deleteTemplate)
			r.Get("/archive", h.exportTemplate)
			r.Post("/archive", h.importTemplate)
			r.Post("/endpoints", h.addEndpoint)
			r.Post("/targets", h.addTarget)
			r.Post("/features/{feature}", h.applyFeature)
			r.Delete("/features/{feature}", h.removeFeature)
		})
	})

	r.Route("/features", func(r chi.Router) {
		r.Get("/", h.listFeatures)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", h.getFeature)
			r.Put("/", h.putFeature)
			r.Delete("/", h.deleteFeature)
			r.Get("/archive", h.exportFeature)
			r.Post("/archive", h.importFeature)
		})
	})

	r.Post("/generate", h.generate)
	r.Post("/spec", h.spec)

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// issueToken exchanges the request's credentials for a bearer token.
func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request) {
	if h.auth == nil || len(h.auth.secret) == 0 {
		renderJSON(w, http.StatusNotFound, ErrorResponse{
			Error:   errorCodeFromStatus(http.StatusNotFound),
			Message: "token issuing is not enabled",
		})
		return
	}
	token, err := h.auth.IssueToken(Subject(r.Context()))
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"expiresIn": int(h.auth.ttl.Seconds()),
	})
}

type createRequest struct {
	Name       string            `json:"name"`
	BasePath   string            `json:"basePath"`
	TargetURL  string            `json:"targetUrl"`
	Features   []string          `json:"features"`
	Parameters map[string]string `json:"parameters"`
}

type applyRequest struct {
	Parameters map[string]string `json:"parameters"`
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (h *Handler) listTemplates(w http.ResponseWriter, r *http.Request) {
	names, err := h.svc.List(r.Context())
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, names)
}

func (h *Handler) createTemplate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(r, &req); err != nil {
		renderBadRequest(w, err.Error())
		return
	}
	if req.Name == "" {
		renderBadRequest(w, "name is required")
		return
	}
	t, err := h.svc.CreateWithFeatures(r.Context(), req.Name, req.BasePath, req.TargetURL, req.Features, req.Parameters)
	if err != nil {
		renderError(w, err)
		return
	}
	renderDocument(w, r, http.StatusCreated, t)
}

func (h *Handler) getTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		renderError(w, err)
		return
	}
	renderDocument(w, r, http.StatusOK, t)
}

func (h *Handler) putTemplate(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		renderError(w, err)
		return
	}
	t, err := document.Decode(data)
	if err != nil {
		renderError(w, err)
		return
	}
	if name := chi.URLParam(r, "name"); t.Name != name {
		renderBadRequest(w, fmt.Sprintf("template name %q does not match %q", t.Name, name))
		return
	}
	if err := h.svc.Save(r.Context(), t); err != nil {
		renderError(w, err)
		return
	}
	renderDocument(w, r, http.StatusOK, t)
}

func (h *Handler) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		renderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) exportTemplate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	data, err := h.svc.ExportArchive(r.Context(), name)
	if err != nil {
		renderError(w, err)
		return
	}
	renderArchive(w, name, data)
}

func (h *Handler) importTemplate(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		renderError(w, err)
		return
	}
	t, err := h.svc.ImportArchive(r.Context(), chi.URLParam(r, "name"), data)
	if err != nil {
		renderError(w, err)
		return
	}
	renderDocument(w, r, http.StatusCreated, t)
}

func (h *Handler) addEndpoint(w http.ResponseWriter, r *http.Request) {
	var spec service.EndpointSpec
	if err := decodeJSON(r, &spec); err != nil {
		renderBadRequest(w, err.Error())
		return
	}
	t, err := h.svc.AddEndpoint(r.Context(), chi.URLParam(r, "name"), spec)
	if err != nil {
		renderError(w, err)
		return
	}
	renderDocument(w, r, http.StatusOK, t)
}

func (h *Handler) addTarget(w http.ResponseWriter, r *http.Request) {
	var spec service.TargetSpec
	if err := decodeJSON(r, &spec); err != nil {
		renderBadRequest(w, err.Error())
		return
	}
	t, err := h.svc.AddTarget(r.Context(), chi.URLParam(r, "name"), spec)
	if err != nil {
		renderError(w, err)
		return
	}
	renderDocument(w, r, http.StatusOK, t)
}

func (h *Handler) applyFeature(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := decodeJSON(r, &req); err != nil {
		renderBadRequest(w, err.Error())
		return
	}
	t, err := h.svc.ApplyFeature(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "feature"), req.Parameters)
	if err != nil {
		renderError(w, err)
		return
	}
	renderDocument(w, r, http.StatusOK, t)
}

func (h *Handler) removeFeature(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.RemoveFeature(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "feature"))
	if err != nil {
		renderError(w, err)
		return
	}
	renderDocument(w, r, http.StatusOK, t)
}

func (h *Handler) listFeatures(w http.ResponseWriter, r *http.Request) {
	names, err := h.svc.ListFeatures(r.Context())
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, names)
}

func (h *Handler) getFeature(w http.ResponseWriter, r *http.Request) {
	f, err := h.svc.GetFeature(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		renderError(w, err)
		return
	}
	renderDocument(w, r, http.StatusOK, f)
}

func (h *Handler) putFeature(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		renderError(w, err)
		return
	}
	f, err := document.DecodeFeature(data)
	if err != nil {
		renderError(w, err)
		return
	}
	if name := chi.URLParam(r, "name"); f.Name != name {
		renderBadRequest(w, fmt.Sprintf("feature name %q does not match %q", f.Name, name))
		return
	}
	if err := h.svc.SaveFeature(r.Context(), f); err != nil {
		renderError(w, err)
		return
	}
	renderDocument(w, r, http.StatusOK, f)
}

func (h *Handler) deleteFeature(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteFeature(r.Context(), chi.URLParam(r, "name")); err != nil {
		renderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) exportFeature(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	data, err := h.svc.ExportFeatureArchive(r.Context(), name)
	if err != nil {
		renderError(w, err)
		return
	}
	renderArchive(w, name, data)
}

func (h *Handler) importFeature(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		renderError(w, err)
		return
	}
	f, err := h.svc.ImportFeatureArchive(r.Context(), chi.URLParam(r, "name"), data)
	if err != nil {
		renderError(w, err)
		return
	}
	renderDocument(w, r, http.StatusCreated, f)
}

// generate converts the body (JSON or YAML input) and runs the pipeline.
// With ?format=zip the archive is returned instead of the result.
func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		renderError(w, err)
		return
	}
	pipeline := h.svc.Pipeline()
	input, err := pipeline.Convert(data)
	if err != nil {
		renderError(w, err)
		return
	}
	result, err := h.svc.Generate(r.Context(), input, h.config.OutputDir, generate.Options{Project: h.config.Project})
	if err != nil {
		h.logger.Error("generation failed", zap.String("name", input.Name), zap.Error(err))
		renderError(w, err)
		return
	}

	if r.URL.Query().Get("format") != "zip" {
		renderJSON(w, http.StatusOK, result)
		return
	}
	archive, err := afero.ReadFile(pipeline.Fs(), result.LocalPath)
	if err != nil {
		renderError(w, err)
		return
	}
	renderArchive(w, input.Name, archive)
}

// spec builds an OpenAPI document from the sample payload in the body.
// Query parameters: server (repeatable), auth, examples, descriptions.
func (h *Handler) spec(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		renderError(w, err)
		return
	}
	q := r.URL.Query()
	opts := generate.SpecOptions{
		Servers:      q["server"],
		Auth:         q.Get("auth"),
		Examples:     q.Get("examples") == "true",
		Descriptions: q.Get("descriptions") == "true",
	}
	spec, err := h.svc.Spec(payload, opts)
	if err != nil {
		if _, ok := terrors.CodeOf(err); !ok {
			renderBadRequest(w, err.Error())
			return
		}
		renderError(w, err)
		return
	}
	renderDocument(w, r, http.StatusOK, spec)
}
