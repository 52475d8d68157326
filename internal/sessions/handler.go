package sessions

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"variance-backend/internal/commentary"
	"variance-backend/internal/llm"
	"variance-backend/internal/shared/metrics"
	"variance-backend/internal/shared/server/middleware"
	"variance-backend/internal/shared/server/respond"
	"variance-backend/internal/shared/telemetry"
	"variance-backend/internal/shared/util"
	"variance-backend/internal/transcripts"
)

// Handler wires the session HTTP API to the Manager.
type Handler struct {
	Sessions *Manager
}

// NewHandler constructs a Handler.
func NewHandler(m *Manager) *Handler {
	return &Handler{Sessions: m}
}

// RegisterRoutes attaches session routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sessions", h.create)
	rg.GET("/sessions/:id", h.get)
	rg.DELETE("/sessions/:id", h.delete)
	rg.PUT("/sessions/:id/transcript", h.setTranscript)
	rg.DELETE("/sessions/:id/transcript", h.resetTranscript)
	rg.POST("/sessions/:id/transcript/sample", h.loadSample)
	rg.POST("/sessions/:id/transcript/upload", h.upload)
	rg.POST("/sessions/:id/extract", h.extract)
	rg.POST("/sessions/:id/query", h.query)
}

// IsLLMRoute reports whether a route calls the generation API.
func IsLLMRoute(c *gin.Context) bool {
	if c.Request.Method != http.MethodPost {
		return false
	}
	switch c.FullPath() {
	case "/api/v1/sessions/:id/extract", "/api/v1/sessions/:id/query":
		return true
	default:
		return false
	}
}

// IsCreateRoute reports whether a route creates a new session.
func IsCreateRoute(c *gin.Context) bool {
	return c.Request.Method == http.MethodPost && c.FullPath() == "/api/v1/sessions"
}

type sessionResponse struct {
	ID        string           `json:"id"`
	CreatedAt time.Time        `json:"createdAt"`
	State     commentary.State `json:"state"`
}

type queryResponse struct {
	Answer string           `json:"answer"`
	State  commentary.State `json:"state"`
}

func toResponse(s *Session) sessionResponse {
	return sessionResponse{ID: s.ID, CreatedAt: s.CreatedAt, State: s.Controller.State()}
}

func (h *Handler) create(c *gin.Context) {
	sess, err := h.Sessions.Create(c.Request.Context(), middleware.BearerTokenFromContext(c))
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to create session", nil)
		return
	}
	middleware.SetSessionID(c, sess.ID)
	respond.Created(c, toResponse(sess))
}

func (h *Handler) get(c *gin.Context) {
	sess, ok := h.load(c)
	if !ok {
		return
	}
	respond.OK(c, toResponse(sess))
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.Sessions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeLookupError(c, err)
		return
	}
	respond.NoContent(c)
}

type transcriptRequest struct {
	Transcript *string `json:"transcript"`
}

func (h *Handler) setTranscript(c *gin.Context) {
	sess, ok := h.load(c)
	if !ok {
		return
	}
	var req transcriptRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Transcript == nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "transcript is required", nil)
		return
	}
	h.mutate(c, sess, func() error { return sess.Controller.SetTranscript(*req.Transcript) })
}

func (h *Handler) resetTranscript(c *gin.Context) {
	sess, ok := h.load(c)
	if !ok {
		return
	}
	h.mutate(c, sess, sess.Controller.Reset)
}

func (h *Handler) loadSample(c *gin.Context) {
	sess, ok := h.load(c)
	if !ok {
		return
	}
	h.mutate(c, sess, sess.Controller.LoadSample)
}

func (h *Handler) upload(c *gin.Context) {
	sess, ok := h.load(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, transcripts.MaxUploadBytes+(1<<20))

	fileHeader, err := c.FormFile("file")
	if err != nil {
		if bodyTooLarge(err) {
			respond.Error(c, http.StatusRequestEntityTooLarge, "validation_error", "file is too large", nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	name, err := util.SanitizeFileName(fileHeader.Filename)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	text, err := transcripts.Load(c.Request.Context(), file, fileHeader.Header.Get("Content-Type"), name)
	if err != nil {
		switch {
		case errors.Is(err, transcripts.ErrTooLarge):
			respond.Error(c, http.StatusRequestEntityTooLarge, "validation_error", "file is too large", nil)
		case errors.Is(err, transcripts.ErrUnsupported), errors.Is(err, transcripts.ErrEmpty):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read transcript from file", gin.H{"reason": err.Error()})
		}
		return
	}
	telemetry.Info("session.transcript_uploaded", map[string]any{
		"session_id": sess.ID,
		"file_name":  name,
		"size_bytes": fileHeader.Size,
		"chars":      len(text),
	})
	h.mutate(c, sess, func() error { return sess.Controller.SetTranscript(text) })
}

// bodyTooLarge detects the http.MaxBytesReader limit. The multipart reader
// does not always wrap it, so the message is checked as well.
func bodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}

func (h *Handler) extract(c *gin.Context) {
	sess, ok := h.load(c)
	if !ok {
		return
	}
	start := time.Now()
	_, err := sess.Controller.Extract(c.Request.Context())
	h.finishCycle(c, sess, metrics.CycleExtract, err, start)
	if err != nil {
		h.writeCycleError(c, commentary.CycleExtract, err)
		return
	}
	respond.OK(c, toResponse(sess))
}

type queryRequest struct {
	Query string `json:"query"`
}

func (h *Handler) query(c *gin.Context) {
	sess, ok := h.load(c)
	if !ok {
		return
	}
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	start := time.Now()
	answer, err := sess.Controller.Ask(c.Request.Context(), req.Query)
	h.finishCycle(c, sess, metrics.CycleQuery, err, start)
	if err != nil {
		h.writeCycleError(c, commentary.CycleQuery, err)
		return
	}
	respond.OK(c, queryResponse{Answer: answer, State: sess.Controller.State()})
}

func (h *Handler) load(c *gin.Context) (*Session, bool) {
	sess, err := h.Sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeLookupError(c, err)
		return nil, false
	}
	middleware.SetSessionID(c, sess.ID)
	return sess, true
}

func (h *Handler) mutate(c *gin.Context, sess *Session, fn func() error) {
	if err := fn(); err != nil {
		h.writeCycleError(c, commentary.CycleExtract, err)
		return
	}
	h.persist(c, sess)
	respond.OK(c, toResponse(sess))
}

// PersistedHeader is set to "false" when a change was applied in memory but
// the snapshot could not be stored.
const PersistedHeader = "X-Session-Persisted"

func (h *Handler) persist(c *gin.Context, sess *Session) {
	if err := h.Sessions.Save(c.Request.Context(), sess); err != nil {
		c.Header(PersistedHeader, "false")
	}
}

func (h *Handler) finishCycle(c *gin.Context, sess *Session, cycle string, err error, start time.Time) {
	kind := commentary.KindOf(err)
	switch kind {
	case commentary.KindBusy:
		middleware.SetCycleOutcome(c, string(kind))
		return
	case "", commentary.KindAPI, commentary.KindFormat, commentary.KindTransport, commentary.KindUnknown:
		outcome := metrics.OutcomeOK
		if kind != "" {
			outcome = string(kind)
		}
		metrics.IncCycleStarted(cycle)
		metrics.ObserveCycle(cycle, outcome, time.Since(start))
		middleware.SetCycleOutcome(c, outcome)
	default:
		middleware.SetCycleOutcome(c, string(kind))
	}
	h.persist(c, sess)
}

func (h *Handler) writeLookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "session not found", nil)
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", "session id is required", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load session", nil)
	}
}

func (h *Handler) writeCycleError(c *gin.Context, cycle commentary.Cycle, err error) {
	message := commentary.UserMessage(cycle, err)
	kind := commentary.KindOf(err)
	details := gin.H{"kind": string(kind)}

	switch kind {
	case commentary.KindBusy:
		respond.Error(c, http.StatusConflict, "busy", message, details)
	case commentary.KindValidation:
		respond.Error(c, http.StatusBadRequest, "validation_error", message, details)
	case commentary.KindNotReady:
		respond.Error(c, http.StatusConflict, "not_ready", message, details)
	case commentary.KindConfig:
		respond.Error(c, http.StatusServiceUnavailable, "llm_not_configured", message, details)
	case commentary.KindAPI:
		var apiErr *llm.APIError
		if errors.As(err, &apiErr) {
			details["upstreamStatus"] = apiErr.StatusCode
		}
		respond.Error(c, http.StatusBadGateway, "llm_error", message, details)
	case commentary.KindFormat:
		respond.Error(c, http.StatusBadGateway, "invalid_llm_output", message, details)
	case commentary.KindTransport:
		respond.Error(c, http.StatusGatewayTimeout, "llm_unreachable", message, details)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", message, details)
	}
}
