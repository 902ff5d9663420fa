package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invoiceai/invoiceai-server/internal/assistant"
	"github.com/invoiceai/invoiceai-server/internal/auth"
	"github.com/invoiceai/invoiceai-server/internal/budget"
	"github.com/invoiceai/invoiceai-server/internal/expense"
	"github.com/invoiceai/invoiceai-server/internal/invoice"
	"github.com/invoiceai/invoiceai-server/internal/policy"
	"github.com/invoiceai/invoiceai-server/internal/recurring"
	"github.com/invoiceai/invoiceai-server/internal/report"
	"github.com/invoiceai/invoiceai-server/internal/repository"
	"github.com/invoiceai/invoiceai-server/internal/storage"
	"github.com/invoiceai/invoiceai-server/internal/vendor"
)

// Handlers contains all HTTP request handlers.
type Handlers struct {
	authService      *auth.Service
	invoiceService   *invoice.Service
	expenseService   *expense.Service
	categories       *repository.CategoryRepository
	vendorService    *vendor.Service
	policyService    *policy.Service
	budgetService    *budget.Service
	recurringService *recurring.Service
	reportService    *report.Service
	exporter         *report.Exporter
	assistantService *assistant.Service
	store            storage.Store
	logger           *zap.Logger
}

func NewHandlers(
	authService *auth.Service,
	invoiceService *invoice.Service,
	expenseService *expense.Service,
	categories *repository.CategoryRepository,
	vendorService *vendor.Service,
	policyService *policy.Service,
	budgetService *budget.Service,
	recurringService *recurring.Service,
	reportService *report.Service,
	exporter *report.Exporter,
	assistantService *assistant.Service,
	store storage.Store,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		authService:      authService,
		invoiceService:   invoiceService,
		expenseService:   expenseService,
		categories:       categories,
		vendorService:    vendorService,
		policyService:    policyService,
		budgetService:    budgetService,
		recurringService: recurringService,
		reportService:    reportService,
		exporter:         exporter,
		assistantService: assistantService,
		store:            store,
		logger:           logger,
	}
}

// Response is the standard JSON envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ListResponse wraps paginated collections.
type ListResponse struct {
	Items interface{} `json:"items"`
	Total int64       `json:"total"`
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, Response{Success: false, Error: msg})
}

func badRequest(c *gin.Context, msg string) {
	fail(c, http.StatusBadRequest, msg)
}

// respondErr maps domain errors onto HTTP statuses. Unrecognized errors
// return 500 with a generic message so internals do not leak.
func (h *Handlers) respondErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, expense.ErrInvalidInput),
		errors.Is(err, policy.ErrInvalidInput),
		errors.Is(err, budget.ErrInvalidInput),
		errors.Is(err, recurring.ErrInvalidInput):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		fail(c, http.StatusNotFound, "not found")
	case errors.Is(err, expense.ErrNotReviewable):
		fail(c, http.StatusConflict, "expense is not awaiting review")
	case errors.Is(err, invoice.ErrUnsupportedType):
		fail(c, http.StatusBadRequest, "unsupported file type")
	case errors.Is(err, invoice.ErrTooLarge):
		fail(c, http.StatusBadRequest, "file exceeds the upload size limit")
	case errors.Is(err, auth.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrEmailTaken):
		fail(c, http.StatusConflict, "email already registered")
	case errors.Is(err, auth.ErrNotMember):
		fail(c, http.StatusForbidden, "not a member of this organization")
	default:
		h.logger.Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		fail(c, http.StatusInternalServerError, "internal error")
	}
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.Query("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset, _ = strconv.Atoi(c.Query("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// HealthCheck handles GET /health.
func (h *Handlers) HealthCheck(c *gin.Context) {
	ok(c, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// DownloadFile handles GET /api/files/*key. Authorization is the signed
// query, not a bearer token, so links can be opened directly.
func (h *Handlers) DownloadFile(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	expires := c.Query("expires")
	sig := c.Query("sig")

	if err := h.store.VerifySignature(key, expires, sig); err != nil {
		fail(c, http.StatusForbidden, "invalid or expired link")
		return
	}

	data, err := h.store.Get(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			fail(c, http.StatusNotFound, "file not found")
			return
		}
		h.respondErr(c, err)
		return
	}

	fileName := key
	if i := strings.LastIndex(key, "/"); i >= 0 {
		fileName = key[i+1:]
	}
	c.Header("Content-Disposition", `attachment; filename="`+fileName+`"`)
	c.Data(http.StatusOK, "application/octet-stream", data)
}
