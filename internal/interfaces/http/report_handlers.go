package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/invoiceai/invoiceai-server/internal/auth"
	"github.com/invoiceai/invoiceai-server/internal/models"
)

// Dashboard handles GET /api/reports/dashboard.
func (h *Handlers) Dashboard(c *gin.Context) {
	dashboard, err := h.reportService.Dashboard(c.Request.Context(), auth.OrgID(c), time.Now().UTC())
	if err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, dashboard)
}

// TaxSummary handles GET /api/reports/tax-summary. Defaults to the current
// calendar year when no range is given.
func (h *Handlers) TaxSummary(c *gin.Context) {
	now := time.Now().UTC()
	from := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	to := now

	var err error
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(models.DateLayout, v); err != nil {
			badRequest(c, "invalid from, expected YYYY-MM-DD")
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(models.DateLayout, v); err != nil {
			badRequest(c, "invalid to, expected YYYY-MM-DD")
			return
		}
	}

	summary, err := h.reportService.TaxSummary(c.Request.Context(), auth.OrgID(c), from, to)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, summary)
}

// ExportExpenses handles POST /api/reports/export. The export is either
// streamed back or emailed, depending on the "email" flag.
func (h *Handlers) ExportExpenses(c *gin.Context) {
	var req struct {
		Format    string `json:"format"`
		Email     bool   `json:"email"`
		Recipient string `json:"recipient"`
		DateFrom  string `json:"date_from"`
		DateTo    string `json:"date_to"`
		Status    string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload: "+err.Error())
		return
	}
	if req.Format == "" {
		req.Format = "csv"
	}
	if req.Format != "csv" && req.Format != "xlsx" {
		badRequest(c, "format must be csv or xlsx")
		return
	}

	filter, err := parseExpenseFilter(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	filter.Status = req.Status
	if req.DateFrom != "" {
		t, err := time.Parse(models.DateLayout, req.DateFrom)
		if err != nil {
			badRequest(c, "invalid date_from, expected YYYY-MM-DD")
			return
		}
		filter.DateFrom = &t
	}
	if req.DateTo != "" {
		t, err := time.Parse(models.DateLayout, req.DateTo)
		if err != nil {
			badRequest(c, "invalid date_to, expected YYYY-MM-DD")
			return
		}
		filter.DateTo = &t
	}

	orgID := auth.OrgID(c)

	if req.Email {
		recipient := req.Recipient
		if recipient == "" {
			user, err := h.authService.User(c.Request.Context(), auth.UserID(c))
			if err != nil {
				h.respondErr(c, err)
				return
			}
			recipient = user.Email
		}
		if err := h.exporter.EmailExport(c.Request.Context(), orgID, filter, req.Format, recipient); err != nil {
			h.respondErr(c, err)
			return
		}
		c.JSON(http.StatusAccepted, Response{Success: true, Data: gin.H{"recipient": recipient}})
		return
	}

	var data []byte
	var contentType string
	switch req.Format {
	case "csv":
		data, _, err = h.exporter.ExportCSV(c.Request.Context(), orgID, filter)
		contentType = "text/csv"
	case "xlsx":
		data, _, err = h.exporter.ExportXLSX(c.Request.Context(), orgID, filter)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		h.respondErr(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="expenses.%s"`, req.Format))
	c.Data(http.StatusOK, contentType, data)
}
