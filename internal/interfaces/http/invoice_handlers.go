package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/invoiceai/invoiceai-server/internal/auth"
)

// UploadInvoice handles POST /api/invoices (multipart form, field "file").
func (h *Handlers) UploadInvoice(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "missing file")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		badRequest(c, "unreadable file")
		return
	}
	defer file.Close()

	inv, err := h.invoiceService.Upload(c.Request.Context(),
		auth.OrgID(c), auth.UserID(c),
		fileHeader.Filename, fileHeader.Size, file)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusAccepted, Response{Success: true, Data: inv})
}

// ListInvoices handles GET /api/invoices.
func (h *Handlers) ListInvoices(c *gin.Context) {
	limit, offset := pagination(c)
	invoices, total, err := h.invoiceService.List(c.Request.Context(),
		auth.OrgID(c), c.Query("status"), limit, offset)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, ListResponse{Items: invoices, Total: total})
}

// GetInvoice handles GET /api/invoices/:id.
func (h *Handlers) GetInvoice(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	detail, err := h.invoiceService.Get(c.Request.Context(), auth.OrgID(c), id)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, detail)
}

// InvoiceDownloadURL handles GET /api/invoices/:id/download.
func (h *Handlers) InvoiceDownloadURL(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	url, err := h.invoiceService.DownloadURL(c.Request.Context(), auth.OrgID(c), id)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, gin.H{"url": url})
}

// ReprocessInvoice handles POST /api/invoices/:id/reprocess.
func (h *Handlers) ReprocessInvoice(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	inv, err := h.invoiceService.Reprocess(c.Request.Context(), auth.OrgID(c), id)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusAccepted, Response{Success: true, Data: inv})
}

// DeleteInvoice handles DELETE /api/invoices/:id.
func (h *Handlers) DeleteInvoice(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	if err := h.invoiceService.Delete(c.Request.Context(), auth.OrgID(c), id); err != nil {
		h.respondErr(c, err)
		return
	}
	ok(c, nil)
}
