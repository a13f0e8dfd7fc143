package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/billbook/internal/auditcontext"
)

// ListInvoiceAuditLogs serves the owner's history for an invoice, deleted or not.
func (s *Server) ListInvoiceAuditLogs(c *gin.Context) {
	id, ok := requireIDParam(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	ownerID, _ := auditcontext.ActorUserIDFromContext(ctx)
	logs, err := s.auditSvc.List(ctx, ownerID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// No history for this owner: either the invoice is theirs and its entries
	// are still queued, or it is not theirs at all.
	if len(logs) == 0 {
		if _, err := s.invoiceSvc.GetByID(ctx, id); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": logs})
}
