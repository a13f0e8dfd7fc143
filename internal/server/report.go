package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	reportdomain "github.com/smallbiznis/billbook/internal/report/domain"
)

func (s *Server) GetInvoiceStats(c *gin.Context) {
	var query reportdomain.StatsRequest
	if !bindQuery(c, &query) {
		return
	}

	resp, err := s.reportSvc.Stats(c.Request.Context(), query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
