package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	partydomain "github.com/smallbiznis/billbook/internal/party/domain"
)

func (s *Server) CreateParty(c *gin.Context) {
	var req partydomain.CreatePartyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.partySvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListParties(c *gin.Context) {
	var query partydomain.ListPartyRequest
	if !bindQuery(c, &query) {
		return
	}

	resp, err := s.partySvc.List(c.Request.Context(), query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Parties, "page_info": resp.PageInfo})
}

func (s *Server) GetPartyByID(c *gin.Context) {
	id, ok := requireIDParam(c)
	if !ok {
		return
	}

	resp, err := s.partySvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
