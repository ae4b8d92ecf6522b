package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	searchdomain "github.com/smallbiznis/catalogsync/internal/search/domain"
)

func (s *Server) Search(c *gin.Context) {
	req, err := parseSearchRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.searchSvc.Search(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("search_mode", resp.Mode)
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func parseSearchRequest(c *gin.Context) (searchdomain.Request, error) {
	req := searchdomain.NewRequest(c.Query("q"))

	flags := []struct {
		name   string
		target *bool
	}{
		{"in_stock", &req.InStock},
		{"strict_mode", &req.StrictMode},
		{"fallback", &req.Fallback},
	}
	for _, flag := range flags {
		value, err := parseOptionalBool(c.Query(flag.name))
		if err != nil {
			return req, newValidationError(flag.name, "invalid_"+flag.name, "must be true or false")
		}
		if value != nil {
			*flag.target = *value
		}
	}

	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		return req, searchdomain.ErrInvalidLimit
	}
	if limit != nil {
		req.Limit = *limit
	}

	offset, err := parseOptionalInt(c.Query("offset"))
	if err != nil {
		return req, searchdomain.ErrInvalidOffset
	}
	if offset != nil {
		req.Offset = *offset
	}

	if pricing := c.Query("pricing"); pricing != "" {
		req.Pricing = pricing
	}
	return req, nil
}
