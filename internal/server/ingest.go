package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/catalogsync/internal/config"
	ingestdomain "github.com/smallbiznis/catalogsync/internal/ingest/domain"
	"github.com/smallbiznis/catalogsync/internal/observability/logger"
	"go.uber.org/zap"
)

// RunAllIngest reloads every enabled supplier. Individual failures are
// reported in the summaries, not as an HTTP error.
func (s *Server) RunAllIngest(c *gin.Context) {
	ctx := c.Request.Context()
	summaries, err := s.ingestSvc.RunAll(ctx)
	if err != nil {
		logger.FromContext(ctx).Warn("admin reload finished with failures", zap.Error(err))
	}
	if summaries == nil {
		summaries = []ingestdomain.Summary{}
	}
	c.JSON(http.StatusOK, gin.H{"data": summaries})
}

func (s *Server) RunSupplierIngest(c *gin.Context) {
	supplierID, ok := parseSupplierID(c.Param("supplier_id"))
	if !ok {
		AbortWithError(c, newValidationError("supplier_id", "invalid_supplier_id", "invalid supplier id"))
		return
	}

	ctx := c.Request.Context()
	summary, err := s.ingestSvc.Run(ctx, supplierID)
	if err != nil && summary == nil {
		AbortWithError(c, err)
		return
	}
	if err != nil {
		logger.FromContext(ctx).Warn("admin supplier run failed", zap.Int64("supplier_id", supplierID), zap.Error(err))
		_ = c.Error(err)
		status, payload := mapError(err)
		c.JSON(status, gin.H{"data": summary, "error": payload})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) ListIngestRuns(c *gin.Context) {
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		AbortWithError(c, ingestdomain.ErrInvalidLimit)
		return
	}
	req := ingestdomain.ListRunsRequest{}
	if limit != nil {
		req.Limit = *limit
	}
	if raw := c.Query("supplier_id"); raw != "" {
		supplierID, ok := parseSupplierID(raw)
		if !ok {
			AbortWithError(c, newValidationError("supplier_id", "invalid_supplier_id", "invalid supplier id"))
			return
		}
		req.SupplierID = supplierID
	}

	runs, err := s.ingestSvc.ListRuns(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if runs == nil {
		runs = []ingestdomain.Run{}
	}
	c.JSON(http.StatusOK, gin.H{"data": runs})
}

func (s *Server) ListSuppliers(c *gin.Context) {
	if s.suppliers == nil {
		AbortWithError(c, errors.Join(ErrServiceUnavailable, errors.New("supplier registry not loaded")))
		return
	}
	all := s.suppliers.All()
	out := make([]config.SupplierConfig, 0, len(all))
	for _, supplier := range all {
		out = append(out, supplier.Redacted())
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}
