package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nebulus-edge/intelligence/internal/apierr"
	"github.com/nebulus-edge/intelligence/internal/audit"
	"github.com/nebulus-edge/intelligence/internal/validate"
)

// handleDataUpload handles POST /data/upload: a multipart CSV file plus
// an optional table_name/template/primary_key_hint form field.
func (s *Server) handleDataUpload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		respondError(c, apierr.NewValidation("missing multipart field %q", "file"))
		return
	}
	file, err := header.Open()
	if err != nil {
		respondError(c, apierr.NewValidation("could not open uploaded file: %v", err))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		respondError(c, apierr.NewValidation("could not read uploaded file: %v", err))
		return
	}

	tableName := c.PostForm("table_name")
	if tableName == "" {
		tableName = validate.SanitizeTableName(trimExt(header.Filename))
	}
	template := c.PostForm("template")
	if template == "" {
		template = s.cfg.Template
	}
	primaryKeyHint := c.PostForm("primary_key_hint")

	result, err := s.ingest.IngestCSV(c.Request.Context(), content, tableName, template, primaryKeyHint)
	if err != nil {
		s.logAudit(c, audit.EventDataUpload, tableName, map[string]any{"error": err.Error()}, "failure")
		respondError(c, err)
		return
	}

	s.logAudit(c, audit.EventDataUpload, tableName, map[string]any{
		"rows_imported": result.RowsImported,
		"columns":       result.Columns,
	}, "success")
	if result.PIIReport != nil && result.PIIReport.HasPII() {
		s.logAudit(c, audit.EventPIIDetected, tableName, map[string]any{
			"columns": result.PIIReport.PIIColumns(),
		}, "success")
	}

	c.JSON(http.StatusOK, result)
}

func trimExt(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[:i]
		}
	}
	return name
}

// handleListTables handles GET /data/tables.
func (s *Server) handleListTables(c *gin.Context) {
	tables, err := s.relational.ListTables(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tables": tables})
}

// handleTableSchema handles GET /data/tables/{name}/schema.
func (s *Server) handleTableSchema(c *gin.Context) {
	name := c.Param("name")
	schema, err := s.relational.TableSchema(c.Request.Context(), name)
	if err != nil {
		respondError(c, err)
		return
	}
	s.logAudit(c, audit.EventSchemaView, name, nil, "success")
	c.JSON(http.StatusOK, schema)
}

// handleTablePreview handles GET /data/tables/{name}/preview?limit=.
func (s *Server) handleTablePreview(c *gin.Context) {
	name := c.Param("name")
	limit, err := validate.ParseLimitString(c.Query("limit"), validate.DefaultMaxLimit)
	if err != nil {
		respondError(c, err)
		return
	}
	rows, err := s.relational.Preview(c.Request.Context(), name, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	s.logAudit(c, audit.EventDataView, name, map[string]any{"limit": limit}, "success")
	c.JSON(http.StatusOK, gin.H{"table_name": name, "rows": rows})
}

// handleDeleteTable handles DELETE /data/tables/{name}.
func (s *Server) handleDeleteTable(c *gin.Context) {
	name := c.Param("name")
	if err := s.relational.DeleteTable(c.Request.Context(), name); err != nil {
		s.logAudit(c, audit.EventDataDelete, name, map[string]any{"error": err.Error()}, "failure")
		respondError(c, err)
		return
	}
	if s.vectors != nil {
		_, _ = s.vectors.DeleteCollection(c.Request.Context(), name)
	}
	s.logAudit(c, audit.EventDataDelete, name, nil, "success")
	c.Status(http.StatusNoContent)
}
