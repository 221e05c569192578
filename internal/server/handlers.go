package server

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/KaramelBytes/callreport-cli/internal/parser"
	"github.com/KaramelBytes/callreport-cli/internal/pipeline"
	"github.com/KaramelBytes/callreport-cli/internal/report"
	"github.com/KaramelBytes/callreport-cli/internal/utils"
)

const (
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypeProm = "text/plain; version=0.0.4; charset=utf-8"
)

var formats = map[string]bool{"": true, "json": true, "xlsx": true, "csv": true, "md": true, "prom": true}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleReport runs the pipeline over the multipart "file" field.
//
// Query: group_by (repeatable or comma-separated), period, filter
// (repeatable key=v1,v2), sheet (name or 1-based index), delimiter,
// clean=true to include clean rows in JSON, format=json|xlsx|csv|md|prom.
func (s *Server) handleReport(c *gin.Context) {
	format := strings.ToLower(c.Query("format"))
	if !formats[format] {
		abort(c, http.StatusBadRequest, fmt.Sprintf("unsupported format %q (use json, xlsx, csv, md or prom)", format), nil)
		return
	}
	popt, err := parserOptions(c)
	if err != nil {
		abort(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	groupBy := c.QueryArray("group_by")
	if len(groupBy) == 0 {
		groupBy = s.cfg.GroupBy
	}
	period := c.Query("period")
	if period == "" {
		period = s.cfg.Period
	}
	req, err := pipeline.ParseRequest(groupBy, period, c.QueryArray("filter"))
	if err != nil {
		abort(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	req.TopN = s.cfg.TopN

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		_ = c.Error(err)
		if tooLarge(err) {
			abort(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", s.cfg.MaxUploadBytes), nil)
			return
		}
		abort(c, http.StatusBadRequest, "multipart field \"file\" is required", nil)
		return
	}
	defer file.Close()

	raw, err := parser.Parse(file, header.Filename, popt)
	if err != nil {
		_ = c.Error(err)
		if tooLarge(err) {
			abort(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", s.cfg.MaxUploadBytes), nil)
			return
		}
		abort(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	res, err := pipeline.Run(raw, req, s.cfg.Options)
	if err != nil {
		_ = c.Error(err)
		s.pipelineError(c, err)
		return
	}

	base := utils.BaseName(header.Filename)
	switch format {
	case "", "json":
		b, err := report.JSON(res, c.Query("clean") == "true")
		if err != nil {
			s.internal(c, err)
			return
		}
		c.Data(http.StatusOK, "application/json; charset=utf-8", b)
	case "xlsx":
		var buf bytes.Buffer
		if err := report.WriteXLSX(&buf, res, s.cfg.XLSX); err != nil {
			s.internal(c, err)
			return
		}
		attachment(c, base+".xlsx")
		c.Data(http.StatusOK, contentTypeXLSX, buf.Bytes())
	case "csv":
		var buf bytes.Buffer
		if err := report.WriteMetricsCSV(&buf, res.Metrics); err != nil {
			s.internal(c, err)
			return
		}
		attachment(c, base+"_metrics.csv")
		c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
	case "md":
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(report.Markdown(res)))
	case "prom":
		var buf bytes.Buffer
		if err := report.WritePrometheus(&buf, res); err != nil {
			s.internal(c, err)
			return
		}
		c.Data(http.StatusOK, contentTypeProm, buf.Bytes())
	}
}

// pipelineError maps typed pipeline errors onto 422 responses.
func (s *Server) pipelineError(c *gin.Context, err error) {
	var se *pipeline.SchemaError
	var ee *pipeline.EmptyResultError
	switch {
	case errors.As(err, &se):
		abort(c, http.StatusUnprocessableEntity, se.Error(), gin.H{
			"missing":   se.Missing,
			"duplicate": se.Duplicate,
		})
	case errors.As(err, &ee):
		abort(c, http.StatusUnprocessableEntity, "no usable data", gin.H{
			"detail":     ee.Error(),
			"rejections": ee.Report,
		})
	default:
		abort(c, http.StatusBadRequest, err.Error(), nil)
	}
}

func (s *Server) internal(c *gin.Context, err error) {
	_ = c.Error(err)
	abort(c, http.StatusInternalServerError, "failed to render report", nil)
}

func parserOptions(c *gin.Context) (parser.Options, error) {
	var opt parser.Options
	if sheet := c.Query("sheet"); sheet != "" {
		if n, err := strconv.Atoi(sheet); err == nil {
			opt.SheetIndex = n
		} else {
			opt.SheetName = sheet
		}
	}
	switch d := c.Query("delimiter"); {
	case d == "":
	case d == "tab" || d == `\t`:
		opt.Delimiter = '\t'
	case utf8.RuneCountInString(d) == 1:
		opt.Delimiter, _ = utf8.DecodeRuneInString(d)
	default:
		return opt, fmt.Errorf("invalid delimiter %q", d)
	}
	return opt, nil
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large")
}

func attachment(c *gin.Context, name string) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
}
