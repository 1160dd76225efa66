package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"asset-audit/internal/gateway/middleware"
	"asset-audit/internal/services/audit/engine"
	"asset-audit/internal/services/audit/export"
	audit "asset-audit/internal/services/audit/handler"
	inventory "asset-audit/internal/services/inventory/handler"
	"asset-audit/internal/utils"
)

// AuditService is the audit backend the gateway talks to.
type AuditService interface {
	Compare(ctx context.Context, req audit.CompareRequest) (*audit.CompareResponse, error)
	ListAuditRuns(ctx context.Context, limit int, includeDetail bool) ([]engine.AuditRun, error)
	GetAuditRun(ctx context.Context, auditID string) (*engine.AuditRun, error)
	ListLocations(ctx context.Context) ([]inventory.Location, error)
}

// uploadFormOverhead is the room left for multipart boundaries, part headers
// and the text fields on top of the file itself.
const uploadFormOverhead = 64 << 10

func bodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

type AuditHTTPHandler struct {
	auditService   AuditService
	maxUploadBytes int64
	now            func() time.Time
}

func NewAuditHTTPHandler(auditService AuditService, maxUploadBytes int64) *AuditHTTPHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &AuditHTTPHandler{
		auditService:   auditService,
		maxUploadBytes: maxUploadBytes,
		now:            time.Now,
	}
}

type CompareRequest struct {
	Location    string   `json:"location" binding:"required"`
	Serials     []string `json:"serials"`
	AuditorName string   `json:"auditorName" binding:"required"`
}

// auditRunView adds the derived match rate to a run's detail response.
type auditRunView struct {
	engine.AuditRun
	MatchRate string `json:"matchRate"`
}

type UploadCompareForm struct {
	Location    string `form:"location" binding:"required"`
	AuditorName string `form:"auditorName" binding:"required"`
}

// Helper functions
func (s *AuditHTTPHandler) success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

func (s *AuditHTTPHandler) error(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   message,
	})
}

// statusError writes a service error with the HTTP code matching its gRPC code.
func (s *AuditHTTPHandler) statusError(c *gin.Context, err error) {
	st, _ := status.FromError(err)
	s.error(c, httpStatusFromCode(st.Code()), st.Message())
}

func httpStatusFromCode(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Canceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func parseLimitQuery(c *gin.Context) (int, error) {
	str := c.Query("limit")
	if str == "" {
		return audit.DefaultHistoryLimit, nil
	}
	val, err := strconv.Atoi(str)
	if err != nil || val <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	return audit.ClampLimit(val), nil
}

func auditorUserID(c *gin.Context) *int64 {
	claims := middleware.Claims(c)
	if claims == nil || claims.UserId == 0 {
		return nil
	}
	id := claims.UserId
	return &id
}

// Audit endpoints
func (s *AuditHTTPHandler) Compare(c *gin.Context) {
	var req CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.error(c, http.StatusBadRequest, utils.ValidationMessage(err))
		return
	}

	resp, err := s.auditService.Compare(c.Request.Context(), audit.CompareRequest{
		Location:      req.Location,
		Serials:       req.Serials,
		AuditorName:   req.AuditorName,
		AuditorUserID: auditorUserID(c),
	})
	if err != nil {
		s.statusError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// UploadCompare ingests a CSV or XLSX file server-side and runs the same
// comparison. The parsed serials are echoed so the client can retry without
// uploading again.
func (s *AuditHTTPHandler) UploadCompare(c *gin.Context) {
	// Cap the raw body before multipart parsing spools anything to disk.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadBytes+uploadFormOverhead)

	var form UploadCompareForm
	if err := c.ShouldBind(&form); err != nil {
		if bodyTooLarge(err) {
			s.error(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds %d bytes", s.maxUploadBytes))
			return
		}
		s.error(c, http.StatusBadRequest, utils.ValidationMessage(err))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		if bodyTooLarge(err) {
			s.error(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds %d bytes", s.maxUploadBytes))
			return
		}
		s.error(c, http.StatusBadRequest, "A serial file is required")
		return
	}
	if fileHeader.Size > s.maxUploadBytes {
		s.error(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds %d bytes", s.maxUploadBytes))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		s.error(c, http.StatusBadRequest, "Failed to read uploaded file: "+err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.maxUploadBytes+1))
	if err != nil {
		s.error(c, http.StatusBadRequest, "Failed to read uploaded file: "+err.Error())
		return
	}
	if int64(len(data)) > s.maxUploadBytes {
		s.error(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds %d bytes", s.maxUploadBytes))
		return
	}

	var serials []string
	switch strings.ToLower(filepath.Ext(fileHeader.Filename)) {
	case ".xlsx":
		serials, err = engine.ParseSerialsXLSX(bytes.NewReader(data))
		if err != nil {
			s.error(c, http.StatusBadRequest, err.Error())
			return
		}
	default:
		serials = engine.ParseSerials(string(data))
	}

	resp, err := s.auditService.Compare(c.Request.Context(), audit.CompareRequest{
		Location:      form.Location,
		Serials:       serials,
		AuditorName:   form.AuditorName,
		AuditorUserID: auditorUserID(c),
	})
	if err != nil {
		st, _ := status.FromError(err)
		c.JSON(httpStatusFromCode(st.Code()), gin.H{
			"success": false,
			"error":   st.Message(),
			"serials": serials,
		})
		return
	}

	resp.Serials = serials
	c.JSON(http.StatusOK, resp)
}

func (s *AuditHTTPHandler) History(c *gin.Context) {
	limit, err := parseLimitQuery(c)
	if err != nil {
		s.error(c, http.StatusBadRequest, err.Error())
		return
	}
	includeDetail, _ := strconv.ParseBool(c.Query("include_detail"))

	runs, err := s.auditService.ListAuditRuns(c.Request.Context(), limit, includeDetail)
	if err != nil {
		s.statusError(c, err)
		return
	}

	s.success(c, runs)
}

func (s *AuditHTTPHandler) ExportHistoryCSV(c *gin.Context) {
	limit, err := parseLimitQuery(c)
	if err != nil {
		s.error(c, http.StatusBadRequest, err.Error())
		return
	}

	runs, err := s.auditService.ListAuditRuns(c.Request.Context(), limit, false)
	if err != nil {
		s.statusError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteHistoryCSV(&buf, runs); err != nil {
		s.error(c, http.StatusInternalServerError, "Failed to export audit history: "+err.Error())
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.HistoryFilename(s.now())))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (s *AuditHTTPHandler) GetAuditRun(c *gin.Context) {
	run, err := s.auditService.GetAuditRun(c.Request.Context(), c.Param("auditId"))
	if err != nil {
		s.statusError(c, err)
		return
	}

	s.success(c, auditRunView{AuditRun: *run, MatchRate: run.MatchRate().StringFixed(2)})
}

func (s *AuditHTTPHandler) ExportAuditRun(c *gin.Context) {
	auditID := c.Param("auditId")
	run, err := s.auditService.GetAuditRun(c.Request.Context(), auditID)
	if err != nil {
		s.statusError(c, err)
		return
	}

	data, err := export.RunWorkbook(*run)
	if err != nil {
		s.error(c, http.StatusInternalServerError, "Failed to export audit run: "+err.Error())
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="audit-%s.xlsx"`, auditID))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// Location endpoints
func (s *AuditHTTPHandler) ListLocations(c *gin.Context) {
	locations, err := s.auditService.ListLocations(c.Request.Context())
	if err != nil {
		s.statusError(c, err)
		return
	}

	s.success(c, locations)
}
