package controller

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"allad_backend_v1/internal/api/dto"
	"allad_backend_v1/internal/middleware"
	"allad_backend_v1/internal/service"
)

// ==================== DashboardController 报表控制器 ====================

// DashboardController 报表控制器
type DashboardController struct {
	metricService *service.MetricService
	exportService *service.ExportService
}

// NewDashboardController 创建报表控制器
func NewDashboardController(metricService *service.MetricService, exportService *service.ExportService) *DashboardController {
	return &DashboardController{
		metricService: metricService,
		exportService: exportService,
	}
}

// ==================== 报表接口 ====================

// GetDashboard 汇总报表
// @Summary 대시보드 리포트
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Param team_id path int true "팀 ID"
// @Param platform query string false "플랫폼"
// @Param from query string false "시작일 (2006-01-02)"
// @Param to query string false "종료일 (2006-01-02)"
// @Success 200 {object} service.Dashboard
// @Router /teams/{team_id}/dashboard [get]
func (c *DashboardController) GetDashboard(ctx *gin.Context) {
	var req dto.DashboardRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "잘못된 요청입니다: " + err.Error(),
		})
		return
	}

	from, to, err := parseDateRange(req.From, req.To)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": err.Error(),
		})
		return
	}

	teamID := middleware.GetTeamID(ctx)
	dashboard, err := c.metricService.GetDashboard(ctx.Request.Context(), teamID, req.Platform, from, to)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code": 0,
		"data": dashboard,
	})
}

// GetCampaignSeries 单系列日指标
// @Summary 캠페인 일별 지표
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Param team_id path int true "팀 ID"
// @Param campaign_id path int true "캠페인 ID"
// @Success 200 {array} service.DailyReport
// @Router /teams/{team_id}/campaigns/{campaign_id}/metrics [get]
func (c *DashboardController) GetCampaignSeries(ctx *gin.Context) {
	campaignID, err := strconv.ParseInt(ctx.Param("campaign_id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "잘못된 캠페인 ID입니다",
		})
		return
	}

	var req dto.CampaignSeriesRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "잘못된 요청입니다: " + err.Error(),
		})
		return
	}

	from, to, err := parseDateRange(req.From, req.To)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": err.Error(),
		})
		return
	}

	teamID := middleware.GetTeamID(ctx)
	series, err := c.metricService.GetCampaignSeries(ctx.Request.Context(), teamID, campaignID, from, to)
	if err != nil {
		respondCampaignError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code": 0,
		"data": series,
	})
}

// ExportDashboard 导出 CSV
// @Summary 리포트 CSV 내보내기
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Param team_id path int true "팀 ID"
// @Success 200 {object} service.ExportResult
// @Router /teams/{team_id}/dashboard/export [post]
func (c *DashboardController) ExportDashboard(ctx *gin.Context) {
	var req dto.ExportRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "잘못된 요청입니다: " + err.Error(),
		})
		return
	}

	from, to, err := parseDateRange(req.From, req.To)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": err.Error(),
		})
		return
	}

	teamID := middleware.GetTeamID(ctx)
	result, err := c.exportService.ExportDashboardCSV(ctx.Request.Context(), teamID, req.Platform, from, to)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"code":    500,
			"message": err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "내보내기가 완료되었습니다",
		"data":    result,
	})
}

// ==================== 内部方法 ====================

// parseDateRange 解析日期区间，缺省最近 7 天
func parseDateRange(fromStr, toStr string) (time.Time, time.Time, error) {
	now := time.Now().Truncate(24 * time.Hour)
	from := now.AddDate(0, 0, -7)
	to := now

	var err error
	if fromStr != "" {
		from, err = time.Parse("2006-01-02", fromStr)
		if err != nil {
			return from, to, errDateFormat
		}
	}
	if toStr != "" {
		to, err = time.Parse("2006-01-02", toStr)
		if err != nil {
			return from, to, errDateFormat
		}
	}
	if to.Before(from) {
		return from, to, errDateOrder
	}
	return from, to, nil
}

type dateError string

func (e dateError) Error() string { return string(e) }

const (
	errDateFormat dateError = "날짜 형식이 올바르지 않습니다 (2006-01-02)"
	errDateOrder  dateError = "종료일은 시작일보다 빠를 수 없습니다"
)
