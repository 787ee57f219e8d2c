package dto

// ==================== 报表 ====================

// DashboardRequest 汇总报表查询参数
// 日期格式 2006-01-02，缺省为最近 7 天
type DashboardRequest struct {
	Platform string `form:"platform" binding:"omitempty"`
	From     string `form:"from" binding:"omitempty,datetime=2006-01-02"`
	To       string `form:"to" binding:"omitempty,datetime=2006-01-02"`
}

// CampaignSeriesRequest 单系列日指标查询参数
type CampaignSeriesRequest struct {
	From string `form:"from" binding:"omitempty,datetime=2006-01-02"`
	To   string `form:"to" binding:"omitempty,datetime=2006-01-02"`
}

// ExportRequest 导出请求参数
type ExportRequest struct {
	Platform string `form:"platform" binding:"omitempty"`
	From     string `form:"from" binding:"omitempty,datetime=2006-01-02"`
	To       string `form:"to" binding:"omitempty,datetime=2006-01-02"`
}
