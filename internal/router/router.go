package router

import (
	"github.com/gin-gonic/gin"

	"allad_backend_v1/internal/controller"
	"allad_backend_v1/internal/middleware"
	"allad_backend_v1/internal/model"
	"allad_backend_v1/internal/repository"
)

// InitRoutes 注册所有路由
func InitRoutes(r *gin.Engine,
	memberRepo repository.TeamMemberRepository,
	authCtl *controller.AuthController,
	teamCtl *controller.TeamController,
	platformCtl *controller.PlatformController,
	campaignCtl *controller.CampaignController,
	dashboardCtl *controller.DashboardController) {

	api := r.Group("/api")
	{
		// auth 鉴权组
		auth := api.Group("/auth")
		{
			auth.POST("/signup", authCtl.Signup)
			auth.POST("/login", authCtl.Login)
			auth.POST("/refresh", authCtl.RefreshToken)

			authed := auth.Group("", middleware.JWTAuth())
			{
				authed.GET("/me", authCtl.Me)
				authed.PUT("/password", authCtl.ChangePassword)
			}
		}

		// OAuth 回调，平台重定向，无登录态
		api.GET("/oauth/callback", platformCtl.Callback)

		// 登录后的全局接口
		authed := api.Group("", middleware.JWTAuth())
		{
			authed.GET("/teams", teamCtl.ListMyTeams)
			authed.POST("/invitations/accept", teamCtl.AcceptInvitation)

			// 团队路由组：统一做成员校验并注入角色
			team := authed.Group("/teams/:team_id", middleware.TeamMember(memberRepo))
			{
				team.GET("", teamCtl.GetTeam)
				team.PUT("", teamCtl.RenameTeam)
				team.POST("/leave", teamCtl.LeaveTeam)

				// 成员
				team.GET("/members", teamCtl.ListMembers)
				team.DELETE("/members/:user_id", teamCtl.RemoveMember)
				team.PUT("/members/:user_id/role", teamCtl.ChangeRole)

				// 邀请
				team.GET("/invitations", teamCtl.ListInvitations)
				team.POST("/invitations", teamCtl.InviteMember)
				team.DELETE("/invitations/:invitation_id", teamCtl.CancelInvitation)

				// 平台连接
				platforms := team.Group("/platforms",
					middleware.RequireTeamPermission(func(p model.RolePermission) bool { return p.CanViewReports }))
				{
					platforms.GET("", platformCtl.ListCredentials)
					platforms.POST("/connect", platformCtl.Connect)
					platforms.POST("/connect-keys", platformCtl.ConnectKeys)
					platforms.DELETE("/:credential_id", platformCtl.Disconnect)
				}

				// 广告系列
				campaigns := team.Group("/campaigns")
				{
					campaigns.GET("", campaignCtl.ListCampaigns)
					campaigns.GET("/:campaign_id/metrics", dashboardCtl.GetCampaignSeries)

					campaigns.POST("/sync",
						middleware.RequireTeamPermission(func(p model.RolePermission) bool { return p.CanManageCampaigns }),
						middleware.SyncRateLimit(middleware.SyncTypeCampaign, 0),
						campaignCtl.SyncCampaigns)
					campaigns.PUT("/:campaign_id/status",
						middleware.RequireTeamPermission(func(p model.RolePermission) bool { return p.CanManageCampaigns }),
						campaignCtl.SetStatus)
					campaigns.PUT("/:campaign_id/budget",
						middleware.RequireTeamPermission(func(p model.RolePermission) bool { return p.CanManageCampaigns }),
						campaignCtl.SetBudget)
				}

				// 报表
				dashboard := team.Group("/dashboard",
					middleware.RequireTeamPermission(func(p model.RolePermission) bool { return p.CanViewReports }))
				{
					dashboard.GET("", dashboardCtl.GetDashboard)
					dashboard.POST("/export", dashboardCtl.ExportDashboard)
				}
			}
		}
	}
}
