package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"allad_backend_v1/internal/controller"
	"allad_backend_v1/internal/model"
	"allad_backend_v1/internal/platform"
	"allad_backend_v1/internal/repository"
	"allad_backend_v1/internal/router"
	"allad_backend_v1/internal/service"
	"allad_backend_v1/pkg/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ==================== 集成测试套件 ====================

type IntegrationSuite struct {
	DB     *gorm.DB
	Router *gin.Engine
	T      *testing.T
}

func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("连接数据库失败: %v", err)
	}

	// 迁移所有模型
	err = db.AutoMigrate(
		&model.Profile{},
		&model.Team{},
		&model.TeamMember{},
		&model.TeamInvitation{},
		&model.PlatformCredential{},
		&model.Campaign{},
		&model.CampaignMetric{},
	)
	if err != nil {
		t.Fatalf("数据库迁移失败: %v", err)
	}

	// 完整依赖链：repo -> service -> controller -> router
	profileRepo := repository.NewProfileRepository(db)
	teamRepo := repository.NewTeamRepository(db)
	memberRepo := repository.NewTeamMemberRepository(db)
	invitationRepo := repository.NewInvitationRepository(db)
	credentialRepo := repository.NewCredentialRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	metricRepo := repository.NewMetricRepository(db)

	// Key 录入型平台不走网络，集成测试里可以直接用真实客户端
	registry := platform.NewRegistry(platform.NewNaverClient(), platform.NewCoupangClient())

	authSvc := service.NewAuthService(profileRepo, teamRepo, db)
	teamSvc := service.NewTeamService(teamRepo, memberRepo, invitationRepo, profileRepo, db)
	oauthSvc := service.NewOAuthService(credentialRepo, memberRepo, registry, utils.NewStateCache(time.Minute))
	campaignSvc := service.NewCampaignService(campaignRepo, credentialRepo, memberRepo, registry)
	metricSvc := service.NewMetricService(metricRepo, campaignRepo, credentialRepo, registry)

	r := gin.New()
	r.Use(gin.Recovery())
	router.InitRoutes(r,
		memberRepo,
		controller.NewAuthController(authSvc),
		controller.NewTeamController(teamSvc),
		controller.NewPlatformController(oauthSvc),
		controller.NewCampaignController(campaignSvc),
		controller.NewDashboardController(metricSvc, nil),
	)

	return &IntegrationSuite{DB: db, Router: r, T: t}
}

// request 发送 JSON 请求，token 为空时不带认证头
func (s *IntegrationSuite) request(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	s.T.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			s.T.Fatalf("请求序列化失败: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	return w
}

// data 解析响应 body 的 data 字段
func (s *IntegrationSuite) data(w *httptest.ResponseRecorder, out interface{}) {
	s.T.Helper()
	var envelope struct {
		Code int             `json:"code"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		s.T.Fatalf("响应解析失败: %v body=%s", err, w.Body.String())
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			s.T.Fatalf("data 解析失败: %v", err)
		}
	}
}

// signupAndLogin 注册并登录，返回 access token 和用户 ID
func (s *IntegrationSuite) signupAndLogin(email, password, name string) (string, int64) {
	s.T.Helper()

	w := s.request("POST", "/api/auth/signup", "", gin.H{
		"email": email, "password": password, "full_name": name,
	})
	if w.Code != http.StatusOK {
		s.T.Fatalf("注册失败: %d %s", w.Code, w.Body.String())
	}

	w = s.request("POST", "/api/auth/login", "", gin.H{
		"email": email, "password": password,
	})
	if w.Code != http.StatusOK {
		s.T.Fatalf("登录失败: %d %s", w.Code, w.Body.String())
	}

	var login struct {
		AccessToken string `json:"access_token"`
		User        struct {
			ID int64 `json:"id"`
		} `json:"user"`
	}
	s.data(w, &login)
	return login.AccessToken, login.User.ID
}

// myTeamID 当前用户的第一个团队
func (s *IntegrationSuite) myTeamID(token string) int64 {
	s.T.Helper()
	w := s.request("GET", "/api/teams", token, nil)
	if w.Code != http.StatusOK {
		s.T.Fatalf("团队列表失败: %d", w.Code)
	}
	var teams []struct {
		ID int64 `json:"id"`
	}
	s.data(w, &teams)
	if len(teams) == 0 {
		s.T.Fatalf("用户没有团队")
	}
	return teams[0].ID
}

// ==================== 认证模块 ====================

func TestIntegration_AuthModule(t *testing.T) {
	suite := NewIntegrationSuite(t)

	t.Run("SignupCreatesDefaultTeam", func(t *testing.T) {
		w := suite.request("POST", "/api/auth/signup", "", gin.H{
			"email": "master@example.com", "password": "password1", "full_name": "김대표",
		})
		if w.Code != http.StatusOK {
			t.Fatalf("注册失败: %d %s", w.Code, w.Body.String())
		}

		var resp struct {
			Team struct {
				Name   string `json:"name"`
				MyRole string `json:"my_role"`
			} `json:"team"`
		}
		suite.data(w, &resp)
		if resp.Team.Name != "김대표의 팀" {
			t.Errorf("默认团队名 = %s", resp.Team.Name)
		}
		if resp.Team.MyRole != "master" {
			t.Errorf("my_role = %s, want master", resp.Team.MyRole)
		}
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		w := suite.request("POST", "/api/auth/signup", "", gin.H{
			"email": "master@example.com", "password": "password2", "full_name": "다른사람",
		})
		if w.Code != http.StatusConflict {
			t.Errorf("重复邮箱应返回 409, got %d", w.Code)
		}
	})

	t.Run("LoginWrongPassword", func(t *testing.T) {
		w := suite.request("POST", "/api/auth/login", "", gin.H{
			"email": "master@example.com", "password": "wrong-password",
		})
		if w.Code != http.StatusUnauthorized {
			t.Errorf("密码错误应返回 401, got %d", w.Code)
		}
	})

	t.Run("ProtectedRouteWithoutToken", func(t *testing.T) {
		w := suite.request("GET", "/api/teams", "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("未登录应返回 401, got %d", w.Code)
		}
	})

	t.Run("MeEndpoint", func(t *testing.T) {
		w := suite.request("POST", "/api/auth/login", "", gin.H{
			"email": "master@example.com", "password": "password1",
		})
		var login struct {
			AccessToken string `json:"access_token"`
		}
		suite.data(w, &login)

		w = suite.request("GET", "/api/auth/me", login.AccessToken, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("me 接口失败: %d", w.Code)
		}
		var me struct {
			Email string `json:"email"`
		}
		suite.data(w, &me)
		if me.Email != "master@example.com" {
			t.Errorf("email = %s", me.Email)
		}
	})
}

// ==================== 团队与邀请模块 ====================

func TestIntegration_TeamInvitationFlow(t *testing.T) {
	suite := NewIntegrationSuite(t)

	masterToken, _ := suite.signupAndLogin("owner@example.com", "password1", "팀장")
	inviteeToken, _ := suite.signupAndLogin("mate@example.com", "password1", "팀원")
	teamID := suite.myTeamID(masterToken)

	var inviteToken string

	t.Run("MasterInvites", func(t *testing.T) {
		w := suite.request("POST", fmt.Sprintf("/api/teams/%d/invitations", teamID), masterToken, gin.H{
			"email": "mate@example.com", "role": "team_mate",
		})
		if w.Code != http.StatusOK {
			t.Fatalf("邀请失败: %d %s", w.Code, w.Body.String())
		}
		var inv struct {
			Token  string `json:"token"`
			Status string `json:"status"`
		}
		suite.data(w, &inv)
		if inv.Token == "" {
			t.Fatalf("创建响应应包含 token")
		}
		inviteToken = inv.Token
	})

	t.Run("ListDoesNotEchoToken", func(t *testing.T) {
		w := suite.request("GET", fmt.Sprintf("/api/teams/%d/invitations", teamID), masterToken, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("邀请列表失败: %d", w.Code)
		}
		var invs []struct {
			Token string `json:"token"`
		}
		suite.data(w, &invs)
		if len(invs) != 1 {
			t.Fatalf("邀请数 = %d, want 1", len(invs))
		}
		if invs[0].Token != "" {
			t.Errorf("列表不应回显 token")
		}
	})

	t.Run("InviteeAccepts", func(t *testing.T) {
		w := suite.request("POST", "/api/invitations/accept", inviteeToken, gin.H{
			"token": inviteToken,
		})
		if w.Code != http.StatusOK {
			t.Fatalf("接受邀请失败: %d %s", w.Code, w.Body.String())
		}

		// token 一次性使用
		w = suite.request("POST", "/api/invitations/accept", inviteeToken, gin.H{
			"token": inviteToken,
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("token 复用应返回 400, got %d", w.Code)
		}
	})

	t.Run("MemberList", func(t *testing.T) {
		w := suite.request("GET", fmt.Sprintf("/api/teams/%d/members", teamID), masterToken, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("成员列表失败: %d", w.Code)
		}
		var members []struct {
			Role string `json:"role"`
		}
		suite.data(w, &members)
		if len(members) != 2 {
			t.Errorf("成员数 = %d, want 2", len(members))
		}
	})

	t.Run("TeamMateCannotInviteTeamMate", func(t *testing.T) {
		w := suite.request("POST", fmt.Sprintf("/api/teams/%d/invitations", teamID), inviteeToken, gin.H{
			"email": "third@example.com", "role": "team_mate",
		})
		if w.Code != http.StatusForbidden {
			t.Errorf("team_mate 邀请 team_mate 应返回 403, got %d", w.Code)
		}
	})

	t.Run("TeamMateCannotRename", func(t *testing.T) {
		w := suite.request("PUT", fmt.Sprintf("/api/teams/%d", teamID), inviteeToken, gin.H{
			"name": "새 이름",
		})
		if w.Code != http.StatusForbidden {
			t.Errorf("team_mate 改名应返回 403, got %d", w.Code)
		}
	})

	t.Run("NonMemberGetsNotFound", func(t *testing.T) {
		outsiderToken, _ := suite.signupAndLogin("outsider@example.com", "password1", "외부인")
		w := suite.request("GET", fmt.Sprintf("/api/teams/%d", teamID), outsiderToken, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("非成员访问应返回 404, got %d", w.Code)
		}
	})

	t.Run("MasterCannotLeave", func(t *testing.T) {
		w := suite.request("POST", fmt.Sprintf("/api/teams/%d/leave", teamID), masterToken, nil)
		if w.Code != http.StatusForbidden {
			t.Errorf("master 退出应返回 403, got %d", w.Code)
		}
	})
}

// ==================== 平台连接模块 ====================

func TestIntegration_PlatformModule(t *testing.T) {
	suite := NewIntegrationSuite(t)

	masterToken, _ := suite.signupAndLogin("ads@example.com", "password1", "광고주")
	teamID := suite.myTeamID(masterToken)

	var credID int64

	t.Run("ConnectNaverWithKeys", func(t *testing.T) {
		w := suite.request("POST", fmt.Sprintf("/api/teams/%d/platforms/connect-keys", teamID), masterToken, gin.H{
			"platform":   "naver",
			"account_id": "cust-100",
			"api_key":    "naver-api-key",
			"extra":      gin.H{"secret_key": "naver-secret"},
		})
		if w.Code != http.StatusOK {
			t.Fatalf("naver 连接失败: %d %s", w.Code, w.Body.String())
		}

		var cred struct {
			ID          int64  `json:"id"`
			Platform    string `json:"platform"`
			TokenStatus string `json:"token_status"`
		}
		suite.data(w, &cred)
		if cred.Platform != "naver" || cred.TokenStatus != "valid" {
			t.Errorf("凭证信息错误: %+v", cred)
		}
		credID = cred.ID

		// Token 本体不出接口
		var raw map[string]interface{}
		suite.data(w, &raw)
		if _, ok := raw["access_token"]; ok {
			t.Errorf("响应不应包含 access_token")
		}
	})

	t.Run("OAuthPlatformRejectsKeys", func(t *testing.T) {
		w := suite.request("POST", fmt.Sprintf("/api/teams/%d/platforms/connect-keys", teamID), masterToken, gin.H{
			"platform": "google", "account_id": "acc", "api_key": "key",
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("google 密钥录入应返回 400, got %d", w.Code)
		}
	})

	t.Run("KeyEntryPlatformRejectsOAuth", func(t *testing.T) {
		w := suite.request("POST", fmt.Sprintf("/api/teams/%d/platforms/connect", teamID), masterToken, gin.H{
			"platform": "naver", "account_id": "cust-100",
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("naver OAuth 连接应返回 400, got %d", w.Code)
		}
	})

	t.Run("Disconnect", func(t *testing.T) {
		w := suite.request("DELETE", fmt.Sprintf("/api/teams/%d/platforms/%d", teamID, credID), masterToken, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("断开失败: %d %s", w.Code, w.Body.String())
		}

		w = suite.request("GET", fmt.Sprintf("/api/teams/%d/platforms", teamID), masterToken, nil)
		var creds []struct {
			IsActive bool `json:"is_active"`
		}
		suite.data(w, &creds)
		if len(creds) != 1 {
			t.Fatalf("断开后凭证记录应保留")
		}
		if creds[0].IsActive {
			t.Errorf("断开后 is_active 应为 false")
		}
	})
}

// ==================== 报表模块 ====================

func TestIntegration_DashboardModule(t *testing.T) {
	suite := NewIntegrationSuite(t)

	masterToken, _ := suite.signupAndLogin("report@example.com", "password1", "분석가")
	teamID := suite.myTeamID(masterToken)

	// 直接落库一条系列和两天指标
	campaign := &model.Campaign{
		TeamID: teamID, Platform: "naver", PlatformCampaignID: "n-1",
		Name: "검색 캠페인", Status: "enabled", Budget: 50000, IsActive: true,
	}
	suite.DB.Create(campaign)

	d1 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)
	suite.DB.Create(&model.CampaignMetric{CampaignID: campaign.ID, Date: d1, Impressions: 1000, Clicks: 20, Cost: 100, Revenue: 300})
	suite.DB.Create(&model.CampaignMetric{CampaignID: campaign.ID, Date: d2, Impressions: 2000, Clicks: 40, Cost: 200, Revenue: 500})

	t.Run("CampaignList", func(t *testing.T) {
		w := suite.request("GET", fmt.Sprintf("/api/teams/%d/campaigns", teamID), masterToken, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("系列列表失败: %d %s", w.Code, w.Body.String())
		}
		var campaigns []struct {
			Platform string `json:"platform"`
			Name     string `json:"name"`
		}
		suite.data(w, &campaigns)
		if len(campaigns) != 1 || campaigns[0].Name != "검색 캠페인" {
			t.Errorf("系列列表错误: %+v", campaigns)
		}
	})

	t.Run("Dashboard", func(t *testing.T) {
		w := suite.request("GET",
			fmt.Sprintf("/api/teams/%d/dashboard?from=2026-08-01&to=2026-08-02", teamID),
			masterToken, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("报表失败: %d %s", w.Code, w.Body.String())
		}

		var dash struct {
			Totals struct {
				Impressions int64   `json:"impressions"`
				CTR         float64 `json:"ctr"`
			} `json:"totals"`
			Daily []struct {
				Date string `json:"date"`
			} `json:"daily"`
		}
		suite.data(w, &dash)
		if dash.Totals.Impressions != 3000 {
			t.Errorf("合计 Impressions = %d, want 3000", dash.Totals.Impressions)
		}
		if dash.Totals.CTR != 2.0 {
			t.Errorf("CTR = %v, want 2.0", dash.Totals.CTR)
		}
		if len(dash.Daily) != 2 {
			t.Errorf("日序列行数 = %d, want 2", len(dash.Daily))
		}
	})

	t.Run("DashboardBadDateRange", func(t *testing.T) {
		w := suite.request("GET",
			fmt.Sprintf("/api/teams/%d/dashboard?from=2026-08-10&to=2026-08-01", teamID),
			masterToken, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("倒置区间应返回 400, got %d", w.Code)
		}
	})

	t.Run("CampaignSeries", func(t *testing.T) {
		w := suite.request("GET",
			fmt.Sprintf("/api/teams/%d/campaigns/%d/metrics?from=2026-08-01&to=2026-08-02", teamID, campaign.ID),
			masterToken, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("系列指标失败: %d %s", w.Code, w.Body.String())
		}
		var series []struct {
			Date        string `json:"date"`
			Impressions int64  `json:"impressions"`
		}
		suite.data(w, &series)
		if len(series) != 2 {
			t.Fatalf("序列行数 = %d, want 2", len(series))
		}
		if series[0].Date != "2026-08-01" || series[0].Impressions != 1000 {
			t.Errorf("首行错误: %+v", series[0])
		}
	})
}
