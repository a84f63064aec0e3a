package routes

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mojocn/base64Captcha"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/orghub/config"
	"github.com/cppla/orghub/controllers"
	"github.com/cppla/orghub/models"
	"github.com/cppla/orghub/services"
	"github.com/cppla/orghub/utils"
)

const testSecret = "router-test-secret"

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t       *testing.T
	db      *gorm.DB
	engine  http.Handler
	captcha *utils.Captcha
	org     models.Organisation
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		TranslateError:                           true,
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, config.Migrate(db, models.All()...))

	store, err := services.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	staging, err := services.NewStaging(db, t.TempDir(), time.Hour, 1<<20, zap.NewNop())
	require.NoError(t, err)
	captcha := utils.NewCaptcha(base64Captcha.NewMemoryStore(100, time.Minute))

	posts := services.NewPostService(services.Deps{DB: db, Store: store, Staging: staging, Captcha: captcha, Logger: zap.NewNop()})
	cfg := config.AppConfig{
		JWTSecret:          testSecret,
		GinMode:            "test",
		RateLimitPerMinute: 6000,
		AllowedOrigins:     []string{"*"},
	}
	engine := SetupRouter(cfg, Handlers{
		Posts:   controllers.NewPostController(posts, zap.NewNop()),
		Uploads: controllers.NewUploadController(staging, zap.NewNop()),
		Captcha: controllers.NewCaptchaController(captcha),
	})

	org := models.Organisation{ID: uuid.NewString(), Name: "Harbour Rowing", Approved: true}
	require.NoError(t, db.Create(&org).Error)
	return &testServer{t: t, db: db, engine: engine, captcha: captcha, org: org}
}

func (s *testServer) token(claims utils.Claims) string {
	tok, err := utils.GenerateToken(testSecret, claims, time.Hour)
	require.NoError(s.t, err)
	return tok
}

func (s *testServer) do(method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.serve(req)
}

func (s *testServer) serve(req *http.Request) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	var env envelope
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func (s *testServer) captchaToken() string {
	w, env := s.do(http.MethodGet, "/api/v1/captcha", "", nil)
	require.Equal(s.t, http.StatusOK, w.Code)
	var data struct {
		ID    string `json:"captcha_id"`
		Image string `json:"image"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(s.t, data.Image)
	return data.ID + ":" + s.captcha.Answer(data.ID)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, env.Code)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(http.MethodGet, "/api/v1/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 40400, env.Code)
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t)

	cases := []struct {
		name   string
		header string
		code   int
	}{
		{"missing", "", 40101},
		{"not bearer", "Basic abc", 40102},
		{"empty bearer", "Bearer  ", 40103},
		{"garbage", "Bearer not-a-jwt", 40105},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w, env := s.serve(req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, tc.code, env.Code)
		})
	}

	forged, err := utils.GenerateToken("other-secret", utils.Claims{AccountID: uuid.NewString()}, time.Hour)
	require.NoError(t, err)
	w, env := s.do(http.MethodGet, "/api/v1/posts", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 40105, env.Code)
}

func TestPostLifecycle(t *testing.T) {
	s := newTestServer(t)
	owner := s.token(utils.Claims{AccountID: uuid.NewString()})
	member := s.token(utils.Claims{AccountID: uuid.NewString()})
	admin := s.token(utils.Claims{AccountID: uuid.NewString(), IsAdmin: true})

	eventTime := time.Now().UTC().Add(72 * time.Hour).Format(services.EventTimeLayout)
	w, env := s.do(http.MethodPost, "/api/v1/posts", owner, map[string]interface{}{
		"title":          "Open training",
		"description":    "Bring water",
		"organisation":   s.org.ID,
		"event":          true,
		"event_location": "Boathouse",
		"event_capacity": 1,
		"event_time":     eventTime,
		"token":          s.captchaToken(),
	})
	require.Equal(t, http.StatusCreated, w.Code, env.Message)
	var created struct {
		Post services.PostView `json:"post"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	id := created.Post.ID
	require.NotNil(t, created.Post.Event)
	assert.Equal(t, 1, created.Post.Event.Capacity)

	w, env = s.do(http.MethodPost, "/api/v1/posts/"+id+"/join", member, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"members_count":1}`, string(env.Data))

	w, env = s.do(http.MethodPost, "/api/v1/posts/"+id+"/join", owner, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40002, env.Code)
	assert.Equal(t, "Event has already reached its capacity", env.Message)

	w, env = s.do(http.MethodPost, "/api/v1/posts/"+id+"/like", member, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total":1,"value":1}`, string(env.Data))

	w, _ = s.do(http.MethodPost, "/api/v1/posts/"+id+"/pin", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = s.do(http.MethodPatch, "/api/v1/posts/"+id, member, map[string]interface{}{"title": "mine now"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Unauthorised to edit non-personal post", env.Message)

	w, env = s.do(http.MethodGet, "/api/v1/posts?category=event&sort_by_pinned=true", member, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page services.PostPage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Items, 1)
	assert.True(t, page.Items[0].IsPinned)
	assert.Equal(t, 1, page.Items[0].Liked)

	w, _ = s.do(http.MethodDelete, "/api/v1/posts/"+id, admin, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = s.do(http.MethodGet, "/api/v1/posts/"+id, owner, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 40401, env.Code)
	assert.Equal(t, "No such post", env.Message)
}

func TestCreateErrors(t *testing.T) {
	s := newTestServer(t)
	owner := s.token(utils.Claims{AccountID: uuid.NewString()})

	w, env := s.do(http.MethodPost, "/api/v1/posts", owner, map[string]interface{}{"title": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40001, env.Code)
	assert.Equal(t, "Missing token", env.Message)

	w, env = s.do(http.MethodPost, "/api/v1/posts", owner, map[string]interface{}{"title": "x", "token": "abc:123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40003, env.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/posts", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+owner)
	w, env = s.serve(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40020, env.Code)
}

func TestUploadThenAttach(t *testing.T) {
	s := newTestServer(t)
	owner := s.token(utils.Claims{AccountID: uuid.NewString()})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "Poster Final.PNG")
	require.NoError(t, err)
	_, err = part.Write([]byte("png bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+owner)
	w, env := s.serve(req)
	require.Equal(t, http.StatusCreated, w.Code, env.Message)
	var upload struct {
		ID       string `json:"id"`
		Filename string `json:"filename"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &upload))
	assert.Equal(t, "poster-final.png", upload.Filename)

	w, env = s.do(http.MethodPost, "/api/v1/posts", owner, map[string]interface{}{
		"title":        "Regatta poster",
		"description":  "Print one",
		"organisation": s.org.ID,
		"attachment":   upload.ID,
		"token":        s.captchaToken(),
	})
	require.Equal(t, http.StatusCreated, w.Code, env.Message)
	var created struct {
		Post services.PostView `json:"post"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, services.AttachmentKey(s.org.ID, created.Post.ID, "poster-final.png"), created.Post.ImagePath)

	w, _ = s.do(http.MethodDelete, "/api/v1/posts/"+created.Post.ID+"/image", owner, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUploadWithoutFile(t *testing.T) {
	s := newTestServer(t)
	owner := s.token(utils.Claims{AccountID: uuid.NewString()})
	w, env := s.do(http.MethodPost, "/api/v1/uploads", owner, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40030, env.Code)
}

func TestUnexpectedErrorsAreHidden(t *testing.T) {
	s := newTestServer(t)
	owner := s.token(utils.Claims{AccountID: uuid.NewString()})
	sqlDB, err := s.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	w, env := s.do(http.MethodGet, "/api/v1/posts/"+uuid.NewString(), owner, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 50000, env.Code)
	assert.Equal(t, "Something went wrong, try again later", env.Message)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t)
	cfg := config.AppConfig{JWTSecret: testSecret, GinMode: "test", RateLimitPerMinute: 2, AllowedOrigins: []string{"*"}}
	s.engine = SetupRouter(cfg, Handlers{Captcha: controllers.NewCaptchaController(s.captcha)})

	// burst is half the per-minute rate
	w, _ := s.do(http.MethodGet, "/api/v1/captcha", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, env := s.do(http.MethodGet, "/api/v1/captcha", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, 42901, env.Code)
}

func (s *testServer) upload(token, name string) string {
	s.t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(s.t, err)
	_, err = part.Write([]byte("bytes"))
	require.NoError(s.t, err)
	require.NoError(s.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w, env := s.serve(req)
	require.Equal(s.t, http.StatusCreated, w.Code, env.Message)
	var data struct {
		ID string `json:"id"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &data))
	return data.ID
}

func TestRejectedPayloadDiscardsUpload(t *testing.T) {
	s := newTestServer(t)
	owner := s.token(utils.Claims{AccountID: uuid.NewString()})
	stranger := s.token(utils.Claims{AccountID: uuid.NewString()})

	id := s.upload(owner, "flyer.png")
	w, env := s.do(http.MethodPost, "/api/v1/posts", owner, map[string]interface{}{
		"title":          "Regatta",
		"attachment":     id,
		"event_capacity": true,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40020, env.Code)

	var staged int64
	require.NoError(t, s.db.Model(&models.StagedAttachment{}).Where("id = ?", id).Count(&staged).Error)
	assert.Zero(t, staged)

	// someone else's payload can not discard an upload
	kept := s.upload(owner, "poster.png")
	w, _ = s.do(http.MethodPatch, "/api/v1/posts/"+uuid.NewString(), stranger, map[string]interface{}{
		"attachment":    kept,
		"donation_goal": []int{1},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NoError(t, s.db.Model(&models.StagedAttachment{}).Where("id = ?", kept).Count(&staged).Error)
	assert.EqualValues(t, 1, staged)
}
