package routes

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"inkpress/config"
	"inkpress/middleware"
	"inkpress/models"
	"inkpress/utils"
)

var uploadDir string

func TestMain(m *testing.M) {
	os.Setenv("GIN_MODE", "test")
	os.Setenv("JWT_SECRET", "test-secret")
	os.Setenv("SIGNUP_ENABLED", "true")
	os.Setenv("RATE_LIMIT_PER_MINUTE", "600")

	var err error
	uploadDir, err = os.MkdirTemp("", "inkpress-uploads-")
	if err != nil {
		panic(err)
	}
	os.Setenv("UPLOAD_DIR", uploadDir)

	// Templates are loaded relative to the repository root.
	if err := os.Chdir(".."); err != nil {
		panic(err)
	}

	cfg := config.Load()
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	code := m.Run()
	os.RemoveAll(uploadDir)
	os.Exit(code)
}

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB, *utils.MemoryDraftStore) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Post{}))

	drafts := utils.NewMemoryDraftStore()
	return SetupRouter(db, drafts), db, drafts
}

func createUser(t *testing.T, db *gorm.DB, username string) models.User {
	t.Helper()
	hash, err := utils.HashPassword("password123")
	require.NoError(t, err)
	user := models.User{Username: username, PasswordHash: hash}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func sessionCookie(t *testing.T, user models.User) *http.Cookie {
	t.Helper()
	token, err := utils.GenerateToken(user.ID, user.Username, time.Hour)
	require.NoError(t, err)
	return &http.Cookie{Name: middleware.AuthCookieName, Value: token}
}

func doGet(r *gin.Engine, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doPostForm(r *gin.Engine, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func validPostForm(title string) url.Values {
	return url.Values{
		"title": {title},
		"body":  {"Hello **world**, this is the body."},
	}
}

func postCount(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.Post{}).Count(&count).Error)
	return count
}

func TestCreateAndViewArticle(t *testing.T) {
	r, db, _ := newTestRouter(t)
	author := createUser(t, db, "alice")
	cookie := sessionCookie(t, author)

	form := validPostForm("My first article")
	form.Set("publish_date", "2024-05-01T09:30")
	form.Set("summary", "A short summary")
	form.Set("seo_title", "First article SEO")

	w := doPostForm(r, "/create", form, cookie)
	require.Equal(t, http.StatusFound, w.Code)
	location := w.Header().Get("Location")
	require.Regexp(t, `^/article/\d+$`, location)

	view := doGet(r, location, cookie)
	require.Equal(t, http.StatusOK, view.Code)
	body := view.Body.String()
	assert.Contains(t, body, "My first article")
	assert.Contains(t, body, "<strong>world</strong>") // markdown rendered
	assert.Contains(t, body, "A short summary")
	assert.Contains(t, body, "alice")

	var post models.Post
	require.NoError(t, db.First(&post).Error)
	assert.Equal(t, "My first article", post.Title)
	assert.Equal(t, author.ID, post.UserID)
	require.NotNil(t, post.PublishedAt)
	assert.Equal(t, "2024-05-01T09:30", post.PublishedAt.Format("2006-01-02T15:04"))
	assert.False(t, post.CreatedAt.IsZero())
}

func TestCreateValidatesMandatoryFields(t *testing.T) {
	r, db, _ := newTestRouter(t)
	cookie := sessionCookie(t, createUser(t, db, "alice"))

	t.Run("missing title", func(t *testing.T) {
		form := validPostForm("")
		w := doPostForm(r, "/create", form, cookie)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Title is required.")
		assert.EqualValues(t, 0, postCount(t, db))
	})

	t.Run("missing body", func(t *testing.T) {
		form := url.Values{"title": {"Has a title"}, "body": {"   "}}
		w := doPostForm(r, "/create", form, cookie)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Body is required.")
		assert.EqualValues(t, 0, postCount(t, db))
	})
}

func TestCreateRejectsMalformedPublishDate(t *testing.T) {
	r, db, _ := newTestRouter(t)
	cookie := sessionCookie(t, createUser(t, db, "alice"))

	form := validPostForm("Scheduled post")
	form.Set("publish_date", "01/05/2024 9:30am")

	w := doPostForm(r, "/create", form, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid publish date")
	// The whole request is rejected, nothing may be written.
	assert.EqualValues(t, 0, postCount(t, db))
}

func TestCreateRequiresLogin(t *testing.T) {
	r, db, _ := newTestRouter(t)

	w := doGet(r, "/create")
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	w = doPostForm(r, "/create", validPostForm("Sneaky"))
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
	assert.EqualValues(t, 0, postCount(t, db))
}

func TestIndexListsPublishedNewestFirst(t *testing.T) {
	r, db, _ := newTestRouter(t)
	author := createUser(t, db, "alice")

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(24 * time.Hour)
	base := time.Now().Add(-48 * time.Hour)

	posts := []models.Post{
		{UserID: author.ID, Title: "First published", Body: "b", PublishedAt: &past, CreatedAt: base},
		{UserID: author.ID, Title: "Second published", Body: "b", PublishedAt: &past, CreatedAt: base.Add(time.Hour)},
		{UserID: author.ID, Title: "Unpublished draft", Body: "b", CreatedAt: base.Add(2 * time.Hour)},
		{UserID: author.ID, Title: "Future scheduled", Body: "b", PublishedAt: &future, CreatedAt: base.Add(3 * time.Hour)},
	}
	for i := range posts {
		require.NoError(t, db.Create(&posts[i]).Error)
	}
	utils.InvalidateByPrefix("cache:posts:")

	w := doGet(r, "/")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()

	assert.Contains(t, body, "First published")
	assert.Contains(t, body, "Second published")
	assert.NotContains(t, body, "Unpublished draft")
	assert.NotContains(t, body, "Future scheduled")
	// created_at DESC: the newer post is rendered first
	assert.Less(t, strings.Index(body, "Second published"), strings.Index(body, "First published"))
}

func TestShowUnknownArticleReturns404(t *testing.T) {
	r, _, _ := newTestRouter(t)
	w := doGet(r, "/article/9999")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateByNonAuthorIsForbidden(t *testing.T) {
	r, db, _ := newTestRouter(t)
	author := createUser(t, db, "alice")
	intruder := createUser(t, db, "mallory")

	post := models.Post{UserID: author.ID, Title: "Original title", Body: "body"}
	require.NoError(t, db.Create(&post).Error)

	w := doPostForm(r, fmt.Sprintf("/%d/update", post.ID), validPostForm("Hijacked"), sessionCookie(t, intruder))
	require.Equal(t, http.StatusForbidden, w.Code)

	var reloaded models.Post
	require.NoError(t, db.First(&reloaded, post.ID).Error)
	assert.Equal(t, "Original title", reloaded.Title)
}

func TestUpdatePreservesImageWhenNotReplaced(t *testing.T) {
	r, db, _ := newTestRouter(t)
	author := createUser(t, db, "alice")
	cookie := sessionCookie(t, author)

	post := models.Post{UserID: author.ID, Title: "With image", Body: "body", Image: "uploads/existing.png"}
	require.NoError(t, db.Create(&post).Error)

	w := doPostForm(r, fmt.Sprintf("/%d/update", post.ID), validPostForm("With image, edited"), cookie)
	require.Equal(t, http.StatusFound, w.Code)

	var reloaded models.Post
	require.NoError(t, db.First(&reloaded, post.ID).Error)
	assert.Equal(t, "With image, edited", reloaded.Title)
	assert.Equal(t, "uploads/existing.png", reloaded.Image)
	assert.Equal(t, author.ID, reloaded.UserID)
}

func TestUpdateRejectsMalformedPublishDateWithoutWrite(t *testing.T) {
	r, db, _ := newTestRouter(t)
	author := createUser(t, db, "alice")

	post := models.Post{UserID: author.ID, Title: "Stable", Body: "body"}
	require.NoError(t, db.Create(&post).Error)

	form := validPostForm("Changed")
	form.Set("publish_date", "not-a-date")
	w := doPostForm(r, fmt.Sprintf("/%d/update", post.ID), form, sessionCookie(t, author))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid publish date")

	var reloaded models.Post
	require.NoError(t, db.First(&reloaded, post.ID).Error)
	assert.Equal(t, "Stable", reloaded.Title)
}

func TestDeleteArticle(t *testing.T) {
	r, db, _ := newTestRouter(t)
	author := createUser(t, db, "alice")
	intruder := createUser(t, db, "mallory")

	post := models.Post{UserID: author.ID, Title: "Doomed", Body: "body"}
	require.NoError(t, db.Create(&post).Error)

	t.Run("non-author is forbidden", func(t *testing.T) {
		w := doPostForm(r, fmt.Sprintf("/%d/delete", post.ID), url.Values{}, sessionCookie(t, intruder))
		require.Equal(t, http.StatusForbidden, w.Code)
		assert.EqualValues(t, 1, postCount(t, db))
	})

	t.Run("author deletes", func(t *testing.T) {
		w := doPostForm(r, fmt.Sprintf("/%d/delete", post.ID), url.Values{}, sessionCookie(t, author))
		require.Equal(t, http.StatusFound, w.Code)
		assert.EqualValues(t, 0, postCount(t, db))
	})

	t.Run("missing id is not found", func(t *testing.T) {
		w := doPostForm(r, "/4242/delete", url.Values{}, sessionCookie(t, author))
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.EqualValues(t, 0, postCount(t, db))
	})
}

func TestPreviewDoesNotPersist(t *testing.T) {
	r, db, _ := newTestRouter(t)

	form := validPostForm("Preview only")
	w := doPostForm(r, "/preview", form)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Preview only")
	assert.Contains(t, body, "<strong>world</strong>")
	assert.EqualValues(t, 0, postCount(t, db))
}

func TestAutosaveLastWriteWins(t *testing.T) {
	r, db, drafts := newTestRouter(t)
	author := createUser(t, db, "alice")
	cookie := sessionCookie(t, author)

	first := url.Values{"title": {"Draft one"}, "body": {"first body"}}
	w := doPostForm(r, "/autosave", first, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	second := url.Values{"title": {"Draft two"}, "body": {"second body"}}
	w = doPostForm(r, "/autosave", second, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	key := fmt.Sprintf("user:%d", author.ID)
	draft, ok := drafts.Load(context.Background(), key)
	require.True(t, ok)
	assert.Equal(t, "Draft two", draft["title"])
	assert.Equal(t, "second body", draft["body"])
	assert.EqualValues(t, 0, postCount(t, db))
}

func TestAutosaveKeyedPerAnonymousSession(t *testing.T) {
	r, _, drafts := newTestRouter(t)

	w := doPostForm(r, "/autosave", url.Values{"title": {"anon draft"}})
	require.Equal(t, http.StatusOK, w.Code)

	var sid string
	for _, c := range w.Result().Cookies() {
		if c.Name == "draft_session" {
			sid = c.Value
		}
	}
	require.NotEmpty(t, sid, "anonymous autosave must assign a draft session cookie")

	draft, ok := drafts.Load(context.Background(), "session:"+sid)
	require.True(t, ok)
	assert.Equal(t, "anon draft", draft["title"])
}

func TestDraftPrefillsCreateForm(t *testing.T) {
	r, db, drafts := newTestRouter(t)
	author := createUser(t, db, "alice")
	cookie := sessionCookie(t, author)

	key := fmt.Sprintf("user:%d", author.ID)
	require.NoError(t, drafts.Save(context.Background(), key, utils.Draft{
		"title": "Restored draft title",
		"body":  "restored body",
	}))

	w := doGet(r, "/create", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Restored draft title")
	assert.Contains(t, w.Body.String(), "restored body")
}

func TestUploadImageIsSanitizedAndStored(t *testing.T) {
	r, db, _ := newTestRouter(t)
	cookie := sessionCookie(t, createUser(t, db, "alice"))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", "Illustrated"))
	require.NoError(t, mw.WriteField("body", "with a picture"))
	part, err := mw.CreateFormFile("image", "../../evil name.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("not-really-a-png"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/create", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusFound, w.Code)

	var post models.Post
	require.NoError(t, db.First(&post).Error)
	assert.Regexp(t, regexp.MustCompile(`^uploads/[0-9a-f]{8}_evil_name\.png$`), post.Image)
	assert.NotContains(t, post.Image, "..")

	// the file landed inside the configured upload dir under the safe name
	saved := filepath.Join(uploadDir, strings.TrimPrefix(post.Image, "uploads/"))
	_, err = os.Stat(saved)
	assert.NoError(t, err)
}

func TestUploadRejectsUnsupportedImageType(t *testing.T) {
	r, db, _ := newTestRouter(t)
	cookie := sessionCookie(t, createUser(t, db, "alice"))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", "Bad upload"))
	require.NoError(t, mw.WriteField("body", "body"))
	part, err := mw.CreateFormFile("image", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("plain text"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/create", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Unsupported image type")
	assert.EqualValues(t, 0, postCount(t, db))
}

func TestRegisterLoginLogoutFlow(t *testing.T) {
	r, db, _ := newTestRouter(t)

	w := doPostForm(r, "/register", url.Values{"username": {"bob"}, "password": {"secret"}})
	require.Equal(t, http.StatusFound, w.Code)

	var token *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.AuthCookieName {
			token = c
		}
	}
	require.NotNil(t, token, "registration must establish a session")

	// duplicate username re-renders the form
	w = doPostForm(r, "/register", url.Values{"username": {"bob"}, "password": {"other"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "already taken")

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	// wrong password
	w = doPostForm(r, "/login", url.Values{"username": {"bob"}, "password": {"wrong"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid username or password.")

	// correct login
	w = doPostForm(r, "/login", url.Values{"username": {"bob"}, "password": {"secret"}})
	require.Equal(t, http.StatusFound, w.Code)

	// the session opens the editor
	w = doGet(r, "/create", token)
	require.Equal(t, http.StatusOK, w.Code)

	// logout revokes the token; reuse is rejected
	w = doGet(r, "/logout", token)
	require.Equal(t, http.StatusFound, w.Code)
	w = doGet(r, "/create", token)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}
