package controllers

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"inkpress/config"
	"inkpress/models"
	"inkpress/utils"
)

// publishedAtLayout is the canonical publish date format, matching the wire
// format of an HTML datetime-local input (YYYY-MM-DDTHH:MM).
const publishedAtLayout = "2006-01-02T15:04"

const (
	publishedListCacheKey = "cache:posts:published"
	postCachePrefix       = "cache:posts:"
	draftSessionCookie    = "draft_session"
)

var allowedImageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
}

// PostController manages listing, viewing and CRUD operations for posts,
// plus the stateless preview and the draft autosave endpoints.
type PostController struct {
	db     *gorm.DB
	drafts utils.DraftStore
}

// NewPostController creates a new PostController instance.
func NewPostController(db *gorm.DB, drafts utils.DraftStore) *PostController {
	return &PostController{db: db, drafts: drafts}
}

// postForm is the flat field set shared by create, update and preview.
type postForm struct {
	Title          string `form:"title"`
	Body           string `form:"body"`
	Summary        string `form:"summary"`
	Category       string `form:"category"`
	Tags           string `form:"tags"`
	PublishDate    string `form:"publish_date"`
	SEOTitle       string `form:"seo_title"`
	SEODescription string `form:"seo_description"`
	SEOKeywords    string `form:"seo_keywords"`
}

// validate enforces the mandatory fields and the canonical publish date
// format. A malformed publish date rejects the whole request; the raw string
// is never written to the database.
func (f *postForm) validate() (*time.Time, string) {
	if strings.TrimSpace(f.Title) == "" {
		return nil, "Title is required."
	}
	if strings.TrimSpace(f.Body) == "" {
		return nil, "Body is required."
	}
	if f.PublishDate == "" {
		return nil, ""
	}
	t, err := time.Parse(publishedAtLayout, f.PublishDate)
	if err != nil {
		return nil, "Invalid publish date. Use the format YYYY-MM-DDTHH:MM."
	}
	return &t, ""
}

// formData builds the template payload used to (re-)render the editor form.
func (f *postForm) formData(action, heading, existingImage, errMsg string) gin.H {
	return gin.H{
		"Action":         action,
		"Heading":        heading,
		"Error":          errMsg,
		"Title":          f.Title,
		"Body":           f.Body,
		"Summary":        f.Summary,
		"Category":       f.Category,
		"Tags":           f.Tags,
		"PublishDate":    f.PublishDate,
		"SEOTitle":       f.SEOTitle,
		"SEODescription": f.SEODescription,
		"SEOKeywords":    f.SEOKeywords,
		"ExistingImage":  existingImage,
	}
}

// postSummary is the listing view model.
type postSummary struct {
	ID       uint
	Title    string
	Summary  string
	Author   string
	Category string
	Created  string
}

// articleView is the article page view model.
type articleView struct {
	ID             uint
	Title          string
	Body           template.HTML
	Summary        string
	Image          string
	Category       string
	Tags           string
	Author         string
	Created        string
	Published      string
	SEOTitle       string
	SEODescription string
	SEOKeywords    string
	IsOwner        bool
}

// Home renders the static landing page.
func (p *PostController) Home(ctx *gin.Context) {
	render(ctx, http.StatusOK, "home.html", nil)
}

// Index lists published posts, newest first. The result set is cached in
// Redis and invalidated whenever a post is created, updated or deleted.
func (p *PostController) Index(ctx *gin.Context) {
	var posts []models.Post
	if !utils.CacheGetJSON(publishedListCacheKey, &posts) {
		err := p.db.Preload("User").
			Where("published_at IS NOT NULL AND published_at <= ?", time.Now()).
			Order("created_at DESC").
			Find(&posts).Error
		if err != nil {
			renderServerError(ctx, err)
			return
		}
		utils.CacheSetJSON(publishedListCacheKey, posts, 5*time.Minute)
	}

	summaries := make([]postSummary, 0, len(posts))
	for _, post := range posts {
		summaries = append(summaries, postSummary{
			ID:       post.ID,
			Title:    post.Title,
			Summary:  summaryOf(post),
			Author:   post.User.Username,
			Category: post.Category,
			Created:  post.CreatedAt.Format("Jan 2, 2006"),
		})
	}
	render(ctx, http.StatusOK, "index.html", gin.H{"Posts": summaries})
}

// Show renders a single article joined with its author.
func (p *PostController) Show(ctx *gin.Context) {
	var post models.Post
	if err := p.db.Preload("User").First(&post, ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			renderNotFound(ctx, "Article not found.")
			return
		}
		renderServerError(ctx, err)
		return
	}

	view := newArticleView(post)
	if uid, ok := getUserID(ctx); ok && uid == post.UserID {
		view.IsOwner = true
	}
	render(ctx, http.StatusOK, "article.html", gin.H{
		"Article":        view,
		"SEOTitle":       view.SEOTitle,
		"SEODescription": view.SEODescription,
		"SEOKeywords":    view.SEOKeywords,
	})
}

// NewForm renders the create form, pre-filled from the caller's autosaved
// draft when one exists.
func (p *PostController) NewForm(ctx *gin.Context) {
	f := postForm{}
	if draft, ok := p.drafts.Load(ctx.Request.Context(), p.draftKey(ctx)); ok {
		f = draftToForm(draft)
	}
	render(ctx, http.StatusOK, "post-form.html", f.formData("/create", "New article", "", ""))
}

// Create validates the submitted fields, stores an optional image and inserts
// the post with the session user as author.
func (p *PostController) Create(ctx *gin.Context) {
	var f postForm
	if err := ctx.ShouldBind(&f); err != nil {
		renderServerError(ctx, err)
		return
	}

	publishedAt, errMsg := f.validate()
	if errMsg != "" {
		render(ctx, http.StatusOK, "post-form.html", f.formData("/create", "New article", "", errMsg))
		return
	}

	imageRef, errMsg, err := p.saveImage(ctx)
	if err != nil {
		renderServerError(ctx, err)
		return
	}
	if errMsg != "" {
		render(ctx, http.StatusOK, "post-form.html", f.formData("/create", "New article", "", errMsg))
		return
	}

	userID, ok := getUserID(ctx)
	if !ok {
		ctx.Redirect(http.StatusFound, "/login")
		return
	}

	post := models.Post{
		UserID:         userID,
		Title:          utils.SanitizeText(strings.TrimSpace(f.Title)),
		Body:           f.Body,
		Summary:        utils.SanitizeText(f.Summary),
		Image:          imageRef,
		Category:       utils.SanitizeText(f.Category),
		Tags:           utils.SanitizeText(f.Tags),
		PublishedAt:    publishedAt,
		SEOTitle:       utils.SanitizeText(f.SEOTitle),
		SEODescription: utils.SanitizeText(f.SEODescription),
		SEOKeywords:    utils.SanitizeText(f.SEOKeywords),
	}

	if err := p.db.Create(&post).Error; err != nil {
		renderServerError(ctx, err)
		return
	}

	utils.InvalidateByPrefix(postCachePrefix)
	ctx.Redirect(http.StatusFound, fmt.Sprintf("/article/%d", post.ID))
}

// EditForm renders the update form for the author.
func (p *PostController) EditForm(ctx *gin.Context) {
	post, ok := p.getOwnedPost(ctx)
	if !ok {
		return
	}

	f := postForm{
		Title:          post.Title,
		Body:           post.Body,
		Summary:        post.Summary,
		Category:       post.Category,
		Tags:           post.Tags,
		SEOTitle:       post.SEOTitle,
		SEODescription: post.SEODescription,
		SEOKeywords:    post.SEOKeywords,
	}
	if post.PublishedAt != nil {
		f.PublishDate = post.PublishedAt.Format(publishedAtLayout)
	}
	action := fmt.Sprintf("/%d/update", post.ID)
	render(ctx, http.StatusOK, "post-form.html", f.formData(action, "Edit article", post.Image, ""))
}

// Update replaces the mutable fields of the addressed post. Identifier,
// author and creation timestamp are preserved; when no new image is supplied
// the stored reference is retained.
func (p *PostController) Update(ctx *gin.Context) {
	post, ok := p.getOwnedPost(ctx)
	if !ok {
		return
	}
	action := fmt.Sprintf("/%d/update", post.ID)

	var f postForm
	if err := ctx.ShouldBind(&f); err != nil {
		renderServerError(ctx, err)
		return
	}

	publishedAt, errMsg := f.validate()
	if errMsg != "" {
		render(ctx, http.StatusOK, "post-form.html", f.formData(action, "Edit article", post.Image, errMsg))
		return
	}

	imageRef, errMsg, err := p.saveImage(ctx)
	if err != nil {
		renderServerError(ctx, err)
		return
	}
	if errMsg != "" {
		render(ctx, http.StatusOK, "post-form.html", f.formData(action, "Edit article", post.Image, errMsg))
		return
	}
	if imageRef == "" {
		// No replacement uploaded; keep the stored reference. Replaced files
		// are left on disk, uploads are never deleted by post mutations.
		imageRef = post.Image
	}

	post.Title = utils.SanitizeText(strings.TrimSpace(f.Title))
	post.Body = f.Body
	post.Summary = utils.SanitizeText(f.Summary)
	post.Image = imageRef
	post.Category = utils.SanitizeText(f.Category)
	post.Tags = utils.SanitizeText(f.Tags)
	post.PublishedAt = publishedAt
	post.SEOTitle = utils.SanitizeText(f.SEOTitle)
	post.SEODescription = utils.SanitizeText(f.SEODescription)
	post.SEOKeywords = utils.SanitizeText(f.SEOKeywords)

	if err := p.db.Save(post).Error; err != nil {
		renderServerError(ctx, err)
		return
	}

	utils.InvalidateByPrefix(postCachePrefix)
	ctx.Redirect(http.StatusFound, fmt.Sprintf("/article/%d", post.ID))
}

// Delete hard-deletes the addressed post after the ownership check.
func (p *PostController) Delete(ctx *gin.Context) {
	post, ok := p.getOwnedPost(ctx)
	if !ok {
		return
	}

	if err := p.db.Delete(post).Error; err != nil {
		renderServerError(ctx, err)
		return
	}

	utils.InvalidateByPrefix(postCachePrefix)
	ctx.Redirect(http.StatusFound, "/")
}

// Preview renders the submitted field set exactly like an article page
// without touching the database.
func (p *PostController) Preview(ctx *gin.Context) {
	var f postForm
	if err := ctx.ShouldBind(&f); err != nil {
		renderServerError(ctx, err)
		return
	}

	view := articleView{
		Title:          utils.SanitizeText(strings.TrimSpace(f.Title)),
		Body:           utils.RenderMarkdown(f.Body),
		Summary:        utils.SanitizeText(f.Summary),
		Category:       utils.SanitizeText(f.Category),
		Tags:           utils.SanitizeText(f.Tags),
		Author:         currentUsername(ctx),
		Created:        time.Now().Format("Jan 2, 2006"),
		SEOTitle:       utils.SanitizeText(f.SEOTitle),
		SEODescription: utils.SanitizeText(f.SEODescription),
		SEOKeywords:    utils.SanitizeText(f.SEOKeywords),
	}
	if t, err := time.Parse(publishedAtLayout, f.PublishDate); err == nil {
		view.Published = t.Format("Jan 2, 2006 15:04")
	}
	render(ctx, http.StatusOK, "preview.html", gin.H{
		"Article":        view,
		"SEOTitle":       view.SEOTitle,
		"SEODescription": view.SEODescription,
		"SEOKeywords":    view.SEOKeywords,
	})
}

// Autosave stores the submitted flat field set as the caller's draft.
// Last write wins per caller; no validation, no database interaction.
func (p *PostController) Autosave(ctx *gin.Context) {
	if err := ctx.Request.ParseForm(); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40010, "invalid form payload")
		return
	}

	draft := utils.Draft{}
	for key, values := range ctx.Request.PostForm {
		if len(values) > 0 {
			draft[key] = values[0]
		}
	}

	if err := p.drafts.Save(ctx.Request.Context(), p.draftKey(ctx), draft); err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50010, "failed to save draft")
		return
	}
	utils.Success(ctx, gin.H{"status": "saved"})
}

// getOwnedPost loads the addressed post and enforces ownership for mutating
// operations: missing posts yield 404, foreign posts 403.
func (p *PostController) getOwnedPost(ctx *gin.Context) (*models.Post, bool) {
	var post models.Post
	if err := p.db.First(&post, ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			renderNotFound(ctx, "Article not found.")
			return nil, false
		}
		renderServerError(ctx, err)
		return nil, false
	}

	userID, ok := getUserID(ctx)
	if !ok {
		ctx.Redirect(http.StatusFound, "/login")
		ctx.Abort()
		return nil, false
	}
	if post.UserID != userID {
		renderForbidden(ctx, "You can only modify your own articles.")
		return nil, false
	}
	return &post, true
}

// saveImage persists an uploaded image with a sanitized, collision-free name
// and returns the relative reference to store on the post. The middle return
// value is a user-facing validation message; the error covers IO failures.
func (p *PostController) saveImage(ctx *gin.Context) (string, string, error) {
	fileHeader, err := ctx.FormFile("image")
	if err != nil || fileHeader == nil || fileHeader.Filename == "" {
		return "", "", nil // no image supplied
	}

	cfg := config.Get()
	maxSize := int64(cfg.UploadMaxSizeMB) << 20
	if fileHeader.Size > maxSize {
		return "", fmt.Sprintf("Image exceeds the %d MB size limit.", cfg.UploadMaxSizeMB), nil
	}

	name := utils.SanitizeFilename(fileHeader.Filename)
	if name == "" {
		return "", "Invalid image file name.", nil
	}
	if !allowedImageExts[strings.ToLower(filepath.Ext(name))] {
		return "", "Unsupported image type. Use PNG, JPEG, GIF or WebP.", nil
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return "", "", err
	}

	// uuid prefix avoids silently overwriting an unrelated upload
	unique := uuid.NewString()[:8] + "_" + name
	if err := ctx.SaveUploadedFile(fileHeader, filepath.Join(cfg.UploadDir, unique)); err != nil {
		return "", "", err
	}
	return "uploads/" + unique, "", nil
}

// draftKey scopes autosaved drafts per caller: by user id when logged in,
// otherwise by a per-browser session cookie.
func (p *PostController) draftKey(ctx *gin.Context) string {
	if uid, ok := getUserID(ctx); ok {
		return "user:" + strconv.FormatUint(uint64(uid), 10)
	}
	if sid, err := ctx.Cookie(draftSessionCookie); err == nil && sid != "" {
		return "session:" + sid
	}
	sid := uuid.NewString()
	ctx.SetCookie(draftSessionCookie, sid, 30*24*3600, "/", "", false, true)
	return "session:" + sid
}

func newArticleView(post models.Post) articleView {
	view := articleView{
		ID:             post.ID,
		Title:          post.Title,
		Body:           utils.RenderMarkdown(post.Body),
		Summary:        post.Summary,
		Image:          post.Image,
		Category:       post.Category,
		Tags:           post.Tags,
		Author:         post.User.Username,
		Created:        post.CreatedAt.Format("Jan 2, 2006"),
		SEOTitle:       post.SEOTitle,
		SEODescription: post.SEODescription,
		SEOKeywords:    post.SEOKeywords,
	}
	if post.PublishedAt != nil {
		view.Published = post.PublishedAt.Format("Jan 2, 2006 15:04")
	}
	return view
}

// summaryOf falls back to a plain-text excerpt of the body when no summary
// was provided.
func summaryOf(post models.Post) string {
	if post.Summary != "" {
		return post.Summary
	}
	plain := utils.SanitizeText(post.Body)
	runes := []rune(plain)
	if len(runes) > 200 {
		return string(runes[:200]) + "…"
	}
	return plain
}

func draftToForm(d utils.Draft) postForm {
	return postForm{
		Title:          d["title"],
		Body:           d["body"],
		Summary:        d["summary"],
		Category:       d["category"],
		Tags:           d["tags"],
		PublishDate:    d["publish_date"],
		SEOTitle:       d["seo_title"],
		SEODescription: d["seo_description"],
		SEOKeywords:    d["seo_keywords"],
	}
}
