package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/LJTian/hnreader/internal/collector"
	"github.com/LJTian/hnreader/internal/ingest"
	"github.com/LJTian/hnreader/internal/processor"
	"github.com/LJTian/hnreader/internal/storage"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type Server struct {
	svc   *ingest.Service
	store *storage.Store
}

func NewServer(svc *ingest.Service, store *storage.Store) *Server {
	return &Server{svc: svc, store: store}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/items", s.listItems)
		v1.GET("/items/:id/comments", s.listComments)
		v1.POST("/items/:id/viewed", s.markViewed)
		v1.GET("/viewed", s.listViewed)

		v1.GET("/favorites", s.listFavorites)
		v1.POST("/favorites", s.addFavorite)
		v1.DELETE("/favorites/done", s.clearDoneFavorites)
		v1.DELETE("/favorites/:id", s.removeFavorite)
		v1.POST("/favorites/:id/done", s.toggleFavoriteDone)

		v1.GET("/settings/:key", s.getSetting)
		v1.PUT("/settings/:key", s.putSetting)

		v1.GET("/cache", s.cacheStats)
		v1.PUT("/cache/ttl", s.setTTL)
	}
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    data,
	})
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}

func internalError(c *gin.Context, err error) {
	log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
}

func queryBool(c *gin.Context, key string) bool {
	v, err := strconv.ParseBool(c.DefaultQuery(key, "false"))
	return err == nil && v
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// itemView 列表条目附带本地的浏览与收藏状态
type itemView struct {
	collector.ListingItem
	Viewed   bool `json:"viewed"`
	Favorite bool `json:"favorite"`
}

func (s *Server) listItems(c *gin.Context) {
	tab, valid := ingest.ParseTab(c.DefaultQuery("tab", string(ingest.TabHot)))
	if !valid {
		fail(c, http.StatusBadRequest, "invalid_tab", "unknown tab")
		return
	}
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page <= 0 {
		page = 1
	}

	items := s.svc.FetchListing(c.Request.Context(), tab, page, queryBool(c, "refresh"))

	viewed, err := s.store.ViewedIDs()
	if err != nil {
		internalError(c, err)
		return
	}
	favorites, err := s.store.ListFavorites()
	if err != nil {
		internalError(c, err)
		return
	}
	viewedSet := make(map[string]struct{}, len(viewed))
	for _, id := range viewed {
		viewedSet[id] = struct{}{}
	}
	favSet := make(map[string]struct{}, len(favorites))
	for _, f := range favorites {
		favSet[f.ID] = struct{}{}
	}

	views := make([]itemView, 0, len(items))
	for _, it := range items {
		_, v := viewedSet[it.ID]
		_, f := favSet[it.ID]
		views = append(views, itemView{ListingItem: it, Viewed: v, Favorite: f})
	}
	ok(c, views)
}

// listComments format=text 时把正文转成纯文本；format 非法时不发起抓取
func (s *Server) listComments(c *gin.Context) {
	format := c.DefaultQuery("format", "html")
	if format != "html" && format != "text" {
		fail(c, http.StatusBadRequest, "invalid_format", "format must be html or text")
		return
	}

	roots := s.svc.FetchThread(c.Request.Context(), c.Param("id"), queryBool(c, "refresh"), queryBool(c, "latest"))
	if format == "text" {
		roots = processor.PlainTree(roots)
	}
	ok(c, roots)
}

type viewedRequest struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

func (s *Server) markViewed(c *gin.Context) {
	id := c.Param("id")
	var req viewedRequest
	// body 可选
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid_body", err.Error())
			return
		}
	}

	if err := s.store.MarkViewed(id); err != nil {
		internalError(c, err)
		return
	}
	if req.Title != "" {
		detail := collector.ListingItem{ID: id, Title: req.Title, TargetURL: req.URL}
		if err := s.store.SaveStoryDetails([]collector.ListingItem{detail}); err != nil {
			internalError(c, err)
			return
		}
	}
	ok(c, gin.H{"id": id, "viewed": true})
}

func (s *Server) listViewed(c *gin.Context) {
	list, err := s.store.ViewedStories()
	if err != nil {
		internalError(c, err)
		return
	}
	ok(c, list)
}

func (s *Server) listFavorites(c *gin.Context) {
	list, err := s.store.ListFavorites()
	if err != nil {
		internalError(c, err)
		return
	}
	ok(c, list)
}

type favoriteRequest struct {
	collector.ListingItem
	Tab  string `json:"tab"`
	Rank int    `json:"rank"`
}

func (s *Server) addFavorite(c *gin.Context) {
	var req favoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if req.ID == "" {
		fail(c, http.StatusBadRequest, "invalid_body", "id is required")
		return
	}

	extra := map[string]any{}
	if req.Tab != "" {
		extra["tab"] = req.Tab
		extra["rank"] = req.Rank
	}
	if err := s.store.AddFavorite(req.ListingItem, extra); err != nil {
		internalError(c, err)
		return
	}
	ok(c, gin.H{"id": req.ID, "favorite": true})
}

func (s *Server) removeFavorite(c *gin.Context) {
	id := c.Param("id")
	if err := s.store.RemoveFavorite(id); err != nil {
		internalError(c, err)
		return
	}
	ok(c, gin.H{"id": id, "favorite": false})
}

func (s *Server) toggleFavoriteDone(c *gin.Context) {
	id := c.Param("id")
	done, err := s.store.ToggleFavoriteDone(id)
	if errors.Is(err, storage.ErrNotFound) {
		fail(c, http.StatusNotFound, "not_found", "favorite not found")
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	ok(c, gin.H{"id": id, "done": done})
}

func (s *Server) clearDoneFavorites(c *gin.Context) {
	n, err := s.store.ClearDoneFavorites()
	if err != nil {
		internalError(c, err)
		return
	}
	ok(c, gin.H{"removed": n})
}

func (s *Server) getSetting(c *gin.Context) {
	key := c.Param("key")
	v, found, err := s.store.GetSetting(key)
	if err != nil {
		internalError(c, err)
		return
	}
	if !found {
		fail(c, http.StatusNotFound, "not_found", "setting not found")
		return
	}
	ok(c, gin.H{"key": key, "value": v})
}

type settingRequest struct {
	Value string `json:"value"`
}

func (s *Server) putSetting(c *gin.Context) {
	key := c.Param("key")
	var req settingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if err := s.store.SaveSetting(key, req.Value); err != nil {
		internalError(c, err)
		return
	}
	ok(c, gin.H{"key": key, "value": req.Value})
}

func (s *Server) cacheStats(c *gin.Context) {
	data := gin.H{
		"stats":      s.svc.Cache().Stats(),
		"ttlSeconds": int(s.svc.TTL() / time.Second),
	}
	if cur, found := s.svc.Cursor(); found {
		data["cursor"] = cur
	}
	ok(c, data)
}

type ttlRequest struct {
	Seconds int `json:"seconds"`
}

func (s *Server) setTTL(c *gin.Context) {
	var req ttlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if req.Seconds < 0 {
		fail(c, http.StatusBadRequest, "invalid_body", "seconds must not be negative")
		return
	}
	s.svc.SetTTL(time.Duration(req.Seconds) * time.Second)
	ok(c, gin.H{"ttlSeconds": req.Seconds})
}
