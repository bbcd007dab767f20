package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/LJTian/hnreader/internal/collector"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrNotFound 操作的收藏不存在
var ErrNotFound = errors.New("not found")

// Favorite 收藏时保存条目的完整快照，列表页刷新后仍可展示
type Favorite struct {
	ID            string `gorm:"primaryKey;size:32" json:"id"`
	Title         string `gorm:"size:512" json:"title"`
	URL           string `gorm:"size:1024" json:"url"`
	Domain        string `gorm:"size:256" json:"domain"`
	By            string `gorm:"size:64" json:"by"`
	Score         int    `json:"score"`
	TimeAgo       string `gorm:"size:64" json:"timeAgo"`
	CommentsCount int    `json:"commentsCount"`
	Done          bool   `gorm:"index" json:"done"`
	// 收藏时的上下文，例如所在分类与排名
	Extra datatypes.JSONMap `json:"extra"`

	AddedAt time.Time `gorm:"index" json:"addedAt"`
}

type ViewedStory struct {
	ID       string    `gorm:"primaryKey;size:32" json:"id"`
	ViewedAt time.Time `gorm:"index" json:"viewedAt"`
}

// StoryDetail 浏览记录展示用的标题，预热和浏览时写入
type StoryDetail struct {
	ID    string `gorm:"primaryKey;size:32" json:"id"`
	Title string `gorm:"size:512" json:"title"`
	URL   string `gorm:"size:1024" json:"url"`
}

type Setting struct {
	Key   string `gorm:"primaryKey;size:128" json:"key"`
	Value string `gorm:"type:text" json:"value"`
}

// ViewedEntry 浏览记录和标题的联表结果
type ViewedEntry struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	ViewedAt time.Time `json:"viewedAt"`
}

const viewedSetKey = "hnreader:viewed"

type Store struct {
	DB    *gorm.DB
	Redis *redis.Client

	now func() time.Time
}

// NewStore dsn 为 postgres 连接串时使用 postgres，否则视为 sqlite 文件路径；
// redisAddr 为空时不启用 Redis，浏览记录只查数据库
func NewStore(dsn, redisAddr string) (*Store, error) {
	dialector, err := openDialector(dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Favorite{}, &ViewedStory{}, &StoryDetail{}, &Setting{}); err != nil {
		return nil, err
	}

	s := &Store{DB: db, now: time.Now}
	if redisAddr == "" {
		return s, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("redis ping failed")
	}
	s.Redis = rdb

	return s, nil
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=")
}

func openDialector(dsn string) (gorm.Dialector, error) {
	if isPostgresDSN(dsn) {
		return postgres.Open(dsn), nil
	}

	path, err := expandHome(dsn)
	if err != nil {
		return nil, err
	}
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	return sqlite.Open(path), nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// SetClock 替换写入 AddedAt / ViewedAt 时使用的时钟
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Store) Close() error {
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AddFavorite 已存在时整体覆盖，并重置完成状态
func (s *Store) AddFavorite(item collector.ListingItem, extra map[string]any) error {
	fav := &Favorite{
		ID:            item.ID,
		Title:         toValidUTF8(item.Title),
		URL:           item.TargetURL,
		Domain:        item.DisplayDomain,
		By:            item.Author,
		Score:         item.Score,
		TimeAgo:       item.RelativeAge,
		CommentsCount: item.CommentCount,
		Extra:         datatypes.JSONMap(extra),
		AddedAt:       s.now(),
	}
	return s.DB.Clauses(clause.OnConflict{UpdateAll: true}).Create(fav).Error
}

func (s *Store) RemoveFavorite(id string) error {
	return s.DB.Delete(&Favorite{}, "id = ?", id).Error
}

func (s *Store) IsFavorite(id string) (bool, error) {
	var n int64
	if err := s.DB.Model(&Favorite{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// ToggleFavoriteDone 返回切换后的状态
func (s *Store) ToggleFavoriteDone(id string) (bool, error) {
	res := s.DB.Model(&Favorite{}).Where("id = ?", id).Update("done", gorm.Expr("NOT done"))
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, ErrNotFound
	}

	var fav Favorite
	if err := s.DB.Select("done").First(&fav, "id = ?", id).Error; err != nil {
		return false, err
	}
	return fav.Done, nil
}

// ClearDoneFavorites 返回删除数量
func (s *Store) ClearDoneFavorites() (int64, error) {
	res := s.DB.Where("done = ?", true).Delete(&Favorite{})
	return res.RowsAffected, res.Error
}

// ListFavorites 未完成的在前，同组内按收藏时间倒序
func (s *Store) ListFavorites() ([]Favorite, error) {
	var list []Favorite
	if err := s.DB.Order("done ASC").Order("added_at DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// MarkViewed 更新浏览时间，并同步到 Redis 集合
func (s *Store) MarkViewed(id string) error {
	v := &ViewedStory{ID: id, ViewedAt: s.now()}
	err := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"viewed_at"}),
	}).Create(v).Error
	if err != nil {
		return err
	}

	if s.Redis != nil {
		if err := s.Redis.SAdd(context.Background(), viewedSetKey, id).Err(); err != nil {
			log.WithError(err).WithField("id", id).Debug("redis sadd viewed failed")
		}
	}
	return nil
}

// IsViewed 先查 Redis，未命中或不可用时查数据库
func (s *Store) IsViewed(id string) (bool, error) {
	if s.Redis != nil {
		if ok, err := s.Redis.SIsMember(context.Background(), viewedSetKey, id).Result(); err == nil && ok {
			return true, nil
		}
	}

	var n int64
	if err := s.DB.Model(&ViewedStory{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) ViewedIDs() ([]string, error) {
	var ids []string
	if err := s.DB.Model(&ViewedStory{}).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ViewedStories 按浏览时间倒序；没有标题记录的显示为 Unknown Title
func (s *Store) ViewedStories() ([]ViewedEntry, error) {
	var list []ViewedEntry
	err := s.DB.Table("viewed_stories AS v").
		Select("v.id AS id, COALESCE(d.title, 'Unknown Title') AS title, v.viewed_at AS viewed_at").
		Joins("LEFT JOIN story_details AS d ON v.id = d.id").
		Order("v.viewed_at DESC").
		Scan(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

// SaveStoryDetails 批量写入标题，已存在时覆盖
func (s *Store) SaveStoryDetails(items []collector.ListingItem) error {
	details := make([]StoryDetail, 0, len(items))
	for _, it := range items {
		if it.ID == "" {
			continue
		}
		details = append(details, StoryDetail{
			ID:    it.ID,
			Title: toValidUTF8(it.Title),
			URL:   it.TargetURL,
		})
	}
	if len(details) == 0 {
		return nil
	}
	return s.DB.Clauses(clause.OnConflict{UpdateAll: true}).Create(&details).Error
}

func (s *Store) SaveSetting(key, value string) error {
	return s.DB.Clauses(clause.OnConflict{UpdateAll: true}).Create(&Setting{Key: key, Value: value}).Error
}

// GetSetting 不存在时返回 "", false, nil
func (s *Store) GetSetting(key string) (string, bool, error) {
	var st Setting
	err := s.DB.Session(&gorm.Session{Logger: logger.Default.LogMode(logger.Silent)}).
		First(&st, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return st.Value, true, nil
}

// toValidUTF8 避免 PostgreSQL invalid byte sequence 错误
func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}
