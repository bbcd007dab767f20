package scheduler

import (
	"context"
	"time"

	"github.com/LJTian/hnreader/internal/collector"
	"github.com/LJTian/hnreader/internal/ingest"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// DetailSaver 保存列表条目的标题等信息，供浏览记录展示
type DetailSaver interface {
	SaveStoryDetails(items []collector.ListingItem) error
}

// Scheduler 定时预热热门首页缓存，可选地清理过期的评论快照
type Scheduler struct {
	cron  *cron.Cron
	svc   *ingest.Service
	store DetailSaver

	startupDelay time.Duration
	jobTimeout   time.Duration
}

// New warmSpec 为空时不预热；sweepSpec 为空时不清理
func New(svc *ingest.Service, store DetailSaver, warmSpec, sweepSpec string) (*Scheduler, error) {
	c := cron.New()

	s := &Scheduler{
		cron:         c,
		svc:          svc,
		store:        store,
		startupDelay: 15 * time.Second,
		jobTimeout:   2 * time.Minute,
	}

	if warmSpec != "" {
		if _, err := c.AddFunc(warmSpec, s.runOnce); err != nil {
			return nil, err
		}
	}
	if sweepSpec != "" {
		if _, err := c.AddFunc(sweepSpec, s.sweep); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	// 延迟首轮预热，避免和启动时的首个请求抢同一个页面
	time.AfterFunc(s.startupDelay, func() {
		go s.runOnce()
	})
}

// Stop 等待正在执行的任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce 手动触发一次预热
func (s *Scheduler) RunOnce() {
	s.runOnce()
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	log.Info("start warm job...")
	items := s.svc.FetchListing(ctx, ingest.TabHot, 1, true)
	if len(items) == 0 {
		log.Warn("warm job got 0 items")
		return
	}

	if s.store != nil {
		if err := s.store.SaveStoryDetails(items); err != nil {
			log.WithError(err).Warn("save story details failed")
		}
	}
	log.WithField("count", len(items)).Info("warm job done")
}

func (s *Scheduler) sweep() {
	removed := s.Sweep()
	log.WithFields(log.Fields{"removed": removed, "threads": s.svc.Cache().Stats().Threads}).Info("swept thread cache")
}

// Sweep 按当前 TTL 清理一次过期评论快照，返回删除数量
func (s *Scheduler) Sweep() int {
	return s.svc.Cache().SweepThreads(s.svc.TTL())
}
