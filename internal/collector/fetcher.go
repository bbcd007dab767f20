package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// ErrFetchFailed 网络错误、超时或非 2xx 状态都归为这一种结果
var ErrFetchFailed = errors.New("fetch failed")

// Fetcher 抽象对固定地址的 GET 请求，只负责拿到原始 HTML
type Fetcher interface {
	Get(ctx context.Context, url string) (string, error)
}

// CollyFetcher 基于 colly 的 Fetcher 实现。TLS、超时等由注入的 http.Client 决定
type CollyFetcher struct {
	base *colly.Collector
}

// FetcherOption 调整底层 collector
type FetcherOption func(c *colly.Collector)

// WithHTTPClient 注入外部 http.Client（超时、TLS、代理都在 client 上配置）
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(c *colly.Collector) {
		c.SetClient(client)
	}
}

func WithUserAgent(ua string) FetcherOption {
	return func(c *colly.Collector) {
		if ua != "" {
			c.UserAgent = ua
		}
	}
}

func WithTimeout(d time.Duration) FetcherOption {
	return func(c *colly.Collector) {
		if d > 0 {
			c.SetRequestTimeout(d)
		}
	}
}

func NewCollyFetcher(opts ...FetcherOption) *CollyFetcher {
	c := colly.NewCollector(
		colly.UserAgent(DefaultUserAgent),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(maxResponseBytes),
	)
	c.SetRequestTimeout(defaultRequestTimeout)
	for _, opt := range opts {
		opt(c)
	}
	return &CollyFetcher{base: c}
}

// Get 每次请求 clone 一个 collector，回调互不干扰，可并发调用。
// ctx 结束时立即返回，后台请求由超时兜底
func (f *CollyFetcher) Get(ctx context.Context, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrFetchFailed, url, err)
	}

	c := f.base.Clone()
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	var body []byte
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})

	done := make(chan fetchResult, 1)
	go func() {
		err := c.Visit(url)
		done <- fetchResult{body: body, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %s: %w", ErrFetchFailed, url, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrFetchFailed, url, res.err)
		}
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrFetchFailed, url, err)
		}
		return string(res.body), nil
	}
}

type fetchResult struct {
	body []byte
	err  error
}
