package net

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// Dispatcher 平台请求调度器 (通用组件)
// 每个广告平台一个熔断器：某平台连续失败后快速拒绝，避免刷 Token / 同步任务
// 把故障平台的超时叠加到整轮任务上
type Dispatcher interface {
	// Send 发送 HTTP 请求
	// platform: 平台标识（熔断粒度）
	// req: 标准的 http.Request 对象
	Send(ctx context.Context, platform string, req *http.Request) (*http.Response, error)
}

// httpDispatcher 是 Dispatcher 接口的具体实现
// 注意：它是私有的，外部只能通过 NewDispatcher 获取接口
type httpDispatcher struct {
	client   *http.Client
	breakers sync.Map // platform -> *gobreaker.CircuitBreaker
}

var _ Dispatcher = (*httpDispatcher)(nil)

func NewDispatcher() Dispatcher {
	return &httpDispatcher{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: 30 * time.Second,
		},
	}
}

// Send 发送 HTTP 请求（经过对应平台的熔断器）
func (d *httpDispatcher) Send(ctx context.Context, platform string, req *http.Request) (*http.Response, error) {
	cb := d.getBreaker(platform)

	result, err := cb.Execute(func() (interface{}, error) {
		resp, err := d.client.Do(req.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		// 5xx 视为平台故障计入熔断；4xx 是业务层错误，由调用方解析
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, fmt.Errorf("platform %s server error: %d", platform, resp.StatusCode)
		}
		return resp, nil
	})

	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("platform %s circuit open: %w", platform, err)
		}
		return nil, err
	}

	return result.(*http.Response), nil
}

// getBreaker 获取/创建平台熔断器 (LoadOrStore 防止并发重复创建)
func (d *httpDispatcher) getBreaker(platform string) *gobreaker.CircuitBreaker {
	if val, ok := d.breakers.Load(platform); ok {
		return val.(*gobreaker.CircuitBreaker)
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        platform,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// 连续 5 次失败后熔断
			return counts.ConsecutiveFailures >= 5
		},
	})

	actual, _ := d.breakers.LoadOrStore(platform, cb)
	return actual.(*gobreaker.CircuitBreaker)
}
