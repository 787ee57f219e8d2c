package utils

import (
	"sync"
	"time"
)

// StateCache OAuth state 缓存
// 替代浏览器侧存储：state -> "verifier:team_id"，跨 callback 请求存活
// 显式注入到 OAuthService，不做全局单例以便测试
type StateCache struct {
	items sync.Map
	ttl   time.Duration
}

// cacheItem 内部结构，包含值和过期时间
type cacheItem struct {
	value      string
	expiration int64
}

// NewStateCache 创建缓存，ttl 为单条有效期
func NewStateCache(ttl time.Duration) *StateCache {
	if ttl <= 0 {
		// 默认 10 分钟，足够完成一次授权流程
		ttl = 10 * time.Minute
	}
	return &StateCache{ttl: ttl}
}

// Set 设置缓存
func (c *StateCache) Set(key, value string) {
	c.items.Store(key, cacheItem{
		value:      value,
		expiration: time.Now().Add(c.ttl).UnixNano(),
	})
}

// Get 获取缓存并校验过期（懒删除）
func (c *StateCache) Get(key string) (string, bool) {
	val, ok := c.items.Load(key)
	if !ok {
		return "", false
	}

	item := val.(cacheItem)
	if time.Now().UnixNano() > item.expiration {
		c.items.Delete(key)
		return "", false
	}
	return item.value, true
}

// Delete 删除缓存（state 用完即焚，保证授权码换取只能发生一次）
func (c *StateCache) Delete(key string) {
	c.items.Delete(key)
}
