package service

import (
	"course_assessment_backend/internal/config"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheTTLHotReload(t *testing.T) {
	p := NewPlatformCourseProvider(config.ProviderConfig{CacheTTL: time.Hour}, nil)
	assert.Equal(t, time.Hour, p.currentTTL())

	// 写缓存读取的是当前值，热更新后立即生效
	p.SetCacheTTL(5 * time.Minute)
	assert.Equal(t, 5*time.Minute, p.currentTTL())

	// 非法值不覆盖现有配置
	p.SetCacheTTL(0)
	assert.Equal(t, 5*time.Minute, p.currentTTL())
}

func TestCacheTTLDefaultsWhenUnset(t *testing.T) {
	p := NewPlatformCourseProvider(config.ProviderConfig{}, nil)
	assert.Equal(t, time.Hour, p.currentTTL())
}

func TestExtractVTTURLs(t *testing.T) {
	stats := map[string]interface{}{
		"tracks": []interface{}{
			map[string]interface{}{"url": "https://cdn.example.com/en/track.vtt"},
			map[string]interface{}{"url": "https://cdn.example.com/hi/track.vtt"},
			map[string]interface{}{"url": "https://cdn.example.com/en/video.mp4"},
		},
	}

	urls := extractVTTURLs(stats, nil)
	assert.ElementsMatch(t, []string{
		"https://cdn.example.com/en/track.vtt",
		"https://cdn.example.com/hi/track.vtt",
	}, urls)
}
