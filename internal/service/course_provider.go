package service

import (
	"bytes"
	"context"
	"course_assessment_backend/internal/config"
	"course_assessment_backend/pkg/logger"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// NamedBlob 带名称的二进制资源（课程附带的 PDF 等）
type NamedBlob struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// CourseContent 内容平台返回的单门课程原始素材
type CourseContent struct {
	CourseID   string          `json:"courseId"`
	Metadata   json.RawMessage `json:"metadata"`
	Transcript string          `json:"transcript"`
	PDFs       []NamedBlob     `json:"pdfs"`
}

// CourseProvider 外部课程内容平台的抽象
type CourseProvider interface {
	FetchCourse(ctx context.Context, courseID string) (*CourseContent, error)
}

const courseCacheKeyPrefix = "course_content:"

// PlatformCourseProvider 通过内容平台的搜索接口和转码统计接口拉取素材，
// 结果在 Redis 中缓存一段时间，重复提交走快速路径
type PlatformCourseProvider struct {
	cfg    config.ProviderConfig
	client *http.Client
	redis  *redis.Client

	mu       sync.RWMutex
	cacheTTL time.Duration
}

func NewPlatformCourseProvider(cfg config.ProviderConfig, rdb *redis.Client) *PlatformCourseProvider {
	return &PlatformCourseProvider{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		redis:    rdb,
		cacheTTL: cfg.CacheTTL,
	}
}

// SetCacheTTL 配置热更新入口，只影响之后的缓存写入
func (p *PlatformCourseProvider) SetCacheTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	p.mu.Lock()
	p.cacheTTL = ttl
	p.mu.Unlock()
}

func (p *PlatformCourseProvider) currentTTL() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cacheTTL <= 0 {
		return time.Hour
	}
	return p.cacheTTL
}

type contentNode struct {
	Identifier  string        `json:"identifier"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Keywords    []string      `json:"keywords"`
	MimeType    string        `json:"mimeType"`
	ArtifactURL string        `json:"artifactUrl"`
	Children    []contentNode `json:"children"`
	LeafNodes   []string      `json:"leafNodes"`
}

type searchResponse struct {
	Result struct {
		Content []contentNode `json:"content"`
	} `json:"result"`
}

func (p *PlatformCourseProvider) FetchCourse(ctx context.Context, courseID string) (*CourseContent, error) {
	if cached := p.fromCache(ctx, courseID); cached != nil {
		logger.Log.Debug("course content cache hit", zap.String("courseId", courseID))
		return cached, nil
	}

	node, err := p.searchContent(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, fmt.Errorf("course %s not found on content platform", courseID)
	}

	content := &CourseContent{
		CourseID: courseID,
		Metadata: extractMetadata(node),
	}

	// 课程附带的 PDF 资源（含子节点）
	for _, res := range findPDFResources(node, nil) {
		data, err := p.download(ctx, res.ArtifactURL)
		if err != nil {
			logger.Log.Warn("failed to download course PDF",
				zap.String("courseId", courseID), zap.String("name", res.Name), zap.Error(err))
			continue
		}
		content.PDFs = append(content.PDFs, NamedBlob{Name: res.Name, Data: data})
	}

	// 课程视频的英文字幕轨
	var transcript strings.Builder
	for _, video := range findVideoChildren(node, nil) {
		vtt, err := p.fetchVTT(ctx, video.Identifier)
		if err != nil {
			logger.Log.Warn("failed to fetch video transcript",
				zap.String("courseId", courseID), zap.String("videoId", video.Identifier), zap.Error(err))
			continue
		}
		if vtt != "" {
			transcript.WriteString(vtt)
			transcript.WriteString("\n")
		}
	}
	content.Transcript = transcript.String()

	p.toCache(ctx, courseID, content)
	return content, nil
}

func (p *PlatformCourseProvider) searchContent(ctx context.Context, identifier string) (*contentNode, error) {
	body := map[string]interface{}{
		"request": map[string]interface{}{
			"filters": map[string]string{"identifier": identifier},
			"status":  []string{"Live"},
			"limit":   1,
		},
	}
	payload, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.SearchURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("content search failed for %s (status %d)", identifier, resp.StatusCode)
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if len(result.Result.Content) == 0 {
		return nil, nil
	}
	return &result.Result.Content[0], nil
}

// fetchVTT 从转码统计接口找出英文字幕地址并下载拼接
func (p *PlatformCourseProvider) fetchVTT(ctx context.Context, videoID string) (string, error) {
	url := fmt.Sprintf("%s?resource_id=%s", p.cfg.StatsURL, videoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcoder stats failed for %s (status %d)", videoID, resp.StatusCode)
	}

	var stats interface{}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return "", err
	}

	var combined strings.Builder
	for _, vttURL := range extractVTTURLs(stats, nil) {
		lower := strings.ToLower(vttURL)
		if !strings.Contains(lower, "/en/") && !strings.Contains(lower, "/english/") {
			continue
		}
		data, err := p.download(ctx, vttURL)
		if err != nil {
			logger.Log.Warn("failed to download subtitle track", zap.String("url", vttURL), zap.Error(err))
			continue
		}
		combined.Write(data)
		combined.WriteString("\n")
	}
	return combined.String(), nil
}

// download CDN 签名链接不带平台鉴权头
func (p *PlatformCourseProvider) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed (status %d)", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (p *PlatformCourseProvider) fromCache(ctx context.Context, courseID string) *CourseContent {
	if p.redis == nil {
		return nil
	}
	raw, err := p.redis.Get(ctx, courseCacheKeyPrefix+courseID).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Log.Warn("course cache read failed", zap.Error(err))
		}
		return nil
	}
	var content CourseContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil
	}
	return &content
}

func (p *PlatformCourseProvider) toCache(ctx context.Context, courseID string, content *CourseContent) {
	if p.redis == nil {
		return
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return
	}
	if err := p.redis.Set(ctx, courseCacheKeyPrefix+courseID, raw, p.currentTTL()).Err(); err != nil {
		logger.Log.Warn("course cache write failed", zap.Error(err))
	}
}

func extractMetadata(node *contentNode) json.RawMessage {
	meta := map[string]interface{}{
		"identifier":  node.Identifier,
		"name":        node.Name,
		"description": node.Description,
		"keywords":    node.Keywords,
	}
	raw, _ := json.Marshal(meta)
	return raw
}

func findPDFResources(node *contentNode, found []*contentNode) []*contentNode {
	if node.MimeType == "application/pdf" && node.ArtifactURL != "" {
		found = append(found, node)
	}
	for i := range node.Children {
		found = findPDFResources(&node.Children[i], found)
	}
	return found
}

func findVideoChildren(node *contentNode, found []*contentNode) []*contentNode {
	if node.MimeType == "video/mp4" {
		found = append(found, node)
	}
	for i := range node.Children {
		found = findVideoChildren(&node.Children[i], found)
	}
	return found
}

func extractVTTURLs(obj interface{}, found []string) []string {
	switch v := obj.(type) {
	case string:
		if strings.HasSuffix(v, ".vtt") {
			found = append(found, v)
		}
	case []interface{}:
		for _, item := range v {
			found = extractVTTURLs(item, found)
		}
	case map[string]interface{}:
		for _, value := range v {
			found = extractVTTURLs(value, found)
		}
	}
	return found
}
