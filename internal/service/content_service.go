package service

import (
	"bytes"
	"context"
	"course_assessment_backend/internal/model"
	"course_assessment_backend/internal/util"
	"course_assessment_backend/pkg/logger"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// ContentCollector 把课程素材和补充上传聚合为一组归一化的纯文本文档。
// 单门课程拉取失败不会使整个任务失败，只要还有其他来源产出可用文本；
// 所有来源都拿不到文本时返回 ErrNoContentAvailable
type ContentCollector struct {
	Provider CourseProvider
}

func NewContentCollector(provider CourseProvider) *ContentCollector {
	return &ContentCollector{Provider: provider}
}

func (c *ContentCollector) Aggregate(ctx context.Context, courseIDs []string, uploads []model.SourceDocument) ([]model.SourceDocument, error) {
	docs := make([]model.SourceDocument, 0, len(courseIDs)+len(uploads))
	seq := 0

	for _, courseID := range courseIDs {
		content, err := c.Provider.FetchCourse(ctx, courseID)
		if err != nil {
			logger.Log.Warn("course content unavailable, continuing with remaining sources",
				zap.String("courseId", courseID), zap.Error(err))
			continue
		}

		// 课程元数据放在该课程素材之前，给模型提供课程背景
		if meta := strings.TrimSpace(string(content.Metadata)); meta != "" && meta != "null" && meta != "{}" {
			docs = append(docs, model.SourceDocument{
				CourseID:      courseID,
				Origin:        model.OriginMetadata,
				Name:          courseID + " metadata",
				Text:          meta,
				SequenceIndex: seq,
			})
			seq++
		}

		if transcript := CleanVTT(content.Transcript); transcript != "" {
			docs = append(docs, model.SourceDocument{
				CourseID:      courseID,
				Origin:        model.OriginTranscript,
				Name:          courseID + " transcript",
				Text:          transcript,
				SequenceIndex: seq,
			})
			seq++
		}

		for _, blob := range content.PDFs {
			text, err := ExtractPDFText(blob.Data)
			if err != nil {
				logger.Log.Warn("PDF extraction failed",
					zap.String("courseId", courseID), zap.String("name", blob.Name), zap.Error(err))
				continue
			}
			if text == "" {
				continue
			}
			docs = append(docs, model.SourceDocument{
				CourseID:      courseID,
				Origin:        model.OriginPDF,
				Name:          blob.Name,
				Text:          text,
				SequenceIndex: seq,
			})
			seq++
		}
	}

	// 上传的补充材料排在课程素材之后，保持提交顺序
	for _, upload := range uploads {
		if strings.TrimSpace(upload.Text) == "" {
			continue
		}
		upload.SequenceIndex = seq
		seq++
		docs = append(docs, upload)
	}

	// 仅有元数据不算可用素材，必须有字幕、PDF 或上传文本
	substantive := 0
	for _, doc := range docs {
		if doc.Origin != model.OriginMetadata {
			substantive++
		}
	}
	if substantive == 0 {
		return nil, util.ErrNoContentAvailable
	}
	return docs, nil
}

// NormalizeUpload 把一个上传文件转成归一化文档，PDF 走文本抽取，
// 字幕文件去掉时间轴，其余按纯文本处理
func (c *ContentCollector) NormalizeUpload(name string, data []byte) (model.SourceDocument, error) {
	doc := model.SourceDocument{
		Origin: model.OriginUpload,
		Name:   name,
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		text, err := ExtractPDFText(data)
		if err != nil {
			return doc, fmt.Errorf("upload %s: %w", name, err)
		}
		doc.Text = text
	case ".vtt", ".srt":
		doc.Text = CleanVTT(string(data))
	default:
		doc.Text = strings.TrimSpace(string(data))
	}

	return doc, nil
}

// CleanVTT 去掉 WEBVTT 头、时间轴和序号，保留口播文本
func CleanVTT(raw string) string {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(strings.ToUpper(line), "WEBVTT") {
			continue
		}
		if strings.Contains(line, "-->") {
			continue
		}
		if isDigits(line) {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(s) > 0
}

// ExtractPDFText 逐页抽取 PDF 纯文本
func ExtractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf plaintext: %w", err)
	}

	text, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf read: %w", err)
	}
	return strings.TrimSpace(string(text)), nil
}
