package service

import (
	"course_assessment_backend/internal/model"
	"sort"
	"strings"
)

// NormalizeCourseIDs 去空白、去重、按字典序排序，得到身份计算用的规范列表
func NormalizeCourseIDs(courseIDs []string) []string {
	seen := make(map[string]bool, len(courseIDs))
	normalized := make([]string, 0, len(courseIDs))
	for _, id := range courseIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		normalized = append(normalized, id)
	}
	sort.Strings(normalized)
	return normalized
}

// ComputeJobID 任务身份是 (课程集合, 测评类型) 的纯函数，
// 与提交顺序和重复项无关，同样的输入总是得到同一个 ID
func ComputeJobID(courseIDs []string, assessmentType model.AssessmentType) string {
	normalized := NormalizeCourseIDs(courseIDs)
	parts := make([]string, 0, len(normalized)+1)
	parts = append(parts, string(assessmentType))
	parts = append(parts, normalized...)
	return strings.Join(parts, "_")
}
