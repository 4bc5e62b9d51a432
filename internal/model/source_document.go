package model

// DocumentOrigin 素材来源
type DocumentOrigin string

const (
	OriginMetadata   DocumentOrigin = "metadata"
	OriginTranscript DocumentOrigin = "transcript"
	OriginPDF        DocumentOrigin = "pdf"
	OriginUpload     DocumentOrigin = "upload"
)

// SourceDocument 一份归一化后的参考素材，按次生成组装，不落库
type SourceDocument struct {
	CourseID      string         `json:"courseId"`
	Origin        DocumentOrigin `json:"origin"`
	Name          string         `json:"name"`
	Text          string         `json:"text"`
	SequenceIndex int            `json:"sequenceIndex"`
}
