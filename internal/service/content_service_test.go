package service

import (
	"context"
	"course_assessment_backend/internal/model"
	"course_assessment_backend/internal/util"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	courses map[string]*CourseContent
}

func (p *stubProvider) FetchCourse(ctx context.Context, courseID string) (*CourseContent, error) {
	if content, ok := p.courses[courseID]; ok {
		return content, nil
	}
	return nil, fmt.Errorf("course %s not found", courseID)
}

func TestCleanVTTStripsCues(t *testing.T) {
	raw := "WEBVTT\n\n1\n00:00:01.000 --> 00:00:04.000\nHello there\n\n2\n00:00:05.000 --> 00:00:08.000\nWelcome to the course\n"
	assert.Equal(t, "Hello there\nWelcome to the course", CleanVTT(raw))
}

func TestCleanVTTKeepsMixedNumericText(t *testing.T) {
	raw := "WEBVTT\nChapter 2 covers loops\n42\n"
	// 纯数字行是序号，带文字的数字保留
	assert.Equal(t, "Chapter 2 covers loops", CleanVTT(raw))
}

func TestAggregateContinuesWhenOneCourseFails(t *testing.T) {
	provider := &stubProvider{courses: map[string]*CourseContent{
		"do_1": {CourseID: "do_1", Transcript: "WEBVTT\n00:00:01.000 --> 00:00:02.000\nlesson text\n"},
	}}
	collector := NewContentCollector(provider)

	docs, err := collector.Aggregate(context.Background(), []string{"do_1", "do_missing"}, nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, model.OriginTranscript, docs[0].Origin)
	assert.Equal(t, "lesson text", docs[0].Text)
}

func TestAggregateFailsWhenNothingUsable(t *testing.T) {
	collector := NewContentCollector(&stubProvider{courses: map[string]*CourseContent{}})

	_, err := collector.Aggregate(context.Background(), []string{"do_missing"}, nil)
	assert.ErrorIs(t, err, util.ErrNoContentAvailable)
}

func TestAggregateMetadataAloneIsNotEnough(t *testing.T) {
	provider := &stubProvider{courses: map[string]*CourseContent{
		"do_1": {CourseID: "do_1", Metadata: []byte(`{"name":"Course"}`)},
	}}
	collector := NewContentCollector(provider)

	_, err := collector.Aggregate(context.Background(), []string{"do_1"}, nil)
	assert.ErrorIs(t, err, util.ErrNoContentAvailable)
}

func TestAggregateIncludesCourseMetadata(t *testing.T) {
	provider := &stubProvider{courses: map[string]*CourseContent{
		"do_1": {CourseID: "do_1", Metadata: []byte(`{"name":"Course"}`), Transcript: "spoken"},
	}}
	collector := NewContentCollector(provider)

	docs, err := collector.Aggregate(context.Background(), []string{"do_1"}, nil)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, model.OriginMetadata, docs[0].Origin)
	assert.Equal(t, model.OriginTranscript, docs[1].Origin)
}

func TestAggregateAppendsUploadsAfterCourseMaterial(t *testing.T) {
	provider := &stubProvider{courses: map[string]*CourseContent{
		"do_1": {CourseID: "do_1", Transcript: "spoken text"},
	}}
	collector := NewContentCollector(provider)

	uploads := []model.SourceDocument{
		{Origin: model.OriginUpload, Name: "notes.txt", Text: "extra notes"},
		{Origin: model.OriginUpload, Name: "empty.txt", Text: "   "},
	}

	docs, err := collector.Aggregate(context.Background(), []string{"do_1"}, uploads)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, model.OriginUpload, docs[1].Origin)
	assert.Equal(t, 1, docs[1].SequenceIndex)
}

func TestNormalizeUploadSubtitles(t *testing.T) {
	collector := NewContentCollector(&stubProvider{})

	doc, err := collector.NormalizeUpload("extra.vtt", []byte("WEBVTT\n00:00:01.000 --> 00:00:02.000\nsubtitle line\n"))
	require.NoError(t, err)
	assert.Equal(t, model.OriginUpload, doc.Origin)
	assert.Equal(t, "subtitle line", doc.Text)
}

func TestNormalizeUploadPlainText(t *testing.T) {
	collector := NewContentCollector(&stubProvider{})

	doc, err := collector.NormalizeUpload("notes.md", []byte("  some notes  \n"))
	require.NoError(t, err)
	assert.Equal(t, "some notes", doc.Text)
}
