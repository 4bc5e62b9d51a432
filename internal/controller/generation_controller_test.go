package controller

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitAndTrim(t *testing.T) {
	assert.Equal(t, []string{"do_1", "do_2"}, splitAndTrim(" do_1 , do_2 ,, "))
	assert.Nil(t, splitAndTrim(""))
}

func TestParseCount(t *testing.T) {
	n, err := parseCount("", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	n, err = parseCount("7", 10)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = parseCount("abc", 10)
	assert.Error(t, err)

	_, err = parseCount("-1", 10)
	assert.Error(t, err)
}

func formContext(t *testing.T, values url.Values) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest("POST", "/api/assessments/generate", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	ctx.Request = req
	return ctx
}

func TestParseJobConfigDefaults(t *testing.T) {
	ctx := formContext(t, url.Values{})

	cfg, err := parseJobConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Intermediate", cfg.Difficulty)
	assert.Equal(t, "English", cfg.Language)
	assert.Equal(t, 10, cfg.MCQCount)
	assert.Equal(t, 5, cfg.FTBCount)
	assert.Equal(t, 3, cfg.MTFCount)
}

func TestParseJobConfigBloomsWeights(t *testing.T) {
	ctx := formContext(t, url.Values{
		"bloomsWeights":  {`{"Apply": 60, "Analyze": 40}`},
		"mcqCount":       {"8"},
		"priorityTopics": {"loops, arrays"},
	})

	cfg, err := parseJobConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.MCQCount)
	assert.Equal(t, map[string]int{"Apply": 60, "Analyze": 40}, cfg.BloomsWeights)
	assert.Equal(t, []string{"loops", "arrays"}, cfg.PriorityTopics)
}

func TestParseJobConfigRejectsBadWeights(t *testing.T) {
	ctx := formContext(t, url.Values{"bloomsWeights": {"not-json"}})
	_, err := parseJobConfig(ctx)
	assert.Error(t, err)
}
