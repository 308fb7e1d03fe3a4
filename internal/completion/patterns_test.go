package completion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want Category
	}{
		{"发布成功", CategorySuccess},
		{"Upload SUCCESS", CategorySuccess},
		{"上传完成", CategorySuccess},
		{"发布失败，请重试", CategoryError},
		{"网络错误", CategoryError},
		{"视频处理中 45%", CategoryProcessing},
		{"Uploading...", CategoryProcessing},
		{"", CategoryNone},
		{"你好", CategoryNone},
		// Fail closed: both patterns present means error.
		{"部分成功，部分失败", CategoryError},
		{"success with error", CategoryError},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultPatterns.Classify(tt.text))
		})
	}
}

func TestCategoryString(t *testing.T) {
	assert.Equal(t, "error", CategoryError.String())
	assert.Equal(t, "none", Category(42).String())
	assert.Equal(t, "TIMED_OUT", TimedOut.String())
	assert.Equal(t, "State(9)", State(9).String())
}
