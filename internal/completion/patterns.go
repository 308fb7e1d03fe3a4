package completion

import "strings"

// Category is the meaning of a piece of status text.
type Category int

const (
	CategoryNone Category = iota
	CategorySuccess
	CategoryError
	CategoryProcessing
)

func (c Category) String() string {
	switch c {
	case CategorySuccess:
		return "success"
	case CategoryError:
		return "error"
	case CategoryProcessing:
		return "processing"
	default:
		return "none"
	}
}

// Patterns are the substrings that classify status text. Matching ignores case.
type Patterns struct {
	Success    []string `yaml:"success"`
	Error      []string `yaml:"error"`
	Processing []string `yaml:"processing"`
}

// DefaultPatterns covers the platform's Chinese and English status messages.
var DefaultPatterns = Patterns{
	Success:    []string{"成功", "success", "完成"},
	Error:      []string{"失败", "error", "错误"},
	Processing: []string{"处理中", "上传中", "processing", "uploading", "进度"},
}

// Classify returns the category of text. Error is checked first, so text
// matching both an error and a success pattern is an error.
func (p Patterns) Classify(text string) Category {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, p.Error):
		return CategoryError
	case containsAny(lower, p.Success):
		return CategorySuccess
	case containsAny(lower, p.Processing):
		return CategoryProcessing
	default:
		return CategoryNone
	}
}

func (p Patterns) empty() bool {
	return len(p.Success) == 0 && len(p.Error) == 0 && len(p.Processing) == 0
}

func containsAny(lower string, patterns []string) bool {
	for _, pat := range patterns {
		if pat != "" && strings.Contains(lower, strings.ToLower(pat)) {
			return true
		}
	}
	return false
}
