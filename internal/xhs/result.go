// File: internal/xhs/result.go
package xhs

import (
	"time"

	"github.com/google/uuid"
)

// Result is what every workflow returns. Failures never cross the package
// boundary as Go errors; they are folded into Success, Error and Code.
type Result struct {
	Success    bool      `json:"success"`
	Operation  string    `json:"operation"`
	Message    string    `json:"message"`
	Code       Code      `json:"code"`
	Data       any       `json:"data,omitempty"`
	Error      string    `json:"error,omitempty"`
	RunID      string    `json:"runId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Duration is FinishedAt minus StartedAt.
func (r Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Ambiguous reports whether the browser state did not settle either way.
func (r Result) Ambiguous() bool {
	return r.Code == CodeAmbiguous
}

func newResult(op string, started, finished time.Time, data any, message string, err error) Result {
	r := Result{
		Operation:  op,
		RunID:      uuid.NewString(),
		StartedAt:  started,
		FinishedAt: finished,
		Data:       data,
		Message:    message,
		Code:       Classify(err),
	}
	if err != nil {
		r.Error = err.Error()
		if r.Message == "" {
			r.Message = err.Error()
		}
		return r
	}
	r.Success = true
	return r
}

// LoginData is the payload of Login.
type LoginData struct {
	Status string `json:"status"`
	// Action is "none" when a session was already active.
	Action string `json:"action"`
}

// LogoutData is the payload of Logout.
type LogoutData struct {
	Status  string `json:"status"`
	Removed bool   `json:"removed"`
}

// StatusData is the payload of Status.
type StatusData struct {
	LoggedIn   bool   `json:"loggedIn"`
	Status     string `json:"status"`
	URLChecked string `json:"urlChecked,omitempty"`
	CookieFile any    `json:"cookieFile,omitempty"`
}

// PublishData is the payload of PublishImage and PublishVideo.
type PublishData struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Tags       []string `json:"tags,omitempty"`
	ImageCount int      `json:"imageCount"`
	Video      string   `json:"video,omitempty"`
	URL        string   `json:"url"`
	NoteID     string   `json:"noteId,omitempty"`
	// NoteIDSource names the strategy that found NoteID.
	NoteIDSource string `json:"noteIdSource,omitempty"`
	// Implicit is set when success was inferred from leaving the editor.
	Implicit bool `json:"implicit,omitempty"`
}

// NotesData is the payload of ListNotes.
type NotesData struct {
	Notes      []Note `json:"notes"`
	Total      int    `json:"total"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// DeleteData is the payload of DeleteNote and DeleteLastNote.
type DeleteData struct {
	NoteID    string    `json:"noteId"`
	Title     string    `json:"title"`
	Confirmed bool      `json:"confirmed"`
	DeletedAt time.Time `json:"deletedAt"`
}

// FeedsData is the payload of Feeds and Search.
type FeedsData struct {
	Keyword string     `json:"keyword,omitempty"`
	Feeds   []FeedItem `json:"feeds"`
	Count   int        `json:"count"`
	URL     string     `json:"url"`
	Source  string     `json:"source,omitempty"`
}

// DetailData is the payload of NoteDetail.
type DetailData struct {
	FeedID string         `json:"feedId"`
	Detail map[string]any `json:"detail"`
	URL    string         `json:"url"`
}

// CommentData is the payload of Comment.
type CommentData struct {
	FeedID string `json:"feedId"`
	Text   string `json:"text"`
	URL    string `json:"url"`
}
