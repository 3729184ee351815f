package site

import (
	"bytes"
	"html/template"
	"net/http"

	"go.uber.org/zap"
)

// DefaultFeedLimit is how many recent posts the feed shows.
const DefaultFeedLimit = 20

type FeedConfig struct {
	Posts  PostLister
	Limit  int
	Logger *zap.Logger
}

type FeedResponse struct {
	OK    bool   `json:"ok"`
	Posts []Post `json:"posts"`
}

// FeedHandler is GET /api/feed: the most recent posts, newest first. An
// empty feed is a successful response with an empty list; only a store
// failure produces {ok:false}.
func FeedHandler(cfg FeedConfig) http.HandlerFunc {
	limit := cfg.Limit
	if limit <= 0 {
		limit = DefaultFeedLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		posts, err := cfg.Posts.RecentPosts(r.Context(), limit)
		if err != nil {
			logger.Error("failed to load feed", zap.Error(err))
			WriteAPIError(w, http.StatusInternalServerError, APIError{
				Code:    "FEED_FAILED",
				Message: "failed to load posts",
				Hint:    "Reload the page to retry.",
			})
			return
		}
		if posts == nil {
			posts = []Post{}
		}
		writeJSON(w, FeedResponse{OK: true, Posts: posts})
	}
}

// Card and detail fragments. html/template escapes every author-supplied
// field, so names, places, and stories can never inject markup.
var postCardTmpl = template.Must(template.New("postCard").Parse(`<div class="post-card" data-post-id="{{.ID}}">
  {{if .ImageURL}}<img src="{{.ImageURL}}" alt="{{.ProductName}}" />{{end}}
  <div class="post-card-body">
    <h3>{{.ProductName}}</h3>
    <p>By {{.Name}} from {{.Place}}</p>
  </div>
</div>`))

var postDetailTmpl = template.Must(template.New("postDetail").Parse(`<div class="post-detail">
  <h2>{{.ProductName}}</h2>
  {{if .ImageURL}}<img src="{{.ImageURL}}" alt="{{.ProductName}}" />{{end}}
  <p class="story"><strong>Story:</strong> {{.Story}}</p>
  <p class="tags">{{range $i, $tag := .Tags}}{{if $i}}, {{end}}{{$tag}}{{end}}</p>
</div>`))

// RenderPostCard renders one clickable feed card.
func RenderPostCard(post Post) (template.HTML, error) {
	var buf bytes.Buffer
	if err := postCardTmpl.Execute(&buf, post); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// RenderPostDetail renders the detail view for an opened card.
func RenderPostDetail(post Post) (template.HTML, error) {
	var buf bytes.Buffer
	if err := postDetailTmpl.Execute(&buf, post); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// FeedErrorHTML is the server-rendered fragment for a failed feed load,
// distinct from the empty-feed state.
func FeedErrorHTML() template.HTML {
	return template.HTML(`<p class="feed-error">Error loading posts.</p>`)
}

// RenderFeedHTML renders the initial server-side feed. Zero posts is a
// distinct, explicit state, not an error.
func RenderFeedHTML(posts []Post) (template.HTML, error) {
	if len(posts) == 0 {
		return template.HTML(`<p class="feed-empty">No posts yet. Publish the first story!</p>`), nil
	}
	var buf bytes.Buffer
	for _, post := range posts {
		card, err := RenderPostCard(post)
		if err != nil {
			return "", err
		}
		buf.WriteString(string(card))
		buf.WriteString("\n")
	}
	return template.HTML(buf.String()), nil
}
