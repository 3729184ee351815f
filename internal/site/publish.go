package site

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type PublishConfig struct {
	Posts    PostWriter
	Uploads  Uploader
	Verifier TokenVerifier
	Logger   *zap.Logger
}

type PublishResponse struct {
	OK   bool   `json:"ok"`
	ID   string `json:"id"`
	Post Post   `json:"post"`
}

// PublishHandler is POST /api/publish: one best-effort sequence of
// verify identity, upload the image (if any), assemble the Post, and
// persist it. Each step surfaces its own error and aborts the rest; the
// sequence is not atomic, and a store failure after a successful upload
// leaves the uploaded image in place.
func PublishHandler(cfg PublishConfig) http.HandlerFunc {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			WriteAPIError(w, http.StatusBadRequest, APIError{
				Code:    "VALIDATION_ERROR",
				Message: "invalid multipart body",
				Hint:    err.Error(),
			})
			return
		}
		values := FormValues(r.PostForm)

		// Readiness checks come before any upload or store call.
		token := identityFromRequest(r, values)
		subject, ok := cfg.Verifier.Verify(token)
		if !ok {
			WriteAPIError(w, http.StatusUnauthorized, APIError{
				Code:    "AUTH_REQUIRED",
				Message: "authentication required",
				Hint:    "Sign in (or supply an identity token) before publishing.",
			})
			return
		}

		story := strings.TrimSpace(values["story"])
		if story == "" {
			WriteAPIError(w, http.StatusBadRequest, APIError{
				Code:    "NOTHING_TO_PUBLISH",
				Message: "nothing to publish: generate a story first",
			})
			return
		}

		imageURL := ""
		file, header, err := r.FormFile("image")
		switch err {
		case nil:
			defer file.Close()
			saved, saveErr := cfg.Uploads.Save(subject, header.Filename, file)
			if saveErr != nil {
				logger.Warn("image upload failed",
					zap.String("subject", subject),
					zap.Error(saveErr))
				WriteAPIError(w, http.StatusBadGateway, APIError{
					Code:    "UPLOAD_FAILED",
					Message: "image upload failed: " + saveErr.Error(),
					Hint:    "No post was created; retry the publish action.",
				})
				return
			}
			imageURL = saved.URL
		case http.ErrMissingFile:
			// No image selected; the post gets a null image reference.
		default:
			WriteAPIError(w, http.StatusBadRequest, APIError{
				Code:    "VALIDATION_ERROR",
				Message: "invalid image field",
				Hint:    err.Error(),
			})
			return
		}

		post := postFromForm(values)
		post.PublisherID = subject
		post.Story = story
		post.Tags = SplitTags(values["tags"])
		post.ImageURL = imageURL

		if err := cfg.Posts.CreatePost(r.Context(), &post); err != nil {
			logger.Error("failed to persist post",
				zap.String("subject", subject),
				zap.Error(err))
			hint := "Retry the publish action."
			if imageURL != "" {
				// The upload is not rolled back; republishing uploads again.
				hint = "Retry the publish action; the uploaded image is kept but unreferenced."
			}
			WriteAPIError(w, http.StatusInternalServerError, APIError{
				Code:    "STORE_FAILED",
				Message: "failed to save the post: " + err.Error(),
				Hint:    hint,
			})
			return
		}

		logger.Info("post published",
			zap.String("id", post.ID),
			zap.String("subject", subject),
			zap.Bool("hasImage", imageURL != ""),
			zap.Time("createdAt", post.CreatedAt))
		writeJSON(w, PublishResponse{OK: true, ID: post.ID, Post: post})
	}
}
