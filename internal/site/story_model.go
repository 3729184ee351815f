package site

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"google.golang.org/genai"
)

// StoryModelFunc turns a prompt into marketing story text plus tags.
type StoryModelFunc func(ctx context.Context, prompt string) (story string, tags []string, err error)

const (
	defaultStoryModel = "gemini-1.5-flash"
	storyTagsPrefix   = "TAGS:"
)

// NewGeminiStoryModel builds the default story model on the Gemini API.
func NewGeminiStoryModel(ctx context.Context, apiKey, model string) (StoryModelFunc, error) {
	if apiKey == "" {
		return nil, errors.New("Gemini API key is required")
	}
	if model == "" {
		model = defaultStoryModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(0.7)),
		TopP:             genai.Ptr(float32(0.9)),
		TopK:             genai.Ptr(float32(40)),
		MaxOutputTokens:  500,
		ResponseMIMEType: "text/plain",
	}

	return func(ctx context.Context, prompt string) (string, []string, error) {
		resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), config)
		if err != nil {
			return "", nil, fmt.Errorf("GenAI generate failed: %w", err)
		}
		story, tags, err := parseStoryOutput(resp.Text())
		if err != nil {
			return "", nil, err
		}
		return story, tags, nil
	}, nil
}

// buildStoryPrompt renders the captured form into the generation prompt.
// Field order is fixed so identical forms produce identical prompts.
func buildStoryPrompt(values map[string]string, description string) string {
	var b strings.Builder
	b.WriteString("Write a short, engaging marketing story for a handcrafted product based on: ")
	b.WriteString(strings.TrimSpace(description))
	b.WriteString("\n")

	names := make([]string, 0, len(values))
	for name := range values {
		if name == "description" || name == identityBodyField || name == "story" || name == "tags" {
			continue
		}
		if strings.TrimSpace(values[name]) == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 0 {
		b.WriteString("\nProduct details:\n")
		for _, name := range names {
			fmt.Fprintf(&b, "- %s: %s\n", name, strings.TrimSpace(values[name]))
		}
	}

	b.WriteString("\nAfter the story, finish with exactly one line of the form\n")
	b.WriteString(storyTagsPrefix + " tag1, tag2, tag3\n")
	b.WriteString("containing 3 to 6 short lowercase tags. No markdown, no other trailing text.\n")
	return b.String()
}

// parseStoryOutput splits the model response into story text and the
// trailing TAGS: line. A response without tags still yields its story.
func parseStoryOutput(raw string) (string, []string, error) {
	text := strings.TrimSpace(strings.ReplaceAll(raw, "\r\n", "\n"))
	if text == "" {
		return "", nil, errors.New("model returned no story")
	}

	idx := strings.LastIndex(text, storyTagsPrefix)
	if idx < 0 {
		return text, nil, nil
	}

	tagsLine := text[idx+len(storyTagsPrefix):]
	if nl := strings.Index(tagsLine, "\n"); nl >= 0 {
		tagsLine = tagsLine[:nl]
	}
	story := strings.TrimSpace(text[:idx])
	if story == "" {
		return "", nil, errors.New("model returned tags but no story")
	}

	tags := SplitTags(strings.ToLower(tagsLine))
	return story, tags, nil
}
