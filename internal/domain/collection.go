package domain

import (
	"strings"
	"time"
)

// CollectionSource is where a research link was found.
type CollectionSource string

const (
	SourceThreads   CollectionSource = "threads"
	SourceInstagram CollectionSource = "instagram"
	SourceWeb       CollectionSource = "web"
	SourceYouTube   CollectionSource = "youtube"
	SourceOther     CollectionSource = "other"
)

// Collection is a saved research link or note attached to a trip.
type Collection struct {
	ID         string           `json:"id" validate:"required"`
	Title      string           `json:"title" validate:"notblank"`
	URL        string           `json:"url" validate:"required,url"`
	Source     CollectionSource `json:"source" validate:"required,oneof=threads instagram web youtube other"`
	Note       string           `json:"note,omitempty"`
	ImageURL   string           `json:"imageUrl,omitempty" validate:"omitempty,url"`
	Category   string           `json:"category,omitempty"`
	MapURL     string           `json:"mapUrl,omitempty" validate:"omitempty,url"`
	WebsiteURL string           `json:"websiteUrl,omitempty" validate:"omitempty,url"`
	Tags       []string         `json:"tags,omitempty"`
	CreatedAt  *time.Time       `json:"createdAt,omitempty"`
}

// SanitizeTags trims every tag, drops empty strings and non-string entries,
// and removes duplicates keeping the first occurrence.
// The result is never nil.
func SanitizeTags(raw []any) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
