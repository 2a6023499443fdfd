package records

import (
	"sort"
	"strings"
)

// CreateAnnouncement stores an announcement, defaulting the category to
// general and the publish time to now.
func (s *Store) CreateAnnouncement(input AnnouncementInput) (Announcement, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Content = strings.TrimSpace(input.Content)
	if err := validateStruct(input); err != nil {
		return Announcement{}, err
	}
	category := input.Category
	if category == "" {
		category = CategoryGeneral
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	publishedAt := s.nowFn()
	if input.PublishedAt != nil && !input.PublishedAt.IsZero() {
		publishedAt = *input.PublishedAt
	}
	s.state.seq.Announcements++
	a := Announcement{
		ID:          s.state.seq.Announcements,
		Title:       input.Title,
		Content:     input.Content,
		Category:    category,
		PublishedAt: publishedAt,
	}
	s.state.announcements = append(s.state.announcements, a)
	return a, nil
}

// ListAnnouncements returns announcements newest first. Equal publish times
// fall back to the higher id first.
func (s *Store) ListAnnouncements() []Announcement {
	s.mu.RLock()
	out := append([]Announcement{}, s.state.announcements...)
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].PublishedAt.After(out[j].PublishedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}
