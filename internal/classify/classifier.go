// Package classify tags domain names with the category clubs used by
// the value filter. A name can belong to several clubs; the filter takes
// the highest minimum across all matching tags.
package classify

import (
	"context"
	"strings"
	"unicode"
)

// Classifier returns category tags for a name. A failing classifier is
// treated by the filter as "no tags", never as a fatal error.
type Classifier interface {
	TagsFor(ctx context.Context, name string) ([]string, error)
}

// Well-known club tags.
const (
	Tag999Club  = "999club"  // 3-digit names: 000-999
	Tag10kClub  = "10kclub"  // 4-digit names
	Tag100kClub = "100kclub" // 5-digit names
	Tag3Letter  = "3lclub"   // 3-letter names
	Tag4Letter  = "4lclub"   // 4-letter names
)

// ClubClassifier tags names by digit/letter-class membership. It is pure
// string arithmetic and never fails, but satisfies the Classifier
// interface so it can be swapped for a remote classifier.
type ClubClassifier struct{}

// NewClubClassifier creates a ClubClassifier.
func NewClubClassifier() *ClubClassifier {
	return &ClubClassifier{}
}

// Compile-time interface check.
var _ Classifier = (*ClubClassifier)(nil)

// TagsFor returns the clubs the given name belongs to.
// The name may carry the namespace suffix; it is stripped before matching.
func (c *ClubClassifier) TagsFor(_ context.Context, name string) ([]string, error) {
	label := Label(name)
	if label == "" {
		return nil, nil
	}

	var tags []string
	switch {
	case allDigits(label) && len(label) == 3:
		tags = append(tags, Tag999Club)
	case allDigits(label) && len(label) == 4:
		tags = append(tags, Tag10kClub)
	case allDigits(label) && len(label) == 5:
		tags = append(tags, Tag100kClub)
	case allLetters(label) && len(label) == 3:
		tags = append(tags, Tag3Letter)
	case allLetters(label) && len(label) == 4:
		tags = append(tags, Tag4Letter)
	}
	return tags, nil
}

// Label strips the ".eth" suffix and lowercases the remaining label.
func Label(name string) string {
	label := strings.ToLower(strings.TrimSpace(name))
	label = strings.TrimSuffix(label, ".eth")
	return label
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func allLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) || r > unicode.MaxASCII {
			return false
		}
	}
	return s != ""
}
