package validation

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrInvalidSlug is returned when a slug doesn't match the required format
	ErrInvalidSlug = errors.New("slug may only contain lowercase letters, digits and hyphens, and must start and end with a letter or digit")

	// ErrSlugTooShort is returned when a slug is too short
	ErrSlugTooShort = errors.New("slug must be at least 3 characters")

	// ErrSlugTooLong is returned when a slug is too long
	ErrSlugTooLong = errors.New("slug must be at most 64 characters")

	slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}[a-z0-9]$`)

	slugInvalidRun = regexp.MustCompile(`[^a-z0-9]+`)
)

// ValidateSlug checks an already normalized organization slug:
// 3-64 characters of [a-z0-9-], starting and ending with a letter or digit.
func ValidateSlug(slug string) error {
	if len(slug) < 3 {
		return ErrSlugTooShort
	}
	if len(slug) > 64 {
		return ErrSlugTooLong
	}
	if !slugRegex.MatchString(slug) {
		return ErrInvalidSlug
	}
	return nil
}

// NormalizeSlug normalizes a slug by converting to lowercase and trimming whitespace
func NormalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}

// Slugify derives a slug from a display name: "Acme Corp." becomes "acme-corp".
// The result may still fail ValidateSlug (e.g. names under three characters).
func Slugify(name string) string {
	slug := slugInvalidRun.ReplaceAllString(strings.ToLower(name), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 64 {
		slug = strings.TrimRight(slug[:64], "-")
	}
	return slug
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
