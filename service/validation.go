package service

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"

	"github.com/spectra-gallery/spectra-playground/models"
)

var usernameRegex = regexp.MustCompile(`^[a-z0-9_.-]{3,64}$`)

const (
	maxPasswordBytes = 1024

	maxTags      = 32
	maxTagLength = 32

	maxAttrs          = 32
	maxAttrKeyLength  = 64
	maxAttrValueBytes = 1024

	maxTitleLength   = 200
	maxSeedLength    = 200
	maxHashLength    = 256
	maxLayoutBytes   = 64 << 10
	maxContentBytes  = 2 << 20
	maxTransformSize = 64 << 10

	MinShareTTL     int64 = 60
	MaxShareTTL     int64 = 7 * 24 * 60 * 60
	DefaultShareTTL int64 = 24 * 60 * 60
)

// NormalizeUsername lowercases and trims username and checks its shape.
func NormalizeUsername(username string) (string, error) {
	u := strings.ToLower(strings.TrimSpace(username))
	if u == "" {
		return "", validationError("username is required")
	}
	if !usernameRegex.MatchString(u) {
		return "", validationError("username must be 3-64 characters of a-z, 0-9, '_', '.' or '-'")
	}
	return u, nil
}

func ValidatePassword(password string) error {
	if password == "" {
		return validationError("password is required")
	}
	if len(password) > maxPasswordBytes {
		return validationError("password is too long")
	}
	return nil
}

// ValidateResourceId accepts only canonical UUIDs.
func ValidateResourceId(id string) error {
	u, err := uuid.FromString(id)
	if err != nil || u.IsNil() || u.String() != strings.ToLower(id) {
		return validationError("invalid resource id")
	}
	return nil
}

// NormalizeTags trims, drops empties and removes duplicates, keeping the
// first occurrence order.
func NormalizeTags(tags []string) ([]string, error) {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if utf8.RuneCountInString(t) > maxTagLength {
			return nil, validationError("tag %q is longer than %d characters", t, maxTagLength)
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) > maxTags {
		return nil, validationError("at most %d tags are allowed", maxTags)
	}
	return out, nil
}

func ValidateAttrs(attrs map[string]string) error {
	if len(attrs) > maxAttrs {
		return validationError("at most %d attributes are allowed", maxAttrs)
	}
	for k, v := range attrs {
		if strings.TrimSpace(k) == "" || utf8.RuneCountInString(k) > maxAttrKeyLength {
			return validationError("invalid attribute name %q", k)
		}
		if len(v) > maxAttrValueBytes {
			return validationError("attribute %q is too long", k)
		}
	}
	return nil
}

func ValidateTitle(title string) error {
	if utf8.RuneCountInString(title) > maxTitleLength {
		return validationError("title is longer than %d characters", maxTitleLength)
	}
	return nil
}

func ValidateLayout(layout json.RawMessage) error {
	if len(layout) > maxLayoutBytes {
		return validationError("layout is too large")
	}
	if !json.Valid(layout) {
		return validationError("layout must be valid JSON")
	}
	return nil
}

func validateContent(c models.Content) error {
	if len(c.HTML)+len(c.CSS)+len(c.JavaScript) > maxContentBytes {
		return validationError("content is too large")
	}
	return nil
}

func ParseShareMode(mode string) (models.ShareMode, error) {
	switch m := models.ShareMode(strings.ToLower(strings.TrimSpace(mode))); m {
	case models.ShareViewer, models.ShareEditor:
		return m, nil
	case "":
		return models.ShareViewer, nil
	default:
		return "", validationError("mode must be %q or %q", models.ShareViewer, models.ShareEditor)
	}
}

// ClampShareTTL maps a requested lifetime in seconds into the allowed range.
// Zero means "unspecified" and yields the default.
func ClampShareTTL(ttlSeconds int64) int64 {
	switch {
	case ttlSeconds == 0:
		return DefaultShareTTL
	case ttlSeconds < MinShareTTL:
		return MinShareTTL
	case ttlSeconds > MaxShareTTL:
		return MaxShareTTL
	default:
		return ttlSeconds
	}
}

func ParseTransformKind(kind string) (models.TransformKind, error) {
	switch k := models.TransformKind(kind); k {
	case models.TransformNeuralMap, models.TransformNode, models.TransformLink:
		return k, nil
	default:
		return "", validationError("unknown transform kind %q", kind)
	}
}
