package performer

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/npezzotti/go-reveal/internal/database"
)

const (
	minNameLength     = 3
	minPasswordLength = 6
)

var (
	emailRegexp = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	slugRegexp  = regexp.MustCompile(`^[a-z0-9-]+$`)

	// Route words that can never be a room path.
	reservedSlugs = map[string]struct{}{
		"admin":   {},
		"api":     {},
		"debug":   {},
		"healthz": {},
		"login":   {},
		"ws":      {},
	}
)

type CreateRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
	Slug     string `json:"slug"`
}

func (r CreateRequest) normalize() CreateRequest {
	return CreateRequest{
		Name:     strings.TrimSpace(r.Name),
		Username: strings.ToLower(strings.TrimSpace(r.Username)),
		Password: strings.TrimSpace(r.Password),
		Slug:     strings.TrimSpace(r.Slug),
	}
}

// ValidationError carries one message per rejected field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func ValidSlug(slug string) bool {
	return slugRegexp.MatchString(slug)
}

// Validate checks a normalized request against the field rules and the
// existing performers. extraReserved lists further slugs that are taken,
// such as the admin room.
func Validate(req CreateRequest, existing []database.Performer, extraReserved ...string) *ValidationError {
	fields := make(map[string]string)

	if len(req.Name) < minNameLength {
		fields["name"] = fmt.Sprintf("must be at least %d characters", minNameLength)
	}

	if !emailRegexp.MatchString(req.Username) {
		fields["username"] = "must be a valid email address"
	}

	if len(req.Password) < minPasswordLength {
		fields["password"] = fmt.Sprintf("must be at least %d characters", minPasswordLength)
	}

	switch {
	case req.Slug == "":
		fields["slug"] = "is required"
	case !ValidSlug(req.Slug):
		fields["slug"] = "may only contain lowercase letters, digits and hyphens"
	case isReserved(req.Slug, extraReserved):
		fields["slug"] = "is reserved"
	}

	for _, p := range existing {
		if _, ok := fields["slug"]; !ok && p.Slug == req.Slug {
			fields["slug"] = "is already in use"
		}
		if _, ok := fields["username"]; !ok && strings.EqualFold(p.Username, req.Username) {
			fields["username"] = "is already in use"
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

func isReserved(slug string, extra []string) bool {
	if _, ok := reservedSlugs[slug]; ok {
		return true
	}
	for _, s := range extra {
		if s == slug {
			return true
		}
	}
	return false
}
