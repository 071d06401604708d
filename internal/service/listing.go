package service

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/spec-kit/enrollment-service/internal/domain"
	"github.com/spec-kit/enrollment-service/internal/repository"
	"github.com/spec-kit/enrollment-service/pkg/util/errorutil"
)

// ListQuery describes an enrollment listing request.
type ListQuery struct {
	Statuses   []domain.EnrollmentStatus
	OfferingID string
	Limit      int
	Cursor     string
}

// Page is one page of enrollments. NextCursor is empty on the last page.
type Page struct {
	Items      []domain.Enrollment `json:"items"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

// EncodeCursor renders a keyset position as an opaque token.
func EncodeCursor(c repository.Cursor) string {
	raw := strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + ":" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor.
func DecodeCursor(token string) (*repository.Cursor, error) {
	invalid := errorutil.NewValidationError("invalid cursor", map[string]any{"cursor": token})

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, invalid
	}
	nanos, id, ok := strings.Cut(string(raw), ":")
	if !ok || id == "" {
		return nil, invalid
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, invalid
	}
	return &repository.Cursor{CreatedAt: time.Unix(0, n).UTC(), ID: id}, nil
}
