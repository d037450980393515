package history

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// DecodeCursor parses a cursor produced by EncodeCursor. An empty string
// means the first page.
func DecodeCursor(cursorStr string) (*Cursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var finishedAt int64
	if _, err := fmt.Sscanf(parts[0], "%d", &finishedAt); err != nil {
		return nil, fmt.Errorf("invalid finishedAt in cursor: %w", err)
	}

	return &Cursor{
		FinishedAt: time.Unix(0, finishedAt).UTC(),
		JobID:      parts[1],
	}, nil
}

// EncodeCursor renders c as an opaque URL-safe token
func EncodeCursor(c *Cursor) string {
	cs := fmt.Sprintf("%d|%s", c.FinishedAt.UnixNano(), c.JobID)
	return base64.RawURLEncoding.EncodeToString([]byte(cs))
}
