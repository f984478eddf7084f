package db

import (
	"database/sql"
	"strings"
	"time"
)

const timeLayout = time.RFC3339Nano

func timeToStr(t time.Time) string { return t.UTC().Format(timeLayout) }

func strToTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// sqlite's own datetime('now','utc') default produces a
		// space-separated, no-timezone form; accept it too.
		t, err = time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC)
		if err != nil {
			return time.Time{}, err
		}
	}
	return t.UTC(), nil
}

func nullTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: timeToStr(*t), Valid: true}
}

func strPtrToTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := strToTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func strOrNil(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func intOrNil(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func joinTranscriptSources(sources []TranscriptSource) string {
	parts := make([]string, len(sources))
	for i, s := range sources {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}

func splitTranscriptSources(s string) []TranscriptSource {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]TranscriptSource, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, TranscriptSource(p))
		}
	}
	return out
}
