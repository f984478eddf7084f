package ytdlp

import "time"

// canonicalURL picks the authoritative source_url: webpage_url, then
// original_url, else a site-supplied fallback constructor.
func canonicalURL(entry RawEntry, fallback string) string {
	if entry.WebpageURL != "" {
		return entry.WebpageURL
	}
	if entry.OriginalURL != "" {
		return entry.OriginalURL
	}
	return fallback
}

var extToMime = map[string]string{
	"mp4":  "video/mp4",
	"m4a":  "audio/mp4",
	"mp3":  "audio/mpeg",
	"webm": "video/webm",
	"ogg":  "audio/ogg",
	"opus": "audio/opus",
	"flac": "audio/flac",
	"wav":  "audio/wav",
}

func mimeFromExt(ext string) string {
	if m, ok := extToMime[ext]; ok {
		return m
	}
	return "application/octet-stream"
}

// publishedFromEntry resolves the best available timestamp: the unix
// epoch `timestamp` field if present, else `upload_date` (YYYYMMDD), else
// the current instant.
func publishedFromEntry(entry RawEntry) time.Time {
	if entry.Timestamp > 0 {
		return time.Unix(int64(entry.Timestamp), 0).UTC()
	}
	if entry.UploadDate != "" {
		if t, err := time.Parse("20060102", entry.UploadDate); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}
