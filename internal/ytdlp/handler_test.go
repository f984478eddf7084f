package ytdlp

import "testing"

func TestResolve_DispatchesToTheOwningHandler(t *testing.T) {
	tests := []struct {
		url  string
		want Handler
	}{
		{"https://www.youtube.com/@someChannel", youtubeHandler{}},
		{"https://youtu.be/abc123", youtubeHandler{}},
		{"https://twitter.com/someuser", twitterHandler{}},
		{"https://x.com/someuser/status/123", twitterHandler{}},
		{"https://www.patreon.com/creator/posts", patreonHandler{}},
		{"https://example.com/unrelated-site", genericHandlerInstance},
	}

	for _, tt := range tests {
		got := Resolve(tt.url)
		if got != tt.want {
			t.Errorf("Resolve(%q) = %T, want %T", tt.url, got, tt.want)
		}
	}
}

func TestResolve_PatreonVideosPathResolvesToPatreon(t *testing.T) {
	// No other registered handler matches this URL, so this guards against
	// a handler's Matches being broad enough to claim a patreon.com path.
	got := Resolve("https://www.patreon.com/c/creator/videos")
	if _, ok := got.(patreonHandler); !ok {
		t.Errorf("Resolve() = %T, want patreonHandler", got)
	}
}

func TestHostContains_CaseInsensitive(t *testing.T) {
	if !hostContains("HTTPS://WWW.YOUTUBE.COM/watch?v=x", "youtube.com") {
		t.Error("hostContains should be case-insensitive")
	}
	if hostContains("https://example.com", "youtube.com") {
		t.Error("hostContains matched an unrelated host")
	}
}
