// Package rss generates the per-feed RSS 2.0 + iTunes + Podcasting 2.0
// document from persisted Feed/Download rows, generalizing the
// teacher's single fixed channel into arbitrary per-feed metadata.
package rss

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"anypod/internal/apperrors"
	"anypod/internal/db"
	"anypod/internal/media"
)

const (
	itunesNS  = "http://www.itunes.com/dtds/podcast-1.0.dtd"
	podcastNS = "https://podcastindex.org/namespace/1.0"
	generator = "anypod"
)

// RSS is the root document element.
type RSS struct {
	XMLName       xml.Name `xml:"rss"`
	Version       string   `xml:"version,attr"`
	XmlnsItunes   string   `xml:"xmlns:itunes,attr"`
	XmlnsPodcast  string   `xml:"xmlns:podcast,attr"`
	Channel       Channel  `xml:"channel"`
}

type Channel struct {
	Title          string    `xml:"title"`
	Subtitle       string    `xml:"itunes:subtitle,omitempty"`
	Description    string    `xml:"description"`
	Link           string    `xml:"link"`
	Language       string    `xml:"language"`
	LastBuildDate  string    `xml:"lastBuildDate"`
	Generator      string    `xml:"generator"`
	TTL            int       `xml:"ttl"`
	ItunesAuthor   string    `xml:"itunes:author"`
	ItunesOwner    Owner     `xml:"itunes:owner"`
	ItunesSummary  string    `xml:"itunes:summary,omitempty"`
	ItunesCategory Category  `xml:"itunes:category"`
	ItunesType     string    `xml:"itunes:type"`
	ItunesExplicit string    `xml:"itunes:explicit"`
	ItunesImage    *ImageRef `xml:"itunes:image,omitempty"`
	Image          *Image    `xml:"image,omitempty"`
	Items          []Item    `xml:"item"`
}

type Owner struct {
	Name  string `xml:"itunes:name"`
	Email string `xml:"itunes:email"`
}

type Category struct {
	Text string `xml:"text,attr"`
}

type ImageRef struct {
	Href string `xml:"href,attr"`
}

type Image struct {
	URL   string `xml:"url"`
	Title string `xml:"title"`
	Link  string `xml:"link"`
}

type Item struct {
	Title           string     `xml:"title"`
	Description     string     `xml:"description,omitempty"`
	GUID            GUID       `xml:"guid"`
	PubDate         string     `xml:"pubDate"`
	Enclosure       Enclosure  `xml:"enclosure"`
	ItunesDuration  string     `xml:"itunes:duration"`
	ItunesImage     *ImageRef  `xml:"itunes:image,omitempty"`
	ItunesExplicit  string     `xml:"itunes:explicit,omitempty"`
	PodcastTranscript *Transcript `xml:"podcast:transcript,omitempty"`
}

type GUID struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type Enclosure struct {
	URL    string `xml:"url,attr"`
	Length string `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

type Transcript struct {
	URL      string `xml:"url,attr"`
	Type     string `xml:"type,attr"`
	Language string `xml:"language,attr,omitempty"`
	Rel      string `xml:"rel,attr,omitempty"`
}

var transcriptMimeByExt = map[string]string{
	"vtt": "text/vtt",
	"srt": "application/x-subrip",
}

// Generator materializes RSS documents for DOWNLOADED items and writes
// them to disk via FileManager so the HTTP layer can serve them as a
// static path.
type Generator struct {
	downloads *db.DownloadStore
	files     *media.FileManager
	paths     *media.PathManager
	baseURL   string
}

func NewGenerator(downloads *db.DownloadStore, files *media.FileManager, paths *media.PathManager, baseURL string) *Generator {
	return &Generator{downloads: downloads, files: files, paths: paths, baseURL: strings.TrimRight(baseURL, "/")}
}

// UpdateFeed regenerates and persists the feed's RSS document.
func (g *Generator) UpdateFeed(ctx context.Context, feed db.Feed) error {
	xmlBytes, err := g.render(ctx, feed)
	if err != nil {
		return &apperrors.RSSGenerationError{FeedID: feed.ID, Err: err}
	}

	path := g.paths.FeedXMLPath(feed.ID)
	if err := g.files.WriteAtomic(path, strings.NewReader(string(xmlBytes))); err != nil {
		return &apperrors.RSSGenerationError{FeedID: feed.ID, Err: err}
	}
	return nil
}

// GetFeedXML renders the feed's RSS document from the current database
// rows on every call. It does not read the file UpdateFeed writes.
func (g *Generator) GetFeedXML(ctx context.Context, feed db.Feed) ([]byte, error) {
	return g.render(ctx, feed)
}

func (g *Generator) render(ctx context.Context, feed db.Feed) ([]byte, error) {
	downloaded, err := g.downloads.GetDownloadsByStatus(ctx, db.StatusDownloaded, db.GetDownloadsByStatusOpts{FeedID: feed.ID, Limit: -1})
	if err != nil {
		return nil, err
	}
	// Newest published first.
	for i, j := 0, len(downloaded)-1; i < j; i, j = i+1, j-1 {
		downloaded[i], downloaded[j] = downloaded[j], downloaded[i]
	}

	explicit := "false"
	if feed.Explicit {
		explicit = "true"
	}

	channel := Channel{
		Title:          feed.Title,
		Subtitle:       feed.Subtitle,
		Description:    feed.Description,
		Link:           fmt.Sprintf("%s/feeds/%s.xml", g.baseURL, feed.ID),
		Language:       feed.Language,
		LastBuildDate:  time.Now().UTC().Format(time.RFC1123Z),
		Generator:      generator,
		TTL:            60,
		ItunesAuthor:   feed.Author,
		ItunesOwner:    Owner{Name: feed.Author, Email: feed.AuthorEmail},
		ItunesSummary:  feed.Description,
		ItunesCategory: Category{Text: feed.Category},
		ItunesType:     string(feed.PodcastType),
		ItunesExplicit: explicit,
	}
	if feed.ImageExt != nil {
		imgURL := fmt.Sprintf("%s/image/%s.%s", g.baseURL, feed.ID, *feed.ImageExt)
		channel.ItunesImage = &ImageRef{Href: imgURL}
		channel.Image = &Image{URL: imgURL, Title: feed.Title, Link: channel.Link}
	}

	channel.Items = make([]Item, 0, len(downloaded))
	for _, d := range downloaded {
		channel.Items = append(channel.Items, g.toItem(feed, d))
	}

	rss := RSS{
		Version:      "2.0",
		XmlnsItunes:  itunesNS,
		XmlnsPodcast: podcastNS,
		Channel:      channel,
	}

	body, err := xml.MarshalIndent(rss, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal rss: %w", err)
	}
	return []byte(xml.Header + string(body)), nil
}

func (g *Generator) toItem(feed db.Feed, d db.Download) Item {
	mediaURL := fmt.Sprintf("%s/media/%s/%s.%s", g.baseURL, feed.ID, d.ID, d.Ext)
	item := Item{
		Title:       d.Title,
		Description: d.Description,
		GUID:        GUID{IsPermaLink: "false", Value: d.ID},
		PubDate:     d.Published.UTC().Format(time.RFC1123Z),
		Enclosure: Enclosure{
			URL:    mediaURL,
			Length: strconv.FormatInt(d.Filesize, 10),
			Type:   d.MimeType,
		},
		ItunesDuration: formatDuration(d.Duration),
	}
	if d.ThumbnailExt != nil {
		href := fmt.Sprintf("%s/media/%s/%s.%s", g.baseURL, feed.ID, d.ID, *d.ThumbnailExt)
		item.ItunesImage = &ImageRef{Href: href}
	}
	if d.TranscriptExt != nil {
		mimeType := transcriptMimeByExt[*d.TranscriptExt]
		if mimeType == "" {
			mimeType = "text/plain"
		}
		t := &Transcript{
			URL:  fmt.Sprintf("%s/media/%s/%s.%s", g.baseURL, feed.ID, d.ID, *d.TranscriptExt),
			Type: mimeType,
		}
		if d.TranscriptLang != nil {
			t.Language = *d.TranscriptLang
		}
		item.PodcastTranscript = t
	}
	return item
}

func formatDuration(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
