package rss

import (
	"fmt"
	"html"
	"strings"
	"time"

	"podscribe/internal/podcastapi"
	"podscribe/internal/transcript"
)

const (
	podcastLinkBase = "https://www.xiaoyuzhoufm.com/podcast/"
	episodeLinkBase = "https://www.xiaoyuzhoufm.com/episode/"

	// RFC 1123 with a literal GMT zone, as feed readers expect.
	dateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"
)

// Channel holds the feed-level metadata.
type Channel struct {
	Title         string
	Link          string
	Description   string
	LastBuildDate time.Time
}

// Item is one feed entry.
type Item struct {
	Title       string
	Link        string
	Description string
	ContentHTML string
	GUID        string
	PubDate     time.Time
}

// PodcastChannel builds the feed channel for a podcast.
func PodcastChannel(podcast podcastapi.Podcast) Channel {
	description := podcast.Description
	if description == "" {
		description = podcast.Brief
	}
	return Channel{
		Title:         podcast.Title,
		Link:          podcastLinkBase + podcast.PID,
		Description:   description,
		LastBuildDate: time.Now().UTC(),
	}
}

// EpisodeItem builds a feed item from an episode record and its transcript
// document. The summary doubles as the item description when present.
func EpisodeItem(episode podcastapi.Episode, doc *transcript.Document) Item {
	description := doc.Annotations.Summary
	if description == "" {
		description = episode.Title
	}
	return Item{
		Title:       episode.Title,
		Link:        episodeLinkBase + episode.EID,
		Description: description,
		ContentHTML: EpisodeContent(doc),
		GUID:        episode.EID,
		PubDate:     time.Unix(episode.PubDate, 0).UTC(),
	}
}

// RenderFeed produces the RSS 2.0 document for a channel and its items.
func RenderFeed(channel Channel, items []Item) []byte {
	var b strings.Builder

	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	b.WriteString("<rss xmlns:content=\"http://purl.org/rss/1.0/modules/content/\" version=\"2.0\">\n")
	b.WriteString("    <channel>\n")
	fmt.Fprintf(&b, "        <title>%s</title>\n", html.EscapeString(channel.Title))
	fmt.Fprintf(&b, "        <link>%s</link>\n", html.EscapeString(channel.Link))
	fmt.Fprintf(&b, "        <description>%s</description>\n", html.EscapeString(channel.Description))
	fmt.Fprintf(&b, "        <lastBuildDate>%s</lastBuildDate>\n", channel.LastBuildDate.Format(dateFormat))

	for _, item := range items {
		b.WriteString("        <item>\n")
		fmt.Fprintf(&b, "            <title>%s</title>\n", html.EscapeString(item.Title))
		fmt.Fprintf(&b, "            <link>%s</link>\n", html.EscapeString(item.Link))
		fmt.Fprintf(&b, "            <description>%s</description>\n", html.EscapeString(item.Description))
		fmt.Fprintf(&b, "            <content:encoded><![CDATA[%s]]></content:encoded>\n", escapeCDATA(item.ContentHTML))
		fmt.Fprintf(&b, "            <pubDate>%s</pubDate>\n", item.PubDate.Format(dateFormat))
		fmt.Fprintf(&b, "            <guid>%s</guid>\n", html.EscapeString(item.GUID))
		b.WriteString("        </item>\n")
	}

	b.WriteString("    </channel>\n")
	b.WriteString("</rss>\n")
	return []byte(b.String())
}

// escapeCDATA splits any closing CDATA delimiter so embedded content cannot
// terminate the section early.
func escapeCDATA(s string) string {
	return strings.ReplaceAll(s, "]]>", "]]]]><![CDATA[>")
}
