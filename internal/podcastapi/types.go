package podcastapi

// Podcast is the subscription-level record kept for feed metadata.
type Podcast struct {
	PID                  string `json:"pid"`
	Title                string `json:"title"`
	Brief                string `json:"brief,omitempty"`
	Description          string `json:"description,omitempty"`
	EpisodeCount         int    `json:"episodeCount"`
	LatestEpisodePubDate string `json:"latestEpisodePubDate,omitempty"`
}

// Enclosure carries the audio attachment details used by the RSS feed.
type Enclosure struct {
	URL    string `json:"url"`
	Type   string `json:"type"`
	Length int64  `json:"length"`
}

// Episode is the normalized per-episode record handed to the transcription
// pipeline and persisted in the episode store.
type Episode struct {
	EID         string    `json:"eid"`
	PID         string    `json:"pid"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Duration    int       `json:"duration"`
	Enclosure   Enclosure `json:"enclosure"`
	// PubDate is a unix timestamp in seconds.
	PubDate int64  `json:"pubDate"`
	Author  string `json:"author,omitempty"`
	// PayTier marks episodes whose audio requires purchase; their enclosure
	// URL is not fetchable and they are excluded from transcription.
	PayTier bool `json:"payTier"`
}
