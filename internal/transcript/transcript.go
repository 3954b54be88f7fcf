// Package transcript defines the persisted transcription document model
// shared by the assembler, the file store, and the RSS renderer.
package transcript

import (
	"encoding/json"
	"fmt"
)

// Utterance is one speaker-attributed paragraph of transcribed speech.
type Utterance struct {
	Time    string `json:"time"`
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Chapter is one entry of the chapter annotation card.
type Chapter struct {
	Time    string `json:"time"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// QAPair is one entry of the question/answer annotation card. Time points at
// the first sentence of the answer when the service reports it.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Time     string `json:"time,omitempty"`
}

// Annotations carries the enrichment cards attached to a finished task. The
// mind map is opaque service JSON passed through untouched.
type Annotations struct {
	Summary  string          `json:"summary"`
	Mindmap  json.RawMessage `json:"mindmap,omitempty"`
	Chapters []Chapter       `json:"chapters"`
	QAPairs  []QAPair        `json:"qa_pairs"`
}

// Empty reports whether no annotation card carried any content.
func (a Annotations) Empty() bool {
	return a.Summary == "" && len(a.Mindmap) == 0 && len(a.Chapters) == 0 && len(a.QAPairs) == 0
}

// Document is the persisted result of one successful transcription job.
// Documents are written whole and replaced whole; they are never merged.
type Document struct {
	PodcastID   string      `json:"pid"`
	EpisodeID   string      `json:"eid"`
	Title       string      `json:"title"`
	TaskID      string      `json:"task_id"`
	Utterances  []Utterance `json:"transcription"`
	Annotations Annotations `json:"annotations"`
}

// SourceLink returns the provenance URL of the remote transcription task.
func (d *Document) SourceLink() string {
	return "https://tongyi.aliyun.com/efficiency/doc/transcripts/" + d.TaskID
}

// FormatOffset converts a millisecond offset into HH:MM:SS.
func FormatOffset(milliseconds int64) string {
	if milliseconds < 0 {
		milliseconds = 0
	}
	seconds := milliseconds / 1000
	minutes := seconds / 60
	hours := minutes / 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes%60, seconds%60)
}
