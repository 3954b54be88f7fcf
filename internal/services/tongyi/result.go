package tongyi

import (
	"encoding/json"
	"fmt"
	"strings"

	"podscribe/internal/services"
	"podscribe/internal/transcript"
)

// transcriptPayload is the raw shape of the transcript result endpoint.
// Both the speaker tag and the result body arrive as embedded JSON strings.
type transcriptPayload struct {
	Tag struct {
		Identify string `json:"identify"`
	} `json:"tag"`
	Result string `json:"result"`
}

type resultBody struct {
	Paragraphs []struct {
		// UI is the speaker id. The service emits it as a string in some
		// responses and a number in others.
		UI        json.RawMessage `json:"ui"`
		Sentences []struct {
			// BeginTime is a pointer so a sentence without an offset can be
			// told apart from one starting at zero milliseconds.
			BeginTime *int64 `json:"bt"`
			Text      string `json:"tc"`
		} `json:"sc"`
	} `json:"pg"`
}

type identifyBody struct {
	UserInfo map[string]struct {
		Name string `json:"name"`
	} `json:"user_info"`
}

// parseUtterances flattens the paragraph and sentence structure into
// timestamped utterances with resolved speaker names.
func parseUtterances(payload transcriptPayload) ([]transcript.Utterance, error) {
	if payload.Result == "" {
		return nil, services.Wrap(services.ErrTransient, component, "parse_transcript", "result not ready", nil)
	}

	speakers := make(map[string]string)
	if payload.Tag.Identify != "" {
		var identify identifyBody
		if err := json.Unmarshal([]byte(payload.Tag.Identify), &identify); err == nil {
			for id, info := range identify.UserInfo {
				speakers[id] = info.Name
			}
		}
	}

	var body resultBody
	if err := json.Unmarshal([]byte(payload.Result), &body); err != nil {
		return nil, services.Wrap(services.ErrFatal, component, "parse_transcript", "decode result body", err)
	}

	var utterances []transcript.Utterance
	for _, paragraph := range body.Paragraphs {
		if len(paragraph.Sentences) == 0 {
			continue
		}
		uid := strings.Trim(string(paragraph.UI), `"`)
		speaker, ok := speakers[uid]
		if !ok || speaker == "" {
			speaker = fmt.Sprintf("发言人%s", uid)
		}
		var text strings.Builder
		for _, sentence := range paragraph.Sentences {
			text.WriteString(sentence.Text)
		}
		trimmed := strings.TrimSpace(text.String())
		begin := paragraph.Sentences[0].BeginTime
		if trimmed == "" || begin == nil {
			continue
		}
		utterances = append(utterances, transcript.Utterance{
			Time:    transcript.FormatOffset(*begin),
			Speaker: speaker,
			Text:    trimmed,
		})
	}
	if len(utterances) == 0 {
		return nil, services.Wrap(services.ErrTransient, component, "parse_transcript", "no utterances in result", nil)
	}
	return utterances, nil
}

// annotationPayload is the raw shape of the annotation card endpoint.
type annotationPayload struct {
	LabCardsMap struct {
		LabInfo        []labCard `json:"labInfo"`
		LabSummaryInfo []labCard `json:"labSummaryInfo"`
	} `json:"labCardsMap"`
}

type labCard struct {
	BasicInfo struct {
		Name string `json:"name"`
	} `json:"basicInfo"`
	Contents []struct {
		ContentValues []contentValue `json:"contentValues"`
	} `json:"contents"`
}

type contentValue struct {
	Value      string          `json:"value"`
	Title      string          `json:"title"`
	Summary    string          `json:"summary"`
	Time       *int64          `json:"time"`
	JSON       json.RawMessage `json:"json"`
	Extensions []struct {
		SentenceInfoOfAnswer []struct {
			BeginTime int64 `json:"beginTime"`
		} `json:"sentenceInfoOfAnswer"`
	} `json:"extensions"`
}

// Card names used by the annotation endpoint.
const (
	cardSummary  = "全文摘要"
	cardMindmap  = "思维导图"
	cardChapters = "议程"
	cardQA       = "qa问答"
)

// parseAnnotations collects the named cards into the annotation set. An
// entirely empty set means the cards have not been generated yet.
func parseAnnotations(payload annotationPayload) (*transcript.Annotations, error) {
	annotations := &transcript.Annotations{}
	cards := append(payload.LabCardsMap.LabInfo, payload.LabCardsMap.LabSummaryInfo...)
	for _, card := range cards {
		name := card.BasicInfo.Name
		for _, content := range card.Contents {
			for _, value := range content.ContentValues {
				switch name {
				case cardSummary:
					annotations.Summary = value.Value
				case cardMindmap:
					annotations.Mindmap = value.JSON
				case cardChapters:
					// A chapter without an offset keeps an empty time
					// rather than reading as the start of the episode.
					chapterTime := ""
					if value.Time != nil {
						chapterTime = transcript.FormatOffset(*value.Time)
					}
					annotations.Chapters = append(annotations.Chapters, transcript.Chapter{
						Time:    chapterTime,
						Title:   value.Value,
						Summary: value.Summary,
					})
				case cardQA:
					if len(value.Extensions) == 0 {
						continue
					}
					pair := transcript.QAPair{
						Question: value.Title,
						Answer:   value.Value,
					}
					if sentences := value.Extensions[0].SentenceInfoOfAnswer; len(sentences) > 0 && sentences[0].BeginTime > 0 {
						pair.Time = transcript.FormatOffset(sentences[0].BeginTime)
					}
					annotations.QAPairs = append(annotations.QAPairs, pair)
				}
			}
		}
	}
	if annotations.Empty() {
		return nil, services.Wrap(services.ErrTransient, component, "parse_annotations", "no annotation cards available", nil)
	}
	return annotations, nil
}
