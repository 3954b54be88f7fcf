package transcript_test

import (
	"testing"

	"podscribe/internal/transcript"
)

func TestFormatOffset(t *testing.T) {
	cases := []struct {
		ms   int64
		want string
	}{
		{0, "00:00:00"},
		{999, "00:00:00"},
		{61000, "00:01:01"},
		{3599000, "00:59:59"},
		{3600000, "01:00:00"},
		{36061000, "10:01:01"},
		{-5, "00:00:00"},
	}
	for _, tc := range cases {
		if got := transcript.FormatOffset(tc.ms); got != tc.want {
			t.Errorf("FormatOffset(%d) = %q, want %q", tc.ms, got, tc.want)
		}
	}
}

func TestAnnotationsEmpty(t *testing.T) {
	var a transcript.Annotations
	if !a.Empty() {
		t.Fatal("zero annotations should be empty")
	}
	a.Summary = "something"
	if a.Empty() {
		t.Fatal("annotations with a summary should not be empty")
	}
}

func TestSourceLink(t *testing.T) {
	doc := transcript.Document{TaskID: "abc123"}
	want := "https://tongyi.aliyun.com/efficiency/doc/transcripts/abc123"
	if got := doc.SourceLink(); got != want {
		t.Fatalf("SourceLink() = %q, want %q", got, want)
	}
}
