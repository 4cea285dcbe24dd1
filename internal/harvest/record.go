package harvest

import (
	"regexp"
	"strings"
)

// ExtractMode selects the shape the driver produces entries in.
type ExtractMode int

const (
	// ModeWithSpeaker pairs each line of text with a speaker label.
	ModeWithSpeaker ExtractMode = iota
	// ModeTextOnly harvests bare text lines.
	ModeTextOnly
)

func (m ExtractMode) String() string {
	if m == ModeTextOnly {
		return "text_only"
	}
	return "with_speaker"
}

// Record is one harvested unit of text, optionally attributed to a speaker.
type Record struct {
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text"`
}

// Transcript panels render the speaker label with a trailing elapsed-time
// annotation ("Jane Doe 1時間30分間45秒間", "Bob 5秒"). The annotation starts
// at the first whitespace-digit-unit sequence and runs to the end.
var speakerDurationRe = regexp.MustCompile(`\s+\d+\s*(時間|分間?|秒間?).*$`)

// NormalizeSpeaker strips a trailing duration annotation from a raw speaker
// label. Labels without one pass through unchanged (minus surrounding space).
func NormalizeSpeaker(raw string) string {
	return strings.TrimSpace(speakerDurationRe.ReplaceAllString(strings.TrimSpace(raw), ""))
}

// Line serializes the record for the raw log: "text", or "speaker<TAB>text"
// when a speaker is present. Records with no text serialize to "".
func (r Record) Line() string {
	text := strings.TrimSpace(r.Text)
	if text == "" {
		return ""
	}
	speaker := strings.TrimSpace(r.Speaker)
	if speaker == "" {
		return text
	}
	return speaker + "\t" + text
}
