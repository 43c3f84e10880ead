package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/zhouzirui/speakeasy/internal/model/speech"
)

// ErrWordNotFound is returned by Stub.Lookup for words outside its glossary.
var ErrWordNotFound = errors.New("word not found")

// Stub is a deterministic stand-in for the AI speech backend used by the
// local dev server. It produces silent audio and echo-style transcripts.
type Stub struct {
	// Transcript is returned by Transcribe when the caller gives no hint.
	Transcript string
	// SilenceMillis is the length of synthesized clips.
	SilenceMillis int
}

// Synthesize returns a silent 16 kHz mono WAV clip.
func (s Stub) Synthesize(ctx context.Context, text, speaker string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	ms := s.SilenceMillis
	if ms <= 0 {
		ms = 300
	}
	return silentWAV(16000, ms), nil
}

// Transcribe returns hint when set, otherwise the configured transcript.
func (s Stub) Transcribe(ctx context.Context, audio []byte, hint string) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("empty audio upload")
	}
	if hint != "" {
		return hint, nil
	}
	return s.Transcript, nil
}

// Assess scores heard against title word by word. Category 0 is a match and
// 2 a miss, as the real scorer reports them.
func (s Stub) Assess(ctx context.Context, title, heard string) (*speech.Assessment, error) {
	expected := strings.Fields(title)
	if len(expected) == 0 {
		return nil, ErrEmptyText
	}
	if strings.TrimSpace(heard) == "" {
		heard = title
	}
	got := strings.Fields(heard)

	matched := make([]string, len(expected))
	categories := make([]string, len(expected))
	letters := make([]string, len(expected))
	hits := 0
	for i, word := range expected {
		matched[i] = "-"
		if i < len(got) {
			matched[i] = got[i]
		}
		if normalizeWord(matched[i]) == normalizeWord(word) {
			hits++
			categories[i] = "0"
			letters[i] = strings.Repeat("1", len([]rune(word)))
		} else {
			categories[i] = "2"
			letters[i] = strings.Repeat("0", len([]rune(word)))
		}
	}

	return &speech.Assessment{
		RealTranscript:        heard,
		IPATranscript:         heard,
		PronunciationAccuracy: fmt.Sprintf("%d", hits*100/len(expected)),
		RealTranscripts:       strings.Join(expected, " "),
		MatchedTranscripts:    strings.Join(matched, " "),
		RealTranscriptsIPA:    strings.Join(expected, " "),
		MatchedTranscriptsIPA: strings.Join(matched, " "),
		PairAccuracyCategory:  strings.Join(categories, " "),
		IsLetterCorrect:       strings.Join(letters, " "),
	}, nil
}

var glossary = map[string]speech.DictionaryEntry{
	"hello":     {Word: "hello", Phonetic: "/həˈloʊ/", Meanings: []speech.Meaning{{PartOfSpeech: "exclamation", Definitions: []string{"Used as a greeting."}}}},
	"coffee":    {Word: "coffee", Phonetic: "/ˈkɔːfi/", Meanings: []speech.Meaning{{PartOfSpeech: "noun", Definitions: []string{"A hot drink made from roasted coffee beans."}}}},
	"interview": {Word: "interview", Phonetic: "/ˈɪntərvjuː/", Meanings: []speech.Meaning{{PartOfSpeech: "noun", Definitions: []string{"A formal meeting to assess a candidate."}}}},
}

// Lookup returns the glossary entry for word.
func (s Stub) Lookup(ctx context.Context, word string) (*speech.DictionaryEntry, error) {
	entry, ok := glossary[normalizeWord(word)]
	if !ok {
		return nil, ErrWordNotFound
	}
	return &entry, nil
}

// Phonetic joins glossary transcriptions, leaving unknown words as written.
func (s Stub) Phonetic(ctx context.Context, text string) (string, error) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return "", ErrEmptyText
	}
	out := make([]string, len(words))
	for i, w := range words {
		if entry, ok := glossary[normalizeWord(w)]; ok {
			out[i] = strings.Trim(entry.Phonetic, "/")
		} else {
			out[i] = strings.ToLower(w)
		}
	}
	return "/" + strings.Join(out, " ") + "/", nil
}

func normalizeWord(w string) string {
	return strings.ToLower(strings.Trim(w, ".,!?;:\"'"))
}

// silentWAV builds a PCM16 mono WAV of the given length.
func silentWAV(sampleRate, millis int) []byte {
	samples := sampleRate * millis / 1000
	dataLen := samples * 2

	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(buf, binary.LittleEndian, uint16(2))
	binary.Write(buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(make([]byte, dataLen))
	return buf.Bytes()
}
