package speech

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// TTSResponse 语音合成响应
type TTSResponse struct {
	Audio string `json:"audio"` // base64 编码的音频
}

// Decode returns the raw audio bytes, tolerating a data-URI prefix.
func (r TTSResponse) Decode() ([]byte, error) {
	payload := strings.TrimSpace(r.Audio)
	if payload == "" {
		return nil, fmt.Errorf("tts response has no audio")
	}
	if idx := strings.Index(payload, ","); strings.HasPrefix(payload, "data:") && idx >= 0 {
		payload = payload[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode tts audio: %w", err)
	}
	return data, nil
}

// TranscriptResult 单段识别结果
type TranscriptResult struct {
	Transcript string `json:"transcript"`
}

// TranscriptionResponse 语音识别响应
type TranscriptionResponse struct {
	Results []TranscriptResult `json:"results"`
}

// Text joins all non-empty segments.
func (r TranscriptionResponse) Text() string {
	parts := make([]string, 0, len(r.Results))
	for _, res := range r.Results {
		if t := strings.TrimSpace(res.Transcript); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// Assessment 发音评测结果
type Assessment struct {
	RealTranscript        string `json:"real_transcript"`
	IPATranscript         string `json:"ipa_transcript"`
	PronunciationAccuracy string `json:"pronunciation_accuracy"`
	RealTranscripts       string `json:"real_transcripts"`
	MatchedTranscripts    string `json:"matched_transcripts"`
	RealTranscriptsIPA    string `json:"real_transcripts_ipa"`
	MatchedTranscriptsIPA string `json:"matched_transcripts_ipa"`
	PairAccuracyCategory  string `json:"pair_accuracy_category"`
	StartTime             string `json:"start_time"`
	EndTime               string `json:"end_time"`
	IsLetterCorrect       string `json:"is_letter_correct_all_words"`
}

// WordScore pairs a reference word with what was heard and its accuracy bucket.
type WordScore struct {
	Expected string
	Heard    string
	Category string
	Letters  string
}

// Words splits the space-separated per-word fields into aligned entries.
func (a Assessment) Words() []WordScore {
	expected := strings.Fields(a.RealTranscripts)
	heard := strings.Fields(a.MatchedTranscripts)
	categories := strings.Fields(a.PairAccuracyCategory)
	letters := strings.Fields(a.IsLetterCorrect)

	out := make([]WordScore, len(expected))
	for i, word := range expected {
		out[i].Expected = word
		if i < len(heard) {
			out[i].Heard = heard[i]
		}
		if i < len(categories) {
			out[i].Category = categories[i]
		}
		if i < len(letters) {
			out[i].Letters = letters[i]
		}
	}
	return out
}

// PhoneticResponse 音标查询响应
type PhoneticResponse struct {
	Text     string `json:"text,omitempty"`
	Phonetic string `json:"phonetic"`
}

// DictionaryEntry 词典条目
type DictionaryEntry struct {
	Word     string    `json:"word"`
	Phonetic string    `json:"phonetic,omitempty"`
	Meanings []Meaning `json:"meanings,omitempty"`
	AudioURL string    `json:"audioUrl,omitempty"`
}

// Meaning 单个词性下的释义
type Meaning struct {
	PartOfSpeech string   `json:"partOfSpeech"`
	Definitions  []string `json:"definitions"`
}
