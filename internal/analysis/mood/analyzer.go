// Package mood guesses how a learner feels from what they wrote, so the
// offline tutor can acknowledge it before asking its follow-up question.
package mood

import "strings"

// Label 学习者情绪标签
type Label string

const (
	Neutral Label = "neutral"
	Happy   Label = "happy"
	Sad     Label = "sad"
	Angry   Label = "angry"
	Excited Label = "excited"
	Nervous Label = "nervous"
)

// Decision 情绪识别结果
type Decision struct {
	Mood  Label
	Score int
}

// 按优先级排列，得分相同时靠前的胜出
var labels = []Label{Sad, Angry, Nervous, Excited, Happy}

var keywordBuckets = map[Label][]string{
	Happy: {
		"happy", "glad", "great", "good day", "love", "enjoy", "fun", "nice", "thanks", "thank you",
		"awesome", "amazing", "wonderful", "pleased", "lucky",
	},
	Sad: {
		"sad", "unhappy", "lonely", "miss", "cry", "upset", "depressed", "disappointed", "hurt",
		"bad day", "tired", "sick", "lost my",
	},
	Angry: {
		"angry", "furious", "mad at", "annoyed", "hate", "fed up", "sick of", "unfair", "terrible",
	},
	Excited: {
		"excited", "can't wait", "cannot wait", "wow", "finally", "unbelievable", "incredible",
	},
	Nervous: {
		"nervous", "worried", "afraid", "scared", "anxious", "stress", "exam", "interview", "not sure",
	},
}

var openers = map[Label]string{
	Happy:   "That's great to hear!",
	Sad:     "I'm sorry to hear that.",
	Angry:   "That sounds really frustrating.",
	Excited: "How exciting!",
	Nervous: "Don't worry, you're doing well.",
}

// Analyze 根据学习者的一句话推断情绪
func Analyze(text string) Decision {
	normalized := " " + strings.ToLower(strings.TrimSpace(text)) + " "
	if strings.TrimSpace(normalized) == "" {
		return Decision{Mood: Neutral}
	}

	scores := make(map[Label]int)
	for label, keywords := range keywordBuckets {
		for _, word := range keywords {
			if strings.Contains(normalized, word) {
				scores[label] += 3
			}
		}
	}

	// 感叹号只放大已有的正面情绪
	if exclamations := strings.Count(text, "!"); exclamations > 0 {
		if scores[Happy] > 0 || scores[Excited] > 0 {
			scores[Excited] += exclamations * 2
		}
	}

	best := Decision{Mood: Neutral}
	for _, label := range labels {
		if scores[label] > best.Score {
			best = Decision{Mood: label, Score: scores[label]}
		}
	}
	return best
}

// Opener is a short acknowledgement for the mood, empty for Neutral.
func (d Decision) Opener() string {
	return openers[d.Mood]
}
