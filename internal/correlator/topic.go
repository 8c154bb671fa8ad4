package correlator

import (
	"strings"
	"unicode"

	"github.com/spikely/platform/internal/model"
)

type topicRule struct {
	topic    model.Topic
	keywords []string
	phrases  []string
}

// Checked in order; first match wins.
var topicRules = []topicRule{
	{
		topic:    model.TopicInteraction,
		keywords: []string{"drop", "comment", "follow", "like", "subscribe", "ig", "instagram", "chat", "share", "guys"},
		phrases:  []string{"tell me", "let me know"},
	},
	{
		topic:    model.TopicFood,
		keywords: []string{"food", "eat", "eats", "eating", "meal", "recipe", "cook", "delicious", "taste", "restaurant", "dish", "lunch", "dinner", "breakfast"},
	},
	{
		topic:    model.TopicFitness,
		keywords: []string{"workout", "exercise", "gym", "fitness", "train", "rep", "reps", "muscle", "cardio", "weight", "run", "runs", "running", "health"},
	},
	{
		topic:    model.TopicFinance,
		keywords: []string{"money", "invest", "stock", "crypto", "dollar", "price", "buy", "sell", "financial", "budget", "save"},
	},
	{
		topic:    model.TopicPersonal,
		keywords: []string{"feel", "think", "believe", "personal", "story", "experience", "life", "journey", "myself", "emotion"},
	},
}

var topicWords = map[model.Topic]string{
	model.TopicFood:        "cooking",
	model.TopicFitness:     "workout",
	model.TopicFinance:     "money",
	model.TopicPersonal:    "story",
	model.TopicInteraction: "chat",
	model.TopicGeneral:     "content",
}

// ClassifyTopic maps text to a topic by keyword. Keywords shorter than four letters
// must match a whole word; longer ones also match as a word prefix ("cooking" hits "cook").
func ClassifyTopic(text string) model.Topic {
	lower := strings.ToLower(text)
	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	normalized := " " + strings.Join(tokens, " ") + " "

	for _, rule := range topicRules {
		for _, p := range rule.phrases {
			if strings.Contains(normalized, " "+p+" ") {
				return rule.topic
			}
		}
		for _, tok := range tokens {
			if matchesKeyword(tok, rule.keywords) {
				return rule.topic
			}
		}
	}
	return model.TopicGeneral
}

func matchesKeyword(tok string, keywords []string) bool {
	for _, kw := range keywords {
		if tok == kw {
			return true
		}
		if len(kw) >= 4 && strings.HasPrefix(tok, kw) {
			return true
		}
	}
	return false
}

// TopicWord is the short noun used by the fallback templates.
func TopicWord(t model.Topic) string {
	if w, ok := topicWords[t]; ok {
		return w
	}
	return topicWords[model.TopicGeneral]
}

// ContextLabel describes a delta in terms of the segment topic.
func ContextLabel(delta int, t model.Topic) string {
	if delta > 0 {
		switch t {
		case model.TopicInteraction:
			return `Topic "interaction" boosted engagement`
		case model.TopicFood:
			return `Topic "food" drew viewers in`
		case model.TopicFitness:
			return `Topic "fitness" increased interest`
		case model.TopicFinance:
			return `Topic "finance" captured attention`
		case model.TopicPersonal:
			return `Topic "personal" resonated with viewers`
		default:
			return "Content engaged viewers"
		}
	}
	switch t {
	case model.TopicInteraction:
		return `Topic "interaction" didn't land`
	case model.TopicFood:
		return `Topic "food" lost attention`
	case model.TopicFitness:
		return `Topic "fitness" caused drop-off`
	case model.TopicFinance:
		return `Topic "finance" lost viewers`
	case model.TopicPersonal:
		return `Topic "personal" didn't connect`
	default:
		return "Content caused viewer drop"
	}
}
