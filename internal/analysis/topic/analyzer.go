package topic

import (
	"strings"
	"unicode"
)

// Label 表示一句话所属的话题类别。
type Label string

const (
	Medical  Label = "medical"
	Greeting Label = "greeting"
	OffTopic Label = "off_topic"
)

// Decision 给出话题判定以及命中的关键词。
type Decision struct {
	Topic   Label
	Score   int
	Matched []string
}

// Allowed reports whether the turn should reach the model.
func (d Decision) Allowed() bool {
	return d.Topic != OffTopic
}

var keywordBuckets = map[string][]string{
	"condition": {
		"cancer", "tumor", "tumour", "disease", "syndrome", "infection", "diabetes", "hypertension",
		"asthma", "stroke", "alzheimer", "dementia", "depression", "anxiety", "covid", "virus",
		"bacteria", "fever", "pain", "symptom", "disorder", "injury", "allergy", "obesity", "leukemia",
		"lymphoma", "melanoma", "metastasis", "malignant", "benign",
	},
	"treatment": {
		"treatment", "therapy", "drug", "medication", "medicine", "dose", "dosage", "vaccine",
		"surgery", "chemotherapy", "radiotherapy", "radiation", "immunotherapy", "antibiotic",
		"prescription", "side effect", "metformin", "insulin", "statin", "aspirin", "transplant",
	},
	"research": {
		"clinical", "trial", "study", "cohort", "meta-analysis", "randomized", "placebo", "biomarker",
		"gene", "genetic", "mutation", "protein", "receptor", "pathway", "pubmed", "epidemiology",
		"prognosis", "diagnosis", "screening", "mortality", "survival", "incidence",
	},
	"anatomy": {
		"heart", "lung", "liver", "kidney", "brain", "blood", "bone", "skin", "breast", "prostate",
		"pancreas", "colon", "stomach", "immune", "cell", "tissue", "organ",
	},
	"care": {
		"health", "medical", "doctor", "physician", "nurse", "hospital", "patient", "clinic",
		"oncology", "cardiology", "neurology", "healthcare", "nutrition", "diet", "pregnan",
	},
}

var greetings = []string{"hi", "hello", "hey", "thanks", "thank you", "good morning", "good evening"}

// 医学术语常见后缀。
var medicalSuffixes = []string{"itis", "oma", "emia", "ectomy", "ology", "osis", "mab", "nib", "statin"}

// Analyze 判断用户输入是否属于医学话题。
func Analyze(text string) Decision {
	normalized := strings.TrimSpace(strings.ToLower(text))
	if normalized == "" {
		return Decision{Topic: OffTopic}
	}

	score := 0
	var matched []string
	for _, keywords := range keywordBuckets {
		for _, word := range keywords {
			if strings.Contains(normalized, word) {
				score += 3
				matched = append(matched, word)
			}
		}
	}

	for _, token := range tokenize(normalized) {
		if len(token) < 5 {
			continue
		}
		for _, suffix := range medicalSuffixes {
			if strings.HasSuffix(token, suffix) {
				score++
				matched = append(matched, token)
				break
			}
		}
	}

	if score > 0 {
		return Decision{Topic: Medical, Score: score, Matched: matched}
	}
	if isGreeting(normalized) {
		return Decision{Topic: Greeting}
	}
	return Decision{Topic: OffTopic}
}

func isGreeting(normalized string) bool {
	trimmed := strings.TrimFunc(normalized, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	for _, g := range greetings {
		if trimmed == g || strings.HasPrefix(trimmed, g+" ") {
			return len(tokenize(trimmed)) <= 4
		}
	}
	return false
}

func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
}

var fallbackReplies = []string{
	"I'm specialized in medical topics. Try asking me about healthcare!",
	"I currently focus on medical and health-related discussions.",
	"It looks like your question isn't related to medicine. Try a medical topic!",
	"I'm built to provide medical insights. Can I help with anything health-related?",
	"I'm here for medical conversations! Maybe ask me about diseases, treatments, or healthcare?",
}

// FallbackReply returns one of the canned replies for off-topic turns.
func FallbackReply(seed int) string {
	if seed < 0 {
		seed = -seed
	}
	return fallbackReplies[seed%len(fallbackReplies)]
}
