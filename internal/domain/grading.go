package domain

// LineFeedback is the critique of one user line in the final grading.
type LineFeedback struct {
	OriginalText      string `json:"originalText"`
	Score             int    `json:"score"`
	Reason            string `json:"reason"`
	BetterAlternative string `json:"betterAlternative,omitempty"`
}

// GradingResult is the terminal evaluation of a session. TotalScore may be negative.
type GradingResult struct {
	TotalScore         int            `json:"totalScore"`
	IsLevelCleared     bool           `json:"isLevelCleared"`
	LevelFeedback      string         `json:"levelFeedback"`
	Summary            string         `json:"summary"`
	Strengths          []string       `json:"strengths"`
	Weaknesses         []string       `json:"weaknesses"`
	LineByLineAnalysis []LineFeedback `json:"lineByLineAnalysis"`
}

func (g GradingResult) Clone() GradingResult {
	c := g
	c.Strengths = append([]string(nil), g.Strengths...)
	c.Weaknesses = append([]string(nil), g.Weaknesses...)
	c.LineByLineAnalysis = append([]LineFeedback(nil), g.LineByLineAnalysis...)
	return c
}

// ScoreBand buckets a score the way the trainer colours it.
type ScoreBand string

const (
	BandGood ScoreBand = "good"
	BandFair ScoreBand = "fair"
	BandPoor ScoreBand = "poor"
)

// QuestionBand classifies a per-question analysis score.
func QuestionBand(score int) ScoreBand {
	switch {
	case score >= 80:
		return BandGood
	case score >= 50:
		return BandFair
	default:
		return BandPoor
	}
}

// LineBand classifies a line score from the final grading, where negatives mark harmful lines.
func LineBand(score int) ScoreBand {
	switch {
	case score >= 80:
		return BandGood
	case score >= 0:
		return BandFair
	default:
		return BandPoor
	}
}
