package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/PabloGalante/needlingo/internal/domain"
)

// MockGateway is a deterministic domain.Gateway for local runs and tests.
// It scores questions with simple phrase rules: pitches and hypotheticals score
// low, questions about specific past events score high.
type MockGateway struct{}

func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

var (
	pitchPhrases = []string{
		"would you", "will you", "do you think", "would it", "if there was", "if there were",
		"my app", "our app", "an app", "pay for", "buy", "i'm building", "we're building",
		"会不会", "愿意", "如果有", "你觉得", "买",
	}
	pastPhrases = []string{
		"last time", "yesterday", "last week", "walk me through", "tell me about", "how did",
		"what happened", "when was", "why", "how much did", "what did you",
		"上次", "昨天", "上周", "具体", "为什么", "怎么做的", "发生了什么",
	}
)

func (m *MockGateway) GeneratePersona(_ context.Context, lang domain.Language) (*domain.Persona, error) {
	if lang == domain.LanguageChinese {
		return &domain.Persona{
			Name:             "王丽",
			Role:             "护士",
			Problem:          "文书工作太多",
			CurrentSolution:  "便利贴",
			Context:          "在一家社区医院上夜班",
			DetailedWorkflow: "每次交班前, 我把贴在病历夹上的便利贴一张张抄进电脑系统, 通常要多花四十分钟",
			EmotionalTrigger: "上个月有张便利贴掉了, 漏记一次用药, 被护士长当众批评",
		}, nil
	}
	return &domain.Persona{
		Name:             "Alice",
		Role:             "Nurse",
		Problem:          "too much paperwork",
		CurrentSolution:  "sticky notes",
		Context:          "Works night shifts at a community hospital",
		DetailedWorkflow: "Before every handover I copy each sticky note from the chart clipboard into the hospital system, which adds forty minutes to my shift",
		EmotionalTrigger: "Last month a note fell off, a medication went unrecorded and my supervisor called me out in front of the team",
	}, nil
}

func (m *MockGateway) GenerateGreeting(_ context.Context, persona domain.Persona, lang domain.Language) (*domain.AgentReply, error) {
	if lang == domain.LanguageChinese {
		return &domain.AgentReply{Text: "你好, 我刚在整理病历, 有什么事吗?", Subtext: "有点分心, 想快点回去干活"}, nil
	}
	return &domain.AgentReply{
		Text:    "Hi, just finishing some charts.",
		Subtext: "distracted",
	}, nil
}

func (m *MockGateway) SendChatMessage(_ context.Context, req domain.ChatRequest) (*domain.ChatReply, error) {
	if strings.TrimSpace(req.UserText) == "" {
		return nil, fmt.Errorf("send_chat_message: %w", ErrEmptyResponse)
	}
	score := scoreQuestion(req.UserText)
	zh := req.Language == domain.LanguageChinese

	analysis := domain.Analysis{Score: score}
	var reply domain.AgentReply

	switch {
	case score >= 80:
		analysis.Subtext = pick(zh, "Asks for a concrete story.", "在问具体经历")
		analysis.Feedback = pick(zh, "Good: specific and about the past.", "很好: 具体且关于过去")
		analysis.BetterAlternative = pick(zh, "What did that cost you the last time it happened?", "上次发生时, 给你带来了什么损失?")
		reply = domain.AgentReply{
			Text:    pick(zh, "Honestly? ", "说实话, ") + req.Persona.DetailedWorkflow + ". " + req.Persona.EmotionalTrigger + ".",
			Subtext: pick(zh, "Relieved someone is asking about the real thing.", "终于有人问到点子上了"),
		}
	case score <= 20:
		analysis.Subtext = pick(zh, "Fishing for a compliment.", "在寻求认可")
		analysis.Feedback = pick(zh, "Pitch or hypothetical: people will lie to be polite.", "推销或假设性问题: 对方会出于礼貌说谎")
		analysis.BetterAlternative = pick(zh, "Walk me through the last time you dealt with this.", "能跟我讲讲上次遇到这个问题的经过吗?")
		reply = domain.AgentReply{
			Text:    pick(zh, "That sounds nice, I'd try it.", "听起来不错, 我可能会试试"),
			Subtext: pick(zh, "Being polite, no commitment.", "只是客气, 没有承诺"),
		}
	default:
		analysis.Subtext = pick(zh, "Generic question.", "泛泛的问题")
		analysis.Feedback = pick(zh, "Too general: ask about a specific occasion.", "太笼统: 问一个具体的场景")
		analysis.BetterAlternative = pick(zh, "When was the last time that happened?", "上一次发生是什么时候?")
		reply = domain.AgentReply{
			Text:    pick(zh, "It's okay, I usually just manage.", "还行吧, 一般都能应付"),
			Subtext: pick(zh, "Not engaged yet.", "还没有投入"),
		}
	}

	return &domain.ChatReply{UserAnalysis: analysis, AIResponse: reply}, nil
}

func (m *MockGateway) GenerateHint(_ context.Context, req domain.HintRequest) (string, error) {
	if req.Language == domain.LanguageChinese {
		return "能跟我讲讲上次交班时具体是怎么处理这些记录的吗?", nil
	}
	return "Can you walk me through the last time you handed over your shift?", nil
}

// GenerateGrading scores each user line with the chat rules and clears the
// level when the average reaches 70.
func (m *MockGateway) GenerateGrading(_ context.Context, req domain.GradingRequest) (*domain.GradingResult, error) {
	zh := req.Language == domain.LanguageChinese

	users := lo.Filter(req.History, func(t domain.Turn, _ int) bool { return t.Sender() == domain.SenderUser })
	if len(users) == 0 {
		return nil, fmt.Errorf("generate_grading: no user lines")
	}

	lines := lo.Map(users, func(t domain.Turn, _ int) domain.LineFeedback {
		score := scoreQuestion(t.Text)
		lf := domain.LineFeedback{OriginalText: t.Text, Score: score}
		switch {
		case score >= 80:
			lf.Reason = pick(zh, "Asks about a specific past event.", "问到了具体的过去事件")
		case score <= 20:
			lf.Score = -20
			lf.Reason = pick(zh, "Hypothetical or pitch.", "假设性问题或推销")
			lf.BetterAlternative = pick(zh, "Walk me through the last time this happened.", "讲讲上次发生时的经过")
		default:
			lf.Reason = pick(zh, "Too general.", "太笼统")
			lf.BetterAlternative = pick(zh, "When did this last happen?", "上次是什么时候?")
		}
		return lf
	})

	total := lo.SumBy(lines, func(l domain.LineFeedback) int { return l.Score }) / len(lines)
	cleared := total >= 70

	result := &domain.GradingResult{
		TotalScore:         total,
		IsLevelCleared:     cleared,
		LineByLineAnalysis: lines,
		Strengths:          []string{},
		Weaknesses:         []string{},
	}
	if cleared {
		result.LevelFeedback = pick(zh, "You uncovered the real workflow.", "你挖到了真实的工作流程")
		result.Summary = pick(zh, "Mostly specific questions about the past.", "大部分问题具体且关于过去")
		result.Strengths = append(result.Strengths, pick(zh, "Asked for concrete stories", "询问具体经历"))
	} else {
		result.LevelFeedback = pick(zh, "The hidden pain point stayed hidden.", "隐藏的痛点没有被发现")
		result.Summary = pick(zh, "Too many generic or hypothetical questions.", "笼统或假设性的问题太多")
		result.Weaknesses = append(result.Weaknesses, pick(zh, "Asked about the future instead of the past", "问未来而不是过去"))
	}
	return result, nil
}

func scoreQuestion(text string) int {
	lower := strings.ToLower(text)
	contains := func(p string) bool { return strings.Contains(lower, p) }

	switch {
	case lo.SomeBy(pitchPhrases, contains):
		return 10
	case lo.SomeBy(pastPhrases, contains):
		return 85
	default:
		return 50
	}
}

func pick(zh bool, en, cn string) string {
	if zh {
		return cn
	}
	return en
}
