package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/PabloGalante/needlingo/internal/domain"
)

var (
	green  = lipgloss.Color("#a6e3a1")
	yellow = lipgloss.Color("#f9e2af")
	red    = lipgloss.Color("#f38ba8")
	blue   = lipgloss.Color("#74c7ec")
	muted  = lipgloss.Color("#a6adc8")

	titleStyle   = lipgloss.NewStyle().Foreground(blue).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	subtextStyle = lipgloss.NewStyle().Foreground(muted).Italic(true)
	errorStyle   = lipgloss.NewStyle().Foreground(red).Bold(true)
	agentStyle   = lipgloss.NewStyle().Bold(true)

	cardStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1)
)

func bandStyle(b domain.ScoreBand) lipgloss.Style {
	switch b {
	case domain.BandGood:
		return lipgloss.NewStyle().Foreground(green).Bold(true)
	case domain.BandFair:
		return lipgloss.NewStyle().Foreground(yellow).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(red).Bold(true)
	}
}

func renderPersona(v domain.View) string {
	if v.Persona == nil {
		return ""
	}
	p := v.Persona
	body := strings.Join([]string{
		titleStyle.Render(p.Name + " · " + p.Role),
		"Problem: " + p.Problem,
		"Current solution: " + p.CurrentSolution,
		mutedStyle.Render(fmt.Sprintf("%d questions left · /hint /grade /retry /show N /new /lang en|zh /quit", v.TurnsLeft)),
	}, "\n")
	return cardStyle.Render(body)
}

func renderAgent(name, text, subtext string) string {
	line := agentStyle.Render(name+": ") + text
	if subtext != "" {
		line += "\n" + subtextStyle.Render("  ("+subtext+")")
	}
	return line
}

func renderScore(n int, score int, left int) string {
	badge := bandStyle(domain.QuestionBand(score)).Render(fmt.Sprintf("[%d]", score))
	return mutedStyle.Render(fmt.Sprintf("Q%d ", n)) + badge +
		mutedStyle.Render(fmt.Sprintf("  %d left · /show %d for feedback", left, n))
}

func renderAnalysis(n int, a domain.Analysis) string {
	lines := []string{
		bandStyle(domain.QuestionBand(a.Score)).Render(fmt.Sprintf("Q%d score %d", n, a.Score)),
		"Subtext: " + a.Subtext,
		"Feedback: " + a.Feedback,
	}
	if a.BetterAlternative != "" {
		lines = append(lines, "Try: "+a.BetterAlternative)
	}
	return cardStyle.Render(strings.Join(lines, "\n"))
}

func renderGrading(g domain.GradingResult) string {
	verdict := bandStyle(domain.BandPoor).Render("LEVEL FAILED")
	if g.IsLevelCleared {
		verdict = bandStyle(domain.BandGood).Render("LEVEL CLEARED")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s  total %d\n", verdict, g.TotalScore)
	b.WriteString(g.LevelFeedback + "\n\n")
	b.WriteString(g.Summary + "\n")
	for _, s := range g.Strengths {
		b.WriteString(bandStyle(domain.BandGood).Render("+ ") + s + "\n")
	}
	for _, w := range g.Weaknesses {
		b.WriteString(bandStyle(domain.BandPoor).Render("- ") + w + "\n")
	}
	for _, l := range g.LineByLineAnalysis {
		b.WriteString("\n" + bandStyle(domain.LineBand(l.Score)).Render(fmt.Sprintf("[%d] ", l.Score)) + l.OriginalText + "\n")
		b.WriteString(mutedStyle.Render("    "+l.Reason) + "\n")
		if l.BetterAlternative != "" {
			b.WriteString(mutedStyle.Render("    try: "+l.BetterAlternative) + "\n")
		}
	}
	return cardStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func renderError(err error) string {
	return errorStyle.Render("error: ") + err.Error()
}
