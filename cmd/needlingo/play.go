package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/needlingo/internal/app/conversation"
	"github.com/PabloGalante/needlingo/internal/app/trainer"
	"github.com/PabloGalante/needlingo/internal/config"
	"github.com/PabloGalante/needlingo/internal/domain"
	"github.com/PabloGalante/needlingo/internal/observability"
)

var (
	playLang    string
	playUser    string
	playVerbose bool
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Interview a synthetic customer in the terminal",
	Long: `Start an interview in the terminal. Plain lines are questions to the customer.

Commands:
  /hint        ask the coach for a better next question
  /grade       end the interview and grade it
  /retry       resend the last question whose reply failed
  /show N      toggle the feedback of question N
  /new         start over with a new customer
  /lang en|zh  switch language and start over
  /quit        leave`,
	RunE: runPlay,
}

func init() {
	playCmd.Flags().StringVarP(&playLang, "lang", "l", "", "interview language (en or zh), defaults to the configured language")
	playCmd.Flags().StringVarP(&playUser, "user", "u", "local", "player id used when archiving graded sessions")
	playCmd.Flags().BoolVarP(&playVerbose, "verbose", "v", false, "log at the configured level instead of warnings only")
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// logs go to stderr so they do not interleave with the interview
	logLevel := "warn"
	if playVerbose {
		logLevel = cfg.LogLevel
	}
	if err := observability.Configure(os.Stderr, logLevel); err != nil {
		return err
	}

	lang := cfg.DefaultLanguage
	if playLang != "" {
		if lang, err = domain.ParseLanguage(playLang); err != nil {
			return err
		}
	}

	gateway, err := newGateway(ctx, cfg)
	if err != nil {
		return err
	}
	archive, closeArchive, err := newArchive(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeArchive()

	t := trainer.NewRegistry(gateway, archive, cfg.MaxTurns).Get(domain.UserID(playUser))
	p := &player{trainer: t, lang: lang, out: cmd.OutOrStdout()}
	return p.run(ctx, cmd.InOrStdin())
}

// player is the line-oriented terminal front-end of one Trainer.
type player struct {
	trainer *trainer.Trainer
	lang    domain.Language
	out     io.Writer

	// session whose grading has already been printed
	shown domain.SessionID
}

func (p *player) run(ctx context.Context, in io.Reader) error {
	p.start(ctx)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(p.out, "> ")
		if !scanner.Scan() {
			break
		}
		if quit := p.handle(ctx, strings.TrimSpace(scanner.Text())); quit {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return scanner.Err()
}

// handle runs one input line and reports whether the player asked to quit.
func (p *player) handle(ctx context.Context, line string) bool {
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		p.ask(ctx, line)
		return false
	}

	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch command {
	case "/quit", "/exit":
		return true
	case "/new":
		p.start(ctx)
	case "/lang":
		lang, err := domain.ParseLanguage(arg)
		if err != nil {
			p.fail(err)
			return false
		}
		p.lang = lang
		p.start(ctx)
	case "/hint":
		hint, err := p.trainer.Turns.RequestHint(ctx)
		if err != nil {
			p.fail(err)
			return false
		}
		fmt.Fprintln(p.out, titleStyle.Render("Hint: ")+hint)
	case "/grade":
		fmt.Fprintln(p.out, mutedStyle.Render("Grading the interview..."))
		g, err := p.trainer.Grading.Finalize(ctx)
		if err != nil {
			p.fail(err)
			return false
		}
		p.shown = p.trainer.Sessions.SessionID()
		fmt.Fprintln(p.out, renderGrading(*g))
	case "/retry":
		p.retry(ctx)
	case "/show":
		p.show(arg)
	default:
		fmt.Fprintln(p.out, mutedStyle.Render("unknown command "+command))
	}
	return false
}

func (p *player) start(ctx context.Context) {
	fmt.Fprintln(p.out, mutedStyle.Render("Generating a customer..."))
	v, err := p.trainer.Turns.StartSession(ctx, p.lang)
	if err != nil {
		p.fail(err)
		return
	}
	fmt.Fprintln(p.out, renderPersona(v))
	if n := len(v.Turns); n > 0 {
		g := v.Turns[n-1]
		fmt.Fprintln(p.out, renderAgent(v.Persona.Name, g.Text, g.Subtext))
	}
}

func (p *player) ask(ctx context.Context, text string) {
	res, err := p.trainer.Turns.SubmitUserMessage(ctx, text)
	if err != nil {
		p.fail(err)
		if domain.KindOf(err) == domain.KindChatTurn {
			fmt.Fprintln(p.out, mutedStyle.Render("Your question was kept. Type /retry to ask for the reply again."))
		}
		p.awaitAutoGrading(ctx)
		return
	}
	p.printExchange(res)
	p.awaitAutoGrading(ctx)
}

func (p *player) retry(ctx context.Context) {
	v := p.trainer.Turns.View()
	var failed domain.TurnID
	for _, t := range v.Turns {
		if t.Sender == domain.SenderUser && t.AnalysisStatus == domain.AnalysisFailed {
			failed = t.ID
		}
	}
	if failed == "" {
		fmt.Fprintln(p.out, mutedStyle.Render("nothing to retry"))
		return
	}

	res, err := p.trainer.Turns.RetryUserMessage(ctx, failed)
	if err != nil {
		p.fail(err)
		return
	}
	p.printExchange(res)
	p.awaitAutoGrading(ctx)
}

func (p *player) show(arg string) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		fmt.Fprintln(p.out, mutedStyle.Render("usage: /show N"))
		return
	}
	turn, ok := nthUserTurn(p.trainer.Turns.View(), n)
	if !ok {
		fmt.Fprintln(p.out, mutedStyle.Render(fmt.Sprintf("no question %d", n)))
		return
	}
	if err := p.trainer.Turns.ToggleAnalysis(turn.ID); err != nil {
		p.fail(err)
		return
	}

	turn, _ = nthUserTurn(p.trainer.Turns.View(), n)
	switch {
	case !turn.AnalysisVisible:
		fmt.Fprintln(p.out, mutedStyle.Render(fmt.Sprintf("feedback of Q%d hidden", n)))
	case turn.Analysis == nil:
		fmt.Fprintln(p.out, mutedStyle.Render(fmt.Sprintf("feedback of Q%d is %s", n, turn.AnalysisStatus)))
	default:
		fmt.Fprintln(p.out, renderAnalysis(n, *turn.Analysis))
	}
}

func (p *player) printExchange(res *conversation.ExchangeResult) {
	v := p.trainer.Turns.View()
	name := ""
	if v.Persona != nil {
		name = v.Persona.Name
	}
	n := userTurnNumber(v, res.UserTurn)
	fmt.Fprintln(p.out, renderAgent(name, res.Reply.Text, res.Reply.Subtext))
	fmt.Fprintln(p.out, renderScore(n, res.Analysis.Score, v.TurnsLeft))
}

// awaitAutoGrading prints the grading started by the turn ceiling, if any.
func (p *player) awaitAutoGrading(ctx context.Context) {
	phase := p.trainer.Sessions.Phase()
	id := p.trainer.Sessions.SessionID()
	if (phase != domain.PhaseGrading && phase != domain.PhaseGraded) || id == p.shown {
		return
	}
	p.shown = id
	fmt.Fprintln(p.out, mutedStyle.Render("Question limit reached, grading the interview..."))
	g, err := p.trainer.Grading.Wait(ctx)
	if err != nil {
		p.shown = ""
		p.fail(err)
		return
	}
	fmt.Fprintln(p.out, renderGrading(*g))
	fmt.Fprintln(p.out, mutedStyle.Render("Type /new for another customer or /quit to leave."))
}

func (p *player) fail(err error) {
	fmt.Fprintln(p.out, renderError(err))
}

func nthUserTurn(v domain.View, n int) (domain.TurnView, bool) {
	for _, t := range v.Turns {
		if t.Sender != domain.SenderUser {
			continue
		}
		n--
		if n == 0 {
			return t, true
		}
	}
	return domain.TurnView{}, false
}

func userTurnNumber(v domain.View, id domain.TurnID) int {
	n := 0
	for _, t := range v.Turns {
		if t.Sender == domain.SenderUser {
			n++
		}
		if t.ID == id {
			return n
		}
	}
	return n
}
