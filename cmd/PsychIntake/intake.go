package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"strings"
	"time"

	"github.com/mdp/qrterminal/v3"

	"github.com/BTreeMap/PsychIntake/internal/intake"
	"github.com/BTreeMap/PsychIntake/internal/models"
)

const intakeHelp = `Type your answer and press Enter. When options are listed, type their number.
  /pause    save your progress and get a resume code
  /resume   continue a paused conversation
  /finish   complete the assessment and generate your report
  /retry    retry report generation after a failure
  /start    start a new conversation
  /signup   create an account and keep this conversation
  /help     show this help
  /quit     leave (a paused conversation can be resumed later)`

const displayTime = "Jan 2, 2006 3:04 PM"

var errQuit = errors.New("quit")

func runIntake(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("intake", flag.ContinueOnError)
	fs.SetOutput(a.out)
	autoResume := fs.Bool("resume", false, "resume a saved session without asking")
	resumeToken := fs.String("resume-token", "", "resume code from another device")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	sess, err := intake.NewSession(intake.Deps{
		API:      a.client,
		Store:    a.store,
		Renderer: newTerminalRenderer(a.out),
	})
	if err != nil {
		return err
	}

	a.printf("PsychIntake. Type /help for commands.\n")
	err = sess.Bootstrap(ctx, intake.BootstrapOptions{
		AutoResume:  *autoResume,
		ResumeToken: strings.TrimSpace(*resumeToken),
		Chooser:     a.chooseResume,
	})
	if err != nil && !intake.IsReported(err) {
		return err
	}
	if sess.State() == models.StateInitializing {
		a.printf("Type /start to begin a new conversation.\n")
	}

	for {
		line, err := a.readLine(ctx, "> ")
		if errors.Is(err, io.EOF) {
			a.printf("\n")
			return nil
		}
		if err != nil {
			return err
		}
		if err := a.handleIntakeLine(ctx, sess, line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			return err
		}
	}
}

// handleIntakeLine runs one REPL line. Errors already shown in the
// transcript are swallowed; local refusals are printed. Only errQuit and
// cancellation end the loop.
func (a *app) handleIntakeLine(ctx context.Context, sess *intake.Session, line string) error {
	input := strings.TrimSpace(line)
	if input == "" {
		return nil
	}

	var err error
	switch strings.ToLower(input) {
	case "/quit", "/exit":
		if sess.State() == models.StateActive {
			a.printf("Tip: use /pause first to be able to resume this conversation later.\n")
		}
		return errQuit
	case "/help":
		a.printf("%s\n", intakeHelp)
		return nil
	case "/pause":
		var res *intake.PauseResult
		res, err = sess.Pause(ctx)
		if err == nil {
			a.showResumeCode(res)
		}
	case "/resume":
		err = sess.Resume(ctx, "")
	case "/finish":
		err = sess.Finish(ctx)
	case "/retry":
		err = sess.RetryReport(ctx)
	case "/start":
		err = sess.Start(ctx)
	case "/signup":
		err = a.linkAccount(ctx, sess)
	default:
		if strings.HasPrefix(input, "/") {
			a.printf("Unknown command %s. Type /help for commands.\n", input)
			return nil
		}
		if c, ok := choiceFor(sess.Messages(), input); ok {
			err = sess.Choose(ctx, c)
		} else {
			err = sess.Send(ctx, input)
		}
	}

	if err == nil || intake.IsReported(err) {
		a.afterTurn(sess)
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	a.printf("! %s\n", describe(err))
	return nil
}

// afterTurn prints hints that depend on the new session state.
func (a *app) afterTurn(sess *intake.Session) {
	if sess.ReportRetryAvailable() {
		a.printf("Report generation failed. Type /retry to try again.\n")
	}
	if sess.State() == models.StateFinished {
		if id := sess.LastReportID(); id != "" {
			a.printf("Your assessment is complete. Save your report with: PsychIntake report %s\n", id)
		} else {
			a.printf("Your assessment is complete.\n")
		}
	}
}

// describe turns a local refusal into a sentence for the patient.
func describe(err error) string {
	switch {
	case errors.Is(err, models.ErrBusy):
		return "Please wait for the current reply to finish."
	case errors.Is(err, models.ErrNoSession):
		return "There is no conversation yet. Type /start to begin."
	case errors.Is(err, models.ErrRetryExhausted):
		return "Report generation has failed too many times. Please contact support."
	case errors.Is(err, models.ErrInvalidTransition):
		return "That isn't available right now (" + err.Error() + ")."
	default:
		return err.Error()
	}
}

func (a *app) showResumeCode(res *intake.PauseResult) {
	a.printf("\nResume code: %s\n", res.ResumeToken)
	a.printf("Valid until %s. Scan to continue on another device:\n", res.ExpiresAt.Local().Format(displayTime))
	qrterminal.GenerateHalfBlock(res.ResumeToken, qrterminal.L, a.out)
	a.printf("Or run: PsychIntake intake --resume-token %s\n", res.ResumeToken)
}

// chooseResume asks whether to continue a paused session found on startup.
func (a *app) chooseResume(ctx context.Context, rec models.PausedSessionRecord) (intake.ResumeDecision, error) {
	a.printf("You have a paused session (%s) from %s. It can be resumed for another %s.\n",
		models.DisplayIDFor(rec.SessionToken),
		rec.PausedAt.Local().Format(displayTime),
		rec.Remaining(time.Now()).Round(time.Minute))
	if len(rec.CompletedScreeners) > 0 {
		a.printf("Completed questionnaires: %s\n", strings.Join(rec.CompletedScreeners, ", "))
	}
	yes, err := a.confirm(ctx, "Continue where you left off?")
	if err != nil {
		return intake.DecisionContinue, err
	}
	if !yes {
		return intake.DecisionStartFresh, nil
	}
	return intake.DecisionContinue, nil
}

// linkAccount collects the signup form and links the current conversation.
func (a *app) linkAccount(ctx context.Context, sess *intake.Session) error {
	form, err := a.readSignup(ctx)
	if err != nil {
		return err
	}
	res, err := sess.LinkAccount(ctx, form)
	if err != nil {
		return err
	}
	if !res.Transferred && sess.State() != models.StateInitializing {
		a.printf("Your account is ready, but this conversation could not be moved to it.\n")
	}
	return nil
}

// readSignup prompts for every signup field.
func (a *app) readSignup(ctx context.Context) (models.Signup, error) {
	var f models.Signup
	fields := []struct {
		label    string
		dst      *string
		required bool
	}{
		{"Full name", &f.FullName, true},
		{"Email", &f.Email, true},
		{"Phone (optional)", &f.Phone, false},
		{"State", &f.State, true},
		{"Password (8+ characters)", &f.Password, true},
	}
	for _, fld := range fields {
		v, err := a.ask(ctx, fld.label, fld.required)
		if err != nil {
			return models.Signup{}, err
		}
		*fld.dst = v
	}
	return f, nil
}
