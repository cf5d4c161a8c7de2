package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/BTreeMap/PsychIntake/internal/intake"
)

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return errUsage
	}
	return nil
}

func runSignup(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("signup", flag.ContinueOnError)
	fs.SetOutput(a.out)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if auth, err := a.store.AuthSession(ctx); err == nil && auth.Authenticated() {
		return fmt.Errorf("already signed in as %s; run signout first", auth.Identity.Email)
	}

	sess, err := intake.NewSession(intake.Deps{API: a.client, Store: a.store, Renderer: newTerminalRenderer(a.out)})
	if err != nil {
		return err
	}
	form, err := a.readSignup(ctx)
	if err != nil {
		return err
	}
	// Without an open conversation there is nothing to transfer; the
	// confirmation turn is printed by the renderer.
	_, err = sess.LinkAccount(ctx, form)
	return err
}

func runSignin(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("signin", flag.ContinueOnError)
	fs.SetOutput(a.out)
	email := fs.String("email", "", "account email")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if strings.TrimSpace(*email) == "" {
		v, err := a.ask(ctx, "Email", true)
		if err != nil {
			return err
		}
		*email = v
	}
	password, err := a.ask(ctx, "Password", true)
	if err != nil {
		return err
	}

	id, err := intake.SignIn(ctx, a.client, a.store, *email, password)
	if err != nil {
		return err
	}
	name := id.Name
	if name == "" {
		name = id.Email
	}
	a.printf("Signed in as %s.\n", name)
	return nil
}

func runSignout(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("signout", flag.ContinueOnError)
	fs.SetOutput(a.out)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := intake.SignOut(ctx, a.store); err != nil {
		return err
	}
	a.printf("Signed out.\n")
	return nil
}
