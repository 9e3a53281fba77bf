package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/appstate"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

// withEngine opens the configured stores, builds a gate without HTTP
// collectors and runs fn with it.
func withEngine(ctx context.Context, cfg *appConfig, fn func(*goGate.Engine) error) error {
	b, err := openBackends(ctx, cfg.Stores, cfg.usesRedis())
	if err != nil {
		return err
	}
	defer b.Close()

	engine, err := buildEngine(cfg, b, nil)
	if err != nil {
		return fmt.Errorf("build gate: %w", err)
	}
	defer engine.Close()
	return fn(engine)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newStateCmd(st *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or change the app-state schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEngine(cmd.Context(), st.cfg, func(e *goGate.Engine) error {
				current, err := e.CurrentState(cmd.Context())
				if err != nil {
					return err
				}
				entries, err := e.StateSchedule(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), stateView{Current: current, Schedule: entries})
			})
		},
	}
	cmd.AddCommand(newScheduleCmd(st))
	return cmd
}

type stateView struct {
	Current  appstate.Current `json:"current"`
	Schedule []appstate.Entry `json:"schedule"`
}

func newScheduleCmd(st *cliState) *cobra.Command {
	var (
		state  string
		at     string
		reason string
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Add a schedule entry; an entry at the same instant is replaced",
		RunE: func(cmd *cobra.Command, _ []string) error {
			entry, err := parseEntry(state, at, reason, time.Now())
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), st.cfg, func(e *goGate.Engine) error {
				if _, err := e.ScheduleState(cmd.Context(), entry); err != nil {
					return err
				}
				current, err := e.CurrentState(cmd.Context())
				if err != nil {
					return err
				}
				entries, err := e.StateSchedule(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), stateView{Current: current, Schedule: entries})
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "INITIAL, ACTIVE, IN_MAINTENANCE or SUSPENDED")
	cmd.Flags().StringVar(&at, "at", "now", `effective time, RFC 3339 or "now"`)
	cmd.Flags().StringVar(&reason, "reason", "", "reason shown to blocked callers")
	_ = cmd.MarkFlagRequired("state")
	return cmd
}

func parseEntry(state, at, reason string, now time.Time) (appstate.Entry, error) {
	s, err := appstate.ParseState(state)
	if err != nil {
		return appstate.Entry{}, err
	}
	effective := now
	if at != "" && !strings.EqualFold(at, "now") {
		if effective, err = time.Parse(time.RFC3339, at); err != nil {
			return appstate.Entry{}, fmt.Errorf("--at: %w", err)
		}
	}
	entry := appstate.Entry{State: s, EffectiveFrom: effective.UTC(), Reason: reason}
	return entry, entry.Validate()
}
