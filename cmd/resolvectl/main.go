package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"resolveit/broadcast"
	"resolveit/client"
	"resolveit/mediation"
)

const programName = "resolvectl"

var globalFlags = struct {
	server string
	token  string
}{}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           programName,
		Short:         "Administer a resolveit mediation server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&globalFlags.server, "server", envOr("RESOLVEIT_SERVER", "http://localhost:5000"), "server base URL")
	root.PersistentFlags().StringVar(&globalFlags.token, "token", os.Getenv("RESOLVEIT_TOKEN"), "admin bearer token")

	root.AddCommand(
		loginCommand(),
		usersCommand(),
		casesCommand(),
		caseCommand(),
		statsCommand(),
		eventsCommand(),
		answerCommand(),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newClient() *client.Client {
	return client.New(globalFlags.server)
}

func session() (*client.Session, error) {
	if strings.TrimSpace(globalFlags.token) == "" {
		return nil, errors.New("an admin token is required: run login or set RESOLVEIT_TOKEN")
	}
	return newClient().Resume(globalFlags.token), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func loginCommand() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in as administrator and print the token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("RESOLVEIT_PASSWORD")
			}
			s, err := newClient().Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.Token())
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "admin", "administrator username")
	cmd.Flags().StringVar(&password, "password", "", "administrator password (default $RESOLVEIT_PASSWORD)")
	return cmd
}

func usersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List registered users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			users, err := newClient().Users(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), users)
		},
	}
}

func casesCommand() *cobra.Command {
	var status, caseType string
	cmd := &cobra.Command{
		Use:   "cases",
		Short: "List cases",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := session()
			if err != nil {
				return err
			}
			cases, err := s.Cases(cmd.Context(), status, caseType)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), cases)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only cases with this status")
	cmd.Flags().StringVar(&caseType, "type", "", "only cases of this type (Family, Business, Criminal)")
	return cmd
}

func caseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "case",
		Short: "Inspect or advance a single case",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get ID",
			Short: "Show a case",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := newClient().Case(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), c)
			},
		},
		&cobra.Command{
			Use:   "status ID STATUS",
			Short: "Override the workflow status",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSession(cmd, func(s *client.Session) (client.Case, error) {
					return s.SetStatus(cmd.Context(), args[0], args[1])
				})
			},
		},
		panelCommand(),
		witnessCommand(),
		scheduleCommand(),
		resolveCommand(),
	)
	return cmd
}

func withSession(cmd *cobra.Command, fn func(*client.Session) (client.Case, error)) error {
	s, err := session()
	if err != nil {
		return err
	}
	c, err := fn(s)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), c)
}

// splitSpec splits "a:b[:c]" specs used by the panel and witness flags.
func splitSpec(spec string, required int) ([]string, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) < required {
		return nil, fmt.Errorf("invalid value %q", spec)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	return parts, nil
}

func panelCommand() *cobra.Command {
	var members []string
	cmd := &cobra.Command{
		Use:   "panel ID",
		Short: "Create the mediation panel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			panel := make([]mediation.PanelMember, 0, len(members))
			for _, m := range members {
				p, err := splitSpec(m, 2)
				if err != nil {
					return err
				}
				panel = append(panel, mediation.PanelMember{Name: p[0], Expertise: p[1], Contact: p[2]})
			}
			return withSession(cmd, func(s *client.Session) (client.Case, error) {
				return s.CreatePanel(cmd.Context(), args[0], panel)
			})
		},
	}
	cmd.Flags().StringArrayVar(&members, "member", nil, "panel member as name:expertise[:contact], repeatable")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}

func witnessCommand() *cobra.Command {
	var witnesses []string
	var nominatedBy string
	cmd := &cobra.Command{
		Use:   "witnesses ID",
		Short: "Nominate witnesses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list := make([]mediation.Witness, 0, len(witnesses))
			for _, w := range witnesses {
				p, err := splitSpec(w, 2)
				if err != nil {
					return err
				}
				list = append(list, mediation.Witness{Name: p[0], Contact: p[1], Role: p[2], NominatedBy: nominatedBy})
			}
			return withSession(cmd, func(s *client.Session) (client.Case, error) {
				return s.NominateWitnesses(cmd.Context(), args[0], list)
			})
		},
	}
	cmd.Flags().StringArrayVar(&witnesses, "witness", nil, "witness as name:contact[:role], repeatable")
	cmd.Flags().StringVar(&nominatedBy, "nominated-by", "", "party or oppositeParty")
	_ = cmd.MarkFlagRequired("witness")
	return cmd
}

func scheduleCommand() *cobra.Command {
	var at, notes string
	var attendees []string
	cmd := &cobra.Command{
		Use:   "schedule ID",
		Short: "Schedule a mediation session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			when, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return fmt.Errorf("--at must be an RFC3339 timestamp: %w", err)
			}
			return withSession(cmd, func(s *client.Session) (client.Case, error) {
				return s.ScheduleMediation(cmd.Context(), args[0], when, attendees, notes)
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "session time, RFC3339")
	cmd.Flags().StringArrayVar(&attendees, "attendee", nil, "attendee name, repeatable")
	cmd.Flags().StringVar(&notes, "notes", "", "session notes")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func resolveCommand() *cobra.Command {
	var agreement string
	var satisfaction int
	cmd := &cobra.Command{
		Use:   "resolve ID",
		Short: "Resolve a case with an agreement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *client.Session) (client.Case, error) {
				return s.Resolve(cmd.Context(), args[0], agreement, satisfaction)
			})
		},
	}
	cmd.Flags().StringVar(&agreement, "agreement", "", "agreed terms")
	cmd.Flags().IntVar(&satisfaction, "satisfaction", 0, "satisfaction level 1-5")
	_ = cmd.MarkFlagRequired("agreement")
	return cmd
}

func statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show dashboard statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := newClient().Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
}

func eventsCommand() *cobra.Command {
	var caseID string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow case status events until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			return newClient().Events(cmd.Context(), caseID, func(ev broadcast.Event) error {
				_, err := fmt.Fprintf(out, "%s\t%s\t%s\n", ev.At.Format(time.RFC3339), ev.CaseID, ev.Status)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&caseID, "case", "", "only events for this case")
	return cmd
}

func answerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "answer",
		Short: "Manage answers to frequent queries",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set QUERY ANSWER",
			Short: "Create or replace an answer",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := session()
				if err != nil {
					return err
				}
				a, err := s.SetAnswer(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), a)
			},
		},
		&cobra.Command{
			Use:   "find QUERY",
			Short: "Look up answers",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				answers, err := newClient().Answers(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), answers)
			},
		},
	)
	return cmd
}
