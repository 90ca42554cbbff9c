package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maumercado/miri-go/pkg/client"
)

func (a *app) promptCmd() *cobra.Command {
	var sessionID, model string

	cmd := &cobra.Command{
		Use:   "prompt <text>",
		Short: "Send a prompt and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client.SubmitPrompt(cmd.Context(), client.PromptRequest{
				Prompt:    strings.Join(args, " "),
				SessionID: sessionID,
				Model:     model,
			})
			if err != nil {
				return err
			}
			return a.render(resp, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, resp.Response)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session to continue")
	cmd.Flags().StringVar(&model, "model", "", "model override")
	return cmd
}

func (a *app) streamCmd() *cobra.Command {
	var sessionID, model string

	cmd := &cobra.Command{
		Use:   "stream <text>",
		Short: "Send a prompt and print the answer as it is generated",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.client.StreamPrompt(cmd.Context(), client.StreamPromptQuery{
				Prompt:    strings.Join(args, " "),
				SessionID: sessionID,
				Model:     model,
			})
			if err != nil {
				return err
			}
			defer s.Close()

			if a.cfg.Output != "text" {
				answer, err := s.Collect()
				if err != nil {
					return err
				}
				return a.render(client.PromptResponse{Response: answer}, nil)
			}

			for s.Next() {
				fmt.Fprint(a.out, s.Chunk())
			}
			fmt.Fprintln(a.out)
			return s.Err()
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session to continue")
	cmd.Flags().StringVar(&model, "model", "", "model override")
	return cmd
}

func (a *app) sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Open sessions and show agent status",
	}

	var clientID string
	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Open a new session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if clientID == "" {
				clientID = client.NewClientID()
			}
			id, err := a.client.NewSession(cmd.Context(), clientID)
			if err != nil {
				return err
			}
			out := client.InteractionResponse{SessionID: id}
			return a.render(out, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, id)
				return err
			})
		},
	}
	newCmd.Flags().StringVar(&clientID, "client-id", "", "client identifier (default: random)")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the agent's model, sessions and channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.client.Status(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(st, func(w io.Writer) error {
				subagents := "-"
				if st.NumSubagents != nil {
					subagents = strconv.Itoa(*st.NumSubagents)
				}
				return table(w, []string{"MODEL", "SUBAGENTS", "SESSIONS", "CHANNELS"}, [][]string{{
					orDash(st.PrimaryModel),
					subagents,
					strconv.Itoa(len(st.Sessions)),
					orDash(strings.Join(st.Channels, ",")),
				}})
			})
		},
	}

	cmd.AddCommand(newCmd, statusCmd)
	return cmd
}
