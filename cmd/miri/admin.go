package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/maumercado/miri-go/pkg/client"
)

func (a *app) adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage the agent through the admin API",
	}
	cmd.AddCommand(
		a.adminHealthCmd(),
		a.adminConfigCmd(),
		a.adminHumanCmd(),
		a.adminSkillsCmd(),
		a.adminChannelsCmd(),
		a.adminSessionsCmd(),
		a.adminTasksCmd(),
	)
	return cmd
}

func (a *app) adminHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.client.Health(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(h, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s: %s\n", h.Status, h.Message)
				return err
			})
		},
	}
}

func (a *app) adminConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read or replace the service configuration",
	}

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Print the service configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.client.GetConfig(cmd.Context())
			if err != nil {
				return err
			}
			// Configuration is structured; text output is YAML.
			return a.render(cfg, func(w io.Writer) error {
				enc := yaml.NewEncoder(w)
				enc.SetIndent(2)
				if err := enc.Encode(cfg); err != nil {
					return err
				}
				return enc.Close()
			})
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <file>",
		Short: "Replace the service configuration with a YAML or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var cfg client.Config
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			ack, err := a.client.UpdateConfig(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return a.renderStatus(ack)
		},
	}

	cmd.AddCommand(getCmd, setCmd)
	return cmd
}

func (a *app) renderStatus(ack *client.StatusResponse) error {
	return a.render(ack, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, orDash(ack.Status))
		return err
	})
}

func (a *app) adminHumanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "human",
		Short: "List or add human-info records",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List human-info records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			humans, err := a.client.ListHumanInfo(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(humans, func(w io.Writer) error {
				rows := make([][]string, 0, len(humans))
				for _, h := range humans {
					rows = append(rows, []string{orDash(h.ID), orDash(formatData(h.Data)), orDash(h.Notes)})
				}
				return table(w, []string{"ID", "DATA", "NOTES"}, rows)
			})
		},
	}

	var (
		id    string
		notes string
		data  map[string]string
	)
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Store a human-info record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ack, err := a.client.SaveHumanInfo(cmd.Context(), client.HumanInfo{ID: id, Data: data, Notes: notes})
			if err != nil {
				return err
			}
			return a.renderStatus(ack)
		},
	}
	addCmd.Flags().StringVar(&id, "id", "", "record id")
	addCmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	addCmd.Flags().StringToStringVar(&data, "data", nil, "key=value attributes")

	cmd.AddCommand(listCmd, addCmd)
	return cmd
}

func formatData(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + m[k]
	}
	return strings.Join(parts, ",")
}

func (a *app) adminSkillsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skills",
		Short: "Inspect and remove installed skills",
	}

	renderSkills := func(skills []client.Skill) error {
		return a.render(skills, func(w io.Writer) error {
			rows := make([][]string, 0, len(skills))
			for _, s := range skills {
				rows = append(rows, []string{s.Name, orDash(s.Version), orDash(strings.Join(s.Tags, ",")), orDash(s.Description)})
			}
			return table(w, []string{"NAME", "VERSION", "TAGS", "DESCRIPTION"}, rows)
		})
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List installed skills",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			skills, err := a.client.ListSkills(cmd.Context())
			if err != nil {
				return err
			}
			return renderSkills(skills)
		},
	}

	getCmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Show one skill",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			skill, err := a.client.GetSkill(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.cfg.Output != "text" {
				return a.render(skill, nil)
			}
			return renderSkills([]client.Skill{*skill})
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm <name>",
		Short: "Remove a skill",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ack, err := a.client.RemoveSkill(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.renderStatus(ack)
		},
	}

	cmd.AddCommand(listCmd, getCmd, rmCmd)
	return cmd
}

func (a *app) adminChannelsCmd() *cobra.Command {
	var device, message, prompt string

	cmd := &cobra.Command{
		Use:   "channels <channel> <action>",
		Short: "Run an action on a messaging channel",
		Long: `Run an action on a messaging channel (whatsapp or irc).

Actions: status, enroll, devices, send (--device, --message) and
chat (--device, --prompt).`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client.ChannelAction(cmd.Context(), client.ChannelActionRequest{
				Channel: args[0],
				Action:  client.ChannelAction(args[1]),
				Device:  device,
				Message: message,
				Prompt:  prompt,
			})
			if err != nil {
				return err
			}
			return a.render(resp, func(w io.Writer) error {
				switch {
				case resp.Response != "":
					_, err := fmt.Fprintln(w, resp.Response)
					return err
				case resp.Devices != nil:
					return lines(w, resp.Devices)
				default:
					_, err := fmt.Fprintln(w, orDash(resp.Status))
					return err
				}
			})
		},
	}
	cmd.Flags().StringVar(&device, "device", "", "target device or IRC channel")
	cmd.Flags().StringVar(&message, "message", "", "message for the send action")
	cmd.Flags().StringVar(&prompt, "prompt", "", "prompt for the chat action")
	return cmd
}

func (a *app) adminSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect agent sessions",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List session ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := a.client.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(ids, func(w io.Writer) error { return lines(w, ids) })
		},
	}

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.client.GetSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.render(sess, func(w io.Writer) error {
				tokens := "-"
				if sess.TotalTokens != nil {
					tokens = strconv.FormatInt(*sess.TotalTokens, 10)
				}
				return table(w, []string{"ID", "CLIENT", "MESSAGES", "TOKENS"}, [][]string{{
					sess.ID, orDash(sess.ClientID), strconv.Itoa(len(sess.Messages)), tokens,
				}})
			})
		},
	}

	historyCmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Print the messages of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.client.GetSessionHistory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.render(h, func(w io.Writer) error {
				for _, m := range h.Messages {
					if m.Prompt != "" || m.Response != "" {
						fmt.Fprintf(w, "> %s\n%s\n\n", m.Prompt, m.Response)
						continue
					}
					fmt.Fprintf(w, "[%s] %s\n\n", orDash(m.Role), m.Content)
				}
				_, err := fmt.Fprintf(w, "total tokens: %d\n", h.TotalTokens)
				return err
			})
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats <id>",
		Short: "Show token and cost accounting for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.client.GetSessionStats(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.render(st, func(w io.Writer) error {
				return table(w, []string{"SESSION", "PROMPT", "OUTPUT", "TOTAL", "COST"}, [][]string{{
					st.SessionID,
					strconv.FormatInt(st.PromptTokens, 10),
					strconv.FormatInt(st.OutputTokens, 10),
					strconv.FormatInt(st.TotalTokens, 10),
					strconv.FormatFloat(st.TotalCost, 'f', 6, 64),
				}})
			})
		},
	}

	skillsCmd := &cobra.Command{
		Use:   "skills <id>",
		Short: "List the skills loaded into a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			skills, err := a.client.GetSessionSkills(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.render(skills, func(w io.Writer) error { return lines(w, skills) })
		},
	}

	cmd.AddCommand(listCmd, getCmd, historyCmd, statsCmd, skillsCmd)
	return cmd
}

func (a *app) adminTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect scheduled tasks",
	}

	renderTasks := func(tasks []client.Task) error {
		return a.render(tasks, func(w io.Writer) error {
			rows := make([][]string, 0, len(tasks))
			for _, t := range tasks {
				lastRun := "-"
				if t.LastRun != nil {
					lastRun = t.LastRun.Format("2006-01-02 15:04")
				}
				rows = append(rows, []string{t.ID, orDash(t.Name), orDash(t.CronExpression), boolText(t.Active), lastRun})
			}
			return table(w, []string{"ID", "NAME", "SCHEDULE", "ACTIVE", "LAST RUN"}, rows)
		})
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := a.client.ListTasks(cmd.Context())
			if err != nil {
				return err
			}
			return renderTasks(tasks)
		},
	}

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := a.client.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.cfg.Output != "text" {
				return a.render(task, nil)
			}
			return renderTasks([]client.Task{*task})
		},
	}

	cmd.AddCommand(listCmd, getCmd)
	return cmd
}
