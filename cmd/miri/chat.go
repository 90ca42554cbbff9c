package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maumercado/miri-go/pkg/client"
)

var errConnClosed = errors.New("connection closed by server")

func (a *app) chatCmd() *cobra.Command {
	var q client.WSQuery

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the agent over a WebSocket",
		Long: `Chat with the agent over a WebSocket.

Each line read from stdin is sent as a prompt. An empty line is skipped
and /quit ends the session. With --channel and --device the socket
bridges a messaging channel instead of a session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			bridge := q.Channel != "" && q.Device != ""
			if !bridge && q.SessionID == "" && q.ClientID == "" {
				q.ClientID = client.NewClientID()
			}

			ws, err := a.client.DialWebSocket(ctx, q)
			if err != nil {
				return err
			}
			defer ws.Close()

			if !bridge {
				msg, err := waitFrame(ctx, ws)
				if err != nil {
					return err
				}
				if msg.Session != nil {
					fmt.Fprintf(a.errOut, "session %s (%d messages)\n", msg.Session.ID, len(msg.Session.Messages))
				}
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "/quit" {
					return nil
				}
				if err := ws.SendPrompt(line); err != nil {
					return err
				}
				if err := a.readReply(ctx, ws); err != nil {
					return err
				}
			}
			return scanner.Err()
		},
	}
	cmd.Flags().StringVar(&q.SessionID, "session", "", "session to join")
	cmd.Flags().StringVar(&q.ClientID, "client-id", "", "client identifier for a new session")
	cmd.Flags().StringVar(&q.Channel, "channel", "", "messaging channel to bridge")
	cmd.Flags().StringVar(&q.Device, "device", "", "device or IRC channel to bridge")
	cmd.Flags().BoolVar(&q.Stream, "stream", false, "receive answers in chunks")
	return cmd
}

// readReply prints frames until one answer is complete.
func (a *app) readReply(ctx context.Context, ws *client.WebSocketClient) error {
	for {
		msg, err := waitFrame(ctx, ws)
		if err != nil {
			return err
		}
		switch {
		case msg.Error != "":
			fmt.Fprintln(a.errOut, "error:", msg.Error)
			return nil
		case msg.EndOfStream():
			fmt.Fprintln(a.out)
			return nil
		case msg.Stream != nil && *msg.Stream:
			fmt.Fprint(a.out, msg.Response)
		case msg.Type == "history":
			// a late history frame is not part of the reply
		default:
			fmt.Fprintln(a.out, msg.Response)
			return nil
		}
	}
}

func waitFrame(ctx context.Context, ws *client.WebSocketClient) (*client.WSMessage, error) {
	select {
	case msg, ok := <-ws.Messages():
		if !ok {
			if err := ws.Err(); err != nil {
				return nil, err
			}
			return nil, errConnClosed
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
