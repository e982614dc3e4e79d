package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/sigmesh/sigmesh-go/internal/server/wire"
)

// MembershipCommand returns the membership subcommand group.
func MembershipCommand() *cli.Command {
	return &cli.Command{
		Name:  "membership",
		Usage: "Send membership envelopes to a community ledger",
		Subcommands: []*cli.Command{
			{
				Name:      "send",
				Usage:     "Deliver a membership envelope (from file or stdin)",
				ArgsUsage: "[FILE]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "team",
						Usage:    "Community team ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "user",
						Aliases:  []string{"u"},
						Usage:    "Sending user ID",
						Required: true,
					},
				},
				Action: membershipSend,
			},
		},
	}
}

func membershipSend(c *cli.Context) error {
	var message []byte
	var err error
	if c.Args().Len() > 0 {
		message, err = os.ReadFile(c.Args().First())
		if err != nil {
			return fmt.Errorf("read message file: %w", err)
		}
	} else {
		message, err = io.ReadAll(c.App.Reader)
		if err != nil {
			return fmt.Errorf("read message from stdin: %w", err)
		}
	}
	if len(message) == 0 {
		return fmt.Errorf("membership message is empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cl, err := NewClient(c)
	if err != nil {
		return err
	}
	err = cl.SendMembership(ctx, &wire.MembershipMessageRequest{
		TeamID:  c.String("team"),
		UserID:  c.String("user"),
		Message: message,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "delivered")
	return nil
}
