package command

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/sigmesh/sigmesh-go/internal/infra/buildinfo"
	"github.com/sigmesh/sigmesh-go/internal/server/wire"
)

// SystemCommand returns the system subcommand group.
func SystemCommand() *cli.Command {
	return &cli.Command{
		Name:    "system",
		Aliases: []string{"sys"},
		Usage:   "Server health and event stream",
		Subcommands: []*cli.Command{
			{
				Name:   "health",
				Usage:  "Show server health",
				Action: systemHealth,
			},
			{
				Name:   "version",
				Usage:  "Show client version",
				Action: systemVersion,
			},
			{
				Name:  "watch",
				Usage: "Stream relay events for this transport session",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "for",
						Usage: "Stop after this duration (runs until interrupted when zero)",
					},
				},
				Action: systemWatch,
			},
		},
	}
}

func systemHealth(c *cli.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cl, err := NewClient(c)
	if err != nil {
		return err
	}
	health, err := cl.Health(ctx)
	if err != nil {
		return err
	}
	return Render(c, health)
}

func systemVersion(c *cli.Context) error {
	info := buildinfo.Get()
	return Render(c, map[string]any{
		"version":    info.Version,
		"commit":     info.Commit,
		"build_time": info.BuildTime,
		"go_version": info.GoVersion,
	})
}

func systemWatch(c *cli.Context) error {
	ctx := context.Background()
	if d := c.Duration("for"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	cl, err := NewClient(c)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "watching events as transport %s\n", cl.Transport())

	return cl.Events(ctx, func(kind string, env *wire.Envelope) error {
		var frame wire.EventFrame
		if err := json.Unmarshal(env.Payload, &frame); err != nil {
			return err
		}
		line, err := json.Marshal(map[string]any{
			"kind":      kind,
			"timestamp": env.Timestamp,
			"team_id":   frame.TeamID,
			"user_id":   frame.UserID,
			"hash":      frame.ContentHash,
			"partition": frame.PartitionID,
			"bytes":     len(frame.Payload),
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, string(line))
		return nil
	})
}
