package command

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/sigmesh/sigmesh-go/internal/server/wire"
	"github.com/sigmesh/sigmesh-go/pkg/keymat"
)

// CommunityCommand returns the community subcommand group.
func CommunityCommand() *cli.Command {
	return &cli.Command{
		Name:    "community",
		Aliases: []string{"comm"},
		Usage:   "Manage communities and connections",
		Subcommands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create a community",
				ArgsUsage: "TEAM_ID",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "user",
						Aliases:  []string{"u"},
						Usage:    "Creator user ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "ledger-file",
						Usage: "File with the initial membership ledger document",
					},
					&cli.StringFlag{
						Name:  "key-material",
						Usage: "Community key material (base64)",
					},
				},
				Action: communityCreate,
			},
			{
				Name:      "status",
				Usage:     "Show a community's connection snapshot",
				ArgsUsage: "TEAM_ID",
				Action:    communityStatus,
			},
			{
				Name:      "connect",
				Usage:     "Open a membership connection",
				ArgsUsage: "TEAM_ID",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "user",
						Aliases:  []string{"u"},
						Usage:    "User ID",
						Required: true,
					},
				},
				Action: communityConnect,
			},
			{
				Name:      "disconnect",
				Usage:     "Sign a user out of a community",
				ArgsUsage: "TEAM_ID",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "user",
						Aliases:  []string{"u"},
						Usage:    "User ID",
						Required: true,
					},
				},
				Action: communityDisconnect,
			},
		},
	}
}

func communityCreate(c *cli.Context) error {
	if err := RequireArgs(c, 1, "TEAM_ID"); err != nil {
		return err
	}

	req := &wire.CreateCommunityRequest{
		TeamID: c.Args().First(),
		UserID: c.String("user"),
	}

	if path := c.String("ledger-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read ledger file: %w", err)
		}
		req.Ledger = data
	}
	if km := c.String("key-material"); km != "" {
		data, err := base64.StdEncoding.DecodeString(km)
		if err != nil {
			return fmt.Errorf("decode key material: %w", err)
		}
		req.KeyMaterial = data
	} else {
		km, err := keymat.Generate()
		if err != nil {
			return fmt.Errorf("generate key material: %w", err)
		}
		req.KeyMaterial = []byte(km)
		fmt.Fprintf(c.App.Writer, "generated key material (fingerprint %s)\n", keymat.Fingerprint(km))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cl, err := NewClient(c)
	if err != nil {
		return err
	}
	resp, err := cl.CreateCommunity(ctx, req)
	if err != nil {
		return err
	}
	return Render(c, resp)
}

func communityStatus(c *cli.Context) error {
	if err := RequireArgs(c, 1, "TEAM_ID"); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cl, err := NewClient(c)
	if err != nil {
		return err
	}
	resp, err := cl.CommunityStatus(ctx, c.Args().First())
	if err != nil {
		return err
	}
	return Render(c, resp)
}

func communityConnect(c *cli.Context) error {
	if err := RequireArgs(c, 1, "TEAM_ID"); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cl, err := NewClient(c)
	if err != nil {
		return err
	}
	resp, err := cl.Connect(ctx, c.Args().First(), c.String("user"))
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "connected as transport %s\n", cl.Transport())
	return Render(c, resp)
}

func communityDisconnect(c *cli.Context) error {
	if err := RequireArgs(c, 1, "TEAM_ID"); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cl, err := NewClient(c)
	if err != nil {
		return err
	}
	if err := cl.Disconnect(ctx, c.Args().First(), c.String("user")); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "disconnected")
	return nil
}
