package command

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/sigmesh/sigmesh-go/internal/core/domain"
	"github.com/sigmesh/sigmesh-go/internal/core/service"
	"github.com/sigmesh/sigmesh-go/internal/server/wire"
)

// EntryCommand returns the entry subcommand group.
func EntryCommand() *cli.Command {
	return &cli.Command{
		Name:  "entry",
		Usage: "Submit and pull log entries",
		Subcommands: []*cli.Command{
			{
				Name:      "submit",
				Usage:     "Sign and submit a log entry (body from argument or stdin)",
				ArgsUsage: "[BODY]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "team",
						Usage:    "Community team ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "user",
						Aliases:  []string{"u"},
						Usage:    "Author user ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "key-file",
						Aliases: []string{"k"},
						Usage:   "File with the author's base64 ed25519 private key or seed (default: active profile)",
					},
					&cli.StringFlag{
						Name:    "partition",
						Aliases: []string{"p"},
						Usage:   "Partition ID",
					},
				},
				Action: entrySubmit,
			},
			{
				Name:  "pull",
				Usage: "Pull stored entries",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "team",
						Usage:    "Community team ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "user",
						Aliases:  []string{"u"},
						Usage:    "Requesting user ID",
						Required: true,
					},
					&cli.Int64Flag{
						Name:  "start",
						Value: 1,
						Usage: "Start timestamp in ms (inclusive)",
					},
					&cli.Int64Flag{
						Name:  "end",
						Usage: "End timestamp in ms (exclusive)",
					},
					&cli.StringFlag{
						Name:    "partition",
						Aliases: []string{"p"},
						Usage:   "Filter by partition ID",
					},
					&cli.StringFlag{
						Name:  "hash",
						Usage: "Fetch the single entry with this content hash",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum entries per page",
					},
					&cli.StringFlag{
						Name:  "cursor",
						Usage: "Resume cursor from a previous pull",
					},
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Follow cursors until the log is exhausted",
					},
				},
				Action: entryPull,
			},
		},
	}
}

func entrySubmit(c *cli.Context) error {
	body, err := readBody(c)
	if err != nil {
		return err
	}

	keyFile := c.String("key-file")
	if keyFile == "" {
		keyFile = cliConfig(c).Active().KeyFile
	}
	if keyFile == "" {
		return fmt.Errorf("no signing key: pass --key-file or set key_file in the active profile")
	}
	priv, err := loadPrivateKey(keyFile)
	if err != nil {
		return err
	}

	signed, err := service.SignEntry(c.String("user"), priv, body)
	if err != nil {
		return fmt.Errorf("sign entry: %w", err)
	}

	req := &wire.SubmitEntryRequest{
		TeamID:      c.String("team"),
		UserID:      c.String("user"),
		ContentHash: domain.ContentHash(signed),
		PartitionID: c.String("partition"),
		Entry:       signed,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cl, err := NewClient(c)
	if err != nil {
		return err
	}
	resp, err := cl.SubmitEntry(ctx, req)
	if err != nil {
		return err
	}
	return Render(c, resp)
}

func entryPull(c *cli.Context) error {
	req := &wire.PullEntriesRequest{
		TeamID:      c.String("team"),
		UserID:      c.String("user"),
		StartTs:     c.Int64("start"),
		EndTs:       c.Int64("end"),
		PartitionID: c.String("partition"),
		ContentHash: c.String("hash"),
		Limit:       c.Int("limit"),
		Cursor:      c.String("cursor"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cl, err := NewClient(c)
	if err != nil {
		return err
	}
	for {
		resp, err := cl.PullEntries(ctx, req)
		if err != nil {
			return err
		}
		if err := Render(c, resp); err != nil {
			return err
		}
		if !c.Bool("all") || !resp.HasNextPage {
			return nil
		}
		req.Cursor = resp.Cursor
	}
}

// readBody reads the entry body from the first argument or stdin.
func readBody(c *cli.Context) ([]byte, error) {
	if c.Args().Len() > 0 {
		return []byte(c.Args().First()), nil
	}
	data, err := io.ReadAll(c.App.Reader)
	if err != nil {
		return nil, fmt.Errorf("read body from stdin: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("entry body is empty")
	}
	return data, nil
}

// loadPrivateKey reads a base64 ed25519 private key (64 bytes) or seed
// (32 bytes) from a file.
func loadPrivateKey(path string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decode key file: %w", err)
	}

	switch len(decoded) {
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(decoded), nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(decoded), nil
	default:
		return nil, fmt.Errorf("key file must hold a %d-byte key or %d-byte seed, got %d bytes",
			ed25519.PrivateKeySize, ed25519.SeedSize, len(decoded))
	}
}
