package command

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/urfave/cli/v2"

	"github.com/sigmesh/sigmesh-go/internal/cli/client"
	cliconfig "github.com/sigmesh/sigmesh-go/internal/cli/config"
	"github.com/sigmesh/sigmesh-go/internal/cli/output"
	"github.com/sigmesh/sigmesh-go/internal/infra/buildinfo"
	"github.com/sigmesh/sigmesh-go/internal/infra/tlsroots"
)

// App creates the CLI application.
func App() *cli.App {
	app := &cli.App{
		Name:    "sigmesh-cli",
		Usage:   "SigMesh relay command-line tool",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			CommunityCommand(),
			EntryCommand(),
			MembershipCommand(),
			SystemCommand(),
			ConfigCommand(),
		},
		Before: func(c *cli.Context) error {
			cfg, err := cliconfig.Load(c.String("config"))
			if err != nil {
				return err
			}
			c.App.Metadata["cliConfig"] = cfg
			return nil
		},
	}

	return app
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "SigMesh server address (e.g., localhost:5080)",
			EnvVars: []string{"SIGMESH_SERVER"},
		},
		&cli.StringFlag{
			Name:    "transport",
			Aliases: []string{"t"},
			Usage:   "Transport session ID (generated when empty)",
			EnvVars: []string{"SIGMESH_TRANSPORT"},
		},
		&cli.StringFlag{
			Name:    "config",
			Usage:   "Path to the CLI config file",
			EnvVars: []string{"SIGMESH_CLI_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "ca-file",
			Usage:   "PEM bundle of extra root CAs to trust",
			EnvVars: []string{"SIGMESH_CA_FILE"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
	}
}

// cliConfig returns the loaded CLI config, or defaults if Before never
// ran (direct action invocation in tests).
func cliConfig(c *cli.Context) *cliconfig.CLIConfig {
	if cfg, ok := c.App.Metadata["cliConfig"].(*cliconfig.CLIConfig); ok {
		return cfg
	}
	return cliconfig.Default()
}

// NewClient builds the server client. Flags win over the config file's
// active profile; a missing transport ID gets a fresh one. Connection
// ownership is per transport, so scripted flows should pin it via
// --transport, SIGMESH_TRANSPORT, or a profile.
func NewClient(c *cli.Context) (*client.Client, error) {
	active := cliConfig(c).Active()

	server := c.String("server")
	if server == "" {
		server = active.Server
	}
	if server == "" {
		server = "localhost:5080"
	}

	transport := c.String("transport")
	if transport == "" {
		transport = active.Transport
	}
	if transport == "" {
		transport = "tr-" + strings.ToLower(ulid.MustNew(ulid.Now(), rand.Reader).String())
	}

	caFile := c.String("ca-file")
	if caFile == "" {
		caFile = active.CAFile
	}

	var opts []client.Option
	if caFile != "" {
		pool, err := tlsroots.NewPool()
		if err != nil {
			return nil, fmt.Errorf("load system roots: %w", err)
		}
		if err := pool.AddCertFile(caFile); err != nil {
			return nil, err
		}
		opts = append(opts, client.WithTLSConfig(pool.TLSConfig()))
	}

	return client.New(server, transport, opts...), nil
}

// Render writes data to stdout in the selected output format.
func Render(c *cli.Context, data any) error {
	format := c.String("output")
	if format == "" {
		format = cliConfig(c).DefaultOutput
	}
	f := output.NewFormatter(output.Format(format), c.Bool("wide"))
	return f.Format(c.App.Writer, data)
}

// RequireArgs checks the exact positional argument count.
func RequireArgs(c *cli.Context, n int, usage string) error {
	if c.Args().Len() != n {
		return fmt.Errorf("expected %d argument(s): %s", n, usage)
	}
	return nil
}
