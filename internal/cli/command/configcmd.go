package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	cliconfig "github.com/sigmesh/sigmesh-go/internal/cli/config"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage CLI configuration and profiles",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the effective CLI configuration",
				Action: configShow,
			},
			{
				Name:      "use",
				Usage:     "Select the active profile",
				ArgsUsage: "PROFILE",
				Action:    configUse,
			},
			{
				Name:      "set-profile",
				Usage:     "Create or update a profile",
				ArgsUsage: "PROFILE",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "server", Usage: "Server address"},
					&cli.StringFlag{Name: "transport", Usage: "Transport session ID"},
					&cli.StringFlag{Name: "user", Usage: "User ID"},
					&cli.StringFlag{Name: "key-file", Usage: "Path to the ed25519 signing key"},
				},
				Action: configSetProfile,
			},
		},
	}
}

func configShow(c *cli.Context) error {
	return Render(c, cliConfig(c))
}

func configUse(c *cli.Context) error {
	if err := RequireArgs(c, 1, "PROFILE"); err != nil {
		return err
	}
	name := c.Args().First()

	cfg := cliConfig(c)
	if _, ok := cfg.Profiles[name]; !ok {
		return fmt.Errorf("unknown profile %q", name)
	}
	cfg.CurrentProfile = name

	if err := cliconfig.Save(cfg, c.String("config")); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "switched to profile %s\n", name)
	return nil
}

func configSetProfile(c *cli.Context) error {
	if err := RequireArgs(c, 1, "PROFILE"); err != nil {
		return err
	}
	name := c.Args().First()

	cfg := cliConfig(c)
	p := cfg.Profiles[name]
	if v := c.String("server"); v != "" {
		p.Server = v
	}
	if v := c.String("transport"); v != "" {
		p.Transport = v
	}
	if v := c.String("user"); v != "" {
		p.UserID = v
	}
	if v := c.String("key-file"); v != "" {
		p.KeyFile = v
	}
	cfg.Profiles[name] = p

	if err := cliconfig.Save(cfg, c.String("config")); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "profile %s saved\n", name)
	return nil
}
