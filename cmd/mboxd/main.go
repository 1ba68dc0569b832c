package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	flag "github.com/spf13/pflag"

	"github.com/brong/mboxd/catalog"
	"github.com/brong/mboxd/mailbox"
	"github.com/brong/mboxd/sidecar"
)

var version = "unknown" // filled in by -ldflags=-X main.version=<val>

// command is one mboxd subcommand: its own flag set, parsed and executed
// against the shared environment built from the global config.
type command struct {
	name  string
	short string
	flags *flag.FlagSet
	exec  func(ctx context.Context, env *environment, args []string) error
}

// environment bundles the collaborators every subcommand needs: the
// process-wide registry, the sidecar-backed stores, and a logger, built
// once from the parsed config (§4.10).
type environment struct {
	cfg      Config
	log      hclog.Logger
	registry *mailbox.Registry
	catalog  *catalog.Catalog
	collab   mailbox.Collaborators
}

func buildEnvironment(cfg Config, log hclog.Logger) (*environment, func(), error) {
	pool, err := sidecar.Open(cfg.SidecarDB, cfg.PoolSize)
	if err != nil {
		return nil, nil, fmt.Errorf("mboxd: opening sidecar db: %w", err)
	}

	cat := catalog.New()
	collab := mailbox.Collaborators{
		Quota:         &sidecar.QuotaStore{Pool: pool},
		Seen:          &sidecar.SeenStore{Pool: pool},
		Conversations: &sidecar.ConversationStore{Pool: pool},
		Annotations:   &sidecar.AnnotationStore{Pool: pool},
		Catalog:       cat,
	}

	env := &environment{
		cfg:      cfg,
		log:      log,
		registry: mailbox.NewRegistry(),
		catalog:  cat,
		collab:   collab,
	}
	cleanup := func() {
		env.registry.Shutdown()
		pool.Close()
	}
	return env, cleanup, nil
}

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	globalFlags := flag.NewFlagSet("mboxd", flag.ContinueOnError)
	globalFlags.SetInterspersed(false)
	globalFlags.Usage = func() {}
	globalFlags.SetOutput(&strings.Builder{})
	flagConfig := globalFlags.StringP("config", "c", "", "path to a JSONC config `file`")
	flagLogLevel := globalFlags.String("log-level", "", "override the configured log level")

	if err := globalFlags.Parse(args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "mboxd:", err)
		return 2
	}

	cfg, err := LoadConfig(*flagConfig)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mboxd:", err)
		return 2
	}
	if *flagLogLevel != "" {
		cfg.LogLevel = *flagLogLevel
	}

	log := hclog.New(&hclog.LoggerOptions{
		Name:  "mboxd",
		Level: hclog.LevelFromString(cfg.LogLevel),
	})
	log.Info("starting", "version", version)

	rest := globalFlags.Args()
	if len(rest) == 0 {
		printUsage(commands())
		return 2
	}
	name, cmdArgs := rest[0], rest[1:]

	for _, c := range commands() {
		if c.name != name {
			continue
		}
		if err := c.flags.Parse(cmdArgs); err != nil {
			fmt.Fprintln(os.Stderr, "mboxd:", err)
			return 2
		}

		env, cleanup, err := buildEnvironment(cfg, log)
		if err != nil {
			fmt.Fprintln(os.Stderr, "mboxd:", err)
			return 1
		}
		defer cleanup()

		if err := c.exec(context.Background(), env, c.flags.Args()); err != nil {
			log.Error(name, "error", err)
			return 1
		}
		return 0
	}

	fmt.Fprintf(os.Stderr, "mboxd: unknown command %q\n", name)
	printUsage(commands())
	return 2
}

func printUsage(cmds []command) {
	fmt.Fprintln(os.Stderr, "usage: mboxd [-config file] <command> [args]")
	fmt.Fprintln(os.Stderr, "commands:")
	for _, c := range cmds {
		fmt.Fprintf(os.Stderr, "  %-12s %s\n", c.name, c.short)
	}
}

func commands() []command {
	return []command{
		createCommand(),
		deleteCommand(),
		repackCommand(),
		reconstructCommand(),
		statCommand(),
	}
}
