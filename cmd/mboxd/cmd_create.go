package main

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/brong/mboxd/mailbox"
)

func createCommand() command {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	acl := fs.String("acl", "", "initial ACL string (\"identifier rights ...\")")
	quotaRoot := fs.String("quotaroot", "", "quota root for the new mailbox")

	return command{
		name:  "create",
		short: "create a new mailbox",
		flags: fs,
		exec: func(ctx context.Context, env *environment, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: mboxd create [-acl ...] [-quotaroot ...] <name>")
			}
			name := args[0]

			entry, err := env.catalog.Create(name, env.cfg.Partition, *acl)
			if err != nil {
				return err
			}

			if err := mailbox.Create(name, env.cfg.Partition, mailbox.CreateOptions{
				QuotaRoot: *quotaRoot,
				UniqueID:  entry.UniqueID,
				ACL:       *acl,
			}); err != nil {
				env.catalog.Delete(name)
				return err
			}

			env.log.Info("created mailbox", "name", name, "uniqueid", entry.UniqueID)
			return nil
		},
	}
}
