package main

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/brong/mboxd/mailbox"
)

func deleteCommand() command {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	cleanup := fs.Bool("cleanup", false, "also remove the mailbox directory from disk")

	return command{
		name:  "delete",
		short: "mark a mailbox deleted, optionally cleaning it up",
		flags: fs,
		exec: func(ctx context.Context, env *environment, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: mboxd delete [-cleanup] <name>")
			}
			name := args[0]

			h, err := openMailbox(env, name, env.cfg.Partition, mailbox.Exclusive)
			if err != nil {
				return err
			}
			if err := h.LockIndex(mailbox.Exclusive); err != nil {
				h.Close(env.registry)
				return err
			}
			delErr := h.Delete()
			h.UnlockIndex()
			h.Close(env.registry)
			if delErr != nil {
				return delErr
			}
			env.log.Info("deleted mailbox", "name", name)

			if *cleanup {
				if err := mailbox.DeleteCleanup(env.cfg.Partition, name); err != nil {
					return err
				}
				env.catalog.Delete(name)
				env.log.Info("cleaned up mailbox", "name", name)
			}
			return nil
		},
	}
}
