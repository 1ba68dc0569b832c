package main

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/brong/mboxd/mailbox"
)

func repackCommand() command {
	fs := flag.NewFlagSet("repack", flag.ContinueOnError)
	targetVersion := fs.Uint32("target-version", 0, "minor_version to migrate to (0: keep current)")
	userID := fs.String("user", "", "owning user id, for seen-state folding across the v12 boundary")

	return command{
		name:  "repack",
		short: "rebuild a mailbox's index and cache files under a new generation",
		flags: fs,
		exec: func(ctx context.Context, env *environment, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: mboxd repack [-target-version N] [-user id] <name>")
			}
			name := args[0]

			h, err := openMailbox(env, name, env.cfg.Partition, mailbox.Exclusive)
			if err != nil {
				return err
			}
			defer h.Close(env.registry)

			if err := h.LockIndex(mailbox.Exclusive); err != nil {
				return err
			}
			defer h.UnlockIndex()

			if err := h.Repack(ctx, mailbox.RepackOptions{
				TargetMinorVersion: *targetVersion,
				UserID:             *userID,
			}); err != nil {
				return err
			}
			env.log.Info("repacked mailbox", "name", name, "minor_version", h.Header().MinorVersion)
			return nil
		},
	}
}
