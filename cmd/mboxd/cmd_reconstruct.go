package main

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/brong/mboxd/mailbox"
)

func reconstructCommand() command {
	fs := flag.NewFlagSet("reconstruct", flag.ContinueOnError)
	makeChanges := fs.Bool("commit", false, "apply changes (default is a dry run)")
	removeOdd := fs.Bool("remove-odd", false, "remove files that don't look like mailbox payloads")
	guidUnlink := fs.Bool("guid-unlink", false, "remove payloads whose content no longer matches their recorded GUID")
	guidRewrite := fs.Bool("guid-rewrite", false, "re-UID payloads whose content no longer matches their recorded GUID")
	doStat := fs.Bool("stat", false, "stat each payload and reparse it if its size no longer matches the record")
	alwaysParse := fs.Bool("always-parse", false, "reparse every payload regardless of whether its size matches")

	return command{
		name:  "reconstruct",
		short: "rebuild a mailbox's metadata from its on-disk payload files",
		flags: fs,
		exec: func(ctx context.Context, env *environment, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: mboxd reconstruct [-commit] <name>")
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

			result, err := h.Reconstruct(ctx, mailbox.ReconstructFlags{
				MakeChanges:    *makeChanges,
				RemoveOddFiles: *removeOdd,
				IgnoreOddFiles: !*removeOdd,
				GUIDUnlink:     *guidUnlink,
				GUIDRewrite:    *guidRewrite,
				DoStat:         *doStat,
				AlwaysParse:    *alwaysParse,
			})
			if err != nil {
				return err
			}
			env.log.Info("reconstructed mailbox", "name", name,
				"discovered", len(result.Discovered), "odd", len(result.OddFiles),
				"updated", result.Updated, "wiped", result.Wiped, "committed", *makeChanges)
			return nil
		},
	}
}
