package main

import (
	"context"
	"fmt"

	"github.com/brong/mboxd/mailbox"
	flag "github.com/spf13/pflag"
)

func statCommand() command {
	fs := flag.NewFlagSet("stat", flag.ContinueOnError)

	return command{
		name:  "stat",
		short: "print a mailbox's index header summary",
		flags: fs,
		exec: func(ctx context.Context, env *environment, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: mboxd stat <name>")
			}
			name := args[0]

			h, err := openMailbox(env, name, env.cfg.Partition, mailbox.Shared)
			if err != nil {
				return err
			}
			defer h.Close(env.registry)

			if err := h.LockIndex(mailbox.Shared); err != nil {
				return err
			}
			defer h.UnlockIndex()

			hdr := h.Header()
			fmt.Printf("name:          %s\n", h.Name())
			fmt.Printf("uidvalidity:   %d\n", hdr.UIDValidity)
			fmt.Printf("uidlast:       %d\n", hdr.LastUID)
			fmt.Printf("minor_version: %d\n", hdr.MinorVersion)
			fmt.Printf("generation:    %d\n", hdr.Generation)
			fmt.Printf("exists:        %d\n", hdr.Exists)
			fmt.Printf("answered:      %d\n", hdr.Answered)
			fmt.Printf("flagged:       %d\n", hdr.Flagged)
			fmt.Printf("deleted:       %d\n", hdr.Deleted)
			fmt.Printf("highestmodseq: %d\n", hdr.HighestModSeq)
			return nil
		},
	}
}
