package main

import (
	"context"
	"fmt"

	"github.com/brong/mboxd/mailbox"
)

// ensureCataloged registers name/partition in the in-process catalog if
// it is not already there, so a standalone CLI invocation can Open a
// mailbox it did not itself Create in this process (the reference
// catalog implementation has no persistence of its own, per
// catalog.Catalog's doc comment).
func ensureCataloged(env *environment, name, partition string) {
	if _, ok := env.catalog.Get(name); ok {
		return
	}
	env.catalog.Create(name, partition, "")
}

// openMailbox registers name/partition in the catalog (if needed) and
// opens it through the shared registry.
func openMailbox(env *environment, name, partition string, mode mailbox.LockMode) (*mailbox.Handle, error) {
	ensureCataloged(env, name, partition)
	return mailbox.Open(context.Background(), env.registry, name, mode, mailbox.Options{
		Collaborators: env.collab,
		Logf:          env.logf(),
	})
}

// logf adapts env's hclog.Logger to the printf-style Logf the mailbox
// package's lifecycle operations expect.
func (env *environment) logf() func(string, ...interface{}) {
	return func(format string, v ...interface{}) {
		env.log.Info(fmt.Sprintf(format, v...))
	}
}
