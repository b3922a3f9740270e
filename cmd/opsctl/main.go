// Command opsctl is the operator CLI for document numbering: it inspects
// and overrides counters, manages legal entities, runs the counter backfill
// and applies database migrations.
package main

import (
	"os"
)

func main() {
	c := newCLI(os.Stdout)
	err := newRootCmd(c).Execute()
	c.close()
	if err != nil {
		os.Exit(1)
	}
}
