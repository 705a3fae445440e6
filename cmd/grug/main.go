// Command grug compiles and hot-reloads grug mods.
package main

import (
	"context"
	"os"

	"github.com/lemonlambda/grug-sys/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background()))
}
