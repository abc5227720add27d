package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	ctx := context.Background()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	app := newApp(os.Stdout)
	cmd := app.rootCommand()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}
