package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"inkboard/discovery"
)

type discoverCmd struct {
	*root
	timeout time.Duration
}

func parseDiscoverCmd(args []string, r *root) (*discoverCmd, error) {
	fs := flag.NewFlagSet("discover", flag.ContinueOnError)
	cmd := &discoverCmd{root: r}
	fs.DurationVar(&cmd.timeout, "timeout", discovery.DefaultTimeout, "how long to listen for answers")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cmd, nil
}

func (c *discoverCmd) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	peers, err := discovery.Browse(ctx)
	if err != nil {
		return err
	}
	if len(peers) == 0 {
		fmt.Fprintln(os.Stderr, "no relays found")
		return nil
	}
	for _, p := range peers {
		fmt.Printf("%s\t%s\t%s\n", p.URL(), p.Name, strings.Join(p.Info, ","))
	}
	return nil
}
