package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/hopper/internal/enumerate"
	"github.com/standardbeagle/hopper/internal/search"
	"github.com/standardbeagle/hopper/internal/server"
	"github.com/standardbeagle/hopper/pkg/pathutil"
)

// Exit codes beyond the generic failure.
const (
	exitNoMatch = 1
	exitInput   = 2
	exitTimeout = 3
)

// requestTimeout bounds one CLI round trip; the daemon applies its own wait
// bound on top of this.
const requestTimeout = 30 * time.Second

// connect loads config, makes sure a daemon is up and resolves the root.
func connect(c *cli.Context) (*server.Client, string, error) {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return nil, "", err
	}
	client, err := ensureServerRunning(c, cfg)
	if err != nil {
		return nil, "", fmt.Errorf("failed to connect to server: %w", err)
	}
	return client, projectRoot(c, cfg), nil
}

// exitError maps daemon error kinds onto process exit codes.
func exitError(err error) error {
	var remote *server.RemoteError
	if errors.As(err, &remote) {
		switch {
		case remote.IsInput():
			return cli.Exit(remote.Message, exitInput)
		case remote.Timeout():
			return cli.Exit(remote.Message, exitTimeout)
		}
	}
	return err
}

// absArg resolves a path argument against the client's working directory,
// which the daemon does not share.
func absArg(c *cli.Context, name string) (string, error) {
	arg, err := requireArg(c, name)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", cli.Exit(err.Error(), exitInput)
	}
	return abs, nil
}

func requireArg(c *cli.Context, name string) (string, error) {
	if c.NArg() != 1 {
		return "", cli.Exit(fmt.Sprintf("%s requires exactly one %s argument", c.Command.Name, name), exitInput)
	}
	return c.Args().First(), nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func statusCommand(c *cli.Context) error {
	client, _, err := connect(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Context, requestTimeout)
	defer cancel()

	status, err := client.GetStatus(ctx)
	if err != nil {
		return exitError(err)
	}
	if c.Bool("json") {
		return writeJSON(c.App.Writer, status)
	}
	return printStatus(c.App.Writer, status)
}

func printStatus(w io.Writer, status *server.StatusResponse) error {
	fmt.Fprintf(w, "Uptime: %s\n", (time.Duration(status.UptimeSeconds * float64(time.Second))).Round(time.Second))
	if !status.Initialized {
		fmt.Fprintln(w, "Engine: not initialized (no query yet)")
		return nil
	}
	fmt.Fprintf(w, "Strategies: %v\n", status.Strategies)
	fmt.Fprintf(w, "Queue: %d pending, %d enqueued total\n", status.QueueLen, status.Enqueued)
	if status.Watch != nil {
		fmt.Fprintf(w, "Watching: %d roots, %d events, %d refreshes\n",
			status.Watch.Roots, status.Watch.EventsProcessed, status.Watch.Refreshes)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROOT\tFILES\tSTATE")
	for _, p := range status.Projects {
		state := "ready"
		if p.IsUpdating {
			state = "updating"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", p.Root, p.TotalCount, state)
	}
	return tw.Flush()
}

func refreshCommand(c *cli.Context) error {
	client, root, err := connect(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Context, requestTimeout)
	defer cancel()
	if err := client.Refresh(ctx, root); err != nil {
		return exitError(err)
	}
	fmt.Fprintf(c.App.Writer, "Refresh requested for %s\n", root)
	return nil
}

func firstCommand(c *cli.Context) error {
	key, err := requireArg(c, "KEY")
	if err != nil {
		return err
	}
	client, root, err := connect(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Context, requestTimeout)
	defer cancel()

	match, err := client.FirstMatch(ctx, root, key)
	if err != nil {
		return exitError(err)
	}
	return printMatch(c.App.Writer, relativeMatch(c, root, match), c.Bool("json"))
}

func nextCommand(c *cli.Context) error {
	path, err := absArg(c, "PATH")
	if err != nil {
		return err
	}
	client, root, err := connect(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Context, requestTimeout)
	defer cancel()

	match, err := client.NextMatch(ctx, root, path)
	if err != nil {
		return exitError(err)
	}
	return printMatch(c.App.Writer, relativeMatch(c, root, match), c.Bool("json"))
}

// relativeMatch rewrites the path against root when --relative is set.
func relativeMatch(c *cli.Context, root string, match search.Match) search.Match {
	if c.Bool("relative") && match.Found {
		match.Path = pathutil.ToRelative(match.Path, root)
	}
	return match
}

// printMatch writes the path alone so editors can consume the output. A miss
// exits non-zero with the message and any suggestions.
func printMatch(w io.Writer, match search.Match, asJSON bool) error {
	if asJSON {
		if err := writeJSON(w, match); err != nil {
			return err
		}
		if !match.Found {
			return cli.Exit("", exitNoMatch)
		}
		return nil
	}
	if match.Found {
		fmt.Fprintln(w, match.Path)
		return nil
	}
	msg := match.Message
	if len(match.Suggestions) > 0 {
		msg = fmt.Sprintf("%s (did you mean %v?)", msg, match.Suggestions)
	}
	return cli.Exit(msg, exitNoMatch)
}

func searchCommand(c *cli.Context) error {
	key := c.Args().First()
	client, root, err := connect(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Context, requestTimeout)
	defer cancel()

	snap, err := client.Search(ctx, root, key, c.Int("offset"), c.Int("limit"))
	if err != nil {
		return exitError(err)
	}
	if c.Bool("relative") {
		for i := range snap.Matches {
			snap.Matches[i].Path = pathutil.ToRelative(snap.Matches[i].Path, root)
		}
	}
	if c.Bool("json") {
		return writeJSON(c.App.Writer, snap)
	}
	return printSnapshot(c.App.Writer, snap)
}

func printSnapshot(w io.Writer, snap *search.Snapshot) error {
	for _, m := range snap.Matches {
		fmt.Fprintln(w, m.Path)
	}
	state := ""
	if snap.IsUpdating {
		state = ", still indexing"
	}
	_, err := fmt.Fprintf(w, "-- %d shown, %d matching, %d files%s\n", len(snap.Matches), snap.MatchesCount, snap.TotalCount, state)
	return err
}

func filesCommand(c *cli.Context) error {
	client, root, err := connect(c)
	if err != nil {
		return err
	}
	var roots []string
	for _, r := range c.Args().Slice() {
		abs, err := filepath.Abs(r)
		if err != nil {
			return cli.Exit(err.Error(), exitInput)
		}
		roots = append(roots, abs)
	}
	if len(roots) == 0 {
		roots = []string{root}
	}
	ctx, cancel := context.WithTimeout(c.Context, requestTimeout)
	defer cancel()

	files, err := client.Files(ctx, roots...)
	if err != nil {
		return exitError(err)
	}
	if c.Bool("relative") {
		files = pathutil.ToRelativeAll(files, root)
	}
	return printPaths(c.App.Writer, files, c.Bool("json"))
}

func byNameCommand(c *cli.Context) error {
	name, err := requireArg(c, "NAME")
	if err != nil {
		return err
	}
	client, root, err := connect(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Context, requestTimeout)
	defer cancel()

	paths, err := client.ByName(ctx, root, name)
	if err != nil {
		return exitError(err)
	}
	if c.Bool("relative") {
		paths = pathutil.ToRelativeAll(paths, root)
	}
	return printPaths(c.App.Writer, paths, c.Bool("json"))
}

func printPaths(w io.Writer, paths []string, asJSON bool) error {
	if asJSON {
		if paths == nil {
			paths = []string{}
		}
		return writeJSON(w, paths)
	}
	for _, p := range paths {
		if _, err := fmt.Fprintln(w, p); err != nil {
			return err
		}
	}
	return nil
}

func openedCommand(c *cli.Context) error {
	path, err := absArg(c, "PATH")
	if err != nil {
		return err
	}
	client, _, err := connect(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Context, requestTimeout)
	defer cancel()

	recorded, err := client.Opened(ctx, path)
	if err != nil {
		return exitError(err)
	}
	if !recorded {
		fmt.Fprintln(c.App.ErrWriter, "no index yet, event ignored")
	}
	return nil
}

func profileCommand(c *cli.Context) error {
	client, root, err := connect(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Context, 5*time.Minute)
	defer cancel()

	timings, err := client.Profile(ctx, root, c.Int("rounds"))
	if err != nil {
		return exitError(err)
	}
	if c.Bool("json") {
		return writeJSON(c.App.Writer, timings)
	}
	return printTimings(c.App.Writer, timings)
}

func printTimings(w io.Writer, timings []enumerate.Timing) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STRATEGY\tFILES\tAVERAGE\tNOTE")
	for _, t := range timings {
		note := ""
		switch {
		case !t.Supported:
			note = "unsupported"
		case t.Error != "":
			note = t.Error
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", t.Strategy, t.Files, t.Mean.Round(time.Microsecond), note)
	}
	return tw.Flush()
}
