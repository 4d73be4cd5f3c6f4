package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/go-logr/logr"

	"go.bbrapi.dev/runner/internal/util/console"
	"go.bbrapi.dev/runner/pkg/bridge"
	"go.bbrapi.dev/runner/pkg/internal/suggest"
	"go.bbrapi.dev/runner/pkg/registry"
	"go.bbrapi.dev/runner/pkg/runner"
)

// Controller is what the console operates on.
type Controller interface {
	Servers() []*bridge.Session
	Loaded() []runner.ModuleInfo
	Reload(ctx context.Context, name string) (registry.Report, error)
	ReloadAll(ctx context.Context) (registry.Report, error)
}

type command struct {
	name  string
	usage string
	help  string
}

var commands = []command{
	{name: "servers", help: "show game servers and whether they are connected"},
	{name: "list", help: "list loaded modules"},
	{name: "reload", usage: "reload <module>", help: "reload a module and the modules depending on it"},
	{name: "reloadall", help: "reload every module"},
	{name: "help", help: "show this help"},
}

func commandNames() []string {
	names := make([]string, len(commands))
	for i, c := range commands {
		names[i] = c.name
	}
	return names
}

// Console reads operator commands line by line.
type Console struct {
	Runner Controller
	In     io.Reader
	Out    io.Writer
}

// Start reads commands until In is exhausted or ctx is canceled.
func (c *Console) Start(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		s := bufio.NewScanner(c.In)
		for s.Scan() {
			select {
			case lines <- s.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := s.Err(); err != nil {
			logr.FromContextOrDiscard(ctx).Info("console input failed", "error", err)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			c.Exec(ctx, line)
		}
	}
}

// Exec runs one command line.
func (c *Console) Exec(ctx context.Context, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	name, args := strings.ToLower(fields[0]), fields[1:]
	switch name {
	case "servers":
		c.servers()
		return
	case "list":
		c.list()
		return
	case "reload":
		c.reload(ctx, args)
		return
	case "reloadall":
		c.report(c.Runner.ReloadAll(ctx))
		return
	case "help":
		c.help()
		return
	}
	msg := fmt.Sprintf("&cUnknown command %q.&r", fields[0])
	if s := suggest.Suggest(name, commandNames()); len(s) != 0 {
		msg += fmt.Sprintf(" Did you mean %q?", s[0])
	}
	c.println(msg + " Type \"help\" for a list of commands.")
}

func (c *Console) println(s string) {
	_, _ = fmt.Fprintln(c.Out, console.Ansi(s))
}

func (c *Console) servers() {
	servers := c.Runner.Servers()
	if len(servers) == 0 {
		c.println("No game server connected yet.")
		return
	}
	for _, s := range servers {
		state := "&aConnected"
		if !s.Connected() {
			state = "&cNot connected"
		}
		name := s.Name()
		if name != "" {
			name = " (" + name + ")"
		}
		c.println(fmt.Sprintf("%s%s is %s&r", s.Addr(), name, state))
	}
}

func (c *Console) list() {
	mods := c.Runner.Loaded()
	if len(mods) == 0 {
		c.println("No modules loaded.")
		return
	}
	for _, m := range mods {
		line := "&e" + m.Name + "&r"
		if m.Version != "" {
			line += " " + m.Version
		}
		if m.Description != "" {
			line += " - " + m.Description
		}
		c.println(line)
	}
}

func (c *Console) reload(ctx context.Context, args []string) {
	if len(args) != 1 {
		c.println("&cUsage: reload <module>&r")
		return
	}
	c.report(c.Runner.Reload(ctx, args[0]))
}

func (c *Console) report(rep registry.Report, err error) {
	if err != nil {
		c.println("&c" + err.Error() + "&r")
		return
	}
	for _, name := range slices.Sorted(maps.Keys(rep.Failures)) {
		c.println(fmt.Sprintf("&cFailed to load module %s:&r %v", name, rep.Failures[name]))
	}
	c.println("&a" + rep.String() + "&r")
}

func (c *Console) help() {
	for _, cmd := range commands {
		usage := cmd.usage
		if usage == "" {
			usage = cmd.name
		}
		c.println(fmt.Sprintf("&e%-16s&r %s", usage, cmd.help))
	}
}
