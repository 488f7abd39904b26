package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
)

// Version is the build version reported by serve; set with -ldflags
var Version = "dev"

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// app holds the streams every command writes to
type app struct {
	stdout io.Writer
	stderr io.Writer
}

// NewRootCommand creates the root command writing to the process streams
func NewRootCommand() *Command {
	return newRootCommand(&app{stdout: os.Stdout, stderr: os.Stderr})
}

func newRootCommand(a *app) *Command {
	root := &Command{
		Name:        "depreg",
		Description: "depreg - dependency provider registry",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("depreg", flag.ContinueOnError),
	}

	// Add subcommands
	root.Subcommands["check"] = newCheckCommand(a)
	root.Subcommands["check-dependents"] = newCheckDependentsCommand(a)
	root.Subcommands["register"] = newRegisterCommand(a)
	root.Subcommands["register-dependent"] = newRegisterDependentCommand(a)
	root.Subcommands["unregister"] = newUnregisterCommand(a)
	root.Subcommands["unregister-dependent"] = newUnregisterDependentCommand(a)
	root.Subcommands["serve"] = newServeCommand(a)

	return root
}

// Execute runs the command with the process arguments
func (c *Command) Execute() error {
	return c.ExecuteArgs(os.Args[1:])
}

// ExecuteArgs runs the command with args, which exclude the program name
func (c *Command) ExecuteArgs(args []string) error {
	if len(args) == 0 {
		return c.usage(os.Stdout)
	}

	// Check for help flag
	if args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		return c.usage(os.Stdout)
	}

	// Check for subcommand
	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage(w io.Writer) error {
	fmt.Fprintf(w, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(w, "Commands:\n")

	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-22s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}

// writeJSON prints v as indented JSON
func (a *app) writeJSON(v interface{}) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
