package cli

import (
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Learn   *LearnCommand
	Predict *PredictCommand
	Reset   *ResetCommand
	Status  *StatusCommand
	Serve   *ServeCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "seer"
	parser.LongDescription = "Learns which hosts a page needs and warms connections to them before they are requested."

	cmds := &commands{
		Learn:   &LearnCommand{globals: &globals, version: version},
		Predict: &PredictCommand{globals: &globals, version: version},
		Reset:   &ResetCommand{globals: &globals, version: version},
		Status:  &StatusCommand{globals: &globals, version: version},
		Serve:   &ServeCommand{globals: &globals, version: version},
	}

	parser.AddCommand("learn", "Record a navigation or fetch", "Record a top-level load, subresource, redirect or startup page.", cmds.Learn)
	parser.AddCommand("predict", "Show or perform predicted actions", "Predict the preconnects and DNS lookups for a load, link hover or startup.", cmds.Predict)
	parser.AddCommand("reset", "Forget everything learned", "Delete every learned record. Destructive operation with safety prompt.", cmds.Reset)
	parser.AddCommand("status", "Show database statistics", "Show the preference, database location and per-table row counts.", cmds.Status)
	parser.AddCommand("serve", "Start the seer daemon", "Start the seer daemon (local HTTP service with Prometheus metrics).", cmds.Serve)

	return parser, &globals, cmds
}

// Run is the main entry point for the seer CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	// Handle --version before parser (go-flags requires a subcommand, but
	// --version is valid without one).
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("seer %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}
