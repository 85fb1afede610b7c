// Command bagbounty runs the supervised recon pipeline against one domain.
package main

import (
	"fmt"
	"os"

	"github.com/bagbounty/bagbounty/pkg/defaults"
	"github.com/bagbounty/bagbounty/pkg/ui"
)

func main() {
	os.Exit(dispatch(os.Args[1:]))
}

// dispatch runs the subcommand named by args[0] and returns the exit code.
func dispatch(args []string) int {
	if len(args) < 1 {
		printUsage()
		return defaults.ExitUserError
	}

	switch args[0] {
	case "run":
		return runRun(args[1:])
	case "reap":
		return runReap(args[1:])
	case "check-deps", "deps":
		return runCheckDeps(args[1:])
	case "pipeline":
		return runPipeline(args[1:])
	case "version", "-version", "--version", "-v":
		fmt.Printf("bagbounty v%s\n", ui.Version)
		return defaults.ExitSuccess
	case "help", "-h", "--help", "-help":
		printUsage()
		return defaults.ExitSuccess
	default:
		ui.PrintError(fmt.Sprintf("unknown command %q", args[0]))
		fmt.Fprintln(os.Stderr)
		printUsage()
		return defaults.ExitUserError
	}
}

func printUsage() {
	ui.PrintBanner()

	fmt.Fprintln(os.Stderr, ui.SectionStyle.Render("USAGE"))
	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "  %s\n", ui.ConfigValueStyle.Render("bagbounty <command> [flags]"))
	fmt.Fprintln(os.Stderr)

	fmt.Fprintln(os.Stderr, ui.SectionStyle.Render("COMMANDS"))
	fmt.Fprintln(os.Stderr)
	for _, c := range []struct{ name, desc string }{
		{"run       ", "Run the recon pipeline against a domain"},
		{"reap      ", "Terminate stuck tool process trees"},
		{"check-deps", "Check that every tool the pipeline uses is installed"},
		{"pipeline  ", "Print the effective pipeline definition as YAML"},
		{"version   ", "Print the version"},
		{"help      ", "Show this help"},
	} {
		fmt.Fprintf(os.Stderr, "  %s  %s\n", ui.StatValueStyle.Render(c.name), c.desc)
	}
	fmt.Fprintln(os.Stderr)

	fmt.Fprintln(os.Stderr, ui.SectionStyle.Render("EXAMPLES"))
	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "    %s\n", ui.ConfigValueStyle.Render("bagbounty run example.com -threads 5"))
	fmt.Fprintf(os.Stderr, "    %s\n", ui.ConfigValueStyle.Render("bagbounty run example.com -recon-only -activity-timeout 0"))
	fmt.Fprintf(os.Stderr, "    %s\n", ui.ConfigValueStyle.Render("bagbounty run example.com -resume -metrics-addr :9464"))
	fmt.Fprintf(os.Stderr, "    %s\n", ui.ConfigValueStyle.Render("bagbounty reap -dry-run"))
	fmt.Fprintf(os.Stderr, "    %s\n", ui.ConfigValueStyle.Render("bagbounty reap -k katana,waybackurls"))
	fmt.Fprintln(os.Stderr)
	ui.PrintHelp("  Run 'bagbounty <command> -h' for the flags of a command.")
}
