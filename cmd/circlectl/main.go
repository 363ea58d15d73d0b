// circlectl is the control CLI for circled.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"circled/internal/config"
	"circled/internal/ipc"
)

var (
	configPath = flag.String("config", "", "path to config file")
	socketPath = flag.String("socket", "", "daemon socket path (overrides config)")
	timeout    = flag.Duration("timeout", 10*time.Second, "request timeout")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cmd := flag.Arg(0)

	switch cmd {
	case "ping":
		cmdPing()
	case "status":
		cmdStatus()
	case "check":
		cmdCheck()
	case "consent":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "Usage: circlectl consent <export|clear> [output.json]")
			os.Exit(1)
		}
		cmdConsent(flag.Arg(1))
	case "proofs":
		if flag.NArg() < 2 || flag.Arg(1) != "cleanup" {
			fmt.Fprintln(os.Stderr, "Usage: circlectl proofs cleanup")
			os.Exit(1)
		}
		cmdProofsCleanup()
	case "theme":
		cmdTheme()
	case "health":
		if flag.NArg() < 2 || flag.Arg(1) != "refresh" {
			fmt.Fprintln(os.Stderr, "Usage: circlectl health refresh")
			os.Exit(1)
		}
		cmdHealthRefresh()
	case "foreground":
		cmdForeground()
	case "background":
		cmdBackground()
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `circlectl - Control utility for circled

Usage: circlectl [options] <command> [args]

Commands:
  ping                      Check daemon liveness
  status                    Show daemon status and permission records
  check                     Force an immediate permission re-check
  consent export [file]     Export the sealed consent log (stdout by default)
  consent clear             Delete all consent log entries
  proofs cleanup            Delete proofs past the retention window
  theme [name] [accent]     Show or change the theme selection
  health refresh            Re-fetch today's health metrics
  foreground                Resume permission polling
  background                Suspend permission polling
  help                      Show this help message

Options:
  -config <path>   Path to config file
  -socket <path>   Daemon socket path (overrides config)
  -timeout <dur>   Request timeout (default 10s)`)
}

// dial connects to the daemon, resolving the socket path from the flag,
// the config file, or the platform default, in that order.
func dial() *ipc.Client {
	socket := *socketPath
	if socket == "" {
		path := *configPath
		if path == "" {
			path = config.ConfigPath()
		}
		loader := config.NewLoader(path)
		if cfg, err := loader.Load(); err == nil {
			socket = cfg.IPC.SocketPath
		}
	}
	if socket == "" {
		socket = config.DefaultSocketPath()
	}

	client, err := ipc.Dial(socket, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "circlectl: %v\n", err)
		fmt.Fprintln(os.Stderr, "Is circled running?")
		os.Exit(1)
	}
	return client
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "circlectl: %v\n", err)
	os.Exit(1)
}

func cmdPing() {
	client := dial()
	defer client.Close()

	start := time.Now()
	if err := client.Ping(); err != nil {
		fatal(err)
	}
	fmt.Printf("pong (%.1fms)\n", float64(time.Since(start).Microseconds())/1000)
}

func cmdStatus() {
	client := dial()
	defer client.Close()

	status, err := client.Status()
	if err != nil {
		fatal(err)
	}

	fmt.Printf("circled %s\n", status.Version)
	fmt.Printf("  Uptime:          %s\n", status.Uptime)
	fmt.Printf("  Health:          %s\n", status.Health)
	fmt.Printf("  Poller:          %s\n", runningString(status.PollerRunning))
	fmt.Printf("  Inflight proofs: %d\n", status.InflightProofs)
	fmt.Printf("  Theme:           %s (%s)\n", status.Theme, status.Accent)
	fmt.Printf("  Onboarding:      %s\n", doneString(status.OnboardingDone))
	printPermissions(status.Permissions)
}

func cmdCheck() {
	client := dial()
	defer client.Close()

	result, err := client.CheckAll()
	if err != nil {
		fatal(err)
	}
	printPermissions(result.Permissions)
}

func printPermissions(perms []ipc.PermissionInfo) {
	if len(perms) == 0 {
		fmt.Println("  Permissions:     (none checked yet)")
		return
	}
	fmt.Println("  Permissions:")
	for _, p := range perms {
		fmt.Printf("    %-14s %-14s checked %s\n", p.Type, p.Status, p.LastChecked)
	}
}

func cmdConsent(sub string) {
	client := dial()
	defer client.Close()

	switch sub {
	case "export":
		data, err := client.ExportConsent()
		if err != nil {
			fatal(err)
		}
		if flag.NArg() >= 3 {
			output := flag.Arg(2)
			if err := os.WriteFile(output, data, 0600); err != nil {
				fatal(err)
			}
			fmt.Printf("consent log exported to %s\n", output)
			return
		}
		fmt.Println(string(data))
	case "clear":
		if err := client.ClearConsent(); err != nil {
			fatal(err)
		}
		fmt.Println("consent log cleared")
	default:
		fmt.Fprintf(os.Stderr, "Unknown consent subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func cmdProofsCleanup() {
	client := dial()
	defer client.Close()

	deleted, err := client.CleanupProofs()
	if err != nil {
		fatal(err)
	}
	fmt.Printf("%d expired proofs deleted\n", deleted)
}

func cmdTheme() {
	client := dial()
	defer client.Close()

	if flag.NArg() < 2 {
		current, err := client.Theme()
		if err != nil {
			fatal(err)
		}
		fmt.Printf("%s (%s)\n", current.Theme, current.Accent)
		return
	}

	name := flag.Arg(1)
	accent := ""
	if flag.NArg() >= 3 {
		accent = flag.Arg(2)
	}
	updated, err := client.SetTheme(name, accent)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("theme set to %s (%s)\n", updated.Theme, updated.Accent)
}

func cmdHealthRefresh() {
	client := dial()
	defer client.Close()

	snap, err := client.RefreshHealth()
	if err != nil {
		fatal(err)
	}
	fmt.Printf("health snapshot for %s\n", snap.Day)
	fmt.Printf("  Steps:     %d (week %d, month %d)\n", snap.Steps, snap.WeekSteps, snap.MonthSteps)
	fmt.Printf("  Distance:  %.1f m\n", snap.DistanceMeters)
	fmt.Printf("  Sleep:     %.1f h\n", snap.SleepHours)
}

func cmdForeground() {
	client := dial()
	defer client.Close()
	if err := client.Foreground(); err != nil {
		fatal(err)
	}
	fmt.Println("polling resumed")
}

func cmdBackground() {
	client := dial()
	defer client.Close()
	if err := client.Background(); err != nil {
		fatal(err)
	}
	fmt.Println("polling suspended")
}

func runningString(v bool) string {
	if v {
		return "running"
	}
	return "stopped"
}

func doneString(v bool) string {
	if v {
		return "completed"
	}
	return "pending"
}
