package main

import (
	"bufio"
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/tabgruppen/internal/applog"
	"github.com/lotas/tabgruppen/internal/daemon"
	"github.com/lotas/tabgruppen/internal/firefox"
	"github.com/lotas/tabgruppen/internal/organizer"
	"github.com/lotas/tabgruppen/internal/preview"
	"github.com/lotas/tabgruppen/internal/rules"
	"github.com/lotas/tabgruppen/internal/server"
	"github.com/lotas/tabgruppen/internal/storage"
	"github.com/lotas/tabgruppen/internal/types"
)

func main() {
	if len(os.Args) < 2 {
		printHelp()
		return
	}
	args := os.Args[2:]
	switch os.Args[1] {
	case "serve":
		runServe(args)
	case "init":
		runInit()
	case "rules":
		runRules(args)
	case "match":
		runMatch(args)
	case "preview":
		runPreview(args)
	case "reorganize":
		runReorganize(args)
	case "status":
		runStatus(args)
	case "profiles":
		runProfiles()
	case "help", "--help", "-h":
		printHelp()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q. Run 'tabgruppen help'.\n", os.Args[1])
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Print(`tabgruppen — groups browser tabs by URL rules

Usage:
  tabgruppen serve                                     Run the daemon the extension connects to
    --port <n>             WebSocket and control port (env: TABGRUPPEN_PORT, default: 19292)
    --call-timeout <d>     Timeout per extension command (default: 5s)
    --ignore <globs>       Comma separated URL globs never organized (env: TABGRUPPEN_IGNORE)
    --verbose              Echo the event log to stderr

  tabgruppen init                                      Write the default rule set if none exists

  tabgruppen rules list                                Show the rule set in order
  tabgruppen rules add <name> <colour> <fragment>...   Add a rule, or replace the one with that name
  tabgruppen rules delete <name> [--yes]               Delete a rule and dissolve its groups
  tabgruppen rules move <name> <position>              Move a rule (1 = leftmost group)
  tabgruppen rules import <file> [--yes]               Replace the rule set from JSON or YAML
  tabgruppen rules export [--format f] [--out file]    Print the rule set (markdown, json, yaml)
    --render               Render the markdown export for the terminal
  tabgruppen rules history                             List stored revisions of the rule set
  tabgruppen rules diff [rev] [rev2]                   Compare revisions (default: latest vs previous)
  tabgruppen rules revert <rev> [--yes]                Make an old revision current again
  tabgruppen rules suggest <url> [--add]               Propose a rule for a site
  tabgruppen rules edit                                Interactive rule editor

  tabgruppen match <url>...                            Show which rule a URL falls under
  tabgruppen preview [--profile X]                     Dry run against a Firefox session file
  tabgruppen reorganize                                Ask the daemon for a full pass
  tabgruppen status                                    Show daemon and extension state
  tabgruppen profiles                                  List Firefox profiles

Commands that change rules notify a running daemon (--port, env TABGRUPPEN_PORT).

Environment:
  TABGRUPPEN_DB          Database path (default: ~/.local/share/tabgruppen/tabgruppen.db)
  TABGRUPPEN_LOG_DIR     Log directory (default: ~/.local/share/tabgruppen)
  TABGRUPPEN_PORT        Daemon port (overridden by --port)
  TABGRUPPEN_IGNORE      Ignored URL globs (overridden by --ignore)
  TABGRUPPEN_PROFILE     Default Firefox profile (overridden by --profile)
`)
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", a...)
	os.Exit(1)
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	port := fs.Int("port", 0, "WebSocket and control port")
	callTimeout := fs.Duration("call-timeout", server.DefaultCallTimeout, "Timeout per extension command")
	ignore := fs.String("ignore", "", "Comma separated URL globs never organized")
	verbose := fs.Bool("verbose", false, "Echo the event log to stderr")
	fs.Parse(args)

	if err := applog.Init(resolveLogDir()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: log file unavailable: %v\n", err)
	}
	defer applog.Close()
	if *verbose {
		applog.SetEcho(os.Stderr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDB()
	if err != nil {
		fatalf("opening database: %v", err)
	}
	defer db.Close()

	store := rules.NewStore(storage.NewKV(db))
	if _, err := store.Seed(ctx); err != nil {
		// The daemon still runs; an absent rule set just means no grouping.
		applog.Error("rules.seed", err)
	}

	filter, err := daemon.NewFilter(daemon.DefaultAllow, daemon.ParsePatterns(resolveString(*ignore, "TABGRUPPEN_IGNORE")))
	if err != nil {
		fatalf("%v", err)
	}

	srv := server.New(resolvePort(*port))
	srv.SetCallTimeout(*callTimeout)
	d := daemon.New(organizer.New(store, srv), srv.Messages(), filter)
	srv.SetControl(d.ControlHandler(srv.Connected))
	d.Subscribe(ctx)

	fmt.Fprintf(os.Stderr, "Listening on 127.0.0.1:%d, waiting for the extension...\n", srv.Port())
	if err := srv.ListenAndServe(ctx); err != nil {
		fatalf("%v", err)
	}
	<-d.Done()
}

func runInit() {
	db, err := openDB()
	if err != nil {
		fatalf("opening database: %v", err)
	}
	defer db.Close()

	created, err := rules.NewStore(storage.NewKV(db)).Seed(context.Background())
	if err != nil {
		fatalf("%v", err)
	}
	if created {
		fmt.Println("Default rule set written.")
	} else {
		fmt.Println("Rule set already exists, left unchanged.")
	}
}

func runMatch(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: tabgruppen match <url>...")
		os.Exit(1)
	}
	store, db := openStore()
	defer db.Close()
	rs := store.Load(context.Background())

	for _, u := range args {
		r, frag, ok := rules.MatchedFragment(rs, u)
		if !ok {
			fmt.Printf("%s\n  no rule, ungrouped\n", u)
			continue
		}
		fmt.Printf("%s\n  %s %s via %q\n", u, swatch(r.Colour), r.Name, frag)
	}
}

func runPreview(args []string) {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	profileName := fs.String("profile", "", "Firefox profile name")
	fs.Parse(args)

	session, err := resolveSession(resolveString(*profileName, "TABGRUPPEN_PROFILE"))
	if err != nil {
		fatalf("%v", err)
	}
	store, db := openStore()
	defer db.Close()

	fmt.Print(preview.FormatDryRun(preview.Classify(store.Load(context.Background()), session)))
}

func runReorganize(args []string) {
	fs := flag.NewFlagSet("reorganize", flag.ExitOnError)
	port := fs.Int("port", 0, "Daemon port")
	fs.Parse(args)

	c := daemon.NewClient(resolvePort(*port))
	if err := c.Reorganize(context.Background()); err != nil {
		fatalf("%v", err)
	}
	fmt.Println("Reorganized.")
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	port := fs.Int("port", 0, "Daemon port")
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p := resolvePort(*port)
	resp, err := daemon.NewClient(p).Status(ctx)
	if err != nil {
		fmt.Printf("Daemon: not running on port %d\n", p)
		os.Exit(1)
	}
	fmt.Printf("Daemon: running on port %d\n", p)
	if resp.Connected {
		fmt.Println("Extension: connected")
	} else {
		fmt.Println("Extension: not connected")
	}
}

func runProfiles() {
	profiles, err := firefox.DiscoverProfiles()
	if err != nil {
		fatalf("discovering Firefox profiles: %v", err)
	}
	if len(profiles) == 0 {
		fmt.Fprintln(os.Stderr, "No Firefox profiles found.")
		os.Exit(1)
	}

	for _, p := range profiles {
		suffix := ""
		if p.IsDefault {
			suffix = " [default]"
		}
		fmt.Printf("%s (%s)%s\n", p.Name, p.Path, suffix)
	}
}

// resolveSession reads the session file of the named profile, or of the
// default profile when name is empty.
func resolveSession(name string) (*types.SessionData, error) {
	profiles, err := firefox.DiscoverProfiles()
	if err != nil {
		return nil, fmt.Errorf("discover profiles: %w", err)
	}
	profile, err := firefox.SelectProfile(profiles, name)
	if err != nil {
		return nil, err
	}
	session, err := firefox.ReadSessionFile(profile.Path)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	session.Profile = profile
	return session, nil
}

func openDB() (*sql.DB, error) {
	path := os.Getenv("TABGRUPPEN_DB")
	if path == "" {
		var err error
		if path, err = storage.DefaultDBPath(); err != nil {
			return nil, err
		}
	}
	return storage.OpenDB(path)
}

func openStore() (*rules.Store, *sql.DB) {
	db, err := openDB()
	if err != nil {
		fatalf("opening database: %v", err)
	}
	return rules.NewStore(storage.NewKV(db)), db
}

func resolveLogDir() string {
	if dir := os.Getenv("TABGRUPPEN_LOG_DIR"); dir != "" {
		return dir
	}
	return applog.DefaultDir()
}

// resolveString returns the flag value if set, otherwise the env variable.
func resolveString(flagValue, env string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(env)
}

// resolvePort returns the flag value if set, then TABGRUPPEN_PORT, then the
// default port.
func resolvePort(flagValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	if v := os.Getenv("TABGRUPPEN_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			return p
		}
		fmt.Fprintf(os.Stderr, "Warning: ignoring invalid TABGRUPPEN_PORT %q\n", v)
	}
	return server.DefaultPort
}

// reorderArgs moves flag arguments before positional arguments so that
// flag.Parse handles them correctly (it stops at the first non-flag arg).
// Boolean flags must be listed in bools so they do not swallow the next
// positional argument.
func reorderArgs(args []string, bools ...string) []string {
	isBool := make(map[string]bool, len(bools))
	for _, b := range bools {
		isBool[b] = true
	}
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		if strings.HasPrefix(args[i], "-") {
			flags = append(flags, args[i])
			name := strings.TrimLeft(args[i], "-")
			if isBool[name] || strings.Contains(name, "=") {
				continue
			}
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				flags = append(flags, args[i+1])
				i++
			}
		} else {
			positional = append(positional, args[i])
		}
	}
	return append(flags, positional...)
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes"
}

var swatchColours = map[string]string{
	"grey": "245", "blue": "33", "red": "196", "yellow": "220", "green": "34",
	"pink": "205", "purple": "135", "cyan": "44", "orange": "208",
}

func swatch(c string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(swatchColours[c])).Render("●")
}
