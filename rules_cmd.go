package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lotas/tabgruppen/internal/daemon"
	"github.com/lotas/tabgruppen/internal/export"
	"github.com/lotas/tabgruppen/internal/history"
	"github.com/lotas/tabgruppen/internal/rules"
	"github.com/lotas/tabgruppen/internal/storage"
	"github.com/lotas/tabgruppen/internal/suggest"
	"github.com/lotas/tabgruppen/internal/tui"
	"github.com/lotas/tabgruppen/internal/types"
)

func runRules(args []string) {
	if len(args) == 0 {
		runRulesList()
		return
	}

	subcmd := args[0]
	subArgs := args[1:]

	switch subcmd {
	case "list":
		runRulesList()
	case "add":
		runRulesAdd(subArgs)
	case "delete", "rm":
		runRulesDelete(subArgs)
	case "move":
		runRulesMove(subArgs)
	case "import":
		runRulesImport(subArgs)
	case "export":
		runRulesExport(subArgs)
	case "history":
		runRulesHistory()
	case "diff":
		runRulesDiff(subArgs)
	case "revert":
		runRulesRevert(subArgs)
	case "suggest":
		runRulesSuggest(subArgs)
	case "edit":
		runRulesEdit(subArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown rules command %q. Run 'tabgruppen help'.\n", subcmd)
		os.Exit(1)
	}
}

func runRulesList() {
	store, db := openStore()
	defer db.Close()

	rs := store.Load(context.Background())
	if len(rs) == 0 {
		fmt.Println("No rules. Add one with 'tabgruppen rules add'.")
		return
	}
	seen := make(map[string]bool)
	for i, r := range rs {
		note := ""
		if seen[r.Name] {
			note = "  (shadowed by an earlier rule of the same name)"
		}
		seen[r.Name] = true
		fmt.Printf("%2d. %s %-20s %v%s\n", i+1, swatch(r.Colour), r.Name, r.URLs, note)
	}
}

func runRulesAdd(args []string) {
	fs := flag.NewFlagSet("rules add", flag.ExitOnError)
	port := fs.Int("port", 0, "Daemon port to notify")
	fs.Parse(reorderArgs(args))

	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "Usage: tabgruppen rules add <name> <colour> [fragment...]")
		os.Exit(1)
	}
	r := types.Rule{Name: fs.Arg(0), Colour: fs.Arg(1), URLs: []string{}}
	for _, a := range fs.Args()[2:] {
		r.URLs = append(r.URLs, rules.ParseURLList(a)...)
	}

	store, db := openStore()
	defer db.Close()
	ctx := context.Background()

	rs := store.Load(ctx)
	replacing := rules.IndexOf(rs, r.Name) >= 0
	if err := store.Save(ctx, rules.Upsert(rs, r)); err != nil {
		fatalf("%v", err)
	}
	if replacing {
		fmt.Printf("Rule %q updated.\n", r.Name)
	} else {
		fmt.Printf("Rule %q added.\n", r.Name)
	}
	notifyDaemon(*port)
}

func runRulesDelete(args []string) {
	fs := flag.NewFlagSet("rules delete", flag.ExitOnError)
	port := fs.Int("port", 0, "Daemon port to notify")
	yes := fs.Bool("yes", false, "Skip confirmation prompt")
	fs.Parse(reorderArgs(args, "yes"))

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: tabgruppen rules delete <name> [--yes]")
		os.Exit(1)
	}
	name := fs.Arg(0)

	store, db := openStore()
	defer db.Close()
	ctx := context.Background()

	rs, removed := rules.Remove(store.Load(ctx), name)
	if !removed {
		fatalf("rule %q not found", name)
	}
	if !*yes && !confirm(fmt.Sprintf("Delete rule %q and dissolve its groups?", name)) {
		fmt.Println("Aborted.")
		return
	}
	if err := store.Save(ctx, rs); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Rule %q deleted.\n", name)
	notifyDaemon(*port, name)
}

func runRulesMove(args []string) {
	fs := flag.NewFlagSet("rules move", flag.ExitOnError)
	port := fs.Int("port", 0, "Daemon port to notify")
	fs.Parse(reorderArgs(args))

	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Usage: tabgruppen rules move <name> <position>")
		os.Exit(1)
	}
	pos, err := strconv.Atoi(fs.Arg(1))
	if err != nil || pos < 1 {
		fatalf("invalid position %q", fs.Arg(1))
	}

	store, db := openStore()
	defer db.Close()
	ctx := context.Background()

	rs, err := rules.Move(store.Load(ctx), fs.Arg(0), pos-1)
	if err != nil {
		fatalf("%v", err)
	}
	if err := store.Save(ctx, rs); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Rule %q is now #%d.\n", fs.Arg(0), rules.IndexOf(rs, fs.Arg(0))+1)
	notifyDaemon(*port)
}

func runRulesImport(args []string) {
	fs := flag.NewFlagSet("rules import", flag.ExitOnError)
	port := fs.Int("port", 0, "Daemon port to notify")
	yes := fs.Bool("yes", false, "Skip confirmation prompt")
	fs.Parse(reorderArgs(args, "yes"))

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: tabgruppen rules import <file.json|file.yaml> [--yes]")
		os.Exit(1)
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fatalf("%v", err)
	}
	incoming, err := rules.DecodeFile(fs.Arg(0), data)
	if err != nil {
		fatalf("%v", err)
	}
	if err := rules.Validate(incoming); err != nil {
		fatalf("%v", err)
	}

	store, db := openStore()
	defer db.Close()
	ctx := context.Background()

	current := store.Load(ctx)
	d := history.Diff(current, incoming)
	if d.Empty() {
		fmt.Println("Rule set unchanged.")
		return
	}
	fmt.Print(history.FormatDiff(d))
	if !*yes && !confirm("Replace the rule set?") {
		fmt.Println("No changes applied.")
		return
	}
	if err := store.Save(ctx, incoming); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Imported %d rules.\n", len(incoming))
	notifyDaemon(*port, removedNames(d)...)
}

func runRulesExport(args []string) {
	fs := flag.NewFlagSet("rules export", flag.ExitOnError)
	format := fs.String("format", "markdown", "Output format: markdown, json or yaml")
	outFile := fs.String("out", "", "Output file path (default: stdout)")
	render := fs.Bool("render", false, "Render markdown for the terminal")
	width := fs.Int("width", 80, "Wrap width for --render")
	fs.Parse(args)

	store, db := openStore()
	defer db.Close()
	rs := store.Load(context.Background())

	var output string
	var err error
	if *render {
		output, err = export.Terminal(rs, time.Now(), *width)
	} else {
		output, err = export.Render(*format, rs, time.Now())
	}
	if err != nil {
		fatalf("%v", err)
	}

	if *outFile != "" {
		if err := os.WriteFile(*outFile, []byte(output), 0644); err != nil {
			fatalf("writing file: %v", err)
		}
		return
	}
	fmt.Print(output)
}

func runRulesHistory() {
	db, err := openDB()
	if err != nil {
		fatalf("opening database: %v", err)
	}
	defer db.Close()

	entries, err := history.List(context.Background(), storage.NewKV(db))
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Print(history.FormatList(entries))
}

func runRulesDiff(args []string) {
	db, err := openDB()
	if err != nil {
		fatalf("opening database: %v", err)
	}
	defer db.Close()

	var from, to int
	switch len(args) {
	case 0:
	case 1:
		from = parseRev(args[0])
	case 2:
		from, to = parseRev(args[0]), parseRev(args[1])
	default:
		fmt.Fprintln(os.Stderr, "Usage: tabgruppen rules diff [rev] [rev2]")
		os.Exit(1)
	}

	d, err := history.DiffRevisions(context.Background(), storage.NewKV(db), from, to)
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Print(history.FormatDiff(d))
}

func runRulesRevert(args []string) {
	fs := flag.NewFlagSet("rules revert", flag.ExitOnError)
	port := fs.Int("port", 0, "Daemon port to notify")
	yes := fs.Bool("yes", false, "Skip confirmation prompt")
	fs.Parse(reorderArgs(args, "yes"))

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: tabgruppen rules revert <rev> [--yes]")
		os.Exit(1)
	}
	rev := parseRev(fs.Arg(0))

	db, err := openDB()
	if err != nil {
		fatalf("opening database: %v", err)
	}
	defer db.Close()
	kv := storage.NewKV(db)
	ctx := context.Background()

	if !*yes && !confirm(fmt.Sprintf("Revert the rule set to revision #%d?", rev)) {
		fmt.Println("Aborted.")
		return
	}
	d, err := history.Revert(ctx, kv, rules.NewStore(kv), rev)
	if err != nil {
		fatalf("%v", err)
	}
	if d.Empty() {
		fmt.Printf("Revision #%d matches the current rule set.\n", rev)
		return
	}
	fmt.Print(history.FormatDiff(d))
	notifyDaemon(*port, removedNames(d)...)
}

func runRulesSuggest(args []string) {
	fs := flag.NewFlagSet("rules suggest", flag.ExitOnError)
	port := fs.Int("port", 0, "Daemon port to notify")
	add := fs.Bool("add", false, "Append the suggested rule")
	fs.Parse(reorderArgs(args, "add"))

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: tabgruppen rules suggest <url> [--add]")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	r, err := suggest.New().Suggest(ctx, fs.Arg(0))
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("%s %s  %v  (%s)\n", swatch(r.Colour), r.Name, r.URLs, r.Colour)
	if !*add {
		return
	}

	store, db := openStore()
	defer db.Close()
	rs := store.Load(ctx)
	if rules.IndexOf(rs, r.Name) >= 0 {
		fatalf("a rule named %q already exists", r.Name)
	}
	if err := store.Save(ctx, append(rs, r)); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Rule %q added.\n", r.Name)
	notifyDaemon(*port)
}

func runRulesEdit(args []string) {
	fs := flag.NewFlagSet("rules edit", flag.ExitOnError)
	port := fs.Int("port", 0, "Daemon port to notify")
	fs.Parse(args)

	store, db := openStore()
	defer db.Close()

	model := tui.NewModel(store, daemon.NewClient(resolvePort(*port)))
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fatalf("%v", err)
	}
}

func parseRev(s string) int {
	rev, err := strconv.Atoi(s)
	if err != nil || rev < 1 {
		fmt.Fprintf(os.Stderr, "Invalid revision number: %s\n", s)
		os.Exit(1)
	}
	return rev
}

func removedNames(d *history.DiffResult) []string {
	var out []string
	for _, r := range d.Removed {
		out = append(out, r.Name)
	}
	return out
}

// notifyDaemon dissolves the groups of removed rule names and asks the
// daemon to reorganize. A daemon that is not running is not an error: the
// saved rules apply when it next starts.
func notifyDaemon(port int, removed ...string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	c := daemon.NewClient(resolvePort(port))
	if _, err := c.Status(ctx); err != nil {
		fmt.Println("Daemon not running; changes apply on next start.")
		return
	}
	for _, name := range removed {
		if err := c.Dissolve(ctx, name); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: dissolving %q: %v\n", name, err)
		}
	}
	if err := c.Reorganize(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: reorganizing: %v\n", err)
		return
	}
	fmt.Println("Applied to open tabs.")
}
