package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/illarion/lockvault/cmd"
	"github.com/illarion/lockvault/internal/config"
	"github.com/illarion/lockvault/internal/crypto"
	"github.com/illarion/lockvault/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, args, err := config.Load(os.Args[1:], os.Getenv, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		printUsage()
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(2)
	}

	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(2)
	}
	defer log.Sync()

	env := cmd.Env{Config: cfg, Log: log}
	command, rest := args[0], args[1:]

	switch command {
	case "init":
		parse(command, rest)
		cmd.Init(ctx, env)
	case "unlock":
		parse(command, rest)
		cmd.Unlock(ctx, env)
	case "add":
		runAdd(ctx, env, rest)
	case "ls", "list":
		fs := flag.NewFlagSet("ls", flag.ExitOnError)
		favorites := fs.Bool("favorites", false, "Only list favorites")
		_ = fs.Parse(rest)
		query := ""
		if fs.NArg() > 0 {
			query = fs.Arg(0)
		}
		cmd.List(ctx, env, query, *favorites)
	case "show":
		fs := flag.NewFlagSet("show", flag.ExitOnError)
		reveal := fs.Bool("reveal", false, "Print the password")
		_ = fs.Parse(rest)
		cmd.Show(ctx, env, requireArg(fs, "show <entry>"), *reveal)
	case "edit":
		fs := flag.NewFlagSet("edit", flag.ExitOnError)
		_ = fs.Parse(rest)
		cmd.Edit(ctx, env, requireArg(fs, "edit <entry>"))
	case "rm":
		fs := flag.NewFlagSet("rm", flag.ExitOnError)
		force := fs.Bool("force", false, "Do not ask for confirmation")
		_ = fs.Parse(rest)
		cmd.Remove(ctx, env, fs.Args(), *force)
	case "passwd":
		parse(command, rest)
		cmd.Passwd(ctx, env)
	case "audit":
		parse(command, rest)
		cmd.Audit(ctx, env)
	case "generate":
		runGenerate(rest)
	case "export":
		fs := flag.NewFlagSet("export", flag.ExitOnError)
		_ = fs.Parse(rest)
		cmd.Export(ctx, env, requireArg(fs, "export <file|->"))
	case "import":
		fs := flag.NewFlagSet("import", flag.ExitOnError)
		_ = fs.Parse(rest)
		cmd.Import(ctx, env, requireArg(fs, "import <file>"))
	case "push":
		parse(command, rest)
		cmd.Push(ctx, env)
	case "pull":
		parse(command, rest)
		cmd.Pull(ctx, env)
	case "merge":
		fs := flag.NewFlagSet("merge", flag.ExitOnError)
		dryRun := fs.Bool("dry-run", false, "Show what would change without writing")
		_ = fs.Parse(rest)
		cmd.Merge(ctx, env, *dryRun)
	case "adopt":
		fs := flag.NewFlagSet("adopt", flag.ExitOnError)
		force := fs.Bool("force", false, "Do not ask for confirmation")
		_ = fs.Parse(rest)
		cmd.Adopt(ctx, env, *force)
	case "clear":
		fs := flag.NewFlagSet("clear", flag.ExitOnError)
		force := fs.Bool("force", false, "Do not ask for confirmation")
		_ = fs.Parse(rest)
		cmd.Clear(ctx, env, *force)
	case "credentials":
		runCredentials(ctx, env, rest)
	case "compact":
		parse(command, rest)
		cmd.Compact(ctx, env)
	case "status":
		parse(command, rest)
		cmd.Status(ctx, env)
	case "keyring":
		runKeyring(ctx, env, rest)
	case "completion":
		if len(rest) < 1 {
			fmt.Fprintln(os.Stderr, "Usage: lockvault completion <bash|zsh|fish>")
			os.Exit(1)
		}
		cmd.Completion(rest[0])
	case "help", "-h", "--help":
		if len(rest) == 0 {
			printUsage()
			return
		}
		printCommandHelp(rest[0])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// parse rejects flags and arguments for commands that take none.
func parse(name string, args []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "Error: %s takes no arguments\n", name)
		os.Exit(1)
	}
}

func requireArg(fs *flag.FlagSet, usage string) string {
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: lockvault %s\n", usage)
		os.Exit(1)
	}
	return fs.Arg(0)
}

func runAdd(ctx context.Context, env cmd.Env, args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	var opts cmd.AddOptions
	fs.StringVar(&opts.Title, "title", "", "Entry title")
	fs.StringVar(&opts.Username, "username", "", "Username or email")
	fs.StringVar(&opts.Website, "website", "", "Website name")
	fs.StringVar(&opts.URL, "url", "", "Login URL")
	fs.StringVar(&opts.Category, "category", "", "Category")
	fs.StringVar(&opts.Tags, "tags", "", "Comma separated tags")
	fs.StringVar(&opts.Notes, "notes", "", "Free form notes")
	fs.BoolVar(&opts.Favorite, "favorite", false, "Mark as favorite")
	fs.IntVar(&opts.Generate, "generate", 0, "Generate a password of this length")
	fs.BoolVar(&opts.Edit, "edit", false, "Fill in the entry in $EDITOR")
	_ = fs.Parse(args)
	if fs.NArg() > 0 && opts.Title == "" {
		opts.Title = fs.Arg(0)
	}
	cmd.Add(ctx, env, opts)
}

func runGenerate(args []string) {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	length := fs.Int("length", 20, "Password length")
	noUpper := fs.Bool("no-upper", false, "Exclude uppercase letters")
	noLower := fs.Bool("no-lower", false, "Exclude lowercase letters")
	noDigits := fs.Bool("no-digits", false, "Exclude digits")
	noSymbols := fs.Bool("no-symbols", false, "Exclude symbols")
	_ = fs.Parse(args)

	cmd.Generate(*length, crypto.Charset{
		Upper:   !*noUpper,
		Lower:   !*noLower,
		Digits:  !*noDigits,
		Symbols: !*noSymbols,
	})
}

func runCredentials(ctx context.Context, env cmd.Env, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: lockvault credentials <export|import> [flags] <file|->")
		os.Exit(1)
	}
	switch args[0] {
	case "export":
		fs := flag.NewFlagSet("credentials export", flag.ExitOnError)
		_ = fs.Parse(args[1:])
		path := "-"
		if fs.NArg() > 0 {
			path = fs.Arg(0)
		}
		cmd.CredentialsExport(ctx, env, path)
	case "import":
		fs := flag.NewFlagSet("credentials import", flag.ExitOnError)
		discard := fs.Bool("discard-local", false, "Delete local entries sealed under the old password")
		_ = fs.Parse(args[1:])
		cmd.CredentialsImport(ctx, env, requireArg(fs, "credentials import [-discard-local] <file>"), *discard)
	default:
		fmt.Fprintf(os.Stderr, "Unknown credentials command: %s\n", args[0])
		os.Exit(1)
	}
}

func runKeyring(ctx context.Context, env cmd.Env, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: lockvault keyring <save|delete|status>")
		os.Exit(1)
	}
	switch args[0] {
	case "save":
		cmd.KeyringSave(ctx, env)
	case "delete":
		cmd.KeyringDelete(ctx, env)
	case "status":
		cmd.KeyringStatus(ctx, env)
	default:
		fmt.Fprintf(os.Stderr, "Unknown keyring command: %s\n", args[0])
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("lockvault - local-first encrypted password vault")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  lockvault [global flags] <command> [arguments]")
	fmt.Println()
	fmt.Println("Global flags:")
	fmt.Println("  -config <file>      JSON config file (LOCKVAULT_CONFIG)")
	fmt.Println("  -vault <path>       Vault database (LOCKVAULT_VAULT, default .lockvault)")
	fmt.Println("  -backend <name>     bolt or badger (LOCKVAULT_BACKEND)")
	fmt.Println("  -sync-dir <dir>     Sync directory (LOCKVAULT_SYNC_DIR)")
	fmt.Println("  -log-level <level>  debug, info, warn, error (LOCKVAULT_LOG_LEVEL)")
	fmt.Println("  -log-format <fmt>   console or json (LOCKVAULT_LOG_FORMAT)")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init         Create a new vault")
	fmt.Println("  unlock       Check the master password")
	fmt.Println("  add          Add an entry")
	fmt.Println("  ls           List or search entries")
	fmt.Println("  show         Show an entry")
	fmt.Println("  edit         Edit an entry in $EDITOR")
	fmt.Println("  rm           Remove entries")
	fmt.Println("  passwd       Change the master password")
	fmt.Println("  audit        Rate password health")
	fmt.Println("  generate     Generate a random password")
	fmt.Println("  export       Write a passphrase protected backup")
	fmt.Println("  import       Merge a backup into the vault")
	fmt.Println("  push         Upload the vault to the sync directory")
	fmt.Println("  pull         Fetch entries from the sync directory")
	fmt.Println("  merge        Merge entries of an account with another password")
	fmt.Println("  adopt        Replace the local vault with the remote account")
	fmt.Println("  clear        Delete every local entry")
	fmt.Println("  credentials  Export or import account credentials")
	fmt.Println("  compact      Compact vault to reclaim disk space")
	fmt.Println("  status       Show vault status")
	fmt.Println("  keyring      Manage password in OS keyring")
	fmt.Println("  completion   Generate shell completions")
	fmt.Println("  help         Show help for a command")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  lockvault init                          # Create new vault")
	fmt.Println("  lockvault add -generate 24 github       # Add entry with generated password")
	fmt.Println("  lockvault show -reveal github           # Print entry including password")
	fmt.Println("  lockvault -sync-dir ~/Dropbox/lv push   # Mirror vault to a synced folder")
	fmt.Println()
	fmt.Println("The master password is read from LOCKVAULT_PASSWORD, the OS keyring or a prompt.")
	fmt.Println("Use 'lockvault help <command>' for more information about a command.")
}

func printCommandHelp(command string) {
	switch command {
	case "init":
		fmt.Println("lockvault init")
		fmt.Println()
		fmt.Println("Creates a vault at the configured path and sets its master password.")
		fmt.Println("The password is not stored anywhere - you must remember it.")
	case "unlock":
		fmt.Println("lockvault unlock")
		fmt.Println()
		fmt.Println("Checks the master password and reports how many entries decrypt.")
		fmt.Println("Offers to save a prompted password to the OS keyring.")
	case "add":
		fmt.Println("lockvault add [flags] [title]")
		fmt.Println()
		fmt.Println("Adds an entry. Without a title the entry is filled in via $EDITOR.")
		fmt.Println("Without -generate the password is prompted; an empty answer generates one.")
		fmt.Println()
		fmt.Println("Flags:")
		fmt.Println("  -username, -website, -url, -category, -notes  Entry fields")
		fmt.Println("  -tags a,b,c      Comma separated tags")
		fmt.Println("  -favorite        Mark as favorite")
		fmt.Println("  -generate <n>    Generate a password of length n")
		fmt.Println("  -edit            Open $EDITOR before saving")
	case "ls", "list":
		fmt.Println("lockvault ls [-favorites] [query]")
		fmt.Println()
		fmt.Println("Lists entries, newest first. A query matches title,")
		fmt.Println("username, website, url and tags, ignoring case.")
	case "show":
		fmt.Println("lockvault show [-reveal] <entry>")
		fmt.Println()
		fmt.Println("Shows an entry by id, id prefix or title. The password is masked")
		fmt.Println("unless -reveal is given.")
	case "edit":
		fmt.Println("lockvault edit <entry>")
		fmt.Println()
		fmt.Println("Opens the entry in $EDITOR as key: value lines and saves the result.")
	case "rm":
		fmt.Println("lockvault rm [-force] <entry> [entry...]")
		fmt.Println()
		fmt.Println("Removes entries. Deletions are propagated to the sync directory.")
	case "passwd":
		fmt.Println("lockvault passwd")
		fmt.Println()
		fmt.Println("Changes the master password and re-encrypts every entry in one")
		fmt.Println("transaction. With a sync directory the result is pushed.")
	case "audit":
		fmt.Println("lockvault audit")
		fmt.Println()
		fmt.Println("Reports weak and reused passwords and a 0-100 security score.")
	case "generate":
		fmt.Println("lockvault generate [-length n] [-no-upper] [-no-lower] [-no-digits] [-no-symbols]")
		fmt.Println()
		fmt.Println("Prints a random password. Does not open the vault.")
	case "export":
		fmt.Println("lockvault export <file|->")
		fmt.Println()
		fmt.Println("Writes every entry sealed under a backup passphrase, independent of")
		fmt.Println("the master password.")
	case "import":
		fmt.Println("lockvault import <file>")
		fmt.Println()
		fmt.Println("Merges a backup. For entries present on both sides the newer one wins;")
		fmt.Println("on equal timestamps the local entry is kept.")
	case "push":
		fmt.Println("lockvault push")
		fmt.Println()
		fmt.Println("Uploads every entry and the account credentials to the sync directory.")
		fmt.Println("Does not require a password.")
	case "pull":
		fmt.Println("lockvault pull")
		fmt.Println()
		fmt.Println("Fetches entries from the sync directory. Refuses when the directory")
		fmt.Println("belongs to another account; use merge or adopt instead.")
	case "merge":
		fmt.Println("lockvault merge [-dry-run]")
		fmt.Println()
		fmt.Println("Merges the entries of a sync directory sealed under another password.")
		fmt.Println("Merged entries are re-encrypted under the local password.")
		fmt.Println("With -dry-run the planned actions and field diffs are printed.")
	case "adopt":
		fmt.Println("lockvault adopt [-force]")
		fmt.Println()
		fmt.Println("Deletes every local entry, takes over the sync directory's account")
		fmt.Println("and pulls its entries.")
	case "clear":
		fmt.Println("lockvault clear [-force]")
		fmt.Println()
		fmt.Println("Deletes every local entry. The account and password stay.")
	case "credentials":
		fmt.Println("lockvault credentials export [file|-]")
		fmt.Println("lockvault credentials import [-discard-local] <file>")
		fmt.Println()
		fmt.Println("Exchanges the salt and verifier that let another device derive")
		fmt.Println("the same key from the same password.")
	case "compact":
		fmt.Println("lockvault compact")
		fmt.Println()
		fmt.Println("Compacts the vault database to reclaim unused disk space.")
		fmt.Println("Does not require a password.")
	case "status":
		fmt.Println("lockvault status")
		fmt.Println()
		fmt.Println("Shows vault location, size, entry count, sync and keyring state.")
		fmt.Println("Does not require a password.")
	case "keyring":
		fmt.Println("lockvault keyring <save|delete|status>")
		fmt.Println()
		fmt.Println("Manages the master password in the OS keyring.")
	case "completion":
		fmt.Println("lockvault completion <bash|zsh|fish>")
		fmt.Println()
		fmt.Println("Outputs shell completion script for the specified shell.")
		fmt.Println()
		fmt.Println("Setup:")
		fmt.Println("  # Bash - add to ~/.bashrc")
		fmt.Println("  eval \"$(lockvault completion bash)\"")
		fmt.Println()
		fmt.Println("  # Zsh - add to ~/.zshrc")
		fmt.Println("  eval \"$(lockvault completion zsh)\"")
		fmt.Println()
		fmt.Println("  # Fish - add to ~/.config/fish/config.fish")
		fmt.Println("  lockvault completion fish | source")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
	}
}
