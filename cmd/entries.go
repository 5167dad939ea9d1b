package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/illarion/lockvault/internal/core"
	"github.com/illarion/lockvault/internal/credential"
	"github.com/illarion/lockvault/internal/crypto"
)

// AddOptions are the add command flags.
type AddOptions struct {
	Title    string
	Username string
	Website  string
	URL      string
	Category string
	Tags     string
	Notes    string
	Favorite bool
	Generate int
	Edit     bool
}

// Add stores a new entry
func Add(ctx context.Context, env Env, opts AddOptions) {
	r := credential.Record{
		Title:    opts.Title,
		Username: opts.Username,
		Website:  opts.Website,
		URL:      opts.URL,
		Category: opts.Category,
		Tags:     core.SplitTags(opts.Tags),
		Notes:    opts.Notes,
		Favorite: opts.Favorite,
	}

	if opts.Generate > 0 {
		secret, err := crypto.GeneratePassword(opts.Generate, crypto.DefaultCharset)
		if err != nil {
			HandleError(err)
		}
		r.Password = secret
	}

	if opts.Edit || r.Title == "" {
		edited, err := core.EditRecord(r)
		if errors.Is(err, core.ErrEditAborted) {
			fmt.Println("nothing added")
			return
		}
		if err != nil {
			HandleError(err)
		}
		r = edited
	} else if r.Password == "" {
		secret, err := core.ReadPassword("Entry password (empty to generate): ")
		if err != nil {
			HandleError(err)
		}
		r.Password = string(secret)
		crypto.ClearBytes(secret)
		if r.Password == "" {
			if r.Password, err = crypto.GeneratePassword(20, crypto.DefaultCharset); err != nil {
				HandleError(err)
			}
		}
	}

	app := env.openUnlocked(ctx)
	defer closeApp(app)

	added, err := app.Vault.AddEntry(ctx, r)
	if err != nil {
		HandleError(err)
	}
	fmt.Printf("added %s (%s, %s)\n", added.Title, shortID(added.ID), added.Strength)
}

// List prints entries, optionally filtered
func List(ctx context.Context, env Env, query string, favorites bool) {
	app := env.openUnlocked(ctx)
	defer closeApp(app)

	var (
		entries []credential.Record
		err     error
	)
	switch {
	case favorites:
		entries, err = app.Vault.Favorites(ctx)
	case query != "":
		entries, err = app.Vault.Search(ctx, query)
	default:
		entries, err = app.Vault.Entries(ctx)
	}
	if err != nil {
		HandleError(err)
	}

	if len(entries) == 0 {
		fmt.Println("No entries")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tUSERNAME\tWEBSITE\tSTRENGTH\tUPDATED")
	for _, e := range entries {
		title := e.Title
		if e.Favorite {
			title = "* " + title
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(e.ID), title, e.Username, e.Website, e.Strength, formatMillis(e.UpdatedAt))
	}
	w.Flush()
}

// Show prints one entry. The password is masked unless reveal is set.
func Show(ctx context.Context, env Env, ref string, reveal bool) {
	app := env.openUnlocked(ctx)
	defer closeApp(app)

	e := resolve(ctx, app, ref)
	secret := "********"
	if reveal {
		secret = e.Password
	}
	fmt.Printf("id:       %s\n", e.ID)
	fmt.Printf("title:    %s\n", e.Title)
	fmt.Printf("username: %s\n", e.Username)
	fmt.Printf("password: %s\n", secret)
	fmt.Printf("strength: %s\n", e.Strength)
	fmt.Printf("website:  %s\n", e.Website)
	fmt.Printf("url:      %s\n", e.URL)
	fmt.Printf("category: %s\n", e.Category)
	fmt.Printf("tags:     %s\n", strings.Join(e.Tags, ", "))
	fmt.Printf("favorite: %t\n", e.Favorite)
	fmt.Printf("created:  %s\n", formatMillis(e.CreatedAt))
	fmt.Printf("updated:  %s\n", formatMillis(e.UpdatedAt))
	if e.Notes != "" {
		fmt.Printf("notes:\n%s\n", e.Notes)
	}
}

// Edit opens an entry in $EDITOR and saves the result
func Edit(ctx context.Context, env Env, ref string) {
	app := env.openUnlocked(ctx)
	defer closeApp(app)

	e := resolve(ctx, app, ref)
	edited, err := core.EditRecord(e)
	if errors.Is(err, core.ErrEditAborted) {
		fmt.Println("no changes")
		return
	}
	if err != nil {
		HandleError(err)
	}
	if _, err := app.Vault.UpdateEntry(ctx, edited); err != nil {
		HandleError(err)
	}
	fmt.Printf("updated %s\n", edited.Title)
}

// Remove deletes entries by id, id prefix or title
func Remove(ctx context.Context, env Env, refs []string, force bool) {
	if len(refs) == 0 {
		fmt.Fprintf(os.Stderr, "Error: rm requires at least one entry\n")
		fmt.Fprintf(os.Stderr, "Usage: lockvault rm <entry> [entry...]\n")
		os.Exit(1)
	}

	app := env.openUnlocked(ctx)
	defer closeApp(app)

	for _, ref := range refs {
		e := resolve(ctx, app, ref)
		if !force && !core.Confirm(fmt.Sprintf("Delete %q?", e.Title)) {
			continue
		}
		if err := app.Vault.DeleteEntry(ctx, e.ID); err != nil {
			HandleError(err)
		}
		fmt.Printf("removed %s\n", e.Title)
	}
}

// Generate prints a random password
func Generate(length int, charset crypto.Charset) {
	secret, err := crypto.GeneratePassword(length, charset)
	if err != nil {
		HandleError(err)
	}
	if secret == "" {
		fmt.Fprintln(os.Stderr, "Error: length must be positive and at least one character class enabled")
		os.Exit(1)
	}
	fmt.Println(secret)
	fmt.Fprintf(os.Stderr, "strength: %s\n", credential.ClassifyStrength(secret))
}
