package core

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/illarion/lockvault/internal/credential"
	"github.com/illarion/lockvault/internal/crypto"
)

const formHeader = "# Edit the entry, save and quit. Lines starting with # are ignored.\n" +
	"# Everything after the notes: line is kept as notes.\n"

var ErrEditAborted = errors.New("edit aborted")

// ReadChoice reads a single key from the terminal, lowercased
func ReadChoice() (string, error) {
	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		// not a terminal
		var input string
		if _, err := fmt.Scanln(&input); err != nil {
			return "", err
		}
		return strings.ToLower(strings.TrimSpace(input)), nil
	}
	defer func() { _ = term.Restore(int(os.Stdin.Fd()), oldState) }()

	buf := make([]byte, 1)
	if _, err := os.Stdin.Read(buf); err != nil {
		return "", err
	}
	choice := strings.ToLower(string(buf[0]))
	fmt.Printf("%s\r\n", choice)
	return choice, nil
}

// Confirm prints question and returns true on "y"
func Confirm(question string) bool {
	fmt.Printf("%s [y/N]: ", question)
	choice, err := ReadChoice()
	return err == nil && choice == "y"
}

// getEditor returns the editor to use, checking environment variables with fallback
func getEditor() string {
	if editor := os.Getenv("VISUAL"); editor != "" {
		return editor
	}
	if editor := os.Getenv("EDITOR"); editor != "" {
		return editor
	}
	if runtime.GOOS == "windows" {
		return "notepad"
	}
	return "vi"
}

// invokeEditor opens the editor on filename and waits for it to exit
func invokeEditor(filename string) error {
	editor := getEditor()
	if _, err := exec.LookPath(editor); err != nil {
		return fmt.Errorf("editor '%s' not found: %w\nPlease set VISUAL or EDITOR environment variable", editor, err)
	}

	cmd := exec.Command(editor, filename)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("editor exited with code %d", exitErr.ExitCode())
	}
	return err
}

// renderForm prints r as an editable form
func renderForm(r credential.Record) []byte {
	var b bytes.Buffer
	b.WriteString(formHeader)
	fmt.Fprintf(&b, "title: %s\n", r.Title)
	fmt.Fprintf(&b, "username: %s\n", r.Username)
	fmt.Fprintf(&b, "password: %s\n", r.Password)
	fmt.Fprintf(&b, "website: %s\n", r.Website)
	fmt.Fprintf(&b, "url: %s\n", r.URL)
	fmt.Fprintf(&b, "category: %s\n", r.Category)
	fmt.Fprintf(&b, "tags: %s\n", strings.Join(r.Tags, ", "))
	fmt.Fprintf(&b, "favorite: %t\n", r.Favorite)
	b.WriteString("notes:\n")
	b.WriteString(r.Notes)
	return b.Bytes()
}

// parseForm applies an edited form onto r. Unknown keys are an error.
func parseForm(data []byte, r credential.Record) (credential.Record, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	var notes []string
	inNotes := false
	for sc.Scan() {
		line := sc.Text()
		if inNotes {
			notes = append(notes, line)
			continue
		}
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return r, fmt.Errorf("line %q is not 'key: value'", line)
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "title":
			r.Title = value
		case "username":
			r.Username = value
		case "password":
			r.Password = value
		case "website":
			r.Website = value
		case "url":
			r.URL = value
		case "category":
			r.Category = value
		case "tags":
			r.Tags = SplitTags(value)
		case "favorite":
			fav, err := strconv.ParseBool(value)
			if err != nil {
				return r, fmt.Errorf("favorite: %w", err)
			}
			r.Favorite = fav
		case "notes":
			inNotes = true
			if value != "" {
				notes = append(notes, value)
			}
		default:
			return r, fmt.Errorf("unknown field %q", key)
		}
	}
	if err := sc.Err(); err != nil {
		return r, err
	}
	r.Notes = strings.TrimRight(strings.Join(notes, "\n"), "\n")
	return r, nil
}

// SplitTags parses a comma separated tag list
func SplitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// EditRecord opens r in the user's editor and returns the edited copy.
// The temporary file is owner-only and wiped before removal.
func EditRecord(r credential.Record) (credential.Record, error) {
	tmpFile, err := os.CreateTemp("", "lockvault-edit-*.txt")
	if err != nil {
		return r, fmt.Errorf("failed to create temp file: %w", err)
	}
	name := tmpFile.Name()
	defer os.Remove(name)

	if err := os.Chmod(name, 0600); err != nil {
		tmpFile.Close()
		return r, fmt.Errorf("failed to set temp file permissions: %w", err)
	}
	form := renderForm(r)
	_, err = tmpFile.Write(form)
	crypto.ClearBytes(form)
	if cerr := tmpFile.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return r, fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := invokeEditor(name); err != nil {
		return r, err
	}

	edited, err := os.ReadFile(name)
	if err != nil {
		return r, fmt.Errorf("failed to read edited file: %w", err)
	}
	defer func() {
		crypto.ClearBytes(edited)
		_ = os.WriteFile(name, make([]byte, len(edited)), 0600)
	}()

	if len(bytes.TrimSpace(edited)) == 0 {
		return r, ErrEditAborted
	}
	return parseForm(edited, r)
}
