package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/starford/vellum/internal"
	"github.com/starford/vellum/internal/models"
	"github.com/starford/vellum/internal/preview"
	"github.com/starford/vellum/internal/rtf"
)

var stdout io.Writer = os.Stdout

const excerptLength = 60

// withStore opens the store for a one-shot command. Logs go to stderr so
// command output stays clean.
func withStore(fn func(ctx context.Context, cmd *cli.Command, app *internal.App) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := internal.NewLogger(cfg.App, os.Stderr)
		app, err := internal.Open(cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()
		return fn(ctx, cmd, app)
	}
}

func requireArgs(cmd *cli.Command, n int) error {
	if cmd.NArg() < n {
		return fmt.Errorf("%s: expected %d argument(s): %s", cmd.Name, n, cmd.ArgsUsage)
	}
	return nil
}

// resolve finds a note by id, then by exact title (case-insensitive).
func resolve(app *internal.App, ref string) (models.Note, error) {
	if n, ok := app.Store.Note(ref); ok {
		return n, nil
	}
	var matches []models.Note
	for _, n := range app.Store.FilterByTitle(ref) {
		if strings.EqualFold(n.Title, ref) {
			matches = append(matches, n)
		}
	}
	switch len(matches) {
	case 0:
		return models.Note{}, fmt.Errorf("no note %q", ref)
	case 1:
		return matches[0], nil
	default:
		return models.Note{}, fmt.Errorf("%q is ambiguous: %d notes share that title", ref, len(matches))
	}
}

func printNotes(notes []models.Note, long bool) error {
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	if long {
		fmt.Fprintln(w, "PIN\tTITLE\tTAGS\tMODIFIED\tID\tPREVIEW")
	} else {
		fmt.Fprintln(w, "PIN\tTITLE\tTAGS\tMODIFIED\tID")
	}
	for _, n := range notes {
		pin := ""
		if n.Pinned {
			pin = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s",
			pin, n.Title, strings.Join(n.Tags, ","), humanize.Time(n.ModifiedAt), n.ID)
		if long {
			fmt.Fprintf(w, "\t%s", preview.Text(n.Location, n.Content, excerptLength))
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

func printNote(n models.Note) {
	fmt.Fprintf(stdout, "%s\n", n.Title)
	fmt.Fprintf(stdout, "id:       %s\n", n.ID)
	fmt.Fprintf(stdout, "path:     %s\n", n.Location)
	fmt.Fprintf(stdout, "modified: %s (%s)\n", n.ModifiedAt.Format("2006-01-02 15:04"), humanize.Time(n.ModifiedAt))
	if len(n.Tags) > 0 {
		fmt.Fprintf(stdout, "tags:     %s\n", strings.Join(n.Tags, ", "))
	}
	if n.Pinned {
		fmt.Fprintln(stdout, "pinned:   yes")
	}
}

func listCmd() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List notes, pinned first then newest",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tag", Aliases: []string{"t"}, Usage: "Only notes with this tag"},
			&cli.StringFlag{Name: "prefix", Aliases: []string{"p"}, Usage: "Only titles starting with this"},
			&cli.StringFlag{Name: "search", Aliases: []string{"s"}, Usage: "Only titles containing this"},
			&cli.BoolFlag{Name: "long", Aliases: []string{"l"}, Usage: "Add a one-line content preview"},
		},
		Action: withStore(func(_ context.Context, cmd *cli.Command, app *internal.App) error {
			var notes []models.Note
			switch {
			case cmd.String("tag") != "":
				notes = app.Store.FilterByTag(cmd.String("tag"))
			case cmd.String("prefix") != "":
				notes = app.Store.FilterByTitlePrefix(cmd.String("prefix"))
			case cmd.String("search") != "":
				notes = app.Store.FilterByTitle(cmd.String("search"))
			default:
				notes = app.Store.Notes()
			}
			return printNotes(notes, cmd.Bool("long"))
		}),
	}
}

func showCmd() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Print a note",
		ArgsUsage: "<title|id>",
		Action: withStore(func(_ context.Context, cmd *cli.Command, app *internal.App) error {
			if err := requireArgs(cmd, 1); err != nil {
				return err
			}
			n, err := resolve(app, strings.Join(cmd.Args().Slice(), " "))
			if err != nil {
				return err
			}
			printNote(n)
			fmt.Fprintln(stdout)
			body := n.Content
			if strings.EqualFold(filepath.Ext(n.Location), ".rtf") {
				body = rtf.PlainText([]byte(n.Content))
			}
			fmt.Fprintln(stdout, strings.TrimRight(body, "\n"))
			return nil
		}),
	}
}

func newCmd() *cli.Command {
	return &cli.Command{
		Name:      "new",
		Usage:     "Create a note",
		ArgsUsage: "<title> [content]",
		Action: withStore(func(_ context.Context, cmd *cli.Command, app *internal.App) error {
			if err := requireArgs(cmd, 1); err != nil {
				return err
			}
			content, err := contentArg(cmd, 1)
			if err != nil {
				return err
			}
			n, err := app.Store.CreateNote(cmd.Args().First(), content)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "created %s (%s)\n", n.Location, n.ID)
			return nil
		}),
	}
}

// contentArg joins the arguments from index i on; "-" reads stdin.
func contentArg(cmd *cli.Command, i int) (string, error) {
	args := cmd.Args().Slice()
	if len(args) <= i {
		return "", nil
	}
	if len(args) == i+1 && args[i] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	return strings.Join(args[i:], " "), nil
}

func editCmd() *cli.Command {
	return &cli.Command{
		Name:      "edit",
		Usage:     "Replace the content of a note (\"-\" reads stdin)",
		ArgsUsage: "<title|id> <content|->",
		Action: withStore(func(_ context.Context, cmd *cli.Command, app *internal.App) error {
			if err := requireArgs(cmd, 2); err != nil {
				return err
			}
			n, err := resolve(app, cmd.Args().First())
			if err != nil {
				return err
			}
			content, err := contentArg(cmd, 1)
			if err != nil {
				return err
			}
			if _, err := app.Store.UpdateContent(n.ID, content); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "updated %s\n", n.Title)
			return nil
		}),
	}
}

func renameCmd() *cli.Command {
	return &cli.Command{
		Name:      "rename",
		Usage:     "Rename a note",
		ArgsUsage: "<title|id> <new title>",
		Action: withStore(func(_ context.Context, cmd *cli.Command, app *internal.App) error {
			if err := requireArgs(cmd, 2); err != nil {
				return err
			}
			n, err := resolve(app, cmd.Args().First())
			if err != nil {
				return err
			}
			renamed, err := app.Store.RenameNote(n.ID, strings.Join(cmd.Args().Tail(), " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "renamed %s -> %s\n", n.Title, renamed.Title)
			return nil
		}),
	}
}

func tagCmd() *cli.Command {
	return &cli.Command{
		Name:      "tag",
		Usage:     "Replace the tags of a note (no tags clears them)",
		ArgsUsage: "<title|id> [tags...]",
		Action: withStore(func(_ context.Context, cmd *cli.Command, app *internal.App) error {
			if err := requireArgs(cmd, 1); err != nil {
				return err
			}
			n, err := resolve(app, cmd.Args().First())
			if err != nil {
				return err
			}
			var tags []string
			for _, a := range cmd.Args().Tail() {
				tags = append(tags, strings.Split(a, ",")...)
			}
			updated, err := app.Store.UpdateTags(n.ID, tags)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "%s: [%s]\n", updated.Title, strings.Join(updated.Tags, ", "))
			return nil
		}),
	}
}

func pinCmd() *cli.Command {
	return &cli.Command{
		Name:      "pin",
		Usage:     "Toggle the pinned flag of a note",
		ArgsUsage: "<title|id>",
		Action: withStore(func(_ context.Context, cmd *cli.Command, app *internal.App) error {
			if err := requireArgs(cmd, 1); err != nil {
				return err
			}
			n, err := resolve(app, strings.Join(cmd.Args().Slice(), " "))
			if err != nil {
				return err
			}
			updated, err := app.Store.TogglePinned(n.ID)
			if err != nil {
				return err
			}
			state := "unpinned"
			if updated.Pinned {
				state = "pinned"
			}
			fmt.Fprintf(stdout, "%s %s\n", state, updated.Title)
			return nil
		}),
	}
}

func rmCmd() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Usage:     "Move a note to the trash",
		ArgsUsage: "<title|id>",
		Action: withStore(func(_ context.Context, cmd *cli.Command, app *internal.App) error {
			if err := requireArgs(cmd, 1); err != nil {
				return err
			}
			n, err := resolve(app, strings.Join(cmd.Args().Slice(), " "))
			if err != nil {
				return err
			}
			item, err := app.Store.DeleteNote(n.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "trashed %s -> %s\n", n.Title, item.Path)
			return nil
		}),
	}
}

func trashCmd() *cli.Command {
	return &cli.Command{
		Name:  "trash",
		Usage: "List trashed notes",
		Action: withStore(func(_ context.Context, _ *cli.Command, app *internal.App) error {
			items, err := app.Store.Trashed()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDELETED\tORIGINAL")
			for _, it := range items {
				fmt.Fprintf(w, "%s\t%s\t%s\n", it.Name, humanize.Time(it.DeletedAt), it.OriginalPath)
			}
			return w.Flush()
		}),
	}
}

func restoreCmd() *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "Restore a trashed note",
		ArgsUsage: "<name>",
		Action: withStore(func(_ context.Context, cmd *cli.Command, app *internal.App) error {
			if err := requireArgs(cmd, 1); err != nil {
				return err
			}
			name := strings.Join(cmd.Args().Slice(), " ")
			items, err := app.Store.Trashed()
			if err != nil {
				return err
			}
			for _, it := range items {
				if it.Name == name {
					n, err := app.Store.RestoreNote(it)
					if err != nil {
						return err
					}
					fmt.Fprintf(stdout, "restored %s\n", n.Location)
					return nil
				}
			}
			return errors.New("restore: no trashed note named " + name)
		}),
	}
}
