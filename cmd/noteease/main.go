package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"noteease/internal/app"
	"noteease/internal/config"
	"noteease/internal/model"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a NoteApp. The caller must defer app.Close().
func newApp(cmd *cobra.Command) (*app.NoteApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	// Values already in the environment win over the .env file.
	if err := app.LoadEnvFiles(".env", filepath.Join(defaults["base_dir"], ".env")); err != nil {
		return nil, err
	}
	// NOTEEASE_CONFIG_PATH may have come from a .env file.
	defaults, err = app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	opts := app.Options{
		Stdout:     os.Stdout,
		LogLevel:   slog.LevelInfo,
		Passphrase: readPassphrase,
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		opts.LogLevel = slog.LevelDebug
		opts.Stderr = os.Stderr
	}

	a, err := app.NewNoteApp(cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// readPassphrase takes the backup passphrase from NOTEEASE_BACKUP_PASSPHRASE,
// or prompts on the terminal.
func readPassphrase() (string, error) {
	if p := os.Getenv("NOTEEASE_BACKUP_PASSPHRASE"); p != "" {
		return p, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("NOTEEASE_BACKUP_PASSPHRASE not set and stdin is not a terminal")
	}

	fmt.Fprint(os.Stderr, "Backup passphrase: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// terminalWidth returns the width of stdout, or 0 when it is not a terminal.
func terminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 0
	}
	return w
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid note id: %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseColor accepts ARGB hex ("ffadd8e6", "#ffadd8e6", "0xffadd8e6") or a
// palette index 1-5.
func parseColor(s string) (uint32, error) {
	if i, err := strconv.Atoi(s); err == nil && i >= 1 && i <= len(model.Palette) {
		return model.Palette[i-1], nil
	}
	hex := strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(s), "#"), "0x")
	c, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid color %q: want ARGB hex or palette index 1-%d", s, len(model.Palette))
	}
	if len(hex) <= 6 {
		c |= 0xFF000000
	}
	return uint32(c), nil
}

// formatLine renders one note on a single line, cut to width when width > 0.
func formatLine(n model.Note, width int) string {
	pin := " "
	if n.IsPinned {
		pin = "*"
	}
	body := strings.Join(strings.Fields(n.Title+" "+n.Content), " ")
	line := fmt.Sprintf("%5d %s %s  %s", n.ID, pin, n.Time().Format("2006-01-02 15:04"), body)

	if width > 0 {
		if r := []rune(line); len(r) > width {
			if width > 3 {
				return string(r[:width-3]) + "..."
			}
			return string(r[:width])
		}
	}
	return line
}

func printNotes(notes []model.Note) {
	if len(notes) == 0 {
		fmt.Println("No notes.")
		return
	}
	width := terminalWidth()
	for _, n := range notes {
		fmt.Println(formatLine(n, width))
	}
}

func printNote(n *model.Note) {
	pinned := ""
	if n.IsPinned {
		pinned = "  [pinned]"
	}
	fmt.Printf("#%d  %s  color:%08X%s\n", n.ID, n.Time().Format("2006-01-02 15:04:05"), n.Color, pinned)
	if n.Title != "" {
		fmt.Printf("\n%s\n", n.Title)
	}
	if n.Content != "" {
		fmt.Printf("\n%s\n", n.Content)
	}
}

var rootCmd = &cobra.Command{
	Use:          "noteease",
	Short:        "Local notes with search, pinning and sharing",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Host ID: %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Host ID:    %s\n", cfg.HostID)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Database:   %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Docs URL:   %s\n", cfg.Share.DocsURL)
		fmt.Printf("Server:     %s\n", cfg.Server.Addr)
		fmt.Printf("Vault:      %s (%s)\n", cfg.Backup.Vault.Name, cfg.Backup.Vault.Type)
		fmt.Printf("Encryption: %s\n", cfg.Backup.Encryption.Type)

		if err := cfg.Validate(); err != nil {
			fmt.Printf("\nWarning: %v\n", err)
		}
		return nil
	},
}

// add command
var addCmd = &cobra.Command{
	Use:   "add TITLE [CONTENT]",
	Short: "Create a note",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var color uint32
		if c, _ := cmd.Flags().GetString("color"); c != "" {
			var err error
			if color, err = parseColor(c); err != nil {
				return err
			}
		}
		pinned, _ := cmd.Flags().GetBool("pin")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		content := ""
		if len(args) > 1 {
			content = args[1]
		}

		n, err := a.AddNote(cmd.Context(), args[0], content, color, pinned)
		if err != nil {
			return err
		}
		if n == nil {
			fmt.Println("Empty note not saved.")
			return nil
		}

		fmt.Printf("Saved note #%d\n", n.ID)
		return nil
	},
}

// edit command
var editCmd = &cobra.Command{
	Use:   "edit ID",
	Short: "Change a note's title, content or color",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}

		var edit app.NoteEdit
		if cmd.Flags().Changed("title") {
			t, _ := cmd.Flags().GetString("title")
			edit.Title = &t
		}
		if cmd.Flags().Changed("content") {
			c, _ := cmd.Flags().GetString("content")
			edit.Content = &c
		}
		if cmd.Flags().Changed("color") {
			s, _ := cmd.Flags().GetString("color")
			c, err := parseColor(s)
			if err != nil {
				return err
			}
			edit.Color = &c
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.EditNote(cmd.Context(), ids[0], edit)
		if err != nil {
			return err
		}

		printNote(n)
		return nil
	},
}

// show command
var showCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Print one note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.ShowNote(cmd.Context(), ids[0])
		if err != nil {
			return err
		}

		printNote(n)
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		query, _ := cmd.Flags().GetString("query")
		pinnedOnly, _ := cmd.Flags().GetBool("pinned")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var notes []model.Note
		if pinnedOnly {
			notes, err = a.PinnedNotes(cmd.Context())
		} else {
			notes, err = a.ListNotes(cmd.Context(), query)
		}
		if err != nil {
			return err
		}

		printNotes(notes)
		return nil
	},
}

// pin command
var pinCmd = &cobra.Command{
	Use:   "pin ID",
	Short: "Pin or unpin a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.TogglePin(cmd.Context(), ids[0])
		if err != nil {
			return err
		}

		if n.IsPinned {
			fmt.Printf("Pinned note #%d\n", n.ID)
		} else {
			fmt.Printf("Unpinned note #%d\n", n.ID)
		}
		return nil
	},
}

// delete command
var deleteCmd = &cobra.Command{
	Use:   "delete ID...",
	Short: "Delete notes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteNotes(cmd.Context(), ids); err != nil {
			return err
		}

		fmt.Printf("Deleted %d note(s)\n", len(ids))
		return nil
	},
}

// copy command
var copyCmd = &cobra.Command{
	Use:   "copy ID...",
	Short: "Duplicate notes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		created, err := a.CopyNotes(cmd.Context(), ids)
		if err != nil {
			return err
		}

		for _, id := range created {
			fmt.Printf("Created copy #%d\n", id)
		}
		if len(created) == 0 {
			fmt.Println("No matching notes.")
		}
		return nil
	},
}

// share command
var shareCmd = &cobra.Command{
	Use:   "share ID...",
	Short: "Print notes as shareable text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		docs, _ := cmd.Flags().GetBool("docs")

		ids, err := parseIDs(args)
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		payload, err := a.ShareNotes(cmd.Context(), ids, docs)
		if err != nil {
			return err
		}
		if payload == "" {
			fmt.Fprintln(os.Stderr, "No matching notes.")
		}
		return nil
	},
}

// watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show the note list live until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		query, _ := cmd.Flags().GetString("query")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()

		return a.Watch(ctx, query, func(notes []model.Note) {
			// Clear the screen and redraw from the top.
			fmt.Print("\033[H\033[2J")
			if query != "" {
				fmt.Printf("Search: %s\n\n", query)
			}
			printNotes(notes)
		}, func(err error) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		})
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and live feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()

		return a.Serve(ctx)
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Inspect the notes database",
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.DBStatus()
		if err != nil {
			return err
		}

		state := "up to date"
		switch {
		case st.Dirty:
			state = "dirty"
		case !st.UpToDate():
			state = "behind"
		}
		fmt.Printf("Schema version %d of %d (%s)\n", st.Version, st.Latest, state)
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Encrypted database snapshots",
}

var backupPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Store a snapshot of the database in the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		snap, err := a.PushBackup(cmd.Context())
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		fmt.Printf("Stored %s (%d bytes)\n", snap.Key, snap.Size)
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List this host's snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		keys, err := a.ListBackups(cmd.Context())
		if err != nil {
			return err
		}

		if len(keys) == 0 {
			fmt.Println("No snapshots.")
			return nil
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore NAME DEST",
	Short: "Write a snapshot to DEST (NAME may be \"latest\")",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest, err := filepath.Abs(args[1])
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		key, err := a.RestoreBackup(cmd.Context(), args[0], dest)
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}

		fmt.Printf("Restored %s to %s\n", key, dest)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output to stderr")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// note commands
	addCmd.Flags().StringP("color", "c", "", "ARGB hex color or palette index 1-5")
	addCmd.Flags().BoolP("pin", "p", false, "Pin the new note")
	editCmd.Flags().StringP("title", "t", "", "New title")
	editCmd.Flags().StringP("content", "b", "", "New content")
	editCmd.Flags().StringP("color", "c", "", "ARGB hex color or palette index 1-5")
	listCmd.Flags().StringP("query", "q", "", "Only notes whose title or content contains the query")
	listCmd.Flags().Bool("pinned", false, "Only pinned notes")
	shareCmd.Flags().Bool("docs", false, "Hand the text to the configured docs URL")
	watchCmd.Flags().StringP("query", "q", "", "Only notes whose title or content contains the query")

	// db subcommands
	dbCmd.AddCommand(dbStatusCmd)

	// backup subcommands
	backupCmd.AddCommand(backupPushCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(pinCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(copyCmd)
	rootCmd.AddCommand(shareCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(backupCmd)
}
