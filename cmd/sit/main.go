package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"sit/internal/config"
	"sit/internal/errors"
	"sit/internal/logging"
	"sit/internal/repo"
	"sit/internal/scan"
	"sit/internal/sitlog"
	"sit/internal/tree"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var logger *logging.Logger

var rootCmd = &cobra.Command{
	Use:   "sit",
	Short: "Sit is a research version-control system",
	Long: `Sit represents a project's entire history as a single append-only
plain-text history file, interleaving change operations and commit records.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.NewLogger("info")
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		logger = l
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "keep running, re-printing status on every filesystem change")

	rootCmd.AddCommand(
		initCmd,
		addCmd,
		statusCmd,
		statsCmd,
		commitCmd,
		resetCmd,
		stashCmd,
		unstashCmd,
		checkoutCmd,
		lsCmd,
		logCmd,
		diffCmd,
		stageCmd,
		cloneCmd,
		fromGitCmd,
	)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new history file in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := os.Getwd()
		if err != nil {
			return err
		}
		cfg, err := config.LoadForRepo(dir)
		if err != nil {
			cfg = scan.DefaultConfig()
		}
		r, err := repo.Init(dir, repo.WithConfig(cfg), repo.WithLogger(logger.WithRepo(dir)))
		if err != nil {
			return err
		}
		defer r.Close()
		fmt.Println("Initialized empty sit repository in", repo.HistoryPath(dir))
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add <paths...>",
	Short: "Scan paths and append the resulting operations to the staged tail",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo()
		if err != nil {
			return err
		}
		defer r.Close()

		ops, err := r.AddFiles(args)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Println("No changes to stage")
			return nil
		}
		for _, op := range ops {
			fmt.Printf("staged %s %s\n", op.Cue, strings.Join(op.Atoms, " "))
		}
		return nil
	},
}

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Alias for 'add .'",
	RunE: func(cmd *cobra.Command, args []string) error {
		addCmd.Args = cobra.ArbitraryArgs
		return addCmd.RunE(cmd, []string{"."})
	},
}

var statusWatch bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show unstaged changes against the staged tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo()
		if err != nil {
			return err
		}
		defer r.Close()

		if !statusWatch {
			ops, err := r.Status()
			if err != nil {
				return err
			}
			printStatus(ops)
			return nil
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		changed, err := r.Watch(ctx)
		if err != nil {
			return err
		}

		ops, err := r.Status()
		if err != nil {
			return err
		}
		printStatus(ops)

		for range changed {
			ops, err := r.Status()
			if err != nil {
				return err
			}
			fmt.Println()
			printStatus(ops)
		}
		return nil
	},
}

func printStatus(ops []sitlog.Record) {
	if len(ops) == 0 {
		fmt.Println("Working tree clean")
		return
	}

	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	for _, op := range ops {
		label := op.Cue
		marker := yellow("M")
		switch op.Cue {
		case "write", "binary", "touch", "mkdir":
			marker = green("+")
		case "delete":
			marker = red("-")
		}
		fmt.Printf("  %s %s %s\n", marker, label, strings.Join(op.Atoms, " "))
	}
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show summary statistics about the repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo()
		if err != nil {
			return err
		}
		defer r.Close()

		s, err := r.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("commits:        %d\n", s.CommitCount)
		fmt.Printf("staged ops:     %d\n", s.StagedOpCount)
		fmt.Printf("tracked files:  %d\n", s.TrackedFiles)
		fmt.Printf("tracked dirs:   %d\n", s.TrackedDirs)
		fmt.Printf("history size:   %d bytes\n", s.HistorySizeBytes)
		return nil
	},
}

var commitCmd = &cobra.Command{
	Use:   "commit <msg...>",
	Short: "Seal every staged operation into a new commit",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo()
		if err != nil {
			return err
		}
		defer r.Close()

		id, err := r.Commit(strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Println("committed", id)
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop every staged operation",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo()
		if err != nil {
			return err
		}
		defer r.Close()
		return r.Reset()
	},
}

var stashCmd = &cobra.Command{
	Use:   "stash",
	Short: "Set aside staged operations for later",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo()
		if err != nil {
			return err
		}
		defer r.Close()
		return r.Stash()
	},
}

var unstashCmd = &cobra.Command{
	Use:   "unstash",
	Short: "Restore the most recently stashed operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo()
		if err != nil {
			return err
		}
		defer r.Close()
		return r.Unstash()
	},
}

var checkoutCmd = &cobra.Command{
	Use:   "checkout [query]",
	Short: "Reconcile the working directory with a commit, or fast-forward to the staged tree",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo()
		if err != nil {
			return err
		}
		defer r.Close()

		query := ""
		if len(args) == 1 {
			query = args[0]
		}
		return r.Checkout(query)
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List every path in the staged tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo()
		if err != nil {
			return err
		}
		defer r.Close()

		staged, err := r.StagedTree()
		if err != nil {
			return err
		}

		paths := make([]string, 0, len(staged))
		for path := range staged {
			paths = append(paths, path)
		}
		sort.Strings(paths)

		for _, path := range paths {
			switch staged[path].Kind {
			case tree.KindDirectory:
				fmt.Println(path + "/")
			default:
				fmt.Println(path)
			}
		}
		return nil
	},
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Print the commit chain, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo()
		if err != nil {
			return err
		}
		defer r.Close()

		var lines []string
		for order := 1; ; order++ {
			rec, _, err := r.FindCommit(fmt.Sprint(order))
			if err != nil {
				break
			}
			lines = append(lines, fmt.Sprintf("#%d %s", order, formatCommit(rec)))
		}
		if len(lines) == 0 {
			fmt.Println("No commits yet")
		}
		for i := len(lines) - 1; i >= 0; i-- {
			fmt.Println(lines[i])
		}
		return nil
	},
}

func formatCommit(rec sitlog.Record) string {
	fields := map[string]string{}
	for _, line := range strings.Split(rec.Body, "\n") {
		key, value, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		fields[key] = value
	}
	id := fields["id"]
	if len(id) > 10 {
		id = id[:10]
	}
	return fmt.Sprintf("%s %s <%s> %s", id, fields["message"], fields["author"], fields["timestamp"])
}

var diffCmd = &cobra.Command{
	Use:   "diff [paths...]",
	Short: "Show a human-readable diff of unstaged changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo()
		if err != nil {
			return err
		}
		defer r.Close()

		dir, err := os.Getwd()
		if err != nil {
			return err
		}

		ops, err := r.Status()
		if err != nil {
			return err
		}
		staged, err := r.StagedTree()
		if err != nil {
			return err
		}

		header := color.New(color.FgCyan)
		added := color.New(color.FgGreen)
		removed := color.New(color.FgRed)
		plain := color.New(color.Reset)

		for _, op := range ops {
			if op.Cue != "patch" && op.Cue != "write" {
				continue
			}
			path := op.Atoms[0]

			var oldContent []byte
			if node, ok := staged[path]; ok {
				oldContent = []byte(node.Content)
			}
			newContent, readErr := os.ReadFile(filepath.Join(dir, path))
			if readErr != nil {
				return errors.IO("reading "+path, readErr)
			}

			hunks := scan.RenderHunks(oldContent, newContent, 3)
			header.Printf("\ndiff --sit a/%s b/%s\n", path, path)
			for _, line := range strings.Split(hunks.Format(), "\n") {
				switch {
				case strings.HasPrefix(line, "-"):
					removed.Println(line)
				case strings.HasPrefix(line, "+"):
					added.Println(line)
				case line == "":
					continue
				default:
					plain.Println(line)
				}
			}
		}
		return nil
	},
}

var cloneCmd = &cobra.Command{
	Use:   "clone <src>",
	Short: "Clone a sit repository (not implemented in this build)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("clone: not implemented in this build")
	},
}

var fromGitCmd = &cobra.Command{
	Use:   "from-git",
	Short: "Import a Git repository's commit log (not implemented in this build)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("from-git: not implemented in this build")
	},
}

// accelDir returns where a repository's disposable badger accelerators
// (commit index, durable scan cache) live: inside the repository root,
// under a ".sit-"-prefixed name the Scanner always ignores, since these
// are rebuildable and must never be mistaken for tracked content.
func accelDir(dir, name string) string {
	return dir + "/.sit-" + name
}

func openRepo() (*repo.Repository, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadForRepo(dir)
	if err != nil {
		cfg = scan.DefaultConfig()
	}

	opts := []repo.Option{repo.WithConfig(cfg), repo.WithLogger(logger.WithRepo(dir))}

	if persister, err := repo.OpenScanCache(accelDir(dir, "scan-cache")); err == nil {
		if cache, err := scan.NewCache(0, persister); err == nil {
			opts = append(opts, repo.WithCache(cache), repo.WithCloser(persister.Close))
		}
	}
	if index, err := repo.OpenCommitIndex(accelDir(dir, "commit-index")); err == nil {
		opts = append(opts, repo.WithCommitIndex(index))
	}

	return repo.Open(dir, opts...)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(errors.ExitCode(err))
	}
}
