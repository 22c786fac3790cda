package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"dis/internal/api"
	"dis/internal/config"
	"dis/internal/diff"
	derr "dis/internal/errors"
	"dis/internal/index"
	"dis/internal/logging"
	"dis/internal/object"
	"dis/internal/repository"
	"dis/internal/storage"
	"dis/internal/watch"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries what every command needs once flags are parsed.
type app struct {
	configPath string
	logLevel   string

	workDir string
	cfg     *config.Config
	logger  *logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "dis",
		Short: "dis is a minimal content-addressed version control system",
		Long: `dis stores snapshots of files under the hash of their content and links
successive snapshots into a linear history.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				a.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default is $DIS_CONFIG or .dis/config.json)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		a.initCmd(),
		a.addCmd(),
		a.commitCmd(),
		a.historyCmd(),
		a.showCmd(),
		a.statusCmd(),
		a.verifyCmd(),
		a.watchCmd(),
		a.serveCmd(),
	)
	return rootCmd
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}
	a.workDir = wd

	a.cfg, err = config.Resolve(a.configPath, wd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !filepath.IsAbs(a.cfg.Repository.Dir) {
		a.cfg.Repository.Dir = filepath.Join(wd, a.cfg.Repository.Dir)
	}

	level := a.cfg.LogLevel
	if a.logLevel != "" {
		level = a.logLevel
	}
	logger, err := logging.NewLogger(level)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	a.logger = logger.ForOperation(cmd.Name())
	return nil
}

func (a *app) options() []repository.Option {
	return []repository.Option{
		repository.WithCacheSize(a.cfg.Cache.Size),
		repository.WithContextLines(a.cfg.Diff.ContextLines),
		repository.WithWorkDir(a.workDir),
		repository.WithLogger(a.logger.Logger),
	}
}

// checkBackend rejects backends that keep nothing between invocations.
func (a *app) checkBackend() error {
	if a.cfg.Storage.Backend == config.BackendMemory {
		return derr.ValidationError("storage backend \"memory\" does not persist between commands; use fs, badger or sqlite", nil)
	}
	return nil
}

// openRepo opens the configured repository. Callers must Close it.
func (a *app) openRepo() (*repository.Repository, error) {
	if err := a.checkBackend(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(a.cfg.Repository.Dir); errors.Is(err, os.ErrNotExist) {
		return nil, derr.NotInitialized("not a dis repository (run 'dis init' first)")
	}

	backend, err := storage.Open(a.cfg.Storage.Backend, a.cfg.Repository.Dir, a.logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	repo, err := repository.Open(backend, a.options()...)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return repo, nil
}

func (a *app) initCmd() *cobra.Command {
	var backendName string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a repository in the current directory",
		Long:  `Creates the state directory with an empty HEAD and index. Running it again leaves existing state untouched.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if backendName != "" {
				a.cfg.Storage.Backend = backendName
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			if err := a.checkBackend(); err != nil {
				return err
			}

			dir := a.cfg.Repository.Dir
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("creating %s: %w", dir, err)
			}

			backend, err := storage.Open(a.cfg.Storage.Backend, dir, a.logger.Logger)
			if err != nil {
				return fmt.Errorf("opening storage: %w", err)
			}
			repo, created, err := repository.Init(backend, a.options()...)
			if err != nil {
				backend.Close()
				return fmt.Errorf("initializing repository: %w", err)
			}
			defer repo.Close()

			if _, err := a.cfg.Save(filepath.Join(dir, config.FileName)); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}

			out := cmd.OutOrStdout()
			if created {
				fmt.Fprintf(out, "Initialized empty dis repository in %s (%s storage)\n", dir, a.cfg.Storage.Backend)
			} else {
				fmt.Fprintf(out, "dis repository already initialized in %s\n", dir)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&backendName, "backend", "", "storage backend: fs, badger, sqlite")
	return cmd
}

func (a *app) addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <file>...",
		Short: "Stage files for the next commit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			for _, path := range args {
				e, err := repo.Add(path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", e.Path, e.Digest.Short())
			}
			return nil
		},
	}
}

func (a *app) commitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commit <message>",
		Short: "Record the staged files as a new commit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			e, err := repo.Commit(strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s (%d files)\n", e.Digest.Short(), e.Commit.Message, len(e.Commit.Files))
			return nil
		},
	}
}

func (a *app) historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"log"},
		Short:   "List commits from the latest to the first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			out := cmd.OutOrStdout()
			n := 0
			w := repo.Walk()
			for w.Next() {
				renderCommit(out, w.Entry())
				n++
				if limit > 0 && n >= limit {
					break
				}
			}
			if err := w.Err(); err != nil {
				return err
			}
			if n == 0 {
				fmt.Fprintln(out, "No commits yet")
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most n commits")
	return cmd
}

func (a *app) showCmd() *cobra.Command {
	var hunks bool
	var unified int

	cmd := &cobra.Command{
		Use:   "show <commit>",
		Short: "Show the files of a commit and how they changed",
		Long: `Prints every file of a commit. Files that existed in the parent commit are
shown as added, removed and unchanged runs of lines, or as unified hunks with
--hunks or -U.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			d := object.Digest(args[0])
			changes, err := repo.Show(d)
			if err != nil {
				return err
			}
			c, err := repo.GetCommit(d)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			renderCommitHeader(out, d, c)
			for _, fc := range changes {
				if fc.Introduced || (unified < 0 && !hunks) {
					renderFileChange(out, fc)
					continue
				}

				var r *diff.Result
				if unified >= 0 {
					r, err = diff.NewEngine(unified).Diff(fc.ParentContent, fc.Content)
				} else {
					r, err = repo.Diff(fc.ParentContent, fc.Content)
				}
				if err != nil {
					return fmt.Errorf("diffing %s: %w", fc.Path, err)
				}
				renderHunks(out, fc, r)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&hunks, "hunks", false, "show unified hunks using the configured context lines")
	cmd.Flags().IntVarP(&unified, "unified", "U", -1, "show unified hunks with n lines of context")
	return cmd
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show HEAD and the staged files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			st, err := repo.Status()
			if err != nil {
				return err
			}
			renderStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func (a *app) verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check every object against its digest and every commit's references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			report, err := repo.Verify()
			if err != nil {
				return err
			}
			renderVerify(cmd.OutOrStdout(), report)
			if !report.OK() {
				return fmt.Errorf("%d problems found", len(report.Problems))
			}
			return nil
		},
	}
}

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <file>...",
		Short: "Stage files automatically whenever they change",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			for _, path := range args {
				if _, err := os.Stat(path); err != nil {
					return derr.FileNotFound(path, err)
				}
			}

			w, err := watch.New(repo, a.workDir, args, a.logger.Logger)
			if err != nil {
				return err
			}
			defer w.Close()

			st, err := repo.Status()
			if err != nil {
				return err
			}
			w.Seed(st.Staged)

			out := cmd.OutOrStdout()
			w.OnStage = func(e index.Entry) {
				fmt.Fprintf(out, "Added %s (%s)\n", e.Path, e.Digest.Short())
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(out, "Watching %d files, press Ctrl-C to stop\n", len(args))
			return w.Run(ctx)
		},
	}
}

func (a *app) serveCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a read-only JSON view of the repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if host != "" {
				a.cfg.Server.Host = host
			}
			if port != 0 {
				a.cfg.Server.Port = port
			}

			repo, err := a.openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			addr := net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(a.cfg.Server.Port))
			server := &http.Server{
				Addr:              addr,
				Handler:           api.NewHandler(repo, a.logger).Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errc := make(chan error, 1)
			go func() {
				a.logger.Info("starting server", zap.String("address", addr))
				errc <- server.ListenAndServe()
			}()
			fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://%s\n", addr)

			select {
			case err := <-errc:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from config)")
	return cmd
}
