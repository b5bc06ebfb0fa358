package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"issue_timer/internal"
	"issue_timer/internal/guard"
	"issue_timer/internal/issue"
	"issue_timer/internal/lease"
	"issue_timer/internal/notify"
	"issue_timer/internal/session"
	"issue_timer/internal/web"
)

var (
	servePort int

	trackTitle  string
	trackNumber int
	trackRepo   string
	trackURL    string

	sessionsIssue  string
	sessionsActive bool
	sessionsFormat string
	sessionsLimit  int
)

func init() {
	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Launch the terminal dashboard",
		RunE:  runTUI,
	}
	rootCmd.AddCommand(tuiCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and live websocket stream",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)

	trackCmd := &cobra.Command{
		Use:   "track ID",
		Short: "Track an issue",
		Args:  cobra.ExactArgs(1),
		RunE:  runTrack,
	}
	trackCmd.Flags().StringVar(&trackTitle, "title", "", "issue title")
	trackCmd.Flags().IntVar(&trackNumber, "number", 0, "issue number")
	trackCmd.Flags().StringVar(&trackRepo, "repo", "", "repository (owner/name)")
	trackCmd.Flags().StringVar(&trackURL, "url", "", "issue URL")
	trackCmd.MarkFlagRequired("title")
	rootCmd.AddCommand(trackCmd)

	untrackCmd := &cobra.Command{
		Use:   "untrack ID",
		Short: "Stop tracking an issue (recorded sessions are kept)",
		Args:  cobra.ExactArgs(1),
		RunE:  runUntrack,
	}
	rootCmd.AddCommand(untrackCmd)

	issuesCmd := &cobra.Command{
		Use:   "issues",
		Short: "List tracked issues",
		RunE:  runIssues,
	}
	rootCmd.AddCommand(issuesCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether a timer is running",
		RunE:  runStatus,
	}
	rootCmd.AddCommand(statusCmd)

	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded work sessions",
		RunE:  runSessions,
	}
	sessionsCmd.Flags().StringVar(&sessionsIssue, "issue", "", "only sessions of this issue")
	sessionsCmd.Flags().BoolVar(&sessionsActive, "active", false, "only open sessions")
	sessionsCmd.Flags().StringVar(&sessionsFormat, "format", "table", "output format: table, json or yaml")
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 50, "maximum number of sessions (0 for all)")
	rootCmd.AddCommand(sessionsCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	logPath := filepath.Join(os.TempDir(), "issuetimer.log")
	f, err := tea.LogToFile(logPath, "issuetimer")
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer f.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	e, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	quitGuard := &internal.QuitGuard{}
	g := guard.New(e.store, quitGuard)
	defer g.Close()

	m := internal.NewModel(internal.Deps{
		Controller: e.controller,
		Store:      e.store,
		Issues:     e.registry,
		Sessions:   e.sessions,
		Guard:      quitGuard,
	})
	p := tea.NewProgram(m, tea.WithAltScreen())
	quitGuard.Attach(p)
	e.notifier.Add(internal.NewNotifier(p))

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Send(internal.MsgTick{})
			}
		}
	}()

	_, runErr := p.Run()
	cancel()
	if err := <-done; err != nil {
		log.Printf("engine: %v", err)
	}
	if runErr != nil {
		return fmt.Errorf("running dashboard: %w", runErr)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	e, err := newEngine(ctx, notify.LogNotifier{})
	if err != nil {
		return err
	}
	defer e.Close()

	if servePort != 0 {
		e.cfg.Web.Port = servePort
	}

	server := web.NewServer(e.controller, e.registry, e.sessions)
	detach := server.Attach(e.store)
	defer detach()

	signals := &guard.SignalHost{}
	g := guard.New(e.store, signals, server)
	defer g.Close()

	httpServer := &http.Server{
		Addr:              e.cfg.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return e.Run(gctx) })
	group.Go(func() error {
		server.Hub().Run(gctx)
		return nil
	})
	group.Go(func() error {
		log.Printf("listening on http://%s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		sig := signals.Wait(gctx, sigs, func() {
			e.sync.Flush(gctx)
			log.Printf("a timer is running; its session stays open and resumes paused on restart")
		})
		if sig != nil {
			log.Printf("received %v, shutting down", sig)
		}
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

func runTrack(cmd *cobra.Command, args []string) error {
	st, err := openStorage(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	i, err := st.registry.Track(cmd.Context(), issue.Issue{
		ID:         args[0],
		Title:      trackTitle,
		Number:     trackNumber,
		Repository: trackRepo,
		URL:        trackURL,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Tracking %s\n", i.Label())
	return nil
}

func runUntrack(cmd *cobra.Command, args []string) error {
	st, err := openStorage(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.registry.Untrack(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Untracked %s\n", args[0])
	return nil
}

func runIssues(cmd *cobra.Command, args []string) error {
	st, err := openStorage(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	issues := st.registry.List()
	if len(issues) == 0 {
		fmt.Println("No tracked issues.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tISSUE\tTRACKED")
	for _, i := range issues {
		fmt.Fprintf(w, "%s\t%s\t%s\n", i.ID, i.Label(), humanize.Time(i.TrackedAt))
	}
	return w.Flush()
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := openStorage(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	var reader session.RunningReader = st.sessions
	if st.cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: st.cfg.Redis.Addr})
		defer rdb.Close()
		reader = lease.NewRedisProjector(rdb)
	}
	return writeStatus(cmd.Context(), os.Stdout, reader, st.registry, st.cfg.General.UserID)
}

func writeStatus(ctx context.Context, out io.Writer, reader session.RunningReader, issues issue.Source, userID string) error {
	id, running, err := reader.Running(ctx, userID)
	if err != nil {
		return fmt.Errorf("reading running timer: %w", err)
	}
	if !running || id == "" {
		_, err := fmt.Fprintln(out, "No timer running.")
		return err
	}
	name := id
	if i, err := issues.Lookup(id); err == nil {
		name = i.Label()
	}
	_, err = fmt.Fprintf(out, "Running: %s\n", name)
	return err
}

func runSessions(cmd *cobra.Command, args []string) error {
	st, err := openStorage(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	list, err := st.sessions.List(cmd.Context(), session.ListOptions{
		UserID:     st.cfg.General.UserID,
		IssueID:    sessionsIssue,
		ActiveOnly: sessionsActive,
		Limit:      sessionsLimit,
	})
	if err != nil {
		return err
	}
	return writeSessions(os.Stdout, list, sessionsFormat)
}

func writeSessions(out io.Writer, list []session.WorkSession, format string) error {
	if list == nil {
		list = []session.WorkSession{}
	}

	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	case "yaml":
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(list)
	case "table", "":
	default:
		return fmt.Errorf("unknown format %q (want table, json or yaml)", format)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tDURATION\tSTATE\tISSUE\tNOTES")
	for _, s := range list {
		state := "ended"
		switch {
		case s.IsActive && s.IsPaused:
			state = "paused"
		case s.IsActive:
			state = "active"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			humanize.Time(time.UnixMilli(s.StartTime)),
			(time.Duration(s.Duration) * time.Millisecond).String(),
			state,
			sessionLabel(s),
			s.Notes,
		)
	}
	return w.Flush()
}

func sessionLabel(s session.WorkSession) string {
	if s.IssueNumber != 0 {
		return fmt.Sprintf("%s#%d %s", s.IssueRepository, s.IssueNumber, s.IssueTitle)
	}
	if s.IssueTitle != "" {
		return s.IssueTitle
	}
	return s.IssueID
}
