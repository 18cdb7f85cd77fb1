// Package cmd implements the venuecache command line: operators warm,
// inspect, revalidate and clear the entity cache of a session, or run it as
// a long-lived process with the configured sinks.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/venueops/entitycache/cache"
	"github.com/venueops/entitycache/config"
	"github.com/venueops/entitycache/cron"
	"github.com/venueops/entitycache/logger"
	"github.com/venueops/entitycache/remote"
	"github.com/venueops/entitycache/store"
	"github.com/venueops/entitycache/venue"
	"go.uber.org/zap"
)

// Version is set at build time
var Version = "dev"

// rootFlags are the persistent flags shared by every command
type rootFlags struct {
	configPath string
	sessionID  string
	locationID int64
	userID     int64
	json       bool
}

func (f *rootFlags) filters() cache.FilterSet {
	return cache.FilterSet{LocationID: f.locationID, UserID: f.userID}
}

// Execute runs the CLI with the given arguments and IO writers
func Execute(args []string, stdout, stderr io.Writer) int {
	return ExecuteContext(context.Background(), args, stdout, stderr)
}

// ExecuteContext is Execute with a context that cancels long-running commands
func ExecuteContext(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewVenueCache(stdout)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}

// NewVenueCache creates the root command
func NewVenueCache(stdout io.Writer) *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "venuecache",
		Short:         "Inspect and maintain the venue entity cache",
		Long:          "venuecache warms, lists, revalidates and clears the cached admin collections of a session.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "venuecache.yaml", "Path to the configuration file")
	cmd.PersistentFlags().StringVarP(&flags.sessionID, "session", "s", "cli", "Session id, the store namespace prefix")
	cmd.PersistentFlags().Int64Var(&flags.locationID, "location", 0, "Location scope for backend requests")
	cmd.PersistentFlags().Int64Var(&flags.userID, "user", 0, "Staff member scope for backend requests")
	cmd.PersistentFlags().BoolVar(&flags.json, "json", false, "Output in JSON format")

	cmd.AddCommand(
		newWarmupCmd(stdout, flags),
		newListCmd(stdout, flags),
		newGetCmd(stdout, flags),
		newStaleCmd(stdout, flags),
		newClearCmd(stdout, flags),
		newRevalidateCmd(stdout, flags),
		newServeCmd(stdout, flags),
	)
	return cmd
}

// app is everything a command needs, opened from the configuration file
type app struct {
	cfg     *config.Config
	log     logger.Logger
	store   store.Store
	client  *remote.Client
	session *venue.Session
}

func openApp(flags *rootFlags) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}
	if a.store, err = cfg.Store.Open(log); err != nil {
		return nil, err
	}
	if a.client, err = remote.NewClient(log, cfg.Remote); err != nil {
		_ = a.Close()
		return nil, err
	}
	sources, err := venue.HTTPSources(a.client)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if a.session, err = venue.NewSession(log, flags.sessionID, cfg.Venue, a.store, sources); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// Close waits for background refreshes and releases the connections
func (a *app) Close() error {
	if a.session != nil {
		a.session.Wait()
	}
	var errs []error
	if a.client != nil {
		errs = append(errs, a.client.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	_ = a.log.Sync()
	return errors.Join(errs...)
}

// withApp opens the app for the duration of fn
func withApp(flags *rootFlags, fn func(a *app) error) error {
	a, err := openApp(flags)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return fn(a)
}

func newWarmupCmd(stdout io.Writer, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "warmup",
		Short: "Fill every empty collection from the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				if err := a.session.WarmupAll(cmd.Context(), flags.filters()); err != nil {
					return err
				}
				return printStatus(cmd.Context(), stdout, a, flags.json)
			})
		},
	}
}

func newListCmd(stdout io.Writer, flags *rootFlags) *cobra.Command {
	var (
		criteria cache.Criteria
		active   string
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "list <collection>",
		Short: "List a collection, refreshing it when missing or stale",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if active != "" {
				b, err := strconv.ParseBool(active)
				if err != nil {
					return fmt.Errorf("invalid --active %q: %w", active, err)
				}
				criteria.Active = &b
			}
			return withApp(flags, func(a *app) error {
				c, err := lookup(a.session, args[0])
				if err != nil {
					return err
				}
				items, err := c.list(cmd.Context(), flags.filters(), criteria, force)
				if errors.Is(err, cache.ErrRefresh) {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Warning: showing cached data:", err)
				} else if err != nil {
					return err
				}
				if flags.json {
					return printJSON(stdout, items)
				}
				tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
				for _, item := range items {
					_, _ = fmt.Fprintf(tw, "%d\t%s\n", entityID(item), label(item))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().Int64Var(&criteria.LocationID, "filter-location", 0, "Keep items of this location")
	cmd.Flags().Int64Var(&criteria.UserID, "filter-user", 0, "Keep items of this staff member")
	cmd.Flags().StringVar(&active, "active", "", "Keep active (true) or inactive (false) items")
	cmd.Flags().StringVar(&criteria.Search, "search", "", "Keep items with a field containing this text")
	cmd.Flags().StringVar(&criteria.Expr, "expr", "", `Keep items matching an expression, e.g. 'capacity >= 20'`)
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Refresh from the backend before listing")
	return cmd
}

func newGetCmd(stdout io.Writer, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <collection> <id>",
		Short: "Show one cached item without contacting the backend",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[1])
			}
			return withApp(flags, func(a *app) error {
				c, err := lookup(a.session, args[0])
				if err != nil {
					return err
				}
				item, ok := c.get(cmd.Context(), id)
				if !ok {
					return fmt.Errorf("%s %d is not cached", args[0], id)
				}
				return printJSON(stdout, item)
			})
		},
	}
}

func newStaleCmd(stdout io.Writer, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stale",
		Short: "Show the age of every collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				return printStatus(cmd.Context(), stdout, a, flags.json)
			})
		},
	}
}

func newClearCmd(stdout io.Writer, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached collection of the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				if err := a.session.ClearAll(cmd.Context()); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(stdout, "cleared session %s\n", a.session.ID)
				return nil
			})
		},
	}
}

func newRevalidateCmd(stdout io.Writer, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "revalidate",
		Short: "Refresh the stale collections once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				rv, err := cron.NewRevalidator(a.log, a.cfg.Revalidate, a.session.Syncers(), flags.filters())
				if err != nil {
					return err
				}
				defer rv.Close()
				if err := rv.Run(cmd.Context(), cron.RevalidateChain); err != nil {
					return err
				}
				return printStatus(cmd.Context(), stdout, a, flags.json)
			})
		},
	}
}

// collectionStatus is one line of the stale and warmup output
type collectionStatus struct {
	Name      string    `json:"name"`
	Cached    bool      `json:"cached"`
	Stale     bool      `json:"stale"`
	Items     int       `json:"items"`
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

func printStatus(ctx context.Context, w io.Writer, a *app, asJSON bool) error {
	all := collections(a.session)
	statuses := make([]collectionStatus, 0, len(venue.Collections))
	for _, name := range venue.Collections {
		syncer, _ := a.session.Syncer(name)
		st := collectionStatus{Name: name, Stale: syncer.IsStale(ctx, 0)}
		if meta, ok := all[name].metadata(ctx); ok {
			st.Cached = true
			st.Items = meta.TotalRecords
			st.Version = meta.Version
			st.UpdatedAt = meta.LastUpdatedAt
		}
		statuses = append(statuses, st)
	}

	if asJSON {
		return printJSON(w, statuses)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "COLLECTION\tSTATE\tITEMS\tVERSION\tUPDATED")
	for _, st := range statuses {
		state, updated := "fresh", "-"
		switch {
		case !st.Cached:
			state = "empty"
		case st.Stale:
			state = "stale"
		}
		if !st.UpdatedAt.IsZero() {
			updated = st.UpdatedAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", st.Name, state, st.Items, st.Version, updated)
	}
	return tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// logErr logs a failed shutdown step
func logErr(log logger.Logger, msg string, err error) {
	if err != nil {
		log.Warn(msg, zap.Error(err))
	}
}
