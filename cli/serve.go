package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joe-ervin05/litebrowse/api"
	"github.com/joe-ervin05/litebrowse/config"
	"github.com/joe-ervin05/litebrowse/inspect"
	"github.com/joe-ervin05/litebrowse/query"
	"github.com/joe-ervin05/litebrowse/sandbox"
	"github.com/joe-ervin05/litebrowse/tools"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [files...]",
		Short: "Serve database files over HTTP",
		Example: `  # Serve two databases on the default port
  litebrowse serve data.db other.db

  # Re-inspect files when they change, allow only 10 rows per page
  litebrowse serve data.db --watch --default-page-size 10`,
		RunE: runServe,
	}

	f := cmd.Flags()
	f.StringP("port", "p", "", "listen address (default :8001)")
	f.Bool("watch", false, "re-inspect databases when their files change")
	f.StringSlice("cors-origins", nil, "allowed CORS origins")
	f.Int("rate-limit", 0, "requests per minute per client IP (0 disables)")
	f.Int("request-timeout", 0, "request timeout in seconds")
	f.Int("default-page-size", 0, "rows per page")
	f.Int("max-returned-rows", 0, "maximum rows returned by any query")
	f.Int("sql-time-limit-ms", 0, "time limit for a single query")
	f.Int("default-facet-size", 0, "values returned per facet")
	f.Int("facet-time-limit-ms", 0, "time limit for a single facet")
	f.Int("facet-suggest-time-limit-ms", 0, "time limit for facet suggestions")
	f.Bool("allow-facet", true, "allow _facet=")
	f.Bool("suggest-facets", true, "suggest facets for table pages")
	f.Bool("allow-download", true, "allow downloading database files")
	f.Bool("allow-sql", true, "allow custom SQL with ?sql=")
	f.Int("default-cache-ttl", 0, "Cache-Control max-age in seconds for hashed URLs")
	f.Bool("hash-urls", true, "redirect database paths to include the file hash")
	f.Int("num-sql-threads", 0, "number of query workers")
	return cmd
}

// loadConfig merges configuration sources and takes database files from
// args when given.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, *config.Metadata, error) {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	if len(args) > 0 {
		cfg.Databases = args
	}
	if len(cfg.Databases) == 0 {
		return nil, nil, tools.ConfigurationErr("no database files given")
	}
	tools.SetLogLevel(cfg.LogLevel)

	md, err := config.LoadMetadata(cfg.MetadataPath)
	if err != nil {
		return nil, nil, tools.ConfigurationErr("%v", err)
	}
	return cfg, md, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, md, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in, err := inspect.New(cfg.Databases, inspect.Options{Driver: cfg.Driver, Metadata: md})
	if err != nil {
		return err
	}
	dbs, err := in.Inspect(ctx)
	if err != nil {
		return err
	}

	pool := sandbox.New(in, sandbox.Options{Workers: cfg.NumSQLThreads, TimeLimit: cfg.SQLTimeLimit()})
	defer pool.Close()
	in.OnRefresh(pool.Reset)

	engine := query.New(in, pool, query.Options{Config: cfg, Metadata: md})
	handler := api.New(api.Options{
		Config:    cfg,
		Metadata:  md,
		Inspector: in,
		Engine:    engine,
		Version:   Version,
	}).Handler()

	logStartupInfo(cmd.OutOrStdout(), cfg, dbs)

	eg, egctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Addr:    cfg.Port,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Watch {
		eg.Go(func() error {
			return in.Watch(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		tools.Logger.Info("shutting down server")
		// Give outstanding requests 10 seconds to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func logStartupInfo(w io.Writer, cfg *config.Config, dbs map[string]*inspect.Database) {
	fmt.Fprintln(w, "=== litebrowse ===")
	fmt.Fprintf(w, "Port:            %s\n", cfg.Port)
	fmt.Fprintf(w, "Databases:       %d\n", len(dbs))
	fmt.Fprintf(w, "SQL workers:     %d\n", cfg.NumSQLThreads)
	fmt.Fprintf(w, "Time limit:      %dms\n", cfg.SQLTimeLimitMs)
	fmt.Fprintf(w, "Pagination:      %d default, %d max\n", cfg.DefaultPageSize, cfg.MaxReturnedRows)

	if cfg.AllowSQL {
		fmt.Fprintln(w, "[INFO] Custom SQL enabled")
	} else {
		fmt.Fprintln(w, "[OK]   Custom SQL disabled")
	}
	if len(cfg.CORSOrigins) == 0 {
		fmt.Fprintln(w, "[INFO] CORS disabled (no origins configured)")
	} else {
		fmt.Fprintf(w, "[OK]   CORS origins: %v\n", cfg.CORSOrigins)
	}
	if cfg.Watch {
		fmt.Fprintln(w, "[OK]   Watching database files for changes")
	}
	fmt.Fprintln(w)
}
