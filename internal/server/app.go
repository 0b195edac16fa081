// Package server initializes and runs the application server: database and
// migrations, per-group code publishers, the event bus, the websocket hub
// and the HTTP endpoint, with graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/teamcodes/internal/logging"
	"github.com/dmitrijs2005/teamcodes/internal/server/config"
	"github.com/dmitrijs2005/teamcodes/internal/server/httpapi"
	"github.com/dmitrijs2005/teamcodes/internal/server/hub"
	"github.com/dmitrijs2005/teamcodes/internal/server/notify"
	"github.com/dmitrijs2005/teamcodes/internal/server/publisher"
	"github.com/dmitrijs2005/teamcodes/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/teamcodes/internal/server/services"
	"github.com/dmitrijs2005/teamcodes/internal/server/sharedview"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config *config.Config
	logger logging.Logger

	db          *sql.DB
	repomanager repomanager.RepositoryManager
	bus         notify.Bus

	groupService *services.GroupService
	codeService  *services.CodeService
	linkService  *services.LinkService
	userService  *services.UserService

	publishers *publisher.Manager
	viewerHub  *hub.Hub
	view       *sharedview.Controller
}

func NewApp(c *config.Config) (*App, error) {
	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()

	var bus notify.Bus
	if c.RedisAddr != "" {
		bus, err = notify.NewRedisBus(c.RedisAddr, logger)
		if err != nil {
			return nil, fmt.Errorf("redis init error: %w", err)
		}
	} else {
		bus = notify.NewMemoryBus()
	}

	gs := services.NewGroupService(db, rm)
	cs := services.NewCodeService(db, rm, bus)
	ls := services.NewLinkService(db, rm, bus)
	us := services.NewUserService(db, rm, c)

	return &App{
		config:       c,
		logger:       logger,
		db:           db,
		repomanager:  rm,
		bus:          bus,
		groupService: gs,
		codeService:  cs,
		linkService:  ls,
		userService:  us,
		publishers:   publisher.NewManager(cs, logger),
		viewerHub:    hub.NewHub(logger),
		view:         sharedview.NewController(ls, cs, gs, bus, logger, c.LinkRecheckInterval),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// startPublishers resumes code generation for every group already in the
// database. New groups are added by the create-group handler.
func (app *App) startPublishers(ctx context.Context) error {
	groups, err := app.groupService.List(ctx)
	if err != nil {
		return err
	}
	for _, g := range groups {
		app.publishers.Add(ctx, g.ID, g.Secret)
	}
	app.logger.Info(ctx, "publishers started", "groups", len(groups))
	return nil
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	h := httpapi.NewHandler(app.groupService, app.linkService, app.codeService,
		app.userService, app.publishers, app.view, app.viewerHub, app.logger)

	srv := &http.Server{
		Addr:    app.config.EndpointAddrHTTP,
		Handler: httpapi.NewRouter(h, app.logger),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "http shutdown error", "error", err)
		}
	}()

	app.logger.Info(ctx, "http server listening", "addr", app.config.EndpointAddrHTTP)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app...")

	app.initSignalHandler(cancelFunc)

	if err := app.repomanager.RunMigrations(ctx, app.db); err != nil {
		app.logger.Error(ctx, "migration error", "error", err)
		return
	}

	if err := app.startPublishers(ctx); err != nil {
		app.logger.Error(ctx, "publisher startup error", "error", err)
		return
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.viewerHub.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.publishers.StopAll()
	if err := app.bus.Close(); err != nil {
		app.logger.Error(ctx, "bus close error", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}

	app.logger.Info(ctx, "app stopped")
}
