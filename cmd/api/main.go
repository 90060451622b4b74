package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"taskforge.org/internal/cache"
	"taskforge.org/internal/httpapi"
	"taskforge.org/internal/identity"
	"taskforge.org/internal/jobs"
	"taskforge.org/internal/notify"
	"taskforge.org/internal/obs"
	"taskforge.org/internal/tracker"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Without a DSN everything runs on in-memory stores; useful for local
	// development and the smoke environment.
	var db *sql.DB
	if dsn := os.Getenv("TASKFORGE_PG_DSN"); dsn != "" {
		var err error
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	shared := cache.New(cache.DefaultCapacity)

	dispatcher := notify.NewDispatcher(4, 256)
	notifier := notify.NewNotifier(dispatcher, notify.LogSender{})

	var (
		idStore      identity.Store
		projectStore tracker.ProjectStore
		taskStore    tracker.TaskStore
		commentStore tracker.CommentStore
	)
	if db != nil {
		idStore = identity.NewPGStore(db)
		projectStore = tracker.NewPGProjectStore(db)
		taskStore = tracker.NewPGTaskStore(db)
		commentStore = tracker.NewPGCommentStore(db)
	} else {
		log.Println("TASKFORGE_PG_DSN not set, using in-memory stores")
		idStore = identity.NewInMemory()
		mem := tracker.NewInMemory()
		projectStore = mem
		taskStore = mem.Tasks()
		commentStore = mem.Comments()
	}

	idOpts := []identity.Option{
		identity.WithCache(shared),
		identity.WithNotifier(notifier),
	}
	if secret := os.Getenv("TASKFORGE_AUTH_SECRET"); secret != "" {
		idOpts = append(idOpts,
			identity.WithTokenSecret(secret),
			identity.WithIssuer("taskforge"),
		)
	} else {
		log.Println("TASKFORGE_AUTH_SECRET not set, signed tokens disabled")
	}
	idSvc := identity.NewService(idStore, idOpts...)

	trkSvc := tracker.NewService(projectStore, taskStore, commentStore,
		tracker.WithCache(shared),
		tracker.WithNotifier(notifier),
		tracker.WithIdentityDirectory(idSvc),
	)

	runner := jobs.NewRunner(taskStore, notifier, shared)

	api := httpapi.New(idSvc, trkSvc, httpapi.ReadyProbe{DB: db}, version)

	handler := httpapi.SecurityHeaders(
		httpapi.CORS(
			httpapi.RateLimit(
				httpapi.MaxBodyBytes(api.Handler(), 1<<20),
				50, 25,
			),
		),
	)

	srv := &http.Server{
		Addr:              ":8080",
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	bg, stopBg := context.WithCancel(context.Background())
	dispatcher.Start(bg)
	go runner.Run(bg)

	log.Printf("Starting taskforge-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	stopBg()
	dispatcher.Stop()
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
