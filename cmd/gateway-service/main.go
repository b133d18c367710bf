// cmd/gateway-service/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tandem/internal/crmops"
	"tandem/internal/memory"
	"tandem/internal/orgs"
	"tandem/pkg/audit"
	"tandem/pkg/authn"
	"tandem/pkg/config"
	"tandem/pkg/credentials"
	"tandem/pkg/crm"
	"tandem/pkg/db"
	"tandem/pkg/directory"
	"tandem/pkg/guard"
	"tandem/pkg/logger"
	"tandem/pkg/memgraph"
	"tandem/pkg/middleware"
	"tandem/pkg/openapi"
	"tandem/pkg/operation"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)

	pool := db.MustConnect(cfg, log)
	rdb := db.MustRedis(cfg, log)

	var dir directory.Service
	switch {
	case cfg.DirectoryBaseURL != "":
		dir = directory.NewRemote(cfg.DirectoryBaseURL, cfg.DirectoryAPIKey, log)
	case cfg.DirectorySeed != "":
		seeded, err := directory.NewMemoryFromSeed(cfg.DirectorySeed, log)
		if err != nil {
			log.Fatalw("directory seed", "err", err)
		}
		dir = seeded
	default:
		dir = directory.NewMemory(log)
	}

	// Process-wide default downstream clients, built once and read-only
	// afterwards. Org-specific overrides are resolved per request.
	var defaultMemory *memgraph.Client
	if cfg.MemoryBaseURL != "" {
		defaultMemory = memgraph.New(cfg.MemoryBaseURL, cfg.MemoryAPIKey)
	}
	var defaultCRM *crm.Client
	if cfg.CRMBaseURL != "" {
		defaultCRM = crm.New(cfg.CRMBaseURL, cfg.CRMAPIKey)
	}

	roles := guard.RoleGuard{Dir: dir}
	memResolver := credentials.DirectoryMemory{Dir: dir, Default: defaultMemory}
	crmResolver := credentials.DirectoryCRM{Dir: dir, Default: defaultCRM}

	reg := operation.NewRegistry()
	reg.Register(orgs.Definitions(orgs.Deps{Dir: dir, Roles: roles})...)
	reg.Register(memory.Definitions(memory.Deps{Memory: memResolver, Roles: roles})...)
	reg.Register(crmops.Definitions(crmops.Deps{CRM: crmResolver, Roles: roles})...)
	log.Infow("operations registered", "count", len(reg.All()))

	var rec *audit.Recorder
	if pool != nil {
		if err := audit.EnsureSchema(context.Background(), pool); err != nil {
			log.Fatalw("audit schema", "err", err)
		}
		rec = audit.NewRecorder(pool, log)
	}

	doc := openapi.NewRegistry()
	for _, d := range reg.All() {
		doc.Register(openapi.Operation{
			Method:      d.Method,
			Path:        d.Path,
			OperationID: d.Name,
			Summary:     d.Summary,
			Scopes:      d.Scopes,
			Input:       d.InputSchema,
		})
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(log))
	r.Use(middleware.DebugWriteHeader(log))
	r.Use(middleware.CORS())
	r.Use(middleware.Tracing())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("ok")) })
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/.well-known/openapi.json", doc.ServeHandler("tandem-gateway", "v1", cfg.BasePublicURL))

	r.Group(func(pr chi.Router) {
		pr.Use(authn.Verify(cfg, rdb))
		operation.MountRPC(pr, reg, rec)
		operation.MountTools(pr, reg, rec)
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.Infow("gateway-service listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	fmt.Println("gateway-service stopped")
}
