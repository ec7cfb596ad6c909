// Command rtcore-server runs a small example service on top of the
// runtime: a handful of modeled operations registered on the dispatcher,
// served through gin with the standard logging stack. It exists to
// exercise the server-side wiring end to end; real services embed the
// server package with their own generated schemas.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/modelbridge/rtcore/config"
	"github.com/modelbridge/rtcore/internal/buildinfo"
	"github.com/modelbridge/rtcore/internal/logging"
	"github.com/modelbridge/rtcore/rtcontext"
	"github.com/modelbridge/rtcore/schema"
	"github.com/modelbridge/rtcore/server"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func init() {
	logging.Setup()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

// itemStore is the example service's in-memory state.
type itemStore struct {
	mu    sync.Mutex
	items map[string]string
}

func main() {
	fmt.Printf("rtcore-server %s (%s, built %s)\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)

	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	level := "info"
	if cfg.Debug {
		level = "debug"
	}
	if err := logging.ConfigureOutput(logging.OutputConfig{
		ToFile:         cfg.LoggingToFile,
		Dir:            cfg.LogDir,
		MaxTotalSizeMB: cfg.LogsMaxTotalSizeMB,
		Level:          level,
	}); err != nil {
		log.Fatalf("configure logging: %v", err)
	}

	dispatcher, err := buildDispatcher(cfg)
	if err != nil {
		log.Fatalf("build dispatcher: %v", err)
	}

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: dispatcher.Engine(),
	}

	go func() {
		log.Infof("listening on %s", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
}

// buildDispatcher assembles the example item service: put/get/list
// operations over an in-memory map, with the list operation paginated.
func buildDispatcher(cfg *config.Config) (*server.Dispatcher, error) {
	store := &itemStore{items: map[string]string{}}

	putInput, err := schema.NewBuilder("example#PutItemInput", schema.KindStructure).
		AddMember("id", "smithy.api#String").
		AddMember("value", "smithy.api#String").
		Build()
	if err != nil {
		return nil, err
	}
	putOutput, err := schema.NewBuilder("example#PutItemOutput", schema.KindStructure).
		AddMember("id", "smithy.api#String").
		Build()
	if err != nil {
		return nil, err
	}
	putOp, err := schema.NewBuilder("example#PutItem", schema.KindOperation).
		SetTrait(schema.TraitIdempotent, []byte(`{}`)).
		AsOperation(putInput, putOutput, nil, false).
		Build()
	if err != nil {
		return nil, err
	}

	getInput, err := schema.NewBuilder("example#GetItemInput", schema.KindStructure).
		AddMember("id", "smithy.api#String").
		Build()
	if err != nil {
		return nil, err
	}
	getOutput, err := schema.NewBuilder("example#GetItemOutput", schema.KindStructure).
		AddMember("id", "smithy.api#String").
		AddMember("value", "smithy.api#String").
		Build()
	if err != nil {
		return nil, err
	}
	getOp, err := schema.NewBuilder("example#GetItem", schema.KindOperation).
		SetTrait(schema.TraitReadonly, []byte(`{}`)).
		AsOperation(getInput, getOutput, nil, false).
		Build()
	if err != nil {
		return nil, err
	}

	notFound, err := schema.NewBuilder("example#ItemNotFound", schema.KindStructure).
		SetTrait(schema.TraitError, []byte(`"client"`)).
		SetTrait(schema.TraitHTTPError, []byte(`404`)).
		Build()
	if err != nil {
		return nil, err
	}

	listInput, err := schema.NewBuilder("example#ListItemsInput", schema.KindStructure).
		AddMember("nextToken", "smithy.api#String").
		AddMember("pageSize", "smithy.api#Integer").
		Build()
	if err != nil {
		return nil, err
	}
	listOutput, err := schema.NewBuilder("example#ListItemsOutput", schema.KindStructure).
		AddMember("items", "example#ItemList").
		AddMember("nextToken", "smithy.api#String").
		Build()
	if err != nil {
		return nil, err
	}
	listOp, err := schema.NewBuilder("example#ListItems", schema.KindOperation).
		SetTrait(schema.TraitReadonly, []byte(`{}`)).
		SetTrait(schema.TraitPaginated, []byte(`{"inputToken":"nextToken","outputToken":"nextToken","items":"items","pageSize":"pageSize"}`)).
		AsOperation(listInput, listOutput, nil, false).
		Build()
	if err != nil {
		return nil, err
	}

	return server.New(server.Config{
		AllowEmptyPathSegments: cfg.AllowEmptyPathSegments,
		StreamKeepAliveSeconds: cfg.Streaming.KeepAliveSeconds,
	},
		&server.Operation{
			Schema: putOp, Method: "PUT", Path: "/items/{id}",
			Handler: func(ctx context.Context, rc *rtcontext.Context, input map[string]any) (map[string]any, error) {
				id, _ := input["id"].(string)
				value, _ := input["value"].(string)
				store.mu.Lock()
				store.items[id] = value
				store.mu.Unlock()
				return map[string]any{"id": id}, nil
			},
		},
		&server.Operation{
			Schema: getOp, Method: "GET", Path: "/items/{id}",
			Handler: func(ctx context.Context, rc *rtcontext.Context, input map[string]any) (map[string]any, error) {
				id, _ := input["id"].(string)
				store.mu.Lock()
				value, ok := store.items[id]
				store.mu.Unlock()
				if !ok {
					return nil, server.NewModeledError(notFound, "no item "+id)
				}
				return map[string]any{"id": id, "value": value}, nil
			},
		},
		&server.Operation{
			Schema: listOp, Method: "GET", Path: "/items",
			Handler: func(ctx context.Context, rc *rtcontext.Context, input map[string]any) (map[string]any, error) {
				return store.listPage(input), nil
			},
		},
	)
}

// listPage serves one page of items, keyed alphabetically, honoring the
// pagination members of example#ListItems.
func (s *itemStore) listPage(input map[string]any) map[string]any {
	s.mu.Lock()
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)

	start := 0
	if token, _ := input["nextToken"].(string); token != "" {
		start = sort.SearchStrings(ids, token)
	}
	size := 50
	if v, ok := input["pageSize"].(float64); ok && v > 0 {
		size = int(v)
	}

	end := start + size
	if end > len(ids) {
		end = len(ids)
	}
	items := make([]any, 0, end-start)
	for _, id := range ids[start:end] {
		items = append(items, map[string]any{"id": id})
	}
	out := map[string]any{"items": items}
	if end < len(ids) {
		out["nextToken"] = ids[end]
	}
	return out
}
