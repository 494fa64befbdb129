package cmd

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/outervoid/god/harvest"
	"github.com/outervoid/god/indexer"
	"github.com/outervoid/god/query"
	"github.com/outervoid/god/refresh"
	"github.com/outervoid/god/render"
	"github.com/outervoid/god/store"
)

// app holds the components shared by the subcommands
type app struct {
	store *store.Store
	svc   *query.QueryService
}

func newApp() *app {
	st := store.New(cfg.IndexFile())
	idx := indexer.NewBM25Index(indexer.Params{
		K1:        cfg.Search.K1,
		B:         cfg.Search.B,
		NameBoost: cfg.Search.NameBoost,
		FlagBoost: cfg.Search.FlagBoost,
	}, appLog)
	return &app{
		store: st,
		svc:   query.NewQueryService(idx, st, cfg, appLog),
	}
}

// load reads the saved index; it fails with store.ErrNoIndex before the first `god index`
func (a *app) load(ctx context.Context) error {
	return a.svc.Reload(ctx)
}

// loadOrEmpty reads the saved index, starting empty when there is none
func (a *app) loadOrEmpty(ctx context.Context) error {
	snap, err := a.store.LoadOrEmpty()
	if err != nil {
		return err
	}
	return a.svc.Apply(ctx, snap)
}

func (a *app) refresher() *refresh.Refresher {
	runner := harvest.NewExecRunner(time.Duration(cfg.Harvest.TimeoutMs)*time.Millisecond, cfg.Harvest.MaxOutputBytes)
	h := harvest.NewHarvester(runner, harvest.OptionsFromConfig(cfg.Harvest), appLog)
	return refresh.New(cfg, a.store, h, a.svc, appLog)
}

func printer(cmd *cobra.Command) *render.Printer {
	return render.New(cmd.OutOrStdout(), noColor)
}

func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
