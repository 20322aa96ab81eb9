// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/quarrylabs/rollclient/app/services/client/handlers/v1/public"
	"github.com/quarrylabs/rollclient/foundation/events"
	"github.com/quarrylabs/rollclient/foundation/rollup/state"
	"github.com/quarrylabs/rollclient/foundation/web"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
	Evts  *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		Evts:  cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/genesis", pbl.Genesis)
	app.Handle(http.MethodGet, version, "/chain/tip", pbl.Tip)
	app.Handle(http.MethodGet, version, "/chain/header/:block", pbl.Header)
	app.Handle(http.MethodGet, version, "/chain/sync", pbl.Sync)
	app.Handle(http.MethodGet, version, "/events", pbl.Events)

	app.Handle(http.MethodGet, version, "/accounts/list", pbl.Accounts)
	app.Handle(http.MethodGet, version, "/accounts/list/:id", pbl.Accounts)
	app.Handle(http.MethodGet, version, "/accounts/history/:id", pbl.AccountHistory)
	app.Handle(http.MethodPost, version, "/accounts/new", pbl.NewAccount)
	app.Handle(http.MethodPost, version, "/accounts/import", pbl.ImportAccount)

	app.Handle(http.MethodGet, version, "/notes/list", pbl.Notes)
	app.Handle(http.MethodGet, version, "/notes/list/:id", pbl.Notes)
	app.Handle(http.MethodPost, version, "/notes/import", pbl.ImportNote)

	app.Handle(http.MethodGet, version, "/tx/list", pbl.Transactions)
	app.Handle(http.MethodPost, version, "/tx/record", pbl.RecordTransaction)
	app.Handle(http.MethodPost, version, "/tx/submit", pbl.SubmitTransaction)
	app.Handle(http.MethodPost, version, "/tx/discard/:id", pbl.DiscardTransaction)

	app.Handle(http.MethodPost, version, "/snapshot", pbl.Snapshot)
	app.Handle(http.MethodGet, version, "/tags/list", pbl.Tags)
}
