package simserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/marchaven/roadband/internal/game/encounter"
	"github.com/marchaven/roadband/internal/game/party"
	"github.com/marchaven/roadband/internal/game/road"
	"github.com/marchaven/roadband/internal/storage/postgres"
)

// Pinger reports storage health. *postgres.Pool implements it.
type Pinger interface {
	Health(ctx context.Context) error
}

// API is the HTTP control surface: party management, march control, and
// combat queries. The websocket feed hangs off the same router.
type API struct {
	march  *March
	store  PartyStore
	roads  *road.Registry
	db     Pinger
	hub    *Hub
	logger *zap.Logger
}

// NewAPI wires the control surface. db and hub may be nil; the health
// endpoint then skips the storage check and /ws is not served.
func NewAPI(march *March, store PartyStore, roads *road.Registry, db Pinger, hub *Hub, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		march:  march,
		store:  store,
		roads:  roads,
		db:     db,
		hub:    hub,
		logger: logger,
	}
}

// Router builds the HTTP surface.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/parties", a.handleCreateParty).Methods(http.MethodPost)
	api.HandleFunc("/parties", a.handleListParties).Methods(http.MethodGet)
	api.HandleFunc("/parties/{name}", a.handleGetParty).Methods(http.MethodGet)
	api.HandleFunc("/parties/{name}", a.handleDeleteParty).Methods(http.MethodDelete)
	api.HandleFunc("/roads", a.handleListRoads).Methods(http.MethodGet)
	api.HandleFunc("/march", a.handleStartMarch).Methods(http.MethodPost)
	api.HandleFunc("/march", a.handleMarchStatus).Methods(http.MethodGet)
	api.HandleFunc("/march", a.handleAbandonMarch).Methods(http.MethodDelete)
	api.HandleFunc("/march/states", a.handleStates).Methods(http.MethodGet)
	api.HandleFunc("/march/threat/{enemyId}", a.handleThreat).Methods(http.MethodGet)
	api.HandleFunc("/march/log", a.handleCombatLog).Methods(http.MethodGet)
	api.HandleFunc("/march/save", a.handleSave).Methods(http.MethodPost)

	if a.hub != nil {
		r.HandleFunc("/ws", a.hub.ServeWS)
	}
	return r
}

type errorBody struct {
	Error string `json:"error"`
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("api: encode response", zap.Error(err))
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	a.writeJSON(w, status, errorBody{Error: err.Error()})
}

// statusFor maps domain errors onto HTTP status codes. Anything unmapped
// is an internal failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, postgres.ErrPartyNotFound),
		errors.Is(err, road.ErrUnknownRoad),
		errors.Is(err, ErrNoMarch),
		errors.Is(err, ErrNoParty),
		errors.Is(err, ErrNoEncounter),
		errors.Is(err, encounter.ErrUnknownCombatant):
		return http.StatusNotFound
	case errors.Is(err, postgres.ErrPartyNameTaken),
		errors.Is(err, ErrMarchActive):
		return http.StatusConflict
	case errors.Is(err, party.ErrUnknownArchetype):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if a.db != nil {
		if err := a.db.Health(r.Context()); err != nil {
			a.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  err.Error(),
			})
			return
		}
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createPartyRequest struct {
	Name   string     `json:"name"`
	Heroes []HeroSpec `json:"heroes"`
}

func (a *API) handleCreateParty(w http.ResponseWriter, r *http.Request) {
	var req createPartyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := a.march.CreateParty(r.Context(), req.Name, req.Heroes)
	if err != nil {
		a.writeError(w, statusForCreate(err), err)
		return
	}
	a.writeJSON(w, http.StatusCreated, rec)
}

// statusForCreate treats roster assembly failures (wrong member count,
// duplicate names, unknown archetypes) as client errors.
func statusForCreate(err error) int {
	if errors.Is(err, postgres.ErrPartyNameTaken) {
		return http.StatusConflict
	}
	return http.StatusBadRequest
}

func (a *API) handleListParties(w http.ResponseWriter, r *http.Request) {
	recs, err := a.store.List(r.Context())
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	a.writeJSON(w, http.StatusOK, recs)
}

type heroView struct {
	HeroID     string   `json:"heroId"`
	Name       string   `json:"name"`
	Archetype  string   `json:"archetype"`
	Level      int      `json:"level"`
	Experience int      `json:"experience"`
	Health     *float64 `json:"health,omitempty"`
	Resource   *float64 `json:"resource,omitempty"`
}

type partyView struct {
	postgres.PartyRecord
	Heroes []heroView `json:"heroes"`
}

func (a *API) handleGetParty(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	rec, err := a.store.GetByName(r.Context(), name)
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	specs, err := a.store.LoadMembers(r.Context(), rec.ID)
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	view := partyView{PartyRecord: rec, Heroes: make([]heroView, 0, len(specs))}
	for _, spec := range specs {
		view.Heroes = append(view.Heroes, heroView{
			HeroID:     spec.HeroID,
			Name:       spec.Name,
			Archetype:  spec.Archetype,
			Level:      spec.Level,
			Experience: spec.Experience,
			Health:     spec.Health,
			Resource:   spec.Resource,
		})
	}
	a.writeJSON(w, http.StatusOK, view)
}

func (a *API) handleDeleteParty(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := a.march.DeleteParty(r.Context(), name); err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type roadView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Level       int    `json:"level"`
	Waves       int    `json:"waves"`
	BonusXP     int    `json:"bonusXp,omitempty"`
}

func (a *API) handleListRoads(w http.ResponseWriter, r *http.Request) {
	views := make([]roadView, 0, a.roads.Len())
	for _, id := range a.roads.IDs() {
		tpl, err := a.roads.Get(id)
		if err != nil {
			continue
		}
		views = append(views, roadView{
			ID:          tpl.ID,
			Name:        tpl.Name,
			Description: tpl.Description,
			Level:       tpl.Level,
			Waves:       len(tpl.Encounters),
			BonusXP:     tpl.BonusXP,
		})
	}
	a.writeJSON(w, http.StatusOK, views)
}

type startMarchRequest struct {
	Party string `json:"party"`
	Road  string `json:"road"`
}

func (a *API) handleStartMarch(w http.ResponseWriter, r *http.Request) {
	var req startMarchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	status, err := a.march.StartRoad(r.Context(), req.Party, req.Road)
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	a.writeJSON(w, http.StatusOK, status)
}

func (a *API) handleMarchStatus(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.march.Status())
}

func (a *API) handleAbandonMarch(w http.ResponseWriter, r *http.Request) {
	if err := a.march.Abandon(r.Context()); err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleStates(w http.ResponseWriter, r *http.Request) {
	states := a.march.States()
	if states == nil {
		a.writeError(w, http.StatusNotFound, ErrNoParty)
		return
	}
	a.writeJSON(w, http.StatusOK, states)
}

func (a *API) handleThreat(w http.ResponseWriter, r *http.Request) {
	enemyID := mux.Vars(r)["enemyId"]
	entries, err := a.march.ThreatSnapshot(enemyID)
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	a.writeJSON(w, http.StatusOK, entries)
}

func (a *API) handleCombatLog(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.march.CombatLog())
}

func (a *API) handleSave(w http.ResponseWriter, r *http.Request) {
	deferred, err := a.march.RequestSave(r.Context())
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	if deferred {
		a.writeJSON(w, http.StatusAccepted, map[string]string{"status": "deferred"})
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}
