// Package httpapi bundles the REST surface for the pledge services.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	app "github.com/R3E-Network/pledge_layer/internal/app"
	domain "github.com/R3E-Network/pledge_layer/internal/app/domain/pledge"
	domainrand "github.com/R3E-Network/pledge_layer/internal/app/domain/randomness"
	"github.com/R3E-Network/pledge_layer/internal/app/metrics"
	"github.com/R3E-Network/pledge_layer/internal/app/storage"
	"github.com/R3E-Network/pledge_layer/pkg/logger"
)

// Options tune the handler.
type Options struct {
	// OracleToken guards the fulfillment endpoint. Empty disables the
	// check (tests, local runs with the seeded source).
	OracleToken string
}

type handler struct {
	app  *app.Application
	opts Options
	log  *logger.Logger
}

// NewHandler returns a router exposing the core REST API.
func NewHandler(application *app.Application, opts Options, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{app: application, opts: opts, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.HandleFunc("/status", h.status).Methods(http.MethodGet)
	r.HandleFunc("/close", h.close).Methods(http.MethodPost)

	r.HandleFunc("/accounts", h.listAccounts).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{address}", h.getAccount).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{address}/eggs", h.listEggs).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{address}/eggs", h.generate).Methods(http.MethodPost)
	r.HandleFunc("/accounts/{address}/eggs/edit", h.edit).Methods(http.MethodPost)
	r.HandleFunc("/accounts/{address}/eggs/transfer", h.transfer).Methods(http.MethodPost)
	r.HandleFunc("/accounts/{address}/eggs/surrender", h.surrender).Methods(http.MethodPost)

	r.HandleFunc("/accounts/{address}/gas", h.gasBalance).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{address}/gas/deposits", h.gasDeposit).Methods(http.MethodPost)

	r.HandleFunc("/accounts/{address}/upkeep", h.checkUpkeep).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{address}/upkeep", h.performUpkeep).Methods(http.MethodPost)

	r.HandleFunc("/randomness/requests", h.listRequests).Methods(http.MethodGet)
	r.HandleFunc("/randomness/requests/{id}", h.getRequest).Methods(http.MethodGet)
	r.HandleFunc("/randomness/requests/{id}/fulfill", h.fulfill).Methods(http.MethodPost)

	r.HandleFunc("/events/ws", h.eventsWS).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.Use(instrument)
	return r
}

func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		metrics.InstrumentHandler(path, next).ServeHTTP(w, r)
	})
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"owner": h.app.Access.Owner(),
		"open":  h.app.Access.IsOpen(),
		"constants": map[string]interface{}{
			"surrender_threshold": domain.SurrenderThreshold,
			"edit_lock_count":     domain.EditLockCount,
			"edit_lock_seconds":   int64(domain.EditLockWindow.Seconds()),
			"answer_space":        domainrand.AnswerSpace,
			"confirmations":       domainrand.Confirmations,
			"word_count":          domainrand.WordCount,
			"lane":                h.app.Upkeep.Params().Lane,
			"subscription_id":     h.app.Upkeep.Params().SubscriptionID,
			"callback_gas_limit":  h.app.Upkeep.Params().CallbackGasLimit,
		},
	})
}

func (h *handler) close(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Actor string `json:"actor"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.app.Access.Close(payload.Actor); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"open": false})
}

func (h *handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accts, err := h.app.Registry.ListAccounts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, accts)
}

func (h *handler) getAccount(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	acct, err := h.app.Registry.Account(r.Context(), address)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	eggs, err := h.app.Registry.Eggs(r.Context(), address)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account":   acct,
		"egg_count": len(eggs),
	})
}

func (h *handler) listEggs(w http.ResponseWriter, r *http.Request) {
	eggs, err := h.app.Registry.Eggs(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if eggs == nil {
		eggs = []domain.Egg{}
	}
	writeJSON(w, http.StatusOK, eggs)
}

func (h *handler) generate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Wish   string `json:"wish"`
		Colour string `json:"colour"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	egg, err := h.app.Registry.Generate(r.Context(), mux.Vars(r)["address"], payload.Wish, payload.Colour)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, egg)
}

func (h *handler) edit(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Wish   string     `json:"wish"`
		Colour string     `json:"colour"`
		Egg    domain.Egg `json:"egg"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	egg, err := h.app.Registry.Edit(r.Context(), mux.Vars(r)["address"], payload.Wish, payload.Colour, payload.Egg)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, egg)
}

func (h *handler) transfer(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Receiver string     `json:"receiver"`
		Egg      domain.Egg `json:"egg"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	egg, err := h.app.Registry.Transfer(r.Context(), mux.Vars(r)["address"], payload.Receiver, payload.Egg)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, egg)
}

func (h *handler) surrender(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Payment int64      `json:"payment"`
		Egg     domain.Egg `json:"egg"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.app.Registry.Surrender(r.Context(), mux.Vars(r)["address"], payload.Payment, payload.Egg); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) gasBalance(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	amount, err := h.app.GasBank.Balance(r.Context(), address)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"address": address, "amount": amount})
}

func (h *handler) gasDeposit(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Amount    int64  `json:"amount"`
		Reference string `json:"reference"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	bal, err := h.app.GasBank.Deposit(r.Context(), mux.Vars(r)["address"], payload.Amount, payload.Reference)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, bal)
}

func (h *handler) checkUpkeep(w http.ResponseWriter, r *http.Request) {
	ready, err := h.app.Upkeep.CheckReady(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": ready})
}

func (h *handler) performUpkeep(w http.ResponseWriter, r *http.Request) {
	req, err := h.app.Upkeep.PerformUpkeep(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *handler) listRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.app.Randomness.Requests(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

func (h *handler) getRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.app.Randomness.Request(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *handler) fulfill(w http.ResponseWriter, r *http.Request) {
	if h.opts.OracleToken != "" {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token != h.opts.OracleToken {
			writeError(w, http.StatusForbidden, errors.New("oracle token required"))
			return
		}
	}

	var payload struct {
		Words []uint64 `json:"words"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	index, err := h.app.Randomness.Fulfill(r.Context(), mux.Vars(r)["id"], payload.Words)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"index": index})
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// writeDomainError maps the pledge error classes onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrState), errors.Is(err, domain.ErrCapacity):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, domain.ErrTransferFailed):
		writeError(w, http.StatusBadGateway, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
