package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/vstarodubtsev/cifsd/stores"
)

// Stats is the server counters snapshot returned by GET /api/stats.
type Stats struct {
	Uptime         time.Duration `json:"uptime"`
	Connections    int           `json:"connections"`
	Sessions       uint32        `json:"sessions"`
	OpenFiles      uint32        `json:"openFiles"`
	PasswordErrors uint32        `json:"passwordErrors"`
	BytesSent      uint64        `json:"bytesSent"`
	BytesReceived  uint64        `json:"bytesReceived"`
}

// ConnectionInfo describes one client connection.
type ConnectionInfo struct {
	Client   string    `json:"client"`
	Since    time.Time `json:"since"`
	Sessions int       `json:"sessions"`
}

// Backend is the server surface the control API drives.
type Backend interface {
	Stats() Stats
	Connections() []ConnectionInfo
	Config() stores.Config

	Shares() []stores.Share
	RegisterShare(sh stores.Share) error
	UnregisterShare(name string) (bool, error)

	Accounts() []string
	AddAccount(username, password string) error
	RemoveAccount(username string) (bool, error)

	SetPolicy(ar stores.AccessRights) error
	RemovePolicy(shareName, username string) error

	Bans() []string
	Ban(host string) error
	Unban(host string) error

	SetCaseless(on bool)
	SetDebug(on bool)
}

// API is the HTTP control surface.
type API struct {
	router  *httprouter.Router
	backend Backend
}

// NewAPI returns a handler routing the control endpoints to the backend.
func NewAPI(b Backend) *API {
	api := &API{
		router:  httprouter.New(),
		backend: b,
	}

	api.router.GET("/api/stats", api.getStats)
	api.router.GET("/api/connections", api.getConnections)
	api.router.GET("/api/config", api.getConfig)

	api.router.GET("/api/shares", api.getShares)
	api.router.PUT("/api/shares/:name", api.putShare)
	api.router.DELETE("/api/shares/:name", api.deleteShare)

	api.router.GET("/api/accounts", api.getAccounts)
	api.router.PUT("/api/accounts/:name", api.putAccount)
	api.router.DELETE("/api/accounts/:name", api.deleteAccount)

	api.router.PUT("/api/policies/:share/:name", api.putPolicy)
	api.router.DELETE("/api/policies/:share/:name", api.deletePolicy)

	api.router.GET("/api/bans", api.getBans)
	api.router.PUT("/api/bans/:host", api.putBan)
	api.router.DELETE("/api/bans/:host", api.deleteBan)

	api.router.POST("/api/settings/caseless", api.postCaseless)
	api.router.POST("/api/settings/debug", api.postDebug)

	return api
}

// ServeHTTP implements http.Handler.
func (api *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	api.router.ServeHTTP(w, r)
}

// BasicAuth wraps an http.Handler to force a basic auth with a password.
func BasicAuth(password string) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if _, p, ok := req.BasicAuth(); !ok || p != password {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			h.ServeHTTP(w, req)
		})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (api *API) getStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, api.backend.Stats())
}

func (api *API) getConnections(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, api.backend.Connections())
}

func (api *API) getConfig(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, api.backend.Config())
}

func (api *API) getShares(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, api.backend.Shares())
}

func (api *API) putShare(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var sh stores.Share
	if err := json.NewDecoder(r.Body).Decode(&sh); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sh.Name = ps.ByName("name")
	if err := api.backend.RegisterShare(sh); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (api *API) deleteShare(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	found, err := api.backend.UnregisterShare(ps.ByName("name"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "no such share", http.StatusNotFound)
	}
}

func (api *API) getAccounts(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, api.backend.Accounts())
}

func (api *API) putAccount(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := api.backend.AddAccount(ps.ByName("name"), body.Password); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (api *API) deleteAccount(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	found, err := api.backend.RemoveAccount(ps.ByName("name"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "no such account", http.StatusNotFound)
	}
}

func (api *API) putPolicy(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var body struct {
		Read   bool `json:"read"`
		Write  bool `json:"write"`
		Delete bool `json:"delete"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ar := stores.AccessRights{
		ShareName:    ps.ByName("share"),
		Username:     ps.ByName("name"),
		ReadAccess:   body.Read,
		WriteAccess:  body.Write,
		DeleteAccess: body.Delete,
	}
	if err := api.backend.SetPolicy(ar); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (api *API) deletePolicy(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := api.backend.RemovePolicy(ps.ByName("share"), ps.ByName("name")); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (api *API) getBans(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, api.backend.Bans())
}

func (api *API) putBan(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := api.backend.Ban(ps.ByName("host")); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (api *API) deleteBan(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := api.backend.Unban(ps.ByName("host")); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func decodeSwitch(r *http.Request) (bool, error) {
	var body struct {
		On bool `json:"on"`
	}
	err := json.NewDecoder(r.Body).Decode(&body)
	return body.On, err
}

func (api *API) postCaseless(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	on, err := decodeSwitch(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	api.backend.SetCaseless(on)
}

func (api *API) postDebug(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	on, err := decodeSwitch(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	api.backend.SetDebug(on)
}
