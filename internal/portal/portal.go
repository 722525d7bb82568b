// Package portal serves the configuration endpoints used by the captive
// portal page: the current configuration with the visible networks, the
// form that saves new credentials, and the pending user code.
package portal

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-logr/logr"
	"github.com/gorilla/schema"

	"github.com/asnowfix/fermion/pkg/wm/config"
)

// Obfuscated stands for a stored password, in both directions.
const Obfuscated = "*******"

type ConfigStore interface {
	Provisioned() bool
	Record() config.Configuration
	SetCredentials(creds [config.NumCredentials]config.Credential, boardName string) error
}

// Device is the state machine side of the portal.
type Device interface {
	ConfigSaved()
	UserCode() string
	VerificationURI() string
}

type Handler struct {
	log      logr.Logger
	store    ConfigStore
	device   Device
	hostname string
	// Networks lists the SSIDs offered in the form.
	Networks func() []string

	decoder *schema.Decoder
	mux     *http.ServeMux
}

func NewHandler(log logr.Logger, store ConfigStore, device Device, hostname string) *Handler {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	h := &Handler{
		log:      log.WithName("portal"),
		store:    store,
		device:   device,
		hostname: hostname,
		Networks: func() []string { return nil },
		decoder:  decoder,
		mux:      http.NewServeMux(),
	}
	h.mux.HandleFunc("GET /config", h.getConfig)
	h.mux.HandleFunc("POST /config", h.postConfig)
	h.mux.HandleFunc("GET /code", h.getCode)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.log.V(1).Info("Request", "method", r.Method, "url", r.URL.String(), "remote", r.RemoteAddr)
	h.mux.ServeHTTP(w, r)
}

type configView struct {
	WiFis    []string `json:"wifis"`
	ID       *string  `json:"id,omitempty"`
	PW       *string  `json:"pw,omitempty"`
	ID1      *string  `json:"id1,omitempty"`
	PW1      *string  `json:"pw1,omitempty"`
	Name     *string  `json:"nm,omitempty"`
	Hostname string   `json:"host"`
}

func obfuscate(pw string) *string {
	if pw == "" {
		return &pw
	}
	s := Obfuscated
	return &s
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "-1")
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	view := configView{WiFis: h.Networks(), Hostname: h.hostname}
	if view.WiFis == nil {
		view.WiFis = []string{}
	}
	if h.store.Provisioned() {
		c := h.store.Record()
		view.ID = &c.WiFi[0].SSID
		view.PW = obfuscate(c.WiFi[0].Password)
		view.ID1 = &c.WiFi[1].SSID
		view.PW1 = obfuscate(c.WiFi[1].Password)
		view.Name = &c.BoardName
	}
	writeJSON(w, view)
}

type configForm struct {
	ID   string `schema:"id"`
	PW   string `schema:"pw"`
	ID1  string `schema:"id1"`
	PW1  string `schema:"pw1"`
	Name string `schema:"nm"`
}

func (h *Handler) postConfig(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var form configForm
	if err := h.decoder.Decode(&form, r.PostForm); err != nil {
		h.log.Info("Bad configuration form", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if form.ID == "" && form.ID1 == "" {
		http.Error(w, "no SSID", http.StatusBadRequest)
		return
	}

	old := h.store.Record()
	keep := func(pw string, i int) string {
		if pw == Obfuscated {
			return old.WiFi[i].Password
		}
		return pw
	}
	creds := [config.NumCredentials]config.Credential{
		{SSID: form.ID, Password: keep(form.PW, 0)},
		{SSID: form.ID1, Password: keep(form.PW1, 1)},
	}
	if err := h.store.SetCredentials(creds, form.Name); err != nil {
		if errors.Is(err, config.ErrTooLong) {
			h.log.Info("Rejected configuration form", "error", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.log.Error(err, "Saving configuration")
		http.Error(w, "saving configuration failed", http.StatusInternalServerError)
		return
	}
	h.log.Info("Configuration updated", "ssid", form.ID, "ssid1", form.ID1, "name", form.Name)
	h.device.ConfigSaved()
	w.WriteHeader(http.StatusNoContent)
}

type codeView struct {
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
}

func (h *Handler) getCode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, codeView{UserCode: h.device.UserCode(), VerificationURI: h.device.VerificationURI()})
}
