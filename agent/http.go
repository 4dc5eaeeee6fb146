package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/formpilot/config"
	"github.com/hazyhaar/formpilot/kit"
)

const maxBody = 1 << 20

// Handler returns the HTTP API.
func (a *Agent) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		kit.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/profile", kit.HTTPHandler(a.profileEndpoint(), nil, statusOf))
	r.Put("/profile", kit.HTTPHandler(a.profileEndpoint(), rawBody, statusOf))
	r.Get("/settings", kit.HTTPHandler(a.settingsEndpoint(), nil, statusOf))
	r.Put("/settings", kit.HTTPHandler(a.settingsEndpoint(), rawBody, statusOf))

	r.Post("/open", kit.HTTPHandler(a.openEndpoint(), kit.DecodeBody[OpenRequest](), statusOf))
	r.Post("/fill", kit.HTTPHandler(a.fillEndpoint(), kit.DecodeBody[FillRequest](), statusOf))
	r.Post("/match", kit.HTTPHandler(a.matchEndpoint(), kit.DecodeBody[MatchRequest](), statusOf))

	r.Get("/skipped", kit.HTTPHandler(a.skippedEndpoint(), nil, statusOf))
	r.Post("/train", kit.HTTPHandler(a.trainEndpoint(), nil, statusOf))
	r.Get("/mappings", kit.HTTPHandler(a.mappingsEndpoint(), nil, statusOf))
	r.Delete("/mappings/{site}/{identity}", kit.HTTPHandler(a.mappingsEndpoint(), func(r *http.Request) (any, error) {
		return &MappingRequest{Site: chi.URLParam(r, "site"), Identity: chi.URLParam(r, "identity")}, nil
	}, statusOf))

	r.Post("/recording/start", kit.HTTPHandler(a.recordStartEndpoint(), kit.DecodeBody[RecordStartRequest](), statusOf))
	r.Post("/recording/stop", kit.HTTPHandler(a.recordStopEndpoint(), nil, statusOf))
	r.Get("/recording", func(w http.ResponseWriter, _ *http.Request) {
		id, name, ok := a.engine.Recorder().Session()
		kit.WriteJSON(w, http.StatusOK, map[string]any{"recording": ok, "id": id, "name": name})
	})

	r.Route("/macros", func(r chi.Router) {
		r.Get("/", kit.HTTPHandler(a.macrosEndpoint(), macrosAction("list"), statusOf))
		r.Delete("/{name}", kit.HTTPHandler(a.macrosEndpoint(), macrosAction("delete"), statusOf))
		r.Post("/{name}/rename", kit.HTTPHandler(a.macrosEndpoint(), macrosAction("rename"), statusOf))
		r.Get("/{name}/runs", kit.HTTPHandler(a.macrosEndpoint(), macrosAction("runs"), statusOf))
		r.Post("/{name}/play", kit.HTTPHandler(a.playEndpoint(), func(r *http.Request) (any, error) {
			req, err := kit.DecodeBody[PlayRequest]()(r)
			if err != nil {
				return nil, err
			}
			p := req.(*PlayRequest)
			p.Name = chi.URLParam(r, "name")
			return p, nil
		}, statusOf))
	})

	return r
}

// rawBody passes the body through untouched so the strict profile and
// settings parsers see exactly what the user wrote.
func rawBody(r *http.Request) (any, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty body")
	}
	return &RawRequest{Data: json.RawMessage(data)}, nil
}

func macrosAction(action string) kit.HTTPDecoder {
	return func(r *http.Request) (any, error) {
		req := &MacrosRequest{Action: action, Name: chi.URLParam(r, "name")}
		switch action {
		case "rename":
			var body struct {
				To string `json:"to"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				return nil, err
			}
			req.To = body.To
		case "runs":
			if s := r.URL.Query().Get("limit"); s != "" {
				n, err := strconv.Atoi(s)
				if err != nil || n <= 0 {
					return nil, fmt.Errorf("%w: limit %q", config.ErrInvalidInput, s)
				}
				req.Limit = n
			}
		}
		return req, nil
	}
}
