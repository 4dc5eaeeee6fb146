package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hazyhaar/formpilot/config"
	"github.com/hazyhaar/formpilot/dom"
	"github.com/hazyhaar/formpilot/kit"
	"github.com/hazyhaar/formpilot/macro"
	"github.com/hazyhaar/formpilot/matcher"
	"github.com/hazyhaar/formpilot/store"
	"github.com/hazyhaar/formpilot/trainer"
)

// Request and response shapes shared by the HTTP and MCP surfaces.

type OpenRequest struct {
	URL string `json:"url"`
}

type OpenResponse struct {
	URL string `json:"url"`
}

type FillRequest struct {
	URL string `json:"url,omitempty"`
}

type MatchRequest struct {
	Field dom.Field `json:"field"`
}

type RecordStartRequest struct {
	Name string `json:"name"`
}

type RecordStartResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type RecordStopResponse struct {
	Name   string `json:"name"`
	Events int    `json:"events"`
	Saved  bool   `json:"saved"`

	// Warning reports a recorder release problem on a saved macro.
	Warning string `json:"warning,omitempty"`
}

type PlayRequest struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	Instant bool   `json:"instant,omitempty"`
}

type MacrosRequest struct {
	Action string `json:"action,omitempty"` // list | delete | rename | runs
	Name   string `json:"name,omitempty"`
	To     string `json:"to,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type MacrosResponse struct {
	Macros  []string        `json:"macros,omitempty"`
	Runs    []*macro.Report `json:"runs,omitempty"`
	Fragile map[string]int  `json:"fragile,omitempty"`
}

type TrainResponse struct {
	Learned matcher.Mappings `json:"learned"`
	Count   int              `json:"count"`
	Message string           `json:"message,omitempty"`
}

type RawRequest struct {
	Data json.RawMessage `json:"data"`
}

type MappingRequest struct {
	Site     string `json:"site"`
	Identity string `json:"identity"`
}

// fragileMinFailures is the failure count at which a selector is reported
// as fragile in a macro's run history.
const fragileMinFailures = 2

const defaultRunLimit = 20

func (a *Agent) endpoint(op string, ep kit.Endpoint) kit.Endpoint {
	return kit.Chain(kit.WithRequestIDs(), kit.Logging(a.logger, op))(ep)
}

func (a *Agent) openEndpoint() kit.Endpoint {
	return a.endpoint("open", func(ctx context.Context, req any) (any, error) {
		r := req.(*OpenRequest)
		if r.URL == "" {
			return nil, errors.Join(config.ErrInvalidInput, errors.New("url is required"))
		}
		p, err := a.Open(ctx, r.URL)
		if err != nil {
			return nil, err
		}
		return &OpenResponse{URL: p.URL()}, nil
	})
}

func (a *Agent) fillEndpoint() kit.Endpoint {
	return a.endpoint("fill", func(ctx context.Context, req any) (any, error) {
		return a.FillForm(ctx, req.(*FillRequest).URL)
	})
}

func (a *Agent) matchEndpoint() kit.Endpoint {
	return a.endpoint("match", func(_ context.Context, req any) (any, error) {
		return a.MatchProfileKey(req.(*MatchRequest).Field), nil
	})
}

func (a *Agent) recordStartEndpoint() kit.Endpoint {
	return a.endpoint("record_start", func(ctx context.Context, req any) (any, error) {
		r := req.(*RecordStartRequest)
		id, err := a.StartRecording(ctx, r.Name)
		if err != nil {
			return nil, err
		}
		return &RecordStartResponse{ID: id, Name: r.Name}, nil
	})
}

func (a *Agent) recordStopEndpoint() kit.Endpoint {
	return a.endpoint("record_stop", func(ctx context.Context, _ any) (any, error) {
		m, err := a.StopRecording(ctx)
		if errors.Is(err, macro.ErrEmptyRecording) && len(m.Events) == 0 {
			return &RecordStopResponse{Name: m.Name}, nil
		}
		if err != nil && (len(m.Events) == 0 || errors.Is(err, macro.ErrPersist)) {
			return nil, err
		}
		resp := &RecordStopResponse{Name: m.Name, Events: len(m.Events), Saved: true}
		if err != nil {
			resp.Warning = err.Error()
		}
		return resp, nil
	})
}

func (a *Agent) playEndpoint() kit.Endpoint {
	return a.endpoint("play", func(ctx context.Context, req any) (any, error) {
		r := req.(*PlayRequest)
		return a.Play(ctx, r.URL, r.Name, r.Instant)
	})
}

func (a *Agent) macrosEndpoint() kit.Endpoint {
	return a.endpoint("macros", func(ctx context.Context, req any) (any, error) {
		r := req.(*MacrosRequest)
		switch r.Action {
		case "", "list":
		case "delete":
			if err := a.DeleteMacro(ctx, r.Name); err != nil {
				return nil, err
			}
		case "rename":
			if err := a.RenameMacro(ctx, r.Name, r.To); err != nil {
				return nil, err
			}
		case "runs":
			if r.Limit <= 0 {
				r.Limit = defaultRunLimit
			}
			runs, err := a.Runs(ctx, r.Name, r.Limit)
			if err != nil {
				return nil, err
			}
			fragile, err := a.FragileSelectors(ctx, r.Name, r.Limit, fragileMinFailures)
			if err != nil {
				return nil, err
			}
			return &MacrosResponse{Runs: runs, Fragile: fragile}, nil
		default:
			return nil, errors.Join(config.ErrInvalidInput, errors.New("unknown action "+r.Action))
		}
		names, err := a.Macros(ctx)
		if err != nil {
			return nil, err
		}
		return &MacrosResponse{Macros: names}, nil
	})
}

func (a *Agent) trainEndpoint() kit.Endpoint {
	return a.endpoint("train", func(ctx context.Context, _ any) (any, error) {
		learned, err := a.Train(ctx)
		if errors.Is(err, trainer.ErrNoNewMappings) {
			return &TrainResponse{Learned: matcher.Mappings{}, Message: "no new mappings"}, nil
		}
		if err != nil {
			return nil, err
		}
		return &TrainResponse{Learned: learned, Count: learned.Len()}, nil
	})
}

func (a *Agent) skippedEndpoint() kit.Endpoint {
	return a.endpoint("skipped", func(context.Context, any) (any, error) {
		return a.Skipped(), nil
	})
}

func (a *Agent) profileEndpoint() kit.Endpoint {
	return a.endpoint("profile", func(ctx context.Context, req any) (any, error) {
		if r, ok := req.(*RawRequest); ok && r != nil && len(r.Data) > 0 {
			return a.ImportProfile(ctx, r.Data)
		}
		return a.Profile(), nil
	})
}

func (a *Agent) settingsEndpoint() kit.Endpoint {
	return a.endpoint("settings", func(ctx context.Context, req any) (any, error) {
		if r, ok := req.(*RawRequest); ok && r != nil && len(r.Data) > 0 {
			return a.ImportSettings(ctx, r.Data)
		}
		return a.Settings(), nil
	})
}

func (a *Agent) mappingsEndpoint() kit.Endpoint {
	return a.endpoint("mappings", func(ctx context.Context, req any) (any, error) {
		if r, ok := req.(*MappingRequest); ok && r != nil && r.Identity != "" {
			if err := a.DeleteMapping(ctx, r.Site, r.Identity); err != nil {
				return nil, err
			}
		}
		return a.Mappings(), nil
	})
}

// statusOf maps agent errors onto HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, config.ErrInvalidInput), errors.Is(err, macro.ErrEmptyName):
		return http.StatusBadRequest
	case errors.Is(err, macro.ErrMacroNotFound):
		return http.StatusNotFound
	case errors.Is(err, macro.ErrAlreadyRecording),
		errors.Is(err, macro.ErrNotRecording),
		errors.Is(err, store.ErrMacroExists),
		errors.Is(err, ErrNoPage):
		return http.StatusConflict
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
