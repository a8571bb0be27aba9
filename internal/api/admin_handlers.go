package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/deliblab/deliblab/internal/experiment"
	"github.com/deliblab/deliblab/internal/llm"
	"github.com/deliblab/deliblab/internal/services"
)

func (rt *Router) handleRegister(w http.ResponseWriter, r *http.Request) {
	rt.handleCredentials(w, r, rt.authSvc.Register)
}

func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	rt.handleCredentials(w, r, rt.authSvc.Login)
}

func (rt *Router) handleCredentials(w http.ResponseWriter, r *http.Request, fn func(context.Context, string, string) (*services.AuthResult, error)) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		rt.writeError(w, r, err)
		return
	}
	res, err := fn(r.Context(), in.Email, in.Password)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleListExperiments returns summaries, or full records with ?summary=false.
func (rt *Router) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	var problems Problems
	summary := ParseJSONParam(r.URL.Query(), "summary", true, &problems)
	if summary {
		list, err := rt.experiments.List(r.Context())
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"experiments": list, "problems": problems})
		return
	}
	list, err := rt.store.ListExperiments(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"experiments": list, "problems": problems})
}

func (rt *Router) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var in services.CreateExperimentRequest
	if err := decodeJSON(r, &in); err != nil {
		rt.writeError(w, r, err)
		return
	}
	exp, err := rt.experiments.Create(r.Context(), actor(r), in)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.log.Info("api", "experiment created", map[string]any{"experiment": exp.Name, "participants": exp.NumberOfParticipants})
	writeJSON(w, http.StatusCreated, exp)
}

func (rt *Router) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	exp, err := rt.experiments.Get(r.Context(), r.PathValue("exp"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (rt *Router) handleDeleteExperiment(w http.ResponseWriter, r *http.Request) {
	if err := rt.experiments.Delete(r.Context(), actor(r), r.PathValue("exp")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handleExperimentEvents(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("exp")
	rt.stream(w, r, name, func(ctx context.Context) (any, error) {
		return rt.experiments.Get(ctx, name)
	})
}

func (rt *Router) handleParticipantEvents(w http.ResponseWriter, r *http.Request) {
	c, s := rt.controller(r)
	rt.stream(w, r, s.Experiment, func(ctx context.Context) (any, error) {
		p, err := c.Progress(ctx)
		if err != nil {
			return nil, err
		}
		return viewOf(p, ""), nil
	})
}

func (rt *Router) handleReveal(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Stage string `json:"stage"`
	}
	if err := decodeJSON(r, &in); err != nil {
		rt.writeError(w, r, err)
		return
	}
	ranking, err := rt.experiments.RevealLeader(r.Context(), r.PathValue("exp"), in.Stage)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	winner, _ := experiment.Winner(ranking)
	writeJSON(w, http.StatusOK, map[string]any{"ranking": ranking, "winner": winner})
}

func (rt *Router) handleDiscuss(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Stage string              `json:"stage"`
		Pair  experiment.ItemPair `json:"itemPair"`
		Text  string              `json:"text"`
	}
	if err := decodeJSON(r, &in); err != nil {
		rt.writeError(w, r, err)
		return
	}
	if err := in.Pair.Validate(); err != nil {
		rt.writeError(w, r, services.NewInvalidError(err.Error()))
		return
	}
	msg, err := rt.experiments.DiscussItems(r.Context(), r.PathValue("exp"), in.Stage, in.Pair, in.Text)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (rt *Router) handleMediate(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Stage string `json:"stage"`
	}
	if err := decodeJSON(r, &in); err != nil {
		rt.writeError(w, r, err)
		return
	}
	msg, err := rt.mediator.Mediate(r.Context(), r.PathValue("exp"), in.Stage)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (rt *Router) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := rt.export.ExportCSV(r.Context(), services.ExportParams{
		Experiment: r.PathValue("exp"),
		Kind:       q.Get("kind"),
		Format:     q.Get("format"),
	})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(res.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

func (rt *Router) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	sum, err := rt.analytics.Summary(r.Context(), r.PathValue("exp"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (rt *Router) handleGetLLMSettings(w http.ResponseWriter, r *http.Request) {
	st, err := rt.aiConfig.Get(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (rt *Router) handlePutLLMSettings(w http.ResponseWriter, r *http.Request) {
	var in services.LLMSettings
	if err := decodeJSON(r, &in); err != nil {
		rt.writeError(w, r, err)
		return
	}
	if err := rt.aiConfig.Update(r.Context(), in); err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.handleGetLLMSettings(w, r)
}

func (rt *Router) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := rt.experiments.Refresh(r.Context()); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (rt *Router) handleAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := rt.store.ListAudit(r.Context(), r.URL.Query().Get("target"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (rt *Router) handleSheet(w http.ResponseWriter, r *http.Request) {
	if rt.sheets == nil {
		rt.writeError(w, r, services.NewInvalidError("sheets not configured"))
		return
	}
	meta, err := rt.sheets.Metadata(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, services.NewBadGatewayError(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// LLM routes always answer 200 with an llm.Result; failures travel in its error field.

func (rt *Router) handleComplete(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Prompt string `json:"prompt"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeJSON(w, http.StatusOK, llm.Fail[string](err))
		return
	}
	writeJSON(w, http.StatusOK, rt.llmSvc.Complete(r.Context(), in.Prompt))
}

func (rt *Router) handleEmbed(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Texts []string `json:"texts"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeJSON(w, http.StatusOK, llm.Fail[[][]float32](err))
		return
	}
	writeJSON(w, http.StatusOK, rt.llmSvc.Embed(r.Context(), in.Texts))
}

// handleRecommend ranks items for the query in the body; ?k= limits the result.
func (rt *Router) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var problems Problems
	k := ParseJSONParam(r.URL.Query(), "k", 3, &problems)
	var in struct {
		Query string `json:"query"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeJSON(w, http.StatusOK, llm.Fail[[]services.Recommendation](err))
		return
	}
	res := rt.llmSvc.Recommend(r.Context(), in.Query, k)
	writeJSON(w, http.StatusOK, map[string]any{"value": res.Value, "error": res.Err, "problems": problems})
}
