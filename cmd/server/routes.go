package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sahyog-sutra/core"
	"sahyog-sutra/core/domain"
	"sahyog-sutra/core/infra"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// server liga as rotas da aplicação ao Runtime do core.
type server struct {
	rt        *core.Runtime
	db        *infra.Bridge[*eventConn]
	campaigns *infra.Slot[campaignsView]
	mail      mailer
	log       logr.Logger

	otpWindow time.Duration
	aiWindow  time.Duration
	keyFn     core.KeyFunc
}

type serverOptions struct {
	cacheTTL  time.Duration
	otpWindow time.Duration
	aiWindow  time.Duration
	trustXFF  bool
}

func newServer(rt *core.Runtime, db *eventDB, m mailer, opts serverOptions) *server {
	s := &server{
		rt:        rt,
		db:        infra.NewBridge(rt.Pool, db.open),
		mail:      m,
		log:       rt.Log.WithName("http"),
		otpWindow: opts.otpWindow,
		aiWindow:  opts.aiWindow,
		keyFn:     core.DefaultKeyFunc("", opts.trustXFF),
	}
	s.campaigns = core.NewCache[campaignsView](rt, "campaigns", infra.WithTTL(opts.cacheTTL))

	rt.Sweeper.RegisterCandidateSource(s.listCandidates)
	rt.Sweeper.RegisterRemovalAction(s.removeCandidate)
	rt.Sweeper.RegisterNotifyAction(eventEndedNotifier(m))
	return s
}

func (s *server) listCandidates(ctx context.Context) ([]domain.Candidate, error) {
	events, err := infra.Call(s.db, ctx, "list-events", func(_ context.Context, c *eventConn) ([]event, error) {
		return c.list(), nil
	}).Await(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Candidate, 0, len(events))
	for _, e := range events {
		out = append(out, e.candidate())
	}
	return out, nil
}

func (s *server) removeCandidate(ctx context.Context, c domain.Candidate) error {
	id, err := strconv.Atoi(c.ID)
	if err != nil {
		return fmt.Errorf("event id %q: %w", c.ID, err)
	}
	return s.deleteEvent(ctx, id)
}

func (s *server) deleteEvent(ctx context.Context, id int) error {
	_, err := infra.Call(s.db, ctx, "delete-event", func(_ context.Context, c *eventConn) (struct{}, error) {
		return struct{}{}, c.delete(id)
	}).Await(ctx)
	return err
}

// eventCounts roda as duas contagens em paralelo no pool.
func (s *server) eventCounts(ctx context.Context) ([]int, error) {
	loc := s.rt.Sweeper.Location()
	return infra.AwaitAll(ctx,
		infra.Call(s.db, ctx, "count-events", func(_ context.Context, c *eventConn) (int, error) {
			return c.count(), nil
		}),
		infra.Call(s.db, ctx, "count-ended", func(_ context.Context, c *eventConn) (int, error) {
			return c.countEnded(time.Now().In(loc), loc), nil
		}),
	)
}

func (s *server) loadCampaigns(ctx context.Context) (campaignsView, error) {
	return s.campaigns.GetOrCompute(ctx, func(ctx context.Context) (campaignsView, error) {
		events, err := infra.Call(s.db, ctx, "list-events", func(_ context.Context, c *eventConn) ([]event, error) {
			return c.list(), nil
		}).Await(ctx)
		if err != nil {
			return campaignsView{}, err
		}
		return campaignsView{Events: events, LoadedAt: time.Now()}, nil
	})
}

func (s *server) handler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /campaigns", s.handleCampaigns)
	mux.HandleFunc("POST /createevent", s.handleCreateEvent)
	mux.HandleFunc("GET /deleteevent/{id}", s.handleDeleteEvent)
	mux.HandleFunc("POST /setlanguage/{lang}", s.handleSetLanguage)
	mux.HandleFunc("GET /translate", s.handleTranslate)
	mux.HandleFunc("POST /translate_event", s.handleTranslateEvent)

	mux.Handle("POST /sendotp", core.WindowGuard(core.GuardOptions{
		Store:   s.rt.Limiter,
		Window:  s.otpWindow,
		Stats:   s.rt.Stats,
		KeyFn:   s.keyFn,
		Scope:   "otp",
		Message: core.OTPMessage,
		Metrics: s.rt.Metrics,
		Log:     s.log,
	})(http.HandlerFunc(s.handleSendOTP)))
	mux.Handle("POST /generate_ai_description", core.WindowGuard(core.GuardOptions{
		Store:   s.rt.Limiter,
		Window:  s.aiWindow,
		Stats:   s.rt.Stats,
		KeyFn:   s.keyFn,
		Scope:   "ai",
		Metrics: s.rt.Metrics,
		Log:     s.log,
	})(http.HandlerFunc(s.handleGenerateDescription)))

	mux.Handle("GET /checkeventloop", core.SweepHandler(s.rt))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		counts, err := s.eventCounts(r.Context())
		if err != nil {
			s.fail(w, "health check", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":        "ok",
			"events":        counts[0],
			"ended":         counts[1],
			"scheduler":     s.rt.Scheduler.State().String(),
			"sweeps":        s.rt.Scheduler.Cycles(),
			"queued":        s.rt.Pool.Pending(),
			"translating":   s.rt.Translations.Pending(),
			"campaignsSlot": s.campaigns.Name(),
		})
	})
	if reg != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	return mux
}

// lang vem de ?lang=, depois do cookie gravado por /setlanguage.
func requestLang(r *http.Request) string {
	if l := strings.TrimSpace(r.URL.Query().Get("lang")); l != "" {
		return l
	}
	if c, err := r.Cookie("lang"); err == nil {
		return c.Value
	}
	return "en"
}

type campaignJSON struct {
	ID       int    `json:"id"`
	Name     string `json:"eventname"`
	Location string `json:"location"`
	EndDate  string `json:"enddate"`
	EndTime  string `json:"endtime"`
}

func (s *server) handleCampaigns(w http.ResponseWriter, r *http.Request) {
	view, err := s.loadCampaigns(r.Context())
	if err != nil {
		s.fail(w, "loading campaigns", err)
		return
	}

	lang := requestLang(r)
	out := make([]campaignJSON, 0, len(view.Events))
	for _, e := range view.Events {
		out = append(out, campaignJSON{
			ID: e.ID,
			// conteúdo de usuário não vai para o arquivo
			Name:     s.rt.Translations.Translate(r.Context(), e.Name, lang, false),
			Location: s.rt.Translations.Translate(r.Context(), e.Location, lang, false),
			EndDate:  e.EndDate,
			EndTime:  e.EndTime,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"title":  s.rt.Translations.Translate(r.Context(), "Campaigns", lang, true),
		"events": out,
	})
}

func (s *server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var in event
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&in); err != nil {
		http.Error(w, "invalid event: "+err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := in.candidate().EndsAt(s.rt.Sweeper.Location()); err != nil {
		http.Error(w, "invalid end date/time", http.StatusBadRequest)
		return
	}

	created, err := infra.Call(s.db, r.Context(), "insert-event", func(_ context.Context, c *eventConn) (event, error) {
		return c.insert(in), nil
	}).Await(r.Context())
	if err != nil {
		s.fail(w, "creating event", err)
		return
	}
	s.campaigns.Invalidate()
	writeJSON(w, http.StatusCreated, created)
}

func (s *server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid event id", http.StatusBadRequest)
		return
	}
	err = s.deleteEvent(r.Context(), id)
	if errors.Is(err, errEventNotFound) {
		http.Error(w, "Event not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.fail(w, "deleting event", err)
		return
	}
	s.campaigns.Invalidate()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Event Deleted"))
}

func (s *server) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: "lang", Value: r.PathValue("lang"), Path: "/", HttpOnly: true})
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Language Set"))
}

func (s *server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	text := q.Get("text")
	if text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	durable := q.Get("durable") != "false"
	writeJSON(w, http.StatusOK, map[string]string{
		"text": s.rt.Translations.Translate(r.Context(), text, requestLang(r), durable),
	})
}

func (s *server) handleTranslateEvent(w http.ResponseWriter, r *http.Request) {
	var fields map[string]string
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&fields); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	out, err := s.rt.Translations.TranslateFields(r.Context(), fields, requestLang(r))
	if out == nil {
		s.fail(w, "translating event", err)
		return
	}
	if err != nil {
		// campos que falharam voltam no original
		s.log.V(1).Info("partial event translation", "err", err)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleSendOTP(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	if email == "" {
		http.Error(w, "email is required", http.StatusBadRequest)
		return
	}
	otp := 1111 + rand.IntN(9999-1111+1)

	// o envio não segura o request
	s.rt.Pool.Go(context.WithoutCancel(r.Context()), "send-otp", func(ctx context.Context) error {
		return s.mail.Send(ctx, email, "Signup OTP For Sahyog Sutra",
			fmt.Sprintf("Welcome Sahyogi!\nYour signup OTP is %d.\nUse it to sign up in SahyogSutra\n\nThankyou :)", otp))
	})

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "OTP Sent to %s! Please check spam folder if can't find it.", email)
}

func (s *server) handleGenerateDescription(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name     string `json:"eventname"`
		Location string `json:"location"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&in); err != nil || in.Name == "" {
		http.Error(w, "eventname is required", http.StatusBadRequest)
		return
	}
	desc := fmt.Sprintf("Join us for %s", in.Name)
	if in.Location != "" {
		desc += " at " + in.Location
	}
	desc += ". Every pair of hands makes a difference. Bring a friend and help the community!"
	writeJSON(w, http.StatusOK, map[string]string{"description": desc})
}

func (s *server) fail(w http.ResponseWriter, what string, err error) {
	s.log.Error(err, what)
	var re *domain.ResourceError
	if errors.As(err, &re) || errors.Is(err, domain.ErrQueueFull) || errors.Is(err, domain.ErrPoolClosed) {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
