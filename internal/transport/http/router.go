package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"quizwhiz-service/internal/app"
	"quizwhiz-service/internal/domain"
)

// RouterConfig controls how links and cross-origin access are exposed.
type RouterConfig struct {
	// BaseURL prefixes join/host links; derived from the request when empty.
	BaseURL        string
	AllowedOrigins []string
}

type createRequest struct {
	QuizID string `json:"quiz_id"`
}

// createResponse carries page links for an external front end plus the
// socket URLs this router serves directly.
type createResponse struct {
	QuizID     string `json:"quiz_id"`
	JoinLink   string `json:"join_link"`
	HostLink   string `json:"host_link"`
	WSLink     string `json:"ws_link"`
	HostWSLink string `json:"host_ws_link"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter wires the HTTP surface: session creation, state lookup and the WS endpoint.
func NewRouter(service *app.QuizService, ws *WSHandler, cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/create", createHandler(service, cfg)).Methods(http.MethodPost)
	r.HandleFunc("/quiz/{quizID}/state", stateHandler(service)).Methods(http.MethodGet)
	r.HandleFunc("/ws/{quizID}", ws.ServeWS)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedOrigins: origins,
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(r)
}

func createHandler(service *app.QuizService, cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}

		var (
			opened app.OpenedSession
			err    error
		)
		if req.QuizID != "" {
			opened, err = service.Open(r.Context(), req.QuizID)
		} else {
			opened, err = service.Create(r.Context())
		}
		if err != nil {
			status := statusFor(err)
			if status == http.StatusInternalServerError {
				log.Error().Err(err).Msg("create session failed")
			}
			writeJSON(w, status, errorResponse{Error: err.Error()})
			return
		}

		base := baseURL(cfg, r)
		id := url.PathEscape(opened.QuizID)
		hostQuery := "?host=" + url.QueryEscape(opened.HostKey)
		joinLink := base + "/quiz/" + id
		wsLink := socketBase(base) + "/ws/" + id
		writeJSON(w, http.StatusCreated, createResponse{
			QuizID:     opened.QuizID,
			JoinLink:   joinLink,
			HostLink:   joinLink + hostQuery,
			WSLink:     wsLink,
			HostWSLink: wsLink + hostQuery,
		})
	}
}

func stateHandler(service *app.QuizService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := service.Snapshot(r.Context(), mux.Vars(r)["quizID"])
		if err != nil {
			writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSessionExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidQuiz):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrQuizCreationUnsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func baseURL(cfg RouterConfig, r *http.Request) string {
	if cfg.BaseURL != "" {
		return strings.TrimRight(cfg.BaseURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// socketBase maps an http(s) base URL onto its ws(s) equivalent.
func socketBase(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}
