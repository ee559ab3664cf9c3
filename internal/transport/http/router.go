package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"quizbattle-service/internal/auth"
)

// NewRouter wires all REST and WebSocket routes. The WS endpoint and auth
// endpoints are public; everything else requires a bearer token.
func NewRouter(authH *AuthHandler, battles *BattleHandler, ws *WSHandler, tokens *auth.Tokens) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Post("/auth/register", authH.Register)
	r.Post("/auth/login", authH.Login)

	r.Get("/battles/ws/{userID}", ws.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(tokens))

		r.Get("/folders", battles.ListFolders)

		r.Route("/battles", func(r chi.Router) {
			r.Post("/create", battles.Create)
			r.Post("/join/{roomCode}", battles.JoinByCode)
			r.Post("/submit-answer", battles.SubmitAnswer)
			r.Post("/{battleID}/accept", battles.Accept)
			r.Post("/{battleID}/decline", battles.Decline)
			r.Get("/my-battles", battles.MyBattles)
			r.Get("/pending-invites", battles.PendingInvites)
			r.Delete("/invites/{inviteID}", battles.DismissInvite)
			r.Get("/questions/{battleID}", battles.Questions)
			r.Get("/results/{battleID}", battles.Results)
			r.Get("/{battleID}", battles.Get)
		})
	})

	return r
}
