package http

import (
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"quizbattle-service/internal/app"
	"quizbattle-service/internal/domain"
)

// BattleHandler exposes the battle lifecycle over REST.
type BattleHandler struct {
	battles *app.BattleService
	invites *app.InviteService
	folders app.FolderStore
}

func NewBattleHandler(battles *app.BattleService, invites *app.InviteService, folders app.FolderStore) *BattleHandler {
	return &BattleHandler{battles: battles, invites: invites, folders: folders}
}

type createBattleRequest struct {
	OpponentUsername string `json:"opponent_username"`
	FolderID         string `json:"folder_id"`
	TotalQuestions   int    `json:"total_questions"`
	TimeLimitSeconds int    `json:"time_limit_seconds"`
	IsPublic         bool   `json:"is_public"`
}

func (h *BattleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBattleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad json"})
		return
	}
	folderID, err := uuid.Parse(req.FolderID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid folder ID format"})
		return
	}
	// Exactly one addressing mode: a named opponent or a public room code.
	if req.IsPublic && req.OpponentUsername != "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "choose an opponent or a public battle, not both"})
		return
	}
	if !req.IsPublic && req.OpponentUsername == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "opponent_username required unless is_public"})
		return
	}

	battle, err := h.battles.CreateBattle(r.Context(), userID(r), app.CreateBattleRequest{
		OpponentUsername: req.OpponentUsername,
		FolderID:         folderID,
		TotalQuestions:   req.TotalQuestions,
		TimeLimitSeconds: req.TimeLimitSeconds,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, battle)
}

var roomCodePattern = regexp.MustCompile(`^[A-Za-z0-9]{6}$`)

func (h *BattleHandler) JoinByCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "roomCode")
	if !roomCodePattern.MatchString(code) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "room code must be 6 alphanumeric characters"})
		return
	}
	battle, err := h.battles.JoinByCode(r.Context(), code, userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "joined", "battle": battle})
}

func (h *BattleHandler) Accept(w http.ResponseWriter, r *http.Request) {
	battleID, ok := parseIDParam(w, r, "battleID")
	if !ok {
		return
	}
	battle, err := h.battles.Accept(r.Context(), battleID, userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "joined", "battle": battle})
}

func (h *BattleHandler) Decline(w http.ResponseWriter, r *http.Request) {
	battleID, ok := parseIDParam(w, r, "battleID")
	if !ok {
		return
	}
	battle, err := h.battles.Decline(r.Context(), battleID, userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": string(battle.Status)})
}

type submitAnswerRequest struct {
	BattleID         string `json:"battle_id"`
	QuestionID       string `json:"question_id"`
	UserAnswer       string `json:"user_answer"`
	TimeTakenSeconds int    `json:"time_taken_seconds"`
}

func (h *BattleHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad json"})
		return
	}
	battleID, err := uuid.Parse(req.BattleID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid battle ID format"})
		return
	}
	questionID, err := uuid.Parse(req.QuestionID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid question ID format"})
		return
	}

	result, err := h.battles.SubmitAnswer(r.Context(), userID(r), app.SubmitAnswerRequest{
		BattleID:         battleID,
		QuestionID:       questionID,
		UserAnswer:       req.UserAnswer,
		TimeTakenSeconds: req.TimeTakenSeconds,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *BattleHandler) MyBattles(w http.ResponseWriter, r *http.Request) {
	battles, err := h.battles.MyBattles(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if battles == nil {
		battles = []domain.Battle{}
	}
	writeJSON(w, http.StatusOK, battles)
}

func (h *BattleHandler) Get(w http.ResponseWriter, r *http.Request) {
	battleID, ok := parseIDParam(w, r, "battleID")
	if !ok {
		return
	}
	battle, err := h.battles.GetBattle(r.Context(), battleID, userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, battle)
}

func (h *BattleHandler) Questions(w http.ResponseWriter, r *http.Request) {
	battleID, ok := parseIDParam(w, r, "battleID")
	if !ok {
		return
	}
	questions, err := h.battles.BattleQuestions(r.Context(), battleID, userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"battle_id": battleID,
		"questions": questions,
	})
}

func (h *BattleHandler) Results(w http.ResponseWriter, r *http.Request) {
	battleID, ok := parseIDParam(w, r, "battleID")
	if !ok {
		return
	}
	results, err := h.battles.Results(r.Context(), battleID, userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *BattleHandler) PendingInvites(w http.ResponseWriter, r *http.Request) {
	invites, err := h.invites.Pending(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if invites == nil {
		invites = []domain.PendingInvite{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"invites": invites})
}

func (h *BattleHandler) DismissInvite(w http.ResponseWriter, r *http.Request) {
	inviteID, ok := parseIDParam(w, r, "inviteID")
	if !ok {
		return
	}
	if err := h.invites.Dismiss(r.Context(), inviteID, userID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "invite dismissed"})
}

func (h *BattleHandler) ListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := h.folders.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, folders)
}

func parseIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid " + name + " format"})
		return uuid.Nil, false
	}
	return id, true
}
