package app_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"quizbattle-service/internal/app"
	"quizbattle-service/internal/domain"
	"quizbattle-service/internal/infra/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeNotifier records pushes instead of writing to sockets.
type fakeNotifier struct {
	mu     sync.Mutex
	online map[uuid.UUID]bool
	sent   map[uuid.UUID][]any
}

func newFakeNotifier(online ...uuid.UUID) *fakeNotifier {
	n := &fakeNotifier{online: make(map[uuid.UUID]bool), sent: make(map[uuid.UUID][]any)}
	for _, id := range online {
		n.online[id] = true
	}
	return n
}

func (n *fakeNotifier) IsConnected(userID uuid.UUID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online[userID]
}

func (n *fakeNotifier) SendTo(userID uuid.UUID, msg any) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.online[userID] {
		return false
	}
	n.sent[userID] = append(n.sent[userID], msg)
	return true
}

func (n *fakeNotifier) Broadcast(msg any, exclude uuid.UUID) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for id := range n.online {
		if id == exclude {
			continue
		}
		n.sent[id] = append(n.sent[id], msg)
		count++
	}
	return count
}

func (n *fakeNotifier) SendToSet(userIDs []uuid.UUID, msg any) int {
	count := 0
	for _, id := range userIDs {
		if n.SendTo(id, msg) {
			count++
		}
	}
	return count
}

func (n *fakeNotifier) received(userID uuid.UUID) []any {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]any(nil), n.sent[userID]...)
}

type env struct {
	clock    *fakeClock
	notifier *fakeNotifier
	users    *memory.UserStore
	battles  *memory.BattleStore
	invites  *app.InviteService
	svc      *app.BattleService

	alice  domain.User
	bob    domain.User
	folder domain.Folder
	bank   []domain.Question
}

func newEnv(t *testing.T, online ...uuid.UUID) *env {
	t.Helper()

	alice := domain.User{ID: uuid.New(), Email: "alice@example.com", Username: "alice"}
	bob := domain.User{ID: uuid.New(), Email: "bob@example.com", Username: "bob"}
	folderID := uuid.New()
	bank := []domain.Question{
		{ID: uuid.New(), FolderID: folderID, Text: "What is 2 + 2?", Answer: "4", Points: 10},
		{ID: uuid.New(), FolderID: folderID, Text: "Capital of France?", Answer: "Paris", Explanation: "Paris has been the capital since 987.", Points: 10},
		{ID: uuid.New(), FolderID: folderID, Text: "H2O is the formula for what?", Answer: "water", Points: 10},
	}
	folder := domain.Folder{ID: folderID, OwnerID: alice.ID, Name: "General Knowledge", QuestionCount: len(bank)}

	clock := newFakeClock()
	notifier := newFakeNotifier(online...)
	users := memory.NewUserStore(alice, bob)
	battles := memory.NewBattleStore(users)
	cache := memory.NewBankCache(memory.NewStaticBankLoader(map[uuid.UUID][]domain.Question{folderID: bank}), time.Minute)
	invites := app.NewInviteServiceWithClock(memory.NewInviteStore(), notifier, time.Hour, clock.Now)
	svc := app.NewBattleServiceWithClock(battles, users, memory.NewFolderStore(folder), cache, notifier, invites, 5*time.Second, clock.Now)

	return &env{
		clock:    clock,
		notifier: notifier,
		users:    users,
		battles:  battles,
		invites:  invites,
		svc:      svc,
		alice:    alice,
		bob:      bob,
		folder:   folder,
		bank:     bank,
	}
}

func (e *env) answerFor(t *testing.T, questionID uuid.UUID) string {
	t.Helper()
	for _, q := range e.bank {
		if q.ID == questionID {
			return q.Answer
		}
	}
	t.Fatalf("question %s not in bank", questionID)
	return ""
}

func privateRequest(e *env) app.CreateBattleRequest {
	return app.CreateBattleRequest{
		OpponentUsername: e.bob.Username,
		FolderID:         e.folder.ID,
		TotalQuestions:   2,
		TimeLimitSeconds: 60,
	}
}

func TestCreatePrivateBattleNotifiesOnlineOpponent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.notifier.online[e.bob.ID] = true

	battle, err := e.svc.CreateBattle(ctx, e.alice.ID, privateRequest(e))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if battle.Status != domain.BattlePending {
		t.Fatalf("expected pending, got %s", battle.Status)
	}
	if battle.OpponentID == nil || *battle.OpponentID != e.bob.ID {
		t.Fatalf("expected bob as opponent, got %v", battle.OpponentID)
	}
	if battle.RoomCode != nil || battle.IsPublic {
		t.Fatalf("private battle must not carry a room code")
	}

	got := e.notifier.received(e.bob.ID)
	if len(got) != 1 {
		t.Fatalf("expected 1 invitation, got %d", len(got))
	}
	inv, ok := got[0].(app.InvitationEvent)
	if !ok || inv.Type != app.EventBattleInvitation {
		t.Fatalf("expected invitation event, got %#v", got[0])
	}
	if inv.Battle.ChallengerUsername != "alice" || inv.Battle.FolderName != "General Knowledge" {
		t.Fatalf("unexpected summary %+v", inv.Battle)
	}

	pending, err := e.invites.Pending(ctx, e.bob.ID)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("delivered invite must not be queued, got %d", len(pending))
	}
}

func TestCreatePrivateBattleQueuesForOfflineOpponent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	battle, err := e.svc.CreateBattle(ctx, e.alice.ID, privateRequest(e))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	pending, err := e.invites.Pending(ctx, e.bob.ID)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].BattleID != battle.ID {
		t.Fatalf("expected 1 queued invite for the battle, got %+v", pending)
	}
	if !pending[0].ExpiresAt.Equal(e.clock.Now().Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", pending[0].ExpiresAt)
	}

	// Bob connects: the queued invitation is flushed and marked read.
	e.notifier.online[e.bob.ID] = true
	if delivered := e.invites.FlushOnConnect(ctx, e.bob.ID); delivered != 1 {
		t.Fatalf("expected 1 flushed invite, got %d", delivered)
	}
	pending, _ = e.invites.Pending(ctx, e.bob.ID)
	if len(pending) != 0 {
		t.Fatalf("flushed invite still pending: %+v", pending)
	}
}

func TestCreateBattleValidation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	cases := []struct {
		name string
		req  app.CreateBattleRequest
		want error
	}{
		{"self battle", app.CreateBattleRequest{OpponentUsername: "alice", FolderID: e.folder.ID, TotalQuestions: 2, TimeLimitSeconds: 60}, domain.ErrSelfBattle},
		{"unknown opponent", app.CreateBattleRequest{OpponentUsername: "mallory", FolderID: e.folder.ID, TotalQuestions: 2, TimeLimitSeconds: 60}, domain.ErrOpponentNotFound},
		{"unknown folder", app.CreateBattleRequest{OpponentUsername: "bob", FolderID: uuid.New(), TotalQuestions: 2, TimeLimitSeconds: 60}, domain.ErrFolderNotFound},
		{"bank too small", app.CreateBattleRequest{OpponentUsername: "bob", FolderID: e.folder.ID, TotalQuestions: 50, TimeLimitSeconds: 60}, domain.ErrBankTooSmall},
		{"zero questions", app.CreateBattleRequest{OpponentUsername: "bob", FolderID: e.folder.ID, TotalQuestions: 0, TimeLimitSeconds: 60}, domain.ErrInvalidState},
		{"zero time limit", app.CreateBattleRequest{OpponentUsername: "bob", FolderID: e.folder.ID, TotalQuestions: 2, TimeLimitSeconds: 0}, domain.ErrInvalidState},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.svc.CreateBattle(ctx, e.alice.ID, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCreatePublicBattleBroadcastsRoomCode(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.notifier.online[e.alice.ID] = true
	e.notifier.online[e.bob.ID] = true

	battle, err := e.svc.CreateBattle(ctx, e.alice.ID, app.CreateBattleRequest{
		FolderID:         e.folder.ID,
		TotalQuestions:   2,
		TimeLimitSeconds: 60,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !battle.IsPublic || battle.RoomCode == nil || len(*battle.RoomCode) != 6 {
		t.Fatalf("expected public battle with 6-char room code, got %+v", battle)
	}
	if battle.OpponentID != nil {
		t.Fatalf("public battle must start without an opponent")
	}

	if got := e.notifier.received(e.alice.ID); len(got) != 0 {
		t.Fatalf("creator must be excluded from the broadcast, got %d messages", len(got))
	}
	got := e.notifier.received(e.bob.ID)
	if len(got) != 1 {
		t.Fatalf("expected broadcast to bob, got %d messages", len(got))
	}
	pub, ok := got[0].(app.PublicBattleEvent)
	if !ok || pub.Type != app.EventPublicBattleCreated || pub.RoomCode != *battle.RoomCode {
		t.Fatalf("unexpected broadcast %#v", got[0])
	}
}

func TestAcceptTransitionsAndNotifies(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.notifier.online[e.alice.ID] = true
	e.notifier.online[e.bob.ID] = true

	battle, err := e.svc.CreateBattle(ctx, e.alice.ID, privateRequest(e))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := e.svc.Accept(ctx, battle.ID, e.alice.ID); !errors.Is(err, domain.ErrSelfBattle) {
		t.Fatalf("challenger accepting own battle: expected ErrSelfBattle, got %v", err)
	}
	stranger := uuid.New()
	if _, err := e.svc.Accept(ctx, battle.ID, stranger); !errors.Is(err, domain.ErrNotParticipant) {
		t.Fatalf("uninvited accept: expected ErrNotParticipant, got %v", err)
	}

	accepted, err := e.svc.Accept(ctx, battle.ID, e.bob.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != domain.BattleActive || accepted.StartedAt == nil {
		t.Fatalf("expected active battle with start time, got %+v", accepted)
	}
	if !accepted.StartedAt.Equal(e.clock.Now()) {
		t.Fatalf("start time should come from the clock, got %v", accepted.StartedAt)
	}

	aliceMsgs := e.notifier.received(e.alice.ID)
	if len(aliceMsgs) != 1 {
		t.Fatalf("expected 1 message to challenger, got %d", len(aliceMsgs))
	}
	if ev, ok := aliceMsgs[0].(app.BattleStateEvent); !ok || ev.Type != app.EventBattleAccepted {
		t.Fatalf("expected accepted event to challenger, got %#v", aliceMsgs[0])
	}
	bobMsgs := e.notifier.received(e.bob.ID)
	if ev, ok := bobMsgs[len(bobMsgs)-1].(app.BattleStateEvent); !ok || ev.Type != app.EventBattleStarted {
		t.Fatalf("expected started event to accepter, got %#v", bobMsgs[len(bobMsgs)-1])
	}

	// Accepting twice is invalid.
	if _, err := e.svc.Accept(ctx, battle.ID, e.bob.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("double accept: expected ErrInvalidState, got %v", err)
	}
}

func TestJoinByCode(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	battle, err := e.svc.CreateBattle(ctx, e.alice.ID, app.CreateBattleRequest{
		FolderID:         e.folder.ID,
		TotalQuestions:   2,
		TimeLimitSeconds: 60,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Codes are matched case-insensitively.
	joined, err := e.svc.JoinByCode(ctx, strings.ToLower(*battle.RoomCode), e.bob.ID)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joined.Status != domain.BattleActive {
		t.Fatalf("expected active after join, got %s", joined.Status)
	}
	if joined.OpponentID == nil || *joined.OpponentID != e.bob.ID {
		t.Fatalf("expected bob joined, got %v", joined.OpponentID)
	}

	// The code no longer resolves once the battle left pending.
	if _, err := e.svc.JoinByCode(ctx, *battle.RoomCode, uuid.New()); !errors.Is(err, domain.ErrBattleNotFound) {
		t.Fatalf("expected ErrBattleNotFound for consumed code, got %v", err)
	}
}

func TestDecline(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.notifier.online[e.alice.ID] = true

	battle, err := e.svc.CreateBattle(ctx, e.alice.ID, privateRequest(e))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := e.svc.Decline(ctx, battle.ID, uuid.New()); !errors.Is(err, domain.ErrNotParticipant) {
		t.Fatalf("stranger decline: expected ErrNotParticipant, got %v", err)
	}

	declined, err := e.svc.Decline(ctx, battle.ID, e.bob.ID)
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if declined.Status != domain.BattleDeclined {
		t.Fatalf("expected declined, got %s", declined.Status)
	}
	got := e.notifier.received(e.alice.ID)
	if len(got) != 1 {
		t.Fatalf("expected decline notice to challenger, got %d messages", len(got))
	}
	if ev, ok := got[0].(app.DeclinedEvent); !ok || ev.DeclinedBy != "bob" {
		t.Fatalf("unexpected decline event %#v", got[0])
	}

	// A challenger withdrawing their own pending battle cancels it.
	second, err := e.svc.CreateBattle(ctx, e.alice.ID, privateRequest(e))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	cancelled, err := e.svc.Decline(ctx, second.ID, e.alice.ID)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if cancelled.Status != domain.BattleCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
}

// startBattle creates and accepts a private battle, returning its ID.
func startBattle(t *testing.T, e *env) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	battle, err := e.svc.CreateBattle(ctx, e.alice.ID, privateRequest(e))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.svc.Accept(ctx, battle.ID, e.bob.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	return battle.ID
}

func TestSubmitAnswerScoresAndCompletes(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.notifier.online[e.alice.ID] = true
	e.notifier.online[e.bob.ID] = true
	battleID := startBattle(t, e)

	questions, err := e.svc.BattleQuestions(ctx, battleID, e.alice.ID)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}

	// Alice answers everything correctly and instantly: 15 points each.
	for _, q := range questions {
		res, err := e.svc.SubmitAnswer(ctx, e.alice.ID, app.SubmitAnswerRequest{
			BattleID:   battleID,
			QuestionID: q.ID,
			UserAnswer: "  " + e.answerFor(t, q.ID) + " ",
		})
		if err != nil {
			t.Fatalf("alice submit: %v", err)
		}
		if !res.IsCorrect || res.PointsEarned != 15 {
			t.Fatalf("expected 15-point correct answer, got %+v", res)
		}
	}

	// Bob gets the first right at half time and the second wrong.
	res, err := e.svc.SubmitAnswer(ctx, e.bob.ID, app.SubmitAnswerRequest{
		BattleID:         battleID,
		QuestionID:       questions[0].ID,
		UserAnswer:       e.answerFor(t, questions[0].ID),
		TimeTakenSeconds: 30,
	})
	if err != nil {
		t.Fatalf("bob submit: %v", err)
	}
	if !res.IsCorrect || res.PointsEarned != 12 {
		t.Fatalf("expected 12 points at half time, got %+v", res)
	}
	res, err = e.svc.SubmitAnswer(ctx, e.bob.ID, app.SubmitAnswerRequest{
		BattleID:   battleID,
		QuestionID: questions[1].ID,
		UserAnswer: "definitely wrong",
	})
	if err != nil {
		t.Fatalf("bob submit: %v", err)
	}
	if res.IsCorrect || res.PointsEarned != 0 {
		t.Fatalf("expected zero points for wrong answer, got %+v", res)
	}

	final, err := e.svc.GetBattle(ctx, battleID, e.alice.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Status != domain.BattleCompleted || final.CompletedAt == nil {
		t.Fatalf("expected completed battle, got %+v", final)
	}
	if final.ChallengerScore != 30 || final.OpponentScore != 12 {
		t.Fatalf("unexpected scores %d vs %d", final.ChallengerScore, final.OpponentScore)
	}
	if final.WinnerID == nil || *final.WinnerID != e.alice.ID || final.IsDraw {
		t.Fatalf("expected alice winning, got winner=%v draw=%v", final.WinnerID, final.IsDraw)
	}

	// Both participants get the completion event.
	for _, id := range []uuid.UUID{e.alice.ID, e.bob.ID} {
		msgs := e.notifier.received(id)
		var done *app.CompletedEvent
		for _, m := range msgs {
			if ev, ok := m.(app.CompletedEvent); ok {
				done = &ev
				break
			}
		}
		if done == nil {
			t.Fatalf("no completion event for %s", id)
		}
		if done.ChallengerScore != 30 || done.OpponentScore != 12 || done.IsDraw {
			t.Fatalf("unexpected completion event %+v", done)
		}
	}

	// Win/loss tallies moved.
	winner, _ := e.users.GetByID(ctx, e.alice.ID)
	loser, _ := e.users.GetByID(ctx, e.bob.ID)
	if winner.BattlesWon != 1 || loser.BattlesLost != 1 {
		t.Fatalf("tallies not updated: won=%d lost=%d", winner.BattlesWon, loser.BattlesLost)
	}

	// The finished battle accepts no more answers.
	_, err = e.svc.SubmitAnswer(ctx, e.alice.ID, app.SubmitAnswerRequest{
		BattleID:   battleID,
		QuestionID: questions[0].ID,
		UserAnswer: "4",
	})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState after completion, got %v", err)
	}
}

func TestSubmitAnswerRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	battleID := startBattle(t, e)

	questions, err := e.svc.BattleQuestions(ctx, battleID, e.alice.ID)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	req := app.SubmitAnswerRequest{BattleID: battleID, QuestionID: questions[0].ID, UserAnswer: "whatever"}
	if _, err := e.svc.SubmitAnswer(ctx, e.alice.ID, req); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := e.svc.SubmitAnswer(ctx, e.alice.ID, req); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected ErrAlreadyAnswered, got %v", err)
	}
}

// interleavingStore runs a hook once before the next answer insert, letting
// a test land a competing submission inside another submission's window.
type interleavingStore struct {
	app.BattleStore
	before func()
}

func (s *interleavingStore) InsertAnswer(ctx context.Context, resp *domain.AnswerResponse, challenger bool) error {
	if hook := s.before; hook != nil {
		s.before = nil
		hook()
	}
	return s.BattleStore.InsertAnswer(ctx, resp, challenger)
}

func TestCompletionWinnerAfterInterleavedSubmission(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	store := &interleavingStore{BattleStore: e.battles}
	cache := memory.NewBankCache(memory.NewStaticBankLoader(map[uuid.UUID][]domain.Question{e.folder.ID: e.bank}), time.Minute)
	svc := app.NewBattleServiceWithClock(store, e.users, memory.NewFolderStore(e.folder), cache, e.notifier, e.invites, 5*time.Second, e.clock.Now)

	battle, err := svc.CreateBattle(ctx, e.alice.ID, app.CreateBattleRequest{
		OpponentUsername: e.bob.Username,
		FolderID:         e.folder.ID,
		TotalQuestions:   1,
		TimeLimitSeconds: 60,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Accept(ctx, battle.ID, e.bob.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	questions, err := svc.BattleQuestions(ctx, battle.ID, e.alice.ID)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	q := questions[0]

	// Bob's instant 15-point answer lands while alice's slower 10-point
	// submission sits between its battle read and its insert.
	store.before = func() {
		if _, err := svc.SubmitAnswer(ctx, e.bob.ID, app.SubmitAnswerRequest{
			BattleID:   battle.ID,
			QuestionID: q.ID,
			UserAnswer: e.answerFor(t, q.ID),
		}); err != nil {
			t.Errorf("bob submit: %v", err)
		}
	}
	res, err := svc.SubmitAnswer(ctx, e.alice.ID, app.SubmitAnswerRequest{
		BattleID:         battle.ID,
		QuestionID:       q.ID,
		UserAnswer:       e.answerFor(t, q.ID),
		TimeTakenSeconds: 60,
	})
	if err != nil {
		t.Fatalf("alice submit: %v", err)
	}
	if !res.IsCorrect || res.PointsEarned != 10 {
		t.Fatalf("expected 10 points at the time limit, got %+v", res)
	}

	final, err := svc.GetBattle(ctx, battle.ID, e.alice.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Status != domain.BattleCompleted {
		t.Fatalf("expected completed battle, got %s", final.Status)
	}
	if final.ChallengerScore != 10 || final.OpponentScore != 15 {
		t.Fatalf("unexpected scores %d vs %d", final.ChallengerScore, final.OpponentScore)
	}
	if final.WinnerID == nil || *final.WinnerID != e.bob.ID || final.IsDraw {
		t.Fatalf("expected bob winning 15-10, got winner=%v draw=%v", final.WinnerID, final.IsDraw)
	}
}

func TestConcurrentJoinAdmitsOneOpponent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	carol := domain.User{ID: uuid.New(), Email: "carol@example.com", Username: "carol"}
	if err := e.users.Create(ctx, &carol); err != nil {
		t.Fatalf("create carol: %v", err)
	}

	battle, err := e.svc.CreateBattle(ctx, e.alice.ID, app.CreateBattleRequest{
		FolderID:         e.folder.ID,
		TotalQuestions:   2,
		TimeLimitSeconds: 60,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	joiners := []uuid.UUID{e.bob.ID, carol.ID}
	errs := make([]error, len(joiners))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, id := range joiners {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			<-start
			_, errs[i] = e.svc.JoinByCode(ctx, *battle.RoomCode, id)
		}(i, id)
	}
	close(start)
	wg.Wait()

	winner := -1
	for i, err := range errs {
		switch {
		case err == nil:
			if winner >= 0 {
				t.Fatalf("both joiners admitted")
			}
			winner = i
		case errors.Is(err, domain.ErrInvalidState) || errors.Is(err, domain.ErrBattleNotFound):
		default:
			t.Fatalf("unexpected join error: %v", err)
		}
	}
	if winner < 0 {
		t.Fatalf("no joiner admitted: %v", errs)
	}

	final, err := e.svc.GetBattle(ctx, battle.ID, e.alice.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Status != domain.BattleActive {
		t.Fatalf("expected active battle, got %s", final.Status)
	}
	if final.OpponentID == nil || *final.OpponentID != joiners[winner] {
		t.Fatalf("stored opponent %v does not match admitted joiner %s", final.OpponentID, joiners[winner])
	}
}

func TestConcurrentDuplicateSubmissionPersistsOnce(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	battleID := startBattle(t, e)

	questions, err := e.svc.BattleQuestions(ctx, battleID, e.alice.ID)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	req := app.SubmitAnswerRequest{
		BattleID:   battleID,
		QuestionID: questions[0].ID,
		UserAnswer: e.answerFor(t, questions[0].ID),
	}

	const attempts = 8
	errs := make([]error, attempts)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = e.svc.SubmitAnswer(ctx, e.alice.ID, req)
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrAlreadyAnswered):
			rejected++
		default:
			t.Fatalf("unexpected submit error: %v", err)
		}
	}
	if succeeded != 1 || rejected != attempts-1 {
		t.Fatalf("expected exactly one persisted submission, got %d successes and %d duplicates", succeeded, rejected)
	}

	if count, err := e.battles.CountAnswers(ctx, battleID, e.alice.ID); err != nil || count != 1 {
		t.Fatalf("expected 1 stored answer, got %d (err=%v)", count, err)
	}
	battle, err := e.svc.GetBattle(ctx, battleID, e.alice.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if battle.ChallengerScore != 15 {
		t.Fatalf("score must move exactly once, got %d", battle.ChallengerScore)
	}
}

func TestSubmitAnswerChecks(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	battleID := startBattle(t, e)

	questions, err := e.svc.BattleQuestions(ctx, battleID, e.alice.ID)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}

	if _, err := e.svc.SubmitAnswer(ctx, uuid.New(), app.SubmitAnswerRequest{
		BattleID:   battleID,
		QuestionID: questions[0].ID,
	}); !errors.Is(err, domain.ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}

	// A bank question outside the sampled subset is rejected.
	sampled := make(map[uuid.UUID]bool, len(questions))
	for _, q := range questions {
		sampled[q.ID] = true
	}
	for _, q := range e.bank {
		if sampled[q.ID] {
			continue
		}
		if _, err := e.svc.SubmitAnswer(ctx, e.alice.ID, app.SubmitAnswerRequest{
			BattleID:   battleID,
			QuestionID: q.ID,
			UserAnswer: q.Answer,
		}); !errors.Is(err, domain.ErrQuestionNotFound) {
			t.Fatalf("expected ErrQuestionNotFound for unsampled question, got %v", err)
		}
	}
}

func TestSubmitAnswerAfterDeadline(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	battleID := startBattle(t, e)

	questions, err := e.svc.BattleQuestions(ctx, battleID, e.alice.ID)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}

	// 2 questions x 60s plus 5s grace.
	e.clock.Advance(2*time.Minute + 6*time.Second)
	if _, err := e.svc.SubmitAnswer(ctx, e.alice.ID, app.SubmitAnswerRequest{
		BattleID:   battleID,
		QuestionID: questions[0].ID,
		UserAnswer: "4",
	}); !errors.Is(err, domain.ErrBattleExpired) {
		t.Fatalf("expected ErrBattleExpired, got %v", err)
	}
}

func TestCompletionDraw(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	battleID := startBattle(t, e)

	questions, err := e.svc.BattleQuestions(ctx, battleID, e.alice.ID)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	for _, uid := range []uuid.UUID{e.alice.ID, e.bob.ID} {
		for _, q := range questions {
			if _, err := e.svc.SubmitAnswer(ctx, uid, app.SubmitAnswerRequest{
				BattleID:   battleID,
				QuestionID: q.ID,
				UserAnswer: "wrong",
			}); err != nil {
				t.Fatalf("submit: %v", err)
			}
		}
	}

	final, err := e.svc.GetBattle(ctx, battleID, e.alice.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Status != domain.BattleCompleted || !final.IsDraw || final.WinnerID != nil {
		t.Fatalf("expected drawn battle, got %+v", final)
	}
}

func TestSweepOverdue(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.notifier.online[e.alice.ID] = true
	battleID := startBattle(t, e)

	questions, err := e.svc.BattleQuestions(ctx, battleID, e.alice.ID)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	// Only alice answers; bob walks away.
	if _, err := e.svc.SubmitAnswer(ctx, e.alice.ID, app.SubmitAnswerRequest{
		BattleID:   battleID,
		QuestionID: questions[0].ID,
		UserAnswer: e.answerFor(t, questions[0].ID),
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	swept, err := e.svc.SweepOverdue(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 0 {
		t.Fatalf("battle not yet overdue, swept %d", swept)
	}

	e.clock.Advance(2*time.Minute + 10*time.Second)
	swept, err = e.svc.SweepOverdue(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 sweep, got %d", swept)
	}

	final, err := e.svc.GetBattle(ctx, battleID, e.alice.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Status != domain.BattleCompleted {
		t.Fatalf("expected forced completion, got %s", final.Status)
	}
	if final.WinnerID == nil || *final.WinnerID != e.alice.ID {
		t.Fatalf("expected alice winning on standing scores, got %v", final.WinnerID)
	}

	// A second sweep finds nothing.
	swept, err = e.svc.SweepOverdue(ctx)
	if err != nil || swept != 0 {
		t.Fatalf("expected idempotent sweep, got swept=%d err=%v", swept, err)
	}
}

func TestResults(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	battleID := startBattle(t, e)

	questions, err := e.svc.BattleQuestions(ctx, battleID, e.alice.ID)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if _, err := e.svc.SubmitAnswer(ctx, e.alice.ID, app.SubmitAnswerRequest{
		BattleID:   battleID,
		QuestionID: questions[0].ID,
		UserAnswer: e.answerFor(t, questions[0].ID),
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := e.svc.SubmitAnswer(ctx, e.bob.ID, app.SubmitAnswerRequest{
		BattleID:   battleID,
		QuestionID: questions[0].ID,
		UserAnswer: "wrong",
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	results, err := e.svc.Results(ctx, battleID, e.bob.ID)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if results.Challenger.Username != "alice" || results.Challenger.CorrectAnswers != 1 || results.Challenger.TotalAnswers != 1 {
		t.Fatalf("unexpected challenger result %+v", results.Challenger)
	}
	if results.Opponent == nil || results.Opponent.CorrectAnswers != 0 || results.Opponent.TotalAnswers != 1 {
		t.Fatalf("unexpected opponent result %+v", results.Opponent)
	}

	if _, err := e.svc.Results(ctx, battleID, uuid.New()); !errors.Is(err, domain.ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestGetBattleVisibility(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	public, err := e.svc.CreateBattle(ctx, e.alice.ID, app.CreateBattleRequest{
		FolderID:         e.folder.ID,
		TotalQuestions:   2,
		TimeLimitSeconds: 60,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// A prospective joiner may inspect a pending public battle.
	if _, err := e.svc.GetBattle(ctx, public.ID, e.bob.ID); err != nil {
		t.Fatalf("pending public battle should be readable: %v", err)
	}

	private, err := e.svc.CreateBattle(ctx, e.alice.ID, privateRequest(e))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.svc.GetBattle(ctx, private.ID, uuid.New()); !errors.Is(err, domain.ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}
