package domain

import "errors"

var (
	// ErrBattleNotFound is returned when a battle ID does not resolve.
	ErrBattleNotFound = errors.New("battle not found")
	// ErrNotParticipant is returned when a user acts on a battle they are not part of.
	ErrNotParticipant = errors.New("not a participant in this battle")
	// ErrInvalidState is returned for transitions the battle status does not allow.
	ErrInvalidState = errors.New("battle is not in a valid state for this action")
	// ErrAlreadyAnswered is returned when a (battle, question, user) triple already has a response.
	ErrAlreadyAnswered = errors.New("question already answered in this battle")
	// ErrSelfBattle is returned when a user challenges themselves or joins their own battle.
	ErrSelfBattle = errors.New("cannot battle yourself")
	// ErrOpponentNotFound is returned when the challenged username does not exist.
	ErrOpponentNotFound = errors.New("opponent not found")
	// ErrFolderNotFound indicates the question bank could not be loaded.
	ErrFolderNotFound = errors.New("folder not found")
	// ErrQuestionNotFound indicates a submitted question is not part of the battle.
	ErrQuestionNotFound = errors.New("question not part of this battle")
	// ErrBankTooSmall is returned when a folder holds fewer questions than requested.
	ErrBankTooSmall = errors.New("folder has fewer questions than requested")
	// ErrBattleExpired is returned for answers submitted past the battle deadline.
	ErrBattleExpired = errors.New("battle time limit has elapsed")
	// ErrRoomCodeExhausted is returned when code allocation keeps colliding.
	ErrRoomCodeExhausted = errors.New("unable to allocate a unique room code")
	// ErrInviteNotFound is returned when a pending invite does not resolve for the caller.
	ErrInviteNotFound = errors.New("invite not found")
	// ErrUserExists is returned when registering a taken username or email.
	ErrUserExists = errors.New("username or email already registered")
	// ErrInvalidCredentials is returned for failed logins.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUserNotFound is returned when a user ID does not resolve.
	ErrUserNotFound = errors.New("user not found")
)
