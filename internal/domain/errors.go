package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a quiz session has not been opened.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionExists is returned when opening a session that is already live.
	ErrSessionExists = errors.New("quiz session already open")
	// ErrParticipantNotFound is returned when a client acts before joining.
	ErrParticipantNotFound = errors.New("participant not found in quiz")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrInvalidQuiz indicates loaded quiz content is not playable.
	ErrInvalidQuiz = errors.New("invalid quiz")
	// ErrQuizCreationUnsupported is returned when no question bank can build quizzes.
	ErrQuizCreationUnsupported = errors.New("quiz creation not supported by this bank")

	// ErrEmptyName rejects a join with a blank display name.
	ErrEmptyName = errors.New("display name is empty")
	// ErrDuplicateName rejects a join whose name is taken (case-insensitive).
	ErrDuplicateName = errors.New("display name already taken")
	// ErrQuizStarted rejects new joins once the host has started the quiz.
	ErrQuizStarted = errors.New("quiz already started")

	// ErrInvalidOption rejects an answer key that is not an option of the active question.
	ErrInvalidOption = errors.New("invalid option")
	// ErrAlreadyAnswered rejects a second answer for the same question index.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrNoActiveQuestion rejects answers outside an active question window.
	ErrNoActiveQuestion = errors.New("no active question")

	// ErrUnauthorized rejects host-only actions from non-host connections.
	ErrUnauthorized = errors.New("action requires host")
)
