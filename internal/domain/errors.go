package domain

import "errors"

var (
	// ErrQuizNotFound indicates the requested quiz name is not in the bank.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrNoQuestions indicates a start was attempted with no usable questions.
	ErrNoQuestions = errors.New("no questions available")
	// ErrNoSelection is returned when a submission carries no selected options.
	ErrNoSelection = errors.New("no answer selected")
	// ErrNothingToRetry is returned when the wrong-answer queue is empty.
	ErrNothingToRetry = errors.New("no wrong answers to retry")
	// ErrSessionFinished is returned for submissions after the last question.
	ErrSessionFinished = errors.New("session already finished")

	// ErrRoomNotFound is returned when a room code resolves to no document.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomNotWaiting is returned when joining a room that already started.
	ErrRoomNotWaiting = errors.New("room already started or finished")
	// ErrNotHost guards host-only room transitions.
	ErrNotHost = errors.New("only the host may do that")
	// ErrNotInRoom is returned for room actions before create/join.
	ErrNotInRoom = errors.New("not currently in a room")
	// ErrAlreadyInRoom is returned when creating/joining while still joined.
	ErrAlreadyInRoom = errors.New("already in a room")

	// ErrServiceUnavailable marks transport/HTTP failures of the text service.
	ErrServiceUnavailable = errors.New("text service unavailable")
	// ErrEmptyResult marks a text service reply with no usable content.
	ErrEmptyResult = errors.New("text service returned no content")
)
