package model

import (
	"encoding/json"
	"errors"

	"bloom-api/internal/config"
	"bloom-api/internal/shared"
)

// ============ STATUS ============

// Status is the public state of a long-running action.
type Status string

const (
	StatusNotStarted Status = "NotStarted"
	StatusRunning    Status = "Running"
	StatusSucceeded  Status = "Succeeded"
	StatusFailed     Status = "Failed"
	// StatusCanceled is part of the vocabulary clients understand; nothing produces it yet.
	StatusCanceled Status = "Canceled"
)

// IsTerminal reports whether polling can stop.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// ============ ACTIONS ============

// Name identifies a registered step.
type Name string

const (
	UploadStart  Name = "upload-start"
	UploadFinish Name = "upload-finish"
)

// CodeInternalError is reported for failures that are not typed step errors.
const CodeInternalError = "InternalError"

const internalErrorMessage = "An unexpected error occurred. Please try again later."

var (
	ErrActionNotFound = errors.New("action not found")
	ErrUnknownAction  = errors.New("unknown action")
)

// CodedError is a failure a step reports to the client as {code, message}.
// The message must be safe to show; causes stay server side.
type CodedError interface {
	error
	ErrorCode() string
	PublicMessage() string
}

// ============ WIRE SHAPES ============

// ErrorInfo - {code, message} as clients see it
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// InternalError is the generic failure shown when the cause must stay hidden.
func InternalError() *ErrorInfo {
	return &ErrorInfo{Code: CodeInternalError, Message: internalErrorMessage}
}

// Payload - the asynq task body of action:run
type Payload struct {
	Action Name               `json:"action"`
	Env    config.Environment `json:"env"`
	User   shared.UserInfo    `json:"user"`
	Params json.RawMessage    `json:"params"`
}

// Outcome is what a finished step leaves as the task result. A typed
// failure completes the task with Failed set instead of failing it.
type Outcome struct {
	Failed bool            `json:"failed,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorInfo      `json:"error,omitempty"`
}

// State - GET /v1/status/{id} response
type State struct {
	ID     string          `json:"id"`
	Status Status          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorInfo      `json:"error,omitempty"`
}

// Accepted - 202 body of an action entry point
type Accepted struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}
