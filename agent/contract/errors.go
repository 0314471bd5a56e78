package contract

import "errors"

var (
	ErrValidation        = errors.New("validation failed")
	ErrCollaborator      = errors.New("collaborator call failed")
	ErrMalformedResponse = errors.New("collaborator response is malformed")
	ErrUnknownGoalType   = errors.New("unknown goal type")
)
