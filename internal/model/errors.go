package model

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidTeam  = errors.New("invalid team key")
	ErrTaskNotFound = errors.New("discussion task not found")
)
