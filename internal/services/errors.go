package services

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrQuotaExceeded = errors.New("monthly usage limit reached")
	ErrEmptyPrompt   = errors.New("prompt is empty")
)
