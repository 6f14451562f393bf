package service

import "errors"

var (
	// ErrValidation invalid request parameters
	ErrValidation = errors.New("validation failed")
	// ErrNotFound resource does not exist
	ErrNotFound = errors.New("not found")
	// ErrPolicyExists container already has a scaling policy
	ErrPolicyExists = errors.New("scaling policy already exists for this container")
	// ErrNotRunning operation requires a running load test
	ErrNotRunning = errors.New("load test is not running")
	// ErrUnsupported the configured registry or metrics source lacks the capability
	ErrUnsupported = errors.New("operation not supported by the configured provider")
)
