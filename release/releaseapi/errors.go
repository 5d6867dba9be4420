package releaseapi

import "errors"

var (
	ErrProjectNotFound     = errors.New("project not found")
	ErrVersionNotFound     = errors.New("version not found")
	ErrNoPublishedVersion  = errors.New("no published version")
	ErrDraftExists         = errors.New("draft version already exists")
	ErrValidationFailed    = errors.New("validation failed")
	ErrBuildFailed         = errors.New("build failed")
	ErrStorageFailed       = errors.New("storage failed")
	ErrConcurrencyConflict = errors.New("concurrent publish in progress")
	ErrVersionIsCurrent    = errors.New("version is the current release")
)
