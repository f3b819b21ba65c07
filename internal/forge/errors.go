package forge

import (
	"github.com/abduznik/AI-PR-Analyzer/internal/foundation/errors"
)

var (
	// ErrRepositoryNotFound signals that a repository was not found or is not visible to the token.
	ErrRepositoryNotFound = errors.NotFoundError("repository not found").Build()

	// ErrAuthRequired signals that the forge client was built without a token.
	ErrAuthRequired = errors.AuthError("authentication required for forge client").Build()

	// ErrInvalidRepoName signals a repository name that is not "owner/name".
	ErrInvalidRepoName = errors.ValidationError("repository name must be owner/name").Build()
)
