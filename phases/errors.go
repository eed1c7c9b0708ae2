package phases

import "errors"

var (
	// ErrProviderRequired is returned when Import is built without a provider.
	ErrProviderRequired = errors.New("provider extractor required")

	// ErrServiceRequired is returned when a phase is built without its AI service.
	ErrServiceRequired = errors.New("ai service required")

	// ErrRepositoryRequired is returned when a required repository is missing.
	ErrRepositoryRequired = errors.New("repository required")

	// ErrOutputDirRequired is returned when no output directory is configured.
	ErrOutputDirRequired = errors.New("output directory required")

	// ErrInputRequired is returned when Extract has no input path.
	ErrInputRequired = errors.New("input path required")

	// ErrNoFrontMatter is returned when a markdown document lacks a YAML header.
	ErrNoFrontMatter = errors.New("document has no front matter")
)
