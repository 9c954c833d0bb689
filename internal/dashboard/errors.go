package dashboard

import "fmt"

// Stage names the pipeline step that failed.
type Stage string

// Fatal stages.
const (
	StageCatalog Stage = "catalog"
	StageEngine  Stage = "engine"
)

// Banner texts shown for fatal stages.
const (
	MessageCatalog = "Could not load the dataset catalog"
	MessageEngine  = "Could not start the analytics engine"
)

// Error is a fatal build failure with a user-facing message.
type Error struct {
	Stage       Stage
	Message     string
	Remediation string
	Err         error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage is the banner text shown to the user.
func (e *Error) UserMessage() string {
	return e.Message + ". " + e.Remediation
}

func catalogError(err error) *Error {
	return &Error{
		Stage:   StageCatalog,
		Message: MessageCatalog,
		Remediation: "Hard refresh the page (Ctrl+Shift+R). If it keeps failing, re-run the offline " +
			"ingestion step so data/manifests/catalog.json is published with the site.",
		Err: err,
	}
}

func engineError(err error) *Error {
	return &Error{
		Stage:   StageEngine,
		Message: MessageEngine,
		Remediation: "Hard refresh the page (Ctrl+Shift+R) to reload the engine assets. If it keeps failing, " +
			"re-run the offline ingestion step and redeploy the site.",
		Err: err,
	}
}
