package tourney

import (
	"github.com/heroiclabs/nakama-common/runtime"
)

var (
	ErrInternal           = runtime.NewError("internal error occurred", INTERNAL_ERROR_CODE)
	ErrBadInput           = runtime.NewError("bad input", INVALID_ARGUMENT_ERROR_CODE)
	ErrFileNotFound       = runtime.NewError("file not found", INVALID_ARGUMENT_ERROR_CODE)
	ErrNoSessionUser      = runtime.NewError("no user ID in session", INVALID_ARGUMENT_ERROR_CODE)
	ErrPayloadDecode      = runtime.NewError("cannot decode json", INTERNAL_ERROR_CODE)
	ErrPayloadEmpty       = runtime.NewError("payload should not be empty", INVALID_ARGUMENT_ERROR_CODE)
	ErrPayloadEncode      = runtime.NewError("cannot encode json", INTERNAL_ERROR_CODE)
	ErrPermissionDenied   = runtime.NewError("server to server call required", PERMISSION_DENIED_ERROR_CODE)
	ErrSystemNotAvailable = runtime.NewError("system not available", INTERNAL_ERROR_CODE)

	ErrTournamentNotFound = runtime.NewError("tournament not found", NOT_FOUND_ERROR_CODE)
	ErrTournamentEnded    = runtime.NewError("tournament end time must be in the future", INVALID_ARGUMENT_ERROR_CODE)
	ErrTournamentName     = runtime.NewError("tournament name must not be blank", INVALID_ARGUMENT_ERROR_CODE)
	ErrRewardNotFound     = runtime.NewError("reward not found", NOT_FOUND_ERROR_CODE)
	ErrNoProvince         = runtime.NewError("player is not a member of any province", FAILED_PRECONDITION_ERROR_CODE)
	ErrMembershipNotReady = runtime.NewError("group membership not ready", UNAVAILABLE_ERROR_CODE)
	ErrPersist            = runtime.NewError("failed to persist state", INTERNAL_ERROR_CODE)

	ErrDocumentNotFound = runtime.NewError("document not found", NOT_FOUND_ERROR_CODE)
	ErrDocumentCorrupt  = runtime.NewError("document is corrupt", INTERNAL_ERROR_CODE)

	ErrSchedulerRunning = runtime.NewError("scheduler already running", FAILED_PRECONDITION_ERROR_CODE)
	ErrSchedulerStopped = runtime.NewError("scheduler not running", FAILED_PRECONDITION_ERROR_CODE)
)
