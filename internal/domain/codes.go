package domain

// Result codes carried in `code` and `status` fields.
const (
	CodeSuccess = 200

	CodeTimeout      = 101
	CodeBadRequest   = 400
	CodeNotFound     = 404
	CodeRateLimited  = 429
	CodeInternal     = 500
	CodeInvalidInput = 414
)

// ConnectEvent tags error notifications with the stage that failed.
type ConnectEvent int

const (
	EventReserve ConnectEvent = 1
	EventJoin    ConnectEvent = 2
	EventLocal   ConnectEvent = 3
)

func (e ConnectEvent) String() string {
	switch e {
	case EventReserve:
		return "reserve"
	case EventJoin:
		return "join"
	case EventLocal:
		return "local"
	default:
		return "unknown"
	}
}

// Reserve stage codes.
const (
	ReserveDataError       = 0
	ReserveTimeout         = 101
	ReserveInvalidParam    = 414
	ReserveMoreThanTwoUser = 600
	ReserveServerFail      = 601
)

// Join stage codes.
const (
	JoinTimeout        = 101
	JoinMeetingMode    = 102
	JoinRTMPMode       = 103
	JoinRTMPNodes      = 104
	JoinRTMPHost       = 105
	JoinRTMPCreate     = 106
	JoinInvalidParam   = 400
	JoinDesKey         = 401
	JoinInvalidRequest = 417
	JoinServerUnknown  = 500
	JoinChannelBusy    = 9104
)

// Local codes.
const (
	LocalChannelStartFail = 11000
	LocalDisconnected     = 11001
	LocalVersionSelfLow   = 11002
	LocalVersionRemoteLow = 11003
	LocalInvalid          = 11403
)

// LogLevel is the severity of an on_log command.
type LogLevel int

const (
	LogError LogLevel = iota
	LogWarn
	LogApp
	LogPro
)
