package oauth

// Result is the outcome of a token request.
type Result int

const (
	OK Result = iota
	// CodeNotVerifiedYet: the user has not completed the browser step; poll again later.
	CodeNotVerifiedYet
	// CodeExpired: the device code is no longer usable; restart with FetchUserCode.
	CodeExpired
	// InvalidRefreshToken: the refresh token was revoked; delete it and restart with FetchUserCode.
	InvalidRefreshToken
	CannotLoadRefreshToken
	InvalidResponse
	// RequestFailed: the request did not get a response (transient network failure).
	RequestFailed
)

var resultNames = [...]string{
	OK:                     "OK",
	CodeNotVerifiedYet:     "CODE_NOT_VERIFIED_YET",
	CodeExpired:            "CODE_EXPIRED",
	InvalidRefreshToken:    "INVALID_REFRESH_TOKEN",
	CannotLoadRefreshToken: "CANNOT_LOAD_REFRESH_TOKEN",
	InvalidResponse:        "INVALID_RESPONSE",
	RequestFailed:          "REQUEST_FAILED",
}

func (r Result) String() string {
	if r < 0 || int(r) >= len(resultNames) {
		return "UNKNOWN"
	}
	return resultNames[r]
}

// classify maps the error field of a 400 token response.
func classify(code string, refresh bool) Result {
	switch code {
	case "authorization_pending", "slow_down":
		return CodeNotVerifiedYet
	case "expired_token", "access_denied":
		return CodeExpired
	case "invalid_grant":
		if refresh {
			return InvalidRefreshToken
		}
		return CodeExpired
	default:
		return InvalidResponse
	}
}
