package fault

import "net/http"

// HTTPStatus maps a code to the status the HTTP transport writes for it.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRoomUnavailable:
		return http.StatusGone
	case CodeConflict:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// CodeFromHTTPStatus maps a response status back to a code. The client
// storage layer uses it to classify rejections it did not produce itself.
func CodeFromHTTPStatus(status int) Code {
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return CodeValidation
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CodeUnauthorized
	case status == http.StatusNotFound:
		return CodeNotFound
	case status == http.StatusGone:
		return CodeRoomUnavailable
	case status == http.StatusConflict:
		return CodeConflict
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		return CodeTimeout
	case status >= 500:
		return CodeNetwork
	default:
		return CodeInternal
	}
}
