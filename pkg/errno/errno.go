package errno

import "net/http"

// Errno defines the error code logic
type Errno struct {
	Code    int
	Status  int // 对应的 HTTP 状态码
	Message string
}

func (e Errno) Error() string {
	return e.Message
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, int, string) {
	if err == nil {
		return OK.Status, OK.Code, OK.Message
	}

	switch typed := err.(type) {
	case *Errno:
		return typed.Status, typed.Code, typed.Message
	case Errno:
		return typed.Status, typed.Code, typed.Message
	default:
		return InternalServerError.Status, InternalServerError.Code, err.Error()
	}
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Status: http.StatusOK, Message: "Success"}
	InternalServerError = Errno{Code: 10001, Status: http.StatusInternalServerError, Message: "Internal server error"}
	ErrBind             = Errno{Code: 10002, Status: http.StatusBadRequest, Message: "Error occurred while binding the request body to the struct"}
	ErrDatabase         = Errno{Code: 10003, Status: http.StatusInternalServerError, Message: "Database error"}
)

// Business Errors (20000+)
var (
	ErrOrderExists      = Errno{Code: 20101, Status: http.StatusConflict, Message: "Order already has a deposit address"}
	ErrAddressNotFound  = Errno{Code: 20102, Status: http.StatusNotFound, Message: "Address not found"}
	ErrPaymentsNotFound = Errno{Code: 20103, Status: http.StatusNotFound, Message: "Payments not found"}
	ErrRateUnavailable  = Errno{Code: 20104, Status: http.StatusServiceUnavailable, Message: "Exchange rate unavailable"}
)
