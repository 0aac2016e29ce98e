package interceptors

import "errors"

var ErrUnexpectedResult = errors.New("interceptors: unexpected result shape")
