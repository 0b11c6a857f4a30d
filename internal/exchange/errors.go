package exchange

import (
	"errors"
	"fmt"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

var (
	// ErrMaintenance 表示交易所处于维护状态。
	ErrMaintenance = errors.New("exchange on maintenance")
	// ErrInvalidOrderID 表示订单号格式无法被网关识别。
	ErrInvalidOrderID = errors.New("exchange: invalid order id")
)

// ErrorKind 区分业务拒绝与传输失败。
type ErrorKind string

const (
	// KindExchange 交易所已收到请求并拒绝（非法交易对、保证金不足、价格过滤等）。
	KindExchange ErrorKind = "exchange"
	// KindTransport 未拿到有效响应（网络、超时、报文异常）。
	KindTransport ErrorKind = "transport"
)

// Error 为网关统一错误。
type Error struct {
	Kind    ErrorKind
	Code    int64
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code=%d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewExchangeError 构造业务拒绝错误。
func NewExchangeError(code int64, message string, cause error) *Error {
	return &Error{Kind: KindExchange, Code: code, Message: message, Err: cause}
}

// NewTransportError 构造传输错误。
func NewTransportError(cause error) *Error {
	message := "transport failure"
	if cause != nil {
		message = cause.Error()
	}
	return &Error{Kind: KindTransport, Message: message, Err: cause}
}

// Classify 返回错误类别，未识别的错误一律视为传输错误。
func Classify(err error) ErrorKind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return KindTransport
}

// IsRetryable 判断错误是否可重试。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var gwErr *Error
	if errors.As(err, &gwErr) && gwErr.Kind == KindExchange {
		return false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		return isCCXTNetworkError(ccxtErr)
	}

	return false
}

func isCCXTNetworkError(err *ccxt.Error) bool {
	switch err.Type {
	case ccxt.NetworkErrorErrType,
		ccxt.RequestTimeoutErrType,
		ccxt.ExchangeNotAvailableErrType,
		ccxt.RateLimitExceededErrType,
		ccxt.DDoSProtectionErrType,
		ccxt.BadResponseErrType,
		ccxt.NullResponseErrType:
		return true
	default:
		return false
	}
}
