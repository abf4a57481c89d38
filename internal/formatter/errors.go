package formatter

import (
	"errors"
	"strings"
)

// ErrorKind классифицирует неуспешный запуск внешнего форматтера.
type ErrorKind int

const (
	// NonZeroExit — инструмент отработал и вернул код возврата, отличный от нуля.
	NonZeroExit ErrorKind = iota + 1
	// SpawnError — процесс не удалось запустить (нет бинаря, нет прав и т.п.).
	SpawnError
	// Timeout — инструмент не завершился за отведенное время.
	Timeout
)

func (k ErrorKind) String() string {
	switch k {
	case NonZeroExit:
		return "non_zero_exit"
	case SpawnError:
		return "spawn_error"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error описывает Failure(kind, message) для одного запроса форматирования.
type Error struct {
	Kind    ErrorKind
	Message string
	// ExitCode заполнен только для NonZeroExit.
	ExitCode int
	// Stderr заполнен только для NonZeroExit.
	Stderr string
}

func (e *Error) Error() string { return e.Message }

// IsKind сообщает, является ли err ошибкой форматтера заданного вида.
func IsKind(err error, kind ErrorKind) bool {
	var fe *Error
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Kind == kind
}

// KindOf возвращает вид ошибки форматтера или 0, если err не *Error.
func KindOf(err error) ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// UserMessage возвращает одно сообщение для пользователя: stderr, если он есть,
// иначе текст ошибки.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		if s := strings.TrimSpace(fe.Stderr); s != "" {
			return s
		}
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "unknown error"
}

// Result — значение Success(text) | Failure(err) для транспортов и хранилища.
type Result struct {
	Text string
	Err  error
}

// NewResult упаковывает пару (text, err), возвращенную Format.
func NewResult(text string, err error) Result {
	if err != nil {
		return Result{Err: err}
	}
	return Result{Text: text}
}

// OK сообщает, что результат успешный.
func (r Result) OK() bool { return r.Err == nil }
