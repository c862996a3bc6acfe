package logger

type Logger interface {
	Log(msg string)
	Warn(msg string)
	Error(msg string)
}
