package logger

import "strconv"

var levelNames = [...]string{
	ERROR: "ERROR",
	WARN:  "WARN",
	INFO:  "INFO",
	DEBUG: "DEBUG",
	TRACE: "TRACE",
}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return "Level(" + strconv.FormatInt(int64(l), 10) + ")"
	}
	return levelNames[l]
}
