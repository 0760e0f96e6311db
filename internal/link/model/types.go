package model

// Optional is a value that may be absent.
type Optional[T comparable] struct {
	Value T    `msgpack:"value"`
	Valid bool `msgpack:"valid"`
}

func Some[T comparable](v T) Optional[T] {
	return Optional[T]{Value: v, Valid: true}
}

func None[T comparable]() Optional[T] {
	return Optional[T]{}
}

func (o Optional[T]) Get() (T, bool) {
	return o.Value, o.Valid
}

// ConnectionInfo describes the engine editor instance on the other end.
type ConnectionInfo struct {
	Project       string `msgpack:"project"`
	Executable    string `msgpack:"executable"`
	PID           int    `msgpack:"pid"`
	EngineVersion string `msgpack:"engine_version"`
}

type PlayState uint8

const (
	PlayIdle PlayState = iota
	PlayRunning
	PlayPaused
)

func (s PlayState) String() string {
	switch s {
	case PlayRunning:
		return "play"
	case PlayPaused:
		return "pause"
	default:
		return "idle"
	}
}

// PlayRequest asks the engine editor to change its play session.
type PlayRequest struct {
	State PlayState `msgpack:"state"`
	Mode  int       `msgpack:"mode"`
}

// MemberRef names a member by its owning class.
type MemberRef struct {
	Class  string `msgpack:"class"`
	Member string `msgpack:"member"`
}

func (r MemberRef) String() string {
	return r.Class + "::" + r.Member
}

type CompileResult struct {
	Succeeded bool `msgpack:"succeeded"`
}
