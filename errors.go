package orchestrator

import "errors"

var (
	// ErrDuplicateName is returned by Start when the given child name was
	// already used in this Builder.
	ErrDuplicateName = errors.New("orchestrator: duplicate child name")

	// ErrStarted is returned by Start once Connect has already been called;
	// the Builder->Connected transition is one-way.
	ErrStarted = errors.New("orchestrator: builder already connected")

	// ErrConnectFailed wraps the handshake failure of one or more children
	// inside Builder.Connect.
	ErrConnectFailed = errors.New("orchestrator: connect failed")

	// ErrUnknownBridge is returned by a wiring primitive given a bridge name
	// that was never registered with this topology.
	ErrUnknownBridge = errors.New("orchestrator: unknown bridge")

	// ErrRoutesSealed is returned by RouteTopicToBridge once a router has
	// already been spawned.
	ErrRoutesSealed = errors.New("orchestrator: routes already sealed")

	// ErrEmptyTopicMap is returned by ForwardBridgeRx when given an empty
	// topic->sender map.
	ErrEmptyTopicMap = errors.New("orchestrator: empty topic map")

	// ErrUnroutedTopic is returned by a router task when a message's topic
	// has no registered subscriber. It is fatal to the pipes arm of Run.
	ErrUnroutedTopic = errors.New("orchestrator: message topic has no route")
)
