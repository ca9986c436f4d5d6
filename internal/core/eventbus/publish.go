package eventbus

// PublishActionRejected publishes EventActionRejected.
func (bus *EventBus) PublishActionRejected(p ActionRejectedPayload) {
	bus.send(EventActionRejected, p)
}

// SubscribeActionRejected registers fn for EventActionRejected.
func (bus *EventBus) SubscribeActionRejected(fn func(ActionRejectedPayload)) {
	bus.subscribe(EventActionRejected, func(p any) { fn(p.(ActionRejectedPayload)) })
}

// PublishCommitFailed publishes EventCommitFailed.
func (bus *EventBus) PublishCommitFailed(p CommitFailedPayload) {
	bus.send(EventCommitFailed, p)
}

// SubscribeCommitFailed registers fn for EventCommitFailed.
func (bus *EventBus) SubscribeCommitFailed(fn func(CommitFailedPayload)) {
	bus.subscribe(EventCommitFailed, func(p any) { fn(p.(CommitFailedPayload)) })
}

// PublishCommitStarted publishes EventCommitStarted.
func (bus *EventBus) PublishCommitStarted(p CommitStartedPayload) {
	bus.send(EventCommitStarted, p)
}

// SubscribeCommitStarted registers fn for EventCommitStarted.
func (bus *EventBus) SubscribeCommitStarted(fn func(CommitStartedPayload)) {
	bus.subscribe(EventCommitStarted, func(p any) { fn(p.(CommitStartedPayload)) })
}

// PublishCommitSucceeded publishes EventCommitSucceeded.
func (bus *EventBus) PublishCommitSucceeded(p CommitSucceededPayload) {
	bus.send(EventCommitSucceeded, p)
}

// SubscribeCommitSucceeded registers fn for EventCommitSucceeded.
func (bus *EventBus) SubscribeCommitSucceeded(fn func(CommitSucceededPayload)) {
	bus.subscribe(EventCommitSucceeded, func(p any) { fn(p.(CommitSucceededPayload)) })
}

// PublishStateChanged publishes EventStateChanged.
func (bus *EventBus) PublishStateChanged(p StateChangedPayload) {
	bus.send(EventStateChanged, p)
}

// SubscribeStateChanged registers fn for EventStateChanged.
func (bus *EventBus) SubscribeStateChanged(fn func(StateChangedPayload)) {
	bus.subscribe(EventStateChanged, func(p any) { fn(p.(StateChangedPayload)) })
}
