package metrics

import "fmt"

// Tag creates a formatted DataDog tag string in "key:value" format.
func Tag(key, value string) string {
	return fmt.Sprintf("%s:%s", key, value)
}

func StatusTag(status string) string {
	return Tag("status", status)
}

// QueueTag names the task queue (main or refresh).
func QueueTag(queue string) string {
	return Tag("queue", queue)
}

// ReasonTag carries an admission rejection reason.
func ReasonTag(reason string) string {
	return Tag("reason", reason)
}

// StageTag names the pipeline stage (fetch, transform, store, evict).
func StageTag(stage string) string {
	return Tag("stage", stage)
}

func OperationTag(op string) string {
	return Tag("operation", op)
}

func FormatTag(format string) string {
	return Tag("format", format)
}

// RouteTag names an HTTP endpoint.
func RouteTag(route string) string {
	return Tag("route", route)
}

func CodeTag(code int) string {
	return Tag("code", fmt.Sprintf("%d", code))
}

func CircuitStateTag(state string) string {
	return Tag("circuit_state", state)
}
