package logging

import "context"

type contextKey string

const (
	serverKey  contextKey = "server"
	commandKey contextKey = "command"
)

// WithServer adds the gallery backend URL to the context.
func WithServer(ctx context.Context, server string) context.Context {
	return context.WithValue(ctx, serverKey, server)
}

// WithCommand adds the running CLI command name to the context.
func WithCommand(ctx context.Context, command string) context.Context {
	return context.WithValue(ctx, commandKey, command)
}

// GetServer retrieves the server URL from the context.
// Returns empty string if not present.
func GetServer(ctx context.Context) string {
	if s, ok := ctx.Value(serverKey).(string); ok {
		return s
	}
	return ""
}

// GetCommand retrieves the command name from the context.
// Returns empty string if not present.
func GetCommand(ctx context.Context) string {
	if c, ok := ctx.Value(commandKey).(string); ok {
		return c
	}
	return ""
}
