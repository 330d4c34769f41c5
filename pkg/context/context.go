package context

import "context"

type ContextKey string

var (
	RequestIDKey     = ContextKey("X-Request-Id")
	MethodKey        = ContextKey("X-Method")
	RouteKey         = ContextKey("X-Route")
	RemoteIPKey      = ContextKey("X-Remote-Ip")
	WorkspaceIDKey   = ContextKey("X-Workspace-Id")
	UserIDKey        = ContextKey("X-User-Id")
	IntegrationIDKey = ContextKey("X-Integration-Id")
	ProviderKey      = ContextKey("X-Provider")
)

func getString(ctx context.Context, key ContextKey) string {
	value, ok := ctx.Value(key).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	return getString(ctx, RequestIDKey)
}

func SetMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, MethodKey, method)
}

func GetMethod(ctx context.Context) string {
	return getString(ctx, MethodKey)
}

func SetRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, RouteKey, route)
}

func GetRoute(ctx context.Context) string {
	return getString(ctx, RouteKey)
}

func SetRemoteIP(ctx context.Context, remoteIP string) context.Context {
	return context.WithValue(ctx, RemoteIPKey, remoteIP)
}

func GetRemoteIP(ctx context.Context) string {
	return getString(ctx, RemoteIPKey)
}

func SetWorkspaceID(ctx context.Context, workspaceID string) context.Context {
	return context.WithValue(ctx, WorkspaceIDKey, workspaceID)
}

func GetWorkspaceID(ctx context.Context) string {
	return getString(ctx, WorkspaceIDKey)
}

func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func GetUserID(ctx context.Context) string {
	return getString(ctx, UserIDKey)
}

// SetIntegration tags the context with the integration a sync pass is working on.
func SetIntegration(ctx context.Context, integrationID, provider string) context.Context {
	ctx = context.WithValue(ctx, IntegrationIDKey, integrationID)
	return context.WithValue(ctx, ProviderKey, provider)
}

func GetIntegrationID(ctx context.Context) string {
	return getString(ctx, IntegrationIDKey)
}

func GetProvider(ctx context.Context) string {
	return getString(ctx, ProviderKey)
}
