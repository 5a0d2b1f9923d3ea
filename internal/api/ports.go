package api

import (
	"context"
	"net/http"

	"github.com/paphko/habpanelviewer/internal/command"
	"github.com/paphko/habpanelviewer/internal/permission"
	"github.com/paphko/habpanelviewer/internal/telemetry"
)

// DispatcherPort defines the minimal interface the API needs from the dispatcher.
type DispatcherPort interface {
	Dispatch(ctx context.Context, cmd *command.Command) bool
	Handlers() []command.HandlerInfo
}

// TelemetryPort defines the minimal interface the API needs from the telemetry hub.
type TelemetryPort interface {
	Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error
}

// GrantsPort defines the runtime-mutable host permission store.
type GrantsPort interface {
	Granted(name string) bool
	Grant(name string) bool
	Revoke(name string) bool
	List() []string
}

// Compile-time assertions for port conformance
var (
	_ DispatcherPort = (*command.Dispatcher)(nil)
	_ TelemetryPort  = (*telemetry.Hub)(nil)
	_ GrantsPort     = (*permission.Grants)(nil)
)
