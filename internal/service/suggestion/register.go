package suggestion

import (
	"google.golang.org/grpc"

	"github.com/oggyb/matchmaker/internal/app"
)

// Registrar ties the Suggestion service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
}

// NewRegistrar creates a new Registrar for the Suggestion service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the Suggestion service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	RegisterSuggestionServiceServer(s, NewSuggestionService(r.appCtx))
}

// ServiceName is reported to the health service.
func (r *Registrar) ServiceName() string { return ServiceName }
