package ports

import (
	"context"
	"food-dispatch-service/internal/domain"
)

// Port: a boundary for persisting computed routes.
type RouteRepository interface {
	SaveRoute(ctx context.Context, route *domain.Route) error
	GetRoute(ctx context.Context, routeID string) (*domain.Route, error)
	UpdateRouteStatus(ctx context.Context, routeID string, status domain.RouteStatus) error
}
