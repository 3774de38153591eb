package api

import (
	"github.com/labstack/echo/v4"

	"github.com/vrouter/nlengine/types"
)

const (
	JSON_PRETTY_INDENT string = "    "
)

// StatsSource is anything able to report engine statistics.
type StatsSource interface {
	Stats() types.Stats
}

type rootResponse struct {
	ApiRoutes []*echo.Route `json:"routes"`
}

type groupResponse struct {
	Family string `json:"family"`
	Group  string `json:"group"`
	ID     uint32 `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type extendedContext struct {
	echo.Context
	apiRoutes []*echo.Route
	stats     StatsSource
	resolver  types.FamilyResolver
}
