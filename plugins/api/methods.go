package api

import (
	"errors"
	"fmt"
	"net/http"
	"syscall"

	"github.com/labstack/echo/v4"

	"github.com/vrouter/nlengine/netlink"
)

func handleRoot(c echo.Context) error {
	cc := c.(*extendedContext)
	return c.JSONPretty(http.StatusOK, &rootResponse{
		ApiRoutes: cc.apiRoutes,
	}, JSON_PRETTY_INDENT)
}

func handleStats(c echo.Context) error {
	cc := c.(*extendedContext)

	s := cc.stats.Stats()
	s.Verbosity = c.QueryParam("verbosity")

	return c.JSONPretty(http.StatusOK, &s, JSON_PRETTY_INDENT)
}

func handleFamily(c echo.Context) error {
	cc := c.(*extendedContext)

	f, err := cc.resolver.ResolveFamily(c.Request().Context(), c.Param("name"))
	if err != nil {
		return resolutionError(c, err)
	}

	return c.JSONPretty(http.StatusOK, &f, JSON_PRETTY_INDENT)
}

func handleGroup(c echo.Context) error {
	cc := c.(*extendedContext)

	name, group := c.Param("name"), c.Param("group")

	f, err := cc.resolver.ResolveFamily(c.Request().Context(), name)
	if err != nil {
		return resolutionError(c, err)
	}

	id, ok := f.Groups[group]
	if !ok {
		return c.JSONPretty(http.StatusNotFound, &errorResponse{
			Error: fmt.Sprintf("family %q has no multicast group %q", name, group),
		}, JSON_PRETTY_INDENT)
	}

	return c.JSONPretty(http.StatusOK, &groupResponse{Family: name, Group: group, ID: id}, JSON_PRETTY_INDENT)
}

// resolutionError maps engine failures onto HTTP statuses.
func resolutionError(c echo.Context, err error) error {
	status := http.StatusBadGateway

	var nlErr *netlink.Error
	switch {
	case errors.As(err, &nlErr) && nlErr.Kind == netlink.KindProtocol && nlErr.Code == int(syscall.ENOENT):
		status = http.StatusNotFound
	case errors.Is(err, netlink.ErrAdmission):
		status = http.StatusServiceUnavailable
	case errors.Is(err, netlink.ErrTimeout):
		status = http.StatusGatewayTimeout
	}

	return c.JSONPretty(status, &errorResponse{Error: err.Error()}, JSON_PRETTY_INDENT)
}
