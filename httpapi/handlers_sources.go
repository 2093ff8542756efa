package httpapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/brightgate/relwatch/relmodel"
	"github.com/brightgate/relwatch/store"
)

func (h *apiHandler) listSources(c echo.Context) error {
	sources, err := h.store.ListSources(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, sources)
}

// trackerSummary is the /trackers list shape: a Source enriched with the
// fields a dashboard needs without an N+1 query per row.
type trackerSummary struct {
	relmodel.Source
	LatestVersion string `json:"latest_version,omitempty"`
	ChannelCount  int    `json:"channel_count"`
}

func (h *apiHandler) listTrackers(c echo.Context) error {
	ctx := c.Request().Context()
	sources, err := h.store.ListSources(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	names := make([]string, len(sources))
	for i, src := range sources {
		names[i] = src.Name
	}
	recent, err := h.store.RecentPerSource(ctx, names, 1)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	out := make([]trackerSummary, len(sources))
	for i, src := range sources {
		out[i] = trackerSummary{Source: src, ChannelCount: len(src.Channels)}
		if releases := recent[src.Name]; len(releases) > 0 {
			out[i].LatestVersion = releases[0].Version
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (h *apiHandler) getSource(c echo.Context) error {
	src, err := h.store.GetSource(c.Request().Context(), c.Param("name"))
	if store.IsNotFound(err) {
		return echo.NewHTTPError(http.StatusNotFound, "source not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, src)
}

func (h *apiHandler) putSource(c echo.Context) error {
	var src relmodel.Source
	if err := c.Bind(&src); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if name := c.Param("name"); name != "" {
		src.Name = name
	}
	if src.Name == "" || src.Kind == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and kind are required")
	}
	if src.IntervalMinutes <= 0 {
		src.IntervalMinutes = 15
	}

	ctx := c.Request().Context()
	if err := h.store.PutSource(ctx, src); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := h.scheduler.Refresh(ctx, src.Name); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "source saved but scheduling failed: "+err.Error())
	}
	return c.JSON(http.StatusOK, src)
}

func (h *apiHandler) deleteSource(c echo.Context) error {
	name := c.Param("name")
	if err := h.store.DeleteSource(c.Request().Context(), name); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.scheduler.Remove(name)
	return c.NoContent(http.StatusNoContent)
}

func (h *apiHandler) checkSource(c echo.Context) error {
	status := h.scheduler.CheckNow(c.Request().Context(), c.Param("name"))
	return c.JSON(http.StatusOK, status)
}

func (h *apiHandler) getSourceStatus(c echo.Context) error {
	st, err := h.store.GetStatus(c.Request().Context(), c.Param("name"))
	if store.IsNotFound(err) {
		return echo.NewHTTPError(http.StatusNotFound, "no status recorded for source")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, st)
}

func (h *apiHandler) listStatuses(c echo.Context) error {
	statuses, err := h.store.ListStatuses(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, statuses)
}

func (h *apiHandler) listReleases(c echo.Context) error {
	releases, total, err := h.store.ListReleases(c.Request().Context(), releaseFilterFromQuery(c, c.Param("name")))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"releases": releases, "total": total})
}

// listAllReleases backs the top-level /releases endpoint: the same filters
// as a per-source listing, but source is taken from the query string
// instead of the path, defaulting to every source.
func (h *apiHandler) listAllReleases(c echo.Context) error {
	releases, total, err := h.store.ListReleases(c.Request().Context(), releaseFilterFromQuery(c, c.QueryParam("source")))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"releases": releases, "total": total})
}

// latestReleases returns the 5 most-recent current releases across every
// source, for the dashboard headline widget.
func (h *apiHandler) latestReleases(c echo.Context) error {
	releases, _, err := h.store.ListReleases(c.Request().Context(), store.ReleaseFilter{Limit: 5})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, releases)
}

func releaseFilterFromQuery(c echo.Context, sourceName string) store.ReleaseFilter {
	limit, offset := pageParams(c)
	filter := store.ReleaseFilter{
		SourceName:     sourceName,
		Search:         c.QueryParam("search"),
		IncludeHistory: c.QueryParam("include_history") == "true",
		Limit:          limit,
		Offset:         offset,
	}
	if v := c.QueryParam("is_prerelease"); v != "" {
		b := v == "true"
		filter.IsPrerelease = &b
	}
	return filter
}

func pageParams(c echo.Context) (limit, offset int) {
	limit = 50
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(c.QueryParam("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
