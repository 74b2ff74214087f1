// Package crud exposes a collection over HTTP: list, get, create, patch,
// replace and delete, each behind a role allow-list.
package crud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/collection"
	"github.com/hms/hms/pkg/pagination"
)

// Resource describes how one collection is served. Only Path and Coll are
// required. Nil Create and Delete hooks fall back to the plain collection
// operations; PATCH is only served when Update is set.
type Resource[T collection.Record] struct {
	Path       string
	Coll       *collection.Collection[T]
	ReadRoles  []string
	WriteRoles []string

	// Create replaces Coll.Add. It assigns ids, fills denormalized fields
	// and checks references.
	Create func(ctx context.Context, rec T) (T, error)
	// Update serves PATCH. Without it the route is not registered, so
	// records change only through the owning service.
	Update func(ctx context.Context, id string, partial map[string]any, opts ...collection.MutateOption) (T, bool, error)
	// Delete replaces Coll.Delete.
	Delete func(ctx context.Context, id string, opts ...collection.MutateOption) (bool, error)
	// Filter narrows the list beyond the generic field=value query matching.
	// The query keys it consumes are listed in FilterParams.
	Filter       func(c echo.Context) (func(T) bool, error)
	FilterParams []string
	// Less orders the list. Stored order is kept when nil.
	Less func(a, b T) bool

	// ReadOnly disables every write route. NoCreate disables only POST,
	// for resources whose handler registers its own.
	ReadOnly bool
	NoCreate bool
	// AllowReplace enables PUT on the collection root (SetData), admin only.
	AllowReplace bool
}

// reserved query keys never treated as field filters.
var reserved = map[string]bool{"limit": true, "offset": true, "sort": true, "q": true}

// Register mounts the routes under api.
func (r *Resource[T]) Register(api *echo.Group) {
	read := api.Group("/"+r.Path, auth.RequireRole(r.ReadRoles...))
	read.GET("", r.list)
	read.GET("/:id", r.get)

	if r.ReadOnly {
		return
	}
	write := api.Group("/"+r.Path, auth.RequireRole(r.WriteRoles...))
	if !r.NoCreate {
		write.POST("", r.create)
	}
	if r.Update != nil {
		write.PATCH("/:id", r.patch)
	}
	write.DELETE("/:id", r.remove)
	if r.AllowReplace {
		api.PUT("/"+r.Path, r.replace, auth.RequireRole(auth.RoleAdmin))
	}
}

func (r *Resource[T]) list(c echo.Context) error {
	pred, err := FieldFilter[T](c, r.FilterParams...)
	if err != nil {
		return err
	}
	var extra func(T) bool
	if r.Filter != nil {
		if extra, err = r.Filter(c); err != nil {
			return HTTPError(err)
		}
	}

	rev := r.Coll.Revision()
	items := r.Coll.Find(func(it T) bool {
		if extra != nil && !extra(it) {
			return false
		}
		return pred(it)
	})
	if r.Less != nil {
		sort.SliceStable(items, func(i, j int) bool { return r.Less(items[i], items[j]) })
	}
	if c.QueryParam("sort") == "desc" {
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
	}

	pg := pagination.FromContext(c)
	resp := pagination.NewResponse(pagination.Page(items, pg), len(items), pg.Limit, pg.Offset)
	resp.Revision = rev
	SetETag(c, rev)
	return c.JSON(http.StatusOK, resp)
}

func (r *Resource[T]) get(c echo.Context) error {
	rec, ok := r.Coll.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("%s %s not found", r.Path, c.Param("id")))
	}
	SetETag(c, r.Coll.Revision())
	return c.JSON(http.StatusOK, rec)
}

func (r *Resource[T]) create(c echo.Context) error {
	var rec T
	if err := c.Bind(&rec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	if r.Create != nil {
		created, err := r.Create(ctx, rec)
		if err != nil {
			return HTTPError(err)
		}
		return c.JSON(http.StatusCreated, created)
	}
	if err := r.Coll.Add(ctx, rec); err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (r *Resource[T]) patch(c echo.Context) error {
	opts, err := MutateOptions(c)
	if err != nil {
		return err
	}
	var partial map[string]any
	if err := json.NewDecoder(c.Request().Body).Decode(&partial); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	rec, found, err := r.Update(c.Request().Context(), c.Param("id"), partial, opts...)
	if err != nil {
		return HTTPError(err)
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("%s %s not found", r.Path, c.Param("id")))
	}
	return c.JSON(http.StatusOK, rec)
}

func (r *Resource[T]) remove(c echo.Context) error {
	opts, err := MutateOptions(c)
	if err != nil {
		return err
	}
	del := r.Coll.Delete
	if r.Delete != nil {
		del = r.Delete
	}
	found, err := del(c.Request().Context(), c.Param("id"), opts...)
	if err != nil {
		return HTTPError(err)
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("%s %s not found", r.Path, c.Param("id")))
	}
	return c.NoContent(http.StatusNoContent)
}

func (r *Resource[T]) replace(c echo.Context) error {
	opts, err := MutateOptions(c)
	if err != nil {
		return err
	}
	var items []T
	if err := c.Bind(&items); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := r.Coll.SetData(c.Request().Context(), items, opts...); err != nil {
		return HTTPError(err)
	}
	SetETag(c, r.Coll.Revision())
	return c.NoContent(http.StatusNoContent)
}

// SetETag exposes the collection revision so clients can send it back as
// If-Match.
func SetETag(c echo.Context, rev uint64) {
	c.Response().Header().Set("ETag", strconv.Quote(strconv.FormatUint(rev, 10)))
}

// MutateOptions turns an If-Match header into collection.IfRevision.
func MutateOptions(c echo.Context) ([]collection.MutateOption, error) {
	h := strings.TrimSpace(c.Request().Header.Get("If-Match"))
	if h == "" || h == "*" {
		return nil, nil
	}
	h = strings.TrimPrefix(h, "W/")
	rev, err := strconv.ParseUint(strings.Trim(h, `"`), 10, 64)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "If-Match must be a collection revision")
	}
	return []collection.MutateOption{collection.IfRevision(rev)}, nil
}

// FieldFilter matches records whose top-level JSON fields equal the query
// parameters, e.g. ?status=paid&patientId=pat-1. ?q= does a case-insensitive
// substring match over all string fields.
func FieldFilter[T any](c echo.Context, skip ...string) (func(T) bool, error) {
	skipped := make(map[string]bool, len(skip))
	for _, k := range skip {
		skipped[k] = true
	}
	want := map[string]string{}
	for k, vs := range c.QueryParams() {
		if reserved[k] || skipped[k] || len(vs) == 0 {
			continue
		}
		want[k] = vs[0]
	}
	q := strings.ToLower(strings.TrimSpace(c.QueryParam("q")))
	if len(want) == 0 && q == "" {
		return func(T) bool { return true }, nil
	}

	return func(rec T) bool {
		raw, err := json.Marshal(rec)
		if err != nil {
			return false
		}
		fields := map[string]any{}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return false
		}
		for k, v := range want {
			got, ok := fields[k]
			if !ok || scalar(got) != v {
				return false
			}
		}
		if q == "" {
			return true
		}
		for _, v := range fields {
			if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), q) {
				return true
			}
		}
		return false
	}, nil
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		raw, _ := json.Marshal(t)
		return string(raw)
	}
}
