package resources

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/bc-odata-client/pkg/client"
	"github.com/Sternrassler/bc-odata-client/pkg/odata"
	"github.com/Sternrassler/bc-odata-client/pkg/pagination"
)

// pathFunc resolves the endpoint of an operation from its parameters.
type pathFunc func(env *Env, p Params) (string, error)

// scoped returns a company-scoped path. Each %s in format is filled with
// the GUID parameter named at the same position in ids.
func scoped(format string, ids ...string) pathFunc {
	return func(env *Env, p Params) (string, error) {
		company, err := companyID(env, p)
		if err != nil {
			return "", err
		}
		args, err := guidArgs(p, ids)
		if err != nil {
			return "", err
		}
		return client.CompanyEndpoint(company, fmt.Sprintf(format, args...)), nil
	}
}

// unscoped returns a path under the API root, outside any company.
func unscoped(format string, ids ...string) pathFunc {
	return func(_ *Env, p Params) (string, error) {
		args, err := guidArgs(p, ids)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(format, args...), nil
	}
}

func guidArgs(p Params, ids []string) ([]any, error) {
	args := make([]any, len(ids))
	for i, name := range ids {
		id, err := p.GUID(name)
		if err != nil {
			return nil, err
		}
		args[i] = id
	}
	return args, nil
}

// companyID resolves the company: the client's configured company wins,
// then the companyId parameter.
func companyID(env *Env, p Params) (string, error) {
	id, err := env.API.CompanyID(p.String(ParamCompanyID))
	if err != nil {
		return "", err
	}
	return odata.ValidateGuid(id, ParamCompanyID)
}

// getOne fetches a single entity.
func getOne(path pathFunc) Handler {
	return func(ctx context.Context, env *Env, p Params) (any, error) {
		endpoint, err := path(env, p)
		if err != nil {
			return nil, err
		}
		return env.API.RequestJSON(ctx, http.MethodGet, endpoint, nil, nil, nil)
	}
}

// listing configures a collection read.
type listing struct {
	filtersKey string
	optionsKey string

	// inject adds operation-specific filters after the caller's.
	inject func(p Params, fs *odata.FilterSet) error
}

// getAll returns every record when returnAll is set, otherwise one bounded
// page of limit records.
func getAll(path pathFunc) Handler {
	return getAllWith(path, listing{filtersKey: ParamFilters, optionsKey: ParamOptions})
}

func getAllWith(path pathFunc, l listing) Handler {
	return func(ctx context.Context, env *Env, p Params) (any, error) {
		endpoint, err := path(env, p)
		if err != nil {
			return nil, err
		}

		filters := p.Filters(l.filtersKey)
		if l.inject != nil {
			if err := l.inject(p, &filters); err != nil {
				return nil, err
			}
		}
		query := odata.BuildQuery(filters, p.Options(l.optionsKey))

		if p.Bool(ParamReturnAll) {
			return env.Fetcher.FetchAllPages(ctx, http.MethodGet, endpoint, nil, query, 0)
		}
		return env.Fetcher.FetchPage(ctx, http.MethodGet, endpoint, nil, query, p.Int(ParamLimit, DefaultLimit))
	}
}

// list returns the value array of a collection without paging.
func list(path pathFunc) Handler {
	return func(ctx context.Context, env *Env, p Params) (any, error) {
		endpoint, err := path(env, p)
		if err != nil {
			return nil, err
		}
		page, err := env.API.Request(ctx, http.MethodGet, endpoint, nil, nil)
		if err != nil {
			return nil, err
		}
		return page.Records(), nil
	}
}

// bodyFunc builds the JSON body of a create.
type bodyFunc func(p Params) (map[string]any, error)

// create posts the body built from p to path.
func create(path pathFunc, body bodyFunc) Handler {
	return func(ctx context.Context, env *Env, p Params) (any, error) {
		endpoint, err := path(env, p)
		if err != nil {
			return nil, err
		}
		b, err := body(p)
		if err != nil {
			return nil, err
		}
		return env.API.RequestJSON(ctx, http.MethodPost, endpoint, b, nil, nil)
	}
}

// update reads the current entity for its etag and patches fieldsKey with
// If-Match.
func update(path pathFunc, fieldsKey string) Handler {
	return func(ctx context.Context, env *Env, p Params) (any, error) {
		endpoint, err := path(env, p)
		if err != nil {
			return nil, err
		}
		current, err := env.API.RequestJSON(ctx, http.MethodGet, endpoint, nil, nil, nil)
		if err != nil {
			return nil, err
		}
		return env.API.RequestJSON(ctx, http.MethodPatch, endpoint, p.Map(fieldsKey), nil, client.IfMatch(current.ETag()))
	}
}

// remove deletes the entity at path.
func remove(path pathFunc) Handler {
	return func(ctx context.Context, env *Env, p Params) (any, error) {
		endpoint, err := path(env, p)
		if err != nil {
			return nil, err
		}
		if _, err := env.API.RequestJSON(ctx, http.MethodDelete, endpoint, nil, nil, nil); err != nil {
			return nil, err
		}
		return pagination.Record{"success": true}, nil
	}
}

// action invokes a bound Microsoft.NAV action.
func action(path pathFunc) Handler {
	return func(ctx context.Context, env *Env, p Params) (any, error) {
		endpoint, err := path(env, p)
		if err != nil {
			return nil, err
		}
		return env.API.RequestJSON(ctx, http.MethodPost, endpoint, nil, nil, nil)
	}
}

// updatePicture uploads binary picture content.
func updatePicture(path pathFunc) Handler {
	return func(ctx context.Context, env *Env, p Params) (any, error) {
		endpoint, err := path(env, p)
		if err != nil {
			return nil, err
		}
		content, err := p.Bytes(ParamContent)
		if err != nil {
			return nil, err
		}
		contentType := p.String(ParamContentType)
		if contentType == "" {
			contentType = http.DetectContentType(content)
		}

		if _, _, err := env.API.RequestRaw(ctx, http.MethodPatch, endpoint, bytes.NewReader(content), contentType, client.IfMatch("")); err != nil {
			return nil, err
		}
		return pagination.Record{"success": true}, nil
	}
}

// entityOps registers the standard create/get/getAll/update/delete set.
func entityOps(t Table, resource, plural, idParam string, body bodyFunc) {
	one := scoped("/"+plural+"(%s)", idParam)
	t[Key{resource, "create"}] = create(scoped("/"+plural), body)
	t[Key{resource, "get"}] = getOne(one)
	t[Key{resource, "getAll"}] = getAll(scoped("/" + plural))
	t[Key{resource, "update"}] = update(one, ParamUpdateFields)
	t[Key{resource, "delete"}] = remove(one)
}

// lineOps registers the document line operations under parent(id)/linePlural.
func lineOps(t Table, resource, parent, idParam, linePlural string) {
	lines := scoped("/"+parent+"(%s)/"+linePlural, idParam)
	line := scoped("/"+parent+"(%s)/"+linePlural+"(%s)", idParam, ParamLineID)

	t[Key{resource, "getLines"}] = list(lines)
	t[Key{resource, "createLine"}] = create(lines, lineBody)
	t[Key{resource, "updateLine"}] = update(line, ParamLineFields)
	t[Key{resource, "deleteLine"}] = remove(line)
}

// pictureOps registers getPicture and updatePicture for plural(id).
func pictureOps(t Table, resource, plural, idParam string) {
	t[Key{resource, "getPicture"}] = getOne(scoped("/"+plural+"(%s)/picture", idParam))
	t[Key{resource, "updatePicture"}] = updatePicture(scoped("/"+plural+"(%s)/picture(%s)/pictureContent", idParam, idParam))
}

// namedBody builds {displayName, ...additionalFields}. withAddress folds
// the flat address fields into an address object.
func namedBody(withAddress bool) bodyFunc {
	return func(p Params) (map[string]any, error) {
		name, err := p.Require("displayName")
		if err != nil {
			return nil, err
		}
		additional := p.Map(ParamAdditionalFields)
		if withAddress {
			foldAddress(additional)
		}

		body := map[string]any{"displayName": name}
		merge(body, additional)
		return body, nil
	}
}

var addressFields = []string{"addressStreet", "addressCity", "addressState", "addressCountry", "addressPostalCode"}

// foldAddress replaces the flat address fields in m with an address object.
func foldAddress(m map[string]any) {
	parts := make(map[string]string, len(addressFields))
	for _, f := range addressFields {
		if _, ok := m[f]; ok {
			parts[f] = Params(m).String(f)
			delete(m, f)
		}
	}
	address := odata.BuildAddress(
		parts["addressStreet"],
		parts["addressCity"],
		parts["addressState"],
		parts["addressCountry"],
		parts["addressPostalCode"],
	)
	if address != nil {
		m["address"] = address
	}
}

// documentBody builds {refParam: id, ...additionalFields} for sales and
// purchase documents, normalizing dateFields to YYYY-MM-DD.
func documentBody(refParam string, dateFields ...string) bodyFunc {
	return func(p Params) (map[string]any, error) {
		ref, err := p.GUID(refParam)
		if err != nil {
			return nil, err
		}
		body := map[string]any{refParam: ref}
		merge(body, p.Map(ParamAdditionalFields))
		formatDates(body, dateFields...)
		return body, nil
	}
}

func lineBody(p Params) (map[string]any, error) {
	lineType, err := p.Require(ParamLineType)
	if err != nil {
		return nil, err
	}
	body := map[string]any{"lineType": lineType}
	merge(body, p.Map(ParamLineFields))
	return body, nil
}

// merge copies non-empty values from src over dst.
func merge(dst, src map[string]any) {
	for k, v := range odata.CleanObject(src) {
		dst[k] = v
	}
}

// formatDates truncates the named fields of body to a date.
func formatDates(body map[string]any, fields ...string) {
	for _, f := range fields {
		switch v := body[f].(type) {
		case string:
			body[f] = odata.FormatDate(v)
		case time.Time:
			body[f] = odata.FormatTime(v)
		}
	}
}
