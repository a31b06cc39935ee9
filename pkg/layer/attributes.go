package layer

import (
	"context"
	"fmt"
	"sort"

	"github.com/layerkit/layerkit/pkg/deferred"
	"github.com/layerkit/layerkit/pkg/telemetry"
)

// Column is one datagrid column.
type Column struct {
	Data  string `json:"data"`
	Title string `json:"title"`
}

// FormattedAttributes is the attribute table prepared for a datagrid.
type FormattedAttributes struct {
	Columns  []Column         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	Fields   []Field          `json:"fields"`
	OIDField string           `json:"oidField"`
	OIDIndex map[string]int   `json:"oidIndex"`
	Renderer *Renderer        `json:"renderer,omitempty"`
}

// Detail is one row of a feature's details table.
type Detail struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
	Type  string `json:"type,omitempty"`
}

// AttribFC is a feature class backed by an attribute package.
type AttribFC struct {
	fcCore

	pkg       LayerPackage
	nameField string

	attribs   deferred.Memo[*AttributeData]
	layerData deferred.Memo[*LayerData]
	formatted deferred.Memo[*FormattedAttributes]
}

func newAttribFC(rec *Record, idx string, pkg LayerPackage, queryable bool) *AttribFC {
	fc := &AttribFC{pkg: pkg}
	fc.init(rec, idx, queryable)
	fc.attribs.ClearOnError = true
	fc.layerData.ClearOnError = true
	fc.formatted.ClearOnError = true
	fc.fetchSymbology = fc.legendSymbology
	return fc
}

// GeomType is the engine's geometry type for the physical layer, empty when
// the layer draws no features.
func (fc *AttribFC) GeomType() string {
	if fl, ok := fc.rec.Layer().(FeatureLayer); ok {
		return fl.GeometryType()
	}
	return ""
}

// Attribs returns the memoized attribute download.
func (fc *AttribFC) Attribs(ctx context.Context) *deferred.Deferred[*AttributeData] {
	ctx = context.WithoutCancel(fc.rec.opCtx(ctx))
	return fc.attribs.Get(func() (*AttributeData, error) {
		var data *AttributeData
		err := telemetry.RecordLayerOperation(ctx, fc.rec.LayerID(), string(fc.rec.LayerType()), "attributes",
			func(ctx context.Context) error {
				var err error
				data, err = fc.pkg.Attribs(ctx)
				if err != nil {
					return NewAttributeError(err).WithLayer(fc.rec.LayerID()).WithDetail("sublayer", fc.idx)
				}
				return nil
			})
		if err != nil {
			fc.rec.tel.Metrics.RecordAttributeLoad(telemetry.OutcomeFailure)
			fc.rec.log.WithSublayer(fc.idx).WithError(err).Warn("attribute load failed")
			_ = fc.rec.tel.Events.PublishAttributeLoadFailed(fc.rec.LayerID(), fc.idx, err.Error())
			return nil, err
		}
		fc.rec.tel.Metrics.RecordAttributeLoad(telemetry.OutcomeSuccess)
		return data, nil
	})
}

// LayerData returns the memoized sublayer metadata.
func (fc *AttribFC) LayerData(ctx context.Context) *deferred.Deferred[*LayerData] {
	ctx = context.WithoutCancel(fc.rec.opCtx(ctx))
	return fc.layerData.Get(func() (*LayerData, error) {
		return fc.pkg.LayerData(ctx)
	})
}

// FormattedAttributes joins rows and field metadata for a datagrid. Callers
// share one pending result; a failure is dropped from the cache so the next
// call fetches again.
func (fc *AttribFC) FormattedAttributes(ctx context.Context) *deferred.Deferred[*FormattedAttributes] {
	ctx = context.WithoutCancel(ctx)
	return fc.formatted.Get(func() (*FormattedAttributes, error) {
		aData, err := fc.Attribs(ctx).Wait(ctx)
		if err != nil {
			return nil, NewAttributeError(err).WithLayer(fc.rec.LayerID())
		}
		lData, err := fc.LayerData(ctx).Wait(ctx)
		if err != nil {
			return nil, NewAttributeError(err).WithLayer(fc.rec.LayerID())
		}
		return formatAttributes(aData, lData), nil
	})
}

func formatAttributes(aData *AttributeData, lData *LayerData) *FormattedAttributes {
	out := &FormattedAttributes{
		Columns:  []Column{},
		Rows:     make([]map[string]any, 0, len(aData.Features)),
		Fields:   lData.Fields,
		OIDField: lData.OIDField,
		OIDIndex: aData.OIDIndex,
		Renderer: lData.Renderer,
	}
	for _, f := range aData.Features {
		out.Rows = append(out.Rows, f.Attributes)
	}
	if len(aData.Features) == 0 {
		return out
	}

	// Columns only cover fields the rows actually carry.
	first := aData.Features[0].Attributes
	for _, field := range lData.Fields {
		if _, ok := first[field.Name]; !ok {
			continue
		}
		title := field.Alias
		if title == "" {
			title = field.Name
		}
		out.Columns = append(out.Columns, Column{Data: field.Name, Title: title})
	}
	return out
}

// CleanUpAttribs drops every memoized attribute result.
func (fc *AttribFC) CleanUpAttribs() {
	fc.attribs.Clear()
	fc.layerData.Clear()
	fc.formatted.Clear()
}

// FeatureName extracts a display name for a feature: the configured name
// field, then the layer's display field, then "Feature <oid>". When attrs is
// nil the feature is looked up in the downloaded attributes.
func (fc *AttribFC) FeatureName(ctx context.Context, oid string, attrs map[string]any) (string, error) {
	nameField := fc.nameField
	if nameField == "" {
		if fl, ok := fc.rec.Layer().(FeatureLayer); ok {
			nameField = fl.DisplayField()
		}
	}
	if nameField == "" {
		return "Feature " + oid, nil
	}

	if attrs == nil {
		data, err := fc.Attribs(ctx).Wait(ctx)
		if err != nil {
			return "", err
		}
		pos, ok := data.OIDIndex[oid]
		if !ok || pos >= len(data.Features) {
			return "", fmt.Errorf("feature %s not found", oid)
		}
		attrs = data.Features[pos].Attributes
	}
	return valueString(attrs[nameField]), nil
}

// CheckDateType reports whether attribName is a date field.
func (fc *AttribFC) CheckDateType(ctx context.Context, attribName string) (bool, error) {
	lData, err := fc.LayerData(ctx).Wait(ctx)
	if err != nil {
		return false, err
	}
	for _, f := range lData.Fields {
		if f.Name == attribName {
			return f.Type == "esriFieldTypeDate", nil
		}
	}
	return false, nil
}

// AliasedFieldName returns the alias of attribName, or the name itself.
func (fc *AttribFC) AliasedFieldName(ctx context.Context, attribName string) (string, error) {
	lData, err := fc.LayerData(ctx).Wait(ctx)
	if err != nil {
		return "", err
	}
	return AliasedFieldNameDirect(attribName, lData.Fields), nil
}

func (fc *AttribFC) legendSymbology(ctx context.Context) ([]SymbologyItem, error) {
	lData, err := fc.LayerData(ctx).Wait(ctx)
	if err == nil && len(lData.Legend) > 0 {
		return lData.Legend, nil
	}
	return fc.serviceLegend(ctx)
}

// AliasedFieldNameDirect looks up the alias of attribName in fields.
func AliasedFieldNameDirect(attribName string, fields []Field) string {
	for _, f := range fields {
		if f.Name == attribName {
			if f.Alias != "" {
				return f.Alias
			}
			break
		}
	}
	return attribName
}

// UnAliasAttribs rebuilds attrs keyed strictly by field name, reading each
// value from the field name or, failing that, its alias.
func UnAliasAttribs(attrs map[string]any, fields []Field) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := attrs[f.Name]; ok {
			out[f.Name] = v
			continue
		}
		out[f.Name] = attrs[f.Alias]
	}
	return out
}

// AttributesToDetails turns an attribute map into detail rows ordered by
// attribute name. Keys are aliased and typed when fields are given.
func AttributesToDetails(attrs map[string]any, fields []Field) []Detail {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Detail, 0, len(keys))
	for _, k := range keys {
		d := Detail{Key: AliasedFieldNameDirect(k, fields), Value: attrs[k]}
		for _, f := range fields {
			if f.Name == k {
				d.Type = f.Type
				break
			}
		}
		out = append(out, d)
	}
	return out
}

// OIDKey renders an object id the way OIDIndex keys are written.
func OIDKey(v any) string {
	switch t := v.(type) {
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
	case float32:
		if t == float32(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
	}
	return valueString(v)
}

func valueString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
