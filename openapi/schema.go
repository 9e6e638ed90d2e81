package openapi

import (
	"reflect"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

var timeType = reflect.TypeOf(time.Time{})

type schemaRegistry struct {
	names map[reflect.Type]string
}

func newSchemaRegistry() *schemaRegistry {
	return &schemaRegistry{names: make(map[reflect.Type]string)}
}

func (r *schemaRegistry) ref(example any, components openapi3.Schemas) *openapi3.SchemaRef {
	if example == nil {
		return openapi3.NewObjectSchema().NewRef()
	}
	return r.fromType(reflect.TypeOf(example), components, map[reflect.Type]bool{})
}

func (r *schemaRegistry) fromType(t reflect.Type, components openapi3.Schemas, visiting map[reflect.Type]bool) *openapi3.SchemaRef {
	switch t.Kind() {
	case reflect.Pointer:
		inner := r.fromType(t.Elem(), components, visiting)
		if inner.Ref != "" {
			return &openapi3.SchemaRef{Value: &openapi3.Schema{AllOf: openapi3.SchemaRefs{inner}, Nullable: true}}
		}
		inner.Value.Nullable = true
		return inner
	case reflect.String:
		return openapi3.NewStringSchema().NewRef()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return openapi3.NewIntegerSchema().NewRef()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return openapi3.NewIntegerSchema().WithMin(0).NewRef()
	case reflect.Float32, reflect.Float64:
		return openapi3.NewFloat64Schema().NewRef()
	case reflect.Bool:
		return openapi3.NewBoolSchema().NewRef()
	case reflect.Slice, reflect.Array:
		return openapi3.NewArraySchema().WithItems(r.fromType(t.Elem(), components, visiting).Value).NewRef()
	case reflect.Map:
		return openapi3.NewObjectSchema().WithAdditionalProperties(r.fromType(t.Elem(), components, visiting).Value).NewRef()
	case reflect.Struct:
		return r.structRef(t, components, visiting)
	default:
		return openapi3.NewObjectSchema().NewRef()
	}
}

func (r *schemaRegistry) structRef(t reflect.Type, components openapi3.Schemas, visiting map[reflect.Type]bool) *openapi3.SchemaRef {
	if t == timeType {
		return openapi3.NewDateTimeSchema().NewRef()
	}
	if t.Name() == "" {
		return r.structSchema(t, components, visiting).NewRef()
	}

	if name, ok := r.names[t]; ok {
		return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
	}

	name := t.Name()
	if components[name] != nil {
		name = strings.ToUpper(lastPathSegment(t.PkgPath())[:1]) + lastPathSegment(t.PkgPath())[1:] + t.Name()
	}
	r.names[t] = name

	schema := r.structSchema(t, components, visiting)
	components[name] = schema.NewRef()
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}

func (r *schemaRegistry) structSchema(t reflect.Type, components openapi3.Schemas, visiting map[reflect.Type]bool) *openapi3.Schema {
	schema := openapi3.NewObjectSchema()
	if visiting[t] {
		return schema
	}
	visiting[t] = true
	defer delete(visiting, t)

	schema.Properties = make(openapi3.Schemas)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		tag := field.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		if name == "" {
			name = field.Name
		}

		prop := r.fromType(field.Type, components, visiting)
		if prop.Value != nil {
			if doc := field.Tag.Get("doc"); doc != "" {
				prop.Value.Description = doc
			}
			if example := field.Tag.Get("example"); example != "" {
				prop.Value.Example = example
			}
		}
		schema.Properties[name] = prop

		if !strings.Contains(opts, "omitempty") {
			schema.Required = append(schema.Required, name)
		}
	}
	return schema
}

func lastPathSegment(pkgPath string) string {
	if i := strings.LastIndex(pkgPath, "/"); i >= 0 {
		return pkgPath[i+1:]
	}
	return pkgPath
}
