// Package enrich rewrites ObjectId reference fields in tool results into
// human-readable names, so the assistant talks about "Sunrise Towers" rather
// than a 24-character hex string.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/homelead/askdb/pkg/session"
)

// Finder is the single-document read the enricher needs. The session
// implements it against MongoDB; tests supply canned documents.
type Finder interface {
	FindOne(ctx context.Context, collection string, filter, projection map[string]any) (bson.M, error)
}

type sessionFinder struct {
	sess *session.Session
}

// NewFinder adapts a session into the enricher's read interface.
func NewFinder(sess *session.Session) Finder {
	return &sessionFinder{sess: sess}
}

func (f *sessionFinder) FindOne(ctx context.Context, collection string, filter, projection map[string]any) (bson.M, error) {
	opts := options.FindOne()
	if len(projection) > 0 {
		opts.SetProjection(projection)
	}
	var doc bson.M
	err := f.sess.Collection(collection).FindOne(ctx, filter, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// composer resolves one reference id into a display string.
type composer func(ctx context.Context, e *Enricher, id primitive.ObjectID) (string, bool)

// rule describes how one reference field resolves. Simple rules are a
// collection and name field; custom rules compose from nested documents.
type rule struct {
	collection string
	nameField  string
	custom     composer

	// list values resolve element-wise and join into one string.
	joinList bool
}

func simple(collection, nameField string) rule {
	return rule{collection: collection, nameField: nameField}
}

// Enricher walks decoded documents and replaces known reference fields with
// names. Lookups are memoized for the life of the process.
type Enricher struct {
	finder Finder
	rules  map[string]rule

	mu   sync.Mutex
	memo map[string]string
}

// New creates an enricher with the CRM reference-field registry.
func New(finder Finder) *Enricher {
	return &Enricher{
		finder: finder,
		rules: map[string]rule{
			"company":             simple("companies", "name"),
			"project":             simple("projects", "name"),
			"tenant":              simple("tenants", "name"),
			"broker":              simple("brokers", "name"),
			"plan":                simple("plans", "name"),
			"lead":                simple("leads", "name"),
			"category":            simple("project-categories", "name"),
			"propertyUnitSubType": simple("property-unit-sub-types", "name"),
			"projectUnitSubType":  simple("property-unit-sub-types", "name"),
			"bhk":                 simple("bhk", "name"),
			"bhkType":             simple("bhk-types", "name"),
			"bank":                simple("banks", "contactPersonDetails.fullName"),
			"bankNameId":          simple("bank-names", "name"),
			"source":              simple("sources", "name"),
			"user":                simple("users", "firstName"),
			"assignee":            simple("users", "fullName"),
			"createdBy":           simple("users", "fullName"),
			"assignedTo":          simple("users", "fullName"),
			"defaultPrimary":      simple("users", "fullName"),
			"defaultSecondary":    simple("users", "fullName"),
			"team":                simple("teams", "name"),
			"group":               simple("groups", "name"),
			"designation":         simple("designations", "name"),
			"country":             simple("countries", "name"),
			"property":            {custom: propertyLabel},
			"state":               {custom: stateName},
			"city":                {custom: cityName},
			"booking":             {custom: bookingLabel},
			"amenities":           {custom: amenityName, joinList: true},
		},
		memo: map[string]string{},
	}
}

// Enrich returns a copy of value with reference fields replaced by names.
// Unknown fields and unresolvable ids pass through unchanged; the input is
// never an error source.
func (e *Enricher) Enrich(ctx context.Context, value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = e.enrichField(ctx, k, item)
		}
		return out
	case bson.M:
		return e.Enrich(ctx, map[string]any(v))
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = e.Enrich(ctx, item)
		}
		return out
	case bson.A:
		return e.Enrich(ctx, []any(v))
	case []map[string]any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = e.Enrich(ctx, item)
		}
		return out
	case []bson.M:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = e.Enrich(ctx, item)
		}
		return out
	}
	return value
}

func (e *Enricher) enrichField(ctx context.Context, key string, value any) any {
	switch v := value.(type) {
	case map[string]any:
		return e.Enrich(ctx, v)
	case bson.M:
		return e.Enrich(ctx, map[string]any(v))
	case []any:
		return e.enrichList(ctx, key, v)
	case bson.A:
		return e.enrichList(ctx, key, []any(v))
	case []map[string]any:
		return e.Enrich(ctx, v)
	case []bson.M:
		return e.Enrich(ctx, v)
	default:
		return e.replaceScalar(ctx, key, value)
	}
}

// enrichList resolves scalar list elements under a mapped key concurrently;
// document elements recurse.
func (e *Enricher) enrichList(ctx context.Context, key string, list []any) any {
	r, mapped := e.rules[key]

	if mapped && r.joinList {
		return e.resolveJoined(ctx, r, list)
	}

	out := make([]any, len(list))
	var wg sync.WaitGroup
	for i, item := range list {
		switch item.(type) {
		case map[string]any, bson.M:
			out[i] = e.Enrich(ctx, item)
		default:
			if !mapped {
				out[i] = item
				continue
			}
			wg.Add(1)
			go func(i int, item any) {
				defer wg.Done()
				out[i] = e.replaceScalar(ctx, key, item)
			}(i, item)
		}
	}
	wg.Wait()
	return out
}

func (e *Enricher) resolveJoined(ctx context.Context, r rule, list []any) string {
	names := make([]string, len(list))
	var wg sync.WaitGroup
	for i, item := range list {
		wg.Add(1)
		go func(i int, item any) {
			defer wg.Done()
			names[i] = e.resolveWithRule(ctx, r, item)
		}(i, item)
	}
	wg.Wait()
	return strings.Join(names, ", ")
}

func (e *Enricher) replaceScalar(ctx context.Context, key string, value any) any {
	r, ok := e.rules[key]
	if !ok {
		return value
	}
	if r.joinList {
		// Comma-joined id strings resolve element-wise too.
		if s, isString := value.(string); isString && strings.Contains(s, ",") {
			var ids []any
			for _, tok := range strings.Split(s, ",") {
				if tok = strings.TrimSpace(tok); tok != "" {
					ids = append(ids, tok)
				}
			}
			return e.resolveJoined(ctx, r, ids)
		}
	}
	return e.resolveWithRule(ctx, r, value)
}

func (e *Enricher) resolveWithRule(ctx context.Context, r rule, value any) string {
	id, ok := coerceObjectID(value)
	if !ok {
		return stringify(value)
	}
	if r.custom != nil {
		if name, resolved := r.custom(ctx, e, id); resolved {
			return name
		}
		return id.Hex()
	}
	return e.simpleName(ctx, r.collection, id, r.nameField)
}

// simpleName resolves one id via a projected FindOne, memoized under
// collection:id:field.
func (e *Enricher) simpleName(ctx context.Context, collection string, id primitive.ObjectID, nameField string) string {
	key := collection + ":" + id.Hex() + ":" + nameField
	if name, hit := e.cached(key); hit {
		return name
	}

	name := id.Hex()
	root := strings.SplitN(nameField, ".", 2)[0]
	doc, err := e.finder.FindOne(ctx, collection, map[string]any{"_id": id}, map[string]any{root: 1})
	if err != nil {
		slog.Debug("enrich: lookup failed", "collection", collection, "id", id.Hex(), "error", err)
		return name
	}
	if resolved, ok := fieldPath(doc, nameField); ok {
		name = resolved
	}

	e.remember(key, name)
	return name
}

func (e *Enricher) cached(key string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	name, hit := e.memo[key]
	return name, hit
}

func (e *Enricher) remember(key, name string) {
	e.mu.Lock()
	e.memo[key] = name
	e.mu.Unlock()
}

func propertyLabel(ctx context.Context, e *Enricher, id primitive.ObjectID) (string, bool) {
	doc, err := e.finder.FindOne(ctx, "properties", map[string]any{"_id": id}, nil)
	if err != nil || doc == nil {
		return "", false
	}
	if name, ok := doc["name"].(string); ok && name != "" {
		return name, true
	}
	var parts []string
	for _, field := range []string{"propertyType", "blockName", "floorName"} {
		if s, ok := doc[field].(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "UnknownProperty", true
	}
	return strings.Join(parts, " "), true
}

func stateName(ctx context.Context, e *Enricher, id primitive.ObjectID) (string, bool) {
	key := "state:" + id.Hex()
	if name, hit := e.cached(key); hit {
		return name, true
	}

	doc, err := e.finder.FindOne(ctx, "countries",
		map[string]any{"states._id": id},
		map[string]any{"states": 1})
	if err != nil || doc == nil {
		return "", false
	}
	for _, state := range asDocList(doc["states"]) {
		if idMatches(state["_id"], id) {
			if name, ok := state["name"].(string); ok {
				e.remember(key, name)
				return name, true
			}
		}
	}
	return "", false
}

func cityName(ctx context.Context, e *Enricher, id primitive.ObjectID) (string, bool) {
	key := "city:" + id.Hex()
	if name, hit := e.cached(key); hit {
		return name, true
	}

	doc, err := e.finder.FindOne(ctx, "countries",
		map[string]any{"states.cities._id": id},
		map[string]any{"states": 1})
	if err != nil || doc == nil {
		return "", false
	}
	for _, state := range asDocList(doc["states"]) {
		for _, city := range asDocList(state["cities"]) {
			if idMatches(city["_id"], id) {
				if name, ok := city["name"].(string); ok {
					e.remember(key, name)
					return name, true
				}
			}
		}
	}
	return "", false
}

func bookingLabel(ctx context.Context, e *Enricher, id primitive.ObjectID) (string, bool) {
	doc, err := e.finder.FindOne(ctx, "property-bookings", map[string]any{"_id": id}, nil)
	if err != nil || doc == nil {
		return "", false
	}
	leadName := ""
	if leadID, ok := coerceObjectID(doc["lead"]); ok {
		leadName = e.simpleName(ctx, "leads", leadID, "name")
	}
	if leadName == "" {
		return "", false
	}
	return fmt.Sprintf("%s - %s - %s", leadName, stringify(doc["bookingType"]), stringify(doc["bookingDate"])), true
}

func amenityName(ctx context.Context, e *Enricher, id primitive.ObjectID) (string, bool) {
	return e.simpleName(ctx, "amenities", id, "name"), true
}

func coerceObjectID(value any) (primitive.ObjectID, bool) {
	switch v := value.(type) {
	case primitive.ObjectID:
		return v, true
	case string:
		oid, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			return primitive.ObjectID{}, false
		}
		return oid, true
	}
	return primitive.ObjectID{}, false
}

func idMatches(docID any, id primitive.ObjectID) bool {
	other, ok := coerceObjectID(docID)
	return ok && other == id
}

func asDocList(value any) []bson.M {
	switch list := value.(type) {
	case []bson.M:
		return list
	case bson.A:
		return asDocList([]any(list))
	case []any:
		out := make([]bson.M, 0, len(list))
		for _, item := range list {
			switch doc := item.(type) {
			case bson.M:
				out = append(out, doc)
			case map[string]any:
				out = append(out, bson.M(doc))
			}
		}
		return out
	}
	return nil
}

// fieldPath walks a dotted path, e.g. contactPersonDetails.fullName.
func fieldPath(doc bson.M, path string) (string, bool) {
	parts := strings.Split(path, ".")
	current := any(doc)
	for _, part := range parts {
		m, ok := current.(bson.M)
		if !ok {
			if plain, isMap := current.(map[string]any); isMap {
				m = bson.M(plain)
			} else {
				return "", false
			}
		}
		current = m[part]
	}
	s, ok := current.(string)
	return s, ok && s != ""
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case primitive.ObjectID:
		return v.Hex()
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", value)
}
