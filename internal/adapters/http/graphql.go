package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/storedetect/internal/core/domain"
	"github.com/samirrijal/storedetect/internal/core/usecases"
)

// storeMap flattens a store for the GraphQL resolvers.
func storeMap(s *domain.Store) map[string]interface{} {
	if s == nil {
		return nil
	}
	m := map[string]interface{}{
		"id":             s.ID,
		"name":           s.Name,
		"address":        s.Address,
		"chain":          s.Chain,
		"location":       map[string]interface{}{"lat": s.Location.Lat, "lng": s.Location.Lng},
		"wic_authorized": s.WICAuthorized,
		"active":         s.Active,
	}
	if s.Geofence != nil {
		m["geofence_type"] = string(s.Geofence.Type)
	}
	if s.Distance != nil {
		m["distance"] = *s.Distance
	}
	return m
}

func storeList(stores []domain.Store) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(stores))
	for i := range stores {
		out = append(out, storeMap(&stores[i]))
	}
	return out
}

func detectionMap(sess *usecases.DetectionService) map[string]interface{} {
	m := map[string]interface{}{
		"device_id":  sess.DeviceID(),
		"state":      string(sess.State()),
		"continuous": sess.Continuous(),
	}
	if res := sess.LastResult(); res != nil {
		if res.Store != nil {
			m["store"] = storeMap(res.Store)
		}
		m["confidence"] = res.Confidence
		m["method"] = string(res.Method)
		m["nearby_stores"] = storeList(res.NearbyStores)
		m["requires_confirmation"] = res.RequiresConfirmation
		m["degraded"] = res.Degraded
		m["detected_at"] = res.DetectedAt
	}
	return m
}

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lng": &graphql.Field{Type: graphql.Float},
		},
	})

	storeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Store",
		Fields: graphql.Fields{
			"id":             &graphql.Field{Type: graphql.String},
			"name":           &graphql.Field{Type: graphql.String},
			"address":        &graphql.Field{Type: graphql.String},
			"chain":          &graphql.Field{Type: graphql.String},
			"location":       &graphql.Field{Type: geoPointType},
			"geofence_type":  &graphql.Field{Type: graphql.String},
			"wic_authorized": &graphql.Field{Type: graphql.Boolean},
			"active":         &graphql.Field{Type: graphql.Boolean},
			"distance":       &graphql.Field{Type: graphql.Float},
		},
	})

	preferencesType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Preferences",
		Fields: graphql.Fields{
			"confirmed_store_ids": &graphql.Field{Type: graphql.NewList(graphql.String)},
			"favorite_store_ids":  &graphql.Field{Type: graphql.NewList(graphql.String)},
			"recent_store_ids":    &graphql.Field{Type: graphql.NewList(graphql.String)},
			"default_store_id":    &graphql.Field{Type: graphql.String},
		},
	})

	detectionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Detection",
		Fields: graphql.Fields{
			"device_id":             &graphql.Field{Type: graphql.String},
			"state":                 &graphql.Field{Type: graphql.String},
			"continuous":            &graphql.Field{Type: graphql.Boolean},
			"store":                 &graphql.Field{Type: storeType},
			"confidence":            &graphql.Field{Type: graphql.Int},
			"method":                &graphql.Field{Type: graphql.String},
			"nearby_stores":         &graphql.Field{Type: graphql.NewList(storeType)},
			"requires_confirmation": &graphql.Field{Type: graphql.Boolean},
			"degraded":              &graphql.Field{Type: graphql.Boolean},
			"detected_at":           &graphql.Field{Type: graphql.DateTime},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"storesNearby": &graphql.Field{
				Type:        graphql.NewList(storeType),
				Description: "Active stores near a location, nearest first",
				Args: graphql.FieldConfigArgument{
					"lat":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lng":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"radius": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: usecases.DefaultSearchRadiusMeters},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					point := domain.GeoPoint{Lat: p.Args["lat"].(float64), Lng: p.Args["lng"].(float64)}
					stores, err := deps.Stores.FindNearby(p.Context, point, p.Args["radius"].(int))
					if err != nil {
						return nil, err
					}
					return storeList(stores), nil
				},
			},
			"searchStores": &graphql.Field{
				Type:        graphql.NewList(storeType),
				Description: "Search stores by name, chain or address",
				Args: graphql.FieldConfigArgument{
					"query": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					stores, err := deps.Stores.SearchByText(p.Context, p.Args["query"].(string), p.Args["limit"].(int))
					if err != nil {
						return nil, err
					}
					return storeList(stores), nil
				},
			},
			"store": &graphql.Field{
				Type:        storeType,
				Description: "Get a store by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					store, err := deps.Stores.GetByID(p.Context, p.Args["id"].(string))
					if err != nil {
						return nil, err
					}
					return storeMap(store), nil
				},
			},
			"preferences": &graphql.Field{
				Type:        preferencesType,
				Description: "Confirmed, favorite, recent and default stores of a device",
				Args: graphql.FieldConfigArgument{
					"device_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["device_id"].(string)
					if err := domain.ValidateDeviceID(id); err != nil {
						return nil, err
					}
					st, err := deps.Preferences.Get(p.Context, id)
					if err != nil {
						return nil, err
					}
					m := map[string]interface{}{
						"confirmed_store_ids": st.ConfirmedStoreIDs,
						"favorite_store_ids":  st.FavoriteStoreIDs,
						"recent_store_ids":    st.RecentStoreIDs,
					}
					if st.DefaultStoreID != nil {
						m["default_store_id"] = *st.DefaultStoreID
					}
					return m, nil
				},
			},
			"detection": &graphql.Field{
				Type:        detectionType,
				Description: "Current detection state and last result of a device",
				Args: graphql.FieldConfigArgument{
					"device_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["device_id"].(string)
					sess, ok := deps.Sessions.Lookup(id)
					if !ok {
						return map[string]interface{}{"device_id": id, "state": string(domain.StateInitial)}, nil
					}
					return detectionMap(sess), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
