package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/tripgaps/internal/core/domain"
)

// buildSchema creates the GraphQL schema wired to our services. Field names
// follow the JSON tags of the domain types, which graphql-go resolves by default.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	coordinateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Coordinate",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lng": &graphql.Field{Type: graphql.Float},
		},
	})

	activityType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Activity",
		Fields: graphql.Fields{
			"id":               &graphql.Field{Type: graphql.String},
			"title":            &graphql.Field{Type: graphql.String},
			"start_time":       &graphql.Field{Type: graphql.String},
			"duration_minutes": &graphql.Field{Type: graphql.Int},
			"city":             &graphql.Field{Type: graphql.String},
			"coordinate":       &graphql.Field{Type: coordinateType},
			"category":         &graphql.Field{Type: graphql.String},
			"cost":             &graphql.Field{Type: graphql.Float},
			"rating":           &graphql.Field{Type: graphql.Float},
			"address":          &graphql.Field{Type: graphql.String},
			"source":           &graphql.Field{Type: graphql.String},
		},
	})

	suggestionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Suggestion",
		Fields: graphql.Fields{
			"name":                       &graphql.Field{Type: graphql.String},
			"coordinate":                 &graphql.Field{Type: coordinateType},
			"category":                   &graphql.Field{Type: graphql.String},
			"estimated_cost":             &graphql.Field{Type: graphql.Float},
			"estimated_duration_minutes": &graphql.Field{Type: graphql.Int},
			"travel_minutes_from_anchor": &graphql.Field{Type: graphql.Int},
			"travel_mode":                &graphql.Field{Type: graphql.String},
			"travel_cost":                &graphql.Field{Type: graphql.Int},
			"distance_km":                &graphql.Field{Type: graphql.Float},
			"rating":                     &graphql.Field{Type: graphql.Float},
			"suggested_start_time":       &graphql.Field{Type: graphql.String},
			"source_provider":            &graphql.Field{Type: graphql.String},
			"near_home_base":             &graphql.Field{Type: graphql.Boolean},
			"score":                      &graphql.Field{Type: graphql.Float},
		},
	})

	gapType := graphql.NewObject(graphql.ObjectConfig{
		Name: "TimeGap",
		Fields: graphql.Fields{
			"start_time":            &graphql.Field{Type: graphql.String},
			"end_time":              &graphql.Field{Type: graphql.String},
			"duration_minutes":      &graphql.Field{Type: graphql.Int},
			"preceding_activity":    &graphql.Field{Type: activityType},
			"following_activity":    &graphql.Field{Type: activityType},
			"candidate_suggestions": &graphql.Field{Type: graphql.NewList(suggestionType)},
		},
	})

	nearbyType := graphql.NewObject(graphql.ObjectConfig{
		Name: "NearbyOpportunity",
		Fields: graphql.Fields{
			"anchor_activity":       &graphql.Field{Type: activityType},
			"candidate_suggestions": &graphql.Field{Type: graphql.NewList(suggestionType)},
		},
	})

	alertType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Alert",
		Fields: graphql.Fields{
			"kind": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return string(p.Source.(domain.Alert).Kind), nil
				},
			},
			"severity": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return string(p.Source.(domain.Alert).Severity), nil
				},
			},
			"title":             &graphql.Field{Type: graphql.String},
			"message":           &graphql.Field{Type: graphql.String},
			"remediation_hints": &graphql.Field{Type: graphql.NewList(graphql.String)},
		},
	})

	dayReportType := graphql.NewObject(graphql.ObjectConfig{
		Name: "DayReport",
		Fields: graphql.Fields{
			"day":              &graphql.Field{Type: graphql.Int},
			"sequence":         &graphql.Field{Type: graphql.Int},
			"total_activities": &graphql.Field{Type: graphql.Int},
			"gaps":             &graphql.Field{Type: graphql.NewList(gapType)},
			"nearby":           &graphql.Field{Type: graphql.NewList(nearbyType)},
			"alerts":           &graphql.Field{Type: graphql.NewList(alertType)},
		},
	})

	statsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ResolutionStats",
		Fields: graphql.Fields{
			"cached":        &graphql.Field{Type: graphql.Int},
			"local_catalog": &graphql.Field{Type: graphql.Int},
			"provider_a":    &graphql.Field{Type: graphql.Int},
			"provider_b":    &graphql.Field{Type: graphql.Int},
			"provider_c":    &graphql.Field{Type: graphql.Int},
			"failed":        &graphql.Field{Type: graphql.Int},
			"cache_size":    &graphql.Field{Type: graphql.Int},
		},
	})

	resolvedPlaceType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ResolvedPlace",
		Fields: graphql.Fields{
			"coordinate":      &graphql.Field{Type: coordinateType},
			"display_name":    &graphql.Field{Type: graphql.String},
			"source_provider": &graphql.Field{Type: graphql.String},
			"confidence_tier": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return string(p.Source.(*domain.ResolvedPlace).Confidence), nil
				},
			},
			"address": &graphql.Field{Type: graphql.String},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"dayReport": &graphql.Field{
				Type:        dayReportType,
				Description: "Gaps, nearby opportunities and alerts for a day",
				Args: graphql.FieldConfigArgument{
					"day": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Suggestions == nil {
						return nil, errors.New("suggestions not configured")
					}
					return deps.Suggestions.BuildDayReport(p.Context, p.Args["day"].(int))
				},
			},
			"dayActivities": &graphql.Field{
				Type:        graphql.NewList(activityType),
				Description: "Ordered activities of a day",
				Args: graphql.FieldConfigArgument{
					"day": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Store == nil {
						return nil, errors.New("itinerary store not configured")
					}
					return deps.Store.GetDayActivities(p.Context, p.Args["day"].(int))
				},
			},
			"resolvePlace": &graphql.Field{
				Type:        resolvedPlaceType,
				Description: "Resolve a place name to a coordinate",
				Args: graphql.FieldConfigArgument{
					"query": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"city":  &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Resolver == nil {
						return nil, errors.New("resolver not configured")
					}
					query := p.Args["query"].(string)
					city, _ := p.Args["city"].(string)
					return deps.Resolver.Resolve(p.Context, query, domain.ResolveContext{City: city})
				},
			},
			"resolutionStats": &graphql.Field{
				Type:        statsType,
				Description: "Cumulative place resolution counters",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Resolver == nil {
						return nil, errors.New("resolver not configured")
					}
					return deps.Resolver.Stats(), nil
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
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil || req.Query == "" {
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
