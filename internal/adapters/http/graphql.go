package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/classroom/internal/core/domain"
	"github.com/samirrijal/classroom/internal/core/eligibility"
	"github.com/samirrijal/classroom/internal/core/usecases"
	"github.com/samirrijal/classroom/internal/pkg/geospatial"
)

func dateString(d *domain.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func windowMap(w domain.TaskWindow) map[string]any {
	return map[string]any{
		"kind":                  string(w.Kind),
		"scheduled_date":        dateString(w.ScheduledDate),
		"target":                w.Target,
		"allowed_radius_meters": w.AllowedRadiusMeters,
	}
}

func verdictMap(v domain.EligibilityVerdict, w domain.TaskWindow) map[string]any {
	return map[string]any{
		"allowed":         v.Allowed,
		"reason_code":     string(v.Reason),
		"distance_meters": v.DistanceMeters,
		"date_ok":         v.DateOK,
		"message":         eligibility.Message(v, w),
	}
}

func checkMap(v *usecases.CheckView) map[string]any {
	m := map[string]any{
		"session_id":     v.SessionID,
		"task_id":        v.TaskID,
		"student_id":     v.StudentID,
		"state":          string(v.Gate.State),
		"busy":           v.Gate.Busy,
		"message":        v.Gate.Message,
		"warning":        v.Gate.Warning,
		"location_error": v.Gate.LocationError,
		"can_submit":     v.Gate.Controls.Submit,
		"attempts":       v.Gate.Attempts,
		"window":         windowMap(v.Window),
	}
	if v.Gate.Verdict != nil {
		m["verdict"] = verdictMap(*v.Gate.Verdict, v.Window)
	}
	if v.Gate.Sample != nil {
		m["position"] = v.Gate.Sample.Point
		m["accuracy_meters"] = v.Gate.Sample.AccuracyMeters
	}
	return m
}

// buildSchema creates the GraphQL schema wired to the services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	windowType := graphql.NewObject(graphql.ObjectConfig{
		Name: "TaskWindow",
		Fields: graphql.Fields{
			"kind":                  &graphql.Field{Type: graphql.String},
			"scheduled_date":        &graphql.Field{Type: graphql.String},
			"target":                &graphql.Field{Type: geoPointType},
			"allowed_radius_meters": &graphql.Field{Type: graphql.Float},
		},
	})

	taskType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Task",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.String},
			"group_id":    &graphql.Field{Type: graphql.String},
			"title":       &graphql.Field{Type: graphql.String},
			"description": &graphql.Field{Type: graphql.String},
			"kind":        &graphql.Field{Type: graphql.String},
			"scheduled_date": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return dateString(p.Source.(*domain.Task).ScheduledDate), nil
				},
			},
		},
	})

	verdictType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Verdict",
		Fields: graphql.Fields{
			"allowed":         &graphql.Field{Type: graphql.Boolean},
			"reason_code":     &graphql.Field{Type: graphql.String},
			"distance_meters": &graphql.Field{Type: graphql.Float},
			"date_ok":         &graphql.Field{Type: graphql.Boolean},
			"message":         &graphql.Field{Type: graphql.String},
		},
	})

	checkType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Check",
		Fields: graphql.Fields{
			"session_id":      &graphql.Field{Type: graphql.String},
			"task_id":         &graphql.Field{Type: graphql.String},
			"student_id":      &graphql.Field{Type: graphql.String},
			"state":           &graphql.Field{Type: graphql.String},
			"busy":            &graphql.Field{Type: graphql.Boolean},
			"message":         &graphql.Field{Type: graphql.String},
			"warning":         &graphql.Field{Type: graphql.String},
			"location_error":  &graphql.Field{Type: graphql.String},
			"can_submit":      &graphql.Field{Type: graphql.Boolean},
			"attempts":        &graphql.Field{Type: graphql.Int},
			"window":          &graphql.Field{Type: windowType},
			"verdict":         &graphql.Field{Type: verdictType},
			"position":        &graphql.Field{Type: geoPointType},
			"accuracy_meters": &graphql.Field{Type: graphql.Float},
		},
	})

	addressType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Address",
		Fields: graphql.Fields{
			"display_name": &graphql.Field{Type: graphql.String},
			"street":       &graphql.Field{Type: graphql.String},
			"city":         &graphql.Field{Type: graphql.String},
			"country":      &graphql.Field{Type: graphql.String},
			"fallback":     &graphql.Field{Type: graphql.Boolean},
			"point":        &graphql.Field{Type: geoPointType},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"task": &graphql.Field{
				Type:        taskType,
				Description: "Get a task by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return deps.Tasks.GetByID(p.Context, p.Args["id"].(string))
				},
			},
			"window": &graphql.Field{
				Type:        windowType,
				Description: "Date and location constraint of a task",
				Args: graphql.FieldConfigArgument{
					"task_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					_, w, err := deps.Tasks.Window(p.Context, p.Args["task_id"].(string))
					if err != nil {
						return nil, err
					}
					return windowMap(w), nil
				},
			},
			"evaluate": &graphql.Field{
				Type:        verdictType,
				Description: "Evaluate a task's eligibility rules against a position",
				Args: graphql.FieldConfigArgument{
					"task_id":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"lat":      &graphql.ArgumentConfig{Type: graphql.Float},
					"lon":      &graphql.ArgumentConfig{Type: graphql.Float},
					"accuracy": &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: 0.0},
					"today":    &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					_, w, err := deps.Tasks.Window(p.Context, p.Args["task_id"].(string))
					if err != nil {
						return nil, err
					}
					var sample *domain.PositionSample
					lat, hasLat := p.Args["lat"].(float64)
					lon, hasLon := p.Args["lon"].(float64)
					if hasLat && hasLon {
						sample = &domain.PositionSample{
							Point:          domain.GeoPoint{Lat: lat, Lon: lon},
							AccuracyMeters: p.Args["accuracy"].(float64),
						}
						if err := sample.Validate(); err != nil {
							return nil, err
						}
					}
					var today *domain.Date
					if s, ok := p.Args["today"].(string); ok {
						d, err := domain.ParseDate(s)
						if err != nil {
							return nil, err
						}
						today = &d
					}
					return verdictMap(deps.Checks.Evaluate(w, sample, today), w), nil
				},
			},
			"distance": &graphql.Field{
				Type:        graphql.Float,
				Description: "Great-circle distance in meters",
				Args: graphql.FieldConfigArgument{
					"from_lat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"from_lon": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"to_lat":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"to_lon":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return geospatial.Haversine(
						p.Args["from_lat"].(float64), p.Args["from_lon"].(float64),
						p.Args["to_lat"].(float64), p.Args["to_lon"].(float64),
					), nil
				},
			},
			"check": &graphql.Field{
				Type:        checkType,
				Description: "Current state of a check session",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					v, err := deps.Checks.Get(p.Context, p.Args["id"].(string))
					if err != nil {
						return nil, err
					}
					return checkMap(v), nil
				},
			},
			"address": &graphql.Field{
				Type:        addressType,
				Description: "Display address of a point",
				Args: graphql.FieldConfigArgument{
					"lat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					pt := domain.GeoPoint{Lat: p.Args["lat"].(float64), Lon: p.Args["lon"].(float64)}
					return deps.Addresses.Describe(p.Context, pt), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string         `json:"query"`
		OperationName string         `json:"operationName"`
		Variables     map[string]any `json:"variables"`
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
